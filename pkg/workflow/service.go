package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerops/approvia/pkg/eventbus"
	"github.com/ledgerops/approvia/pkg/models"
	"github.com/ledgerops/approvia/pkg/persistence"
)

// Authorizer answers permission checks for permission-gated steps. It is an
// external collaborator; the engine stores permission names only.
type Authorizer interface {
	HasPermission(ctx context.Context, userID, permission string) (bool, error)
}

// CurrencyConverter converts a document amount into the base currency the
// step amount ranges are expressed in.
type CurrencyConverter interface {
	ToBaseCurrency(ctx context.Context, amount decimal.Decimal, currencyID string) (decimal.Decimal, error)
}

// Service handles document submissions and instance lifecycle operations.
type Service struct {
	persistence persistence.Persistence
	publisher   *eventPublisher
	converter   CurrencyConverter
	validator   *validator.Validate
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a submission service. The event bus and converter are
// optional; without a converter the document amount is taken as already
// base-denominated.
func NewService(p persistence.Persistence, bus eventbus.EventBus, converter CurrencyConverter, logger *slog.Logger) *Service {
	logger = logger.With("module", "workflow_service")

	return &Service{
		persistence: p,
		publisher:   &eventPublisher{bus: bus, logger: logger},
		converter:   converter,
		validator:   validator.New(),
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the service clock, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now

	return s
}

// SubmitForApproval creates a workflow instance for the document. The
// document's routing attributes are snapshotted onto the instance so later
// edits never change an in-flight route. A document with no applicable
// steps is approved immediately.
func (s *Service) SubmitForApproval(ctx context.Context, doc models.DocumentRef) (*models.WorkflowInstance, error) {
	if err := s.validator.Struct(doc); err != nil {
		return nil, fmt.Errorf("invalid document submission: %w", err)
	}

	if !doc.Type.Valid() {
		return nil, fmt.Errorf("invalid document submission: %w: %q", models.ErrInvalidDefinition, doc.Type)
	}

	def, err := s.findDefinition(ctx, doc)
	if err != nil {
		return nil, err
	}

	baseAmount := doc.Amount
	if s.converter != nil {
		baseAmount, err = s.converter.ToBaseCurrency(ctx, doc.Amount, doc.CurrencyID)
		if err != nil {
			return nil, fmt.Errorf("failed to convert amount to base currency: %w", err)
		}
	}

	now := s.now().UTC()
	instance := &models.WorkflowInstance{
		ID:           uuid.New().String(),
		DefinitionID: def.ID,
		DocumentType: doc.Type,
		DocumentID:   doc.ID,
		Amount:       doc.Amount,
		BaseAmount:   baseAmount,
		CurrencyID:   doc.CurrencyID,
		BranchID:     doc.BranchID,
		InitiatorID:  doc.InitiatorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	steps := ApplicableSteps(def, doc.BranchID, baseAmount)
	if len(steps) == 0 {
		instance.Status = models.InstanceStatusApproved

		if err := s.persistence.Instances().Create(ctx, instance); err != nil {
			return nil, fmt.Errorf("failed to create workflow instance: %w", err)
		}

		s.logger.InfoContext(ctx, "No applicable steps, instance auto-approved",
			"instance_id", instance.ID, "document_id", doc.ID)

		s.publisher.submitted(ctx, instance)
		s.publisher.approved(ctx, instance, doc.Fields)

		return instance, nil
	}

	instance.Status = models.InstanceStatusInProgress
	instance.CurrentStepOrder = steps[0].Order
	instance.Actions = make([]models.WorkflowAction, 0, len(steps))

	for _, step := range steps {
		instance.Actions = append(instance.Actions, models.WorkflowAction{
			ID:         uuid.New().String(),
			InstanceID: instance.ID,
			StepOrder:  step.Order,
			Status:     models.ActionStatusPending,
		})
	}

	if err := s.persistence.Instances().Create(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to create workflow instance: %w", err)
	}

	s.logger.InfoContext(ctx, "Workflow instance created",
		"instance_id", instance.ID, "document_id", doc.ID,
		"definition_id", def.ID, "steps", len(steps))

	s.publisher.submitted(ctx, instance)

	return instance, nil
}

// Cancel terminalizes an in-progress instance on behalf of an external
// cancellation event.
func (s *Service) Cancel(ctx context.Context, instanceID string) error {
	instance, err := s.persistence.Instances().ByID(ctx, instanceID)
	if err != nil {
		return err
	}

	if instance.Status.Terminal() {
		return NewActionError("Cancel", instanceID, ErrStateConflict)
	}

	instance.Status = models.InstanceStatusCancelled

	if err := s.persistence.Instances().Update(ctx, instance); err != nil {
		if persistence.IsVersionConflict(err) {
			return NewActionError("Cancel", instanceID, ErrConcurrencyConflict)
		}

		return fmt.Errorf("failed to cancel workflow instance: %w", err)
	}

	s.logger.InfoContext(ctx, "Workflow instance cancelled", "instance_id", instanceID)

	s.publisher.cancelled(ctx, instance)

	return nil
}

// Instance returns one instance with its actions.
func (s *Service) Instance(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	return s.persistence.Instances().ByID(ctx, instanceID)
}

// findDefinition picks the governing definition for the document: active,
// matching document type, branch-specific definitions preferred over
// global ones.
func (s *Service) findDefinition(ctx context.Context, doc models.DocumentRef) (*models.WorkflowDefinition, error) {
	definitions, err := s.persistence.WorkflowDefinitions().ActiveByDocumentType(ctx, doc.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow definitions: %w", err)
	}

	for _, def := range definitions {
		if def.BranchID == nil {
			return def, nil
		}

		if doc.BranchID != nil && *def.BranchID == *doc.BranchID {
			return def, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNoDefinition, doc.Type)
}
