package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerops/approvia/pkg/eventbus"
	"github.com/ledgerops/approvia/pkg/models"
	"github.com/ledgerops/approvia/pkg/persistence"
)

// Recorder applies a single approve/reject/skip action against the current
// step of a workflow instance. Each call is atomic: either the full state
// transition persists, guarded by the instance version, or nothing does.
type Recorder struct {
	persistence persistence.Persistence
	publisher   *eventPublisher
	authorizer  Authorizer
	logger      *slog.Logger
	now         func() time.Time
}

// NewRecorder creates a recorder. The event bus is optional; the authorizer
// is required for permission-gated steps and may be nil when every step
// names an explicit approver.
func NewRecorder(p persistence.Persistence, bus eventbus.EventBus, authorizer Authorizer, logger *slog.Logger) *Recorder {
	logger = logger.With("module", "workflow_recorder")

	return &Recorder{
		persistence: p,
		publisher:   &eventPublisher{bus: bus, logger: logger},
		authorizer:  authorizer,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the recorder clock, used by tests.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now

	return r
}

// RecordAction validates and applies one decision. Approve and Skip mark
// the current step and advance to the next applicable order, approving the
// instance when none remains. Reject terminalizes immediately; remaining
// Pending actions are left untouched as the audit trail of steps never
// reached. A version conflict surfaces as ErrConcurrencyConflict and the
// caller is expected to retry.
func (r *Recorder) RecordAction(ctx context.Context, instanceID, userID string, decision models.Decision, notes string) (*models.WorkflowInstance, error) {
	if !decision.Valid() {
		return nil, NewActionError("RecordAction", instanceID, fmt.Errorf("%w: %q", ErrInvalidDecision, decision))
	}

	instance, err := r.persistence.Instances().ByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if instance.Status.Terminal() {
		return nil, NewActionError("RecordAction", instanceID, ErrStateConflict)
	}

	def, err := r.persistence.WorkflowDefinitions().ByID(ctx, instance.DefinitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow definition: %w", err)
	}

	step, found := stepAt(def, instance.CurrentStepOrder)
	if !found {
		return nil, NewActionError("RecordAction", instanceID,
			fmt.Errorf("%w: step order %d not in definition", ErrStateConflict, instance.CurrentStepOrder))
	}

	action := instance.ActionAt(instance.CurrentStepOrder)
	if action == nil || action.Status != models.ActionStatusPending {
		return nil, NewActionError("RecordAction", instanceID, ErrActionNotPending)
	}

	authorized, err := r.authorize(ctx, step, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check permission: %w", err)
	}

	if !authorized {
		return nil, NewActionError("RecordAction", instanceID, ErrAuthorizationDenied)
	}

	decidedAt := r.now().UTC()
	action.ActorID = &userID
	action.Notes = notes
	action.DecidedAt = &decidedAt

	switch decision {
	case models.DecisionReject:
		action.Status = models.ActionStatusRejected
		instance.Status = models.InstanceStatusRejected
	case models.DecisionApprove, models.DecisionSkip:
		action.Status = models.ActionStatusApproved
		if decision == models.DecisionSkip {
			action.Status = models.ActionStatusSkipped
		}

		next, ok := NextApplicableOrder(def, instance.BranchID, instance.BaseAmount, instance.CurrentStepOrder)
		if ok {
			instance.CurrentStepOrder = next
		} else {
			instance.Status = models.InstanceStatusApproved
		}
	}

	if err := r.persistence.Instances().Update(ctx, instance); err != nil {
		if persistence.IsVersionConflict(err) {
			return nil, NewActionError("RecordAction", instanceID, ErrConcurrencyConflict)
		}

		return nil, fmt.Errorf("failed to update workflow instance: %w", err)
	}

	r.logger.InfoContext(ctx, "Action recorded",
		"instance_id", instanceID, "step_order", step.Order,
		"decision", decision, "status", instance.Status)

	switch instance.Status {
	case models.InstanceStatusApproved:
		r.publisher.approved(ctx, instance, nil)
	case models.InstanceStatusRejected:
		r.publisher.rejected(ctx, instance, userID, notes)
	}

	return instance, nil
}

// authorize checks the acting user against the step's approver or its
// required permission, delegating permission checks to the collaborator.
func (r *Recorder) authorize(ctx context.Context, step models.WorkflowStep, userID string) (bool, error) {
	if step.ApproverUserID != nil && *step.ApproverUserID == userID {
		return true, nil
	}

	if step.RequiredPermission != "" && r.authorizer != nil {
		return r.authorizer.HasPermission(ctx, userID, step.RequiredPermission)
	}

	return false, nil
}
