package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ledgerops/approvia/pkg/eventbus"
	"github.com/ledgerops/approvia/pkg/events"
	"github.com/ledgerops/approvia/pkg/models"
	"github.com/ledgerops/approvia/pkg/otelhelper"
	"github.com/ledgerops/approvia/pkg/persistence"
)

// Runner executes compound journal definitions: it assembles the run
// context, gates on conditions, resolves the template, and synthesizes a
// balanced entry. Every run that passes validation produces exactly one
// execution log, whatever the outcome.
type Runner struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time
}

// NewRunner creates a runner. The event bus is optional; pass nil to skip
// event publication.
func NewRunner(persistence persistence.Persistence, eventBus eventbus.EventBus, logger *slog.Logger) *Runner {
	return &Runner{
		persistence: persistence,
		eventBus:    eventBus,
		logger:      logger.With("module", "journal_runner"),
		now:         time.Now,
	}
}

// WithTracer attaches a tracer so runs emit spans.
func (r *Runner) WithTracer(tracer trace.Tracer) *Runner {
	r.tracer = tracer

	return r
}

// WithClock overrides the run clock, used by scheduler and tests.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now

	return r
}

// Run executes one definition. Overrides take precedence over the
// definition's default context. The returned log is non-nil for every
// recorded outcome (Success, Skipped, Failed); validation failures return
// a ValidationError and write no log.
func (r *Runner) Run(ctx context.Context, definitionID string, overrides map[string]string, automatic bool) (*models.CompoundJournalExecutionLog, error) {
	return r.run(ctx, definitionID, nil, overrides, automatic)
}

func (r *Runner) run(ctx context.Context, definitionID string, docFields, overrides map[string]string, automatic bool) (*models.CompoundJournalExecutionLog, error) {
	var span trace.Span

	if r.tracer != nil {
		ctx, span = otelhelper.StartSpan(ctx, r.tracer, "journal.run",
			attribute.String(otelhelper.DefinitionIDKey, definitionID),
			attribute.Bool(otelhelper.AutomaticKey, automatic),
		)
		defer span.End()
	}

	logger := r.logger.With("definition_id", definitionID, "automatic", automatic)

	def, err := r.persistence.JournalDefinitions().ByID(ctx, definitionID)
	if err != nil {
		spanError(span, err)

		return nil, fmt.Errorf("failed to load journal definition: %w", err)
	}

	if err := ValidateTemplate(&def.Template); err != nil {
		spanError(span, err)

		return nil, &ValidationError{DefinitionID: def.ID, Err: err}
	}

	runCtx := BuildContext(def.Template.DefaultContext, docFields, overrides)
	executedAt := r.now().UTC()

	executionLog := &models.CompoundJournalExecutionLog{
		ID:              uuid.New().String(),
		DefinitionID:    def.ID,
		ExecutedAt:      executedAt,
		Automatic:       automatic,
		ContextSnapshot: runCtx.Snapshot(),
	}

	if !EvaluateConditions(def.Template.Conditions, runCtx) {
		executionLog.Status = models.ExecutionStatusSkipped
		executionLog.Message = "conditions not met"

		logger.InfoContext(ctx, "Run skipped, conditions not met")

		return r.record(ctx, executionLog)
	}

	lines, notes := expandLines(def.Template.Lines, runCtx)
	if len(lines) == 0 {
		executionLog.Status = models.ExecutionStatusSkipped
		executionLog.Message = withNotes("all lines resolved to zero", notes)

		logger.InfoContext(ctx, "Run skipped, no nonzero lines")

		return r.record(ctx, executionLog)
	}

	totalDebit := decimal.Zero
	totalCredit := decimal.Zero

	for _, line := range lines {
		totalDebit = totalDebit.Add(line.Debit)
		totalCredit = totalCredit.Add(line.Credit)
	}

	if !totalDebit.Equal(totalCredit) {
		executionLog.Status = models.ExecutionStatusFailed
		executionLog.Message = withNotes(
			fmt.Sprintf("entry is unbalanced: debit %s, credit %s", totalDebit, totalCredit), notes)

		logger.WarnContext(ctx, "Run failed, entry is unbalanced",
			"total_debit", totalDebit, "total_credit", totalCredit)

		return r.record(ctx, executionLog)
	}

	entry := r.buildEntry(def, lines, totalDebit, executedAt)
	for i := range entry.Lines {
		entry.Lines[i].EntryID = entry.ID
	}

	executionLog.Status = models.ExecutionStatusSuccess
	executionLog.Message = withNotes("", notes)
	executionLog.JournalEntryID = &entry.ID

	if err := r.persistence.Entries().CreateWithLog(ctx, entry, executionLog); err != nil {
		spanError(span, err)

		return nil, fmt.Errorf("failed to persist journal entry: %w", err)
	}

	logger.InfoContext(ctx, "Run succeeded",
		"entry_id", entry.ID, "entry_number", entry.Number, "total", totalDebit)

	r.publishExecuted(ctx, executionLog)

	return executionLog, nil
}

func spanError(span trace.Span, err error) {
	if span == nil {
		return
	}

	otelhelper.SetError(span, err)
}

// record persists a Skipped or Failed log and publishes the run event.
// Success logs are persisted transactionally with their entry instead.
func (r *Runner) record(ctx context.Context, executionLog *models.CompoundJournalExecutionLog) (*models.CompoundJournalExecutionLog, error) {
	if err := r.persistence.ExecutionLogs().Append(ctx, executionLog); err != nil {
		return nil, fmt.Errorf("failed to append execution log: %w", err)
	}

	r.publishExecuted(ctx, executionLog)

	return executionLog, nil
}

func (r *Runner) publishExecuted(ctx context.Context, executionLog *models.CompoundJournalExecutionLog) {
	if r.eventBus == nil {
		return
	}

	event := events.JournalExecuted{
		BaseEvent: events.BaseEvent{
			ID:        r.eventBus.GenerateID(),
			Type:      events.JournalExecutedEvent,
			Timestamp: executionLog.ExecutedAt,
		},
		DefinitionID:   executionLog.DefinitionID,
		ExecutionLogID: executionLog.ID,
		Status:         executionLog.Status,
		JournalEntryID: executionLog.JournalEntryID,
		Automatic:      executionLog.Automatic,
	}

	if err := r.eventBus.Publish(ctx, executionLog.DefinitionID, event); err != nil {
		r.logger.WarnContext(ctx, "Failed to publish journal executed event", "error", err)
	}
}

func (r *Runner) buildEntry(def *models.CompoundJournalDefinition, lines []models.JournalLine, total decimal.Decimal, executedAt time.Time) *models.JournalEntry {
	status := def.Template.PostingStatus
	if status == "" {
		status = models.EntryStatusDraft
	}

	id := uuid.New().String()

	return &models.JournalEntry{
		ID:                 id,
		Number:             entryNumber(executedAt, id),
		Status:             status,
		BranchID:           def.Template.BranchID,
		Date:               executedAt,
		Description:        def.Name,
		Lines:              lines,
		TotalDebit:         total,
		TotalCredit:        total,
		SourceDefinitionID: &def.ID,
		CreatedAt:          executedAt,
	}
}

// expandLines resolves every template line against the context. Lines
// where both sides resolve to zero are dropped; degradation notes from all
// resolutions are collected for the log message.
func expandLines(templates []models.CompoundJournalLineTemplate, ctx *Context) ([]models.JournalLine, []string) {
	lines := make([]models.JournalLine, 0, len(templates))
	notes := make([]string, 0)

	for _, tpl := range templates {
		debit, debitNotes := ResolveValue(tpl.Debit, ctx)
		credit, creditNotes := ResolveValue(tpl.Credit, ctx)
		notes = append(notes, debitNotes...)
		notes = append(notes, creditNotes...)

		if debit.IsZero() && credit.IsZero() {
			continue
		}

		description := ""
		if tpl.Description != nil {
			description = *tpl.Description
		}

		lines = append(lines, models.JournalLine{
			ID:           uuid.New().String(),
			AccountID:    tpl.AccountID,
			Description:  description,
			CostCenterID: tpl.CostCenterID,
			Debit:        debit,
			Credit:       credit,
		})
	}

	return lines, notes
}

func withNotes(message string, notes []string) string {
	if len(notes) == 0 {
		return message
	}

	joined := "degraded: " + strings.Join(notes, "; ")
	if message == "" {
		return joined
	}

	return message + " (" + joined + ")"
}

func entryNumber(executedAt time.Time, id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}

	return fmt.Sprintf("CJ-%s-%s", executedAt.Format("20060102"), short)
}

// SubscribeToApprovals registers the runner on the event bus so that every
// approved workflow instance executes the definitions flagged with
// RunOnApproval, seeding the run context from the document fields carried
// in the event. Template conditions decide which definitions actually
// produce an entry.
func (r *Runner) SubscribeToApprovals(bus eventbus.EventBus) error {
	return bus.Handle(events.WorkflowApprovedEvent, func(ctx context.Context, event any) error {
		approved, ok := event.(*events.WorkflowApproved)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", event)
		}

		return r.runApproved(ctx, approved)
	})
}

func (r *Runner) runApproved(ctx context.Context, approved *events.WorkflowApproved) error {
	definitions, err := r.persistence.JournalDefinitions().RunOnApproval(ctx)
	if err != nil {
		return fmt.Errorf("failed to load approval-triggered definitions: %w", err)
	}

	docFields := make(map[string]string, len(approved.DocumentFields)+3)
	for key, value := range approved.DocumentFields {
		docFields[key] = value
	}

	docFields["document_type"] = string(approved.DocumentType)
	docFields["document_id"] = approved.DocumentID
	docFields["base_amount"] = approved.BaseAmount.String()

	for _, def := range definitions {
		if _, err := r.run(ctx, def.ID, docFields, nil, true); err != nil {
			r.logger.ErrorContext(ctx, "Approval-triggered run failed",
				"definition_id", def.ID, "instance_id", approved.InstanceID, "error", err)
		}
	}

	return nil
}
