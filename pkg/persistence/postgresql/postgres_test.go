package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/ledgerops/approvia/pkg/models"
	"github.com/ledgerops/approvia/pkg/persistence"
	"github.com/ledgerops/approvia/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{
		"journal_lines", "journal_entries", "journal_execution_logs", "journal_definitions",
		"workflow_actions", "workflow_instances", "workflow_steps", "workflow_definitions",
		"schema_migrations",
	} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("approvia_test"),
			postgres.WithUsername("approvia"),
			postgres.WithPassword("approvia"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func strPtr(s string) *string {
	return &s
}

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)

	return &d
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'workflow_definitions')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "workflow_definitions table should exist")

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'journal_definitions')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "journal_definitions table should exist")

	var version int

	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestWorkflowDefinitionRepository_SaveAndRetrieve(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	def := &models.WorkflowDefinition{
		Name:         "Payment approvals",
		DocumentType: models.DocumentTypePaymentVoucher,
		Active:       true,
		Steps: []models.WorkflowStep{
			{Order: 1, RequiredPermission: "approve_small"},
			{Order: 2, RequiredPermission: "approve_large", MinAmount: decPtr(1000)},
			{Order: 3, RequiredPermission: "approve_branch", BranchID: strPtr("br-1")},
		},
	}

	err := p.WorkflowDefinitions().Save(ctx, def)
	require.NoError(t, err)
	assert.NotEmpty(t, def.ID)
	assert.False(t, def.CreatedAt.IsZero())

	retrieved, err := p.WorkflowDefinitions().ByID(ctx, def.ID)
	require.NoError(t, err)

	assert.Equal(t, def.Name, retrieved.Name)
	assert.Equal(t, def.DocumentType, retrieved.DocumentType)
	require.Len(t, retrieved.Steps, 3)
	assert.Equal(t, 1, retrieved.Steps[0].Order)
	assert.Equal(t, "approve_large", retrieved.Steps[1].RequiredPermission)
	require.NotNil(t, retrieved.Steps[1].MinAmount)
	assert.True(t, retrieved.Steps[1].MinAmount.Equal(decimal.NewFromInt(1000)))
	require.NotNil(t, retrieved.Steps[2].BranchID)
	assert.Equal(t, "br-1", *retrieved.Steps[2].BranchID)

	_, err = p.WorkflowDefinitions().ByID(ctx, uuid.NewString())
	assert.True(t, persistence.IsNotFound(err))
}

func TestWorkflowDefinitionRepository_ActiveByDocumentType(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	global := &models.WorkflowDefinition{
		Name:         "Global payments",
		DocumentType: models.DocumentTypePaymentVoucher,
		Active:       true,
		Steps:        []models.WorkflowStep{{Order: 1, RequiredPermission: "approve"}},
	}
	branch := &models.WorkflowDefinition{
		Name:         "Branch payments",
		DocumentType: models.DocumentTypePaymentVoucher,
		BranchID:     strPtr("br-1"),
		Active:       true,
		Steps:        []models.WorkflowStep{{Order: 1, RequiredPermission: "approve"}},
	}
	inactive := &models.WorkflowDefinition{
		Name:         "Retired payments",
		DocumentType: models.DocumentTypePaymentVoucher,
		Active:       false,
		Steps:        []models.WorkflowStep{{Order: 1, RequiredPermission: "approve"}},
	}
	other := &models.WorkflowDefinition{
		Name:         "Receipts",
		DocumentType: models.DocumentTypeReceiptVoucher,
		Active:       true,
		Steps:        []models.WorkflowStep{{Order: 1, RequiredPermission: "approve"}},
	}

	for _, def := range []*models.WorkflowDefinition{global, branch, inactive, other} {
		require.NoError(t, p.WorkflowDefinitions().Save(ctx, def))
	}

	found, err := p.WorkflowDefinitions().ActiveByDocumentType(ctx, models.DocumentTypePaymentVoucher)
	require.NoError(t, err)
	require.Len(t, found, 2)

	// Branch-specific definitions come first so the router's first match wins.
	assert.Equal(t, branch.ID, found[0].ID)
	assert.Equal(t, global.ID, found[1].ID)
}

func TestInstanceRepository_CreateAndUpdate(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	def := &models.WorkflowDefinition{
		Name:         "Payment approvals",
		DocumentType: models.DocumentTypePaymentVoucher,
		Active:       true,
		Steps:        []models.WorkflowStep{{Order: 1, RequiredPermission: "approve"}},
	}
	require.NoError(t, p.WorkflowDefinitions().Save(ctx, def))

	instance := &models.WorkflowInstance{
		ID:               uuid.NewString(),
		DefinitionID:     def.ID,
		DocumentType:     models.DocumentTypePaymentVoucher,
		DocumentID:       "doc-1",
		Amount:           decimal.NewFromInt(2500),
		BaseAmount:       decimal.NewFromInt(2500),
		CurrencyID:       "USD",
		Status:           models.InstanceStatusInProgress,
		CurrentStepOrder: 1,
		InitiatorID:      "user-init",
		Actions: []models.WorkflowAction{
			{StepOrder: 1, Status: models.ActionStatusPending},
		},
	}
	instance.Actions[0].InstanceID = instance.ID

	require.NoError(t, p.Instances().Create(ctx, instance))
	assert.EqualValues(t, 1, instance.Version)

	retrieved, err := p.Instances().ByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.True(t, retrieved.Amount.Equal(decimal.NewFromInt(2500)))
	require.Len(t, retrieved.Actions, 1)
	assert.Equal(t, models.ActionStatusPending, retrieved.Actions[0].Status)
	assert.NotEmpty(t, retrieved.Actions[0].ID)

	decidedAt := time.Now().UTC()
	actorID := "user-approver"
	retrieved.Status = models.InstanceStatusApproved
	retrieved.Actions[0].Status = models.ActionStatusApproved
	retrieved.Actions[0].ActorID = &actorID
	retrieved.Actions[0].Notes = "looks fine"
	retrieved.Actions[0].DecidedAt = &decidedAt

	require.NoError(t, p.Instances().Update(ctx, retrieved))

	reloaded, err := p.Instances().ByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusApproved, reloaded.Status)
	assert.EqualValues(t, 2, reloaded.Version)
	require.NotNil(t, reloaded.Actions[0].ActorID)
	assert.Equal(t, "user-approver", *reloaded.Actions[0].ActorID)
	assert.Equal(t, "looks fine", reloaded.Actions[0].Notes)
	assert.NotNil(t, reloaded.Actions[0].DecidedAt)
}

func TestInstanceRepository_VersionConflict(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	def := &models.WorkflowDefinition{
		Name:         "Payment approvals",
		DocumentType: models.DocumentTypePaymentVoucher,
		Active:       true,
		Steps:        []models.WorkflowStep{{Order: 1, RequiredPermission: "approve"}},
	}
	require.NoError(t, p.WorkflowDefinitions().Save(ctx, def))

	instance := &models.WorkflowInstance{
		ID:               uuid.NewString(),
		DefinitionID:     def.ID,
		DocumentType:     models.DocumentTypePaymentVoucher,
		DocumentID:       "doc-1",
		Amount:           decimal.NewFromInt(100),
		BaseAmount:       decimal.NewFromInt(100),
		CurrencyID:       "USD",
		Status:           models.InstanceStatusInProgress,
		CurrentStepOrder: 1,
		InitiatorID:      "user-init",
	}
	require.NoError(t, p.Instances().Create(ctx, instance))

	first, err := p.Instances().ByID(ctx, instance.ID)
	require.NoError(t, err)

	second, err := p.Instances().ByID(ctx, instance.ID)
	require.NoError(t, err)

	require.NoError(t, p.Instances().Update(ctx, first))

	err = p.Instances().Update(ctx, second)
	require.Error(t, err)
	assert.True(t, persistence.IsVersionConflict(err))
}

func TestJournalDefinitionRepository_SaveAndDue(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	recurrence := models.RecurrenceMonthly
	startDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	nextRun := startDate
	def := &models.CompoundJournalDefinition{
		Name:        "Monthly depreciation",
		TriggerType: models.TriggerTypeRecurring,
		Active:      true,
		Recurrence:  &recurrence,
		StartDate:   &startDate,
		NextRunAt:   &nextRun,
		Template: models.CompoundJournalTemplate{
			Lines: []models.CompoundJournalLineTemplate{
				{AccountID: "acc-depreciation", Debit: models.FixedValue(decimal.NewFromInt(100))},
				{AccountID: "acc-accumulated", Credit: models.FixedValue(decimal.NewFromInt(100))},
			},
		},
	}

	require.NoError(t, p.JournalDefinitions().Save(ctx, def))
	assert.NotEmpty(t, def.ID)

	retrieved, err := p.JournalDefinitions().ByID(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "Monthly depreciation", retrieved.Name)
	require.Len(t, retrieved.Template.Lines, 2)
	assert.Equal(t, "acc-depreciation", retrieved.Template.Lines[0].AccountID)
	require.NotNil(t, retrieved.Recurrence)
	assert.Equal(t, models.RecurrenceMonthly, *retrieved.Recurrence)

	due, err := p.JournalDefinitions().DueAt(ctx, time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, def.ID, due[0].ID)

	due, err = p.JournalDefinitions().DueAt(ctx, time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestJournalDefinitionRepository_ClaimDue(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	recurrence := models.RecurrenceDaily
	nextRun := time.Now().UTC().Add(-time.Minute)
	def := &models.CompoundJournalDefinition{
		Name:        "Daily sweep",
		TriggerType: models.TriggerTypeRecurring,
		Active:      true,
		Recurrence:  &recurrence,
		NextRunAt:   &nextRun,
		Template: models.CompoundJournalTemplate{
			Lines: []models.CompoundJournalLineTemplate{
				{AccountID: "a", Debit: models.FixedValue(decimal.NewFromInt(1))},
				{AccountID: "b", Credit: models.FixedValue(decimal.NewFromInt(1))},
			},
		},
	}
	require.NoError(t, p.JournalDefinitions().Save(ctx, def))

	winner, err := p.JournalDefinitions().ByID(ctx, def.ID)
	require.NoError(t, err)

	loser, err := p.JournalDefinitions().ByID(ctx, def.ID)
	require.NoError(t, err)

	now := time.Now().UTC()
	winner.MarkRan(now)
	require.NoError(t, p.JournalDefinitions().ClaimDue(ctx, winner))

	loser.MarkRan(now)
	err = p.JournalDefinitions().ClaimDue(ctx, loser)
	require.Error(t, err)
	assert.True(t, persistence.IsVersionConflict(err))

	reloaded, err := p.JournalDefinitions().ByID(ctx, def.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.NextRunAt)
	assert.True(t, reloaded.NextRunAt.After(now))
	require.NotNil(t, reloaded.LastRunAt)
}

func TestJournalDefinitionRepository_RunOnApproval(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	template := models.CompoundJournalTemplate{
		Lines: []models.CompoundJournalLineTemplate{
			{AccountID: "a", Debit: models.ContextValue("base_amount")},
			{AccountID: "b", Credit: models.ContextValue("base_amount")},
		},
	}

	flagged := &models.CompoundJournalDefinition{
		Name: "On approval", TriggerType: models.TriggerTypeManual,
		Active: true, RunOnApproval: true, Template: template,
	}
	inactive := &models.CompoundJournalDefinition{
		Name: "Retired", TriggerType: models.TriggerTypeManual,
		Active: false, RunOnApproval: true, Template: template,
	}
	plain := &models.CompoundJournalDefinition{
		Name: "Manual only", TriggerType: models.TriggerTypeManual,
		Active: true, Template: template,
	}

	for _, def := range []*models.CompoundJournalDefinition{flagged, inactive, plain} {
		require.NoError(t, p.JournalDefinitions().Save(ctx, def))
	}

	found, err := p.JournalDefinitions().RunOnApproval(ctx)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, flagged.ID, found[0].ID)
}

func TestEntryRepository_CreateWithLog(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	def := &models.CompoundJournalDefinition{
		Name: "Manual sweep", TriggerType: models.TriggerTypeManual, Active: true,
		Template: models.CompoundJournalTemplate{
			Lines: []models.CompoundJournalLineTemplate{
				{AccountID: "a", Debit: models.FixedValue(decimal.NewFromInt(1))},
				{AccountID: "b", Credit: models.FixedValue(decimal.NewFromInt(1))},
			},
		},
	}
	require.NoError(t, p.JournalDefinitions().Save(ctx, def))

	executedAt := time.Now().UTC()
	entry := &models.JournalEntry{
		ID:                 uuid.NewString(),
		Number:             "CJ-20240701-abcd1234",
		Status:             models.EntryStatusDraft,
		Date:               executedAt,
		Description:        "Manual sweep",
		TotalDebit:         decimal.NewFromInt(300),
		TotalCredit:        decimal.NewFromInt(300),
		SourceDefinitionID: &def.ID,
		Lines: []models.JournalLine{
			{AccountID: "acc-1", Debit: decimal.NewFromInt(300), Credit: decimal.Zero},
			{AccountID: "acc-2", Debit: decimal.Zero, Credit: decimal.NewFromInt(300)},
		},
	}
	for i := range entry.Lines {
		entry.Lines[i].EntryID = entry.ID
	}

	executionLog := &models.CompoundJournalExecutionLog{
		DefinitionID:    def.ID,
		ExecutedAt:      executedAt,
		Status:          models.ExecutionStatusSuccess,
		JournalEntryID:  &entry.ID,
		ContextSnapshot: map[string]string{"amount": "300"},
	}

	require.NoError(t, p.Entries().CreateWithLog(ctx, entry, executionLog))

	stored, err := p.Entries().ByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "CJ-20240701-abcd1234", stored.Number)
	assert.True(t, stored.TotalDebit.Equal(stored.TotalCredit))
	require.Len(t, stored.Lines, 2)
	assert.True(t, stored.Lines[0].Debit.Equal(decimal.NewFromInt(300)))

	logs, err := p.ExecutionLogs().ByDefinition(ctx, def.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ExecutionStatusSuccess, logs[0].Status)
	require.NotNil(t, logs[0].JournalEntryID)
	assert.Equal(t, entry.ID, *logs[0].JournalEntryID)
	assert.Equal(t, "300", logs[0].ContextSnapshot["amount"])
}
