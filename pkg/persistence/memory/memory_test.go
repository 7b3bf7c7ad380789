package memory_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerops/approvia/pkg/models"
	"github.com/ledgerops/approvia/pkg/persistence"
	"github.com/ledgerops/approvia/pkg/persistence/memory"
)

func TestInstanceRepository_VersionGuard(t *testing.T) {
	store := memory.NewPersistence()

	instance := &models.WorkflowInstance{
		ID:           "inst-1",
		DefinitionID: "wf-1",
		DocumentType: models.DocumentTypePaymentVoucher,
		DocumentID:   "doc-1",
		Amount:       decimal.NewFromInt(100),
		BaseAmount:   decimal.NewFromInt(100),
		CurrencyID:   "USD",
		Status:       models.InstanceStatusInProgress,
		InitiatorID:  "user-1",
	}

	require.NoError(t, store.Instances().Create(t.Context(), instance))
	assert.EqualValues(t, 1, instance.Version)

	first, err := store.Instances().ByID(t.Context(), "inst-1")
	require.NoError(t, err)

	second, err := store.Instances().ByID(t.Context(), "inst-1")
	require.NoError(t, err)

	require.NoError(t, store.Instances().Update(t.Context(), first))
	assert.EqualValues(t, 2, first.Version)

	err = store.Instances().Update(t.Context(), second)
	require.Error(t, err)
	assert.True(t, persistence.IsVersionConflict(err))
}

func TestInstanceRepository_CloneIsolation(t *testing.T) {
	store := memory.NewPersistence()

	instance := &models.WorkflowInstance{
		ID:           "inst-1",
		DefinitionID: "wf-1",
		DocumentType: models.DocumentTypePaymentVoucher,
		DocumentID:   "doc-1",
		Amount:       decimal.NewFromInt(100),
		BaseAmount:   decimal.NewFromInt(100),
		CurrencyID:   "USD",
		Status:       models.InstanceStatusInProgress,
		InitiatorID:  "user-1",
	}

	require.NoError(t, store.Instances().Create(t.Context(), instance))

	loaded, err := store.Instances().ByID(t.Context(), "inst-1")
	require.NoError(t, err)

	loaded.Status = models.InstanceStatusRejected

	reloaded, err := store.Instances().ByID(t.Context(), "inst-1")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusInProgress, reloaded.Status)
}

func TestJournalDefinitionRepository_ClaimDue(t *testing.T) {
	store := memory.NewPersistence()

	recurrence := models.RecurrenceDaily
	nextRun := time.Now().UTC().Add(-time.Minute)
	def := &models.CompoundJournalDefinition{
		ID:          "def-1",
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

	require.NoError(t, store.JournalDefinitions().Save(t.Context(), def))

	winner, err := store.JournalDefinitions().ByID(t.Context(), "def-1")
	require.NoError(t, err)

	loser, err := store.JournalDefinitions().ByID(t.Context(), "def-1")
	require.NoError(t, err)

	now := time.Now().UTC()
	winner.MarkRan(now)
	require.NoError(t, store.JournalDefinitions().ClaimDue(t.Context(), winner))

	loser.MarkRan(now)
	err = store.JournalDefinitions().ClaimDue(t.Context(), loser)
	require.Error(t, err)
	assert.True(t, persistence.IsVersionConflict(err))
}

func TestJournalDefinitionRepository_DueAt(t *testing.T) {
	store := memory.NewPersistence()

	recurrence := models.RecurrenceDaily
	now := time.Now().UTC()

	past := now.Add(-time.Hour)
	due := &models.CompoundJournalDefinition{
		ID: "due", Name: "due", TriggerType: models.TriggerTypeRecurring,
		Active: true, Recurrence: &recurrence, NextRunAt: &past,
	}

	future := now.Add(time.Hour)
	notDue := &models.CompoundJournalDefinition{
		ID: "later", Name: "later", TriggerType: models.TriggerTypeRecurring,
		Active: true, Recurrence: &recurrence, NextRunAt: &future,
	}

	require.NoError(t, store.JournalDefinitions().Save(t.Context(), due))
	require.NoError(t, store.JournalDefinitions().Save(t.Context(), notDue))

	found, err := store.JournalDefinitions().DueAt(t.Context(), now)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "due", found[0].ID)
}

func TestJournalDefinitionRepository_RunOnApproval(t *testing.T) {
	store := memory.NewPersistence()

	flagged := &models.CompoundJournalDefinition{
		ID: "flagged", Name: "flagged", TriggerType: models.TriggerTypeManual,
		Active: true, RunOnApproval: true,
	}
	inactive := &models.CompoundJournalDefinition{
		ID: "inactive", Name: "inactive", TriggerType: models.TriggerTypeManual,
		Active: false, RunOnApproval: true,
	}
	plain := &models.CompoundJournalDefinition{
		ID: "plain", Name: "plain", TriggerType: models.TriggerTypeManual,
		Active: true,
	}

	for _, def := range []*models.CompoundJournalDefinition{flagged, inactive, plain} {
		require.NoError(t, store.JournalDefinitions().Save(t.Context(), def))
	}

	found, err := store.JournalDefinitions().RunOnApproval(t.Context())
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "flagged", found[0].ID)
}

func TestEntryRepository_CreateWithLog(t *testing.T) {
	store := memory.NewPersistence()

	entry := &models.JournalEntry{
		ID:     "entry-1",
		Number: "CJ-20240101-abc",
		Status: models.EntryStatusDraft,
	}
	entryID := entry.ID
	log := &models.CompoundJournalExecutionLog{
		ID:             "log-1",
		DefinitionID:   "def-1",
		Status:         models.ExecutionStatusSuccess,
		JournalEntryID: &entryID,
	}

	require.NoError(t, store.Entries().CreateWithLog(t.Context(), entry, log))

	stored, err := store.Entries().ByID(t.Context(), "entry-1")
	require.NoError(t, err)
	assert.Equal(t, "CJ-20240101-abc", stored.Number)

	logs, err := store.ExecutionLogs().ByDefinition(t.Context(), "def-1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "log-1", logs[0].ID)
}
