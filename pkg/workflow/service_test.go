package workflow

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerops/approvia/pkg/models"
	"github.com/ledgerops/approvia/pkg/persistence/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func saveRoutingDefinition(t *testing.T, store *memory.Persistence, def *models.WorkflowDefinition) {
	t.Helper()

	require.NoError(t, store.WorkflowDefinitions().Save(t.Context(), def))
}

func paymentDocument(amount int64) models.DocumentRef {
	return models.DocumentRef{
		Type:        models.DocumentTypePaymentVoucher,
		ID:          "doc-1",
		Amount:      decimal.NewFromInt(amount),
		CurrencyID:  "USD",
		InitiatorID: "user-init",
	}
}

func TestService_SubmitForApproval(t *testing.T) {
	store := memory.NewPersistence()
	service := NewService(store, nil, nil, testLogger())

	saveRoutingDefinition(t, store, routingDefinition())

	instance, err := service.SubmitForApproval(t.Context(), paymentDocument(2000))
	require.NoError(t, err)

	assert.Equal(t, models.InstanceStatusInProgress, instance.Status)
	assert.Equal(t, 1, instance.CurrentStepOrder)
	assert.Equal(t, "wf-1", instance.DefinitionID)
	assert.True(t, instance.BaseAmount.Equal(decimal.NewFromInt(2000)))

	// Steps 1 and 2 apply to a branchless 2000 document; both get eager
	// Pending action rows.
	require.Len(t, instance.Actions, 2)
	for _, action := range instance.Actions {
		assert.Equal(t, models.ActionStatusPending, action.Status)
		assert.Equal(t, instance.ID, action.InstanceID)
	}

	stored, err := store.Instances().ByID(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusInProgress, stored.Status)
}

func TestService_SubmitForApproval_NoDefinition(t *testing.T) {
	store := memory.NewPersistence()
	service := NewService(store, nil, nil, testLogger())

	_, err := service.SubmitForApproval(t.Context(), paymentDocument(100))
	assert.ErrorIs(t, err, ErrNoDefinition)
}

func TestService_SubmitForApproval_InvalidDocument(t *testing.T) {
	store := memory.NewPersistence()
	service := NewService(store, nil, nil, testLogger())

	doc := paymentDocument(100)
	doc.ID = ""

	_, err := service.SubmitForApproval(t.Context(), doc)
	assert.Error(t, err)
}

func TestService_SubmitForApproval_AutoApprove(t *testing.T) {
	store := memory.NewPersistence()
	service := NewService(store, nil, nil, testLogger())

	def := routingDefinition()
	// Every step is amount- or branch-gated, so a small branchless
	// document has no applicable steps.
	def.Steps = []models.WorkflowStep{
		{Order: 1, RequiredPermission: "approve_large", MinAmount: decPtr(1000)},
	}
	saveRoutingDefinition(t, store, def)

	instance, err := service.SubmitForApproval(t.Context(), paymentDocument(100))
	require.NoError(t, err)

	assert.Equal(t, models.InstanceStatusApproved, instance.Status)
	assert.Empty(t, instance.Actions)
}

func TestService_SubmitForApproval_BranchPreference(t *testing.T) {
	store := memory.NewPersistence()
	service := NewService(store, nil, nil, testLogger())

	global := routingDefinition()
	saveRoutingDefinition(t, store, global)

	branch := routingDefinition()
	branch.ID = "wf-branch"
	branch.BranchID = strPtr("br-1")
	saveRoutingDefinition(t, store, branch)

	doc := paymentDocument(2000)
	doc.BranchID = strPtr("br-1")

	instance, err := service.SubmitForApproval(t.Context(), doc)
	require.NoError(t, err)
	assert.Equal(t, "wf-branch", instance.DefinitionID)

	// A document on another branch falls back to the global definition.
	other := paymentDocument(2000)
	other.ID = "doc-2"
	other.BranchID = strPtr("br-9")

	instance, err = service.SubmitForApproval(t.Context(), other)
	require.NoError(t, err)
	assert.Equal(t, "wf-1", instance.DefinitionID)
}

type doublingConverter struct{}

func (doublingConverter) ToBaseCurrency(_ context.Context, amount decimal.Decimal, _ string) (decimal.Decimal, error) {
	return amount.Mul(decimal.NewFromInt(2)), nil
}

func TestService_SubmitForApproval_ConvertsAmount(t *testing.T) {
	store := memory.NewPersistence()
	service := NewService(store, nil, doublingConverter{}, testLogger())

	saveRoutingDefinition(t, store, routingDefinition())

	instance, err := service.SubmitForApproval(t.Context(), paymentDocument(600))
	require.NoError(t, err)

	assert.True(t, instance.Amount.Equal(decimal.NewFromInt(600)))
	assert.True(t, instance.BaseAmount.Equal(decimal.NewFromInt(1200)))
	// The 1200 base amount clears step 2's 1000 minimum.
	assert.Len(t, instance.Actions, 2)
}

func TestService_Cancel(t *testing.T) {
	store := memory.NewPersistence()
	service := NewService(store, nil, nil, testLogger())

	saveRoutingDefinition(t, store, routingDefinition())

	instance, err := service.SubmitForApproval(t.Context(), paymentDocument(2000))
	require.NoError(t, err)

	require.NoError(t, service.Cancel(t.Context(), instance.ID))

	stored, err := store.Instances().ByID(t.Context(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCancelled, stored.Status)

	// A terminal instance cannot be cancelled again.
	err = service.Cancel(t.Context(), instance.ID)
	assert.ErrorIs(t, err, ErrStateConflict)
}
