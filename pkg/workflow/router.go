package workflow

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ledgerops/approvia/pkg/models"
)

// ApplicableSteps returns the definition's steps that gate the given
// document snapshot, in ascending order. The result is deterministic for a
// fixed definition and snapshot; routing decisions are made against the
// instance's snapshotted branch and base amount, never the live document.
func ApplicableSteps(def *models.WorkflowDefinition, branchID *string, baseAmount decimal.Decimal) []models.WorkflowStep {
	steps := make([]models.WorkflowStep, 0, len(def.Steps))

	for _, step := range def.Steps {
		if step.AppliesTo(branchID, baseAmount) {
			steps = append(steps, step)
		}
	}

	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })

	return steps
}

// NextApplicableOrder returns the order of the first applicable step after
// afterOrder. It scans forward rather than incrementing, because step
// orders are sparse and intermediate steps may not apply to this document.
func NextApplicableOrder(def *models.WorkflowDefinition, branchID *string, baseAmount decimal.Decimal, afterOrder int) (int, bool) {
	for _, step := range ApplicableSteps(def, branchID, baseAmount) {
		if step.Order > afterOrder {
			return step.Order, true
		}
	}

	return 0, false
}

// stepAt returns the definition's step with the given order.
func stepAt(def *models.WorkflowDefinition, order int) (models.WorkflowStep, bool) {
	for _, step := range def.Steps {
		if step.Order == order {
			return step, true
		}
	}

	return models.WorkflowStep{}, false
}
