package journal

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ledgerops/approvia/pkg/models"
)

// EvaluateConditions applies the AND-combined condition gate against the
// run context. An empty list evaluates to true. Evaluation short-circuits
// on the first failing condition; conditions are pure, so ordering never
// affects the outcome.
func EvaluateConditions(conditions []models.CompoundJournalCondition, ctx *Context) bool {
	for _, condition := range conditions {
		if !evaluateCondition(condition, ctx) {
			return false
		}
	}

	return true
}

func evaluateCondition(condition models.CompoundJournalCondition, ctx *Context) bool {
	value, present := ctx.Lookup(condition.ContextKey)

	switch condition.Operator {
	case models.OperatorExists:
		return present
	case models.OperatorNotExists:
		return !present
	case models.OperatorEquals:
		return strings.TrimSpace(value) == strings.TrimSpace(condition.Value)
	case models.OperatorNotEquals:
		return strings.TrimSpace(value) != strings.TrimSpace(condition.Value)
	case models.OperatorContains:
		return strings.Contains(value, condition.Value)
	case models.OperatorNotContains:
		return !strings.Contains(value, condition.Value)
	case models.OperatorGreaterThan, models.OperatorGreaterThanOrEqual,
		models.OperatorLessThan, models.OperatorLessThanOrEqual:
		return evaluateNumeric(condition, value, present)
	default:
		return false
	}
}

// evaluateNumeric compares both sides as decimals. A condition referencing
// an absent or non-numeric key fails rather than erroring.
func evaluateNumeric(condition models.CompoundJournalCondition, raw string, present bool) bool {
	if !present {
		return false
	}

	left, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return false
	}

	right, err := decimal.NewFromString(strings.TrimSpace(condition.Value))
	if err != nil {
		return false
	}

	switch condition.Operator {
	case models.OperatorGreaterThan:
		return left.GreaterThan(right)
	case models.OperatorGreaterThanOrEqual:
		return left.GreaterThanOrEqual(right)
	case models.OperatorLessThan:
		return left.LessThan(right)
	case models.OperatorLessThanOrEqual:
		return left.LessThanOrEqual(right)
	default:
		return false
	}
}
