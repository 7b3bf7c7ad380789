package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ConditionOperator is one of the ten comparison operators a compound
// journal condition may use against the run context.
type ConditionOperator string

const (
	OperatorEquals             ConditionOperator = "equals"
	OperatorNotEquals          ConditionOperator = "not_equals"
	OperatorGreaterThan        ConditionOperator = "greater_than"
	OperatorGreaterThanOrEqual ConditionOperator = "greater_than_or_equal"
	OperatorLessThan           ConditionOperator = "less_than"
	OperatorLessThanOrEqual    ConditionOperator = "less_than_or_equal"
	OperatorContains           ConditionOperator = "contains"
	OperatorNotContains        ConditionOperator = "not_contains"
	OperatorExists             ConditionOperator = "exists"
	OperatorNotExists          ConditionOperator = "not_exists"
)

func (op ConditionOperator) Valid() bool {
	switch op {
	case OperatorEquals, OperatorNotEquals,
		OperatorGreaterThan, OperatorGreaterThanOrEqual,
		OperatorLessThan, OperatorLessThanOrEqual,
		OperatorContains, OperatorNotContains,
		OperatorExists, OperatorNotExists:
		return true
	default:
		return false
	}
}

// CompoundJournalCondition is a single predicate over the run context.
// Conditions on a template are AND-combined.
type CompoundJournalCondition struct {
	ContextKey string            `json:"context_key" validate:"required"`
	Operator   ConditionOperator `json:"operator"    validate:"required"`
	Value      string            `json:"value"`
}

// ValueKind discriminates the tagged TemplateValue variants.
type ValueKind string

const (
	ValueKindFixed      ValueKind = "fixed"
	ValueKindContext    ValueKind = "context"
	ValueKindExpression ValueKind = "expression"
)

// TemplateValue is a tagged variant: a fixed literal, a context lookup, or
// a restricted arithmetic expression. Exactly one of the payload fields is
// meaningful for a given Kind.
type TemplateValue struct {
	Kind       ValueKind        `json:"kind"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	ContextKey string           `json:"context_key,omitempty"`
	Expression string           `json:"expression,omitempty"`
}

// Zero reports whether the value can only ever resolve to zero, used to
// short-cut validation of the debit/credit pair.
func (v TemplateValue) Zero() bool {
	return v.Kind == "" || (v.Kind == ValueKindFixed && (v.Amount == nil || v.Amount.IsZero()))
}

// FixedValue builds a fixed-literal template value.
func FixedValue(amount decimal.Decimal) TemplateValue {
	return TemplateValue{Kind: ValueKindFixed, Amount: &amount}
}

// ContextValue builds a context-lookup template value.
func ContextValue(key string) TemplateValue {
	return TemplateValue{Kind: ValueKindContext, ContextKey: key}
}

// ExpressionValue builds an expression template value.
func ExpressionValue(src string) TemplateValue {
	return TemplateValue{Kind: ValueKindExpression, Expression: src}
}

// CompoundJournalLineTemplate expands into one posting line. Exactly one of
// the debit/credit pair is expected to resolve nonzero; a line where both
// resolve to zero is omitted from the generated entry.
type CompoundJournalLineTemplate struct {
	AccountID    string        `json:"account_id" validate:"required"`
	Description  *string       `json:"description,omitempty"`
	CostCenterID *string       `json:"cost_center_id,omitempty"`
	Debit        TemplateValue `json:"debit"`
	Credit       TemplateValue `json:"credit"`
}

// CompoundJournalTemplate is the deserialized payload of a compound journal
// definition.
type CompoundJournalTemplate struct {
	PostingStatus  EntryStatus                   `json:"posting_status"`
	BranchID       *string                       `json:"branch_id,omitempty"`
	Conditions     []CompoundJournalCondition    `json:"conditions,omitempty"`
	Lines          []CompoundJournalLineTemplate `json:"lines"`
	DefaultContext map[string]string             `json:"default_context,omitempty"`
}

var ErrInvalidTemplate = errors.New("invalid compound journal template")

func (v TemplateValue) validate() error {
	switch v.Kind {
	case "", ValueKindFixed:
		return nil
	case ValueKindContext:
		if v.ContextKey == "" {
			return fmt.Errorf("%w: context value without a context key", ErrInvalidTemplate)
		}

		return nil
	case ValueKindExpression:
		if v.Expression == "" {
			return fmt.Errorf("%w: expression value without an expression", ErrInvalidTemplate)
		}

		return nil
	default:
		return fmt.Errorf("%w: unknown value kind %q", ErrInvalidTemplate, v.Kind)
	}
}

// Validate checks the template's structural invariants before any run
// starts. Failures here are reported to the caller and never logged as an
// execution outcome.
func (t *CompoundJournalTemplate) Validate() error {
	if len(t.Lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", ErrInvalidTemplate)
	}

	for _, cond := range t.Conditions {
		if cond.ContextKey == "" {
			return fmt.Errorf("%w: condition without a context key", ErrInvalidTemplate)
		}

		if !cond.Operator.Valid() {
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidTemplate, cond.Operator)
		}
	}

	for i, line := range t.Lines {
		if line.AccountID == "" {
			return fmt.Errorf("%w: line %d has no account", ErrInvalidTemplate, i)
		}

		if err := line.Debit.validate(); err != nil {
			return fmt.Errorf("line %d debit: %w", i, err)
		}

		if err := line.Credit.validate(); err != nil {
			return fmt.Errorf("line %d credit: %w", i, err)
		}

		if line.Debit.Zero() && line.Credit.Zero() {
			return fmt.Errorf("%w: line %d can never post a nonzero amount", ErrInvalidTemplate, i)
		}
	}

	return nil
}
