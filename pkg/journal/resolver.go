package journal

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ledgerops/approvia/pkg/models"
)

// ResolveValue resolves one template value against the run context. The
// returned notes describe degraded resolutions (missing keys, unparsable
// values, division by zero); they are surfaced in the execution log
// message, never as a run failure. Absence is non-fatal and resolves to
// zero.
func ResolveValue(value models.TemplateValue, ctx *Context) (decimal.Decimal, []string) {
	switch value.Kind {
	case "", models.ValueKindFixed:
		if value.Amount == nil {
			return decimal.Zero, nil
		}

		return *value.Amount, nil

	case models.ValueKindContext:
		amount, ok := ctx.Decimal(value.ContextKey)
		if !ok {
			return decimal.Zero, []string{fmt.Sprintf("context key %q missing or non-numeric, resolved to zero", value.ContextKey)}
		}

		return amount, nil

	case models.ValueKindExpression:
		expr, err := ParseExpression(value.Expression)
		if err != nil {
			return decimal.Zero, []string{fmt.Sprintf("expression %q failed to parse, resolved to zero", value.Expression)}
		}

		amount, degraded := expr.Eval(ctx)
		if degraded {
			return amount, []string{fmt.Sprintf("expression %q degraded during evaluation", value.Expression)}
		}

		return amount, nil

	default:
		return decimal.Zero, []string{fmt.Sprintf("unknown value kind %q, resolved to zero", value.Kind)}
	}
}

// ValidateTemplate performs the full pre-run validation of a template:
// the structural checks plus a parse of every expression value. Failures
// here are reported to the caller before any run starts; no execution log
// is written.
func ValidateTemplate(template *models.CompoundJournalTemplate) error {
	if err := template.Validate(); err != nil {
		return err
	}

	for i, line := range template.Lines {
		for side, value := range map[string]models.TemplateValue{"debit": line.Debit, "credit": line.Credit} {
			if value.Kind != models.ValueKindExpression {
				continue
			}

			if _, err := ParseExpression(value.Expression); err != nil {
				return fmt.Errorf("line %d %s: %w", i, side, err)
			}
		}
	}

	return nil
}
