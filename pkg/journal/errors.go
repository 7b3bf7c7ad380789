package journal

import (
	"errors"
	"fmt"
)

// ErrValidation marks pre-run failures. A run that fails validation writes
// no execution log; Skipped and Failed are recorded outcomes, not errors.
var ErrValidation = errors.New("journal definition validation failed")

// ValidationError reports a definition that was rejected before any run
// side effect took place.
type ValidationError struct {
	DefinitionID string
	Err          error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("journal definition %s: validation failed: %v", e.DefinitionID, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsValidation checks if an error is a pre-run validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
