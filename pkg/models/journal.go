package models

import (
	"errors"
	"fmt"
	"time"
)

// TriggerType controls how a compound journal definition is executed.
type TriggerType string

const (
	TriggerTypeManual    TriggerType = "manual"
	TriggerTypeOneTime   TriggerType = "one_time"
	TriggerTypeRecurring TriggerType = "recurring"
)

func (t TriggerType) Valid() bool {
	return t == TriggerTypeManual || t == TriggerTypeOneTime || t == TriggerTypeRecurring
}

// Recurrence is the calendar granularity of a recurring definition.
type Recurrence string

const (
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceYearly  Recurrence = "yearly"
)

var (
	ErrInvalidJournalDefinition = errors.New("invalid compound journal definition")
	ErrNoRecurrence             = errors.New("definition has no recurrence")
)

// CompoundJournalDefinition stores a serialized template together with its
// trigger configuration and schedule cursor. NextRunAt is precomputed so
// the scheduler can query due definitions without evaluating recurrence
// rules per tick.
type CompoundJournalDefinition struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name" validate:"required,min=3"`
	Template    CompoundJournalTemplate `json:"template"`
	TriggerType TriggerType             `json:"trigger_type"`
	Active      bool                    `json:"active"`
	// RunOnApproval marks the definition for automatic execution when a
	// workflow instance reaches its Approved state; the template's
	// conditions then gate which approvals actually produce an entry.
	RunOnApproval      bool        `json:"run_on_approval"`
	StartDate          *time.Time  `json:"start_date,omitempty"`
	EndDate            *time.Time  `json:"end_date,omitempty"`
	Recurrence         *Recurrence `json:"recurrence,omitempty"`
	RecurrenceInterval int         `json:"recurrence_interval,omitempty"`
	NextRunAt          *time.Time  `json:"next_run_at,omitempty"`
	LastRunAt          *time.Time  `json:"last_run_at,omitempty"`
	Version            int64       `json:"version"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// Validate checks the definition before it is accepted for storage.
func (d *CompoundJournalDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidJournalDefinition)
	}

	if !d.TriggerType.Valid() {
		return fmt.Errorf("%w: unknown trigger type %q", ErrInvalidJournalDefinition, d.TriggerType)
	}

	if d.TriggerType == TriggerTypeRecurring {
		if d.Recurrence == nil {
			return fmt.Errorf("%w: recurring definition needs a recurrence", ErrInvalidJournalDefinition)
		}

		switch *d.Recurrence {
		case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
		default:
			return fmt.Errorf("%w: unknown recurrence %q", ErrInvalidJournalDefinition, *d.Recurrence)
		}

		if d.RecurrenceInterval < 0 {
			return fmt.Errorf("%w: negative recurrence interval", ErrInvalidJournalDefinition)
		}
	}

	if d.StartDate != nil && d.EndDate != nil && d.EndDate.Before(*d.StartDate) {
		return fmt.Errorf("%w: end date before start date", ErrInvalidJournalDefinition)
	}

	return d.Template.Validate()
}

// NextRunAfter computes the next due timestamp by adding the recurrence
// interval to the reference time. Monthly and yearly additions follow
// calendar arithmetic, so Jan 15 + 1 month is Feb 15.
func (d *CompoundJournalDefinition) NextRunAfter(ref time.Time) (time.Time, error) {
	if d.Recurrence == nil {
		return time.Time{}, ErrNoRecurrence
	}

	interval := d.RecurrenceInterval
	if interval <= 0 {
		interval = 1
	}

	switch *d.Recurrence {
	case RecurrenceDaily:
		return ref.AddDate(0, 0, interval), nil
	case RecurrenceWeekly:
		return ref.AddDate(0, 0, 7*interval), nil
	case RecurrenceMonthly:
		return ref.AddDate(0, interval, 0), nil
	case RecurrenceYearly:
		return ref.AddDate(interval, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown recurrence %q", ErrInvalidJournalDefinition, *d.Recurrence)
	}
}

// InitializeNextRun seeds the schedule cursor for a newly stored
// definition. Manual definitions never participate in scheduler ticks.
func (d *CompoundJournalDefinition) InitializeNextRun(now time.Time) error {
	if d.TriggerType == TriggerTypeManual || d.NextRunAt != nil {
		return nil
	}

	ref := now
	if d.StartDate != nil {
		ref = *d.StartDate
	}

	if d.LastRunAt != nil {
		ref = *d.LastRunAt
	}

	if d.TriggerType == TriggerTypeOneTime || d.LastRunAt == nil && d.StartDate != nil {
		d.NextRunAt = &ref

		return nil
	}

	next, err := d.NextRunAfter(ref)
	if err != nil {
		return err
	}

	d.NextRunAt = &next

	return nil
}

// IsDue reports whether the definition should fire automatically at now:
// the cursor has arrived, the definition is active, and now falls inside
// the validity window when one is set.
func (d *CompoundJournalDefinition) IsDue(now time.Time) bool {
	if !d.Active || d.TriggerType == TriggerTypeManual || d.NextRunAt == nil {
		return false
	}

	if d.NextRunAt.After(now) {
		return false
	}

	if d.StartDate != nil && now.Before(*d.StartDate) {
		return false
	}

	if d.EndDate != nil && now.After(*d.EndDate) {
		return false
	}

	return true
}

// MarkRan advances the schedule cursor after an automatic run, successful
// or not. A one-time definition becomes due-never; a recurring definition
// whose next occurrence falls past EndDate is also left due-never but stays
// available for manual runs.
func (d *CompoundJournalDefinition) MarkRan(now time.Time) {
	ranAt := now
	d.LastRunAt = &ranAt
	d.NextRunAt = nil

	if d.TriggerType != TriggerTypeRecurring {
		return
	}

	next, err := d.NextRunAfter(ranAt)
	if err != nil {
		return
	}

	if d.EndDate != nil && next.After(*d.EndDate) {
		return
	}

	d.NextRunAt = &next
}
