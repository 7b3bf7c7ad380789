package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recurrencePtr(r Recurrence) *Recurrence {
	return &r
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func validTemplate() CompoundJournalTemplate {
	return CompoundJournalTemplate{
		Lines: []CompoundJournalLineTemplate{
			{AccountID: "acc-1", Debit: FixedValue(decimal.NewFromInt(100))},
			{AccountID: "acc-2", Credit: FixedValue(decimal.NewFromInt(100))},
		},
	}
}

func TestCompoundJournalDefinition_NextRunAfter_Monthly(t *testing.T) {
	def := &CompoundJournalDefinition{
		Recurrence:         recurrencePtr(RecurrenceMonthly),
		RecurrenceInterval: 1,
	}

	ref := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	next, err := def.NextRunAfter(ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), next)
}

func TestCompoundJournalDefinition_NextRunAfter_Intervals(t *testing.T) {
	ref := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		recurrence Recurrence
		interval   int
		expected   time.Time
	}{
		{"daily", RecurrenceDaily, 1, ref.AddDate(0, 0, 1)},
		{"every third day", RecurrenceDaily, 3, ref.AddDate(0, 0, 3)},
		{"weekly", RecurrenceWeekly, 1, ref.AddDate(0, 0, 7)},
		{"biweekly", RecurrenceWeekly, 2, ref.AddDate(0, 0, 14)},
		{"yearly", RecurrenceYearly, 1, ref.AddDate(1, 0, 0)},
		{"zero interval defaults to one", RecurrenceMonthly, 0, ref.AddDate(0, 1, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := &CompoundJournalDefinition{
				Recurrence:         recurrencePtr(tt.recurrence),
				RecurrenceInterval: tt.interval,
			}

			next, err := def.NextRunAfter(ref)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, next)
		})
	}
}

func TestCompoundJournalDefinition_NextRunAfter_NoRecurrence(t *testing.T) {
	def := &CompoundJournalDefinition{}

	_, err := def.NextRunAfter(time.Now())
	assert.ErrorIs(t, err, ErrNoRecurrence)
}

func TestCompoundJournalDefinition_IsDue(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	def := &CompoundJournalDefinition{
		TriggerType: TriggerTypeRecurring,
		Active:      true,
		NextRunAt:   timePtr(now.Add(-time.Minute)),
	}

	assert.True(t, def.IsDue(now))

	def.Active = false
	assert.False(t, def.IsDue(now))

	def.Active = true
	def.NextRunAt = timePtr(now.Add(time.Minute))
	assert.False(t, def.IsDue(now))

	def.NextRunAt = timePtr(now.Add(-time.Minute))
	def.EndDate = timePtr(now.Add(-time.Hour))
	assert.False(t, def.IsDue(now))
}

func TestCompoundJournalDefinition_IsDue_ManualNever(t *testing.T) {
	now := time.Now().UTC()

	def := &CompoundJournalDefinition{
		TriggerType: TriggerTypeManual,
		Active:      true,
		NextRunAt:   timePtr(now.Add(-time.Hour)),
	}

	assert.False(t, def.IsDue(now))
}

func TestCompoundJournalDefinition_MarkRan_Recurring(t *testing.T) {
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	def := &CompoundJournalDefinition{
		TriggerType:        TriggerTypeRecurring,
		Active:             true,
		Recurrence:         recurrencePtr(RecurrenceMonthly),
		RecurrenceInterval: 1,
		NextRunAt:          timePtr(now),
	}

	def.MarkRan(now)

	require.NotNil(t, def.LastRunAt)
	assert.Equal(t, now, *def.LastRunAt)
	require.NotNil(t, def.NextRunAt)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), *def.NextRunAt)
}

func TestCompoundJournalDefinition_MarkRan_OneTime(t *testing.T) {
	now := time.Now().UTC()

	def := &CompoundJournalDefinition{
		TriggerType: TriggerTypeOneTime,
		Active:      true,
		NextRunAt:   timePtr(now),
	}

	def.MarkRan(now)

	assert.Nil(t, def.NextRunAt)
	require.NotNil(t, def.LastRunAt)
}

func TestCompoundJournalDefinition_MarkRan_PastEndDate(t *testing.T) {
	now := time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC)

	def := &CompoundJournalDefinition{
		TriggerType:        TriggerTypeRecurring,
		Active:             true,
		Recurrence:         recurrencePtr(RecurrenceMonthly),
		RecurrenceInterval: 1,
		NextRunAt:          timePtr(now),
		EndDate:            timePtr(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)),
	}

	def.MarkRan(now)

	assert.Nil(t, def.NextRunAt)
}

func TestCompoundJournalDefinition_InitializeNextRun(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	def := &CompoundJournalDefinition{
		TriggerType: TriggerTypeOneTime,
		StartDate:   timePtr(start),
	}

	require.NoError(t, def.InitializeNextRun(now))
	require.NotNil(t, def.NextRunAt)
	assert.Equal(t, start, *def.NextRunAt)

	manual := &CompoundJournalDefinition{TriggerType: TriggerTypeManual}
	require.NoError(t, manual.InitializeNextRun(now))
	assert.Nil(t, manual.NextRunAt)
}

func TestCompoundJournalDefinition_Validate(t *testing.T) {
	def := &CompoundJournalDefinition{
		Name:        "Monthly rent accrual",
		TriggerType: TriggerTypeRecurring,
		Recurrence:  recurrencePtr(RecurrenceMonthly),
		Template:    validTemplate(),
	}

	require.NoError(t, def.Validate())

	def.Recurrence = nil
	assert.ErrorIs(t, def.Validate(), ErrInvalidJournalDefinition)

	def.Recurrence = recurrencePtr(Recurrence("hourly"))
	assert.ErrorIs(t, def.Validate(), ErrInvalidJournalDefinition)

	def.Recurrence = recurrencePtr(RecurrenceMonthly)
	def.StartDate = timePtr(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	def.EndDate = timePtr(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, def.Validate(), ErrInvalidJournalDefinition)
}
