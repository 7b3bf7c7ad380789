package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/ledgerops/approvia/pkg/models"
	"github.com/ledgerops/approvia/pkg/persistence"
)

// Scheduler fires due journal definitions. Each due definition is claimed
// with a compare-and-swap on its schedule cursor before it runs, so
// concurrent scheduler workers fire it at most once per due tick.
type Scheduler struct {
	persistence persistence.Persistence
	runner      *Runner
	logger      *slog.Logger
}

func NewScheduler(persistence persistence.Persistence, runner *Runner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		persistence: persistence,
		runner:      runner,
		logger:      logger.With("module", "journal_scheduler"),
	}
}

// Tick queries the definitions due at now and runs each one it manages to
// claim. A definition another worker claims first is silently skipped.
// Run failures are logged and do not stop the tick.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) ([]*models.CompoundJournalExecutionLog, error) {
	due, err := s.persistence.JournalDefinitions().DueAt(ctx, now)
	if err != nil {
		return nil, err
	}

	logs := make([]*models.CompoundJournalExecutionLog, 0, len(due))

	for _, def := range due {
		if !def.IsDue(now) {
			continue
		}

		// Advance the cursor before running: a failed run still counts as
		// this tick's firing and must not retry on the next poll.
		def.MarkRan(now)

		if err := s.persistence.JournalDefinitions().ClaimDue(ctx, def); err != nil {
			if persistence.IsVersionConflict(err) {
				continue
			}

			s.logger.ErrorContext(ctx, "Failed to claim due definition",
				"definition_id", def.ID, "error", err)

			continue
		}

		executionLog, err := s.runner.Run(ctx, def.ID, nil, true)
		if err != nil {
			s.logger.ErrorContext(ctx, "Scheduled run failed",
				"definition_id", def.ID, "error", err)

			continue
		}

		logs = append(logs, executionLog)
	}

	return logs, nil
}
