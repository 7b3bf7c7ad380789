package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerops/approvia/pkg/models"
	"github.com/ledgerops/approvia/pkg/persistence"
)

// JournalDefinitionRepository handles compound journal definition rows. The
// template payload is stored as JSONB.
type JournalDefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const journalDefinitionColumns = `
	id
  , name
  , template
  , trigger_type
  , active
  , run_on_approval
  , start_date
  , end_date
  , recurrence
  , recurrence_interval
  , next_run_at
  , last_run_at
  , version
  , created_at
  , updated_at
`

func (r *JournalDefinitionRepository) ByID(ctx context.Context, id string) (*models.CompoundJournalDefinition, error) {
	query := `SELECT ` + journalDefinitionColumns + ` FROM journal_definitions WHERE id = $1`

	def, err := scanJournalDefinition(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.DefinitionError{Op: "ByID", DefinitionID: id, Err: persistence.ErrJournalDefinitionNotFound}
		}

		return nil, &persistence.DefinitionError{Op: "ByID", DefinitionID: id, Err: err}
	}

	return def, nil
}

func (r *JournalDefinitionRepository) List(ctx context.Context) ([]*models.CompoundJournalDefinition, error) {
	query := `SELECT ` + journalDefinitionColumns + ` FROM journal_definitions ORDER BY created_at DESC`

	return r.queryDefinitions(ctx, query)
}

// DueAt returns active definitions whose precomputed cursor has arrived and
// whose validity window contains now.
func (r *JournalDefinitionRepository) DueAt(ctx context.Context, now time.Time) ([]*models.CompoundJournalDefinition, error) {
	query := `
		SELECT ` + journalDefinitionColumns + `
		FROM journal_definitions
		WHERE active
		  AND trigger_type <> 'manual'
		  AND next_run_at IS NOT NULL
		  AND next_run_at <= $1
		  AND (start_date IS NULL OR start_date <= $1)
		  AND (end_date IS NULL OR end_date >= $1)
		ORDER BY next_run_at
	`

	return r.queryDefinitions(ctx, query, now)
}

// RunOnApproval returns active definitions flagged for execution on
// workflow approval.
func (r *JournalDefinitionRepository) RunOnApproval(ctx context.Context) ([]*models.CompoundJournalDefinition, error) {
	query := `
		SELECT ` + journalDefinitionColumns + `
		FROM journal_definitions
		WHERE active AND run_on_approval
		ORDER BY id
	`

	return r.queryDefinitions(ctx, query)
}

func (r *JournalDefinitionRepository) queryDefinitions(ctx context.Context, query string, args ...any) ([]*models.CompoundJournalDefinition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal definitions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	definitions := make([]*models.CompoundJournalDefinition, 0)

	for rows.Next() {
		def, err := scanJournalDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal definition: %w", err)
		}

		definitions = append(definitions, def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal definitions: %w", err)
	}

	return definitions, nil
}

func (r *JournalDefinitionRepository) Save(ctx context.Context, def *models.CompoundJournalDefinition) error {
	now := time.Now().UTC()

	if def.ID == "" {
		def.ID = uuid.New().String()
	}

	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}

	if def.Version == 0 {
		def.Version = 1
	}

	def.UpdatedAt = now

	template, err := json.Marshal(def.Template)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO journal_definitions (
			id, name, template, trigger_type, active, run_on_approval, start_date, end_date,
			recurrence, recurrence_interval, next_run_at, last_run_at,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, def.ID, def.Name, template, string(def.TriggerType), def.Active, def.RunOnApproval, def.StartDate, def.EndDate,
		recurrenceValue(def.Recurrence), def.RecurrenceInterval, def.NextRunAt, def.LastRunAt,
		def.Version, def.CreatedAt, def.UpdatedAt)
	if err != nil {
		return &persistence.DefinitionError{Op: "Save", DefinitionID: def.ID, Err: err}
	}

	return nil
}

func (r *JournalDefinitionRepository) Update(ctx context.Context, def *models.CompoundJournalDefinition) error {
	template, err := json.Marshal(def.Template)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}

	now := time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE journal_definitions
		SET name = $1, template = $2, trigger_type = $3, active = $4, run_on_approval = $5,
			start_date = $6, end_date = $7, recurrence = $8, recurrence_interval = $9,
			next_run_at = $10, last_run_at = $11, version = version + 1, updated_at = $12
		WHERE id = $13 AND version = $14
	`, def.Name, template, string(def.TriggerType), def.Active, def.RunOnApproval,
		def.StartDate, def.EndDate, recurrenceValue(def.Recurrence), def.RecurrenceInterval,
		def.NextRunAt, def.LastRunAt, now, def.ID, def.Version)
	if err != nil {
		return &persistence.DefinitionError{Op: "Update", DefinitionID: def.ID, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return &persistence.DefinitionError{Op: "Update", DefinitionID: def.ID, Err: err}
	}

	if affected == 0 {
		return &persistence.DefinitionError{Op: "Update", DefinitionID: def.ID, Err: persistence.ErrVersionConflict}
	}

	def.Version++
	def.UpdatedAt = now

	return nil
}

// ClaimDue advances only the schedule cursor via compare-and-swap so that
// two scheduler workers can not double-fire the same due definition.
func (r *JournalDefinitionRepository) ClaimDue(ctx context.Context, def *models.CompoundJournalDefinition) error {
	now := time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE journal_definitions
		SET next_run_at = $1, last_run_at = $2, version = version + 1, updated_at = $3
		WHERE id = $4 AND version = $5
	`, def.NextRunAt, def.LastRunAt, now, def.ID, def.Version)
	if err != nil {
		return &persistence.DefinitionError{Op: "ClaimDue", DefinitionID: def.ID, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return &persistence.DefinitionError{Op: "ClaimDue", DefinitionID: def.ID, Err: err}
	}

	if affected == 0 {
		return &persistence.DefinitionError{Op: "ClaimDue", DefinitionID: def.ID, Err: persistence.ErrVersionConflict}
	}

	def.Version++
	def.UpdatedAt = now

	return nil
}

func scanJournalDefinition(row rowScanner) (*models.CompoundJournalDefinition, error) {
	var (
		def        models.CompoundJournalDefinition
		template   []byte
		recurrence sql.NullString
		startDate  sql.NullTime
		endDate    sql.NullTime
		nextRunAt  sql.NullTime
		lastRunAt  sql.NullTime
	)

	err := row.Scan(&def.ID, &def.Name, &template, &def.TriggerType, &def.Active, &def.RunOnApproval,
		&startDate, &endDate, &recurrence, &def.RecurrenceInterval,
		&nextRunAt, &lastRunAt, &def.Version, &def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(template, &def.Template); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template: %w", err)
	}

	if recurrence.Valid {
		rec := models.Recurrence(recurrence.String)
		def.Recurrence = &rec
	}

	def.StartDate = nullableTime(startDate)
	def.EndDate = nullableTime(endDate)
	def.NextRunAt = nullableTime(nextRunAt)
	def.LastRunAt = nullableTime(lastRunAt)

	return &def, nil
}

func recurrenceValue(r *models.Recurrence) any {
	if r == nil {
		return nil
	}

	return string(*r)
}

// ExecutionLogRepository handles immutable execution log rows.
type ExecutionLogRepository struct {
	db *sql.DB
}

func (r *ExecutionLogRepository) Append(ctx context.Context, log *models.CompoundJournalExecutionLog) error {
	return appendLog(ctx, r.db, log)
}

func (r *ExecutionLogRepository) ByDefinition(ctx context.Context, definitionID string) ([]*models.CompoundJournalExecutionLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, definition_id, executed_at, automatic, status, message, journal_entry_id, context_snapshot
		FROM journal_execution_logs
		WHERE definition_id = $1
		ORDER BY executed_at
	`, definitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}

	defer func() { _ = rows.Close() }()

	logs := make([]*models.CompoundJournalExecutionLog, 0)

	for rows.Next() {
		var (
			log      models.CompoundJournalExecutionLog
			entryID  sql.NullString
			snapshot []byte
		)

		err := rows.Scan(&log.ID, &log.DefinitionID, &log.ExecutedAt, &log.Automatic, &log.Status, &log.Message, &entryID, &snapshot)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}

		log.JournalEntryID = nullableString(entryID)

		if len(snapshot) > 0 {
			if err := json.Unmarshal(snapshot, &log.ContextSnapshot); err != nil {
				return nil, fmt.Errorf("failed to unmarshal context snapshot: %w", err)
			}
		}

		logs = append(logs, &log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution logs: %w", err)
	}

	return logs, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func appendLog(ctx context.Context, db execer, log *models.CompoundJournalExecutionLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}

	snapshot, err := json.Marshal(log.ContextSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal context snapshot: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO journal_execution_logs (id, definition_id, executed_at, automatic, status, message, journal_entry_id, context_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, log.ID, log.DefinitionID, log.ExecutedAt, log.Automatic, string(log.Status), log.Message, log.JournalEntryID, snapshot)
	if err != nil {
		return fmt.Errorf("failed to append execution log: %w", err)
	}

	return nil
}

// EntryRepository handles generated journal entries.
type EntryRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *EntryRepository) ByID(ctx context.Context, id string) (*models.JournalEntry, error) {
	var (
		entry       models.JournalEntry
		branch      sql.NullString
		sourceDefID sql.NullString
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, number, status, branch_id, entry_date, description, total_debit, total_credit, source_definition_id, created_at
		FROM journal_entries
		WHERE id = $1
	`, id).Scan(&entry.ID, &entry.Number, &entry.Status, &branch, &entry.Date, &entry.Description,
		&entry.TotalDebit, &entry.TotalCredit, &sourceDefID, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrEntryNotFound
		}

		return nil, fmt.Errorf("failed to scan journal entry: %w", err)
	}

	entry.BranchID = nullableString(branch)
	entry.SourceDefinitionID = nullableString(sourceDefID)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entry_id, account_id, description, cost_center_id, debit, credit
		FROM journal_lines
		WHERE entry_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal lines: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	for rows.Next() {
		var (
			line       models.JournalLine
			costCenter sql.NullString
		)

		err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Description, &costCenter, &line.Debit, &line.Credit)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal line: %w", err)
		}

		line.CostCenterID = nullableString(costCenter)
		entry.Lines = append(entry.Lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal lines: %w", err)
	}

	return &entry, nil
}

// CreateWithLog persists the entry, its lines, and the execution log in one
// transaction. A failure between the writes must not leave an orphaned
// entry or a log with a dangling entry reference.
func (r *EntryRepository) CreateWithLog(ctx context.Context, entry *models.JournalEntry, log *models.CompoundJournalExecutionLog) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO journal_entries (id, number, status, branch_id, entry_date, description, total_debit, total_credit, source_definition_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, entry.ID, entry.Number, string(entry.Status), entry.BranchID, entry.Date, entry.Description,
		entry.TotalDebit, entry.TotalCredit, entry.SourceDefinitionID, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}

	for i := range entry.Lines {
		line := &entry.Lines[i]

		if line.ID == "" {
			line.ID = uuid.New().String()
		}

		line.EntryID = entry.ID

		_, err = tx.ExecContext(ctx, `
			INSERT INTO journal_lines (id, entry_id, account_id, description, cost_center_id, debit, credit)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, line.ID, line.EntryID, line.AccountID, line.Description, line.CostCenterID, line.Debit, line.Credit)
		if err != nil {
			return fmt.Errorf("failed to insert journal line: %w", err)
		}
	}

	if err := appendLog(ctx, tx, log); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit journal entry: %w", err)
	}

	return nil
}
