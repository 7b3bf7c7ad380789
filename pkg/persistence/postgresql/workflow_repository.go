package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerops/approvia/pkg/models"
	"github.com/ledgerops/approvia/pkg/persistence"
)

// WorkflowDefinitionRepository handles workflow definition and step rows.
type WorkflowDefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const definitionColumns = `
	id
  , name
  , document_type
  , branch_id
  , mode
  , active
  , created_at
  , updated_at
`

func (r *WorkflowDefinitionRepository) ByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE id = $1`

	def, err := scanDefinition(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrDefinitionNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
	}

	if err := r.loadSteps(ctx, def); err != nil {
		return nil, err
	}

	return def, nil
}

func (r *WorkflowDefinitionRepository) ActiveByDocumentType(ctx context.Context, docType models.DocumentType) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT ` + definitionColumns + `
		FROM workflow_definitions
		WHERE active AND document_type = $1
		ORDER BY branch_id IS NULL, id
	`

	return r.queryDefinitions(ctx, query, string(docType))
}

func (r *WorkflowDefinitionRepository) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions ORDER BY created_at DESC`

	return r.queryDefinitions(ctx, query)
}

func (r *WorkflowDefinitionRepository) queryDefinitions(ctx context.Context, query string, args ...any) ([]*models.WorkflowDefinition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow definitions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	definitions := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
		}

		definitions = append(definitions, def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow definitions: %w", err)
	}

	for _, def := range definitions {
		if err := r.loadSteps(ctx, def); err != nil {
			return nil, err
		}
	}

	return definitions, nil
}

func (r *WorkflowDefinitionRepository) Save(ctx context.Context, def *models.WorkflowDefinition) error {
	now := time.Now().UTC()

	if def.ID == "" {
		def.ID = uuid.New().String()
	}

	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}

	def.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_definitions (id, name, document_type, branch_id, mode, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			document_type = EXCLUDED.document_type,
			branch_id = EXCLUDED.branch_id,
			mode = EXCLUDED.mode,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`, def.ID, def.Name, string(def.DocumentType), def.BranchID, string(def.Mode), def.Active, def.CreatedAt, def.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save workflow definition: %w", err)
	}

	// Steps are replaced wholesale; a definition owns its steps.
	_, err = tx.ExecContext(ctx, `DELETE FROM workflow_steps WHERE definition_id = $1`, def.ID)
	if err != nil {
		return fmt.Errorf("failed to clear workflow steps: %w", err)
	}

	for i := range def.Steps {
		step := &def.Steps[i]

		if step.ID == "" {
			step.ID = uuid.New().String()
		}

		step.DefinitionID = def.ID

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_steps (id, definition_id, step_order, required_permission, approver_user_id, branch_id, min_amount, max_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, step.ID, step.DefinitionID, step.Order, step.RequiredPermission, step.ApproverUserID, step.BranchID,
			nullDecimal(step.MinAmount), nullDecimal(step.MaxAmount))
		if err != nil {
			return fmt.Errorf("failed to save workflow step %d: %w", step.Order, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit workflow definition: %w", err)
	}

	return nil
}

func (r *WorkflowDefinitionRepository) loadSteps(ctx context.Context, def *models.WorkflowDefinition) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, definition_id, step_order, required_permission, approver_user_id, branch_id, min_amount, max_amount
		FROM workflow_steps
		WHERE definition_id = $1
		ORDER BY step_order
	`, def.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow steps: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	def.Steps = def.Steps[:0]

	for rows.Next() {
		var (
			step     models.WorkflowStep
			minAmt   decimal.NullDecimal
			maxAmt   decimal.NullDecimal
			approver sql.NullString
			branch   sql.NullString
		)

		err := rows.Scan(&step.ID, &step.DefinitionID, &step.Order, &step.RequiredPermission, &approver, &branch, &minAmt, &maxAmt)
		if err != nil {
			return fmt.Errorf("failed to scan workflow step: %w", err)
		}

		step.ApproverUserID = nullableString(approver)
		step.BranchID = nullableString(branch)
		step.MinAmount = nullableDecimal(minAmt)
		step.MaxAmount = nullableDecimal(maxAmt)

		def.Steps = append(def.Steps, step)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating workflow steps: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*models.WorkflowDefinition, error) {
	var (
		def    models.WorkflowDefinition
		branch sql.NullString
	)

	err := row.Scan(&def.ID, &def.Name, &def.DocumentType, &branch, &def.Mode, &def.Active, &def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		return nil, err
	}

	def.BranchID = nullableString(branch)

	return &def, nil
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}

	return &v.String
}

func nullDecimal(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}

	return decimal.NullDecimal{Decimal: *v, Valid: true}
}

func nullableDecimal(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}

	return &v.Decimal
}

func nullableTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}

	return &v.Time
}
