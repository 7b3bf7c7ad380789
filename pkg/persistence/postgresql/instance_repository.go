package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerops/approvia/pkg/models"
	"github.com/ledgerops/approvia/pkg/persistence"
)

// InstanceRepository handles workflow instance and action rows.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *InstanceRepository) ByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	query := `
		SELECT
			id
		  , definition_id
		  , document_type
		  , document_id
		  , amount
		  , base_amount
		  , currency_id
		  , branch_id
		  , status
		  , current_step_order
		  , initiator_id
		  , version
		  , created_at
		  , updated_at
		FROM workflow_instances
		WHERE id = $1
	`

	var (
		instance models.WorkflowInstance
		branch   sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&instance.ID, &instance.DefinitionID, &instance.DocumentType, &instance.DocumentID,
		&instance.Amount, &instance.BaseAmount, &instance.CurrencyID, &branch,
		&instance.Status, &instance.CurrentStepOrder, &instance.InitiatorID,
		&instance.Version, &instance.CreatedAt, &instance.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewInstanceError("ByID", id, persistence.ErrInstanceNotFound)
		}

		return nil, persistence.NewInstanceError("ByID", id, err)
	}

	instance.BranchID = nullableString(branch)

	if err := r.loadActions(ctx, &instance); err != nil {
		return nil, persistence.NewInstanceError("ByID", id, err)
	}

	return &instance, nil
}

func (r *InstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	now := time.Now().UTC()
	instance.CreatedAt = now
	instance.UpdatedAt = now

	if instance.Version == 0 {
		instance.Version = 1
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewInstanceError("Create", instance.ID, err)
	}

	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_instances (
			id, definition_id, document_type, document_id, amount, base_amount,
			currency_id, branch_id, status, current_step_order, initiator_id,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, instance.ID, instance.DefinitionID, string(instance.DocumentType), instance.DocumentID,
		instance.Amount, instance.BaseAmount, instance.CurrencyID, instance.BranchID,
		string(instance.Status), instance.CurrentStepOrder, instance.InitiatorID,
		instance.Version, instance.CreatedAt, instance.UpdatedAt)
	if err != nil {
		return persistence.NewInstanceError("Create", instance.ID, err)
	}

	for i := range instance.Actions {
		if err := upsertAction(ctx, tx, &instance.Actions[i]); err != nil {
			return persistence.NewInstanceError("Create", instance.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistence.NewInstanceError("Create", instance.ID, err)
	}

	return nil
}

// Update persists the instance and its actions guarded by the optimistic
// version column. Two concurrent approvers racing on the same instance can
// not both advance it; the loser observes ErrVersionConflict.
func (r *InstanceRepository) Update(ctx context.Context, instance *models.WorkflowInstance) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewInstanceError("Update", instance.ID, err)
	}

	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	result, err := tx.ExecContext(ctx, `
		UPDATE workflow_instances
		SET status = $1, current_step_order = $2, version = version + 1, updated_at = $3
		WHERE id = $4 AND version = $5
	`, string(instance.Status), instance.CurrentStepOrder, now, instance.ID, instance.Version)
	if err != nil {
		return persistence.NewInstanceError("Update", instance.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewInstanceError("Update", instance.ID, err)
	}

	if affected == 0 {
		return persistence.NewInstanceError("Update", instance.ID, persistence.ErrVersionConflict)
	}

	for i := range instance.Actions {
		if err := upsertAction(ctx, tx, &instance.Actions[i]); err != nil {
			return persistence.NewInstanceError("Update", instance.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistence.NewInstanceError("Update", instance.ID, err)
	}

	instance.Version++
	instance.UpdatedAt = now

	return nil
}

func upsertAction(ctx context.Context, tx *sql.Tx, action *models.WorkflowAction) error {
	if action.ID == "" {
		action.ID = uuid.New().String()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO workflow_actions (id, instance_id, step_order, status, actor_id, notes, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (instance_id, step_order) DO UPDATE SET
			status = EXCLUDED.status,
			actor_id = EXCLUDED.actor_id,
			notes = EXCLUDED.notes,
			decided_at = EXCLUDED.decided_at
	`, action.ID, action.InstanceID, action.StepOrder, string(action.Status), action.ActorID, action.Notes, action.DecidedAt)
	if err != nil {
		return fmt.Errorf("failed to save action for step %d: %w", action.StepOrder, err)
	}

	return nil
}

func (r *InstanceRepository) loadActions(ctx context.Context, instance *models.WorkflowInstance) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, instance_id, step_order, status, actor_id, notes, decided_at
		FROM workflow_actions
		WHERE instance_id = $1
		ORDER BY step_order
	`, instance.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow actions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	instance.Actions = instance.Actions[:0]

	for rows.Next() {
		var (
			action    models.WorkflowAction
			actor     sql.NullString
			decidedAt sql.NullTime
		)

		err := rows.Scan(&action.ID, &action.InstanceID, &action.StepOrder, &action.Status, &actor, &action.Notes, &decidedAt)
		if err != nil {
			return fmt.Errorf("failed to scan workflow action: %w", err)
		}

		action.ActorID = nullableString(actor)
		action.DecidedAt = nullableTime(decidedAt)

		instance.Actions = append(instance.Actions, action)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating workflow actions: %w", err)
	}

	return nil
}
