// Package postgresql provides the PostgreSQL persistence implementation for
// workflow and compound journal records.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/ledgerops/approvia/pkg/persistence"
	"github.com/ledgerops/approvia/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	definitionRepo *WorkflowDefinitionRepository
	instanceRepo   *InstanceRepository
	journalRepo    *JournalDefinitionRepository
	logRepo        *ExecutionLogRepository
	entryRepo      *EntryRepository
}

// NewPersistence connects, runs migrations, and returns a ready persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:             database,
		logger:         logger,
		definitionRepo: &WorkflowDefinitionRepository{db: database, logger: logger},
		instanceRepo:   &InstanceRepository{db: database, logger: logger},
		journalRepo:    &JournalDefinitionRepository{db: database, logger: logger},
		logRepo:        &ExecutionLogRepository{db: database},
		entryRepo:      &EntryRepository{db: database, logger: logger},
	}, nil
}

func (p *Persistence) WorkflowDefinitions() persistence.WorkflowDefinitionRepository {
	return p.definitionRepo
}

func (p *Persistence) Instances() persistence.InstanceRepository {
	return p.instanceRepo
}

func (p *Persistence) JournalDefinitions() persistence.JournalDefinitionRepository {
	return p.journalRepo
}

func (p *Persistence) ExecutionLogs() persistence.ExecutionLogRepository {
	return p.logRepo
}

func (p *Persistence) Entries() persistence.EntryRepository {
	return p.entryRepo
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflow_definitions (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				document_type TEXT NOT NULL,
				branch_id TEXT,
				mode TEXT NOT NULL DEFAULT 'linear',
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE IF NOT EXISTS workflow_steps (
				id TEXT PRIMARY KEY,
				definition_id TEXT NOT NULL REFERENCES workflow_definitions(id) ON DELETE CASCADE,
				step_order INTEGER NOT NULL,
				required_permission TEXT NOT NULL DEFAULT '',
				approver_user_id TEXT,
				branch_id TEXT,
				min_amount NUMERIC(18,4),
				max_amount NUMERIC(18,4),
				UNIQUE (definition_id, step_order)
			);

			CREATE TABLE IF NOT EXISTS workflow_instances (
				id TEXT PRIMARY KEY,
				definition_id TEXT NOT NULL REFERENCES workflow_definitions(id),
				document_type TEXT NOT NULL,
				document_id TEXT NOT NULL,
				amount NUMERIC(18,4) NOT NULL,
				base_amount NUMERIC(18,4) NOT NULL,
				currency_id TEXT NOT NULL,
				branch_id TEXT,
				status TEXT NOT NULL,
				current_step_order INTEGER NOT NULL DEFAULT 0,
				initiator_id TEXT NOT NULL,
				version BIGINT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_workflow_instances_document
				ON workflow_instances(document_type, document_id);

			CREATE TABLE IF NOT EXISTS workflow_actions (
				id TEXT PRIMARY KEY,
				instance_id TEXT NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				step_order INTEGER NOT NULL,
				status TEXT NOT NULL,
				actor_id TEXT,
				notes TEXT NOT NULL DEFAULT '',
				decided_at TIMESTAMP WITH TIME ZONE,
				UNIQUE (instance_id, step_order)
			);

			CREATE TABLE IF NOT EXISTS journal_definitions (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				template JSONB NOT NULL,
				trigger_type TEXT NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				run_on_approval BOOLEAN NOT NULL DEFAULT FALSE,
				start_date TIMESTAMP WITH TIME ZONE,
				end_date TIMESTAMP WITH TIME ZONE,
				recurrence TEXT,
				recurrence_interval INTEGER NOT NULL DEFAULT 0,
				next_run_at TIMESTAMP WITH TIME ZONE,
				last_run_at TIMESTAMP WITH TIME ZONE,
				version BIGINT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_journal_definitions_next_run
				ON journal_definitions(next_run_at) WHERE active;

			CREATE TABLE IF NOT EXISTS journal_entries (
				id TEXT PRIMARY KEY,
				number TEXT NOT NULL,
				status TEXT NOT NULL,
				branch_id TEXT,
				entry_date TIMESTAMP WITH TIME ZONE NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				total_debit NUMERIC(18,4) NOT NULL,
				total_credit NUMERIC(18,4) NOT NULL,
				source_definition_id TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE IF NOT EXISTS journal_lines (
				id TEXT PRIMARY KEY,
				entry_id TEXT NOT NULL REFERENCES journal_entries(id) ON DELETE CASCADE,
				account_id TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				cost_center_id TEXT,
				debit NUMERIC(18,4) NOT NULL,
				credit NUMERIC(18,4) NOT NULL
			);

			CREATE TABLE IF NOT EXISTS journal_execution_logs (
				id TEXT PRIMARY KEY,
				definition_id TEXT NOT NULL REFERENCES journal_definitions(id) ON DELETE CASCADE,
				executed_at TIMESTAMP WITH TIME ZONE NOT NULL,
				automatic BOOLEAN NOT NULL,
				status TEXT NOT NULL,
				message TEXT NOT NULL DEFAULT '',
				journal_entry_id TEXT,
				context_snapshot JSONB
			);

			CREATE INDEX IF NOT EXISTS idx_journal_execution_logs_definition
				ON journal_execution_logs(definition_id, executed_at);
		`,
	}
}
