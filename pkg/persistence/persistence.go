// Package persistence provides the data storage abstraction layer for
// workflow and compound journal records.
package persistence

import (
	"context"
	"time"

	"github.com/ledgerops/approvia/pkg/models"
)

// Persistence is the storage contract consumed by the engines. Instances
// and journal definitions carry a version column; Update calls must apply
// an optimistic compare-and-swap on it and return ErrVersionConflict when
// the stored version differs.
type Persistence interface {
	WorkflowDefinitions() WorkflowDefinitionRepository
	Instances() InstanceRepository
	JournalDefinitions() JournalDefinitionRepository
	ExecutionLogs() ExecutionLogRepository
	Entries() EntryRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type WorkflowDefinitionRepository interface {
	ByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	// ActiveByDocumentType returns active definitions for a document type,
	// branch-specific definitions first.
	ActiveByDocumentType(ctx context.Context, docType models.DocumentType) ([]*models.WorkflowDefinition, error)
	Save(ctx context.Context, def *models.WorkflowDefinition) error
	List(ctx context.Context) ([]*models.WorkflowDefinition, error)
}

type InstanceRepository interface {
	// ByID returns the instance with its actions loaded.
	ByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	Create(ctx context.Context, instance *models.WorkflowInstance) error
	// Update persists the instance and its mutated actions, guarded by the
	// instance version. The stored version is incremented on success.
	Update(ctx context.Context, instance *models.WorkflowInstance) error
}

type JournalDefinitionRepository interface {
	ByID(ctx context.Context, id string) (*models.CompoundJournalDefinition, error)
	List(ctx context.Context) ([]*models.CompoundJournalDefinition, error)
	// DueAt returns definitions whose schedule cursor has arrived.
	DueAt(ctx context.Context, now time.Time) ([]*models.CompoundJournalDefinition, error)
	// RunOnApproval returns active definitions flagged to execute when a
	// workflow instance is approved.
	RunOnApproval(ctx context.Context) ([]*models.CompoundJournalDefinition, error)
	Save(ctx context.Context, def *models.CompoundJournalDefinition) error
	Update(ctx context.Context, def *models.CompoundJournalDefinition) error
	// ClaimDue atomically advances the schedule cursor from the observed
	// version, so concurrent scheduler workers fire a due definition at
	// most once. Returns ErrVersionConflict when another worker won.
	ClaimDue(ctx context.Context, def *models.CompoundJournalDefinition) error
}

type ExecutionLogRepository interface {
	Append(ctx context.Context, log *models.CompoundJournalExecutionLog) error
	ByDefinition(ctx context.Context, definitionID string) ([]*models.CompoundJournalExecutionLog, error)
}

type EntryRepository interface {
	ByID(ctx context.Context, id string) (*models.JournalEntry, error)
	// CreateWithLog persists the entry and its execution log as one unit:
	// either both are stored or neither is.
	CreateWithLog(ctx context.Context, entry *models.JournalEntry, log *models.CompoundJournalExecutionLog) error
}
