// Package memory provides an in-memory persistence implementation used by
// tests and local development. It enforces the same optimistic version
// semantics as the PostgreSQL implementation.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerops/approvia/pkg/models"
	"github.com/ledgerops/approvia/pkg/persistence"
)

type Persistence struct {
	mu sync.RWMutex

	definitions        map[string]*models.WorkflowDefinition
	instances          map[string]*models.WorkflowInstance
	journalDefinitions map[string]*models.CompoundJournalDefinition
	executionLogs      map[string][]*models.CompoundJournalExecutionLog
	entries            map[string]*models.JournalEntry
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{
		definitions:        make(map[string]*models.WorkflowDefinition),
		instances:          make(map[string]*models.WorkflowInstance),
		journalDefinitions: make(map[string]*models.CompoundJournalDefinition),
		executionLogs:      make(map[string][]*models.CompoundJournalExecutionLog),
		entries:            make(map[string]*models.JournalEntry),
	}
}

func (p *Persistence) WorkflowDefinitions() persistence.WorkflowDefinitionRepository {
	return &workflowDefinitionRepository{store: p}
}

func (p *Persistence) Instances() persistence.InstanceRepository {
	return &instanceRepository{store: p}
}

func (p *Persistence) JournalDefinitions() persistence.JournalDefinitionRepository {
	return &journalDefinitionRepository{store: p}
}

func (p *Persistence) ExecutionLogs() persistence.ExecutionLogRepository {
	return &executionLogRepository{store: p}
}

func (p *Persistence) Entries() persistence.EntryRepository {
	return &entryRepository{store: p}
}

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }

func (p *Persistence) Close(_ context.Context) error { return nil }

// clone deep-copies a record via JSON so callers never share memory with
// the store.
func clone[T any](src *T) *T {
	raw, err := json.Marshal(src)
	if err != nil {
		panic(fmt.Sprintf("memory persistence: failed to marshal record: %v", err))
	}

	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic(fmt.Sprintf("memory persistence: failed to unmarshal record: %v", err))
	}

	return out
}

type workflowDefinitionRepository struct {
	store *Persistence
}

func (r *workflowDefinitionRepository) ByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	def, ok := r.store.definitions[id]
	if !ok {
		return nil, persistence.ErrDefinitionNotFound
	}

	return clone(def), nil
}

func (r *workflowDefinitionRepository) ActiveByDocumentType(_ context.Context, docType models.DocumentType) ([]*models.WorkflowDefinition, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	matches := make([]*models.WorkflowDefinition, 0)

	for _, def := range r.store.definitions {
		if def.Active && def.DocumentType == docType {
			matches = append(matches, clone(def))
		}
	}

	// Branch-specific definitions take precedence over global ones.
	sort.SliceStable(matches, func(i, j int) bool {
		if (matches[i].BranchID != nil) != (matches[j].BranchID != nil) {
			return matches[i].BranchID != nil
		}

		return matches[i].ID < matches[j].ID
	})

	return matches, nil
}

func (r *workflowDefinitionRepository) Save(_ context.Context, def *models.WorkflowDefinition) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if def.ID == "" {
		def.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}

	def.UpdatedAt = now
	r.store.definitions[def.ID] = clone(def)

	return nil
}

func (r *workflowDefinitionRepository) List(_ context.Context) ([]*models.WorkflowDefinition, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*models.WorkflowDefinition, 0, len(r.store.definitions))
	for _, def := range r.store.definitions {
		out = append(out, clone(def))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

type instanceRepository struct {
	store *Persistence
}

func (r *instanceRepository) ByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	instance, ok := r.store.instances[id]
	if !ok {
		return nil, persistence.NewInstanceError("ByID", id, persistence.ErrInstanceNotFound)
	}

	return clone(instance), nil
}

func (r *instanceRepository) Create(_ context.Context, instance *models.WorkflowInstance) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.instances[instance.ID]; exists {
		return persistence.NewInstanceError("Create", instance.ID, persistence.ErrAlreadyExists)
	}

	now := time.Now().UTC()
	instance.CreatedAt = now
	instance.UpdatedAt = now

	if instance.Version == 0 {
		instance.Version = 1
	}

	r.store.instances[instance.ID] = clone(instance)

	return nil
}

func (r *instanceRepository) Update(_ context.Context, instance *models.WorkflowInstance) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.instances[instance.ID]
	if !ok {
		return persistence.NewInstanceError("Update", instance.ID, persistence.ErrInstanceNotFound)
	}

	if stored.Version != instance.Version {
		return persistence.NewInstanceError("Update", instance.ID, persistence.ErrVersionConflict)
	}

	instance.Version++
	instance.UpdatedAt = time.Now().UTC()
	r.store.instances[instance.ID] = clone(instance)

	return nil
}

type journalDefinitionRepository struct {
	store *Persistence
}

func (r *journalDefinitionRepository) ByID(_ context.Context, id string) (*models.CompoundJournalDefinition, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	def, ok := r.store.journalDefinitions[id]
	if !ok {
		return nil, &persistence.DefinitionError{Op: "ByID", DefinitionID: id, Err: persistence.ErrJournalDefinitionNotFound}
	}

	return clone(def), nil
}

func (r *journalDefinitionRepository) List(_ context.Context) ([]*models.CompoundJournalDefinition, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*models.CompoundJournalDefinition, 0, len(r.store.journalDefinitions))
	for _, def := range r.store.journalDefinitions {
		out = append(out, clone(def))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (r *journalDefinitionRepository) DueAt(_ context.Context, now time.Time) ([]*models.CompoundJournalDefinition, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	due := make([]*models.CompoundJournalDefinition, 0)

	for _, def := range r.store.journalDefinitions {
		if def.IsDue(now) {
			due = append(due, clone(def))
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })

	return due, nil
}

func (r *journalDefinitionRepository) RunOnApproval(_ context.Context) ([]*models.CompoundJournalDefinition, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*models.CompoundJournalDefinition, 0)

	for _, def := range r.store.journalDefinitions {
		if def.Active && def.RunOnApproval {
			out = append(out, clone(def))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (r *journalDefinitionRepository) Save(_ context.Context, def *models.CompoundJournalDefinition) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if def.ID == "" {
		def.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}

	def.UpdatedAt = now

	if def.Version == 0 {
		def.Version = 1
	}

	r.store.journalDefinitions[def.ID] = clone(def)

	return nil
}

func (r *journalDefinitionRepository) Update(_ context.Context, def *models.CompoundJournalDefinition) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.journalDefinitions[def.ID]
	if !ok {
		return &persistence.DefinitionError{Op: "Update", DefinitionID: def.ID, Err: persistence.ErrJournalDefinitionNotFound}
	}

	if stored.Version != def.Version {
		return &persistence.DefinitionError{Op: "Update", DefinitionID: def.ID, Err: persistence.ErrVersionConflict}
	}

	def.Version++
	def.UpdatedAt = time.Now().UTC()
	r.store.journalDefinitions[def.ID] = clone(def)

	return nil
}

func (r *journalDefinitionRepository) ClaimDue(_ context.Context, def *models.CompoundJournalDefinition) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.journalDefinitions[def.ID]
	if !ok {
		return &persistence.DefinitionError{Op: "ClaimDue", DefinitionID: def.ID, Err: persistence.ErrJournalDefinitionNotFound}
	}

	if stored.Version != def.Version {
		return &persistence.DefinitionError{Op: "ClaimDue", DefinitionID: def.ID, Err: persistence.ErrVersionConflict}
	}

	stored.NextRunAt = def.NextRunAt
	stored.LastRunAt = def.LastRunAt
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	def.Version = stored.Version

	return nil
}

type executionLogRepository struct {
	store *Persistence
}

func (r *executionLogRepository) Append(_ context.Context, log *models.CompoundJournalExecutionLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.executionLogs[log.DefinitionID] = append(r.store.executionLogs[log.DefinitionID], clone(log))

	return nil
}

func (r *executionLogRepository) ByDefinition(_ context.Context, definitionID string) ([]*models.CompoundJournalExecutionLog, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	logs := r.store.executionLogs[definitionID]

	out := make([]*models.CompoundJournalExecutionLog, 0, len(logs))
	for _, log := range logs {
		out = append(out, clone(log))
	}

	return out, nil
}

type entryRepository struct {
	store *Persistence
}

func (r *entryRepository) ByID(_ context.Context, id string) (*models.JournalEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	entry, ok := r.store.entries[id]
	if !ok {
		return nil, persistence.ErrEntryNotFound
	}

	return clone(entry), nil
}

func (r *entryRepository) CreateWithLog(_ context.Context, entry *models.JournalEntry, log *models.CompoundJournalExecutionLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.entries[entry.ID]; exists {
		return persistence.ErrAlreadyExists
	}

	r.store.entries[entry.ID] = clone(entry)
	r.store.executionLogs[log.DefinitionID] = append(r.store.executionLogs[log.DefinitionID], clone(log))

	return nil
}
