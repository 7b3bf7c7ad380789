// Package events defines event types published on workflow and journal
// lifecycle transitions.
package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerops/approvia/pkg/models"
)

type EventType string

const Topic = "approvia.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowSubmittedEvent EventType = "workflow.submitted"
	WorkflowApprovedEvent  EventType = "workflow.approved"
	WorkflowRejectedEvent  EventType = "workflow.rejected"
	WorkflowCancelledEvent EventType = "workflow.cancelled"
	JournalExecutedEvent   EventType = "journal.executed"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkflowSubmitted fires when a document submission creates an instance.
type WorkflowSubmitted struct {
	BaseEvent

	InstanceID   string              `json:"instance_id"`
	DocumentType models.DocumentType `json:"document_type"`
	DocumentID   string              `json:"document_id"`
	InitiatorID  string              `json:"initiator_id"`
}

func (e WorkflowSubmitted) GetType() EventType {
	return WorkflowSubmittedEvent
}

// WorkflowApproved fires when an instance reaches its Approved terminal
// state. Document fields are carried so journal runs triggered by the
// approval can seed their context without re-reading the document.
type WorkflowApproved struct {
	BaseEvent

	InstanceID     string              `json:"instance_id"`
	DocumentType   models.DocumentType `json:"document_type"`
	DocumentID     string              `json:"document_id"`
	BaseAmount     decimal.Decimal     `json:"base_amount"`
	BranchID       *string             `json:"branch_id,omitempty"`
	DocumentFields map[string]string   `json:"document_fields,omitempty"`
}

func (e WorkflowApproved) GetType() EventType {
	return WorkflowApprovedEvent
}

type WorkflowRejected struct {
	BaseEvent

	InstanceID   string              `json:"instance_id"`
	DocumentType models.DocumentType `json:"document_type"`
	DocumentID   string              `json:"document_id"`
	ActorID      string              `json:"actor_id"`
	Notes        string              `json:"notes,omitempty"`
}

func (e WorkflowRejected) GetType() EventType {
	return WorkflowRejectedEvent
}

type WorkflowCancelled struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
}

func (e WorkflowCancelled) GetType() EventType {
	return WorkflowCancelledEvent
}

// JournalExecuted fires after every compound journal run, whatever the outcome.
type JournalExecuted struct {
	BaseEvent

	DefinitionID   string                 `json:"definition_id"`
	ExecutionLogID string                 `json:"execution_log_id"`
	Status         models.ExecutionStatus `json:"status"`
	JournalEntryID *string                `json:"journal_entry_id,omitempty"`
	Automatic      bool                   `json:"automatic"`
}

func (e JournalExecuted) GetType() EventType {
	return JournalExecutedEvent
}
