package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstanceStatus is the lifecycle state of one workflow instance.
type InstanceStatus string

const (
	InstanceStatusInProgress InstanceStatus = "in_progress"
	InstanceStatusApproved   InstanceStatus = "approved"
	InstanceStatusRejected   InstanceStatus = "rejected"
	InstanceStatusCancelled  InstanceStatus = "cancelled"
)

// Terminal reports whether no further actions are accepted.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceStatusApproved || s == InstanceStatusRejected || s == InstanceStatusCancelled
}

// ActionStatus is the state of a single step's action row.
type ActionStatus string

const (
	ActionStatusPending  ActionStatus = "pending"
	ActionStatusApproved ActionStatus = "approved"
	ActionStatusRejected ActionStatus = "rejected"
	ActionStatusSkipped  ActionStatus = "skipped"
)

// Decision is the verb an actor records against the current step.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionSkip    Decision = "skip"
)

func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject || d == DecisionSkip
}

// WorkflowInstance is one document submission flowing through a definition.
// It snapshots the document fields the router gates on, so later edits to
// the document or definition don't change an in-flight route.
type WorkflowInstance struct {
	ID               string           `json:"id"`
	DefinitionID     string           `json:"definition_id"`
	DocumentType     DocumentType     `json:"document_type"`
	DocumentID       string           `json:"document_id"`
	Amount           decimal.Decimal  `json:"amount"`
	BaseAmount       decimal.Decimal  `json:"base_amount"`
	CurrencyID       string           `json:"currency_id"`
	BranchID         *string          `json:"branch_id,omitempty"`
	Status           InstanceStatus   `json:"status"`
	CurrentStepOrder int              `json:"current_step_order"`
	InitiatorID      string           `json:"initiator_id"`
	Actions          []WorkflowAction `json:"actions"`
	Version          int64            `json:"version"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// WorkflowAction is one row per applicable step per instance, created
// Pending at submission and mutated exactly once by the recorder. Rows left
// Pending after a rejection are the audit trail of steps never reached.
type WorkflowAction struct {
	ID         string       `json:"id"`
	InstanceID string       `json:"instance_id"`
	StepOrder  int          `json:"step_order"`
	Status     ActionStatus `json:"status"`
	ActorID    *string      `json:"actor_id,omitempty"`
	Notes      string       `json:"notes,omitempty"`
	DecidedAt  *time.Time   `json:"decided_at,omitempty"`
}

// ActionAt returns the action row for the given step order.
func (i *WorkflowInstance) ActionAt(stepOrder int) *WorkflowAction {
	for idx := range i.Actions {
		if i.Actions[idx].StepOrder == stepOrder {
			return &i.Actions[idx]
		}
	}

	return nil
}
