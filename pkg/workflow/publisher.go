package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/ledgerops/approvia/pkg/eventbus"
	"github.com/ledgerops/approvia/pkg/events"
	"github.com/ledgerops/approvia/pkg/models"
)

// eventPublisher publishes workflow lifecycle events. Publication is best
// effort: a broker failure is logged, never surfaced to the caller, because
// the state transition has already been persisted.
type eventPublisher struct {
	bus    eventbus.EventBus
	logger *slog.Logger
}

func (p *eventPublisher) base(eventType events.EventType) events.BaseEvent {
	return events.BaseEvent{
		ID:        p.bus.GenerateID(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

func (p *eventPublisher) publish(ctx context.Context, key string, event eventbus.Event) {
	if p.bus == nil {
		return
	}

	if err := p.bus.Publish(ctx, key, event); err != nil {
		p.logger.WarnContext(ctx, "Failed to publish workflow event",
			"event_type", event.GetType(), "error", err)
	}
}

func (p *eventPublisher) submitted(ctx context.Context, instance *models.WorkflowInstance) {
	if p.bus == nil {
		return
	}

	p.publish(ctx, instance.ID, events.WorkflowSubmitted{
		BaseEvent:    p.base(events.WorkflowSubmittedEvent),
		InstanceID:   instance.ID,
		DocumentType: instance.DocumentType,
		DocumentID:   instance.DocumentID,
		InitiatorID:  instance.InitiatorID,
	})
}

func (p *eventPublisher) approved(ctx context.Context, instance *models.WorkflowInstance, fields map[string]string) {
	if p.bus == nil {
		return
	}

	p.publish(ctx, instance.ID, events.WorkflowApproved{
		BaseEvent:      p.base(events.WorkflowApprovedEvent),
		InstanceID:     instance.ID,
		DocumentType:   instance.DocumentType,
		DocumentID:     instance.DocumentID,
		BaseAmount:     instance.BaseAmount,
		BranchID:       instance.BranchID,
		DocumentFields: fields,
	})
}

func (p *eventPublisher) rejected(ctx context.Context, instance *models.WorkflowInstance, actorID, notes string) {
	if p.bus == nil {
		return
	}

	p.publish(ctx, instance.ID, events.WorkflowRejected{
		BaseEvent:    p.base(events.WorkflowRejectedEvent),
		InstanceID:   instance.ID,
		DocumentType: instance.DocumentType,
		DocumentID:   instance.DocumentID,
		ActorID:      actorID,
		Notes:        notes,
	})
}

func (p *eventPublisher) cancelled(ctx context.Context, instance *models.WorkflowInstance) {
	if p.bus == nil {
		return
	}

	p.publish(ctx, instance.ID, events.WorkflowCancelled{
		BaseEvent:  p.base(events.WorkflowCancelledEvent),
		InstanceID: instance.ID,
	})
}
