package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
)

const (
	// AuditTopic carries every audit entry written by the services.
	AuditTopic = "certify.audit"
	// ReconciliationTopic carries anchors that have no local record.
	ReconciliationTopic = "certify.reconciliation"
)

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishAudit publishes an audit entry keyed by its id
func (p *WatermillPublisher) PublishAudit(ctx context.Context, entry *core.AuditEntry) error {
	id := entry.ID
	if id == "" {
		id = watermill.NewUUID()
	}
	return p.publish(ctx, AuditTopic, id, entry)
}

// PublishOrphanedAnchor publishes an anchor that needs reconciliation
func (p *WatermillPublisher) PublishOrphanedAnchor(ctx context.Context, orphan ports.OrphanedAnchor) error {
	return p.publish(ctx, ReconciliationTopic, watermill.NewUUID(), orphan)
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, id string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishAudit(context.Context, *core.AuditEntry) error { return nil }

func (NopPublisher) PublishOrphanedAnchor(context.Context, ports.OrphanedAnchor) error { return nil }
