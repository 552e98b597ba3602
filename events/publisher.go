// Package events publishes ledger lifecycle events to NATS for consumption
// by reporting and notification services.
//
// Subject convention: <prefix>.<event_type>, e.g. ledger.gl.approval_approved.
//
// All publish operations are non-fatal — errors are logged but never
// propagated to the caller, so event delivery failures never interrupt
// ledger operations.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pesio-ai/be-gl-ledger/errors"
	"github.com/pesio-ai/be-gl-ledger/logger"
)

// Event types emitted by the ledger core.
const (
	EventVoucherCreated    = "voucher_created"
	EventVoucherPosted     = "voucher_posted"
	EventVoucherCancelled  = "voucher_cancelled"
	EventApprovalRequested = "approval_requested"
	EventApprovalAdvanced  = "approval_advanced"
	EventApprovalApproved  = "approval_approved"
	EventApprovalRejected  = "approval_rejected"
	EventApprovalDelegated = "approval_delegated"
)

// Event is the JSON schema published to NATS.
type Event struct {
	EventType    string         `json:"event_type"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	ActorID      string         `json:"actor_id,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// Publisher publishes ledger events. A nil Publisher is valid and drops
// everything, so services can be wired without a broker.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	log    *logger.Logger
}

// Connect dials NATS and returns a ready publisher.
func Connect(url, subjectPrefix string, log *logger.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to connect to NATS")
	}
	return &Publisher{conn: conn, prefix: subjectPrefix, log: log}, nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	_ = p.conn.Drain()
}

// Publish emits one event. Failures are logged and swallowed.
func (p *Publisher) Publish(ctx context.Context, eventType, resourceType, resourceID, actorID string, payload map[string]any) {
	if p == nil || p.conn == nil {
		return
	}

	event := &Event{
		EventType:    eventType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		ActorID:      actorID,
		OccurredAt:   time.Now().UTC(),
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("events: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("resource_id", resourceID).
			Msg("events: failed to publish (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("resource_id", resourceID).
		Msg("events: published")
}
