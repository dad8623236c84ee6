package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher emits gateway events. Each event carries a message ID so a retried publish
// inside the stream's duplicate window is stored once.
type Publisher struct {
	js jetstream.JetStream
}

func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishUsageEvent announces a settled completion, deduplicated by usage log ID.
func (p *Publisher) PublishUsageEvent(ctx context.Context, event UsageEvent) error {
	return p.publish(ctx, SubjectUsageEvent, "usage-"+event.ID.String(), event)
}

// PublishTransferEvent announces a token movement of a tracked wallet, deduplicated by
// transaction, wallet and direction. The chain indexer and tests use it.
func (p *Publisher) PublishTransferEvent(ctx context.Context, event TransferEvent) error {
	return p.publish(ctx, SubjectTransferEvent, TransferMsgID(event), event)
}

// TransferMsgID identifies one side of a transfer.
func TransferMsgID(event TransferEvent) string {
	return strings.ToLower("transfer-" + event.TxHash + "-" + event.Wallet + "-" + event.Direction)
}

func (p *Publisher) publish(ctx context.Context, subject, msgID string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	if _, err := p.js.Publish(ctx, subject, payload, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
