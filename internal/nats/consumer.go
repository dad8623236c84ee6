package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Redelivery schedule for events a tracker nak'd, typically because Postgres was unavailable.
// After the last attempt the event is dropped and the next transfer for the wallet corrects state.
var redeliveryBackoff = []time.Duration{time.Second, 5 * time.Second, 30 * time.Second, 2 * time.Minute, 10 * time.Minute}

// RedeliveryDelay picks the wait before msg is offered again, stepping through the
// schedule by delivery count.
func RedeliveryDelay(msg jetstream.Msg) time.Duration {
	md, err := msg.Metadata()
	if err != nil || md.NumDelivered == 0 {
		return redeliveryBackoff[0]
	}
	i := min(int(md.NumDelivered)-1, len(redeliveryBackoff)-1)
	return redeliveryBackoff[i]
}

// ConsumerManager creates the durable pull consumers background trackers read from.
type ConsumerManager struct {
	js jetstream.JetStream
}

func NewConsumerManager(js jetstream.JetStream) *ConsumerManager {
	return &ConsumerManager{js: js}
}

// EnsureConsumer creates or updates the durable consumer name on stream, filtered to one subject.
// A new consumer starts from the oldest retained event so transfers seen before the first start
// are still applied.
func (cm *ConsumerManager) EnsureConsumer(ctx context.Context, stream, name, filterSubject string) (jetstream.Consumer, error) {
	cfg := jetstream.ConsumerConfig{
		Durable:       name,
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxDeliver:    len(redeliveryBackoff) + 1,
		BackOff:       redeliveryBackoff,
		MaxAckPending: 256,
	}

	consumer, err := cm.js.CreateOrUpdateConsumer(ctx, stream, cfg)
	if err != nil {
		return nil, fmt.Errorf("ensuring consumer %s on %s: %w", name, stream, err)
	}
	return consumer, nil
}
