// Package holdings keeps users' sale history in step with on-chain transfers.
package holdings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/holdgate/holdgate/internal/nats"
)

const consumerName = "holdings-tracker"

// SaleRecorder stores an outbound transfer against the wallet's user.
type SaleRecorder interface {
	RecordTransferOut(ctx context.Context, wallet string, at time.Time) (bool, error)
}

// Consumer listens for transfer events and records sales.
type Consumer struct {
	sales       SaleRecorder
	consumerMgr *inats.ConsumerManager
}

func NewConsumer(sales SaleRecorder, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{
		sales:       sales,
		consumerMgr: consumerMgr,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, consumerName, inats.SubjectTransferEvent)
	if err != nil {
		return err
	}

	slog.Info("holdings consumer started", "consumer", consumerName)

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("holdings consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleEvent(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// Outcome tells the consume loop how to settle a message.
type Outcome int

const (
	Ack Outcome = iota
	// Term drops a message that can never succeed.
	Term
	// Nak asks for redelivery.
	Nak
)

var errMalformed = errors.New("malformed transfer event")

func (c *Consumer) handleEvent(ctx context.Context, msg jetstream.Msg) {
	outcome, err := c.Process(ctx, msg.Data())
	switch outcome {
	case Term:
		slog.Error("holdings consumer: dropping event", "error", err)
		_ = msg.Term()
	case Nak:
		delay := inats.RedeliveryDelay(msg)
		slog.Error("holdings consumer: recording transfer", "error", err, "retry_in", delay)
		_ = msg.NakWithDelay(delay)
	default:
		_ = msg.Ack()
	}
}

// Process applies one transfer event payload.
func (c *Consumer) Process(ctx context.Context, data []byte) (Outcome, error) {
	var event inats.TransferEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return Term, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if !common.IsHexAddress(event.Wallet) || event.BlockTime.IsZero() {
		return Term, fmt.Errorf("%w: wallet %q block_time %v", errMalformed, event.Wallet, event.BlockTime)
	}

	switch strings.ToLower(event.Direction) {
	case inats.DirectionIn:
		return Ack, nil
	case inats.DirectionOut:
	default:
		return Term, fmt.Errorf("%w: direction %q", errMalformed, event.Direction)
	}

	wallet := common.HexToAddress(event.Wallet).Hex()
	found, err := c.sales.RecordTransferOut(ctx, wallet, event.BlockTime)
	if err != nil {
		return Nak, err
	}
	if !found {
		slog.Debug("holdings consumer: transfer from unknown wallet", "wallet", wallet, "tx_hash", event.TxHash)
		return Ack, nil
	}

	slog.Info("holdings consumer: sale recorded", "wallet", wallet, "tx_hash", event.TxHash, "block_time", event.BlockTime)
	return Ack, nil
}
