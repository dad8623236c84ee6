package holdings

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inats "github.com/holdgate/holdgate/internal/nats"
)

type fakeSales struct {
	known map[string]bool
	err   error
	calls []string
	at    []time.Time
}

func (f *fakeSales) RecordTransferOut(_ context.Context, wallet string, at time.Time) (bool, error) {
	f.calls = append(f.calls, wallet)
	f.at = append(f.at, at)
	if f.err != nil {
		return false, f.err
	}
	return f.known[wallet], nil
}

const rawWallet = "0xde709f2102306220921060314715629080e2fb77"

func payload(t *testing.T, event inats.TransferEvent) []byte {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return data
}

func TestProcess(t *testing.T) {
	blockTime := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	checksummed := common.HexToAddress(rawWallet).Hex()

	tests := []struct {
		name      string
		data      []byte
		sales     *fakeSales
		want      Outcome
		wantCalls int
	}{
		{
			name:      "outbound for known wallet",
			data:      payload(t, inats.TransferEvent{Wallet: rawWallet, Direction: "out", Amount: "10", TxHash: "0x1", BlockTime: blockTime}),
			sales:     &fakeSales{known: map[string]bool{checksummed: true}},
			want:      Ack,
			wantCalls: 1,
		},
		{
			name:      "outbound for unknown wallet",
			data:      payload(t, inats.TransferEvent{Wallet: rawWallet, Direction: "OUT", BlockTime: blockTime}),
			sales:     &fakeSales{},
			want:      Ack,
			wantCalls: 1,
		},
		{
			name:  "inbound ignored",
			data:  payload(t, inats.TransferEvent{Wallet: rawWallet, Direction: "in", BlockTime: blockTime}),
			sales: &fakeSales{},
			want:  Ack,
		},
		{
			name:  "not json",
			data:  []byte(`{`),
			sales: &fakeSales{},
			want:  Term,
		},
		{
			name:  "bad wallet",
			data:  payload(t, inats.TransferEvent{Wallet: "nope", Direction: "out", BlockTime: blockTime}),
			sales: &fakeSales{},
			want:  Term,
		},
		{
			name:  "missing block time",
			data:  payload(t, inats.TransferEvent{Wallet: rawWallet, Direction: "out"}),
			sales: &fakeSales{},
			want:  Term,
		},
		{
			name:  "unknown direction",
			data:  payload(t, inats.TransferEvent{Wallet: rawWallet, Direction: "sideways", BlockTime: blockTime}),
			sales: &fakeSales{},
			want:  Term,
		},
		{
			name:      "store error redelivers",
			data:      payload(t, inats.TransferEvent{Wallet: rawWallet, Direction: "out", BlockTime: blockTime}),
			sales:     &fakeSales{err: errors.New("db down")},
			want:      Nak,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConsumer(tt.sales, nil)
			got, err := c.Process(context.Background(), tt.data)
			assert.Equal(t, tt.want, got)
			if tt.want == Ack {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
			require.Len(t, tt.sales.calls, tt.wantCalls)
			if tt.wantCalls > 0 {
				assert.Equal(t, checksummed, tt.sales.calls[0])
				assert.True(t, blockTime.Equal(tt.sales.at[0]))
			}
		})
	}
}
