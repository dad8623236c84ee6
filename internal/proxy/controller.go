package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/holdgate/holdgate/internal/api"
	"github.com/holdgate/holdgate/internal/clock"
	"github.com/holdgate/holdgate/internal/credits"
	"github.com/holdgate/holdgate/internal/metrics"
	inats "github.com/holdgate/holdgate/internal/nats"
	"github.com/holdgate/holdgate/internal/pricing"
	"github.com/holdgate/holdgate/internal/users"
)

// settleTimeout bounds a settlement that runs after the client has gone.
const settleTimeout = 10 * time.Second

// Settlement modes, used as metric labels.
const (
	modeSync        = "sync"
	modeStream      = "stream"
	modeInterrupted = "stream_interrupted"
)

// CreditEngine is the part of the credit engine the controller needs.
type CreditEngine interface {
	CreditInfoForUser(ctx context.Context, user *users.User) (credits.Info, error)
	Settle(ctx context.Context, s credits.Settlement) error
}

type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*users.User, error)
}

// UsagePublisher announces settled completions.
type UsagePublisher interface {
	PublishUsageEvent(ctx context.Context, event inats.UsageEvent) error
}

// Controller runs admission before dispatch and settlement after.
type Controller struct {
	engine    CreditEngine
	users     UserReader
	publisher UsagePublisher
	clock     clock.Clock
}

// NewController wires the controller. publisher may be nil.
func NewController(engine CreditEngine, userReader UserReader, publisher UsagePublisher, clk clock.Clock) *Controller {
	return &Controller{
		engine:    engine,
		users:     userReader,
		publisher: publisher,
		clock:     clk,
	}
}

// Admission is an admitted request, carried through to settlement.
type Admission struct {
	User     *users.User
	Model    string
	Stream   bool
	Info     credits.Info
	Estimate float64
}

// Admit validates a completion request body and checks it against the caller's remaining credit.
func (c *Controller) Admit(ctx context.Context, userID uuid.UUID, body []byte) (*Admission, error) {
	if len(body) == 0 {
		return nil, api.NewValidationError("request body is required")
	}
	if !gjson.ValidBytes(body) {
		return nil, api.NewValidationError("request body must be valid JSON")
	}

	model := gjson.GetBytes(body, "model")
	if model.Type != gjson.String || model.String() == "" {
		return nil, api.NewValidationError("model is required")
	}
	messages := gjson.GetBytes(body, "messages")
	if !messages.IsArray() {
		return nil, api.NewValidationError("messages must be an array")
	}

	user, err := c.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if user == nil {
		return nil, api.ErrInvalidAPIKey
	}

	info, err := c.engine.CreditInfoForUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("computing credit info: %w", err)
	}

	if info.Remaining <= 0 {
		metrics.AdmissionsTotal.WithLabelValues("no_credit").Inc()
		return nil, api.ErrInsufficientCredits.WithDetails(map[string]any{
			"remaining": info.Remaining,
			"daily":     info.Daily,
			"used":      info.Used,
		})
	}

	estimate := pricing.Estimate(model.String(),
		pricing.EstimateInputTokens([]byte(messages.Raw)),
		outputCap(body))
	if estimate > info.Remaining {
		metrics.AdmissionsTotal.WithLabelValues("over_estimate").Inc()
		return nil, api.ErrInsufficientCredits.WithDetails(map[string]any{
			"estimated_cost": estimate,
			"remaining":      info.Remaining,
		})
	}

	metrics.AdmissionsTotal.WithLabelValues("admitted").Inc()
	return &Admission{
		User:     user,
		Model:    model.String(),
		Stream:   gjson.GetBytes(body, "stream").Bool(),
		Info:     info,
		Estimate: estimate,
	}, nil
}

// outputCap is the request's output token limit, or the default when it sets none.
func outputCap(body []byte) int64 {
	for _, field := range []string{"max_tokens", "max_completion_tokens"} {
		if v := gjson.GetBytes(body, field); v.Type == gjson.Number && v.Int() > 0 {
			return v.Int()
		}
	}
	return pricing.DefaultOutputTokens
}

// settleCompletion debits the actual cost of a delivered completion and logs it.
// Failures are logged and counted; the response has already been sent.
func (c *Controller) settleCompletion(ctx context.Context, adm *Admission, usage Usage, mode string) {
	cost := pricing.Cost(adm.Model, usage.PromptTokens, usage.CompletionTokens)
	entry := credits.UsageLogEntry{
		ID:           uuid.New(),
		UserID:       adm.User.ID,
		Model:        adm.Model,
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
		Cost:         cost,
		Streamed:     mode != modeSync,
		CreatedAt:    c.clock.Now().UTC(),
	}

	err := c.engine.Settle(ctx, credits.Settlement{
		Entry:     entry,
		Allocated: adm.Info.Daily,
		Balance:   adm.Info.Balance,
	})
	if err != nil {
		metrics.SettlementFailuresTotal.Inc()
		slog.Error("settlement failed",
			"error", err,
			"user_id", entry.UserID,
			"model", entry.Model,
			"cost", cost,
			"input_tokens", entry.InputTokens,
			"output_tokens", entry.OutputTokens,
		)
		return
	}

	metrics.SettlementsTotal.WithLabelValues(mode).Inc()
	metrics.SettledCostUSD.Add(cost)
	slog.Debug("completion settled", "user_id", entry.UserID, "model", entry.Model, "cost", cost, "mode", mode)

	if c.publisher == nil {
		return
	}
	event := inats.UsageEvent{
		ID:           entry.ID,
		UserID:       entry.UserID,
		Model:        entry.Model,
		InputTokens:  entry.InputTokens,
		OutputTokens: entry.OutputTokens,
		Cost:         entry.Cost,
		Streamed:     entry.Streamed,
		Timestamp:    entry.CreatedAt,
	}
	if err := c.publisher.PublishUsageEvent(ctx, event); err != nil {
		slog.Warn("publishing usage event", "error", err, "usage_id", entry.ID)
	}
}

// detached returns a context that outlives the request for settlement writes.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}
