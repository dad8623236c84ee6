package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/holdgate/holdgate/internal/api"
	"github.com/holdgate/holdgate/internal/auth"
	"github.com/holdgate/holdgate/internal/cache"
	"github.com/holdgate/holdgate/internal/metrics"
)

const (
	maxRequestBody   = 10 << 20
	maxUpstreamError = 64 << 10
	relayBufferSize  = 32 << 10

	modelsCacheKey = "proxy:models"
	modelsCacheTTL = 5 * time.Minute
)

// Handler serves the OpenAI-compatible surface.
type Handler struct {
	controller *Controller
	upstream   Upstream
	store      cache.Store
	timeout    time.Duration
}

// NewHandler bounds every upstream call by timeout. store caches the model list and may be nil.
func NewHandler(controller *Controller, upstream Upstream, store cache.Store, timeout time.Duration) *Handler {
	return &Handler{
		controller: controller,
		upstream:   upstream,
		store:      store,
		timeout:    timeout,
	}
}

// ChatCompletions admits, relays and settles one completion.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFrom(r.Context())
	if p == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		api.HandleError(w, api.NewValidationError("request body too large or unreadable"))
		return
	}

	adm, err := h.controller.Admit(r.Context(), p.UserID, body)
	if err != nil {
		var appErr *api.AppError
		if !errors.As(err, &appErr) {
			slog.Error("admitting completion", "error", err, "user_id", p.UserID)
		}
		api.HandleError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp, err := h.upstream.ChatCompletion(ctx, body)
	if err != nil {
		h.transportFailure(ctx, w, r, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.UpstreamFailuresTotal.WithLabelValues("status").Inc()
		api.HandleError(w, upstreamError(resp))
		return
	}

	// The provider may answer a stream request with a whole JSON completion.
	if isEventStream(resp) {
		h.relayStream(ctx, w, r, resp, adm)
		return
	}
	h.relayJSON(ctx, w, r, resp, adm)
}

func (h *Handler) relayJSON(ctx context.Context, w http.ResponseWriter, r *http.Request, resp *http.Response, adm *Admission) {
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		h.transportFailure(ctx, w, r, err)
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(payload); err != nil {
		slog.Debug("client went away during relay", "error", err)
	}

	usage := Usage{
		PromptTokens:     gjson.GetBytes(payload, "usage.prompt_tokens").Int(),
		CompletionTokens: gjson.GetBytes(payload, "usage.completion_tokens").Int(),
	}

	settleCtx, cancel := detached(r.Context())
	defer cancel()
	h.controller.settleCompletion(settleCtx, adm, usage, modeSync)
}

// relayStream copies the provider stream to the client chunk by chunk, parsing usage on the way.
func (h *Handler) relayStream(ctx context.Context, w http.ResponseWriter, r *http.Request, resp *http.Response, adm *Admission) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	_ = rc.Flush()

	var parser StreamParser
	interrupted := false
	buf := make([]byte, relayBufferSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			_, _ = parser.Write(chunk)
			if _, werr := w.Write(chunk); werr != nil {
				interrupted = true
				break
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				interrupted = true
				break
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			interrupted = true
			break
		}
	}
	_ = parser.Close()

	if msg, failed := parser.Err(); failed {
		metrics.UpstreamFailuresTotal.WithLabelValues("stream_error").Inc()
		slog.Warn("upstream stream reported an error, not billing", "user_id", adm.User.ID, "model", adm.Model, "error", msg)
		return
	}

	// A stream cut by the upstream timeout fails without a debit. A client disconnect still settles.
	if !parser.Done() && errors.Is(ctx.Err(), context.DeadlineExceeded) && r.Context().Err() == nil {
		metrics.UpstreamFailuresTotal.WithLabelValues("timeout").Inc()
		slog.Warn("upstream stream timed out, not billing", "user_id", adm.User.ID, "model", adm.Model, "timeout", h.timeout)
		return
	}

	usage, found := parser.Usage()
	mode := modeStream
	if interrupted || !parser.Done() {
		mode = modeInterrupted
		slog.Warn("stream ended early, settling with usage seen so far",
			"user_id", adm.User.ID,
			"model", adm.Model,
			"usage_found", found,
			"client_gone", r.Context().Err() != nil,
		)
	}

	settleCtx, cancel := detached(r.Context())
	defer cancel()
	h.controller.settleCompletion(settleCtx, adm, usage, mode)
}

// transportFailure answers a request whose upstream call failed before any byte was relayed.
func (h *Handler) transportFailure(ctx context.Context, w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		slog.Debug("client cancelled before upstream answered", "error", err)
		return
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		metrics.UpstreamFailuresTotal.WithLabelValues("timeout").Inc()
		api.HandleError(w, api.NewUpstreamError(http.StatusGatewayTimeout, "upstream provider timed out"))
		return
	}
	metrics.UpstreamFailuresTotal.WithLabelValues("transport").Inc()
	slog.Error("upstream request failed", "error", err)
	api.HandleError(w, api.NewUpstreamError(http.StatusBadGateway, "upstream provider unavailable"))
}

// upstreamError relays a provider error status with its message when one can be parsed.
func upstreamError(resp *http.Response) *api.AppError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamError))

	msg := ""
	if gjson.ValidBytes(raw) {
		if m := gjson.GetBytes(raw, "error.message"); m.Exists() {
			msg = m.String()
		} else if m := gjson.GetBytes(raw, "message"); m.Exists() {
			msg = m.String()
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	return api.NewUpstreamError(resp.StatusCode, msg)
}

func isEventStream(resp *http.Response) bool {
	return strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream")
}

// Models lists the provider's models as {object: "list", data: [...]}.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if cached, err := h.store.Get(r.Context(), modelsCacheKey); err == nil {
			writeModels(w, cached)
			return
		} else if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("models cache read failed", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp, err := h.upstream.Models(ctx)
	if err != nil {
		h.transportFailure(ctx, w, r, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		api.HandleError(w, upstreamError(resp))
		return
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		h.transportFailure(ctx, w, r, err)
		return
	}
	data := gjson.GetBytes(raw, "data")
	if !data.IsArray() {
		api.HandleError(w, api.NewUpstreamError(http.StatusBadGateway, "upstream returned an unexpected model list"))
		return
	}

	list := []byte(`{"object":"list","data":` + data.Raw + `}`)
	if h.store != nil {
		if err := h.store.Set(r.Context(), modelsCacheKey, list, modelsCacheTTL); err != nil {
			slog.Warn("models cache write failed", "error", err)
		}
	}
	writeModels(w, list)
}

func writeModels(w http.ResponseWriter, list []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(list)
}
