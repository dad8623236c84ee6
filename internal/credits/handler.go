package credits

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/holdgate/holdgate/internal/api"
	"github.com/holdgate/holdgate/internal/auth"
	"github.com/holdgate/holdgate/internal/users"
)

// UserLookup resolves the session principal to a stored user.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*users.User, error)
}

// Handler serves the credit endpoints.
type Handler struct {
	engine *Engine
	users  UserLookup
}

func NewHandler(engine *Engine, userLookup UserLookup) *Handler {
	return &Handler{engine: engine, users: userLookup}
}

type creditsResponse struct {
	Balance        float64   `json:"balance"`
	Daily          float64   `json:"daily"`
	Used           float64   `json:"used"`
	Remaining      float64   `json:"remaining"`
	Multiplier     float64   `json:"multiplier"`
	IsDiamondHands bool      `json:"isDiamondHands"`
	ResetsAt       time.Time `json:"resetsAt"`
}

// GetCredits returns the caller's credit snapshot.
func (h *Handler) GetCredits(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFrom(r.Context())
	if p == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	user, err := h.users.GetByID(r.Context(), p.UserID)
	if err != nil {
		slog.Error("credits: loading user", "error", err, "user_id", p.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if user == nil {
		api.HandleError(w, api.ErrInvalidToken)
		return
	}

	info, err := h.engine.CreditInfoForUser(r.Context(), user)
	if err != nil {
		slog.Error("credits: computing credit info", "error", err, "user_id", user.ID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, creditsResponse{
		Balance:        info.Balance,
		Daily:          info.Daily,
		Used:           info.Used,
		Remaining:      info.Remaining,
		Multiplier:     info.Multiplier,
		IsDiamondHands: user.IsDiamondHands,
		ResetsAt:       h.engine.ResetsAt(),
	})
}

// ListUsage returns the caller's usage log, newest first.
func (h *Handler) ListUsage(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFrom(r.Context())
	if p == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	params := parseListParams(r)

	entries, total, err := h.engine.ListUsage(r.Context(), p.UserID, params)
	if err != nil {
		slog.Error("credits: listing usage", "error", err, "user_id", p.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, entries, total, params.Page, params.PageSize)
}

func parseListParams(r *http.Request) ListParams {
	params := DefaultListParams()
	q := r.URL.Query()

	if p := q.Get("page"); p != "" {
		if page, err := strconv.Atoi(p); err == nil && page > 0 {
			params.Page = page
		}
	}
	if ps := q.Get("page_size"); ps != "" {
		if pageSize, err := strconv.Atoi(ps); err == nil && pageSize > 0 && pageSize <= 100 {
			params.PageSize = pageSize
		}
	}
	if from := q.Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			params.From = &t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			params.To = &t
		}
	}

	return params
}
