package keys

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/holdgate/holdgate/internal/api"
	"github.com/holdgate/holdgate/internal/auth"
)

type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

type activeKeyResponse struct {
	Key *APIKey `json:"key"`
}

type issuedKeyResponse struct {
	ID        uuid.UUID `json:"id"`
	Key       string    `json:"key"`
	Prefix    string    `json:"prefix"`
	CreatedAt time.Time `json:"createdAt"`
}

// Get returns the caller's active credential metadata, or null.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFrom(r.Context())
	if p == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	key, err := h.manager.Active(r.Context(), p.UserID)
	if err != nil {
		slog.Error("loading active api key", "error", err, "user_id", p.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, activeKeyResponse{Key: key})
}

// Create issues a new credential, replacing any active one. The plaintext appears only here.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFrom(r.Context())
	if p == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	issued, err := h.manager.Issue(r.Context(), p.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			api.HandleError(w, api.ErrInvalidToken)
			return
		}
		slog.Error("issuing api key", "error", err, "user_id", p.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, issuedKeyResponse{
		ID:        issued.Key.ID,
		Key:       issued.Plaintext,
		Prefix:    issued.Key.Prefix,
		CreatedAt: issued.Key.CreatedAt,
	})
}

// Delete revokes the caller's credentials.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFrom(r.Context())
	if p == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if _, err := h.manager.Revoke(r.Context(), p.UserID); err != nil {
		if errors.Is(err, ErrNoActiveKey) {
			api.HandleError(w, api.NewNotFoundError("no active api key"))
			return
		}
		slog.Error("revoking api keys", "error", err, "user_id", p.UserID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, map[string]bool{"success": true})
}
