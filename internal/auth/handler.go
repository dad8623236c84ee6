package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/holdgate/holdgate/internal/api"
)

type Handler struct {
	authSvc  *Service
	validate *validator.Validate
}

func NewHandler(authSvc *Service) *Handler {
	return &Handler{
		authSvc:  authSvc,
		validate: validator.New(),
	}
}

type NonceRequest struct {
	Wallet string `json:"wallet" validate:"required"`
}

type ConnectRequest struct {
	Wallet    string `json:"wallet" validate:"required"`
	Signature string `json:"signature" validate:"required,hexadecimal"`
	Message   string `json:"message" validate:"required,max=1024"`
}

type connectUser struct {
	ID             uuid.UUID `json:"id"`
	Wallet         string    `json:"wallet"`
	CreatedAt      time.Time `json:"createdAt"`
	IsDiamondHands bool      `json:"isDiamondHands"`
}

type connectResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      connectUser `json:"user"`
}

func (h *Handler) Nonce(w http.ResponseWriter, r *http.Request) {
	var req NonceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	challenge, err := h.authSvc.RequestChallenge(req.Wallet)
	if err != nil {
		api.HandleError(w, mapError(err))
		return
	}

	api.JSON(w, http.StatusOK, challenge)
}

func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	session, err := h.authSvc.Connect(r.Context(), req.Wallet, req.Signature, req.Message)
	if err != nil {
		appErr := mapError(err)
		if appErr == api.ErrInternalServer {
			slog.Error("connecting wallet", "error", err)
		}
		api.HandleError(w, appErr)
		return
	}

	api.JSON(w, http.StatusOK, connectResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User: connectUser{
			ID:             session.User.ID,
			Wallet:         session.User.WalletAddress,
			CreatedAt:      session.User.CreatedAt,
			IsDiamondHands: session.User.IsDiamondHands,
		},
	})
}

func mapError(err error) *api.AppError {
	switch {
	case errors.Is(err, ErrInvalidWallet):
		return api.ErrInvalidWallet
	case errors.Is(err, ErrMalformedChallenge):
		return api.NewValidationError("malformed challenge message")
	case errors.Is(err, ErrWalletMismatch):
		return api.NewValidationError("challenge message does not match wallet")
	case errors.Is(err, ErrExpiredChallenge):
		return api.NewValidationError("challenge expired, request a new one")
	case errors.Is(err, ErrFutureChallenge):
		return api.NewValidationError("challenge timestamp is in the future")
	case errors.Is(err, ErrInvalidSignature):
		return api.ErrInvalidSignature
	default:
		return api.ErrInternalServer
	}
}
