package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_NonceAndConnect(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(&now)
	h := NewHandler(svc)
	s := newSigner(t)

	rec := httptest.NewRecorder()
	h.Nonce(rec, httptest.NewRequest(http.MethodPost, "/auth/nonce", strings.NewReader(`{"wallet":"`+s.wallet+`"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var c Challenge
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))

	body, _ := json.Marshal(ConnectRequest{Wallet: s.wallet, Signature: s.sign(t, c.Message), Message: c.Message})
	rec = httptest.NewRecorder()
	h.Connect(rec, httptest.NewRequest(http.MethodPost, "/auth/connect", strings.NewReader(string(body))))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token string `json:"token"`
		User  struct {
			Wallet         string `json:"wallet"`
			IsDiamondHands bool   `json:"isDiamondHands"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, s.wallet, resp.User.Wallet)
	assert.True(t, resp.User.IsDiamondHands)
}

func TestHandler_Errors(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(&now)
	h := NewHandler(svc)
	s := newSigner(t)
	c := BuildChallenge(s.wallet, now.Add(-10*time.Minute))

	stale, _ := json.Marshal(ConnectRequest{Wallet: s.wallet, Signature: s.sign(t, c.Message), Message: c.Message})
	fresh := BuildChallenge(s.wallet, now)
	forged, _ := json.Marshal(ConnectRequest{Wallet: s.wallet, Signature: newSigner(t).sign(t, fresh.Message), Message: fresh.Message})

	tests := []struct {
		name     string
		call     http.HandlerFunc
		body     string
		wantCode int
		wantType string
	}{
		{"nonce bad json", h.Nonce, `{`, http.StatusBadRequest, "validation_error"},
		{"nonce missing wallet", h.Nonce, `{}`, http.StatusBadRequest, "validation_error"},
		{"nonce invalid wallet", h.Nonce, `{"wallet":"0x1"}`, http.StatusBadRequest, "validation_error"},
		{"connect missing fields", h.Connect, `{"wallet":"` + s.wallet + `"}`, http.StatusBadRequest, "validation_error"},
		{"connect stale", h.Connect, string(stale), http.StatusBadRequest, "validation_error"},
		{"connect forged", h.Connect, string(forged), http.StatusUnauthorized, "authentication_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.call(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)))
			assert.Equal(t, tt.wantCode, rec.Code)

			var env struct {
				Error struct {
					Type string `json:"type"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, tt.wantType, env.Error.Type)
		})
	}
}
