package httpapi

import (
	"errors"
	"net/http"
	"time"

	"ghginventory.org/internal/audit"
	"ghginventory.org/internal/auth"
	"ghginventory.org/internal/registry"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresAt   time.Time     `json:"expires_at"`
	User        registry.User `json:"user"`
	Rules       []ruleView    `json:"rules"`
}

type profileResponse struct {
	User  registry.User `json:"user"`
	Rules []ruleView    `json:"rules"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleError(w, r, err)
		return
	}
	token, sess, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		handleError(w, r, err)
		return
	}
	ctx := auth.ContextWithSession(r.Context(), sess)
	_ = audit.LogEvent(ctx, audit.EventLogin, map[string]any{
		"expires_at": token.ExpiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresAt:   token.ExpiresAt,
		User:        sess.User,
		Rules:       rulesView(sess.Ability),
	})
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{User: sess.User, Rules: rulesView(sess.Ability)})
}
