package http

import (
	"net/http"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/auth"
	"github.com/mind-engage/mindengage-quiz/internal/backend"
	"github.com/mind-engage/mindengage-quiz/internal/httpx"
)

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        backend.User `json:"user"`
}

// POST /auth/login  { "username": "...", "password": "..." }
func LoginHandler(be backend.Client, a *auth.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req backend.Credentials
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := be.Login(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		tok, exp, err := a.Issue(res.User, res.Token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		LoggerFrom(r.Context()).Info("login", "user_id", res.User.ID, "role", res.User.Role)
		httpx.WriteJSON(w, http.StatusOK, loginResponse{AccessToken: tok, ExpiresAt: exp, User: res.User})
	}
}

// POST /auth/register  { "username", "password", "role": "user|admin" }
// Admin registrations wait for a super-admin's approval.
func RegisterHandler(be backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req backend.Registration
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		u, err := be.Register(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, u)
	}
}

// POST /auth/logout
func LogoutHandler(a *auth.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p, ok := auth.PrincipalFromContext(r.Context()); ok {
			a.Revoke(p)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /auth/me
func MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := principal(r)
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"id":         p.UserID,
			"username":   p.Username,
			"role":       p.Role,
			"expires_at": p.ExpiresAt,
		})
	}
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}
