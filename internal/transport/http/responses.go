package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"talentgate/internal/identity"
	"talentgate/internal/session"
)

type userResponse struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
}

func userView(ident *identity.Identity) userResponse {
	return userResponse{ID: ident.ID, Email: ident.Email, Role: ident.Role}
}

type loginResponse struct {
	User        userResponse `json:"user"`
	AccessToken string       `json:"accessToken"`
	ExpiresIn   int          `json:"expiresIn"`
	ReturnURL   string       `json:"returnUrl"`
	Suspicious  bool         `json:"suspicious,omitempty"`
}

type refreshResponse struct {
	User        userResponse `json:"user"`
	AccessToken string       `json:"accessToken"`
	ExpiresIn   int          `json:"expiresIn"`
}

type logoutResponse struct {
	Success         bool `json:"success"`
	SessionsRevoked int  `json:"sessionsRevoked"`
}

type sessionInfo struct {
	SessionID    uuid.UUID `json:"sessionId"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type meResponse struct {
	User        userResponse `json:"user"`
	Permissions []string     `json:"permissions"`
	SessionInfo sessionInfo  `json:"sessionInfo"`
}

type sessionsResponse struct {
	Sessions []session.Summary `json:"sessions"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
