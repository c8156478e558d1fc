package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"talentgate/internal/audit"
	"talentgate/internal/identity"
	"talentgate/internal/oidc"
	"talentgate/internal/session"
	dErrors "talentgate/pkg/domain-errors"
	"talentgate/pkg/platform/httperr"
	authmw "talentgate/pkg/platform/middleware/auth"
	"talentgate/pkg/requestcontext"
)

// RefreshCookie is the cookie carrying the single-use refresh token. It is
// scoped to the auth endpoints so proxied requests never carry it.
const RefreshCookie = "refreshToken"

// SecurityAuditor records authentication security events.
type SecurityAuditor interface {
	Security(ctx context.Context, operation, reason string, severity audit.Severity)
}

// AuthHandlerConfig is the handler's cookie and login-flow tuning.
type AuthHandlerConfig struct {
	LoginStateTTL time.Duration
	SessionTTL    time.Duration
	CookieDomain  string
	Production    bool
}

// AuthHandler serves the login, callback, refresh, logout, and session
// introspection endpoints.
type AuthHandler struct {
	provider   *oidc.Provider
	attempts   oidc.AttemptStore
	identities identity.Store
	sessions   *session.Service
	security   SecurityAuditor
	errors     *httperr.Writer
	logger     *slog.Logger
	cfg        AuthHandlerConfig
}

func NewAuthHandler(
	provider *oidc.Provider,
	attempts oidc.AttemptStore,
	identities identity.Store,
	sessions *session.Service,
	security SecurityAuditor,
	errWriter *httperr.Writer,
	logger *slog.Logger,
	cfg AuthHandlerConfig,
) *AuthHandler {
	return &AuthHandler{
		provider:   provider,
		attempts:   attempts,
		identities: identities,
		sessions:   sessions,
		security:   security,
		errors:     errWriter,
		logger:     logger,
		cfg:        cfg,
	}
}

// Login starts the authorization-code flow: it stores the state and PKCE
// verifier server-side and redirects the browser to the identity provider.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	returnURL := sanitizeReturnURL(r.URL.Query().Get("returnUrl"))

	req, err := h.provider.BuildAuthorizationRequest()
	if err != nil {
		h.errors.Write(w, r, dErrors.Wrap(err, dErrors.CodeInternal, "starting login"))
		return
	}

	attempt := oidc.Attempt{
		State:     req.State,
		Verifier:  req.Verifier,
		ReturnURL: returnURL,
		CreatedAt: requestcontext.Now(r.Context()),
	}
	if err := h.attempts.Save(r.Context(), attempt, h.cfg.LoginStateTTL); err != nil {
		h.errors.Write(w, r, dErrors.Wrap(err, dErrors.CodeInternal, "storing login attempt"))
		return
	}

	http.Redirect(w, r, req.URL, http.StatusFound)
}

// Callback completes the flow: state is consumed exactly once, the code is
// exchanged with the stored PKCE verifier, and a gateway session is minted
// for the verified identity.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	if provErr := query.Get("error"); provErr != "" {
		h.security.Security(ctx, "login_callback", "provider error: "+provErr, audit.SeverityWarning)
		h.errors.Write(w, r, dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidState,
			"identity provider rejected the login"))
		return
	}

	state := query.Get("state")
	code := query.Get("code")
	if state == "" || code == "" {
		h.errors.Write(w, r, dErrors.New(dErrors.CodeValidation, "missing state or code"))
		return
	}

	attempt, err := h.attempts.Consume(ctx, state)
	if err != nil {
		// Unknown, expired, or replayed state all look the same.
		h.security.Security(ctx, "login_callback", "state validation failed", audit.SeverityWarning)
		h.errors.Write(w, r, dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidState,
			"login attempt not found or expired"))
		return
	}

	exchange, err := h.provider.Exchange(ctx, code, attempt.Verifier)
	if err != nil {
		h.security.Security(ctx, "login_callback", "code exchange failed", audit.SeverityWarning)
		h.errors.Write(w, r, err)
		return
	}

	ident, err := h.identities.Ensure(ctx, exchange.Subject, exchange.Email)
	if err != nil {
		h.errors.Write(w, r, dErrors.Wrap(err, dErrors.CodeInternal, "resolving identity"))
		return
	}
	if !ident.CanAuthenticate() {
		h.security.Security(ctx, "login_callback", "disabled account login", audit.SeverityCritical)
		h.errors.Write(w, r, dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonAccountDisabled,
			"account is not active"))
		return
	}

	result, err := h.sessions.Create(ctx, session.CreateParams{
		Identity:  ident,
		IPAddress: requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
		Provider: session.ProviderTokens{
			IDToken:     exchange.IDToken,
			AccessToken: exchange.AccessToken,
			ExpiresAt:   exchange.TokenExpiresAt,
		},
	})
	if err != nil {
		h.errors.Write(w, r, dErrors.Wrap(err, dErrors.CodeInternal, "creating session"))
		return
	}

	if err := h.identities.TouchLogin(ctx, ident.ID, requestcontext.Now(ctx)); err != nil {
		h.logger.WarnContext(ctx, "recording login time failed", "error", err)
	}

	h.setAuthCookies(w, result.Session)
	writeJSON(w, http.StatusOK, loginResponse{
		User:        userView(ident),
		AccessToken: result.Session.SessionToken,
		ExpiresIn:   int(result.ExpiresIn.Seconds()),
		ReturnURL:   attempt.ReturnURL,
		Suspicious:  result.Suspicious,
	})
}

// Refresh exchanges a refresh token (body field or cookie) for a new token
// pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	refreshToken := body.RefreshToken
	if refreshToken == "" {
		if cookie, err := r.Cookie(RefreshCookie); err == nil {
			refreshToken = cookie.Value
		}
	}
	if refreshToken == "" {
		h.errors.Write(w, r, dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidRefreshToken,
			"refresh token required"))
		return
	}

	result, err := h.sessions.Refresh(ctx, refreshToken)
	if err != nil {
		h.clearAuthCookies(w)
		h.errors.Write(w, r, err)
		return
	}

	h.setAuthCookies(w, result.Session)
	writeJSON(w, http.StatusOK, refreshResponse{
		User:        userView(result.Identity),
		AccessToken: result.Session.SessionToken,
		ExpiresIn:   int(result.ExpiresIn.Seconds()),
	})
}

// Logout revokes the current session, or every session of the user when
// allDevices is set. Logout always succeeds from the client's point of view.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		AllDevices bool `json:"allDevices"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	rawToken := tokenFromRequest(r)
	revoked := 0
	if rawToken != "" {
		if sess, err := h.sessions.Fetch(ctx, rawToken); err == nil {
			if body.AllDevices {
				n, rerr := h.sessions.RevokeAll(ctx, sess.UserID, "")
				if rerr != nil {
					h.logger.WarnContext(ctx, "revoking all sessions failed", "error", rerr)
				}
				revoked = n
			} else {
				if rerr := h.sessions.Revoke(ctx, rawToken); rerr != nil {
					h.logger.WarnContext(ctx, "revoking session failed", "error", rerr)
				} else {
					revoked = 1
				}
			}
		}
	}

	h.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, logoutResponse{Success: true, SessionsRevoked: revoked})
}

// Me returns the authenticated caller's identity, permissions, and session
// metadata.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auth, ok := requestcontext.AuthFrom(ctx)
	if !ok {
		h.errors.Write(w, r, dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidToken,
			"authentication required"))
		return
	}

	ident, err := h.identities.FindByID(ctx, auth.UserID)
	if err != nil {
		h.errors.Write(w, r, dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidSession,
			"invalid session"))
		return
	}

	sess, err := h.sessions.Fetch(ctx, auth.SessionToken)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		User:        userView(ident),
		Permissions: auth.Permissions,
		SessionInfo: sessionInfo{
			SessionID:    sess.ID,
			CreatedAt:    sess.CreatedAt,
			LastActivity: sess.LastActivityAt,
			ExpiresAt:    sess.ExpiresAt,
		},
	})
}

// Sessions lists the caller's live sessions for device management.
func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auth, ok := requestcontext.AuthFrom(ctx)
	if !ok {
		h.errors.Write(w, r, dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidToken,
			"authentication required"))
		return
	}

	summaries, err := h.sessions.ListForUser(ctx, auth.UserID, auth.SessionToken)
	if err != nil {
		h.errors.Write(w, r, dErrors.Wrap(err, dErrors.CodeInternal, "listing sessions"))
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: summaries})
}

func (h *AuthHandler) setAuthCookies(w http.ResponseWriter, sess *session.Session) {
	maxAge := int(h.cfg.SessionTTL.Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     authmw.SessionCookie,
		Value:    sess.SessionToken,
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.Production,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    sess.RefreshToken,
		Path:     "/auth",
		Domain:   h.cfg.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.Production,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name: authmw.SessionCookie, Value: "", Path: "/", Domain: h.cfg.CookieDomain,
		MaxAge: -1, HttpOnly: true, Secure: h.cfg.Production, SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name: RefreshCookie, Value: "", Path: "/auth", Domain: h.cfg.CookieDomain,
		MaxAge: -1, HttpOnly: true, Secure: h.cfg.Production, SameSite: http.SameSiteStrictMode,
	})
}

func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(authmw.SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// sanitizeReturnURL keeps post-login redirects on-site: only absolute paths
// survive, everything else falls back to the root.
func sanitizeReturnURL(raw string) string {
	if raw == "" {
		return "/"
	}
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, "\\") {
		return "/"
	}
	return raw
}
