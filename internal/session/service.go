package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"talentgate/internal/audit"
	"talentgate/internal/identity"
	"talentgate/internal/platform/metrics"
	"talentgate/internal/token"
	dErrors "talentgate/pkg/domain-errors"
	"talentgate/pkg/platform/sentinel"
)

// SecurityAuditor records session lifecycle security events.
type SecurityAuditor interface {
	Security(ctx context.Context, operation, reason string, severity audit.Severity)
}

// Service owns the session lifecycle: creation under the concurrent-session
// limit, liveness checks, single-use refresh rotation, revocation, and the
// expiry sweep.
type Service struct {
	repo       Repository
	identities identity.Store
	codec      *token.Codec
	security   SecurityAuditor
	logger     *slog.Logger
	metrics    *metrics.Metrics

	ttl            time.Duration
	maxPerUser     int
	sweepInterval  time.Duration
	suspiciousRate int
	suspiciousIPs  int

	clock func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMetrics attaches gateway metrics.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) { s.clock = clock }
}

// WithSuspiciousThresholds overrides the advisory suspicious-activity
// thresholds: more than rate sessions within an hour from more than ips
// distinct addresses.
func WithSuspiciousThresholds(rate, ips int) ServiceOption {
	return func(s *Service) {
		s.suspiciousRate = rate
		s.suspiciousIPs = ips
	}
}

func NewService(
	repo Repository,
	identities identity.Store,
	codec *token.Codec,
	security SecurityAuditor,
	logger *slog.Logger,
	ttl time.Duration,
	maxPerUser int,
	sweepInterval time.Duration,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		repo:           repo,
		identities:     identities,
		codec:          codec,
		security:       security,
		logger:         logger,
		ttl:            ttl,
		maxPerUser:     maxPerUser,
		sweepInterval:  sweepInterval,
		suspiciousRate: 3,
		suspiciousIPs:  2,
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateParams is the input for a new session.
type CreateParams struct {
	Identity  *identity.Identity
	IPAddress string
	UserAgent string
	Provider  ProviderTokens
}

// CreateResult is a freshly created session plus advisory signals.
type CreateResult struct {
	Session    *Session
	Suspicious bool
	ExpiresIn  time.Duration
}

// Create issues a signed token, enforces the per-user session limit by
// evicting the oldest live sessions, and persists the new session. The
// suspicious-activity flag is advisory: login proceeds either way.
func (s *Service) Create(ctx context.Context, params CreateParams) (*CreateResult, error) {
	now := s.clock()

	existing, err := s.repo.ListByUser(ctx, params.Identity.ID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	live := make([]*Session, 0, len(existing))
	for _, sess := range existing {
		if !sess.Expired(now) {
			live = append(live, sess)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].CreatedAt.Before(live[j].CreatedAt) })

	suspicious := s.looksSuspicious(live, params.IPAddress, now)
	if suspicious {
		s.security.Security(ctx, "session_create",
			"rapid session creation from multiple addresses", audit.SeverityCritical)
	}

	// Oldest sessions go first until the new one fits under the limit.
	for len(live) >= s.maxPerUser {
		oldest := live[0]
		live = live[1:]
		if err := s.repo.Delete(ctx, oldest.SessionToken); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, fmt.Errorf("evicting session %s: %w", oldest.ID, err)
		}
		s.security.Security(ctx, "session_evicted",
			"concurrent session limit reached", audit.SeverityWarning)
		if s.metrics != nil {
			s.metrics.SessionsEvicted.Inc()
		}
		s.logger.InfoContext(ctx, "evicted oldest session",
			"user_id", params.Identity.ID,
			"session_id", oldest.ID,
		)
	}

	sessionID := uuid.New()
	signed, err := s.codec.Issue(params.Identity.ID, params.Identity.Email, params.Identity.Role, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("signing session token: %w", err)
	}

	sess := &Session{
		ID:                     sessionID,
		UserID:                 params.Identity.ID,
		SessionToken:           signed,
		RefreshToken:           newRefreshToken(),
		CreatedAt:              now,
		LastActivityAt:         now,
		ExpiresAt:              now.Add(s.ttl),
		IPAddress:              params.IPAddress,
		UserAgent:              params.UserAgent,
		ProviderIDToken:        params.Provider.IDToken,
		ProviderAccessToken:    params.Provider.AccessToken,
		ProviderTokenExpiresAt: params.Provider.ExpiresAt,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("persisting session: %w", err)
	}

	if s.metrics != nil {
		s.metrics.LoginsTotal.Inc()
	}
	return &CreateResult{
		Session:    sess,
		Suspicious: suspicious,
		ExpiresIn:  s.codec.TTL(),
	}, nil
}

// looksSuspicious applies the advisory heuristic: counting the login being
// created, more than suspiciousRate sessions within the last hour from more
// than suspiciousIPs distinct addresses.
func (s *Service) looksSuspicious(live []*Session, newIP string, now time.Time) bool {
	cutoff := now.Add(-time.Hour)
	recent := 1
	ips := map[string]struct{}{newIP: {}}
	for _, sess := range live {
		if sess.CreatedAt.After(cutoff) {
			recent++
			ips[sess.IPAddress] = struct{}{}
		}
	}
	return recent > s.suspiciousRate && len(ips) > s.suspiciousIPs
}

// Fetch resolves a session token to a live session. Unknown and expired
// tokens are indistinguishable to the caller.
func (s *Service) Fetch(ctx context.Context, sessionToken string) (*Session, error) {
	sess, err := s.repo.FindByToken(ctx, sessionToken)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidSession, "session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("fetching session: %w", err)
	}
	if sess.Expired(s.clock()) {
		// Lazy cleanup; the sweeper would get it eventually.
		if derr := s.repo.Delete(ctx, sessionToken); derr != nil && !errors.Is(derr, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "expired session cleanup failed", "error", derr)
		}
		return nil, dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidSession, "session has expired")
	}
	return sess, nil
}

// Touch records activity on the session. Best-effort: failures are logged
// and never fail the request.
func (s *Service) Touch(ctx context.Context, sessionToken string) {
	if err := s.repo.Touch(ctx, sessionToken, s.clock()); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "session touch failed", "error", err)
	}
}

// RefreshResult is a rotated session.
type RefreshResult struct {
	Session   *Session
	Identity  *identity.Identity
	ExpiresIn time.Duration
}

// Refresh exchanges a refresh token for a new token pair. The exchange is
// single-use: losing a rotation race yields the same invalid-refresh-token
// error as presenting a token that never existed.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	now := s.clock()

	sess, err := s.repo.FindByRefreshToken(ctx, refreshToken)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.security.Security(ctx, "session_refresh", "unknown refresh token", audit.SeverityWarning)
		return nil, invalidRefresh()
	}
	if err != nil {
		return nil, fmt.Errorf("finding refresh token: %w", err)
	}
	if sess.Expired(now) {
		if derr := s.repo.Delete(ctx, sess.SessionToken); derr != nil && !errors.Is(derr, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "expired session cleanup failed", "error", derr)
		}
		return nil, invalidRefresh()
	}

	ident, err := s.identities.FindByID(ctx, sess.UserID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, invalidRefresh()
	}
	if err != nil {
		return nil, fmt.Errorf("loading identity: %w", err)
	}
	if !ident.CanAuthenticate() {
		return nil, dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonAccountDisabled, "account is not active")
	}

	signed, err := s.codec.Issue(ident.ID, ident.Email, ident.Role, sess.ID, now)
	if err != nil {
		return nil, fmt.Errorf("signing session token: %w", err)
	}

	rotated, err := s.repo.Rotate(ctx, Rotation{
		SessionID:       sess.ID,
		OldSessionToken: sess.SessionToken,
		OldRefreshToken: refreshToken,
		NewSessionToken: signed,
		NewRefreshToken: newRefreshToken(),
		Now:             now,
		NewExpiresAt:    now.Add(s.ttl),
	})
	if errors.Is(err, sentinel.ErrNotFound) {
		// Consumed by a concurrent refresh between lookup and rotation.
		s.security.Security(ctx, "session_refresh", "refresh token replayed", audit.SeverityCritical)
		return nil, invalidRefresh()
	}
	if err != nil {
		return nil, fmt.Errorf("rotating session: %w", err)
	}

	return &RefreshResult{
		Session:   rotated,
		Identity:  ident,
		ExpiresIn: s.codec.TTL(),
	}, nil
}

func invalidRefresh() error {
	return dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidRefreshToken, "invalid refresh token")
}

// Revoke deletes the session for a token. Revoking an unknown token succeeds.
func (s *Service) Revoke(ctx context.Context, sessionToken string) error {
	err := s.repo.Delete(ctx, sessionToken)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// RevokeAll deletes every session belonging to the user, optionally sparing
// the current one, and returns how many were removed.
func (s *Service) RevokeAll(ctx context.Context, userID uuid.UUID, exceptToken string) (int, error) {
	sessions, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("listing sessions: %w", err)
	}
	revoked := 0
	for _, sess := range sessions {
		if sess.SessionToken == exceptToken {
			continue
		}
		if err := s.repo.Delete(ctx, sess.SessionToken); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return revoked, fmt.Errorf("revoking session %s: %w", sess.ID, err)
		}
		revoked++
	}
	return revoked, nil
}

// ListForUser returns device-management summaries of the user's live
// sessions, most recent first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, currentToken string) ([]Summary, error) {
	sessions, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	now := s.clock()

	summaries := make([]Summary, 0, len(sessions))
	for _, sess := range sessions {
		if sess.Expired(now) {
			continue
		}
		summaries = append(summaries, Summary{
			SessionID:    sess.ID,
			Device:       deviceLabel(sess.UserAgent),
			IPAddress:    sess.IPAddress,
			CreatedAt:    sess.CreatedAt,
			LastActivity: sess.LastActivityAt,
			IsCurrent:    sess.SessionToken == currentToken,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})
	return summaries, nil
}

// RunSweeper deletes expired sessions on a fixed interval until ctx is
// cancelled.
func (s *Service) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tokens, err := s.repo.DeleteExpired(ctx, s.clock())
			if err != nil {
				s.logger.Error("session sweep failed", "error", err)
				continue
			}
			if len(tokens) > 0 {
				if s.metrics != nil {
					s.metrics.SessionsSwept.Add(float64(len(tokens)))
				}
				s.logger.Info("session sweep", "removed", len(tokens))
			}
		}
	}
}

// newRefreshToken returns an opaque 256-bit token.
func newRefreshToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
