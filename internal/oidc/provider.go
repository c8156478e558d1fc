// Package oidc drives the authorization-code login flow against the identity
// provider: discovery, PKCE authorization URLs, code exchange, and ID token
// verification.
package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"talentgate/internal/platform/config"
	dErrors "talentgate/pkg/domain-errors"
)

// Provider wraps a discovered OIDC issuer. Discovery happens once at
// startup; a provider that cannot be discovered fails the boot.
type Provider struct {
	oauth    oauth2.Config
	verifier *gooidc.IDTokenVerifier
	timeout  time.Duration
}

func NewProvider(ctx context.Context, cfg config.OIDCConfig) (*Provider, error) {
	provider, err := gooidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discovering issuer %s: %w", cfg.Issuer, err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "profile", "email"}
	}

	return &Provider{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
		verifier: provider.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
		timeout:  cfg.Timeout,
	}, nil
}

// AuthorizationRequest is one in-flight login: the URL to redirect the
// browser to, plus the state and PKCE verifier that must survive until the
// callback.
type AuthorizationRequest struct {
	URL      string
	State    string
	Verifier string
}

// BuildAuthorizationRequest generates fresh state and a PKCE verifier and
// renders the provider's authorization URL with the S256 challenge.
func (p *Provider) BuildAuthorizationRequest() (*AuthorizationRequest, error) {
	state, err := randomState()
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()

	return &AuthorizationRequest{
		URL:      p.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)),
		State:    state,
		Verifier: verifier,
	}, nil
}

// ExchangeResult is the verified outcome of a code exchange.
type ExchangeResult struct {
	Subject       string
	Email         string
	EmailVerified bool

	IDToken        string
	AccessToken    string
	TokenExpiresAt *time.Time
}

// Exchange redeems the authorization code with the stored PKCE verifier and
// verifies the returned ID token against the issuer's keys. A code the
// provider rejects is an authentication failure; a provider that cannot be
// reached is an upstream failure.
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*ExchangeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tok, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidState,
				"authorization code rejected by identity provider")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeBadGateway, "identity provider unreachable")
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidToken,
			"identity provider response missing id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidToken,
			"id_token verification failed")
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonInvalidToken,
			"id_token claims unreadable")
	}

	result := &ExchangeResult{
		Subject:       idToken.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		IDToken:       rawIDToken,
		AccessToken:   tok.AccessToken,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		result.TokenExpiresAt = &expiry
	}
	return result, nil
}

func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
