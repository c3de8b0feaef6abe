// Package auth implements the OAuth device-authorization flow against the
// source-control host: one device-code request followed by a blocking poll
// that exchanges the device code for the long-lived primary credential.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reviewpilot/internal/credentials"
	"github.com/reviewpilot/pkg/models"
)

const (
	// slowDownPenalty is the single fixed extra delay inserted when the
	// server answers slow_down. The server's restated interval is not
	// persisted across iterations.
	slowDownPenalty = 5 * time.Second

	// primaryLifetime is the assumed validity of a primary credential;
	// the token endpoint declares no expiry of its own.
	primaryLifetime = 7 * 24 * time.Hour
)

// Config carries the host endpoints and OAuth client identity.
type Config struct {
	BaseURL  string // e.g. https://github.com
	ClientID string
	Scope    string
}

// Authenticator drives the device flow and persists the resulting primary
// credential.
type Authenticator struct {
	cfg    Config
	store  credentials.Store
	client *http.Client
	clock  Clock
}

// New creates an Authenticator. A nil HTTP client defaults to one with a
// 30s timeout; a nil clock defaults to the system clock.
func New(cfg Config, store credentials.Store, httpClient *http.Client, clock Clock) *Authenticator {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Authenticator{cfg: cfg, store: store, client: httpClient, clock: clock}
}

// tokenPollResponse is the body of one token-endpoint poll. Either
// AccessToken or Error is populated.
type tokenPollResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// RequestDeviceCode asks the host for a device code and the user-facing
// verification details. The returned session is transient; it is consumed
// by exactly one PollForToken call.
func (a *Authenticator) RequestDeviceCode(ctx context.Context) (*models.DeviceAuthorizationSession, error) {
	body, err := json.Marshal(map[string]string{
		"client_id": a.cfg.ClientID,
		"scope":     a.cfg.Scope,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal device code request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.cfg.BaseURL+"/login/device/code", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create device code request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("device code request failed: %w: %v", models.ErrHostUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("device code request returned status %d: %w",
			resp.StatusCode, models.ErrHostUnavailable)
	}

	var session models.DeviceAuthorizationSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode device code response: %w", err)
	}

	log.Debug().
		Str("user_code", session.UserCode).
		Int("expires_in", session.ExpiresIn).
		Int("interval", session.Interval).
		Msg("Obtained device code")

	return &session, nil
}

// PollForToken blocks until the user authorizes the session, the device
// code expires, or the server denies the request. On success the primary
// credential is persisted before it is returned. Transient transport
// failures are logged and treated like authorization_pending; cancelling
// ctx aborts the loop with no side effects beyond what was already
// persisted.
func (a *Authenticator) PollForToken(ctx context.Context, session *models.DeviceAuthorizationSession) (*models.Credential, error) {
	interval := time.Duration(session.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	for {
		if err := a.clock.Sleep(ctx, interval); err != nil {
			return nil, err
		}

		poll, err := a.pollOnce(ctx, session.DeviceCode)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Device-flow polling tolerates transient blips; keep going.
			log.Warn().Err(err).Msg("Token poll attempt failed, will retry")
			continue
		}

		if poll.AccessToken != "" {
			cred := &models.Credential{
				Token:     poll.AccessToken,
				IssuedAt:  a.clock.Now(),
				ExpiresAt: a.clock.Now().Add(primaryLifetime),
			}
			if err := a.store.Save(models.CredentialPrimary, cred); err != nil {
				return nil, fmt.Errorf("failed to persist primary credential: %w", err)
			}
			log.Info().Msg("Device authorization complete")
			return cred, nil
		}

		switch poll.Error {
		case "authorization_pending":
			// User has not acted yet
		case "slow_down":
			if err := a.clock.Sleep(ctx, slowDownPenalty); err != nil {
				return nil, err
			}
		case "expired_token":
			return nil, fmt.Errorf("authorization window closed: %w", models.ErrDeviceCodeExpired)
		case "":
			// Neither token nor error code; treat like pending
			log.Warn().Msg("Token poll returned neither token nor error, will retry")
		default:
			reason := poll.ErrorDescription
			if reason == "" {
				reason = poll.Error
			}
			return nil, &models.AuthorizationDeniedError{Reason: reason}
		}
	}
}

// pollOnce performs a single token-exchange attempt.
func (a *Authenticator) pollOnce(ctx context.Context, deviceCode string) (*tokenPollResponse, error) {
	body, err := json.Marshal(map[string]string{
		"client_id":   a.cfg.ClientID,
		"device_code": deviceCode,
		"grant_type":  "urn:ietf:params:oauth:grant-type:device_code",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.cfg.BaseURL+"/login/oauth/access_token", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token request returned status %d", resp.StatusCode)
	}

	var poll tokenPollResponse
	if err := json.NewDecoder(resp.Body).Decode(&poll); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	return &poll, nil
}
