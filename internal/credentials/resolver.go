package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reviewpilot/pkg/models"
)

// ExchangeConfig configures the secondary-credential exchange endpoint.
type ExchangeConfig struct {
	TokenURL            string
	UserAgent           string
	EditorVersion       string
	EditorPluginVersion string
}

// exchangeResponse is the body returned by the token exchange endpoint.
type exchangeResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// Resolver returns cached credentials while they are valid and lazily
// refreshes the secondary credential by exchanging the primary one. It
// never re-requests a still-valid token and never silently uses an expired
// or rejected one. Concurrent callers requesting the same kind are
// serialized so only one exchange is in flight per kind.
type Resolver struct {
	store  Store
	cfg    ExchangeConfig
	client *http.Client
	now    func() time.Time

	locks map[models.CredentialKind]*sync.Mutex
}

// NewResolver creates a resolver over the given store. Passing a nil HTTP
// client defaults to a client with a 30s timeout.
func NewResolver(store Store, cfg ExchangeConfig, httpClient *http.Client) *Resolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Resolver{
		store:  store,
		cfg:    cfg,
		client: httpClient,
		now:    time.Now,
		locks: map[models.CredentialKind]*sync.Mutex{
			models.CredentialPrimary:   {},
			models.CredentialSecondary: {},
		},
	}
}

// GetOrRefresh returns a usable credential of the given kind. A cached,
// unexpired credential is returned without any network call. An absent or
// expired primary credential is fatal since only the device flow can mint
// one; an absent or expired secondary credential triggers one exchange
// using the primary credential.
func (r *Resolver) GetOrRefresh(ctx context.Context, kind models.CredentialKind) (*models.Credential, error) {
	// Lock ordering is secondary before primary, never the reverse.
	r.locks[kind].Lock()
	defer r.locks[kind].Unlock()

	cred, err := r.store.Load(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s credential: %w", kind, err)
	}
	if cred.Valid(r.now()) {
		return cred, nil
	}

	if kind == models.CredentialPrimary {
		return nil, fmt.Errorf("no valid primary credential: %w", models.ErrNotAuthenticated)
	}

	primary, err := r.GetOrRefresh(ctx, models.CredentialPrimary)
	if err != nil {
		return nil, err
	}

	return r.exchange(ctx, primary)
}

// Invalidate purges the stored credential of the given kind. It is called
// when a remote service rejects the credential so the next use starts from
// a clean state.
func (r *Resolver) Invalidate(kind models.CredentialKind) error {
	log.Debug().Str("kind", string(kind)).Msg("Invalidating credential")
	return r.store.Clear(kind)
}

// exchange trades the primary credential for a fresh secondary one and
// persists it with the server-declared expiry.
func (r *Resolver) exchange(ctx context.Context, primary *models.Credential) (*models.Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.TokenURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange request: %w", err)
	}

	req.Header.Set("Authorization", "token "+primary.Token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", r.cfg.UserAgent)
	req.Header.Set("Editor-Version", r.cfg.EditorVersion)
	req.Header.Set("Editor-Plugin-Version", r.cfg.EditorPluginVersion)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange request failed: %w: %v", models.ErrHostUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Handled below
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// The primary token authenticated this call, so it is the one
		// being rejected. Purge it before propagating.
		if err := r.store.Clear(models.CredentialPrimary); err != nil {
			log.Warn().Err(err).Msg("Failed to clear rejected primary credential")
		}
		return nil, fmt.Errorf("exchange returned status %d: %w", resp.StatusCode, models.ErrCredentialRejected)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("exchange returned status %d: %w", resp.StatusCode, models.ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("exchange returned status %d: %w", resp.StatusCode, models.ErrHostUnavailable)
	default:
		return nil, fmt.Errorf("exchange returned status %d: %w", resp.StatusCode, models.ErrExchangeFailed)
	}

	var body exchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode exchange response: %w", err)
	}
	if body.Token == "" {
		return nil, fmt.Errorf("exchange response carried no token: %w", models.ErrExchangeFailed)
	}

	expiresAt, err := time.Parse(time.RFC3339, body.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse exchange expiry %q: %w", body.ExpiresAt, err)
	}

	cred := &models.Credential{
		Token:     body.Token,
		IssuedAt:  r.now(),
		ExpiresAt: expiresAt,
	}
	if err := r.store.Save(models.CredentialSecondary, cred); err != nil {
		return nil, fmt.Errorf("failed to persist secondary credential: %w", err)
	}

	log.Debug().Time("expires_at", expiresAt).Msg("Refreshed secondary credential")
	return cred, nil
}

// Source adapts the resolver into a per-call token provider for API
// clients. Every call goes through GetOrRefresh, so the cached fast path
// stays cheap and expiry is never missed.
func (r *Resolver) Source(kind models.CredentialKind) *KindSource {
	return &KindSource{resolver: r, kind: kind}
}

// KindSource yields the current token of one credential kind.
type KindSource struct {
	resolver *Resolver
	kind     models.CredentialKind
}

// Token returns a currently valid token of the source's kind.
func (s *KindSource) Token(ctx context.Context) (string, error) {
	cred, err := s.resolver.GetOrRefresh(ctx, s.kind)
	if err != nil {
		return "", err
	}
	return cred.Token, nil
}
