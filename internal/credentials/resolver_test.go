package credentials

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewpilot/pkg/models"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestResolver(t *testing.T, handler http.HandlerFunc) (*Resolver, *MemStore, *int64) {
	t.Helper()

	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	store := NewMemStore()
	resolver := NewResolver(store, ExchangeConfig{
		TokenURL:            server.URL + "/copilot_internal/v2/token",
		UserAgent:           "GithubCopilot/1.155.0",
		EditorVersion:       "vscode/1.80.1",
		EditorPluginVersion: "copilot.vim/1.16.0",
	}, server.Client())
	resolver.now = func() time.Time { return testNow }
	return resolver, store, &calls
}

func savePrimary(t *testing.T, store Store, token string, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, store.Save(models.CredentialPrimary, &models.Credential{
		Token:     token,
		IssuedAt:  testNow.Add(-time.Hour),
		ExpiresAt: expiresAt,
	}))
}

func TestGetOrRefreshCachedHitMakesNoNetworkCall(t *testing.T) {
	resolver, store, calls := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no exchange call expected")
	})

	require.NoError(t, store.Save(models.CredentialSecondary, &models.Credential{
		Token:     "sec_cached",
		IssuedAt:  testNow.Add(-time.Minute),
		ExpiresAt: testNow.Add(10 * time.Minute),
	}))

	cred, err := resolver.GetOrRefresh(context.Background(), models.CredentialSecondary)
	require.NoError(t, err)
	assert.Equal(t, "sec_cached", cred.Token)
	assert.EqualValues(t, 0, atomic.LoadInt64(calls))
}

func TestGetOrRefreshPrimaryAbsentIsFatal(t *testing.T) {
	resolver, _, _ := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := resolver.GetOrRefresh(context.Background(), models.CredentialPrimary)
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
}

func TestGetOrRefreshSecondaryWithoutPrimaryIsFatal(t *testing.T) {
	resolver, _, calls := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := resolver.GetOrRefresh(context.Background(), models.CredentialSecondary)
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
	assert.EqualValues(t, 0, atomic.LoadInt64(calls))
}

func TestGetOrRefreshExchangesOnce(t *testing.T) {
	expiresAt := testNow.Add(25 * time.Minute)
	resolver, store, calls := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token gho_primary", r.Header.Get("Authorization"))
		assert.Equal(t, "GithubCopilot/1.155.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "vscode/1.80.1", r.Header.Get("Editor-Version"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"sec_fresh","expires_at":"` + expiresAt.Format(time.RFC3339) + `"}`))
	})

	savePrimary(t, store, "gho_primary", testNow.Add(24*time.Hour))

	cred, err := resolver.GetOrRefresh(context.Background(), models.CredentialSecondary)
	require.NoError(t, err)
	assert.Equal(t, "sec_fresh", cred.Token)
	assert.True(t, cred.ExpiresAt.Equal(expiresAt))
	assert.EqualValues(t, 1, atomic.LoadInt64(calls))

	// The fresh credential is persisted for the next caller
	stored, err := store.Load(models.CredentialSecondary)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "sec_fresh", stored.Token)
}

func TestGetOrRefreshExpiredSecondaryTriggersExchange(t *testing.T) {
	resolver, store, calls := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"sec_fresh","expires_at":"` + testNow.Add(time.Hour).Format(time.RFC3339) + `"}`))
	})

	savePrimary(t, store, "gho_primary", testNow.Add(24*time.Hour))
	require.NoError(t, store.Save(models.CredentialSecondary, &models.Credential{
		Token:     "sec_stale",
		IssuedAt:  testNow.Add(-2 * time.Hour),
		ExpiresAt: testNow.Add(-time.Hour),
	}))

	cred, err := resolver.GetOrRefresh(context.Background(), models.CredentialSecondary)
	require.NoError(t, err)
	assert.Equal(t, "sec_fresh", cred.Token)
	assert.EqualValues(t, 1, atomic.LoadInt64(calls))
}

func TestGetOrRefreshRejectionPurgesPrimary(t *testing.T) {
	resolver, store, _ := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	savePrimary(t, store, "gho_revoked", testNow.Add(24*time.Hour))

	_, err := resolver.GetOrRefresh(context.Background(), models.CredentialSecondary)
	require.ErrorIs(t, err, models.ErrCredentialRejected)

	// Cascading invalidation: the primary token authenticated the call
	stored, loadErr := store.Load(models.CredentialPrimary)
	require.NoError(t, loadErr)
	assert.Nil(t, stored)
}

func TestGetOrRefreshStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"429 maps to rate limited", http.StatusTooManyRequests, models.ErrRateLimited},
		{"500 maps to host unavailable", http.StatusInternalServerError, models.ErrHostUnavailable},
		{"503 maps to host unavailable", http.StatusServiceUnavailable, models.ErrHostUnavailable},
		{"418 maps to exchange failed", http.StatusTeapot, models.ErrExchangeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver, store, _ := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			savePrimary(t, store, "gho_primary", testNow.Add(24*time.Hour))

			_, err := resolver.GetOrRefresh(context.Background(), models.CredentialSecondary)
			assert.ErrorIs(t, err, tt.wantErr)

			// Only a 401/403 purges the primary credential
			stored, loadErr := store.Load(models.CredentialPrimary)
			require.NoError(t, loadErr)
			assert.NotNil(t, stored)
		})
	}
}

func TestGetOrRefreshSerializesConcurrentCallers(t *testing.T) {
	resolver, store, calls := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"sec_fresh","expires_at":"` + testNow.Add(time.Hour).Format(time.RFC3339) + `"}`))
	})
	savePrimary(t, store, "gho_primary", testNow.Add(24*time.Hour))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cred, err := resolver.GetOrRefresh(context.Background(), models.CredentialSecondary)
			assert.NoError(t, err)
			assert.Equal(t, "sec_fresh", cred.Token)
		}()
	}
	wg.Wait()

	// The first caller refreshes, everyone else hits the cache
	assert.EqualValues(t, 1, atomic.LoadInt64(calls))
}

func TestInvalidateClearsStoredCredential(t *testing.T) {
	resolver, store, _ := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {})
	savePrimary(t, store, "gho_primary", testNow.Add(24*time.Hour))

	require.NoError(t, resolver.Invalidate(models.CredentialPrimary))

	stored, err := store.Load(models.CredentialPrimary)
	require.NoError(t, err)
	assert.Nil(t, stored)
}
