package credentials

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewpilot/pkg/models"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(t.TempDir())

	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cred := &models.Credential{
		Token:     "gho_sometoken",
		IssuedAt:  issued,
		ExpiresAt: issued.Add(7 * 24 * time.Hour),
	}
	require.NoError(t, store.Save(models.CredentialPrimary, cred))

	loaded, err := store.Load(models.CredentialPrimary)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, cred.Token, loaded.Token)
	assert.True(t, cred.IssuedAt.Equal(loaded.IssuedAt))
	assert.True(t, cred.ExpiresAt.Equal(loaded.ExpiresAt))
}

func TestFileStoreAbsentIsNotAnError(t *testing.T) {
	store := NewFileStore(t.TempDir())

	cred, err := store.Load(models.CredentialSecondary)
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestFileStoreMalformedRecordTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "primary-token.json"), []byte("{not json"), 0600))

	cred, err := store.Load(models.CredentialPrimary)
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestFileStoreOverwritesSameKind(t *testing.T) {
	store := NewFileStore(t.TempDir())
	now := time.Now().UTC().Truncate(time.Second)

	first := &models.Credential{Token: "old", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
	second := &models.Credential{Token: "new", IssuedAt: now, ExpiresAt: now.Add(2 * time.Hour)}

	require.NoError(t, store.Save(models.CredentialSecondary, first))
	require.NoError(t, store.Save(models.CredentialSecondary, second))

	loaded, err := store.Load(models.CredentialSecondary)
	require.NoError(t, err)
	assert.Equal(t, "new", loaded.Token)
}

func TestFileStoreClearIsIdempotent(t *testing.T) {
	store := NewFileStore(t.TempDir())
	now := time.Now()

	require.NoError(t, store.Save(models.CredentialPrimary, &models.Credential{
		Token: "x", IssuedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	require.NoError(t, store.Clear(models.CredentialPrimary))
	require.NoError(t, store.Clear(models.CredentialPrimary), "clearing an absent record must not fail")

	cred, err := store.Load(models.CredentialPrimary)
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	now := time.Now()

	require.NoError(t, store.Save(models.CredentialPrimary, &models.Credential{
		Token: "x", IssuedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "primary-token.json", entries[0].Name())
}

func TestMemStoreIsolation(t *testing.T) {
	store := NewMemStore()
	now := time.Now()

	cred := &models.Credential{Token: "x", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, store.Save(models.CredentialPrimary, cred))

	loaded, err := store.Load(models.CredentialPrimary)
	require.NoError(t, err)

	// Mutating the returned copy must not touch the stored record
	loaded.Token = "mutated"
	again, err := store.Load(models.CredentialPrimary)
	require.NoError(t, err)
	assert.Equal(t, "x", again.Token)
}
