package commands

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand_NoCache(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, literalSpotify)
	out, err := run(t, NewStatusCommand(env.cfg))
	require.NoError(t, err)

	assert.Contains(t, out, env.cacheFile+" (absent)")
	assert.Contains(t, out, env.keyFile)
	assert.Contains(t, out, "24h0m0s")
	assert.Contains(t, out, "No cached entries.")
}

func TestStatusCommand_ListsEntriesWithoutValues(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, literalSpotify)
	_, err := run(t, NewGetCommand(env.cfg), "Spotify", "client_id", "refresh_token")
	require.NoError(t, err)

	out, err := run(t, NewStatusCommand(env.cfg))
	require.NoError(t, err)

	assert.Contains(t, out, "(fresh)")
	assert.Contains(t, out, "SERVICE")
	assert.Contains(t, out, "Spotify")
	assert.Contains(t, out, "client_id,refresh_token")
	assert.Contains(t, out, "✓ fresh")
	assert.NotContains(t, out, "abc123")
}

func TestStatusCommand_JSON(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, literalSpotify)
	_, err := run(t, NewGetCommand(env.cfg), "Spotify", "uri", "client_id", "refresh_token")
	require.NoError(t, err)

	out, err := run(t, NewStatusCommand(env.cfg), "--json")
	require.NoError(t, err)
	assert.NotContains(t, out, "abc123")

	var status CacheStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "fresh", status.State)
	assert.Equal(t, env.cacheFile, status.CacheFile)
	assert.Equal(t, 86400, status.TTLSeconds)
	require.NotNil(t, status.WrittenAt)
	require.Len(t, status.Entries, 1)

	e := status.Entries[0]
	assert.Equal(t, "Spotify", e.Service)
	assert.Equal(t, []string{"client_id", "refresh_token", "uri"}, e.Fields)
	assert.Equal(t, []string{"refresh_token"}, e.Missing)
	assert.True(t, e.Fresh)
	assert.True(t, e.StoredAt.Add(24*time.Hour).Equal(e.ExpiresAt))
}

func TestStatusCommand_CorruptCache(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, literalSpotify)
	_, err := run(t, NewGetCommand(env.cfg), "Spotify", "client_id")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(env.cacheFile, []byte("not a cache file"), 0o600))

	out, err := run(t, NewStatusCommand(env.cfg))
	require.NoError(t, err)
	assert.Contains(t, out, "(corrupt)")
	assert.Contains(t, out, "No cached entries.")
}

func TestStatusCommand_ZeroTTLIsStale(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, "ttl_seconds: 0\n"+literalSpotify)
	_, err := run(t, NewGetCommand(env.cfg), "Spotify", "client_id")
	require.NoError(t, err)

	out, err := run(t, NewStatusCommand(env.cfg))
	require.NoError(t, err)
	assert.Contains(t, out, "(stale)")
	assert.Contains(t, out, "✗ expired")
}
