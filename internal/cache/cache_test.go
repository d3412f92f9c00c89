package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGet(t *testing.T) {
	t.Parallel()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	c, err := s.Provider("serp")
	require.NoError(t, err)

	entry := Entry{Status: 200, Body: json.RawMessage(`{"hits":1}`), Credits: 1}
	require.NoError(t, c.Put("q1", entry))

	got, ok := c.Get("q1")
	require.True(t, ok)
	assert.Equal(t, 200, got.Status)
	assert.JSONEq(t, `{"hits":1}`, string(got.Body))
	assert.False(t, got.CachedAt.IsZero())

	_, ok = c.Get("q2")
	assert.False(t, ok)
}

func TestPersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := NewStore(dir)
	require.NoError(t, err)
	c, err := s.Provider("peopledata")
	require.NoError(t, err)
	require.NoError(t, c.Put("k", Entry{Status: 404, Credits: 1}))

	s2, err := NewStore(dir)
	require.NoError(t, err)
	c2, err := s2.Provider("peopledata")
	require.NoError(t, err)

	got, ok := c2.Get("k")
	require.True(t, ok)
	// Negative results are cached too.
	assert.Equal(t, 404, got.Status)
}

func TestLastWriteWins(t *testing.T) {
	t.Parallel()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	c, err := s.Provider("serp")
	require.NoError(t, err)

	require.NoError(t, c.Put("k", Entry{Status: 500, CachedAt: time.Unix(1, 0)}))
	require.NoError(t, c.Put("k", Entry{Status: 200, CachedAt: time.Unix(2, 0)}))

	got, _ := c.Get("k")
	assert.Equal(t, 200, got.Status)
	assert.Equal(t, 1, c.Len())
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "serp.json"), []byte("{not json"), 0o644))

	s, err := NewStore(dir)
	require.NoError(t, err)
	c, err := s.Provider("serp")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestNoTempDroppings(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)
	c, err := s.Provider("serp")
	require.NoError(t, err)
	require.NoError(t, c.Put("k", Entry{Status: 200}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "serp.json", entries[0].Name())
}

func TestProviderCachesAreIndependent(t *testing.T) {
	t.Parallel()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	a, err := s.Provider("serp")
	require.NoError(t, err)
	b, err := s.Provider("peopledata")
	require.NoError(t, err)

	require.NoError(t, a.Put("k", Entry{Status: 200}))
	_, ok := b.Get("k")
	assert.False(t, ok)
}
