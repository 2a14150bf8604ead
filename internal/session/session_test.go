package session

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.json")
	m, err := NewManager(path)
	require.NoError(t, err)
	return m, path
}

func TestManager_MissingFileIsEmpty(t *testing.T) {
	m, _ := newTestManager(t)
	assert.Empty(t, m.All())
	assert.False(t, m.IsValid("linkedin"))

	_, err := m.Load("linkedin")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_PutAndLoad(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Put("linkedin", "li_at_cookie_value"))

	s, err := m.Load("linkedin")
	require.NoError(t, err)
	assert.Equal(t, "li_at_cookie_value", s.Blob)
	assert.True(t, s.Valid)
	assert.False(t, s.LastValidated.IsZero())
	assert.True(t, m.IsValid("linkedin"))
}

func TestManager_PersistsAcrossReload(t *testing.T) {
	m, path := newTestManager(t)
	require.NoError(t, m.Put("linkedin", "blob-1"))
	m.MarkInvalid("linkedin")

	reloaded, err := NewManager(path)
	require.NoError(t, err)

	s, err := reloaded.Load("linkedin")
	require.NoError(t, err)
	assert.Equal(t, "blob-1", s.Blob, "blob survives invalidation")
	assert.False(t, s.Valid)
	assert.False(t, reloaded.IsValid("linkedin"))
}

func TestManager_MarkInvalidIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Put("linkedin", "blob"))

	m.MarkInvalid("linkedin")
	m.MarkInvalid("linkedin")
	m.MarkInvalid("never-existed")

	assert.False(t, m.IsValid("linkedin"))
}

func TestManager_LoadReturnsCopy(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Put("linkedin", "blob"))

	s, err := m.Load("linkedin")
	require.NoError(t, err)
	s.Valid = false
	s.Blob = "tampered"

	again, err := m.Load("linkedin")
	require.NoError(t, err)
	assert.True(t, again.Valid)
	assert.Equal(t, "blob", again.Blob)
}

func TestManager_ConcurrentInvalidation(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Put("linkedin", "blob"))
	require.NoError(t, m.Put("handelsregister", "other"))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.MarkInvalid("linkedin")
			_ = m.IsValid("handelsregister")
			_, _ = m.Load("linkedin")
		}()
	}
	wg.Wait()

	assert.False(t, m.IsValid("linkedin"))
	assert.True(t, m.IsValid("handelsregister"))
}
