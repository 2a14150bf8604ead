// Package session owns persisted authentication state for stateful sources.
// Its mutation surface is deliberately narrow: adapters mark a session
// invalid when they hit a login wall; re-authentication is an out-of-band,
// interactive step this package never performs.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrNotFound is returned by Load when no session exists for a source.
var ErrNotFound = eris.New("session: not found")

// State is the persisted session for one source. Blob is opaque to
// everything except the source's own adapter (typically cookie material).
type State struct {
	SourceID      string    `json:"source_id"`
	Blob          string    `json:"blob"`
	LastValidated time.Time `json:"last_validated"`
	Valid         bool      `json:"valid"`
}

// Manager holds per-source session state, shared across concurrent
// aggregation runs within one process. All mutation goes through
// MarkInvalid and Put under a write lock so two runs that both detect
// expiry cannot lose each other's update.
type Manager struct {
	mu       sync.RWMutex
	path     string
	sessions map[string]*State
}

// NewManager loads session state from path. A missing file is not an
// error; it just means no source has a session yet.
func NewManager(path string) (*Manager, error) {
	m := &Manager{
		path:     path,
		sessions: make(map[string]*State),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "session: read %s", path)
	}

	var states []*State
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, eris.Wrapf(err, "session: parse %s", path)
	}
	for _, s := range states {
		m.sessions[s.SourceID] = s
	}
	return m, nil
}

// Load returns a copy of the session state for sourceID, or ErrNotFound.
func (m *Manager) Load(sourceID string) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sourceID]
	if !ok {
		return State{}, ErrNotFound
	}
	return *s, nil
}

// IsValid reports whether a usable session exists for sourceID.
func (m *Manager) IsValid(sourceID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sourceID]
	return ok && s.Valid
}

// MarkInvalid flags the source's session as expired and persists the flag.
// Called from an adapter's failure classification when it detects an
// authentication rejection. Idempotent.
func (m *Manager) MarkInvalid(sourceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sourceID]
	if !ok || !s.Valid {
		return
	}
	s.Valid = false

	if err := m.persistLocked(); err != nil {
		zap.L().Warn("session: persist after invalidation failed",
			zap.String("source", sourceID),
			zap.Error(err),
		)
	}
	zap.L().Info("session marked invalid, re-authentication required",
		zap.String("source", sourceID),
	)
}

// Put stores a freshly authenticated session blob for sourceID. This is the
// import path for out-of-band re-authentication (e.g. the sessions import
// command), not something pipelines call.
func (m *Manager) Put(sourceID, blob string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[sourceID] = &State{
		SourceID:      sourceID,
		Blob:          blob,
		LastValidated: time.Now().UTC(),
		Valid:         true,
	}
	return m.persistLocked()
}

// All returns a snapshot of every known session state.
func (m *Manager) All() []State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]State, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	return out
}

func (m *Manager) persistLocked() error {
	states := make([]*State, 0, len(m.sessions))
	for _, s := range m.sessions {
		states = append(states, s)
	}
	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return eris.Wrap(err, "session: marshal")
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return eris.Wrapf(err, "session: create dir %s", dir)
		}
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return eris.Wrapf(err, "session: write %s", m.path)
	}
	return nil
}
