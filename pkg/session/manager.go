package session

import (
	"sync"

	"github.com/google/uuid"

	"loom/pkg/agent"
)

// Manager owns the mapping from session id to Session. It is the only
// long-lived holder of sessions: callers receive references but must not use
// them past DestroySession/DestroyAll. Create and destroy are atomic with
// respect to lookup.
type Manager struct {
	defaults agent.Options

	mu       sync.Mutex
	sessions map[string]*Session

	// newRunner builds the runner backing a new session. Tests override it
	// to inject fakes; production builds an agent.Client.
	newRunner func(opts agent.Options) Runner
}

// NewManager creates an empty registry whose sessions run agent clients with
// the given default options.
func NewManager(defaults agent.Options) *Manager {
	return &Manager{
		defaults: defaults,
		sessions: make(map[string]*Session),
		newRunner: func(opts agent.Options) Runner {
			return agent.NewClient(opts)
		},
	}
}

// CreateSession allocates a fresh identifier, builds a Session bound to a
// session-scoped client configuration, registers it, and returns it. opts
// nil means the manager defaults.
func (m *Manager) CreateSession(opts *agent.Options) *Session {
	conf := m.defaults
	if opts != nil {
		conf = *opts
	}
	id := uuid.NewString()
	s := newSession(id, m.newRunner(conf))

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s
}

// Defaults returns a copy of the manager's default client options, for
// callers that derive a per-session variant.
func (m *Manager) Defaults() agent.Options { return m.defaults }

// GetSession looks up a session by id.
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// DestroySession destroys and deregisters the session. Unknown ids are a
// no-op, not an error.
func (m *Manager) DestroySession(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Destroy()
	}
}

// DestroyAll destroys every registered session and empties the registry.
func (m *Manager) DestroyAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.Destroy()
	}
}

// ActiveSessions reports the number of registered sessions.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
