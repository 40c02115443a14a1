package main

import (
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

const maxSessions = 100

var errTooManySessions = errors.New("too many active sessions")

// SessionIdleTimeout is how long a closed session stays visible to spectators
var SessionIdleTimeout = 30 * time.Second

// Session is one env owned by a single controller connection
type Session struct {
	ID        string
	Name      string
	Game      *Game
	CreatedAt time.Time
}

// SessionManager handles creation and lookup of sessions
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	sink     EpisodeSink
	mirror   FrameMirror
}

// NewSessionManager creates a new SessionManager; sink and mirror may be nil
func NewSessionManager(sink EpisodeSink, mirror FrameMirror) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		sink:     sink,
		mirror:   mirror,
	}
}

// CreateSession creates a new env session. Returns errTooManySessions if the limit is reached.
func (sm *SessionManager) CreateSession(name string, opts GameOptions) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= maxSessions {
		return nil, errTooManySessions
	}

	id := GenerateUUID()
	game, err := NewGame(id, opts, sm.sink, sm.mirror)
	if err != nil {
		return nil, err
	}
	sess := &Session{
		ID:        id,
		Name:      name,
		Game:      game,
		CreatedAt: time.Now(),
	}
	sm.sessions[id] = sess
	log.Info("session created", "sid", id, "name", name, "mode", opts.Config.Mode, "max_steps", opts.MaxSteps)
	return sess, nil
}

// GetSession returns a session by ID
func (sm *SessionManager) GetSession(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// CloseSession finishes the session's episode and drops it after SessionIdleTimeout
func (sm *SessionManager) CloseSession(id, reason string) *Episode {
	sess := sm.GetSession(id)
	if sess == nil {
		return nil
	}
	finished := sess.Game.Close(reason)
	log.Info("session closed", "sid", id, "reason", reason)

	time.AfterFunc(SessionIdleTimeout, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if cur, ok := sm.sessions[id]; ok && cur == sess {
			delete(sm.sessions, id)
		}
	})
	return finished
}

// CloseAll closes every session immediately, used on shutdown
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[string]*Session)
	sm.mu.Unlock()

	for _, sess := range sessions {
		sess.Game.Close(EndClosed)
	}
}

// Count returns the number of sessions, closed ones included
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// ListSessions returns info about all open sessions, oldest first
func (sm *SessionManager) ListSessions() []SessionInfo {
	sm.mu.RLock()
	open := make([]*Session, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		if !sess.Game.Closed() {
			open = append(open, sess)
		}
	}
	sm.mu.RUnlock()

	sort.Slice(open, func(i, j int) bool { return open[i].CreatedAt.Before(open[j].CreatedAt) })

	list := make([]SessionInfo, 0, len(open))
	for _, sess := range open {
		list = append(list, SessionInfo{
			ID:       sess.ID,
			Name:     sess.Name,
			Mode:     sess.Game.Options().Config.Mode.String(),
			Tick:     sess.Game.Tick(),
			Watchers: sess.Game.WatcherCount(),
		})
	}
	return list
}
