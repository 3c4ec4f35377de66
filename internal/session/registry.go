// ABOUTME: Session registry holding all live agent sessions and their owned state.
// ABOUTME: Handles registration, heartbeat refresh, listing, and idle-session eviction.

package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrSessionNotFound indicates the referenced session is not live. Agents
// receiving it are expected to re-register.
var ErrSessionNotFound = errors.New("session not found")

// Default tuning values used when Options fields are zero.
const (
	DefaultTTL      = 60 * time.Second
	DefaultTokenLen = 8
)

// Session is the server-side record for one registered agent. It owns the
// agent's command queue, pending results, streaming frame slot, and chat
// log. All fields are guarded by the owning Registry's lock.
type Session struct {
	ID        string
	Addr      string
	LastSeen  time.Time
	Streaming bool

	queue     []Command
	results   map[string]string
	frame     []byte
	frameTime time.Time
	chat      []ChatMessage
}

// Info is a point-in-time view of a live session, as reported to the
// controller by List.
type Info struct {
	ID          string
	Addr        string
	IdleSeconds int
}

// Options configures a Registry.
type Options struct {
	// TTL is the liveness threshold: sessions idle longer than this are
	// evicted. Zero means DefaultTTL.
	TTL time.Duration

	// SweepInterval enables a background eviction ticker when positive.
	// The lazy sweep inside List runs regardless, so leaving this zero
	// only delays reclamation, never correctness.
	SweepInterval time.Duration

	// TokenLen is the length in hex characters of generated session and
	// command identifiers. Zero means DefaultTokenLen.
	TokenLen int

	Logger *slog.Logger
}

// Registry coordinates all live sessions. It is safe for concurrent use;
// every operation completes without blocking on external events.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	// resultOwner maps a command identifier to the session that will (or
	// did) produce its result, so the controller can consume a result
	// without naming the session. Entries are added on enqueue and on
	// result reporting, and removed on consume or session eviction.
	resultOwner map[string]string

	ttl      time.Duration
	tokenLen int
	logger   *slog.Logger

	done   chan struct{}
	closed bool
}

// New creates an empty registry. If opts.SweepInterval is positive, a
// background goroutine evicts idle sessions on that cadence until Close
// is called.
func New(opts Options) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.TokenLen <= 0 {
		opts.TokenLen = DefaultTokenLen
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &Registry{
		sessions:    make(map[string]*Session),
		resultOwner: make(map[string]string),
		ttl:         opts.TTL,
		tokenLen:    opts.TokenLen,
		logger:      opts.Logger,
		done:        make(chan struct{}),
	}

	if opts.SweepInterval > 0 {
		go r.sweepLoop(opts.SweepInterval)
	}
	return r
}

// Register creates a session or refreshes an existing one. If requestedID
// names a live session, its heartbeat and address are refreshed and the
// same identifier is returned with resumed=true. Otherwise a fresh unique
// identifier is allocated and a session with empty queue, results, and
// chat (streaming disabled) is created.
func (r *Registry) Register(requestedID, addr string) (id string, resumed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if requestedID != "" {
		if s, ok := r.sessions[requestedID]; ok {
			s.Addr = addr
			s.LastSeen = now
			r.logger.Info("session resumed", "session_id", s.ID, "addr", addr)
			return s.ID, true
		}
	}

	id = r.newSessionIDLocked()
	r.sessions[id] = &Session{
		ID:       id,
		Addr:     addr,
		LastSeen: now,
		results:  make(map[string]string),
	}

	r.logger.Info("session registered",
		"session_id", id,
		"addr", addr,
		"total_sessions", len(r.sessions),
	)
	return id, false
}

// Touch refreshes a session's heartbeat. Returns false if the session is
// not live.
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	s.LastSeen = time.Now()
	return true
}

// Exists reports whether a session is live.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.sessions[id]
	return ok
}

// List sweeps expired sessions and then reports all remaining live
// sessions with their derived idle time.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.sweepLocked(now)

	infos := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, Info{
			ID:          s.ID,
			Addr:        s.Addr,
			IdleSeconds: int(now.Sub(s.LastSeen).Seconds()),
		})
	}
	return infos
}

// Sweep evicts every session idle longer than the liveness threshold,
// cascading removal to its queue, results, frame slot, and chat log.
func (r *Registry) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked(time.Now())
}

// sweepLocked removes dead sessions. Must be called with mu held.
// Eviction is atomic per session: the session row and its entries in the
// result owner index disappear together, so a concurrent ConsumeResult
// can never observe a half-removed session.
func (r *Registry) sweepLocked(now time.Time) {
	for id, s := range r.sessions {
		if now.Sub(s.LastSeen) <= r.ttl {
			continue
		}
		delete(r.sessions, id)
		for cmdID, owner := range r.resultOwner {
			if owner == id {
				delete(r.resultOwner, cmdID)
			}
		}
		r.logger.Info("session expired",
			"session_id", id,
			"idle", now.Sub(s.LastSeen).Round(time.Second),
		)
	}
}

// sweepLoop runs interval-based eviction until Close.
func (r *Registry) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.done:
			return
		}
	}
}

// Close stops the background sweeper, if any. Safe to call multiple times.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.closed {
		close(r.done)
		r.closed = true
	}
}

// newSessionIDLocked generates a session identifier unique among live
// sessions. Must be called with mu held.
func (r *Registry) newSessionIDLocked() string {
	for {
		id := newToken(r.tokenLen)
		if _, taken := r.sessions[id]; !taken {
			return id
		}
	}
}
