// Package session holds bounded, expiring in-memory conversation histories.
//
// A Store owns its session map and sweep timer exclusively; construct a fresh
// Store per process (or per test) and Close it to release both.
package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/probelab/scout/internal/observability"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxMessages   = 50
	DefaultMaxSessions   = 1000
	DefaultTTL           = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

// Message represents a single persisted conversation turn.
type Message struct {
	Role      string    `json:"role"` // user or assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a bounded conversation history keyed by an opaque identifier.
type Session struct {
	ID           string    `json:"id"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Config holds store configuration
type Config struct {
	MaxMessages   int
	MaxSessions   int
	TTL           time.Duration
	SweepInterval time.Duration
	Archive       *Archive // optional; receives sessions removed by expiry or eviction
	Logger        zerolog.Logger
}

// Store manages in-memory sessions with TTL expiry and LRU-style eviction.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	maxMessages int
	maxSessions int
	ttl         time.Duration

	archive *Archive
	logger  zerolog.Logger

	cron    *cron.Cron
	sweepID cron.EntryID
	closed  bool
}

// New creates a new Store and starts its background sweep.
func New(cfg Config) (*Store, error) {
	observability.EnsureRegistered()

	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultMaxMessages
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	s := &Store{
		sessions:    make(map[string]*Session),
		maxMessages: cfg.MaxMessages,
		maxSessions: cfg.MaxSessions,
		ttl:         cfg.TTL,
		archive:     cfg.Archive,
		logger:      cfg.Logger,
		cron:        cron.New(),
	}

	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", cfg.SweepInterval), s.Sweep)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule session sweep: %w", err)
	}
	s.sweepID = id
	s.cron.Start()

	s.logger.Info().
		Int("max_messages", cfg.MaxMessages).
		Int("max_sessions", cfg.MaxSessions).
		Dur("ttl", cfg.TTL).
		Dur("sweep_interval", cfg.SweepInterval).
		Msg("Session store initialized")

	return s, nil
}

// CreateSession generates a fresh session id, inserts an empty history and
// enforces the session-count cap.
func (s *Store) CreateSession() string {
	id, err := gonanoid.New()
	if err != nil {
		// gonanoid only fails when the OS entropy source does; fall back to a
		// timestamp-derived id rather than crash.
		id = fmt.Sprintf("s%d", time.Now().UnixNano())
	}

	now := time.Now()

	s.mu.Lock()
	s.sessions[id] = &Session{
		ID:           id,
		Messages:     []Message{},
		CreatedAt:    now,
		LastActivity: now,
	}
	s.enforceSessionCapLocked()
	count := len(s.sessions)
	s.mu.Unlock()

	observability.SetActiveSessions(count)
	s.logger.Debug().Str("session_id", id).Msg("Session created")

	return id
}

// GetSession returns a copy of the session, or false when it is unknown or
// expired. An expired session is deleted (and archived) on the read that
// discovers it; a hit refreshes LastActivity.
func (s *Store) GetSession(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}

	if s.expiredLocked(sess, time.Now()) {
		s.removeLocked(sess, "expired")
		observability.RecordSessionExpiry()
		return nil, false
	}

	sess.LastActivity = time.Now()
	return copySession(sess), true
}

// AddMessage appends a message to the session, trimming the oldest entries to
// the message cap. Returns false when the session is absent or expired.
func (s *Store) AddMessage(id, role, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	if s.expiredLocked(sess, time.Now()) {
		s.removeLocked(sess, "expired")
		observability.RecordSessionExpiry()
		return false
	}

	sess.Messages = append(sess.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	if len(sess.Messages) > s.maxMessages {
		sess.Messages = sess.Messages[len(sess.Messages)-s.maxMessages:]
	}
	sess.LastActivity = time.Now()

	return true
}

// DeleteSession removes a session. Returns whether it existed.
func (s *Store) DeleteSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	delete(s.sessions, id)
	observability.SetActiveSessions(len(s.sessions))

	s.logger.Debug().Str("session_id", sess.ID).Msg("Session deleted")
	return true
}

// Count returns the number of live sessions, including not-yet-swept expired ones.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep deletes expired sessions and enforces the session-count cap by
// evicting the least-recently-active sessions. It runs on the store's periodic
// timer and may be invoked directly.
func (s *Store) Sweep() {
	now := time.Now()

	s.mu.Lock()
	expired := 0
	for _, sess := range s.sessions {
		if s.expiredLocked(sess, now) {
			s.removeLocked(sess, "expired")
			observability.RecordSessionExpiry()
			expired++
		}
	}
	evicted := s.enforceSessionCapLocked()
	count := len(s.sessions)
	s.mu.Unlock()

	observability.SetActiveSessions(count)
	if expired > 0 || evicted > 0 {
		s.logger.Info().
			Int("expired", expired).
			Int("evicted", evicted).
			Int("remaining", count).
			Msg("Session sweep completed")
	}
}

// Close stops the periodic sweep and clears all state.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()

	observability.SetActiveSessions(0)
	s.logger.Info().Msg("Session store closed")
	return nil
}

func (s *Store) expiredLocked(sess *Session, now time.Time) bool {
	return now.Sub(sess.LastActivity) > s.ttl
}

// enforceSessionCapLocked evicts by ascending LastActivity until the count is
// at or under the cap. Caller holds the mutex.
func (s *Store) enforceSessionCapLocked() int {
	if len(s.sessions) <= s.maxSessions {
		return 0
	}

	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].LastActivity.Before(all[j].LastActivity)
	})

	evicted := 0
	for _, sess := range all {
		if len(s.sessions) <= s.maxSessions {
			break
		}
		s.removeLocked(sess, "evicted")
		observability.RecordSessionEviction()
		evicted++
	}
	return evicted
}

// removeLocked archives (when configured) and deletes a session. Caller holds
// the mutex.
func (s *Store) removeLocked(sess *Session, reason string) {
	if s.archive != nil {
		if err := s.archive.Save(sess, reason); err != nil {
			s.logger.Warn().
				Err(err).
				Str("session_id", sess.ID).
				Msg("Failed to archive session")
		}
	}
	delete(s.sessions, sess.ID)
	s.logger.Debug().
		Str("session_id", sess.ID).
		Str("reason", reason).
		Msg("Session removed")
}

func copySession(sess *Session) *Session {
	out := &Session{
		ID:           sess.ID,
		Messages:     make([]Message, len(sess.Messages)),
		CreatedAt:    sess.CreatedAt,
		LastActivity: sess.LastActivity,
	}
	copy(out.Messages, sess.Messages)
	return out
}
