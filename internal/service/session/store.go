package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/narrative-forge/backend/internal/metrics"
	"github.com/zhouzirui/narrative-forge/backend/internal/model/story"
)

var ErrSessionNotFound = errors.New("session not found")

// MutateFunc receives a private copy of the session and returns the state
// to commit. Returning an error discards every change.
type MutateFunc func(current story.Session) (story.Session, error)

// CreateOptions carries the facts a new session starts with.
type CreateOptions struct {
	Characters map[string]string
	World      map[string]string
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// entry pairs a committed snapshot with the lock that serialises mutations.
// lock is held for the whole of a mutation, including model calls; mu only
// guards snapshot reads and swaps so readers never wait on generation.
type entry struct {
	lock     chan struct{}
	mu       sync.RWMutex
	snapshot story.Session
	ended    bool
}

// Store owns every story session held in memory.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	logger   *zap.Logger
	now      func() time.Time
}

// NewStore builds an empty in-memory session store.
func NewStore(logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		sessions: make(map[string]*entry),
		logger:   logger.Named("session"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create allocates a new session in the created state. It has no segment
// until the first commit through WithLock.
func (s *Store) Create(_ context.Context, genre, difficulty string, opts CreateOptions) (story.Session, error) {
	session := story.Session{
		ID:            uuid.NewString(),
		Genre:         genre,
		Difficulty:    difficulty,
		Status:        story.StatusCreated,
		History:       make([]story.Segment, 0, 8),
		CharacterInfo: copyFacts(opts.Characters),
		WorldInfo:     copyFacts(opts.World),
		CreatedAt:     s.now(),
	}

	e := &entry{lock: make(chan struct{}, 1), snapshot: session}

	s.mu.Lock()
	s.sessions[session.ID] = e
	s.mu.Unlock()

	metrics.SessionOpened()
	s.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("genre", genre),
		zap.String("difficulty", difficulty))
	return session.Clone(), nil
}

// Get returns a copy of the last committed state of a session.
func (s *Store) Get(_ context.Context, id string) (story.Session, error) {
	e, ok := s.lookup(id)
	if !ok {
		return story.Session{}, ErrSessionNotFound
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.ended {
		return story.Session{}, ErrSessionNotFound
	}
	return e.snapshot.Clone(), nil
}

// Delete ends a session. Unknown or already ended ids are reported as
// ErrSessionNotFound so misuse surfaces to the caller.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	e.ended = true
	e.snapshot.Status = story.StatusEnded
	e.mu.Unlock()

	metrics.SessionClosed("deleted")
	s.logger.Info("session ended", zap.String("session_id", id))
	return nil
}

// List returns the ids of all live sessions in lexical order.
func (s *Store) List(_ context.Context) []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// WithLock runs fn with exclusive mutation access to one session and commits
// its result atomically. Waiting for the lock honours ctx. If the session is
// deleted while fn runs, the result is dropped and ErrSessionNotFound returned.
func (s *Store) WithLock(ctx context.Context, id string, fn MutateFunc) (story.Session, error) {
	e, ok := s.lookup(id)
	if !ok {
		return story.Session{}, ErrSessionNotFound
	}

	select {
	case e.lock <- struct{}{}:
	case <-ctx.Done():
		return story.Session{}, ctx.Err()
	}
	defer func() { <-e.lock }()

	e.mu.RLock()
	if e.ended {
		e.mu.RUnlock()
		return story.Session{}, ErrSessionNotFound
	}
	current := e.snapshot.Clone()
	e.mu.RUnlock()

	updated, err := fn(current)
	if err != nil {
		return story.Session{}, err
	}
	updated.ID = current.ID
	updated.CreatedAt = current.CreatedAt

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		s.logger.Warn("discarding mutation for ended session", zap.String("session_id", id))
		return story.Session{}, ErrSessionNotFound
	}
	e.snapshot = updated.Clone()
	return updated, nil
}

// Evict ends every idle session whose last activity is before cutoff.
// Sessions with a mutation in flight are skipped.
func (s *Store) Evict(cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for id, e := range s.sessions {
		select {
		case e.lock <- struct{}{}:
		default:
			continue
		}

		e.mu.Lock()
		if lastActivity(e.snapshot).Before(cutoff) {
			e.ended = true
			e.snapshot.Status = story.StatusEnded
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
		e.mu.Unlock()
		<-e.lock
	}

	for _, id := range evicted {
		metrics.SessionClosed("evicted")
		s.logger.Info("session evicted", zap.String("session_id", id))
	}
	sort.Strings(evicted)
	return evicted
}

// RunJanitor evicts sessions idle for longer than ttl every interval until
// ctx is cancelled. A non-positive ttl disables eviction.
func (s *Store) RunJanitor(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 {
		s.logger.Info("session eviction disabled")
		return
	}
	if interval <= 0 {
		interval = ttl / 4
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("session janitor started", zap.Duration("ttl", ttl), zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := s.Evict(s.now().Add(-ttl)); len(evicted) > 0 {
				s.logger.Info("idle sessions evicted", zap.Int("count", len(evicted)))
			}
		}
	}
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	return e, ok
}

func lastActivity(session story.Session) time.Time {
	if session.LastUpdated.After(session.CreatedAt) {
		return session.LastUpdated
	}
	return session.CreatedAt
}

func copyFacts(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
