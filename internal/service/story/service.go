package story

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/narrative-forge/backend/internal/metrics"
	"github.com/zhouzirui/narrative-forge/backend/internal/model/catalog"
	"github.com/zhouzirui/narrative-forge/backend/internal/model/story"
	"github.com/zhouzirui/narrative-forge/backend/internal/service/ai"
	"github.com/zhouzirui/narrative-forge/backend/internal/service/narrative"
	"github.com/zhouzirui/narrative-forge/backend/internal/service/session"
)

var (
	ErrInvalidChoice = errors.New("invalid choice")
	ErrValidation    = errors.New("validation failed")
)

// SessionStore is the subset of session.Store the service relies on.
type SessionStore interface {
	Create(ctx context.Context, genre, difficulty string, opts session.CreateOptions) (story.Session, error)
	Get(ctx context.Context, id string) (story.Session, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) []string
	WithLock(ctx context.Context, id string, fn session.MutateFunc) (story.Session, error)
}

// Engine generates segments for sessions.
type Engine interface {
	GenerateInitial(ctx context.Context, sess story.Session, id string) (narrative.Result, error)
	GenerateNext(ctx context.Context, sess story.Session, choice story.Choice, id string) (narrative.Result, error)
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces the time source used to stamp updates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service runs the story lifecycle: opening sessions, resolving choices and
// ending sessions.
type Service struct {
	store   SessionStore
	engine  Engine
	catalog catalog.Store
	logger  *zap.Logger
	now     func() time.Time
}

// NewService wires the story service.
func NewService(store SessionStore, engine Engine, genres catalog.Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:   store,
		engine:  engine,
		catalog: genres,
		logger:  logger.Named("story"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a session and seeds its first segment. If the opening cannot
// be generated the session is discarded.
func (s *Service) Create(ctx context.Context, genreID, difficultyID string) (story.Session, error) {
	genre, ok := s.catalog.FindGenre(genreID)
	if !ok {
		return story.Session{}, fmt.Errorf("%w: unknown genre %q", ErrValidation, genreID)
	}
	if _, ok := s.catalog.FindDifficulty(difficultyID); !ok {
		return story.Session{}, fmt.Errorf("%w: unknown difficulty %q", ErrValidation, difficultyID)
	}

	created, err := s.store.Create(ctx, genre.ID, difficultyID, session.CreateOptions{
		Characters: genre.Opening.Characters,
		World:      genre.Opening.World,
	})
	if err != nil {
		return story.Session{}, fmt.Errorf("create session: %w", err)
	}

	seeded, err := s.store.WithLock(ctx, created.ID, func(current story.Session) (story.Session, error) {
		id := current.NextSegmentID()
		res, err := s.engine.GenerateInitial(ctx, current, id)
		if err != nil {
			return story.Session{}, err
		}
		current.MergeFacts(res.CharacterInfo, res.WorldInfo)
		current.Advance(res.Segment, s.now())
		return current, nil
	})
	if err != nil {
		if delErr := s.store.Delete(context.WithoutCancel(ctx), created.ID); delErr != nil && !errors.Is(delErr, session.ErrSessionNotFound) {
			s.logger.Error("failed to discard unseeded session", zap.String("session_id", created.ID), zap.Error(delErr))
		}
		s.logger.Warn("story opening failed", zap.String("session_id", created.ID), zap.Error(err))
		return story.Session{}, fmt.Errorf("seed story: %w", err)
	}

	s.logger.Info("story started",
		zap.String("session_id", seeded.ID),
		zap.String("genre", seeded.Genre),
		zap.String("difficulty", seeded.Difficulty))
	return seeded, nil
}

// Resolve applies the player's choice to a session and returns the segment
// that follows it. On any error the session is left exactly as it was.
func (s *Service) Resolve(ctx context.Context, sessionID string, choiceIndex int) (story.Segment, error) {
	fallback := false
	updated, err := s.store.WithLock(ctx, sessionID, func(current story.Session) (story.Session, error) {
		if current.CurrentSegment == nil {
			return story.Session{}, fmt.Errorf("%w: session has no active segment", ErrInvalidChoice)
		}
		if !current.CurrentSegment.ValidChoice(choiceIndex) {
			return story.Session{}, fmt.Errorf("%w: index %d out of range [0, %d)",
				ErrInvalidChoice, choiceIndex, len(current.CurrentSegment.Choices))
		}
		choice := current.CurrentSegment.Choices[choiceIndex]

		id := current.NextSegmentID()
		res, err := s.engine.GenerateNext(ctx, current, choice, id)
		if err != nil {
			return story.Session{}, err
		}
		fallback = res.Fallback

		current.MergeFacts(res.CharacterInfo, res.WorldInfo)
		current.Advance(res.Segment, s.now())
		return current, nil
	})
	if err != nil {
		metrics.RecordChoice(choiceOutcome(err))
		return story.Segment{}, err
	}

	if fallback {
		metrics.RecordChoice("fallback")
	} else {
		metrics.RecordChoice("resolved")
	}
	s.logger.Debug("choice resolved",
		zap.String("session_id", sessionID),
		zap.Int("choice_index", choiceIndex),
		zap.String("segment_id", updated.CurrentSegment.ID),
		zap.Bool("fallback", fallback))
	return updated.CurrentSegment.Clone(), nil
}

// End deletes a session.
func (s *Service) End(ctx context.Context, sessionID string) error {
	return s.store.Delete(ctx, sessionID)
}

// Get returns the committed state of a session.
func (s *Service) Get(ctx context.Context, sessionID string) (story.Session, error) {
	return s.store.Get(ctx, sessionID)
}

// History returns the segments the player has moved past, oldest first.
func (s *Service) History(ctx context.Context, sessionID string) ([]story.Segment, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.History, nil
}

// List returns the ids of live sessions.
func (s *Service) List(ctx context.Context) []string {
	return s.store.List(ctx)
}

// Genres lists the genres a story can be started in.
func (s *Service) Genres() []catalog.Genre {
	return s.catalog.Genres()
}

// Difficulties lists the available difficulty levels.
func (s *Service) Difficulties() []catalog.Difficulty {
	return s.catalog.Difficulties()
}

func choiceOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInvalidChoice):
		return "invalid"
	case errors.Is(err, session.ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, ai.ErrModelUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
