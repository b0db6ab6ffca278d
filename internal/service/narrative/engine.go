package narrative

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/zhouzirui/narrative-forge/backend/internal/analysis/mood"
	"github.com/zhouzirui/narrative-forge/backend/internal/metrics"
	"github.com/zhouzirui/narrative-forge/backend/internal/model/catalog"
	"github.com/zhouzirui/narrative-forge/backend/internal/model/story"
	"github.com/zhouzirui/narrative-forge/backend/internal/service/ai"
)

// Generator produces raw model text. *ai.Gateway satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt ai.Prompt, params ai.Params) (string, error)
}

// Config tunes prompt construction and parse retries.
type Config struct {
	HistoryWindow int
	TokenBudget   int
	ParseRetries  int
	Params        ai.Params
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		HistoryWindow: 3,
		ParseRetries:  2,
		Params:        ai.Params{Temperature: 0.8, TopP: 0.9, MaxTokens: 400},
	}
}

// Result is a generated segment plus the facts it introduced.
type Result struct {
	Segment       story.Segment
	CharacterInfo map[string]string
	WorldInfo     map[string]string
	// Fallback reports that the segment was synthesised after the model
	// failed to deliver a usable answer.
	Fallback bool
	Attempts int
}

// Option customises an Engine.
type Option func(*Engine)

// WithTokenCounter replaces the token counter used for budget trimming.
func WithTokenCounter(counter TokenCounter) Option {
	return func(e *Engine) { e.counter = counter }
}

// Engine turns sessions and choices into new segments. It never mutates the
// sessions it is given.
type Engine struct {
	gen     Generator
	genres  catalog.Store
	prompts *PromptManager
	counter TokenCounter
	cfg     Config
	logger  *zap.Logger
}

// NewEngine wires an engine to a generator and the story catalog.
func NewEngine(gen Generator, genres catalog.Store, cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HistoryWindow < 0 {
		cfg.HistoryWindow = 0
	}
	if cfg.ParseRetries < 0 {
		cfg.ParseRetries = 0
	}
	e := &Engine{
		gen:     gen,
		genres:  genres,
		prompts: NewPromptManager(genres),
		cfg:     cfg,
		logger:  logger.Named("narrative"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.counter == nil && cfg.TokenBudget > 0 {
		e.counter = NewTokenCounter(e.logger)
	}
	return e
}

// GenerateInitial produces the opening segment of sess, stamped with id.
func (e *Engine) GenerateInitial(ctx context.Context, sess story.Session, id string) (Result, error) {
	genre := e.lookupGenre(sess.Genre)
	req := request{
		kind:  "initial",
		genre: sess.Genre,
		diff:  sess.Difficulty,
		query: openingQuery(genre),
		hints: map[string]string{
			ai.HintGenre: sess.Genre,
			ai.HintTurn:  "0",
		},
	}

	res, err := e.run(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if res.Fallback {
		res.Segment = fallbackOpening(id, genre)
	} else {
		res.Segment.ID = id
		if res.Segment.BackgroundContext == "" {
			res.Segment.BackgroundContext = genre.Opening.Background
		}
	}
	metrics.RecordSegment(req.kind, res.Fallback)
	return res, nil
}

// GenerateNext produces the segment following choice in sess, stamped with id.
func (e *Engine) GenerateNext(ctx context.Context, sess story.Session, choice story.Choice, id string) (Result, error) {
	req := request{
		kind:    "next",
		genre:   sess.Genre,
		diff:    sess.Difficulty,
		query:   choiceQuery(sess, choice),
		history: historyWindow(sess, e.cfg.HistoryWindow),
		hints: map[string]string{
			ai.HintGenre:      sess.Genre,
			ai.HintAction:     choice.Action,
			ai.HintChoiceText: choice.Text,
			ai.HintTurn:       strconv.Itoa(len(sess.History) + 1),
		},
	}

	res, err := e.run(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if res.Fallback {
		res.Segment = fallbackContinuation(id, sess.CurrentSegment)
	} else {
		res.Segment.ID = id
	}
	metrics.RecordSegment(req.kind, res.Fallback)
	return res, nil
}

type request struct {
	kind    string
	genre   string
	diff    string
	query   string
	history []string
	hints   map[string]string
}

// run calls the model until a response parses, up to ParseRetries extra
// times. Only backpressure and caller cancellation are returned as errors;
// every other failure ends in a fallback result.
func (e *Engine) run(ctx context.Context, req request) (Result, error) {
	logger := e.logger.With(zap.String("kind", req.kind), zap.String("genre", req.genre))
	attempts := 0

	for round := 0; round <= e.cfg.ParseRetries; round++ {
		system := e.prompts.BuildSystemPrompt(req.genre, req.diff, round > 0)
		history := trimToBudget(e.counter, e.cfg.TokenBudget, system, req.query, req.history)

		attempts++
		raw, err := e.gen.Generate(ctx, ai.Prompt{
			System:  system,
			History: history,
			Query:   req.query,
			Hints:   req.hints,
		}, e.cfg.Params)
		if err != nil {
			if errors.Is(err, ai.ErrQueueTimeout) || ctx.Err() != nil {
				return Result{}, fmt.Errorf("generate %s segment: %w", req.kind, err)
			}
			logger.Warn("model call failed, using fallback segment", zap.Int("attempts", attempts), zap.Error(err))
			return Result{Fallback: true, Attempts: attempts}, nil
		}

		parsed, err := Parse(raw)
		if err != nil {
			metrics.RecordParseFailure()
			logger.Warn("model output rejected", zap.Int("round", round), zap.Error(err))
			continue
		}
		if len(parsed.Skipped) > 0 {
			logger.Debug("ignored unparsable fact lines", zap.Strings("entries", parsed.Skipped))
		}

		return Result{
			Segment:       toSegment(parsed),
			CharacterInfo: parsed.Characters,
			WorldInfo:     parsed.World,
			Attempts:      attempts,
		}, nil
	}

	logger.Warn("no parsable output, using fallback segment", zap.Int("attempts", attempts))
	return Result{Fallback: true, Attempts: attempts}, nil
}

func toSegment(p Parsed) story.Segment {
	seg := story.Segment{
		Text:              p.Narrative,
		Choices:           p.Choices,
		BackgroundContext: p.Background,
		Mood:              p.Mood,
		Location:          p.Location,
	}
	if seg.Mood == "" {
		seg.Mood = string(mood.DetectMood(seg.Text))
	}
	if seg.Location == "" {
		seg.Location = mood.DetectLocation(seg.Text)
	}
	return seg
}

func (e *Engine) lookupGenre(id string) catalog.Genre {
	if g, ok := e.genres.FindGenre(id); ok {
		return g
	}
	return catalog.Genre{ID: id, Name: id}
}
