package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/zhouzirui/narrative-forge/backend/internal/metrics"
)

var (
	// ErrModelUnavailable is returned once the gateway has given up on a call.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrQueueTimeout means no concurrency slot freed up before the queue deadline.
	ErrQueueTimeout = fmt.Errorf("%w: queue deadline exceeded", ErrModelUnavailable)
	// ErrCallTimeout means a single attempt exceeded its deadline.
	ErrCallTimeout = fmt.Errorf("%w: call timed out", ErrTransient)
)

// GatewayConfig bounds how the gateway talks to the backend.
type GatewayConfig struct {
	MaxConcurrency int
	QueueTimeout   time.Duration
	CallTimeout    time.Duration
	MaxAttempts    int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
}

// DefaultGatewayConfig returns the limits used when nothing is configured.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		MaxConcurrency: 4,
		QueueTimeout:   10 * time.Second,
		CallTimeout:    60 * time.Second,
		MaxAttempts:    3,
		BaseRetryDelay: 500 * time.Millisecond,
		MaxRetryDelay:  5 * time.Second,
	}
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	def := DefaultGatewayConfig()
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = def.MaxConcurrency
	}
	if c.QueueTimeout <= 0 {
		c.QueueTimeout = def.QueueTimeout
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = def.CallTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BaseRetryDelay <= 0 {
		c.BaseRetryDelay = def.BaseRetryDelay
	}
	if c.MaxRetryDelay < c.BaseRetryDelay {
		c.MaxRetryDelay = c.BaseRetryDelay
	}
	return c
}

// Gateway wraps a Backend with a per-attempt timeout, bounded retries and a
// global FIFO limit on in-flight calls.
//
// A concurrency slot is held by the goroutine running the backend call, not
// by the caller, so an attempt abandoned on timeout keeps counting against
// the limit until the backend actually returns.
type Gateway struct {
	backend Backend
	cfg     GatewayConfig
	slots   *semaphore.Weighted
	logger  *zap.Logger
}

// NewGateway builds a gateway around backend.
func NewGateway(backend Backend, cfg GatewayConfig, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Gateway{
		backend: backend,
		cfg:     cfg,
		slots:   semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		logger:  logger.Named("gateway").With(zap.String("provider", backend.Name())),
	}
}

// Provider names the backend in use.
func (g *Gateway) Provider() string {
	return g.backend.Name()
}

// Generate returns the raw model text for prompt. Transient failures are
// retried with exponential backoff; every terminal failure wraps
// ErrModelUnavailable.
func (g *Gateway) Generate(ctx context.Context, prompt Prompt, params Params) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		text, err := g.attempt(ctx, prompt, params)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if errors.Is(err, ErrQueueTimeout) {
			g.logger.Warn("generation rejected, queue deadline exceeded", zap.Duration("queue_timeout", g.cfg.QueueTimeout))
			return "", err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %w", ErrModelUnavailable, ctxErr)
		}
		if !IsTransient(err) {
			g.logger.Error("generation failed permanently", zap.Int("attempt", attempt), zap.Error(err))
			return "", fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		}
		if attempt == g.cfg.MaxAttempts {
			break
		}

		wait := g.backoff(attempt)
		g.logger.Warn("generation attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", g.cfg.MaxAttempts),
			zap.Duration("backoff", wait),
			zap.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("%w: %w", ErrModelUnavailable, ctx.Err())
		case <-timer.C:
		}
	}

	g.logger.Error("generation attempts exhausted", zap.Int("attempts", g.cfg.MaxAttempts), zap.Error(lastErr))
	return "", fmt.Errorf("%w after %d attempts: %w", ErrModelUnavailable, g.cfg.MaxAttempts, lastErr)
}

type callResult struct {
	text string
	err  error
}

func (g *Gateway) attempt(ctx context.Context, prompt Prompt, params Params) (string, error) {
	queuedAt := time.Now()
	queueCtx, cancelQueue := context.WithTimeout(ctx, g.cfg.QueueTimeout)
	err := g.slots.Acquire(queueCtx, 1)
	cancelQueue()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ErrQueueTimeout
	}
	metrics.ModelSlotAcquired(time.Since(queuedAt))

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	// Buffered so a late result never blocks the orphaned goroutine.
	results := make(chan callResult, 1)
	startedAt := time.Now()
	go func() {
		defer func() {
			g.slots.Release(1)
			metrics.ModelSlotReleased()
		}()
		text, err := g.backend.Generate(callCtx, prompt, params)
		results <- callResult{text: text, err: err}
	}()

	select {
	case res := <-results:
		took := time.Since(startedAt)
		if res.err != nil {
			if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				metrics.ObserveModelRequest(g.backend.Name(), "timeout", took)
				return "", ErrCallTimeout
			}
			metrics.ObserveModelRequest(g.backend.Name(), "error", took)
			return "", res.err
		}
		metrics.ObserveModelRequest(g.backend.Name(), "success", took)
		g.logger.Debug("generation attempt succeeded", zap.Duration("took", took), zap.Int("length", len(res.text)))
		return res.text, nil
	case <-callCtx.Done():
		took := time.Since(startedAt)
		if ctx.Err() != nil {
			metrics.ObserveModelRequest(g.backend.Name(), "cancelled", took)
			return "", ctx.Err()
		}
		metrics.ObserveModelRequest(g.backend.Name(), "timeout", took)
		return "", ErrCallTimeout
	}
}

// backoff doubles the base delay per attempt with ±10% jitter, capped at
// MaxRetryDelay and never below BaseRetryDelay.
func (g *Gateway) backoff(attempt int) time.Duration {
	delay := float64(g.cfg.BaseRetryDelay) * math.Pow(2, float64(attempt-1))
	jitter := delay * 0.1
	delay += jitter * (rand.Float64()*2 - 1)

	wait := time.Duration(delay)
	if wait < g.cfg.BaseRetryDelay {
		wait = g.cfg.BaseRetryDelay
	}
	if wait > g.cfg.MaxRetryDelay {
		wait = g.cfg.MaxRetryDelay
	}
	return wait
}
