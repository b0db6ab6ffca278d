package narrative

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TokenCounter estimates how many model tokens a text occupies.
type TokenCounter interface {
	Count(text string) int
}

// RuneCounter approximates tokens as one per four runes.
type RuneCounter struct{}

func (RuneCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// tiktokenCounter counts with the cl100k_base encoding, loaded on first use.
// If the encoding cannot be loaded it degrades to RuneCounter.
type tiktokenCounter struct {
	once     sync.Once
	enc      *tiktoken.Tiktoken
	fallback RuneCounter
	logger   *zap.Logger
}

// NewTokenCounter returns a cl100k_base counter.
func NewTokenCounter(logger *zap.Logger) TokenCounter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &tiktokenCounter{logger: logger}
}

func (c *tiktokenCounter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			c.logger.Warn("tiktoken encoding unavailable, estimating tokens from runes", zap.Error(err))
			return
		}
		c.enc = enc
	})
	if c.enc == nil {
		return c.fallback.Count(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}
