package server

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TokenCounter counts tokens for the usage block of chat completions.
type TokenCounter interface {
	Count(text string) int
}

// tiktokenCounter loads the cl100k encoding on first use. If the encoding
// cannot be loaded, every count is zero.
type tiktokenCounter struct {
	once   sync.Once
	enc    *tiktoken.Tiktoken
	logger *zap.Logger
}

func newTiktokenCounter(logger *zap.Logger) *tiktokenCounter {
	return &tiktokenCounter{logger: logger}
}

func (t *tiktokenCounter) Count(text string) int {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			t.logger.Warn("Token counting disabled", zap.Error(err))
			return
		}
		t.enc = enc
	})
	if t.enc == nil || text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}
