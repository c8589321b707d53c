package llm

import (
	"context"
	"errors"

	"github.com/cupogo/andvari/utils/zlog"

	"github.com/liut/kaiwa/pkg/models/convo"
)

// providers
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

var (
	ErrNoAPIKey  = errors.New("api key is required")
	ErrNoContent = errors.New("model returned no content")
)

// Request one chat call. System is empty when the prompt already lives in History.
type Request struct {
	System     string
	History    convo.Turns
	Message    string
	Generation convo.Generation
}

// Generator calls a hosted generation API
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	// GenerateStream calls fn with each delta and returns the whole answer
	GenerateStream(ctx context.Context, req Request, fn func(delta string) error) (string, error)
}

// Config of a generator
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string // openai only
}

// New returns a generator for the provider, gemini by default
func New(cfg Config) (Generator, error) {
	if len(cfg.APIKey) == 0 {
		return nil, ErrNoAPIKey
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	default:
		return NewGemini(cfg), nil
	}
}

func logger() zlog.Logger {
	return zlog.Get()
}
