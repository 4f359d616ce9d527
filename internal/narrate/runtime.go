// Package narrate drafts discussion paragraphs for a report from its
// findings, using a hosted (OpenRouter) or local (Ollama) chat model.
package narrate

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Runtime is implemented by the chat backends.
type Runtime interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Provider names accepted by Get.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Choice struct {
	Message Message `json:"message"`
}

type Response struct {
	ID        string   `json:"id"`
	Choices   []Choice `json:"choices"`
	Usage     Usage    `json:"usage"`
	RequestID string   `json:"-"`
}

// Text returns the first choice's content.
func (r *Response) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Config carries the knobs shared by runtimes.
type Config struct {
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	APIKey      string // OpenRouter
	Host        string // Ollama
	BaseURL     string // overrides the OpenRouter endpoint
}

// Factory builds a Runtime from a Config.
type Factory func(Config) Runtime

var registry = map[string]Factory{}

// Register adds a provider.
func Register(name string, f Factory) { registry[name] = f }

// Get builds the runtime registered for provider.
func Get(provider string, cfg Config) (Runtime, error) {
	f, ok := registry[provider]
	if !ok {
		names := make([]string, 0, len(registry))
		for k := range registry {
			names = append(names, k)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown narrate provider %q (known: %v)", provider, names)
	}
	return f(cfg), nil
}

func init() {
	Register(ProviderOpenRouter, func(c Config) Runtime {
		return NewOpenRouter(c.APIKey, c.BaseURL, backoffFrom(c, 3, 500*time.Millisecond, 4*time.Second))
	})
	Register(ProviderOllama, func(c Config) Runtime {
		return NewOllama(c.Host, backoffFrom(c, 2, 200*time.Millisecond, time.Second))
	})
}

func backoffFrom(c Config, attempts int, base, maxDelay time.Duration) Backoff {
	b := Backoff{Timeout: c.HTTPTimeout, Attempts: c.RetryMax, Base: c.BaseDelay, Max: c.MaxDelay}
	if b.Timeout <= 0 {
		b.Timeout = 60 * time.Second
	}
	if b.Attempts <= 0 {
		b.Attempts = attempts
	}
	if b.Base <= 0 {
		b.Base = base
	}
	if b.Max <= 0 {
		b.Max = maxDelay
	}
	return b
}
