package narrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaHost = "http://127.0.0.1:11434"

// Ollama talks to a local Ollama runtime through /api/chat.
type Ollama struct {
	httpClient *http.Client
	host       string
	backoff    Backoff
}

func NewOllama(host string, b Backoff) *Ollama {
	if host == "" {
		host = defaultOllamaHost
	}
	return &Ollama{httpClient: &http.Client{Timeout: b.Timeout}, host: strings.TrimRight(host, "/"), backoff: b}
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

func (c *Ollama) Generate(ctx context.Context, req Request) (*Response, error) {
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}
	oreq := ollamaChatRequest{Model: req.Model, Messages: req.Messages, Options: map[string]any{}}
	if req.Temperature > 0 {
		oreq.Options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		oreq.Options["num_predict"] = req.MaxTokens
	}
	payload, err := json.Marshal(oreq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var out Response
	err = postJSON(ctx, c.httpClient, c.host+"/api/chat", http.Header{}, payload, c.backoff,
		func(apiErr *APIError, h http.Header) error {
			// Ollama answers 404 for models that have not been pulled.
			if apiErr.StatusCode == http.StatusNotFound {
				return &ModelNotFoundError{APIError: apiErr}
			}
			return classify(apiErr, h)
		},
		func(r io.Reader, _ *http.Response) error {
			var oresp ollamaChatResponse
			if err := json.NewDecoder(r).Decode(&oresp); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			out.Choices = []Choice{{Message: Message{Role: "assistant", Content: oresp.Message.Content}}}
			out.Usage = Usage{
				PromptTokens:     oresp.PromptEvalCount,
				CompletionTokens: oresp.EvalCount,
				TotalTokens:      oresp.PromptEvalCount + oresp.EvalCount,
			}
			out.RequestID = fmt.Sprintf("ollama_%d", time.Now().UnixNano())
			return nil
		})
	if err != nil {
		var ue *UnreachableError
		if errors.As(err, &ue) {
			ue.Host = c.host
		}
		return nil, err
	}
	return &out, nil
}
