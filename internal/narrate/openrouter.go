package narrate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const openRouterURL = "https://openrouter.ai/api/v1"

// OpenRouter talks to the OpenRouter chat completions API.
type OpenRouter struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	backoff    Backoff
}

// NewOpenRouter returns a client; an empty baseURL selects the public endpoint.
func NewOpenRouter(apiKey, baseURL string, b Backoff) *OpenRouter {
	if baseURL == "" {
		baseURL = openRouterURL
	}
	return &OpenRouter{
		httpClient: &http.Client{Timeout: b.Timeout},
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		backoff:    b,
	}
}

func (c *OpenRouter) Generate(ctx context.Context, req Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, errors.New("OPENROUTER_API_KEY is missing (set api_key or STATLOOM_API_KEY)")
	}
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)
	header.Set("HTTP-Referer", "https://github.com/KaramelBytes/statloom-cli")
	header.Set("X-Title", "statloom")

	var out Response
	err = postJSON(ctx, c.httpClient, c.baseURL+"/chat/completions", header, payload, c.backoff,
		func(apiErr *APIError, h http.Header) error { return classify(apiErr, h) },
		func(r io.Reader, resp *http.Response) error {
			if err := json.NewDecoder(r).Decode(&out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			out.RequestID = requestID(resp)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// postJSON posts payload with retries on timeouts, 429 and 5xx. Failed
// responses go through classifyFn; successful bodies are handed to decode.
func postJSON(ctx context.Context, hc *http.Client, url string, header http.Header, payload []byte, b Backoff,
	classifyFn func(*APIError, http.Header) error, decode func(io.Reader, *http.Response) error) error {
	attempts := max(b.Attempts, 1)
	for attempt := 1; ; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		httpReq.Header = header.Clone()
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := hc.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isRetryableNetErr(err) && attempt < attempts {
				if err := sleep(ctx, b.delay(attempt)); err != nil {
					return err
				}
				continue
			}
			return &UnreachableError{Host: httpReq.URL.Host, Err: err}
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			err := decode(resp.Body, resp)
			resp.Body.Close()
			return err
		}
		apiErr := readAPIError(resp)
		resp.Body.Close()
		if retryableStatus(resp.StatusCode) && attempt < attempts {
			wait := b.delay(attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if d, err := parseRetryAfter(ra); err == nil && d > 0 {
					wait = d
				}
			}
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}
		return classifyFn(apiErr, resp.Header)
	}
}
