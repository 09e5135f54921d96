// Package llm talks to an Ollama server and turns a conversation into a
// bilingual (English, Chinese) reply. Failures never escape as bare errors
// to the caller's user: Responder.Respond always returns a usable Reply,
// falling back to an apology pair.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-voice-assistant/internal/config"
)

// Message is one chat turn in Ollama's wire shape.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are the sampling parameters sent with a chat call.
type Options struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TopK        int     `json:"top_k"`
}

// Default sampling for replies and translations.
var (
	ReplyOptions     = Options{Temperature: 0.7, TopP: 0.9, TopK: 40}
	TranslateOptions = Options{Temperature: 0.3, TopP: 0.9, TopK: 40}
)

// Client is a minimal Ollama /api/chat client with retries.
type Client struct {
	BaseURL    string
	HTTP       *http.Client
	MaxRetries int
	RetryDelay time.Duration

	mu    sync.RWMutex
	model string
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.LLMConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(cfg.URL, "/"),
		HTTP:       &http.Client{Timeout: timeout},
		MaxRetries: cfg.MaxRetries,
		RetryDelay: 500 * time.Millisecond,
		model:      cfg.Model,
	}
}

// Model returns the model currently in use.
func (c *Client) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  Options   `json:"options"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Error   string  `json:"error,omitempty"`
}

// Chat sends msgs and returns the assistant content. Transport errors and
// non-2xx statuses are retried up to MaxRetries times; the last failure is
// returned as an *Error of KindUnavailable.
func (c *Client) Chat(ctx context.Context, msgs []Message, opts Options) (string, error) {
	if c.HTTP == nil {
		return "", &Error{Kind: KindUnavailable, Err: errors.New("http client is nil")}
	}
	body, err := json.Marshal(chatRequest{Model: c.Model(), Messages: msgs, Stream: false, Options: opts})
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			zerolog.Ctx(ctx).Warn().Err(lastErr).Int("attempt", attempt).Msg("llm retry")
			select {
			case <-ctx.Done():
				return "", &Error{Kind: KindUnavailable, Err: ctx.Err()}
			case <-time.After(c.RetryDelay):
			}
		}
		content, err := c.chatOnce(ctx, body)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", &Error{Kind: KindUnavailable, Err: lastErr}
}

func (c *Client) chatOnce(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama: status %d", resp.StatusCode)
	}
	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != "" {
		return "", errors.New(decoded.Error)
	}
	return decoded.Message.Content, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Models lists the models installed on the server.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ollama: status %d", resp.StatusCode)
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		out = append(out, m.Name)
	}
	return out, nil
}

// EnsureModel checks that the configured model is installed. If it is not,
// the first installed model is used instead. The chosen model is returned.
func (c *Client) EnsureModel(ctx context.Context) (string, error) {
	models, err := c.Models(ctx)
	if err != nil {
		return c.Model(), err
	}
	current := c.Model()
	for _, m := range models {
		if m == current {
			return current, nil
		}
	}
	if len(models) == 0 {
		return current, fmt.Errorf("ollama: no models installed")
	}
	c.mu.Lock()
	c.model = models[0]
	c.mu.Unlock()
	zerolog.Ctx(ctx).Warn().Str("configured", current).Str("using", models[0]).Msg("llm model not found, falling back")
	return models[0], nil
}
