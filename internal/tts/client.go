// Package tts adapts the external speech-synthesis server. One call
// synthesizes one text segment; the response, whatever its shape, is
// normalized here into a mono 16-bit buffer so nothing past this package
// deals with payload variants.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-voice-assistant/internal/config"
)

// maxResponseBytes bounds one synthesis response.
const maxResponseBytes = 64 << 20

// Client calls POST {BaseURL}/tts.
type Client struct {
	BaseURL           string
	HTTP              *http.Client
	Language          string
	ModelType         string
	CFGScale          float64
	MinP              float64
	Seed              int
	DefaultSampleRate int
}

// New builds a Client from configuration. sampleRate is assumed for
// payloads that do not state their own rate.
func New(cfg config.TTSConfig, sampleRate int) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		BaseURL:           strings.TrimRight(cfg.URL, "/"),
		HTTP:              &http.Client{Timeout: timeout},
		Language:          cfg.Language,
		ModelType:         cfg.ModelType,
		CFGScale:          cfg.CFGScale,
		MinP:              cfg.MinP,
		Seed:              cfg.Seed,
		DefaultSampleRate: sampleRate,
	}
}

type synthRequest struct {
	Text      string  `json:"text"`
	ModelType string  `json:"model_type"`
	Language  string  `json:"language"`
	Speaker   string  `json:"speaker"`
	CFGScale  float64 `json:"cfg_scale"`
	MinP      float64 `json:"min_p"`
	Seed      int     `json:"seed"`
}

// Synthesize renders one text segment with the given speaker. Failures are
// returned as *SynthesisError.
func (c *Client) Synthesize(ctx context.Context, text, speaker string) (*audio.IntBuffer, error) {
	ctx, span := otel.Tracer("tts").Start(ctx, "Client.Synthesize",
		trace.WithAttributes(
			attribute.String("tts.speaker", speaker),
			attribute.Int("tts.text_len", len(text)),
		))
	defer span.End()

	if c.HTTP == nil {
		return nil, newError(KindUpstream, errors.New("http client is nil"))
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil, newError(KindInvalidResponse, errors.New("empty text"))
	}

	b, err := json.Marshal(synthRequest{
		Text:      text,
		ModelType: c.ModelType,
		Language:  c.Language,
		Speaker:   speaker,
		CFGScale:  c.CFGScale,
		MinP:      c.MinP,
		Seed:      c.Seed,
	})
	if err != nil {
		return nil, newError(KindUpstream, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/tts", bytes.NewReader(b))
	if err != nil {
		return nil, newError(KindUpstream, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav, application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, newError(KindUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, newError(KindUpstream, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, newError(KindUpstream, fmt.Errorf("read body: %w", err))
	}
	buf, err := Normalize(body, resp.Header.Get("Content-Type"), c.DefaultSampleRate)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("tts.samples", len(buf.Data)), attribute.Int("tts.sample_rate", buf.Format.SampleRate))
	return buf, nil
}
