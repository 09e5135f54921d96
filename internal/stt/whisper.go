// Package stt transcribes voice uploads through a Whisper HTTP server.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-voice-assistant/internal/config"
)

// contextSize is how many recent transcripts are sent as initial_prompt.
const contextSize = 3

// Whisper posts audio to a transcription endpoint as multipart/form-data
// and reads the "text" field of the JSON answer. Recent transcripts are sent
// back as context, which helps with names and domain words.
type Whisper struct {
	URL      string
	Language string
	HTTP     *http.Client

	mu     sync.Mutex
	recent []string
}

// New builds a Whisper client from configuration.
func New(cfg config.STTConfig) *Whisper {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Whisper{URL: cfg.URL, Language: cfg.Language, HTTP: &http.Client{Timeout: timeout}}
}

type whisperResponse struct {
	Text string `json:"text"`
}

// Transcribe returns the cleaned transcript of data. An empty string with a
// nil error means no speech was recognized.
func (w *Whisper) Transcribe(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	ctx, span := otel.Tracer("stt").Start(ctx, "Whisper.Transcribe")
	defer span.End()

	if filename == "" {
		filename = "audio.wav"
	}
	if contentType == "" {
		contentType = "audio/wav"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	fields := map[string]string{
		"language":    w.Language,
		"task":        "transcribe",
		"temperature": "0.0",
		"beam_size":   "5",
		"best_of":     "5",
	}
	if prompt := w.context(); prompt != "" {
		fields["initial_prompt"] = prompt
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.HTTP.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("whisper: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var decoded whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("whisper: decode: %w", err)
	}

	text := Polish(decoded.Text)
	if text != "" {
		w.remember(text)
	}
	return text, nil
}

func (w *Whisper) context() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.Join(w.recent, " ")
}

func (w *Whisper) remember(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recent = append(w.recent, text)
	if len(w.recent) > contextSize {
		w.recent = w.recent[len(w.recent)-contextSize:]
	}
}

var (
	reLoneI  = regexp.MustCompile(`\bi\b`)
	reSpaces = regexp.MustCompile(`\s+`)
)

// Polish collapses whitespace, capitalizes a standalone "i" (including
// i'm, i've, i'll, i'd) and the first word.
func Polish(s string) string {
	s = strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
	if s == "" {
		return ""
	}
	s = reLoneI.ReplaceAllString(s, "I")
	first, rest, found := strings.Cut(s, " ")
	// A Caser is stateful, so one per call.
	first = cases.Title(language.English, cases.NoLower).String(first)
	if found {
		return first + " " + rest
	}
	return first
}
