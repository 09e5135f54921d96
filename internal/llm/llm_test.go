package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbourn/go-voice-assistant/internal/config"
)

// ---------- Ollama client ----------

func newOllama(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(config.LLMConfig{URL: srv.URL, Model: "phi4:latest", Timeout: 2 * time.Second, MaxRetries: 2})
	c.RetryDelay = time.Millisecond
	return c
}

func TestClient_Chat_SendsOptionsAndParses(t *testing.T) {
	var got chatRequest
	c := newOllama(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(chatResponse{Message: Message{Role: "assistant", Content: "hi there"}})
	})

	out, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hello"}}, ReplyOptions)
	if err != nil || out != "hi there" {
		t.Fatalf("Chat = %q, %v", out, err)
	}
	if got.Model != "phi4:latest" || got.Stream || got.Options != ReplyOptions || len(got.Messages) != 1 {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestClient_Chat_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	c := newOllama(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse{Message: Message{Content: "ok"}})
	})
	out, err := c.Chat(context.Background(), nil, ReplyOptions)
	if err != nil || out != "ok" || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("Chat = %q, %v after %d calls", out, err, calls)
	}
}

func TestClient_Chat_GivesUpAsUnavailable(t *testing.T) {
	var calls int32
	c := newOllama(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(chatResponse{Error: "model crashed"})
	})
	_, err := c.Chat(context.Background(), nil, ReplyOptions)
	var le *Error
	if !errors.As(err, &le) || le.Kind != KindUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 1 try + 2 retries, got %d", calls)
	}
}

func TestClient_EnsureModel(t *testing.T) {
	c := newOllama(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3:latest"},{"name":"qwen2:7b"}]}`))
	})
	got, err := c.EnsureModel(context.Background())
	if err != nil || got != "llama3:latest" || c.Model() != "llama3:latest" {
		t.Fatalf("EnsureModel = %q, %v (model now %q)", got, err, c.Model())
	}

	present := newOllama(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"phi4:latest"}]}`))
	})
	if got, err := present.EnsureModel(context.Background()); err != nil || got != "phi4:latest" {
		t.Fatalf("EnsureModel (present) = %q, %v", got, err)
	}

	none := newOllama(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[]}`))
	})
	if _, err := none.EnsureModel(context.Background()); err == nil {
		t.Fatalf("expected error when no models are installed")
	}
}

// ---------- Responder ----------

type scriptedChat struct {
	model   string
	replies []string
	errs    []error
	seen    [][]Message
	opts    []Options
}

func (s *scriptedChat) Model() string { return s.model }

func (s *scriptedChat) Chat(_ context.Context, msgs []Message, opts Options) (string, error) {
	i := len(s.seen)
	s.seen = append(s.seen, msgs)
	s.opts = append(s.opts, opts)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "", nil
}

func TestResponder_ReplyAndTranslation(t *testing.T) {
	c := &scriptedChat{model: "m", replies: []string{"**Hello** there :) ", "翻译：“你好。”"}}
	r := NewResponder(c, 50)

	history := []Message{{Role: "user", Content: "earlier"}, {Role: "assistant", Content: "answer"}}
	got, err := r.Respond(context.Background(), history, "hi")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got.English != "Hello there" || got.Chinese != "你好。" {
		t.Fatalf("unexpected reply: %+v", got)
	}
	first := c.seen[0]
	if len(first) != 4 || first[0].Role != "system" || first[3].Content != "hi" {
		t.Fatalf("unexpected context: %+v", first)
	}
	if c.opts[0] != ReplyOptions || c.opts[1] != TranslateOptions {
		t.Fatalf("unexpected options: %+v", c.opts)
	}
	if !strings.Contains(c.seen[1][1].Content, "Hello there") {
		t.Fatalf("translation request missing english text: %+v", c.seen[1])
	}
}

func TestResponder_HistoryTrimmed(t *testing.T) {
	r := NewResponder(&scriptedChat{}, 2)
	msgs := r.Context([]Message{
		{Role: "user", Content: "1"}, {Role: "assistant", Content: "2"}, {Role: "user", Content: "3"},
	}, "now")
	if len(msgs) != 4 || msgs[1].Content != "2" || msgs[2].Content != "3" || msgs[3].Content != "now" {
		t.Fatalf("unexpected trimmed context: %+v", msgs)
	}
}

func TestResponder_Fallbacks(t *testing.T) {
	t.Run("unavailable names the model", func(t *testing.T) {
		c := &scriptedChat{model: "phi4", errs: []error{&Error{Kind: KindUnavailable, Err: errors.New("down")}}}
		got, err := NewResponder(c, 10).Respond(context.Background(), nil, "hi")
		if err == nil || !strings.Contains(got.English, "(phi4)") || !strings.Contains(got.Chinese, "(phi4)") {
			t.Fatalf("unexpected fallback: %+v %v", got, err)
		}
	})
	t.Run("empty response", func(t *testing.T) {
		c := &scriptedChat{model: "m", replies: []string{"```code only```"}}
		got, err := NewResponder(c, 10).Respond(context.Background(), nil, "hi")
		var le *Error
		if !errors.As(err, &le) || le.Kind != KindEmptyResponse || !strings.Contains(got.English, "couldn't generate") {
			t.Fatalf("unexpected: %+v %v", got, err)
		}
	})
	t.Run("translation down keeps english", func(t *testing.T) {
		c := &scriptedChat{model: "m", replies: []string{"Fine."}, errs: []error{nil, errors.New("boom")}}
		got, err := NewResponder(c, 10).Respond(context.Background(), nil, "hi")
		if err != nil || got.English != "Fine." || got.Chinese != TranslationUnavailable {
			t.Fatalf("unexpected: %+v %v", got, err)
		}
	})
	t.Run("translation without chinese", func(t *testing.T) {
		c := &scriptedChat{model: "m", replies: []string{"Fine.", "Sorry, I cannot."}}
		got, _ := NewResponder(c, 10).Respond(context.Background(), nil, "hi")
		if got.Chinese != EmptyChinese {
			t.Fatalf("unexpected chinese: %q", got.Chinese)
		}
	})
	t.Run("generic error", func(t *testing.T) {
		got := Fallback(errors.New("x"), "m")
		if !strings.Contains(got.English, "encountered an error") {
			t.Fatalf("unexpected: %+v", got)
		}
	})
}

// ---------- cleaning ----------

func TestCleanEnglish(t *testing.T) {
	cases := map[string]string{
		"Hello 😀 world":                        "Hello world",
		"See [the docs](http://x.y) now":        "See the docs now",
		"Use ```go\nfmt.Println()\n``` instead": "Use instead",
		"This is *very* __important__":          "This is very important",
		"Great :) thanks ;)":                    "Great thanks",
		"Visit https://example.com today":       "Visit https://example.com today",
		"a\n\n\n\nb":                            "a\n\nb",
		"## Title\nbody":                        "Title\nbody",
	}
	for in, want := range cases {
		if got := CleanEnglish(in); got != want {
			t.Errorf("CleanEnglish(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestExtractChinese(t *testing.T) {
	in := "Here is the translation:\n以下是翻译：\n“今天天气很好。”\nNote: this is natural.\n我们去散步吧！"
	want := "今天天气很好。\n我们去散步吧！"
	if got := ExtractChinese(in); got != want {
		t.Fatalf("ExtractChinese = %q; want %q", got, want)
	}
	if got := ExtractChinese("Only English here."); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
