package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrorKind classifies a responder failure.
type ErrorKind int

const (
	// KindUnavailable: transport error, timeout or non-2xx after retries.
	KindUnavailable ErrorKind = iota + 1
	// KindEmptyResponse: the model answered with nothing usable.
	KindEmptyResponse
)

// Error is a typed responder failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindEmptyResponse:
		return "llm: empty response"
	default:
		return fmt.Sprintf("llm: unavailable: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Reply is a bilingual assistant answer.
type Reply struct {
	English string `json:"english"`
	Chinese string `json:"chinese"`
}

// Chatter is the single call the responder needs from a model client.
type Chatter interface {
	Chat(ctx context.Context, msgs []Message, opts Options) (string, error)
	Model() string
}

// Responder produces bilingual replies. It holds no conversation state;
// callers pass the history they want the model to see.
type Responder struct {
	LLM             Chatter
	SystemPrompt    string
	TranslatePrompt string
	MaxHistory      int
}

// NewResponder returns a Responder with the default prompts.
func NewResponder(c Chatter, maxHistory int) *Responder {
	return &Responder{
		LLM:             c,
		SystemPrompt:    DefaultSystemPrompt,
		TranslatePrompt: DefaultTranslatePrompt,
		MaxHistory:      maxHistory,
	}
}

// Respond asks the model for an English reply to prompt given history, then
// translates it. The returned Reply is always usable: when err is non-nil it
// holds the matching bilingual apology. A failed translation alone keeps the
// English text and is not reported as an error.
func (r *Responder) Respond(ctx context.Context, history []Message, prompt string) (Reply, error) {
	ctx, span := otel.Tracer("llm").Start(ctx, "Responder.Respond",
		trace.WithAttributes(attribute.Int("llm.history_len", len(history))))
	defer span.End()

	model := r.LLM.Model()
	msgs := r.Context(history, prompt)

	raw, err := r.LLM.Chat(ctx, msgs, ReplyOptions)
	if err != nil {
		span.RecordError(err)
		return Fallback(err, model), err
	}
	english := CleanEnglish(raw)
	if english == "" {
		err := &Error{Kind: KindEmptyResponse}
		return Fallback(err, model), err
	}

	return Reply{English: english, Chinese: r.translate(ctx, english)}, nil
}

// Context builds the message list sent to the model: the system prompt,
// the last MaxHistory history entries and the new user prompt.
func (r *Responder) Context(history []Message, prompt string) []Message {
	if r.MaxHistory > 0 && len(history) > r.MaxHistory {
		history = history[len(history)-r.MaxHistory:]
	}
	msgs := make([]Message, 0, len(history)+2)
	if r.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: "system", Content: r.SystemPrompt})
	}
	for _, m := range history {
		if m.Role == "system" {
			continue
		}
		msgs = append(msgs, m)
	}
	return append(msgs, Message{Role: "user", Content: prompt})
}

func (r *Responder) translate(ctx context.Context, english string) string {
	raw, err := r.LLM.Chat(ctx, []Message{
		{Role: "system", Content: r.TranslatePrompt},
		{Role: "user", Content: "Translate the following text into Chinese:\n\n" + english},
	}, TranslateOptions)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("translation failed")
		return TranslationUnavailable
	}
	zh := ExtractChinese(raw)
	if zh == "" {
		return EmptyChinese
	}
	return zh
}

// Apology texts.
const (
	TranslationUnavailable = "抱歉，翻译服务暂时不可用。以上为英文回复。"
	EmptyChinese           = "抱歉，我无法生成适当的中文回应。您能再试一次吗？"
)

// Fallback maps a responder failure to the apology pair shown to the user.
func Fallback(err error, model string) Reply {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindEmptyResponse:
			return Reply{
				English: "I'm sorry, I couldn't generate a proper response. Could you try asking again?",
				Chinese: "抱歉，我无法生成适当的回应。您能再试一次吗？",
			}
		case KindUnavailable:
			return Reply{
				English: fmt.Sprintf("I'm sorry, there was an error connecting to my language model (%s). Please try again later.", model),
				Chinese: fmt.Sprintf("抱歉，连接到我的语言模型 (%s) 时出现错误。请稍后再试。", model),
			}
		}
	}
	return Reply{
		English: "I'm sorry, I encountered an error while processing your request. Please try again.",
		Chinese: "抱歉，处理您的请求时遇到错误。请再试一次。",
	}
}

// Default prompts.
var (
	DefaultSystemPrompt = strings.Join([]string{
		"You are a warm, helpful voice assistant.",
		"Your answers are read aloud, so write plain conversational English.",
		"Do not use markdown, lists, code blocks, links or emoji.",
		"Keep answers focused and reasonably short unless the user asks for detail.",
	}, " ")

	DefaultTranslatePrompt = strings.Join([]string{
		"You are a professional translator.",
		"Translate the user's English text into natural, fluent Simplified Chinese.",
		"Output only the Chinese translation.",
		"Do not include any English, notes, explanations or quotation marks.",
		"Keep the original paragraph structure.",
	}, " ")
)
