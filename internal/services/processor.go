package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-voice-assistant/internal/domain"
)

// Transcriber turns a voice upload into text. An empty result means no
// speech was found.
type Transcriber interface {
	Transcribe(ctx context.Context, data []byte, filename, contentType string) (string, error)
}

// ImageAnalyzer describes a stored image.
type ImageAnalyzer interface {
	Analyze(ctx context.Context, path string) (string, error)
}

// PlaceholderAnalyzer stands in until a vision model is wired up.
type PlaceholderAnalyzer struct{}

func (PlaceholderAnalyzer) Analyze(context.Context, string) (string, error) {
	return "这是一张图片", nil
}

// Upload is one file from a chat request.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (u Upload) isAudio() bool { return strings.Contains(strings.ToLower(u.ContentType), "audio") }
func (u Upload) isImage() bool { return strings.Contains(strings.ToLower(u.ContentType), "image") }

// ChatRequest is a chat submission of any input type.
type ChatRequest struct {
	MessageType string
	Message     string
	Files       []Upload
	SessionID   string
	Speaker     string
	StreamAudio bool
}

// Processor reduces text, voice, image and mixed input to a prompt and
// hands it to the orchestrator.
type Processor struct {
	Orchestrator *Orchestrator
	STT          Transcriber
	Images       ImageAnalyzer
	ImageDir     string
}

// Validate checks the request shape for its message type.
func Validate(req ChatRequest) error {
	msg := strings.TrimSpace(req.Message)
	switch req.MessageType {
	case domain.InputText:
		if msg == "" {
			return fmt.Errorf("%w: text message requires a message", ErrInvalidRequest)
		}
	case domain.InputVoice:
		if len(req.Files) == 0 || !req.Files[0].isAudio() {
			return fmt.Errorf("%w: voice message requires an audio file", ErrInvalidRequest)
		}
	case domain.InputImage:
		if len(req.Files) == 0 || !req.Files[0].isImage() {
			return fmt.Errorf("%w: image message requires an image file", ErrInvalidRequest)
		}
	case domain.InputMixed:
		if msg == "" && len(req.Files) == 0 {
			return fmt.Errorf("%w: mixed message requires a message or files", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedType, req.MessageType)
	}
	return nil
}

// Process validates req, builds the turn and streams the reply to sink.
func (p *Processor) Process(ctx context.Context, req ChatRequest, sink EventSink) error {
	tr := otel.Tracer("services/Processor")
	ctx, span := tr.Start(ctx, "Process",
		trace.WithAttributes(
			attribute.String("input.type", req.MessageType),
			attribute.Int("files", len(req.Files)),
		),
	)
	defer span.End()

	if err := Validate(req); err != nil {
		return err
	}
	turn, err := p.prepare(ctx, req)
	if err != nil {
		return err
	}
	turn.InputType = req.MessageType
	turn.Speaker = req.Speaker
	turn.WantAudio = req.StreamAudio
	return p.Orchestrator.Respond(ctx, turn, sink)
}

func (p *Processor) prepare(ctx context.Context, req ChatRequest) (Turn, error) {
	msg := strings.TrimSpace(req.Message)
	switch req.MessageType {
	case domain.InputVoice:
		return p.voice(ctx, req.Files[0])
	case domain.InputImage:
		return p.image(ctx, req.Files[0], msg)
	case domain.InputMixed:
		return p.mixed(ctx, req.Files, msg)
	default:
		return Turn{Prompt: msg}, nil
	}
}

func (p *Processor) voice(ctx context.Context, f Upload) (Turn, error) {
	text, err := p.STT.Transcribe(ctx, f.Data, f.Filename, f.ContentType)
	if err != nil {
		return Turn{}, fmt.Errorf("transcribe: %w", err)
	}
	if text == "" {
		return Turn{}, ErrNoSpeech
	}
	return Turn{Prompt: text, Meta: &domain.MessageMeta{Transcript: text}}, nil
}

func (p *Processor) image(ctx context.Context, f Upload, msg string) (Turn, error) {
	path, desc, err := p.describe(ctx, f)
	if err != nil {
		return Turn{}, err
	}
	prompt := "用户发送了一张图片。图片内容: " + desc
	if msg != "" {
		prompt += "。用户还附带了消息: " + msg
	}
	return Turn{Prompt: prompt, Meta: &domain.MessageMeta{ImagePath: path, FileDescriptions: []string{desc}}}, nil
}

func (p *Processor) mixed(ctx context.Context, files []Upload, msg string) (Turn, error) {
	meta := &domain.MessageMeta{}
	var parts []string
	for _, f := range files {
		switch {
		case f.isImage():
			path, desc, err := p.describe(ctx, f)
			if err != nil {
				return Turn{}, err
			}
			if meta.ImagePath == "" {
				meta.ImagePath = path
			}
			parts = append(parts, "图像: "+desc)
		case f.isAudio():
			text, err := p.STT.Transcribe(ctx, f.Data, f.Filename, f.ContentType)
			if err != nil {
				return Turn{}, fmt.Errorf("transcribe %s: %w", f.Filename, err)
			}
			if text == "" {
				continue
			}
			if meta.Transcript == "" {
				meta.Transcript = text
			}
			parts = append(parts, "语音内容: "+text)
		default:
			zerolog.Ctx(ctx).Debug().Str("content_type", f.ContentType).Msg("ignoring attachment")
		}
	}
	meta.FileDescriptions = parts

	prompt := msg
	if len(parts) > 0 {
		prompt = "用户发送了以下内容: " + strings.Join(parts, "; ") + "."
		if msg != "" {
			prompt += " 用户消息: " + msg
		}
	}
	if prompt == "" {
		return Turn{}, ErrEmptyPrompt
	}
	return Turn{Prompt: prompt, Meta: meta}, nil
}

// describe stores an image under ImageDir with a ULID name and analyzes it.
func (p *Processor) describe(ctx context.Context, f Upload) (string, string, error) {
	if err := os.MkdirAll(p.ImageDir, 0o755); err != nil {
		return "", "", err
	}
	name := ulid.Make().String() + imageExt(f)
	path := filepath.Join(p.ImageDir, name)
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return "", "", fmt.Errorf("save image: %w", err)
	}
	desc, err := p.Images.Analyze(ctx, path)
	if err != nil {
		return "", "", fmt.Errorf("analyze image: %w", err)
	}
	return path, desc, nil
}

func imageExt(f Upload) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(f.Filename)))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp":
		return ext
	}
	switch strings.ToLower(f.ContentType) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ".jpg"
}
