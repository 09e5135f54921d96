// Chat HTTP handlers.
//
// This file exposes the conversational endpoint:
//   - POST /chat  (multipart form; streams NDJSON events or returns the text reply)
//
// It also holds the service contracts every handler in this package depends
// on and the Handlers wiring.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-voice-assistant/internal/domain"
	"github.com/tbourn/go-voice-assistant/internal/http/middleware"
	"github.com/tbourn/go-voice-assistant/internal/services"
)

//
// Service contracts (context-aware)
//

// ChatProcessor turns a chat submission into a stream of events.
type ChatProcessor interface {
	Process(ctx context.Context, req services.ChatRequest, sink services.EventSink) error
}

// AudioService resolves the audio of an assistant message.
type AudioService interface {
	GetAudio(ctx context.Context, identifier string) (*services.AudioResult, error)
}

// SessionService reads and clears the stored conversation.
type SessionService interface {
	List(ctx context.Context) ([]domain.Message, error)
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Message, int64, error)
	Stats(ctx context.Context) (int64, *time.Time, error)
	Clear(ctx context.Context) (services.ClearResult, error)
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	chat     ChatProcessor
	audio    AudioService
	sessions SessionService
}

// New constructs Handlers bound to the given services.
func New(chat ChatProcessor, audio AudioService, sessions SessionService) *Handlers {
	return &Handlers{chat: chat, audio: audio, sessions: sessions}
}

//
// DTOs
//

// ChatTextResponse is returned when stream_audio is false.
type ChatTextResponse struct {
	MessageID string       `json:"message_id" example:"5f0c6a9e-3a7b-4a51-9c38-2f1de3f0b7a4"`
	Type      string       `json:"type" example:"text"`
	Content   ReplyContent `json:"content"`
	Status    string       `json:"status" example:"success"`
}

// ReplyContent is the bilingual assistant reply.
type ReplyContent struct {
	English string `json:"english" example:"The weather is lovely today."`
	Chinese string `json:"chinese" example:"今天天气很好。"`
}

const ndjsonContentType = "application/x-ndjson"

// ndjsonSink writes one JSON object per line and flushes after each. The
// 200 status and stream headers go out with the first event, so failures
// before it can still be answered with a proper error status.
type ndjsonSink struct {
	c       *gin.Context
	enc     *json.Encoder
	started bool
}

func newNDJSONSink(c *gin.Context) *ndjsonSink {
	return &ndjsonSink{c: c, enc: json.NewEncoder(c.Writer)}
}

func (s *ndjsonSink) Emit(e services.Event) error {
	if err := s.c.Request.Context().Err(); err != nil {
		return err
	}
	if !s.started {
		h := s.c.Writer.Header()
		h.Set("Content-Type", ndjsonContentType)
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Accel-Buffering", "no")
		s.c.Status(http.StatusOK)
		s.started = true
	}
	if err := s.enc.Encode(e); err != nil {
		return err
	}
	s.c.Writer.Flush()
	return nil
}

//
// Helpers
//

// readChatRequest parses the multipart (or urlencoded) chat form.
func readChatRequest(c *gin.Context) (services.ChatRequest, error) {
	var files []*multipart.FileHeader
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			return services.ChatRequest{}, err
		}
		files = form.File["files"]
	}

	req := services.ChatRequest{
		MessageType: strings.ToLower(strings.TrimSpace(c.PostForm("message_type"))),
		Message:     c.PostForm("message"),
		SessionID:   c.PostForm("session_id"),
		Speaker:     c.DefaultPostForm("speaker", "default"),
		StreamAudio: true,
	}
	if v := strings.TrimSpace(c.PostForm("stream_audio")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return services.ChatRequest{}, fmt.Errorf("%w: stream_audio must be a boolean", services.ErrInvalidRequest)
		}
		req.StreamAudio = b
	}

	for _, fh := range files {
		u, err := readUpload(fh)
		if err != nil {
			return services.ChatRequest{}, err
		}
		req.Files = append(req.Files, u)
	}
	return req, nil
}

func readUpload(fh *multipart.FileHeader) (services.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return services.Upload{}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return services.Upload{}, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return services.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// failChat maps processing errors onto the error envelope.
func failChat(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge), strings.Contains(err.Error(), "request body too large"):
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
	case errors.Is(err, services.ErrUnsupportedType):
		fail(c, http.StatusBadRequest, ErrCodeUnsupportedType, err.Error())
	case errors.Is(err, services.ErrNoSpeech):
		fail(c, http.StatusBadRequest, ErrCodeNoSpeech, "no speech detected")
	case errors.Is(err, services.ErrInvalidRequest), errors.Is(err, services.ErrEmptyPrompt):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, multipart.ErrMessageTooLarge):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeChatFailed, err.Error())
	}
}

//
// Handlers
//

// Chat godoc
// @ID          chat
// @Summary     Send a message and receive the assistant reply
// @Description Accepts text, voice, image or mixed input. With stream_audio=true (default)
// @Description the response is application/x-ndjson: one "text" event with the bilingual
// @Description reply, then one "audio" or "error" event per synthesized segment.
// @Tags        Chat
// @Accept      multipart/form-data
// @Produce     json
// @Produce     application/x-ndjson
//
// @Param       X-Session-ID  header    string  false "Client session id (rate limiting)"
// @Param       message_type  formData  string  true  "Input type" Enums(text, voice, image, mixed)
// @Param       message       formData  string  false "User text"
// @Param       files         formData  file    false "Audio or image uploads"
// @Param       session_id    formData  string  false "Client session id"
// @Param       speaker       formData  string  false "TTS speaker" default(default)
// @Param       stream_audio  formData  bool    false "Stream synthesized audio" default(true)
//
// @Success     200  {object}  handlers.ChatTextResponse  "Text reply (stream_audio=false)"
// @Failure     400  {object}  handlers.ErrorResponse     "Invalid input"
// @Failure     413  {object}  handlers.ErrorResponse     "Upload too large"
// @Failure     429  {object}  handlers.ErrorResponse     "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse     "Internal error"
// @Router      /chat [post]
func (h *Handlers) Chat(c *gin.Context) {
	req, err := readChatRequest(c)
	if err != nil {
		failChat(c, err)
		return
	}
	if err := services.Validate(req); err != nil {
		failChat(c, err)
		return
	}
	ctx := c.Request.Context()

	if !req.StreamAudio {
		var events services.Collector
		if err := h.chat.Process(ctx, req, &events); err != nil {
			failChat(c, err)
			return
		}
		for _, e := range events.Events() {
			if te, isText := e.(services.TextEvent); isText {
				ok(c, http.StatusOK, ChatTextResponse{
					MessageID: te.MessageID,
					Type:      te.Type(),
					Content:   ReplyContent{English: te.Content.English, Chinese: te.Content.Chinese},
					Status:    "success",
				})
				return
			}
		}
		fail(c, http.StatusInternalServerError, ErrCodeChatFailed, "no reply produced")
		return
	}

	sink := newNDJSONSink(c)
	err = h.chat.Process(ctx, req, sink)
	switch {
	case err == nil:
	case !sink.started:
		failChat(c, err)
	case errors.Is(err, context.Canceled):
		middleware.LoggerFrom(c).Info().Msg("client left mid-stream")
	default:
		// Headers are out; the error can only be logged.
		middleware.LoggerFrom(c).Error().Err(err).Msg("stream aborted")
	}
}
