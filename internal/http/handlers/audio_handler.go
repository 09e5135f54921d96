// Audio HTTP handlers.
//
//   - POST /get_audio              (form field message_id)
//   - GET  /messages/{id}/audio
//
// Both return the merged WAV of an assistant message as base64. When the
// background merge has not produced a file yet the segments are merged on
// demand and is_merged is false.
package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-voice-assistant/internal/services"
)

// AudioResponse carries one message's audio.
type AudioResponse struct {
	Type       string `json:"type" example:"audio"`
	MessageID  string `json:"message_id" example:"5f0c6a9e-3a7b-4a51-9c38-2f1de3f0b7a4"`
	AudioData  string `json:"audio_data" example:"UklGRiQAAABXQVZFZm10IBAAAAABAAEA..."`
	SampleRate int    `json:"sample_rate" example:"24000"`
	Format     string `json:"format" example:"base64"`
	IsMerged   bool   `json:"is_merged" example:"true"`
}

func (h *Handlers) writeAudio(c *gin.Context, identifier string) {
	res, err := h.audio.GetAudio(c.Request.Context(), identifier)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMessageNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
		case errors.Is(err, services.ErrNoAudio):
			fail(c, http.StatusNotFound, ErrCodeNoAudio, "no audio for message")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeAudioFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, AudioResponse{
		Type:       "audio",
		MessageID:  res.MessageID,
		AudioData:  base64.StdEncoding.EncodeToString(res.WAV),
		SampleRate: res.SampleRate,
		Format:     "base64",
		IsMerged:   res.IsMerged,
	})
}

// GetAudio godoc
// @ID          getAudio
// @Summary     Get the audio of an assistant message
// @Description Looks the message up tolerantly (exact id, legacy key, prefix, substring).
// @Tags        Audio
// @Accept      x-www-form-urlencoded
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       message_id  formData  string  true  "Message id"
//
// @Success     200  {object}  handlers.AudioResponse
// @Failure     400  {object}  handlers.ErrorResponse "Missing message_id"
// @Failure     404  {object}  handlers.ErrorResponse "Message or audio not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /get_audio [post]
func (h *Handlers) GetAudio(c *gin.Context) {
	id := strings.TrimSpace(c.PostForm("message_id"))
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message_id required")
		return
	}
	h.writeAudio(c, id)
}

// GetMessageAudio godoc
// @ID          getMessageAudio
// @Summary     Get the audio of an assistant message
// @Tags        Audio
// @Produce     json
//
// @Param       id  path  string  true  "Message id"
//
// @Success     200  {object}  handlers.AudioResponse
// @Failure     404  {object}  handlers.ErrorResponse "Message or audio not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /messages/{id}/audio [get]
func (h *Handlers) GetMessageAudio(c *gin.Context) {
	h.writeAudio(c, c.Param("id"))
}
