// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response helpers shared by every endpoint. Every
// error leaves the server as an ErrorResponse with a stable code and a
// bilingual apology the client can show as is:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "message not found",
//	  "apology": {
//	    "english": "Sorry, I could not find that.",
//	    "chinese": "抱歉，没有找到相关内容。"
//	  }
//	}
//
// fail logs 5xx responses with the request-scoped logger.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-voice-assistant/internal/http/middleware"
)

// Apology is the user-facing bilingual text attached to every error.
type Apology struct {
	English string `json:"english" example:"Sorry, something went wrong. Please try again."`
	Chinese string `json:"chinese" example:"抱歉，出现了问题，请稍后再试。"`
}

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Developer-facing description
	Message string  `json:"message" example:"message not found"`
	Apology Apology `json:"apology"`
}

var (
	apologyBadRequest = Apology{
		English: "Sorry, I could not understand that request.",
		Chinese: "抱歉，我无法理解这个请求。",
	}
	apologyNotFound = Apology{
		English: "Sorry, I could not find that.",
		Chinese: "抱歉，没有找到相关内容。",
	}
	apologyBusy = Apology{
		English: "Sorry, I am receiving too many requests. Please wait a moment.",
		Chinese: "抱歉，请求过于频繁，请稍等片刻。",
	}
	apologyTooLarge = Apology{
		English: "Sorry, that upload is too large.",
		Chinese: "抱歉，上传的文件太大了。",
	}
	apologyNoSpeech = Apology{
		English: "Sorry, I could not hear any speech in that recording.",
		Chinese: "抱歉，录音中没有检测到语音。",
	}
	apologyServer = Apology{
		English: "Sorry, something went wrong. Please try again.",
		Chinese: "抱歉，出现了问题，请稍后再试。",
	}
)

func apologyFor(status int, code string) Apology {
	switch {
	case code == ErrCodeNoSpeech:
		return apologyNoSpeech
	case status == http.StatusNotFound:
		return apologyNotFound
	case status == http.StatusTooManyRequests:
		return apologyBusy
	case status == http.StatusRequestEntityTooLarge:
		return apologyTooLarge
	case status >= http.StatusInternalServerError:
		return apologyServer
	default:
		return apologyBadRequest
	}
}

// fail aborts the request with a structured error and logs server errors.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
		Apology:   apologyFor(status, code),
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// Panic writes the envelope for a recovered panic.
func Panic(c *gin.Context) {
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}

// RateLimited writes the envelope for a request rejected by the limiter.
func RateLimited(c *gin.Context) {
	fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, "rate limit exceeded")
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
