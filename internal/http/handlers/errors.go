// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them. Generic
// codes mirror HTTP status semantics, the rest name what failed.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeTooLarge         = "payload_too_large"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeUnsupportedType = "unsupported_message_type"
	ErrCodeNoSpeech        = "no_speech"
	ErrCodeChatFailed      = "chat_failed"
	ErrCodeNoAudio         = "no_audio"
	ErrCodeAudioFailed     = "audio_failed"
	ErrCodeListFailed      = "list_failed"
	ErrCodeClearFailed     = "clear_failed"
)
