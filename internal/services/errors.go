// Package services holds the voice assistant's application logic: message
// processing, the streaming reply pipeline, background merging, audio
// retrieval and session management.
//
// Sentinel errors below are mapped to HTTP results by the handlers.
package services

import "errors"

// Input errors, rejected before any model or synthesis call.
var (
	// ErrInvalidRequest wraps a validation failure; the wrapped text says which.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrEmptyPrompt is returned when nothing is left to send to the model.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrNoSpeech is returned when a voice upload transcribes to nothing.
	ErrNoSpeech = errors.New("no speech detected")

	// ErrUnsupportedType is returned for an unknown message_type.
	ErrUnsupportedType = errors.New("unsupported message type")
)

// Lookup errors.
var (
	// ErrMessageNotFound indicates no message matched the identifier.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNoAudio indicates the message exists but has no retrievable audio.
	ErrNoAudio = errors.New("no audio for message")
)
