package services

import (
	"encoding/json"
	"sync"

	"github.com/tbourn/go-voice-assistant/internal/llm"
)

// Event is one line of a streamed reply. The concrete types are TextEvent,
// AudioEvent and ErrorEvent; each marshals with a "type" discriminator.
type Event interface {
	Type() string
}

// TextEvent opens every stream and carries the bilingual reply.
type TextEvent struct {
	MessageID string    `json:"message_id"`
	Content   llm.Reply `json:"content"`
}

// AudioEvent carries one synthesized segment as a base64 WAV.
type AudioEvent struct {
	MessageID     string `json:"message_id"`
	SegmentIndex  int    `json:"segment_index"`
	TotalSegments int    `json:"total_segments"`
	AudioData     string `json:"audio_data"`
	Format        string `json:"format"`
	SampleRate    int    `json:"sample_rate"`
}

// ErrorEvent reports a segment that could not be delivered.
type ErrorEvent struct {
	MessageID    string `json:"message_id"`
	SegmentIndex int    `json:"segment_index"`
	Message      string `json:"message"`
}

func (TextEvent) Type() string  { return "text" }
func (AudioEvent) Type() string { return "audio" }
func (ErrorEvent) Type() string { return "error" }

func (e TextEvent) MarshalJSON() ([]byte, error) {
	type plain TextEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{e.Type(), plain(e)})
}

func (e AudioEvent) MarshalJSON() ([]byte, error) {
	type plain AudioEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{e.Type(), plain(e)})
}

func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	type plain ErrorEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{e.Type(), plain(e)})
}

// EventSink receives the events of one reply, in order, from a single
// goroutine. An Emit error means the consumer is gone.
type EventSink interface {
	Emit(Event) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event) error

func (f SinkFunc) Emit(e Event) error { return f(e) }

// Collector buffers events in memory.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *Collector) Emit(e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

// Events returns a copy of what was emitted so far.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}
