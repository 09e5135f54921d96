package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-voice-assistant/internal/artifact"
	"github.com/tbourn/go-voice-assistant/internal/domain"
	"github.com/tbourn/go-voice-assistant/internal/llm"
	"github.com/tbourn/go-voice-assistant/internal/queue"
	"github.com/tbourn/go-voice-assistant/internal/repo"
)

func TestOrchestrator_LongStoryEndToEnd(t *testing.T) {
	db, store := newLedger(t)
	story := strings.TrimSpace(strings.Repeat(foxSentence+" ", 12))

	q := queue.NewMemory(8)
	worker := &MergeWorker{DB: db, Store: store, Queue: q, Concurrency: 1, MaxAttempts: 2, RetryDelay: time.Millisecond}
	worker.Start(context.Background())

	o := newOrchestrator(db, store, &fakeResponder{reply: llm.Reply{English: story, Chinese: "很长的故事。"}}, &fakeTTS{}, worker)
	var sink Collector
	if err := o.Respond(context.Background(), Turn{Prompt: "Tell me a long story", InputType: domain.InputText, WantAudio: true}, &sink); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	events := sink.Events()
	if got, want := eventKinds(events), []string{"text", "audio:0", "audio:1", "audio:2"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v; want %v", got, want)
	}
	text := events[0].(TextEvent)
	if text.Content.English != story || text.Content.Chinese != "很长的故事。" {
		t.Fatalf("unexpected text event: %+v", text)
	}
	for _, e := range events[1:] {
		a := e.(AudioEvent)
		if a.MessageID != text.MessageID || a.TotalSegments != 3 || a.Format != "wav" || a.SampleRate != 24000 {
			t.Fatalf("unexpected audio event: %+v", a)
		}
		wav, err := base64.StdEncoding.DecodeString(a.AudioData)
		if err != nil {
			t.Fatalf("audio_data not base64: %v", err)
		}
		if buf, err := artifact.DecodeWAV(wav); err != nil || len(buf.Data) != 240 {
			t.Fatalf("segment %d does not decode: %v", a.SegmentIndex, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := worker.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	msg, err := repo.GetMessage(context.Background(), db, text.MessageID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if msg.Role != domain.RoleAssistant || msg.Translation != "很长的故事。" || len(msg.Segments) != 3 {
		t.Fatalf("unexpected ledger row: %+v", msg)
	}
	if msg.Merged == nil || msg.Merged.SegmentsCount != 3 || msg.Merged.Path != artifact.MergedName(text.MessageID) {
		t.Fatalf("expected merged audio with 3 segments, got %+v", msg.Merged)
	}
	if want := 720.0 / 24000; msg.Merged.Duration != want {
		t.Fatalf("duration = %v; want %v", msg.Merged.Duration, want)
	}
}

func TestOrchestrator_PartialFailureKeepsOrder(t *testing.T) {
	db, store := newLedger(t)
	sched := &recordingScheduler{}
	o := newOrchestrator(db, store,
		&fakeResponder{reply: llm.Reply{English: "One two three. Four five six. Seven eight nine. Ten eleven twelve.", Chinese: "一二三。"}},
		&fakeTTS{failAt: map[int]bool{2: true}}, sched)
	o.MaxSegmentLength = 20

	var sink Collector
	if err := o.Respond(context.Background(), Turn{Prompt: "count", WantAudio: true}, &sink); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	events := sink.Events()
	if got, want := eventKinds(events), []string{"text", "audio:0", "audio:1", "error:2", "audio:3"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v; want %v", got, want)
	}
	id := events[0].(TextEvent).MessageID
	if e := events[3].(ErrorEvent); e.MessageID != id || !strings.Contains(e.Message, "segment 2") {
		t.Fatalf("unexpected error event: %+v", e)
	}
	if got := sched.scheduled(); !reflect.DeepEqual(got, []string{id}) {
		t.Fatalf("scheduled = %v", got)
	}

	msg, _ := repo.GetMessage(context.Background(), db, id)
	var idx []int
	for _, s := range msg.Segments {
		idx = append(idx, s.SegmentIndex)
	}
	if !reflect.DeepEqual(idx, []int{0, 1, 3}) {
		t.Fatalf("persisted segments = %v", idx)
	}
	if store.Exists(artifact.SegmentName(id, 2)) {
		t.Fatalf("failed segment must not leave a file")
	}
}

func TestOrchestrator_TextOnly(t *testing.T) {
	db, store := newLedger(t)
	sched := &recordingScheduler{}
	tts := &fakeTTS{}
	o := newOrchestrator(db, store, &fakeResponder{reply: llm.Reply{English: "Hi.", Chinese: "你好。"}}, tts, sched)

	var sink Collector
	if err := o.Respond(context.Background(), Turn{Prompt: "hello", WantAudio: false}, &sink); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got := eventKinds(sink.Events()); !reflect.DeepEqual(got, []string{"text"}) {
		t.Fatalf("events = %v", got)
	}
	if tts.n != 0 || len(sched.scheduled()) != 0 {
		t.Fatalf("text-only turn must not synthesize or merge")
	}
	msgs, _ := repo.ListSession(context.Background(), db)
	if len(msgs) != 2 || msgs[0].Role != domain.RoleUser || msgs[0].Content != "hello" || msgs[1].Role != domain.RoleAssistant {
		t.Fatalf("unexpected ledger: %+v", msgs)
	}
}

func TestOrchestrator_ModelFailureStreamsApology(t *testing.T) {
	db, store := newLedger(t)
	resp := &fakeResponder{err: &llm.Error{Kind: llm.KindUnavailable, Err: errors.New("connection refused")}}
	o := newOrchestrator(db, store, resp, &fakeTTS{}, &recordingScheduler{})

	var sink Collector
	if err := o.Respond(context.Background(), Turn{Prompt: "hello", WantAudio: true}, &sink); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	events := sink.Events()
	text := events[0].(TextEvent)
	if !strings.Contains(text.Content.English, "test-model") || text.Content.Chinese == "" {
		t.Fatalf("expected bilingual apology, got %+v", text.Content)
	}
	if len(events) < 2 {
		t.Fatalf("the apology is spoken too; got %v", eventKinds(events))
	}
	if h := o.Session.Snapshot(); len(h) != 0 {
		t.Fatalf("apologies stay out of the model history: %+v", h)
	}
}

func TestOrchestrator_Rejections(t *testing.T) {
	db, store := newLedger(t)
	o := newOrchestrator(db, store, &fakeResponder{}, &fakeTTS{}, &recordingScheduler{})
	var sink Collector
	if err := o.Respond(context.Background(), Turn{Prompt: "   "}, &sink); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}

	sqlDB, _ := db.DB()
	_ = sqlDB.Close()
	if err := o.Respond(context.Background(), Turn{Prompt: "hi"}, &sink); err == nil {
		t.Fatalf("expected a ledger error")
	}
	if len(sink.Events()) != 0 {
		t.Fatalf("nothing may be emitted before the message is persisted")
	}
}

func TestOrchestrator_NoSegmentPersistedSkipsMerge(t *testing.T) {
	db, store := newLedger(t)
	sched := &recordingScheduler{}
	o := newOrchestrator(db, store, &fakeResponder{reply: llm.Reply{English: "Short.", Chinese: "短。"}},
		&fakeTTS{failAt: map[int]bool{0: true}}, sched)

	var sink Collector
	if err := o.Respond(context.Background(), Turn{Prompt: "x", WantAudio: true}, &sink); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got := eventKinds(sink.Events()); !reflect.DeepEqual(got, []string{"text", "error:0"}) {
		t.Fatalf("events = %v", got)
	}
	if len(sched.scheduled()) != 0 {
		t.Fatalf("merge scheduled without segments")
	}
}

func TestOrchestrator_ConsumerGoneStillMerges(t *testing.T) {
	db, store := newLedger(t)
	sched := &recordingScheduler{}
	o := newOrchestrator(db, store, &fakeResponder{reply: llm.Reply{English: "One two three. Four five six. Seven eight nine.", Chinese: "一。"}},
		&fakeTTS{}, sched)
	o.MaxSegmentLength = 20

	gone := errors.New("broken pipe")
	var n int
	sink := SinkFunc(func(e Event) error {
		n++
		if n == 3 { // text, audio:0, then audio:1 fails to write
			return gone
		}
		return nil
	})
	if err := o.Respond(context.Background(), Turn{Prompt: "count", WantAudio: true}, sink); !errors.Is(err, gone) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if len(sched.scheduled()) != 1 {
		t.Fatalf("merge must be scheduled for persisted segments")
	}
	id := sched.scheduled()[0]
	segs, _ := repo.GetMessage(context.Background(), db, id)
	if len(segs.Segments) != 2 {
		t.Fatalf("expected 2 persisted segments, got %d", len(segs.Segments))
	}
}

func TestOrchestrator_CancelledContextStopsStream(t *testing.T) {
	db, store := newLedger(t)
	sched := &recordingScheduler{}
	o := newOrchestrator(db, store, &fakeResponder{reply: llm.Reply{English: "One two three. Four five six.", Chinese: "一。"}},
		&fakeTTS{}, sched)
	o.MaxSegmentLength = 15

	ctx, cancel := context.WithCancel(context.Background())
	sink := SinkFunc(func(e Event) error {
		if _, ok := e.(AudioEvent); ok {
			cancel()
		}
		return nil
	})
	if err := o.Respond(ctx, Turn{Prompt: "count", WantAudio: true}, sink); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(sched.scheduled()) != 1 {
		t.Fatalf("merge must still be scheduled after a disconnect")
	}
}

func TestOrchestrator_SpeakerAndHistory(t *testing.T) {
	db, store := newLedger(t)
	resp := &fakeResponder{reply: llm.Reply{English: "Sure.", Chinese: "好。"}}
	tts := &fakeTTS{}
	o := newOrchestrator(db, store, resp, tts, &recordingScheduler{})

	ctx := context.Background()
	_ = o.Respond(ctx, Turn{Prompt: "first", Speaker: "default", WantAudio: true}, &Collector{})
	_ = o.Respond(ctx, Turn{Prompt: "second", Speaker: "narrator", WantAudio: true}, &Collector{})

	if !reflect.DeepEqual(tts.speakers, []string{"zonos_americanfemale", "narrator"}) {
		t.Fatalf("speakers = %v", tts.speakers)
	}
	if len(resp.histories[0]) != 0 {
		t.Fatalf("first turn history = %+v", resp.histories[0])
	}
	want := []llm.Message{{Role: "user", Content: "first"}, {Role: "assistant", Content: "Sure."}}
	if !reflect.DeepEqual(resp.histories[1], want) {
		t.Fatalf("second turn history = %+v", resp.histories[1])
	}

	// A fresh session is seeded from the ledger.
	o2 := newOrchestrator(db, store, resp, tts, &recordingScheduler{})
	_ = o2.Respond(ctx, Turn{Prompt: "third"}, &Collector{})
	if got := resp.histories[2]; len(got) != 4 || got[2].Content != "second" {
		t.Fatalf("seeded history = %+v", got)
	}
}

func TestEvents_WireFormat(t *testing.T) {
	cases := []struct {
		ev   Event
		want map[string]any
	}{
		{TextEvent{MessageID: "m1", Content: llm.Reply{English: "Hi", Chinese: "你好"}},
			map[string]any{"type": "text", "message_id": "m1", "content": map[string]any{"english": "Hi", "chinese": "你好"}}},
		{AudioEvent{MessageID: "m1", SegmentIndex: 1, TotalSegments: 3, AudioData: "UklGRg==", Format: "wav", SampleRate: 24000},
			map[string]any{"type": "audio", "message_id": "m1", "segment_index": 1.0, "total_segments": 3.0, "audio_data": "UklGRg==", "format": "wav", "sample_rate": 24000.0}},
		{ErrorEvent{MessageID: "m1", SegmentIndex: 2, Message: "boom"},
			map[string]any{"type": "error", "message_id": "m1", "segment_index": 2.0, "message": "boom"}},
	}
	for _, tc := range cases {
		b, err := json.Marshal(tc.ev)
		if err != nil {
			t.Fatalf("marshal %T: %v", tc.ev, err)
		}
		var got map[string]any
		_ = json.Unmarshal(b, &got)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%T = %s", tc.ev, b)
		}
	}
}
