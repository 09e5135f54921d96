package services

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/go-audio/audio"
	"gorm.io/gorm"

	"github.com/tbourn/go-voice-assistant/internal/artifact"
	"github.com/tbourn/go-voice-assistant/internal/llm"
	"github.com/tbourn/go-voice-assistant/internal/repo"
)

const foxSentence = "The little fox crossed the river before sunrise." // 48 runes

// newLedger opens a file-backed SQLite ledger with foreign keys on and an
// artifact store, both under t.TempDir().
func newLedger(t *testing.T) (*gorm.DB, *artifact.Store) {
	t.Helper()
	dir := t.TempDir()
	db, err := repo.OpenSQLite(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := artifact.New(filepath.Join(dir, "audio"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return db, store
}

// ---------- fakes ----------

type fakeResponder struct {
	mu        sync.Mutex
	reply     llm.Reply
	err       error
	prompts   []string
	histories [][]llm.Message
}

func (f *fakeResponder) Respond(_ context.Context, history []llm.Message, prompt string) (llm.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.histories = append(f.histories, history)
	if f.err != nil {
		return llm.Fallback(f.err, "test-model"), f.err
	}
	return f.reply, nil
}

// fakeTTS returns a short constant tone per call; calls listed in failAt
// (by call order) fail.
type fakeTTS struct {
	mu       sync.Mutex
	failAt   map[int]bool
	n        int
	speakers []string
}

func (f *fakeTTS) Synthesize(_ context.Context, _ string, speaker string) (*audio.IntBuffer, error) {
	f.mu.Lock()
	i := f.n
	f.n++
	f.speakers = append(f.speakers, speaker)
	f.mu.Unlock()

	if f.failAt[i] {
		return nil, errors.New("synthesis server unavailable")
	}
	data := make([]int, 240)
	for j := range data {
		data[j] = (i + 1) * 100
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 24000},
		Data:           data,
		SourceBitDepth: 16,
	}, nil
}

type recordingScheduler struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (r *recordingScheduler) Schedule(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return r.err
}

func (r *recordingScheduler) scheduled() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

type fakeSTT struct {
	text string
	err  error
}

func (f fakeSTT) Transcribe(context.Context, []byte, string, string) (string, error) {
	return f.text, f.err
}

func newOrchestrator(db *gorm.DB, store *artifact.Store, r Responder, s Synthesizer, m MergeScheduler) *Orchestrator {
	return &Orchestrator{
		DB:               db,
		Store:            store,
		Responder:        r,
		TTS:              s,
		Merges:           m,
		Session:          &Session{},
		MaxSegmentLength: 250,
		Speaker:          "zonos_americanfemale",
	}
}

// eventKinds lists the types of events in order, with segment indexes for
// audio and error events, e.g. "text", "audio:0", "error:2".
func eventKinds(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		switch ev := e.(type) {
		case TextEvent:
			out[i] = "text"
		case AudioEvent:
			out[i] = "audio:" + strconv.Itoa(ev.SegmentIndex)
		case ErrorEvent:
			out[i] = "error:" + strconv.Itoa(ev.SegmentIndex)
		}
	}
	return out
}
