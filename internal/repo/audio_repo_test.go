package repo

import (
	"context"
	"testing"

	"github.com/tbourn/go-voice-assistant/internal/domain"
)

func TestAttachSegment_OverwritesOnConflict(t *testing.T) {
	db := newLedgerDB(t)
	ctx := context.Background()
	m, err := CreateMessage(ctx, db, NewMessage{Role: domain.RoleAssistant, Content: "x"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	d := 1.25
	if _, err := AttachSegment(ctx, db, m.ID, domain.AudioSegment{SegmentIndex: 0, Path: "old.wav", Text: "a", SampleRate: 22050}); err != nil {
		t.Fatalf("attach #1: %v", err)
	}
	if _, err := AttachSegment(ctx, db, m.ID, domain.AudioSegment{SegmentIndex: 0, Path: "new.wav", Text: "b", SampleRate: 24000, Duration: &d}); err != nil {
		t.Fatalf("attach #2 (conflict) should overwrite: %v", err)
	}
	if _, err := AttachSegment(ctx, db, m.ID, domain.AudioSegment{SegmentIndex: 1, Path: "s1.wav", SampleRate: 24000}); err != nil {
		t.Fatalf("attach #3: %v", err)
	}

	segs, err := ListSegments(ctx, db, m.ID)
	if err != nil {
		t.Fatalf("ListSegments: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	s0 := segs[0]
	if s0.SegmentIndex != 0 || s0.Path != "new.wav" || s0.Text != "b" || s0.SampleRate != 24000 || s0.Duration == nil || *s0.Duration != d {
		t.Fatalf("segment 0 not overwritten: %+v", s0)
	}
}

func TestFinalizeMerge_UpsertKeepsOneRow(t *testing.T) {
	db := newLedgerDB(t)
	ctx := context.Background()
	m, _ := CreateMessage(ctx, db, NewMessage{Role: domain.RoleAssistant, Content: "x"})

	for i := 1; i <= 3; i++ {
		if _, err := FinalizeMerge(ctx, db, m.ID, "m_merged.wav", 24000, float64(i), i); err != nil {
			t.Fatalf("FinalizeMerge #%d: %v", i, err)
		}
	}

	var rows []domain.MergedAudio
	if err := db.Where("message_ref_id = ?", m.ID).Find(&rows).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one merged row, got %d", len(rows))
	}
	if rows[0].SegmentsCount != 3 || rows[0].Duration != 3 {
		t.Fatalf("expected latest values, got %+v", rows[0])
	}
}

func TestListUnmergedMessageIDs(t *testing.T) {
	db := newLedgerDB(t)
	ctx := context.Background()

	pending, _ := CreateMessage(ctx, db, NewMessage{MessageID: "pending", Role: domain.RoleAssistant, Content: "x"})
	done, _ := CreateMessage(ctx, db, NewMessage{MessageID: "done", Role: domain.RoleAssistant, Content: "y"})
	_, _ = CreateMessage(ctx, db, NewMessage{MessageID: "silent", Role: domain.RoleAssistant, Content: "z"})
	_, _ = CreateMessage(ctx, db, NewMessage{MessageID: "user", Role: domain.RoleUser, Content: "u"})

	for _, m := range []*domain.Message{pending, done} {
		if _, err := AttachSegment(ctx, db, m.ID, domain.AudioSegment{SegmentIndex: 0, Path: "p", SampleRate: 24000}); err != nil {
			t.Fatalf("attach: %v", err)
		}
	}
	if _, err := FinalizeMerge(ctx, db, done.ID, "done_merged.wav", 24000, 1, 1); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	got, err := ListUnmergedMessageIDs(ctx, db)
	if err != nil {
		t.Fatalf("ListUnmergedMessageIDs: %v", err)
	}
	if len(got) != 1 || got[0] != "pending" {
		t.Fatalf("expected [pending], got %v", got)
	}
}
