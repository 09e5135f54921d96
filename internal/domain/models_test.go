package domain

import (
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "domain.db") + "?_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestTableNames(t *testing.T) {
	if (Message{}).TableName() != "messages" {
		t.Fatalf("Message.TableName() = %q", (Message{}).TableName())
	}
	if (AudioSegment{}).TableName() != "audio_segments" {
		t.Fatalf("AudioSegment.TableName() = %q", (AudioSegment{}).TableName())
	}
	if (MergedAudio{}).TableName() != "merged_audio" {
		t.Fatalf("MergedAudio.TableName() = %q", (MergedAudio{}).TableName())
	}
}

func TestNewKey(t *testing.T) {
	if got := NewKey(RoleAssistant, "abc"); got != "assistant-abc" {
		t.Fatalf("NewKey = %q", got)
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&Message{}, &AudioSegment{}, &MergedAudio{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{&Message{}, &AudioSegment{}, &MergedAudio{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&AudioSegment{}, "ux_segment_message_index") {
		t.Fatalf("expected unique index ux_segment_message_index on audio_segments")
	}

	now := time.Now().UTC()
	msg := &Message{
		Key: NewKey(RoleAssistant, "m1"), MessageID: "m1", Role: RoleAssistant,
		Content: "hello", Translation: "你好", CreatedAt: now,
		Meta: &MessageMeta{Transcript: "hi"},
	}
	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("insert message: %v", err)
	}

	seg := &AudioSegment{MessageRefID: msg.ID, SegmentIndex: 0, Path: "m1_0.wav", SampleRate: 24000}
	if err := db.Create(seg).Error; err != nil {
		t.Fatalf("insert segment: %v", err)
	}
	dup := &AudioSegment{MessageRefID: msg.ID, SegmentIndex: 0, Path: "other.wav", SampleRate: 24000}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique violation on (message, segment_index)")
	}
	if err := db.Create(&MergedAudio{MessageRefID: msg.ID, Path: "m1_merged.wav", SampleRate: 24000, SegmentsCount: 1}).Error; err != nil {
		t.Fatalf("insert merged: %v", err)
	}
	if err := db.Create(&MergedAudio{MessageRefID: msg.ID, Path: "again.wav", SampleRate: 24000, SegmentsCount: 1}).Error; err == nil {
		t.Fatalf("expected at most one merged row per message")
	}

	// Meta survives a round trip through the JSON serializer.
	var got Message
	if err := db.Preload("Segments").Preload("Merged").First(&got, msg.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Meta == nil || got.Meta.Transcript != "hi" || len(got.Segments) != 1 || got.Merged == nil {
		t.Fatalf("unexpected reload: %+v", got)
	}

	// Role constraint.
	bad := &Message{Key: "x-m2", MessageID: "m2", Role: "system", Content: "x"}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected role check constraint to reject %q", bad.Role)
	}

	// CASCADE: deleting the message removes its audio rows.
	if err := db.Delete(&Message{}, msg.ID).Error; err != nil {
		t.Fatalf("delete message: %v", err)
	}
	var cnt int64
	db.Model(&AudioSegment{}).Count(&cnt)
	if cnt != 0 {
		t.Fatalf("expected segments to cascade-delete, got %d", cnt)
	}
	db.Model(&MergedAudio{}).Count(&cnt)
	if cnt != 0 {
		t.Fatalf("expected merged audio to cascade-delete, got %d", cnt)
	}
}
