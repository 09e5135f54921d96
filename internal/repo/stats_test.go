package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-voice-assistant/internal/domain"
)

func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
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
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func newLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	return newTestDB(t, &domain.Message{}, &domain.AudioSegment{}, &domain.MergedAudio{})
}

func TestSessionStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	if _, _, err := SessionStats(context.Background(), db); err == nil {
		t.Fatalf("expected error due to missing messages table")
	}
}

func TestSessionStats_ZeroRows(t *testing.T) {
	db := newLedgerDB(t)
	count, maxAt, err := SessionStats(context.Background(), db)
	if err != nil {
		t.Fatalf("SessionStats error: %v", err)
	}
	if count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", count, maxAt)
	}
}

func TestSessionStats_MaxAcrossAudioTables(t *testing.T) {
	db := newLedgerDB(t)

	t1 := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 4, 1, 12, 5, 0, 0, time.UTC)
	t3 := time.Date(2025, 4, 1, 12, 9, 0, 0, time.UTC) // merged row is newest

	m1 := &domain.Message{Key: "user-a", MessageID: "a", Role: "user", Content: "hi", CreatedAt: t1, UpdatedAt: t1}
	m2 := &domain.Message{Key: "assistant-b", MessageID: "b", Role: "assistant", Content: "hey", CreatedAt: t2, UpdatedAt: t2}
	for _, m := range []*domain.Message{m1, m2} {
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := db.Create(&domain.MergedAudio{MessageRefID: m2.ID, Path: "b_merged.wav", SampleRate: 24000, CreatedAt: t3, UpdatedAt: t3}).Error; err != nil {
		t.Fatalf("seed merged: %v", err)
	}

	count, maxAt, err := SessionStats(context.Background(), db)
	if err != nil {
		t.Fatalf("SessionStats error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
	if maxAt == nil || !maxAt.Equal(t3) {
		t.Fatalf("expected maxUpdatedAt %v, got %v", t3, maxAt)
	}
}

// Force the follow-up select to fail by renaming the column.
func TestSessionStats_SelectLatest_ErrorPath(t *testing.T) {
	db := newLedgerDB(t)
	now := time.Now().UTC()
	if err := db.Create(&domain.Message{Key: "user-x", MessageID: "x", Role: "user", Content: "x", CreatedAt: now, UpdatedAt: now}).Error; err != nil {
		t.Fatalf("seed msg: %v", err)
	}
	if err := db.Exec(`ALTER TABLE audio_segments RENAME COLUMN updated_at TO updated_at_old`).Error; err != nil {
		t.Fatalf("rename column: %v", err)
	}
	if _, _, err := SessionStats(context.Background(), db); err == nil {
		t.Fatalf("expected error from latest-updated select after column rename")
	}
}
