// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the audio
// rows a message owns: per-segment records and the merged recording.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-voice-assistant/internal/domain"
)

// AttachSegment inserts one segment row or, when (message, segment_index)
// already exists, overwrites it. Readers see either the old or the new row,
// never a half-written one.
func AttachSegment(ctx context.Context, db *gorm.DB, messageRefID uint, seg domain.AudioSegment) (*domain.AudioSegment, error) {
	now := time.Now().UTC()
	seg.ID = 0
	seg.MessageRefID = messageRefID
	seg.CreatedAt = now
	seg.UpdatedAt = now

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_ref_id"}, {Name: "segment_index"}},
			DoUpdates: clause.AssignmentColumns([]string{"path", "text", "sample_rate", "duration", "updated_at"}),
		}).Create(&seg).Error
	})
	if err != nil {
		return nil, err
	}
	return &seg, nil
}

// ListSegments returns a message's segment rows ordered by segment_index.
func ListSegments(ctx context.Context, db *gorm.DB, messageRefID uint) ([]domain.AudioSegment, error) {
	var out []domain.AudioSegment
	err := db.WithContext(ctx).
		Where("message_ref_id = ?", messageRefID).
		Order("segment_index ASC").
		Find(&out).Error
	return out, err
}

// FinalizeMerge upserts the merged-audio row for a message. Repeated calls
// leave exactly one row.
func FinalizeMerge(ctx context.Context, db *gorm.DB, messageRefID uint, path string, sampleRate int, duration float64, segmentsCount int) (*domain.MergedAudio, error) {
	now := time.Now().UTC()
	ma := domain.MergedAudio{
		MessageRefID:  messageRefID,
		Path:          path,
		SampleRate:    sampleRate,
		Duration:      duration,
		SegmentsCount: segmentsCount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_ref_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"path", "sample_rate", "duration", "segments_count", "updated_at"}),
		}).Create(&ma).Error
	})
	if err != nil {
		return nil, err
	}
	return &ma, nil
}

// ListUnmergedMessageIDs returns assistant messages that own segments but
// no merged recording, oldest first.
func ListUnmergedMessageIDs(ctx context.Context, db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("role = ?", domain.RoleAssistant).
		Where("EXISTS (SELECT 1 FROM audio_segments s WHERE s.message_ref_id = messages.id)").
		Where("NOT EXISTS (SELECT 1 FROM merged_audio ma WHERE ma.message_ref_id = messages.id)").
		Order("messages.id ASC").
		Pluck("message_id", &ids).Error
	return ids, err
}
