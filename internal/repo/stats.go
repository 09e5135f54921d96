// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) on the session history endpoint.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-voice-assistant/internal/domain"
)

// SessionStats returns the number of messages in the session and the greatest
// UpdatedAt among them. The merged-audio table is included so a finished
// background merge changes the result. maxUpdatedAt is nil when the session
// is empty.
func SessionStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{})
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Latest updated_at per table (avoid MAX() -> TEXT in SQLite).
	latest := func(model any) (time.Time, error) {
		var row struct {
			UpdatedAt time.Time
		}
		err := db.WithContext(ctx).Model(model).Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error
		return row.UpdatedAt, err
	}

	var max time.Time
	for _, model := range []any{&domain.Message{}, &domain.AudioSegment{}, &domain.MergedAudio{}} {
		ts, lerr := latest(model)
		if lerr != nil {
			return 0, nil, lerr
		}
		if ts.After(max) {
			max = ts
		}
	}
	return count, &max, nil
}
