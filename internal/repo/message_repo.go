// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the message side of the conversation
// ledger.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
//
// Error semantics:
//   - A lookup miss returns ErrNotFound (gorm.ErrRecordNotFound).
//   - Failed inserts of a new message are wrapped with ErrWriteFailed so
//     callers can tell a persistence failure from a miss.
//
// Functions:
//
//   - CreateMessage(ctx, db, NewMessage) -> *domain.Message, error
//   - SaveMessageWithAudio(ctx, db, NewMessage, segments) -> *domain.Message, error
//   - GetMessage(ctx, db, messageID) -> *domain.Message, error
//   - FindMessage(ctx, db, identifier) -> *domain.Message, error
//   - ListSession / ListSessionPage / CountMessages
//   - ClearSession(ctx, db) -> purged artifact paths, error
package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-voice-assistant/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// keyColumn is quoted by the dialector; "key" is reserved in MySQL.
var keyColumn = clause.Column{Name: "key"}

// ErrWriteFailed marks a ledger write that did not commit.
var ErrWriteFailed = errors.New("ledger write failed")

// NewMessage describes a message to persist. MessageID is optional for
// CreateMessage (a UUID is allocated when empty).
type NewMessage struct {
	MessageID   string
	Role        string
	Content     string
	Translation string
	InputType   string
	Meta        *domain.MessageMeta
}

// CreateMessage allocates a new message id, inserts the row and returns it.
func CreateMessage(ctx context.Context, db *gorm.DB, in NewMessage) (*domain.Message, error) {
	id := in.MessageID
	if id == "" {
		id = uuid.NewString()
	}
	m := &domain.Message{
		Key:         domain.NewKey(in.Role, id),
		MessageID:   id,
		Role:        in.Role,
		Content:     in.Content,
		Translation: in.Translation,
		InputType:   in.InputType,
		Meta:        in.Meta,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return m, nil
}

// SaveMessageWithAudio finds the message by its composite key or creates it,
// then, if segments is non-empty, replaces its whole segment set in a single
// transaction.
func SaveMessageWithAudio(ctx context.Context, db *gorm.DB, in NewMessage, segments []domain.AudioSegment) (*domain.Message, error) {
	if in.MessageID == "" {
		in.MessageID = uuid.NewString()
	}
	var out *domain.Message
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m domain.Message
		err := tx.Where("? = ?", keyColumn, domain.NewKey(in.Role, in.MessageID)).First(&m).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			created, cerr := CreateMessage(ctx, tx, in)
			if cerr != nil {
				return cerr
			}
			m = *created
		case err != nil:
			return err
		}

		if len(segments) > 0 {
			if err := tx.Where("message_ref_id = ?", m.ID).Delete(&domain.AudioSegment{}).Error; err != nil {
				return err
			}
			rows := make([]domain.AudioSegment, len(segments))
			for i, s := range segments {
				s.ID = 0
				s.MessageRefID = m.ID
				rows[i] = s
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
			m.Segments = rows
		}
		out = &m
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrWriteFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return out, nil
}

// GetMessage fetches a message by exact message_id with its audio relations.
func GetMessage(ctx context.Context, db *gorm.DB, messageID string) (*domain.Message, error) {
	var m domain.Message
	if err := withAudio(db.WithContext(ctx)).Where("message_id = ?", messageID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// FindMessage resolves an identifier tolerantly, because historic and current
// identifier schemes coexist. Tiers, first match wins:
//  1. exact message_id
//  2. exact key "assistant-{identifier}"
//  3. key containing identifier, case-sensitive (INSTR; MySQL follows the
//     column collation)
//  4. when identifier has a separator ('-' or '_'), tiers 1-3 with its first component
//
// Tier 3 and 4 may match an unintended record on malformed legacy data.
func FindMessage(ctx context.Context, db *gorm.DB, identifier string) (*domain.Message, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrNotFound
	}
	base := db.WithContext(ctx)

	m, err := findTiers(base, identifier)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return m, err
	}
	if i := strings.IndexAny(identifier, "-_"); i > 0 {
		return findTiers(base, identifier[:i])
	}
	return nil, ErrNotFound
}

func findTiers(db *gorm.DB, id string) (*domain.Message, error) {
	queries := []func(*gorm.DB) *gorm.DB{
		func(q *gorm.DB) *gorm.DB { return q.Where("message_id = ?", id) },
		func(q *gorm.DB) *gorm.DB { return q.Where("? = ?", keyColumn, domain.NewKey(domain.RoleAssistant, id)) },
		func(q *gorm.DB) *gorm.DB {
			return q.Where("INSTR(?, ?) > 0", keyColumn, id).Order("id ASC")
		},
	}
	for _, where := range queries {
		var m domain.Message
		err := where(withAudio(db)).First(&m).Error
		if err == nil {
			return &m, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// ListSession returns the full conversation ordered oldest first
// (CreatedAt ASC, ID ASC), with audio relations.
func ListSession(ctx context.Context, db *gorm.DB) ([]domain.Message, error) {
	var out []domain.Message
	err := withAudio(db.WithContext(ctx)).Order("created_at ASC, id ASC").Find(&out).Error
	return out, err
}

// ListSessionPage returns a page of the conversation ordered oldest first.
func ListSessionPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := withAudio(db.WithContext(ctx)).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM messages").Scan(&total).Error
	return total, err
}

// ClearSession deletes every message and its audio rows in one transaction
// and returns the artifact paths the rows referenced, so the caller can
// purge the files.
func ClearSession(ctx context.Context, db *gorm.DB) ([]string, error) {
	var paths []string
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var segPaths, mergedPaths []string
		if err := tx.Model(&domain.AudioSegment{}).Pluck("path", &segPaths).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.MergedAudio{}).Pluck("path", &mergedPaths).Error; err != nil {
			return err
		}
		// Children first so the delete also works without FK cascades.
		for _, model := range []any{&domain.MergedAudio{}, &domain.AudioSegment{}, &domain.Message{}} {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return err
			}
		}
		paths = append(segPaths, mergedPaths...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func withAudio(q *gorm.DB) *gorm.DB {
	return q.
		Preload("Segments", func(db *gorm.DB) *gorm.DB { return db.Order("segment_index ASC") }).
		Preload("Merged")
}
