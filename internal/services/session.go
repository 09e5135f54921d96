package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-voice-assistant/internal/artifact"
	"github.com/tbourn/go-voice-assistant/internal/domain"
	"github.com/tbourn/go-voice-assistant/internal/llm"
	"github.com/tbourn/go-voice-assistant/internal/repo"
	"github.com/tbourn/go-voice-assistant/internal/utils"
)

// Session is the conversation history handed to the model. It is seeded
// once from the ledger and then kept in step with each completed turn.
type Session struct {
	mu      sync.Mutex
	loaded  bool
	history []llm.Message
}

// Load seeds the history from the ledger on first use.
func (s *Session) Load(ctx context.Context, db *gorm.DB) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	msgs, err := repo.ListSession(ctx, db)
	if err != nil {
		return err
	}
	s.history = s.history[:0]
	for _, m := range msgs {
		s.history = append(s.history, llm.Message{Role: m.Role, Content: m.Content})
	}
	s.loaded = true
	return nil
}

// Snapshot returns a copy of the history.
func (s *Session) Snapshot() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.history...)
}

// Append adds completed turns.
func (s *Session) Append(msgs ...llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msgs...)
}

// Reset empties the history; the next Load reads the ledger again.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.loaded = false
}

// SessionService serves and clears the stored conversation.
type SessionService struct {
	DB      *gorm.DB
	Store   *artifact.Store
	Session *Session
}

// List returns the whole conversation, oldest first.
func (s *SessionService) List(ctx context.Context) ([]domain.Message, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "List")
	defer span.End()

	return repo.ListSession(ctx, s.DB)
}

// ListPage returns one page of the conversation and the total count.
func (s *SessionService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if pageSize <= 0 {
		pageSize = utils.DefaultPageSize
	}
	total, err := repo.CountMessages(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListSessionPage(ctx, s.DB, utils.Offset(page, pageSize), pageSize)
	return items, total, err
}

// Stats reports the row count and latest update across the session, for
// conditional GETs.
func (s *SessionService) Stats(ctx context.Context) (int64, *time.Time, error) {
	return repo.SessionStats(ctx, s.DB)
}

// ClearResult summarizes a session reset.
type ClearResult struct {
	FilesRemoved int `json:"files_removed"`
}

// Clear deletes every message with its audio rows and files and resets the
// model history. Files that cannot be removed are logged; the rows are
// already gone by then.
func (s *SessionService) Clear(ctx context.Context) (ClearResult, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Clear")
	defer span.End()

	paths, err := repo.ClearSession(ctx, s.DB)
	if err != nil {
		return ClearResult{}, err
	}
	if s.Session != nil {
		s.Session.Reset()
	}
	var res ClearResult
	if s.Store != nil {
		n, perr := s.Store.Purge(paths)
		res.FilesRemoved = n
		if perr != nil {
			zerolog.Ctx(ctx).Warn().Err(perr).Int("files", len(paths)).Msg("session cleared, some audio files left behind")
		}
	}
	span.SetAttributes(attribute.Int("files_removed", res.FilesRemoved))
	return res, nil
}
