package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-voice-assistant/internal/artifact"
	"github.com/tbourn/go-voice-assistant/internal/repo"
)

// AudioResult is a message's playable recording.
type AudioResult struct {
	MessageID  string
	WAV        []byte
	SampleRate int
	IsMerged   bool
}

// AudioService returns a message's full recording: the merged file when the
// background merge has run, otherwise an on-demand merge of its segments.
type AudioService struct {
	DB    *gorm.DB
	Store *artifact.Store
}

// GetAudio resolves identifier with the tolerant lookup and returns its
// audio. IsMerged is false when the bytes come from an on-demand merge.
func (s *AudioService) GetAudio(ctx context.Context, identifier string) (*AudioResult, error) {
	tr := otel.Tracer("services/AudioService")
	ctx, span := tr.Start(ctx, "GetAudio",
		trace.WithAttributes(attribute.String("message.identifier", identifier)),
	)
	defer span.End()

	msg, err := repo.FindMessage(ctx, s.DB, identifier)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	lg := zerolog.Ctx(ctx).With().Str("message_id", msg.MessageID).Logger()

	if msg.Merged != nil {
		b, err := s.Store.Read(msg.Merged.Path)
		switch {
		case err == nil:
			span.SetAttributes(attribute.Bool("audio.merged", true))
			return &AudioResult{MessageID: msg.MessageID, WAV: b, SampleRate: msg.Merged.SampleRate, IsMerged: true}, nil
		case errors.Is(err, artifact.ErrNotFound):
			lg.Warn().Str("path", msg.Merged.Path).Msg("merged file missing, merging on demand")
		default:
			return nil, err
		}
	}

	if len(msg.Segments) == 0 {
		return nil, ErrNoAudio
	}
	merged, err := s.Store.MergeToTemp(msg.MessageID, partsOf(msg.Segments))
	if errors.Is(err, artifact.ErrNothingToMerge) {
		return nil, ErrNoAudio
	}
	if err != nil {
		return nil, err
	}
	for _, p := range merged.Missing {
		lg.Warn().Str("path", p).Msg("segment file missing, skipped")
	}
	span.SetAttributes(attribute.Bool("audio.merged", false))
	return &AudioResult{MessageID: msg.MessageID, WAV: merged.WAV, SampleRate: merged.SampleRate}, nil
}
