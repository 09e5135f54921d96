package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-voice-assistant/internal/artifact"
	"github.com/tbourn/go-voice-assistant/internal/domain"
	"github.com/tbourn/go-voice-assistant/internal/llm"
	"github.com/tbourn/go-voice-assistant/internal/observability"
	"github.com/tbourn/go-voice-assistant/internal/repo"
	"github.com/tbourn/go-voice-assistant/internal/segment"
	"github.com/tbourn/go-voice-assistant/internal/tts"
)

// Responder produces a bilingual reply. On failure the returned reply is
// the apology to show.
type Responder interface {
	Respond(ctx context.Context, history []llm.Message, prompt string) (llm.Reply, error)
}

// Synthesizer turns one text segment into mono PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, speaker string) (*audio.IntBuffer, error)
}

// MergeScheduler queues a background merge for a message.
type MergeScheduler interface {
	Schedule(ctx context.Context, messageID string) error
}

// Turn is one user input reduced to text.
type Turn struct {
	Prompt    string
	InputType string
	Meta      *domain.MessageMeta
	Speaker   string
	WantAudio bool
}

// Orchestrator runs the reply pipeline for one turn: persist the user
// message, get the reply, persist it, then segment, synthesize, store and
// emit each segment in order, and finally schedule the merge.
type Orchestrator struct {
	DB        *gorm.DB
	Store     *artifact.Store
	Responder Responder
	TTS       Synthesizer
	Merges    MergeScheduler
	Session   *Session

	MaxSegmentLength int
	// Speaker is used when a turn asks for "default" or none.
	Speaker string
}

// Respond drives one turn and writes its events to sink.
//
// Errors before the first event (empty prompt, ledger writes of the two
// messages) are returned and nothing is emitted. After that, a failed
// segment becomes an ErrorEvent and the loop moves on; an Emit error or a
// cancelled ctx stops the loop. Either way a merge is scheduled for the
// segments already persisted.
func (o *Orchestrator) Respond(ctx context.Context, t Turn, sink EventSink) error {
	tr := otel.Tracer("services/Orchestrator")
	ctx, span := tr.Start(ctx, "Respond",
		trace.WithAttributes(
			attribute.String("input.type", t.InputType),
			attribute.Bool("audio", t.WantAudio),
		),
	)
	defer span.End()

	prompt := strings.TrimSpace(t.Prompt)
	if prompt == "" {
		return ErrEmptyPrompt
	}

	if err := o.Session.Load(ctx, o.DB); err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	history := o.Session.Snapshot()

	if _, err := repo.CreateMessage(ctx, o.DB, repo.NewMessage{
		Role:      domain.RoleUser,
		Content:   prompt,
		InputType: t.InputType,
		Meta:      t.Meta,
	}); err != nil {
		return fmt.Errorf("save user message: %w", err)
	}

	reply, rerr := o.Responder.Respond(ctx, history, prompt)
	if rerr != nil {
		observability.LLMDone(observability.OutcomeError)
		zerolog.Ctx(ctx).Warn().Err(rerr).Msg("model reply failed, sending apology")
	} else {
		observability.LLMDone(observability.OutcomeOK)
	}

	asst, err := repo.CreateMessage(ctx, o.DB, repo.NewMessage{
		Role:        domain.RoleAssistant,
		Content:     reply.English,
		Translation: reply.Chinese,
	})
	if err != nil {
		return fmt.Errorf("save assistant message: %w", err)
	}
	if rerr == nil {
		o.Session.Append(
			llm.Message{Role: domain.RoleUser, Content: prompt},
			llm.Message{Role: domain.RoleAssistant, Content: reply.English},
		)
	}

	lg := zerolog.Ctx(ctx).With().Str("message_id", asst.MessageID).Logger()
	ctx = lg.WithContext(ctx)
	span.SetAttributes(attribute.String("message.id", asst.MessageID))

	if err := sink.Emit(TextEvent{MessageID: asst.MessageID, Content: reply}); err != nil {
		return err
	}
	if !t.WantAudio {
		return nil
	}

	segments := segment.Split(reply.English, o.maxLength())
	speaker := o.speaker(t.Speaker)
	persisted := 0
	var streamErr error

	for i, text := range segments {
		if ctx.Err() != nil {
			lg.Info().Int("segment", i).Msg("client gone, stopping stream")
			streamErr = ctx.Err()
			break
		}
		ev, err := o.segment(ctx, asst, i, len(segments), text, speaker)
		if err != nil {
			observability.SegmentDone(observability.OutcomeError)
			lg.Warn().Err(err).Int("segment", i).Msg("segment failed")
			if emitErr := sink.Emit(ErrorEvent{MessageID: asst.MessageID, SegmentIndex: i, Message: err.Error()}); emitErr != nil {
				streamErr = emitErr
				break
			}
			continue
		}
		persisted++
		observability.SegmentDone(observability.OutcomeOK)
		if emitErr := sink.Emit(*ev); emitErr != nil {
			streamErr = emitErr
			break
		}
	}

	o.scheduleMerge(ctx, asst.MessageID, persisted, len(segments))
	return streamErr
}

// segment synthesizes, stores and records segment i. Once synthesis has
// succeeded the file and row are written even if the client has gone.
func (o *Orchestrator) segment(ctx context.Context, msg *domain.Message, i, total int, text, speaker string) (*AudioEvent, error) {
	start := time.Now()
	buf, err := o.TTS.Synthesize(ctx, text, speaker)
	observability.ObserveSynthesis(time.Since(start))
	if err != nil {
		return nil, tts.AtSegment(err, i)
	}

	wav, err := artifact.EncodeWAV(buf)
	if err != nil {
		return nil, fmt.Errorf("encode segment %d: %w", i, err)
	}
	path, err := o.Store.WriteSegment(msg.MessageID, i, wav)
	if err != nil {
		return nil, fmt.Errorf("store segment %d: %w", i, err)
	}

	rate := buf.Format.SampleRate
	var dur *float64
	if rate > 0 {
		d := float64(len(buf.Data)) / float64(rate)
		dur = &d
	}
	if _, err := repo.AttachSegment(context.WithoutCancel(ctx), o.DB, msg.ID, domain.AudioSegment{
		SegmentIndex: i,
		Path:         path,
		Text:         text,
		SampleRate:   rate,
		Duration:     dur,
	}); err != nil {
		return nil, fmt.Errorf("record segment %d: %w", i, err)
	}

	return &AudioEvent{
		MessageID:     msg.MessageID,
		SegmentIndex:  i,
		TotalSegments: total,
		AudioData:     base64.StdEncoding.EncodeToString(wav),
		Format:        "wav",
		SampleRate:    rate,
	}, nil
}

func (o *Orchestrator) scheduleMerge(ctx context.Context, messageID string, persisted, total int) {
	lg := zerolog.Ctx(ctx)
	if persisted == 0 {
		observability.MergeDone(observability.OutcomeSkipped)
		lg.Warn().Int("segments", total).Msg("no segment persisted, merge not scheduled")
		return
	}
	if o.Merges == nil {
		return
	}
	// The merge outlives the request.
	if err := o.Merges.Schedule(context.WithoutCancel(ctx), messageID); err != nil {
		lg.Error().Err(err).Msg("could not schedule merge")
		return
	}
	lg.Debug().Int("segments", persisted).Msg("merge scheduled")
}

func (o *Orchestrator) maxLength() int {
	if o.MaxSegmentLength > 0 {
		return o.MaxSegmentLength
	}
	return segment.DefaultMaxLength
}

func (o *Orchestrator) speaker(requested string) string {
	requested = strings.TrimSpace(requested)
	if requested == "" || requested == "default" {
		return o.Speaker
	}
	return requested
}
