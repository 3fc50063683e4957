package speech

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	gwerr "github.com/speechlytics/speech-gateway/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope for speech spans.
const tracerName = "github.com/speechlytics/speech-gateway/pkg/domain/speech"

// SentenceInput is one transcribed utterance in a creation request.
type SentenceInput struct {
	Speaker     uuid.UUID
	Text        string
	Interrupted bool
}

// CreateInput carries a speech to register. Sentences keep their order.
type CreateInput struct {
	Name      string
	Date      time.Time
	Speakers  []uuid.UUID
	Sentences []SentenceInput
	Media     string
}

// Manager exposes speech operations on top of a [Repository]. Media URL
// resolution goes through an optional [MediaStore].
type Manager struct {
	repo   Repository
	media  MediaStore
	logger *slog.Logger
	tracer trace.Tracer
}

// NewManager creates a Manager. media may be nil when no object store is
// configured; logger may be nil, in which case the default logger is
// used.
func NewManager(repo Repository, media MediaStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:   repo,
		media:  media,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// Create registers a new speech in the pending state and returns its
// generated UID. Sentence UIDs are generated here as well.
func (m *Manager) Create(ctx context.Context, in CreateInput) (uuid.UUID, error) {
	ctx, span := m.tracer.Start(ctx, "speech.Create")
	defer span.End()

	s := Speech{
		UID:      uuid.New(),
		Name:     in.Name,
		Date:     in.Date,
		Speakers: in.Speakers,
		Media:    in.Media,
		Status:   StatusPending,
	}
	s.Sentences = make([]Sentence, len(in.Sentences))
	for i, sent := range in.Sentences {
		s.Sentences[i] = Sentence{
			UID:         uuid.New(),
			Speaker:     sent.Speaker,
			Text:        sent.Text,
			Interrupted: sent.Interrupted,
		}
	}

	if err := m.repo.Create(ctx, s); err != nil {
		recordError(span, err)
		return uuid.Nil, err
	}

	span.SetAttributes(
		attribute.String("speech.uid", s.UID.String()),
		attribute.Int("speech.sentences", len(s.Sentences)),
	)
	m.logger.InfoContext(ctx, "speech created",
		"uid", s.UID, "sentences", len(s.Sentences), "speakers", len(s.Speakers))
	return s.UID, nil
}

// List returns a page of speeches without their sentences. When speakers
// is non-empty only speeches involving at least one of them are
// returned.
func (m *Manager) List(ctx context.Context, speakers []uuid.UUID, page, quantity int) ([]Speech, error) {
	ctx, span := m.tracer.Start(ctx, "speech.List")
	defer span.End()

	var (
		speeches []Speech
		err      error
	)
	if len(speakers) > 0 {
		speeches, err = m.repo.ListBySpeakers(ctx, speakers, page, quantity)
	} else {
		speeches, err = m.repo.List(ctx, page, quantity)
	}
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("speech.count", len(speeches)))
	return speeches, nil
}

// Get returns the speech with the given UID, including its sentences.
func (m *Manager) Get(ctx context.Context, uid uuid.UUID) (Speech, error) {
	ctx, span := m.tracer.Start(ctx, "speech.Get",
		trace.WithAttributes(attribute.String("speech.uid", uid.String())))
	defer span.End()

	s, err := m.repo.GetByUID(ctx, uid)
	if err != nil {
		recordError(span, err)
		return Speech{}, err
	}
	return s, nil
}

// Delete removes the speech with the given UID, including its sentences
// and speaker links.
func (m *Manager) Delete(ctx context.Context, uid uuid.UUID) error {
	ctx, span := m.tracer.Start(ctx, "speech.Delete",
		trace.WithAttributes(attribute.String("speech.uid", uid.String())))
	defer span.End()

	if err := m.repo.Delete(ctx, uid); err != nil {
		recordError(span, err)
		return err
	}
	m.logger.InfoContext(ctx, "speech deleted", "uid", uid)
	return nil
}

// MediaURL returns a time-limited download URL for the speech's
// recording.
func (m *Manager) MediaURL(ctx context.Context, uid uuid.UUID) (string, error) {
	ctx, span := m.tracer.Start(ctx, "speech.MediaURL",
		trace.WithAttributes(attribute.String("speech.uid", uid.String())))
	defer span.End()

	if m.media == nil {
		err := gwerr.New(gwerr.CodeUnavailableDependency, "speech: no media store configured")
		recordError(span, err)
		return "", err
	}

	s, err := m.repo.GetByUID(ctx, uid)
	if err != nil {
		recordError(span, err)
		return "", err
	}

	url, err := m.media.PresignedMediaURL(ctx, s.Media)
	if err != nil {
		recordError(span, err)
		return "", err
	}
	return url, nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
