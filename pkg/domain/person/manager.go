package person

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the OpenTelemetry instrumentation scope for person spans.
const tracerName = "github.com/speechlytics/speech-gateway/pkg/domain/person"

// CreateInput carries the identity of a person to register. All fields
// are required; uniqueness of the triple is enforced by the repository.
type CreateInput struct {
	Name      string
	FirstName string
	BirthDate time.Time
}

// Manager exposes person operations on top of a [Repository].
type Manager struct {
	repo   Repository
	logger *slog.Logger
	tracer trace.Tracer
}

// NewManager creates a Manager. logger may be nil, in which case the
// default logger is used.
func NewManager(repo Repository, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:   repo,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// Create registers a new person and returns its generated UID.
func (m *Manager) Create(ctx context.Context, in CreateInput) (uuid.UUID, error) {
	ctx, span := m.tracer.Start(ctx, "person.Create")
	defer span.End()

	p := Person{
		UID:        uuid.New(),
		Name:       in.Name,
		FirstName:  in.FirstName,
		BirthDate:  in.BirthDate,
		TrustScore: initialTrustScore,
	}

	if err := m.repo.Create(ctx, p); err != nil {
		recordError(span, err)
		return uuid.Nil, err
	}

	span.SetAttributes(attribute.String("person.uid", p.UID.String()))
	m.logger.InfoContext(ctx, "person created", "uid", p.UID)
	return p.UID, nil
}

// List returns a page of persons. page is zero-based; quantity is the
// page size.
func (m *Manager) List(ctx context.Context, page, quantity int) ([]Person, error) {
	ctx, span := m.tracer.Start(ctx, "person.List")
	defer span.End()

	persons, err := m.repo.List(ctx, page, quantity)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("person.count", len(persons)))
	return persons, nil
}

// Get returns the person with the given UID.
func (m *Manager) Get(ctx context.Context, uid uuid.UUID) (Person, error) {
	ctx, span := m.tracer.Start(ctx, "person.Get",
		trace.WithAttributes(attribute.String("person.uid", uid.String())))
	defer span.End()

	p, err := m.repo.GetByUID(ctx, uid)
	if err != nil {
		recordError(span, err)
		return Person{}, err
	}
	return p, nil
}

// Delete removes the person with the given UID.
func (m *Manager) Delete(ctx context.Context, uid uuid.UUID) error {
	ctx, span := m.tracer.Start(ctx, "person.Delete",
		trace.WithAttributes(attribute.String("person.uid", uid.String())))
	defer span.End()

	if err := m.repo.Delete(ctx, uid); err != nil {
		recordError(span, err)
		return err
	}
	m.logger.InfoContext(ctx, "person deleted", "uid", uid)
	return nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
