// Package speech holds the speech entity and its management operations.
// A speech is a recorded, transcribed discussion between registered
// persons, stored with its ordered sentences and a reference to the
// media object holding the recording.
package speech

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status tracks a speech through the analysis pipeline.
type Status string

const (
	// StatusPending marks a speech waiting for analysis.
	StatusPending Status = "PENDING"

	// StatusValidated marks a speech whose analysis is complete.
	StatusValidated Status = "VALIDATED"
)

// Sentence is one transcribed utterance within a speech. Speaker
// references a registered person.
type Sentence struct {
	UID         uuid.UUID
	Speaker     uuid.UUID
	Text        string
	Interrupted bool
}

// Speech is a recorded discussion. Speakers lists the registered
// participants; Sentences holds the transcript in order. Media names the
// object-store key of the recording.
type Speech struct {
	UID       uuid.UUID
	Name      string
	Date      time.Time
	Speakers  []uuid.UUID
	Sentences []Sentence
	Media     string
	Status    Status
}

// Repository is the persistence contract for speeches. List results omit
// sentences; GetByUID loads the full transcript. Implementations return
// CodeNotFound for a missing speech and CodeConflictAlreadyExists when
// the (name, date, media) triple is already stored.
type Repository interface {
	Create(ctx context.Context, s Speech) error
	List(ctx context.Context, page, quantity int) ([]Speech, error)
	ListBySpeakers(ctx context.Context, speakers []uuid.UUID, page, quantity int) ([]Speech, error)
	GetByUID(ctx context.Context, uid uuid.UUID) (Speech, error)
	Delete(ctx context.Context, uid uuid.UUID) error
}

// MediaStore resolves a media object name to a time-limited download
// URL.
type MediaStore interface {
	PresignedMediaURL(ctx context.Context, object string) (string, error)
}
