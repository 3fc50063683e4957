// Package person holds the person entity and its management operations.
// A person is a registered speaker with an identity (name, first name,
// birth date) and a trust score fed by downstream speech analysis.
package person

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Person is a registered speaker.
type Person struct {
	UID       uuid.UUID
	Name      string
	FirstName string
	BirthDate time.Time

	// TrustScore rates the person's overall truthfulness. New persons
	// start at zero and the score moves as analyzed speeches are
	// validated.
	TrustScore int16

	// LieQuantity counts lies detected across the person's speeches.
	LieQuantity int64
}

// initialTrustScore is assigned to newly registered persons.
const initialTrustScore = 0

// Repository is the persistence contract for persons. Implementations
// return errors from the pkg/errors package: CodeNotFound for a missing
// person, CodeConflictAlreadyExists when the (name, first name, birth
// date) identity is already registered.
type Repository interface {
	Create(ctx context.Context, p Person) error
	List(ctx context.Context, page, quantity int) ([]Person, error)
	GetByUID(ctx context.Context, uid uuid.UUID) (Person, error)
	Delete(ctx context.Context, uid uuid.UUID) error
}
