package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/speechlytics/speech-gateway/pkg/clients/postgres"
	"github.com/speechlytics/speech-gateway/pkg/domain/person"
	gwerr "github.com/speechlytics/speech-gateway/pkg/errors"
)

// PersonRepository stores persons in PostgreSQL. It implements
// [person.Repository].
type PersonRepository struct {
	db *postgres.Client
}

var _ person.Repository = (*PersonRepository)(nil)

// NewPersonRepository creates a PersonRepository over db.
func NewPersonRepository(db *postgres.Client) *PersonRepository {
	return &PersonRepository{db: db}
}

const personColumns = "uid, name, first_name, birth_date, trust_score, lie_quantity"

// Create inserts a new person. A duplicate (name, first name, birth
// date) identity surfaces as [gwerr.CodeConflictAlreadyExists].
func (r *PersonRepository) Create(ctx context.Context, p person.Person) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO person (`+personColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.UID.String(), p.Name, p.FirstName, p.BirthDate, p.TrustScore, p.LieQuantity)
	if err != nil {
		return postgres.ClassifyError(err, "repository: failed to create person")
	}
	return nil
}

// List returns a page of persons. page is zero-based.
func (r *PersonRepository) List(ctx context.Context, page, quantity int) ([]person.Person, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+personColumns+` FROM person LIMIT $1 OFFSET $2`,
		quantity, page*quantity)
	if err != nil {
		return nil, postgres.ClassifyError(err, "repository: failed to list persons")
	}
	defer rows.Close()

	persons := make([]person.Person, 0, quantity)
	for rows.Next() {
		p, err := scanPerson(rows.Scan)
		if err != nil {
			return nil, err
		}
		persons = append(persons, p)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.ClassifyError(err, "repository: failed to read person rows")
	}
	return persons, nil
}

// GetByUID returns the person with the given UID, or
// [gwerr.CodeNotFound].
func (r *PersonRepository) GetByUID(ctx context.Context, uid uuid.UUID) (person.Person, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+personColumns+` FROM person WHERE uid = $1`, uid.String())

	p, err := scanPerson(row.Scan)
	if err != nil {
		return person.Person{}, err
	}
	return p, nil
}

// Delete removes the person with the given UID, or returns
// [gwerr.CodeNotFound] when no row matches.
func (r *PersonRepository) Delete(ctx context.Context, uid uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM person WHERE uid = $1`, uid.String())
	if err != nil {
		return postgres.ClassifyError(err, "repository: failed to delete person")
	}
	if tag.RowsAffected() == 0 {
		return gwerr.New(gwerr.CodeNotFound, "repository: person not found")
	}
	return nil
}

// scanPerson reads one person row. CHAR columns come back space-padded
// and are trimmed here.
func scanPerson(scan func(dest ...any) error) (person.Person, error) {
	var (
		uidStr, name, firstName string
		birthDate               time.Time
		trustScore              int16
		lieQuantity             int64
	)
	if err := scan(&uidStr, &name, &firstName, &birthDate, &trustScore, &lieQuantity); err != nil {
		return person.Person{}, postgres.ClassifyError(err, "repository: failed to scan person")
	}

	uid, err := uuid.Parse(strings.TrimSpace(uidStr))
	if err != nil {
		return person.Person{}, gwerr.Wrap(err, gwerr.CodeInternalDatabase,
			"repository: stored person uid is not a valid UUID")
	}

	return person.Person{
		UID:         uid,
		Name:        strings.TrimSpace(name),
		FirstName:   strings.TrimSpace(firstName),
		BirthDate:   birthDate,
		TrustScore:  trustScore,
		LieQuantity: lieQuantity,
	}, nil
}
