package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/speechlytics/speech-gateway/pkg/clients/postgres"
	"github.com/speechlytics/speech-gateway/pkg/domain/speech"
	gwerr "github.com/speechlytics/speech-gateway/pkg/errors"
)

// SpeechRepository stores speeches, their sentences, and their speaker
// links in PostgreSQL. It implements [speech.Repository].
type SpeechRepository struct {
	db *postgres.Client
}

var _ speech.Repository = (*SpeechRepository)(nil)

// NewSpeechRepository creates a SpeechRepository over db.
func NewSpeechRepository(db *postgres.Client) *SpeechRepository {
	return &SpeechRepository{db: db}
}

const speechColumns = "uid, name, date, media, status"

// Create inserts a speech, its sentences (keeping their order in the
// index column), and its speaker links in one transaction. A duplicate
// (name, date, media) triple surfaces as
// [gwerr.CodeConflictAlreadyExists].
func (r *SpeechRepository) Create(ctx context.Context, s speech.Speech) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO speech (`+speechColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		s.UID.String(), s.Name, s.Date, s.Media, string(s.Status))
	if err != nil {
		return postgres.ClassifyError(err, "repository: failed to create speech")
	}

	for i, sentence := range s.Sentences {
		_, err = tx.Exec(ctx,
			`INSERT INTO sentence (uid, speech_uid, speaker, text, interrupted, index)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			sentence.UID.String(), s.UID.String(), sentence.Speaker.String(),
			sentence.Text, sentence.Interrupted, i)
		if err != nil {
			return postgres.ClassifyError(err, "repository: failed to create sentence")
		}
	}

	for _, speaker := range s.Speakers {
		_, err = tx.Exec(ctx,
			`INSERT INTO speech_person (speech_uid, speaker) VALUES ($1, $2)`,
			s.UID.String(), speaker.String())
		if err != nil {
			return postgres.ClassifyError(err, "repository: failed to link speaker")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return postgres.WrapError(err, "repository: failed to commit speech")
	}
	return nil
}

// List returns a page of speeches with their speakers but without
// sentences. page is zero-based.
func (r *SpeechRepository) List(ctx context.Context, page, quantity int) ([]speech.Speech, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+speechColumns+` FROM speech LIMIT $1 OFFSET $2`,
		quantity, page*quantity)
	if err != nil {
		return nil, postgres.ClassifyError(err, "repository: failed to list speeches")
	}

	speeches, err := collectSpeeches(rows)
	if err != nil {
		return nil, err
	}
	return r.attachSpeakers(ctx, speeches)
}

// ListBySpeakers returns a page of speeches involving at least one of
// the given speakers, without sentences.
func (r *SpeechRepository) ListBySpeakers(ctx context.Context, speakers []uuid.UUID, page, quantity int) ([]speech.Speech, error) {
	ids := make([]string, len(speakers))
	for i, s := range speakers {
		ids[i] = s.String()
	}

	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT speech_uid FROM speech_person WHERE speaker = ANY($1) LIMIT $2 OFFSET $3`,
		ids, quantity, page*quantity)
	if err != nil {
		return nil, postgres.ClassifyError(err, "repository: failed to list speeches by speakers")
	}

	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			rows.Close()
			return nil, postgres.ClassifyError(err, "repository: failed to scan speech link")
		}
		uids = append(uids, strings.TrimSpace(uid))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, postgres.ClassifyError(err, "repository: failed to read speech links")
	}

	speeches := make([]speech.Speech, 0, len(uids))
	for _, uid := range uids {
		row := r.db.QueryRow(ctx,
			`SELECT `+speechColumns+` FROM speech WHERE uid = $1`, uid)
		s, err := scanSpeech(row.Scan)
		if err != nil {
			return nil, err
		}
		speeches = append(speeches, s)
	}
	return r.attachSpeakers(ctx, speeches)
}

// GetByUID returns the speech with its speakers and ordered sentences,
// or [gwerr.CodeNotFound].
func (r *SpeechRepository) GetByUID(ctx context.Context, uid uuid.UUID) (speech.Speech, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+speechColumns+` FROM speech WHERE uid = $1`, uid.String())

	s, err := scanSpeech(row.Scan)
	if err != nil {
		return speech.Speech{}, err
	}

	speakers, err := r.loadSpeakers(ctx, s.UID)
	if err != nil {
		return speech.Speech{}, err
	}
	s.Speakers = speakers

	sentences, err := r.loadSentences(ctx, s.UID)
	if err != nil {
		return speech.Speech{}, err
	}
	s.Sentences = sentences

	return s, nil
}

// Delete removes a speech, its sentences, and its speaker links in one
// transaction. Returns [gwerr.CodeNotFound] when the speech does not
// exist.
func (r *SpeechRepository) Delete(ctx context.Context, uid uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM sentence WHERE speech_uid = $1`, uid.String()); err != nil {
		return postgres.ClassifyError(err, "repository: failed to delete sentences")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM speech_person WHERE speech_uid = $1`, uid.String()); err != nil {
		return postgres.ClassifyError(err, "repository: failed to unlink speakers")
	}

	tag, err := tx.Exec(ctx, `DELETE FROM speech WHERE uid = $1`, uid.String())
	if err != nil {
		return postgres.ClassifyError(err, "repository: failed to delete speech")
	}
	if tag.RowsAffected() == 0 {
		return gwerr.New(gwerr.CodeNotFound, "repository: speech not found")
	}

	if err := tx.Commit(ctx); err != nil {
		return postgres.WrapError(err, "repository: failed to commit speech deletion")
	}
	return nil
}

func (r *SpeechRepository) loadSpeakers(ctx context.Context, speechUID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`SELECT speaker FROM speech_person WHERE speech_uid = $1`, speechUID.String())
	if err != nil {
		return nil, postgres.ClassifyError(err, "repository: failed to load speakers")
	}
	defer rows.Close()

	var speakers []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, postgres.ClassifyError(err, "repository: failed to scan speaker")
		}
		speaker, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, gwerr.Wrap(err, gwerr.CodeInternalDatabase,
				"repository: stored speaker uid is not a valid UUID")
		}
		speakers = append(speakers, speaker)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.ClassifyError(err, "repository: failed to read speakers")
	}
	return speakers, nil
}

func (r *SpeechRepository) loadSentences(ctx context.Context, speechUID uuid.UUID) ([]speech.Sentence, error) {
	rows, err := r.db.Query(ctx,
		`SELECT uid, speaker, text, interrupted FROM sentence WHERE speech_uid = $1 ORDER BY index`,
		speechUID.String())
	if err != nil {
		return nil, postgres.ClassifyError(err, "repository: failed to load sentences")
	}
	defer rows.Close()

	var sentences []speech.Sentence
	for rows.Next() {
		var (
			uidStr, speakerStr, text string
			interrupted              bool
		)
		if err := rows.Scan(&uidStr, &speakerStr, &text, &interrupted); err != nil {
			return nil, postgres.ClassifyError(err, "repository: failed to scan sentence")
		}
		uid, err := uuid.Parse(strings.TrimSpace(uidStr))
		if err != nil {
			return nil, gwerr.Wrap(err, gwerr.CodeInternalDatabase,
				"repository: stored sentence uid is not a valid UUID")
		}
		speaker, err := uuid.Parse(strings.TrimSpace(speakerStr))
		if err != nil {
			return nil, gwerr.Wrap(err, gwerr.CodeInternalDatabase,
				"repository: stored sentence speaker is not a valid UUID")
		}
		sentences = append(sentences, speech.Sentence{
			UID:         uid,
			Speaker:     speaker,
			Text:        text,
			Interrupted: interrupted,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.ClassifyError(err, "repository: failed to read sentences")
	}
	return sentences, nil
}

// attachSpeakers loads the speaker links for each listed speech.
func (r *SpeechRepository) attachSpeakers(ctx context.Context, speeches []speech.Speech) ([]speech.Speech, error) {
	for i := range speeches {
		speakers, err := r.loadSpeakers(ctx, speeches[i].UID)
		if err != nil {
			return nil, err
		}
		speeches[i].Speakers = speakers
	}
	return speeches, nil
}

// collectSpeeches drains rows into speeches without speakers or
// sentences.
func collectSpeeches(rows pgx.Rows) ([]speech.Speech, error) {
	defer rows.Close()

	var speeches []speech.Speech
	for rows.Next() {
		s, err := scanSpeech(rows.Scan)
		if err != nil {
			return nil, err
		}
		speeches = append(speeches, s)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.ClassifyError(err, "repository: failed to read speech rows")
	}
	return speeches, nil
}

// scanSpeech reads one speech row. The uid column is CHAR(36) and comes
// back space-padded.
func scanSpeech(scan func(dest ...any) error) (speech.Speech, error) {
	var (
		uidStr, name, media, status string
		date                        time.Time
	)
	if err := scan(&uidStr, &name, &date, &media, &status); err != nil {
		return speech.Speech{}, postgres.ClassifyError(err, "repository: failed to scan speech")
	}

	uid, err := uuid.Parse(strings.TrimSpace(uidStr))
	if err != nil {
		return speech.Speech{}, gwerr.Wrap(err, gwerr.CodeInternalDatabase,
			"repository: stored speech uid is not a valid UUID")
	}

	return speech.Speech{
		UID:    uid,
		Name:   name,
		Date:   date,
		Media:  media,
		Status: speech.Status(status),
	}, nil
}
