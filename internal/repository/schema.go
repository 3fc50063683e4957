// Package repository implements PostgreSQL persistence for persons and
// speeches behind the domain repository interfaces.
package repository

import (
	"context"

	"github.com/speechlytics/speech-gateway/pkg/clients/postgres"
)

// schemaStatements creates the gateway's tables when they do not exist.
// uid columns are CHAR(36) holding canonical UUID text; name columns in
// person are CHAR(50) and are trimmed on read.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS person (
		uid CHAR(36) PRIMARY KEY,
		name CHAR(50) NOT NULL,
		first_name CHAR(50) NOT NULL,
		birth_date DATE NOT NULL,
		trust_score SMALLINT NOT NULL,
		lie_quantity BIGINT NOT NULL DEFAULT 0,
		CONSTRAINT unique_identity UNIQUE (name, first_name, birth_date)
	)`,
	`CREATE TABLE IF NOT EXISTS speech (
		uid CHAR(36) PRIMARY KEY,
		name VARCHAR NOT NULL,
		date TIMESTAMPTZ NOT NULL,
		media VARCHAR NOT NULL,
		status VARCHAR NOT NULL,
		CONSTRAINT unique_speech UNIQUE (name, date, media)
	)`,
	`CREATE TABLE IF NOT EXISTS sentence (
		uid CHAR(36) PRIMARY KEY,
		speech_uid CHAR(36) NOT NULL REFERENCES speech (uid),
		speaker CHAR(36) NOT NULL REFERENCES person (uid),
		text VARCHAR NOT NULL,
		interrupted BOOLEAN NOT NULL DEFAULT FALSE,
		index INT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS speech_person (
		speech_uid CHAR(36) NOT NULL REFERENCES speech (uid),
		speaker CHAR(36) NOT NULL REFERENCES person (uid)
	)`,
}

// InitSchema creates the gateway's tables if they are missing. It is
// idempotent and runs at startup before the repositories are used.
func InitSchema(ctx context.Context, db *postgres.Client) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
