package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerr "github.com/speechlytics/speech-gateway/pkg/errors"
)

// newMockClient builds a Client over a pgxmock pool.
func newMockClient(t *testing.T) (*Client, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create pgxmock pool")
	t.Cleanup(mock.Close)
	return NewFromPool(mock, &Config{Database: "speech_test"}), mock
}

func TestClient_Query_ReturnsRows(t *testing.T) {
	t.Parallel()
	client, mock := newMockClient(t)

	mock.ExpectQuery("SELECT uid FROM person").
		WillReturnRows(pgxmock.NewRows([]string{"uid"}).AddRow("abc"))

	rows, err := client.Query(context.Background(), "SELECT uid FROM person")
	require.NoError(t, err)
	defer rows.Close()

	require.True(t, rows.Next())
	var uid string
	require.NoError(t, rows.Scan(&uid))
	assert.Equal(t, "abc", uid)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_Query_WrapsError(t *testing.T) {
	t.Parallel()
	client, mock := newMockClient(t)

	mock.ExpectQuery("SELECT uid FROM person").
		WillReturnError(errors.New("connection reset"))

	_, err := client.Query(context.Background(), "SELECT uid FROM person")
	require.Error(t, err)
	assert.True(t, gwerr.HasCode(err, gwerr.CodeInternalDatabase))
}

func TestClient_Query_DeadlineBecomesTimeout(t *testing.T) {
	t.Parallel()
	client, mock := newMockClient(t)

	mock.ExpectQuery("SELECT uid FROM person").
		WillReturnError(context.DeadlineExceeded)

	_, err := client.Query(context.Background(), "SELECT uid FROM person")
	require.Error(t, err)
	assert.True(t, gwerr.HasCode(err, gwerr.CodeTimeoutDatabase))
}

func TestClient_Exec_ReturnsCommandTag(t *testing.T) {
	t.Parallel()
	client, mock := newMockClient(t)

	mock.ExpectExec("DELETE FROM person").
		WithArgs("abc").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	tag, err := client.Exec(context.Background(), "DELETE FROM person WHERE uid = $1", "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(1), tag.RowsAffected())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_Begin_CommitFlow(t *testing.T) {
	t.Parallel()
	client, mock := newMockClient(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO speech").
		WithArgs("abc").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := client.Begin(ctx)
	require.NoError(t, err)

	_, err = tx.Exec(ctx, "INSERT INTO speech (uid) VALUES ($1)", "abc")
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_Health_PingFailure(t *testing.T) {
	t.Parallel()
	client, mock := newMockClient(t)

	mock.ExpectPing().WillReturnError(errors.New("down"))

	err := client.Health(context.Background())
	require.Error(t, err)
	assert.True(t, gwerr.IsUnavailable(err))
}

func TestClassifyError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want gwerr.Code
	}{
		{"no rows", pgx.ErrNoRows, gwerr.CodeNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, gwerr.CodeConflictAlreadyExists},
		{"check violation", &pgconn.PgError{Code: "23514"}, gwerr.CodeConflictAlreadyExists},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, gwerr.CodeInternalDatabase},
		{"deadline", context.DeadlineExceeded, gwerr.CodeTimeoutDatabase},
		{"plain error", errors.New("boom"), gwerr.CodeInternalDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err, "op failed")
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Code)
		})
	}

	assert.Nil(t, ClassifyError(nil, "ignored"))
}
