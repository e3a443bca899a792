package clientstate

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock, time.Time) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return NewPostgres(db).WithClock(func() time.Time { return now }), mock, now
}

func TestPostgres_Get(t *testing.T) {
	ctx := context.Background()
	store, mock, _ := newMockPostgres(t)
	query := regexp.QuoteMeta("SELECT value") + `(.|\s)*` + regexp.QuoteMeta("expires_at > NOW()")

	mock.ExpectQuery(query).WithArgs("browser:b1:saved_email").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("owner@herbal.example"))
	value, err := store.Get(ctx, "browser:b1:saved_email")
	require.NoError(t, err)
	assert.Equal(t, "owner@herbal.example", value)

	mock.ExpectQuery(query).WithArgs("missing").WillReturnError(sql.ErrNoRows)
	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery(query).WithArgs("k").WillReturnError(errors.New("connection reset"))
	_, err = store.Get(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestPostgres_SetWritesExpiry(t *testing.T) {
	ctx := context.Background()
	store, mock, now := newMockPostgres(t)
	upsert := regexp.QuoteMeta("INSERT INTO client_state (key, value, expires_at, updated_at)") + `(.|\s)*` + regexp.QuoteMeta("ON CONFLICT (key)")

	mock.ExpectExec(upsert).WithArgs("session:s1:csrf_token", "abc", now.Add(time.Hour), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Set(ctx, "session:s1:csrf_token", "abc", time.Hour))

	mock.ExpectExec(upsert).WithArgs("browser:b1:rate_limit", "{}", nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Set(ctx, "browser:b1:rate_limit", "{}", 0))

	mock.ExpectExec(upsert).WillReturnError(errors.New("read-only transaction"))
	assert.Error(t, store.Set(ctx, "k", "v", 0))
}

func TestPostgres_Delete(t *testing.T) {
	ctx := context.Background()
	store, mock, _ := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM client_state WHERE key = $1")).WithArgs("k").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.NoError(t, store.Delete(ctx, "k"), "deleting a missing key is not an error")
}

func TestPostgres_Sweep(t *testing.T) {
	ctx := context.Background()
	store, mock, now := newMockPostgres(t)
	sweep := regexp.QuoteMeta("WITH stale AS") + `(.|\s)*` + regexp.QuoteMeta("DELETE FROM client_state t")
	staleBefore := now.Add(-24 * time.Hour)

	mock.ExpectExec(sweep).WithArgs(staleBefore, 50).WillReturnResult(sqlmock.NewResult(0, 7))
	deleted, err := store.Sweep(ctx, staleBefore, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)

	mock.ExpectExec(sweep).WithArgs(staleBefore, 500).WillReturnResult(sqlmock.NewResult(0, 0))
	deleted, err = store.Sweep(ctx, staleBefore, 0)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	mock.ExpectExec(sweep).WillReturnError(errors.New("lock timeout"))
	_, err = store.Sweep(ctx, staleBefore, 10)
	assert.Error(t, err)
}
