package audit

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDBAppender_RequiresDB(t *testing.T) {
	_, err := NewDBAppender(nil)
	assert.Error(t, err)
}

func TestDBAppender_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	appender, err := NewDBAppender(db)
	require.NoError(t, err)

	ts := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	rec := &Record{
		ActorID:    "A1",
		ActorEmail: "admin@example.com",
		Action:     ActionUserImpersonation,
		TargetType: TargetUser,
		TargetID:   "U1",
		Details:    map[string]interface{}{DetailTargetEmail: "user@example.com"},
		Timestamp:  ts,
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO audit_records")).
		WithArgs("A1", "admin@example.com", "user_impersonation", "user", "U1", `{"target_email":"user@example.com"}`, ts).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	require.NoError(t, appender.Append(context.Background(), rec))
	assert.Equal(t, int64(42), rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBAppender_AppendErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	appender, err := NewDBAppender(db)
	require.NoError(t, err)

	assert.Error(t, appender.Append(context.Background(), &Record{Action: ActionLogin}), "invalid record must not reach the database")

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO audit_records")).
		WillReturnError(errors.New("connection reset"))
	err = appender.Append(context.Background(), &Record{ActorID: "A1", Action: ActionLogin})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert audit record")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBAppender_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	appender, err := NewDBAppender(db)
	require.NoError(t, err)

	ts := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "actor_id", "actor_email", "action", "target_type", "target_id", "details", "created_at"}).
		AddRow(int64(7), "A1", "admin@example.com", "assigned_role", "user", "U9", `{"role":"chair"}`, ts).
		AddRow(int64(6), "A1", "admin@example.com", "login", nil, nil, nil, ts.Add(-time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_records WHERE actor_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2")).
		WithArgs("A1", 10).
		WillReturnRows(rows)

	records, err := appender.List(context.Background(), Filter{ActorID: "A1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, ActionAssignedRole, records[0].Action)
	assert.Equal(t, "chair", records[0].Details["role"])
	assert.Equal(t, TargetType(""), records[1].TargetType)
	assert.Nil(t, records[1].Details)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBAppender_ListAllFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	appender, err := NewDBAppender(db)
	require.NoError(t, err)

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE actor_id = $1 AND action = $2 AND created_at >= $3 ORDER BY created_at DESC, id DESC LIMIT $4")).
		WithArgs("A1", "logout", since, DefaultListLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id", "actor_id", "actor_email", "action", "target_type", "target_id", "details", "created_at"}))

	records, err := appender.List(context.Background(), Filter{ActorID: "A1", Action: ActionLogout, Since: since})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}
