package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/sync-relay/internal/relayerr"
)

// recordingDB captures the SQL and args passed to Exec/Query so tests can
// assert on statement shape without a live Postgres connection.
type recordingDB struct {
	execSQL  []string
	execArgs [][]interface{}
}

func (r *recordingDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	r.execSQL = append(r.execSQL, sql)
	r.execArgs = append(r.execArgs, args)
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (r *recordingDB) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	panic("not used by these tests")
}

func (r *recordingDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	panic("not used by these tests")
}

func TestInsertPending_NilPayloadBecomesEmptyObject(t *testing.T) {
	db := &recordingDB{}
	id, err := InsertPending(context.Background(), db, "up.leaf.snc.unit1.desk1.order.order.created", nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Len(t, db.execArgs, 1)
	args := db.execArgs[0]
	assert.Equal(t, []byte("{}"), args[2])
	assert.Nil(t, args[3]) // headers: SQL NULL when nil
}

func TestInsertPending_HeadersMarshaledWhenPresent(t *testing.T) {
	db := &recordingDB{}
	_, err := InsertPending(context.Background(), db, "up.leaf.snc.unit1.desk1.order.order.created",
		[]byte(`{"k":"v"}`), map[string]string{"trace_id": "abc"})
	require.NoError(t, err)

	args := db.execArgs[0]
	assert.Equal(t, []byte(`{"k":"v"}`), args[2])
	assert.JSONEq(t, `{"trace_id":"abc"}`, string(args[3].([]byte)))
}

func TestMarkPublished_UsesStatusGuard(t *testing.T) {
	db := &recordingDB{}
	s := NewStore(db)
	err := s.MarkPublished(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Contains(t, db.execSQL[0], "status = 'PUBLISHED'")
	assert.Contains(t, db.execSQL[0], "WHERE id = $1 AND status = 'PENDING'")
}

func TestMarkPending_AdvancesRetryCountOnly(t *testing.T) {
	db := &recordingDB{}
	s := NewStore(db)
	err := s.MarkPending(context.Background(), "evt-1", 3)
	require.NoError(t, err)
	assert.Contains(t, db.execSQL[0], "retry_count = $2")
	assert.NotContains(t, db.execSQL[0], "FAILED")
	assert.Equal(t, 3, db.execArgs[0][1])
}

func TestMarkFailed_SetsTerminalStatus(t *testing.T) {
	db := &recordingDB{}
	s := NewStore(db)
	err := s.MarkFailed(context.Background(), "evt-1", 5)
	require.NoError(t, err)
	assert.Contains(t, db.execSQL[0], "status = 'FAILED'")
}

// failingDB always returns execErr from Exec, used to exercise classifyDBError
// through the Store methods without a live Postgres connection.
type failingDB struct {
	recordingDB
	execErr error
}

func (f *failingDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, f.execErr
}

func TestClassifyDBError_IntegrityViolationIsFatal(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key value"}
	db := &failingDB{execErr: pgErr}
	s := NewStore(db)

	err := s.MarkPublished(context.Background(), "evt-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, relayerr.ErrDbFatal))
	assert.False(t, errors.Is(err, relayerr.ErrDbTransient))
}

func TestClassifyDBError_ConnectionResetIsTransient(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "08006", Message: "connection failure"}
	db := &failingDB{execErr: pgErr}
	s := NewStore(db)

	err := s.MarkPending(context.Background(), "evt-1", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, relayerr.ErrDbTransient))
	assert.False(t, errors.Is(err, relayerr.ErrDbFatal))
}

func TestClassifyDBError_UnclassifiedErrorDefaultsTransient(t *testing.T) {
	db := &failingDB{execErr: errors.New("context deadline exceeded")}
	s := NewStore(db)

	err := s.MarkFailed(context.Background(), "evt-1", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, relayerr.ErrDbTransient))
}
