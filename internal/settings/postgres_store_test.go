package settings

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int)) = 1
	return nil
}

type fakeRows struct {
	data [][2]string
	pos  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	*(dest[0].(*string)) = row[0]
	*(dest[1].(*string)) = row[1]
	return nil
}

type fakeQuerier struct {
	row       fakeRow
	rows      *fakeRows
	queryErr  error
	queryArgs []any
	execs     []string
}

func (q *fakeQuerier) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	q.queryArgs = args
	if q.queryErr != nil {
		return nil, q.queryErr
	}
	return q.rows, nil
}

func (q *fakeQuerier) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return q.row
}

func (q *fakeQuerier) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	q.execs = append(q.execs, sql)
	return pgconn.CommandTag{}, nil
}

func TestPostgresStore_GetDetails(t *testing.T) {
	db := &fakeQuerier{rows: &fakeRows{data: [][2]string{
		{APIKeyLiveProperty, "enc-live"},
		{APIKeyTestProperty, "enc-test"},
	}}}
	store := NewPostgresStore(db)

	values, found, err := store.GetDetails(context.Background(), 7, ProviderEntityType, APIKeyLiveProperty, APIKeyTestProperty)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "enc-live", values[APIKeyLiveProperty])
	assert.Equal(t, "enc-test", values[APIKeyTestProperty])
	require.Len(t, db.queryArgs, 3)
	assert.Equal(t, int64(7), db.queryArgs[0])
	assert.Equal(t, ProviderEntityType, db.queryArgs[1])
	assert.Equal(t, []string{APIKeyLiveProperty, APIKeyTestProperty}, db.queryArgs[2])
}

func TestPostgresStore_GetDetails_NotFound(t *testing.T) {
	store := NewPostgresStore(&fakeQuerier{row: fakeRow{err: pgx.ErrNoRows}})

	values, found, err := store.GetDetails(context.Background(), 7, ProviderEntityType, APIKeyLiveProperty)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, values)
}

func TestPostgresStore_GetDetails_Errors(t *testing.T) {
	store := NewPostgresStore(&fakeQuerier{row: fakeRow{err: fmt.Errorf("conn closed")}})
	_, _, err := store.GetDetails(context.Background(), 7, ProviderEntityType)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settings: lookup item 7: conn closed")

	store = NewPostgresStore(&fakeQuerier{queryErr: fmt.Errorf("timeout")})
	_, _, err = store.GetDetails(context.Background(), 7, ProviderEntityType)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query details of item 7: timeout")

	store = NewPostgresStore(&fakeQuerier{rows: &fakeRows{err: fmt.Errorf("broken stream")}})
	_, _, err = store.GetDetails(context.Background(), 7, ProviderEntityType)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read details of item 7: broken stream")
}

func TestPostgresStore_InitSchema(t *testing.T) {
	db := &fakeQuerier{}
	require.NoError(t, NewPostgresStore(db).InitSchema(context.Background()))
	require.Len(t, db.execs, 2)
	assert.Contains(t, db.execs[0], "CREATE TABLE IF NOT EXISTS wiser_item")
	assert.Contains(t, db.execs[1], "CREATE TABLE IF NOT EXISTS wiser_itemdetail")
}
