package sqlitedb

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitlab/promptsync/internal/remote"
)

func setupTestDB(t *testing.T, pageSize int) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "prompts.db"), Options{PageSize: pageSize})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func fields(name, template string) remote.Fields {
	return remote.Fields{
		remote.FieldName:     name,
		remote.FieldTemplate: template,
		remote.FieldTags:     []string{"x"},
	}
}

func TestUpsert_CreateThenUpdate(t *testing.T) {
	db := setupTestDB(t, 0)
	ctx := context.Background()

	created, err := db.Upsert(ctx, "a/b@1.0.0", fields("a/b@1.0.0", "v1"))
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	updated, err := db.Upsert(ctx, "a/b@1.0.0", fields("a/b@1.0.0", "v2"))
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID, "update must keep the record ID")

	rec, found, err := db.FindByName(ctx, "a/b@1.0.0")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, created.ID, rec.ID)
	assert.Equal(t, "v2", rec.Fields[remote.FieldTemplate])
	// JSON round trip yields loose shapes.
	assert.Equal(t, []any{"x"}, rec.Fields[remote.FieldTags])

	count, err := db.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpsert_NameOverridesFields(t *testing.T) {
	db := setupTestDB(t, 0)

	rec, err := db.Upsert(context.Background(), "a/b@1.0.0", remote.Fields{remote.FieldName: "other@1.0.0"})
	require.NoError(t, err)
	assert.Equal(t, "a/b@1.0.0", rec.Name())
}

func TestFindByName_Missing(t *testing.T) {
	db := setupTestDB(t, 0)

	_, found, err := db.FindByName(context.Background(), "nope@1.0.0")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListAll_Paging(t *testing.T) {
	db := setupTestDB(t, 3)
	ctx := context.Background()

	var want []string
	for i := range 7 {
		name := fmt.Sprintf("cat/item-%02d@1.0.0", i)
		want = append(want, name)
		_, err := db.Upsert(ctx, name, fields(name, "t"))
		require.NoError(t, err)
	}

	var got []string
	for rec, err := range db.ListAll(ctx) {
		require.NoError(t, err)
		got = append(got, rec.Name())
	}
	assert.Equal(t, want, got)
}

func TestListAll_StopsEarly(t *testing.T) {
	db := setupTestDB(t, 2)
	ctx := context.Background()
	for _, name := range []string{"a/a@1.0.0", "a/b@1.0.0", "a/c@1.0.0"} {
		_, err := db.Upsert(ctx, name, fields(name, "t"))
		require.NoError(t, err)
	}

	seen := 0
	for _, err := range db.ListAll(ctx) {
		require.NoError(t, err)
		seen++
		if seen == 1 {
			break
		}
	}
	assert.Equal(t, 1, seen)
}

func TestListAll_Canceled(t *testing.T) {
	db := setupTestDB(t, 0)
	_, err := db.Upsert(context.Background(), "a/b@1.0.0", fields("a/b@1.0.0", "t"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var lastErr error
	for _, err := range db.ListAll(ctx) {
		lastErr = err
	}
	require.Error(t, lastErr)
	assert.ErrorIs(t, lastErr, context.Canceled)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prompts.db")

	db, err := Open(path, Options{})
	require.NoError(t, err)
	_, err = db.Upsert(context.Background(), "a/b@1.0.0", fields("a/b@1.0.0", "t"))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close(), "Close is idempotent")

	db, err = Open(path, Options{})
	require.NoError(t, err)
	defer db.Close()

	count, err := db.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
