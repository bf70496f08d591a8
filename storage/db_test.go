package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	_ Database = (*MemDB)(nil)
	_ Database = (*LevelDB)(nil)
)

func openDatabases(t *testing.T) map[string]Database {
	t.Helper()
	ldb, err := NewLevelDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(ldb.Close)
	return map[string]Database{
		"memdb":   NewMemDB(),
		"leveldb": ldb,
	}
}

func TestPutGetDelete(t *testing.T) {
	for name, db := range openDatabases(t) {
		t.Run(name, func(t *testing.T) {
			_, err := db.Get([]byte("missing"))
			require.ErrorIs(t, err, ErrKeyNotFound)

			require.NoError(t, db.Put([]byte("key"), []byte("value")))
			got, err := db.Get([]byte("key"))
			require.NoError(t, err)
			require.Equal(t, []byte("value"), got)

			ok, err := db.Has([]byte("key"))
			require.NoError(t, err)
			require.True(t, ok)

			require.NoError(t, db.Put([]byte("key"), []byte("updated")))
			got, err = db.Get([]byte("key"))
			require.NoError(t, err)
			require.Equal(t, []byte("updated"), got)

			require.NoError(t, db.Delete([]byte("key")))
			ok, err = db.Has([]byte("key"))
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestIteratePrefix(t *testing.T) {
	for name, db := range openDatabases(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Put([]byte("a/1"), []byte("one")))
			require.NoError(t, db.Put([]byte("a/2"), []byte("two")))
			require.NoError(t, db.Put([]byte("a/3"), []byte("three")))
			require.NoError(t, db.Put([]byte("b/1"), []byte("other")))

			var keys []string
			err := db.IteratePrefix([]byte("a/"), func(key, value []byte) bool {
				keys = append(keys, string(key))
				return true
			})
			require.NoError(t, err)
			require.Equal(t, []string{"a/1", "a/2", "a/3"}, keys)

			// Early stop.
			keys = nil
			err = db.IteratePrefix([]byte("a/"), func(key, value []byte) bool {
				keys = append(keys, string(key))
				return false
			})
			require.NoError(t, err)
			require.Equal(t, []string{"a/1"}, keys)

			// Empty prefix scope.
			count := 0
			err = db.IteratePrefix([]byte("c/"), func(key, value []byte) bool {
				count++
				return true
			})
			require.NoError(t, err)
			require.Zero(t, count)
		})
	}
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("original")
	require.NoError(t, db.Put([]byte("key"), value))
	value[0] = 'X'

	got, err := db.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("original"), got)

	got[0] = 'Y'
	again, err := db.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("original"), again)
}
