package livestore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bolt "go.etcd.io/bbolt"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

type fixture struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestPutGetRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return stamp }

	require.NoError(t, s.Put("prefs", "room-1", fixture{Name: "velvet", Count: 3}))

	var got fixture
	savedAt, ok, err := s.Get("prefs", "room-1", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fixture{Name: "velvet", Count: 3}, got)
	assert.True(t, savedAt.Equal(stamp), "stamp round-trips: got %v", savedAt)
}

func TestGetAbsentKey(t *testing.T) {
	s, _ := openTestStore(t)
	_, ok, err := s.Get("prefs", "missing", &fixture{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNamespacesAreIsolated(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Put("liveness", "k", fixture{Name: "a"}))
	require.NoError(t, s.Put("prefs", "k", fixture{Name: "b"}))

	var got fixture
	_, ok, err := s.Get("liveness", "k", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", got.Name)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Put("prefs", "k", fixture{}))
	require.NoError(t, s.Delete("prefs", "k"))
	require.NoError(t, s.Delete("prefs", "k"))
	require.NoError(t, s.Delete("never-existed", "k"))

	_, ok, err := s.Get("prefs", "k", &fixture{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMalformedEntryIsSkippedNotFatal(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte("prefs"))
		if err != nil {
			return err
		}
		return b.Put([]byte("junk"), []byte("not json at all"))
	}))

	_, ok, err := s.Get("prefs", "junk", &fixture{})
	require.NoError(t, err, "corruption degrades to a cache miss")
	assert.False(t, ok)
}

func TestValuesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put("liveness", "room-9", fixture{Name: "waiting"}))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	var got fixture
	_, ok, err := s2.Get("liveness", "room-9", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "waiting", got.Name)
}
