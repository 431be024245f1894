package chat

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandapp/strand/pkg/livestore"
)

func newRecoveryFixture(t *testing.T) (*Recovery, *manualClock, *MessageStore) {
	t.Helper()
	kv, err := livestore.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	clock := newManualClock()
	kv.Now = clock.Now
	return NewRecovery(kv, 3*time.Minute, clock.Now, testLogger()), clock, NewMessageStore(testLogger())
}

func TestRecoveryAwaitingAfterReload(t *testing.T) {
	r, _, store := newRecoveryFixture(t)
	store.Append(userMsg("u1", "still waiting on this"))

	r.NoteSubmitted("room-1", "text")

	assert.True(t, r.AwaitingResponse("room-1", store))
	assert.False(t, r.AwaitingResponse("room-2", store), "records are per room")
}

func TestRecoveryClearedWhenReplyLanded(t *testing.T) {
	r, _, store := newRecoveryFixture(t)
	r.NoteSubmitted("room-1", "text")

	store.Append(userMsg("u1", "question"))
	store.Append(assistantMsg("a1", "answer"))

	assert.False(t, r.AwaitingResponse("room-1", store))
	// The stale record was deleted, not just ignored.
	store.Append(userMsg("u2", "another question"))
	assert.False(t, r.AwaitingResponse("room-1", store))
}

func TestRecoveryRecordExpires(t *testing.T) {
	r, clock, store := newRecoveryFixture(t)
	store.Append(userMsg("u1", "abandoned"))
	r.NoteSubmitted("room-1", "continue")

	clock.Advance(2 * time.Minute)
	assert.True(t, r.AwaitingResponse("room-1", store))

	clock.Advance(5 * time.Minute)
	assert.False(t, r.AwaitingResponse("room-1", store), "a record older than the TTL is dead")
}

func TestRecoveryClearIsIdempotent(t *testing.T) {
	r, _, store := newRecoveryFixture(t)
	r.NoteSubmitted("room-1", "text")
	r.Clear("room-1")
	r.Clear("room-1")

	store.Append(userMsg("u1", "question"))
	assert.False(t, r.AwaitingResponse("room-1", store))
}

func TestRecoveryNilStoreDegradesSilently(t *testing.T) {
	r := NewRecovery(nil, time.Minute, time.Now, testLogger())
	r.NoteSubmitted("room-1", "text")
	r.Clear("room-1")
	assert.False(t, r.AwaitingResponse("room-1", NewMessageStore(testLogger())))
}
