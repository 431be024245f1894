package chat

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/strandapp/strand/pkg/livestore"
)

const livenessNamespace = "liveness"

// LivenessRecord is the minimal state mirrored to disk when a turn is
// submitted, so a reload cannot silently hide a turn the server is still
// processing.
type LivenessRecord struct {
	RoomID string `json:"room_id"`
	Kind   string `json:"kind"` // text | choice | continue
}

// Recovery persists and interprets liveness records. It is the only
// component that writes them; the TTL is enforced by the reader and expired
// records are deleted eagerly.
type Recovery struct {
	kv  *livestore.Store
	ttl time.Duration
	now func() time.Time
	log *logrus.Entry
}

// NewRecovery wires the recovery layer over the client KV store.
func NewRecovery(kv *livestore.Store, ttl time.Duration, now func() time.Time, log *logrus.Entry) *Recovery {
	return &Recovery{kv: kv, ttl: ttl, now: now, log: log}
}

// NoteSubmitted records that a turn left the client.
func (r *Recovery) NoteSubmitted(roomID, kind string) {
	if r.kv == nil {
		return
	}
	rec := LivenessRecord{RoomID: roomID, Kind: kind}
	if err := r.kv.Put(livenessNamespace, roomID, rec); err != nil {
		// Losing the record only degrades reload recovery; the turn itself
		// is unaffected.
		r.log.WithError(err).Warn("failed to persist liveness record")
	}
}

// Clear removes the record once the assistant's reply is in the transcript.
func (r *Recovery) Clear(roomID string) {
	if r.kv == nil {
		return
	}
	if err := r.kv.Delete(livenessNamespace, roomID); err != nil {
		r.log.WithError(err).Warn("failed to clear liveness record")
	}
}

// AwaitingResponse reports whether a live, unexpired record exists for the
// room and the transcript still ends with a user message. In that case the
// session remounts in the "awaiting response" state even though in-memory
// flags were reset.
func (r *Recovery) AwaitingResponse(roomID string, store *MessageStore) bool {
	if r.kv == nil {
		return false
	}
	var rec LivenessRecord
	savedAt, ok, err := r.kv.Get(livenessNamespace, roomID, &rec)
	if err != nil {
		r.log.WithError(err).Warn("failed to read liveness record")
		return false
	}
	if !ok {
		return false
	}
	if r.now().Sub(savedAt) > r.ttl {
		r.Clear(roomID)
		return false
	}

	last := store.LastNonSystem()
	if last == nil || last.Sender != SenderUser {
		// The reply already landed; the record has served its purpose.
		r.Clear(roomID)
		return false
	}
	return true
}
