package chat

import (
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StreamSession is one incremental-delta connection. Exactly one live
// StreamSession exists per in-flight turn; its token is captured at open and
// compared against the room's current token before every mutation, so a
// stream orphaned by a room switch or a duplicate connection can never touch
// state again.
type StreamSession struct {
	ID       string
	TargetID string
	Token    int

	buffer strings.Builder
	closed bool
}

// Ingestor accumulates text deltas into a provisional assistant message.
type Ingestor struct {
	store   *MessageStore
	roomID  func() string
	current func() int
	log     *logrus.Entry

	sessions map[string]*StreamSession
}

// NewIngestor creates the pipeline. current yields the room's live
// cancellation token.
func NewIngestor(store *MessageStore, roomID func() string, current func() int, log *logrus.Entry) *Ingestor {
	return &Ingestor{
		store:    store,
		roomID:   roomID,
		current:  current,
		log:      log,
		sessions: make(map[string]*StreamSession),
	}
}

// Open registers a new stream session bound to the current token and returns
// it. The provisional assistant row is not created until the first delta.
func (in *Ingestor) Open() *StreamSession {
	ss := &StreamSession{
		ID:       uuid.NewString(),
		TargetID: NewTempID(),
		Token:    in.current(),
	}
	in.sessions[ss.ID] = ss
	return ss
}

// OnDelta appends a chunk to the stream's provisional message, creating the
// row on the first delta. Deltas whose token is stale are dropped silently:
// expected, not exceptional.
func (in *Ingestor) OnDelta(streamID, chunk string) {
	ss := in.sessions[streamID]
	if ss == nil || ss.closed || ss.Token != in.current() {
		return
	}
	ss.buffer.WriteString(chunk)

	if !in.store.Has(ss.TargetID) {
		in.store.Append(Message{
			ID:      ss.TargetID,
			RoomID:  in.roomID(),
			Sender:  SenderAssistant,
			Pending: true,
			State:   PlaybackStreaming,
			Meta:    MetaPlain,
		})
	}
	m := in.store.Get(ss.TargetID)
	m.Content = ss.buffer.String()
	in.store.Touch(ss.TargetID)
}

// OnDone marks the stream closed and returns the provisional target id so
// the caller can hand the authoritative payload to reconciliation. Returns
// false for unknown, already-closed, or stale streams.
func (in *Ingestor) OnDone(streamID string) (targetID string, ok bool) {
	ss := in.sessions[streamID]
	if ss == nil || ss.closed || ss.Token != in.current() {
		return "", false
	}
	ss.closed = true
	delete(in.sessions, streamID)
	return ss.TargetID, true
}

// OnError marks the provisional row non-streaming but leaves it visible:
// partial output the user already saw is never silently deleted. Returns
// false when the stream was stale, in which case nothing is surfaced.
func (in *Ingestor) OnError(streamID string) (targetID string, ok bool) {
	ss := in.sessions[streamID]
	if ss == nil || ss.closed {
		return "", false
	}
	ss.closed = true
	delete(in.sessions, streamID)
	if ss.Token != in.current() {
		return "", false
	}

	if m := in.store.Get(ss.TargetID); m != nil {
		m.State = PlaybackFinal
		in.store.Touch(ss.TargetID)
	}
	in.log.WithField("stream_id", streamID).Warn("stream ended with error; keeping partial output")
	return ss.TargetID, true
}

// Drop discards a stream session without touching the store. Used during
// rollback when nothing was ever received.
func (in *Ingestor) Drop(streamID string) {
	delete(in.sessions, streamID)
}
