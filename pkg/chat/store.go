package chat

import "github.com/sirupsen/logrus"

// MessageStore is the ordered, deduplicated transcript and the single source
// of truth the rendering layer draws from. It is owned by the Session and
// only ever mutated on the session loop, so it carries no locking.
//
// Invariant: no two entries share the same non-empty id.
type MessageStore struct {
	msgs  []*Message
	index map[string]int
	log   *logrus.Entry

	observers []func()
}

// NewMessageStore creates an empty store.
func NewMessageStore(log *logrus.Entry) *MessageStore {
	return &MessageStore{
		index: make(map[string]int),
		log:   log,
	}
}

// Observe registers a callback invoked after every mutation.
func (s *MessageStore) Observe(fn func()) {
	s.observers = append(s.observers, fn)
}

func (s *MessageStore) notify() {
	for _, fn := range s.observers {
		fn()
	}
}

// Append inserts a message at the end of the transcript. If the id collides
// with an existing entry the existing entry is shallow-merged in place (set
// fields of the new message win) and nothing is duplicated.
func (s *MessageStore) Append(m Message) *Message {
	if m.ID != "" {
		if i, ok := s.index[m.ID]; ok {
			mergeMessage(s.msgs[i], m)
			s.notify()
			return s.msgs[i]
		}
	}
	stored := m
	s.msgs = append(s.msgs, &stored)
	if stored.ID != "" {
		s.index[stored.ID] = len(s.msgs) - 1
	}
	s.notify()
	return &stored
}

// ReplaceProvisional atomically swaps the temporary row tempID for its
// confirmed counterpart at the same position. If the temporary row is gone
// (a room switch removed it) the call is a no-op and reports false, unless
// the final id is already present, in which case the existing entry is
// merged so the operation stays idempotent.
func (s *MessageStore) ReplaceProvisional(tempID string, final Message) bool {
	if i, ok := s.index[final.ID]; ok && final.ID != "" {
		// Already reconciled once; replaying the payload must not duplicate.
		mergeMessage(s.msgs[i], final)
		s.removeAt(s.indexOf(tempID))
		s.notify()
		return true
	}

	i := s.indexOf(tempID)
	if i < 0 {
		return false
	}
	delete(s.index, tempID)
	stored := final
	s.msgs[i] = &stored
	if stored.ID != "" {
		s.index[stored.ID] = i
	}
	s.notify()
	return true
}

// Remove deletes the entry with the given id. Removing an absent id is a
// no-op.
func (s *MessageStore) Remove(id string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.removeAt(i)
	s.notify()
	return true
}

// Touch notifies observers of an in-place edit done through Get. Streaming
// appends mutate the entry directly and then call this.
func (s *MessageStore) Touch(id string) {
	if s.indexOf(id) >= 0 {
		s.notify()
	}
}

// Reset discards the whole transcript. Used when the session switches to a
// different room.
func (s *MessageStore) Reset() {
	if len(s.msgs) == 0 {
		return
	}
	s.msgs = nil
	s.index = make(map[string]int)
	s.notify()
}

// SetContent rewrites the body of an existing entry without changing its
// identity. Position, sender, and playback state are untouched.
func (s *MessageStore) SetContent(id, content string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.msgs[i].Content = content
	s.notify()
	return true
}

// Get returns the entry with the given id, or nil.
func (s *MessageStore) Get(id string) *Message {
	if i, ok := s.index[id]; ok {
		return s.msgs[i]
	}
	return nil
}

// Has reports whether a non-empty id is present.
func (s *MessageStore) Has(id string) bool {
	_, ok := s.index[id]
	return id != "" && ok
}

// Len returns the number of entries.
func (s *MessageStore) Len() int { return len(s.msgs) }

// Last returns the final entry, or nil when empty.
func (s *MessageStore) Last() *Message {
	if len(s.msgs) == 0 {
		return nil
	}
	return s.msgs[len(s.msgs)-1]
}

// LastNonSystem returns the most recent message not sent by the system.
func (s *MessageStore) LastNonSystem() *Message {
	for i := len(s.msgs) - 1; i >= 0; i-- {
		if s.msgs[i].Sender != SenderSystem {
			return s.msgs[i]
		}
	}
	return nil
}

// Snapshot returns a copy of the transcript in order. Callers may hold the
// result across loop iterations; it never aliases store internals.
func (s *MessageStore) Snapshot() []Message {
	out := make([]Message, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = *m
	}
	return out
}

// MergeBatch applies a full list pushed in from a batch sync: the list is
// deduplicated by id, then merged entry by entry into the store. Entries the
// store already holds keep their local-only display state; unknown entries
// are appended in list order.
func (s *MessageStore) MergeBatch(list []Message) {
	for _, m := range DedupeByID(list) {
		if i, ok := s.index[m.ID]; ok && m.ID != "" {
			mergeMessage(s.msgs[i], m)
			continue
		}
		stored := m
		s.msgs = append(s.msgs, &stored)
		if stored.ID != "" {
			s.index[stored.ID] = len(s.msgs) - 1
		}
	}
	s.notify()
}

// DedupeByID collapses same-id entries of an arbitrary list, preserving the
// position of each id's first occurrence. Later entries win field by field,
// where "win" means a set (non-zero) field overwrites.
func DedupeByID(list []Message) []Message {
	out := make([]Message, 0, len(list))
	seen := make(map[string]int, len(list))
	for _, m := range list {
		if m.ID == "" {
			out = append(out, m)
			continue
		}
		if i, ok := seen[m.ID]; ok {
			mergeMessage(&out[i], m)
			continue
		}
		seen[m.ID] = len(out)
		out = append(out, m)
	}
	return out
}

// mergeMessage overlays src's set fields onto dst. Zero-valued fields of src
// never erase existing data; the playback state only ever moves forward so a
// resync cannot re-animate a finished message.
func mergeMessage(dst *Message, src Message) {
	if src.ID != "" {
		dst.ID = src.ID
	}
	if src.RoomID != "" {
		dst.RoomID = src.RoomID
	}
	if src.Sender != "" {
		dst.Sender = src.Sender
	}
	if src.Content != "" {
		dst.Content = src.Content
	}
	if !src.CreatedAt.IsZero() {
		dst.CreatedAt = src.CreatedAt
	}
	if src.Meta != "" {
		dst.Meta = src.Meta
	}
	if src.Narration {
		dst.Narration = true
	}
	if src.ContinueHint {
		dst.ContinueHint = true
	}
	if src.State > dst.State {
		dst.State = src.State
	}
	// Pending can only clear, never reappear, via merge.
	if !src.Pending {
		dst.Pending = false
	}
}

func (s *MessageStore) indexOf(id string) int {
	if id == "" {
		return -1
	}
	if i, ok := s.index[id]; ok {
		return i
	}
	return -1
}

func (s *MessageStore) removeAt(i int) {
	if i < 0 || i >= len(s.msgs) {
		return
	}
	delete(s.index, s.msgs[i].ID)
	s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
	for j := i; j < len(s.msgs); j++ {
		if s.msgs[j].ID != "" {
			s.index[s.msgs[j].ID] = j
		}
	}
}
