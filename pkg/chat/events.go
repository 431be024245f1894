package chat

// Event is a typed signal from the engine to its host. Events are scoped to
// one Session and delivered on its event channel; there is no process-wide
// broadcast.
type Event interface{ isEvent() }

// TranscriptChanged fires after any Message Store mutation. The host should
// re-read Session.Snapshot().
type TranscriptChanged struct{}

// RevealProgress fires on each playback tick for the message being revealed.
// Shown is the rune-prefix length safe to display.
type RevealProgress struct {
	MessageID string
	Shown     int
}

// FlagsChanged fires when any of the host-visible booleans change
// (in-flight, streaming, input lock, awaiting-response, opening stage).
type FlagsChanged struct{}

// ChoicesOffered fires when a branch turn produced next-step options.
type ChoicesOffered struct {
	Choices []Choice
}

// NoticePosted carries a user-facing notice.
type NoticePosted struct {
	Notice Notice
}

// SessionEnded fires once when the session is torn down, either by Close or
// by a fatal error such as access revocation.
type SessionEnded struct {
	Cause NoticeCause // empty for a normal close
}

func (TranscriptChanged) isEvent() {}
func (RevealProgress) isEvent()    {}
func (FlagsChanged) isEvent()      {}
func (ChoicesOffered) isEvent()    {}
func (NoticePosted) isEvent()      {}
func (SessionEnded) isEvent()      {}
