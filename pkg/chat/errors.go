package chat

import (
	"errors"

	"github.com/strandapp/strand/pkg/transport"
)

// Sentinel errors returned by Session commands. These all describe
// conditions resolved before any network call.
var (
	// ErrTurnInFlight: a second turn was submitted while one is running.
	ErrTurnInFlight = errors.New("a turn is already in flight")
	// ErrAuthRequired: the caller has no credentials; nothing was sent.
	ErrAuthRequired = errors.New("login required before sending")
	// ErrRoomMismatch: the room resolved from the UI does not match the
	// authoritative room. Guards cross-room misfires during a pending
	// room-creation race.
	ErrRoomMismatch = errors.New("room identity mismatch")
	// ErrChoicesPending: free-form advance rejected while branch choices
	// are displayed.
	ErrChoicesPending = errors.New("select a choice first")
	// ErrCooldown: duplicate advance throttled client-side.
	ErrCooldown = errors.New("advancing too quickly")
	// ErrEmptyInput: nothing to send.
	ErrEmptyInput = errors.New("empty input")
	// ErrNotFound: the referenced message is not in the transcript.
	ErrNotFound = errors.New("message not found")
	// ErrTurnLimit: the room's turn cap is exhausted.
	ErrTurnLimit = errors.New("turn limit reached")
	// ErrSessionClosed: the session has been detached.
	ErrSessionClosed = errors.New("session closed")
)

// NoticeLevel grades user-facing notices.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarn
	NoticeError
)

// NoticeCause discriminates notices so the host can deduplicate and react.
// Errors that change what the user can do next are surfaced exactly once per
// cause; component-internal conditions (stale tokens, dedup collisions) are
// resolved silently and never become notices.
type NoticeCause string

const (
	CauseTransport    NoticeCause = "transport_failure"
	CauseStream       NoticeCause = "stream_error"
	CauseAuthRequired NoticeCause = "auth_required"
	CauseAccessDenied NoticeCause = "access_denied"
	CauseTurnConflict NoticeCause = "turn_conflict"
	CauseTimeout      NoticeCause = "fail_safe_timeout"
	CauseTurnLimit    NoticeCause = "turn_limit_reached"
)

// Notice is a user-facing report delivered on the event channel. It is never
// written into the Message Store disguised as assistant content.
type Notice struct {
	Cause NoticeCause
	Level NoticeLevel
	Text  string
	// Retryable hints that repeating the action may succeed.
	Retryable bool
}

// classifyTransportErr maps a transport failure onto the notice taxonomy.
func classifyTransportErr(err error) Notice {
	var status *transport.StatusError
	if errors.As(err, &status) {
		switch {
		case status.AuthRequired():
			return Notice{Cause: CauseAuthRequired, Level: NoticeError, Text: "You need to log in to continue."}
		case status.AccessDenied():
			return Notice{Cause: CauseAccessDenied, Level: NoticeError, Text: "This conversation is no longer available."}
		}
	}
	return Notice{
		Cause:     CauseTransport,
		Level:     NoticeWarn,
		Text:      "Couldn't reach the server. Your message was not sent.",
		Retryable: true,
	}
}

// fatal reports whether a notice ends the session (room teardown + redirect).
func (n Notice) fatal() bool { return n.Cause == CauseAccessDenied }
