// Package chat implements the client-side session engine: an ordered,
// deduplicated transcript kept consistent while messages arrive from
// optimistic local echo, an incremental delta stream, and the authoritative
// persisted record, with progressive playback and turn orchestration on top.
package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/strandapp/strand/pkg/transport"
)

// SenderKind identifies who produced a message.
type SenderKind string

const (
	SenderUser      SenderKind = "user"
	SenderAssistant SenderKind = "assistant"
	SenderSystem    SenderKind = "system"
)

// MetadataKind is an optional display tag carried by some messages.
type MetadataKind string

const (
	MetaPlain      MetadataKind = "plain"
	MetaIntro      MetadataKind = "intro"
	MetaStatus     MetadataKind = "status"
	MetaNextAction MetadataKind = "next_action"
	MetaSituation  MetadataKind = "situation"
)

// PlaybackState is the display lifecycle of a message. A message is in
// exactly one state: either it is receiving live deltas, or it is being
// progressively revealed from known text, or neither. The two reveal
// mechanisms are mutually exclusive per message.
type PlaybackState int

const (
	// PlaybackIdle: nothing display-related is happening.
	PlaybackIdle PlaybackState = iota
	// PlaybackStreaming: live deltas are being appended.
	PlaybackStreaming
	// PlaybackReveal: stored text is fully known but revealed over time.
	PlaybackReveal
	// PlaybackFinal: fully shown; never animated again.
	PlaybackFinal
)

// Message is the atomic transcript unit. Content is mutated in place while
// streaming and replaced wholesale on reconciliation; after that it only
// changes through explicit edit or regenerate actions, which keep the id.
type Message struct {
	ID        string
	RoomID    string
	Sender    SenderKind
	Content   string
	CreatedAt time.Time
	Narration bool
	// Pending marks a locally-created row the server has not confirmed.
	Pending bool
	State   PlaybackState
	Meta    MetadataKind
	// ContinueHint is display flavor suggesting a "continue" nudge.
	ContinueHint bool
}

// Streaming reports whether live deltas are being appended to this message.
func (m *Message) Streaming() bool { return m.State == PlaybackStreaming }

// IsProvisional reports whether this row still carries a client-generated
// temporary id.
func (m *Message) IsProvisional() bool { return strings.HasPrefix(m.ID, tempIDPrefix) }

const tempIDPrefix = "tmp-"

// NewTempID generates a client-side temporary message id. Temporary ids are
// volatile: reconciliation replaces them with server-assigned ones.
func NewTempID() string { return tempIDPrefix + uuid.NewString() }

// RoomMode distinguishes free-form chat from branching turn mode.
type RoomMode string

const (
	ModeChat   RoomMode = "chat"
	ModeBranch RoomMode = "branch"
)

// Room is the conversation context. Exactly one Room is active per Session.
type Room struct {
	ID         string
	Title      string
	Mode       RoomMode
	TurnCount  int
	MaxTurns   int // 0 = unbounded
	SceneIntro string
	Synced     bool
}

// Choice mirrors transport.Choice inside the engine.
type Choice struct {
	ID    string
	Label string
}

// MessageFromWire converts a transport message into the engine model.
// Confirmed rows arrive idle: whether they animate is the Playback
// Scheduler's decision, not the transport's.
func MessageFromWire(w transport.Message) Message {
	meta := MetadataKind(w.Meta)
	if meta == "" {
		meta = MetaPlain
	}
	return Message{
		ID:        w.ID,
		RoomID:    w.RoomID,
		Sender:    SenderKind(w.Sender),
		Content:   w.Content,
		CreatedAt: w.CreatedAt,
		Narration: w.Narration,
		State:     PlaybackIdle,
		Meta:      meta,
	}
}

// RoomFromWire converts a transport room into the engine model.
func RoomFromWire(w transport.Room) Room {
	mode := ModeChat
	if w.Mode == string(ModeBranch) {
		mode = ModeBranch
	}
	maxTurns := 0
	if w.MaxTurns != nil {
		maxTurns = *w.MaxTurns
	}
	return Room{
		ID:         w.ID,
		Title:      w.Title,
		Mode:       mode,
		TurnCount:  w.TurnCount,
		MaxTurns:   maxTurns,
		SceneIntro: w.SceneIntro,
		Synced:     w.Synced,
	}
}

// choicesFromWire converts transport choices.
func choicesFromWire(in []transport.Choice) []Choice {
	if len(in) == 0 {
		return nil
	}
	out := make([]Choice, len(in))
	for i, c := range in {
		out[i] = Choice{ID: c.ID, Label: c.Label}
	}
	return out
}
