// Package transport defines what the chat engine needs from the server and
// provides an HTTP/SSE implementation of it. The engine depends only on the
// interfaces here; tests substitute fakes.
package transport

import (
	"context"
	"fmt"
	"time"
)

// Message is the wire form of a transcript entry.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	Sender    string    `json:"sender"` // user | assistant | system
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Narration bool      `json:"is_narration,omitempty"`
	Meta      string    `json:"metadata_kind,omitempty"` // intro | status | next_action | situation | plain
}

// Room is the wire form of a conversation context.
type Room struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Mode       string `json:"mode"` // chat | branch
	TurnCount  int    `json:"turn_count"`
	MaxTurns   *int   `json:"max_turns,omitempty"`
	SceneIntro string `json:"scene_intro,omitempty"`
	Synced     bool   `json:"settings_synced"`
}

// Choice is one discrete next-step option offered in branch mode.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// TurnRequest carries one user turn to the server.
type TurnRequest struct {
	RoomID         string `json:"room_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Text           string `json:"text,omitempty"`
	ChoiceID       string `json:"choice_id,omitempty"`
	Continue       bool   `json:"continue,omitempty"`
}

// TurnResult is the authoritative outcome of a completed turn.
type TurnResult struct {
	User      Message  `json:"user"`
	Assistant Message  `json:"assistant"`
	Ending    *Message `json:"ending,omitempty"`
	Choices   []Choice `json:"choices,omitempty"`
	TurnCount int      `json:"turn_count"`
}

// StreamEventKind discriminates stream events.
type StreamEventKind string

const (
	StreamDelta StreamEventKind = "delta"
	StreamDone  StreamEventKind = "done"
	StreamError StreamEventKind = "error"
)

// StreamEvent is one event from an incremental-delta connection. A stream
// delivers zero or more deltas followed by exactly one done or error event.
type StreamEvent struct {
	Kind   StreamEventKind `json:"kind"`
	Delta  string          `json:"delta,omitempty"`
	Result *TurnResult     `json:"result,omitempty"`
	Err    string          `json:"error,omitempty"`
}

// Stream is a live incremental-delta connection. Events is closed after the
// terminal event; Cancel tears the connection down early.
type Stream struct {
	Events <-chan StreamEvent
	Cancel context.CancelFunc
}

// Client is the full collaborator contract consumed by the engine.
type Client interface {
	CreateRoom(ctx context.Context, title string) (*Room, error)
	FetchRoom(ctx context.Context, roomID string) (*Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	FetchMessages(ctx context.Context, roomID string, limit int) ([]Message, error)

	// OpenStream submits a free-text turn and streams the response.
	OpenStream(ctx context.Context, req TurnRequest) (*Stream, error)
	// SubmitTurn submits a turn and waits for the full result. Used for
	// branch/choice turns, which are request/response rather than streaming.
	SubmitTurn(ctx context.Context, req TurnRequest) (*TurnResult, error)
}

// StatusError is a typed HTTP-like failure the engine maps onto its error
// taxonomy.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("server returned HTTP %d: %s", e.Code, e.Body)
}

// AuthRequired reports whether the failure means the caller must log in.
func (e *StatusError) AuthRequired() bool { return e.Code == 401 }

// AccessDenied reports whether the target was made private or deleted out
// from under the caller. Fatal for the current session.
func (e *StatusError) AccessDenied() bool {
	return e.Code == 403 || e.Code == 404 || e.Code == 410
}
