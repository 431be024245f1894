package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/strandapp/strand/pkg/transport"
)

// Settings are the engine's tunables. Zero values are replaced by defaults
// in NewSession.
type Settings struct {
	MinReveal       time.Duration
	MaxReveal       time.Duration
	RevealTick      time.Duration
	AdvanceCooldown time.Duration
	FailSafeTimeout time.Duration
	LivenessTTL     time.Duration
	HistoryPageSize int
}

// DefaultSettings returns the production tunables.
func DefaultSettings() Settings {
	return Settings{
		MinReveal:       600 * time.Millisecond,
		MaxReveal:       6 * time.Second,
		RevealTick:      40 * time.Millisecond,
		AdvanceCooldown: 3 * time.Second,
		FailSafeTimeout: 45 * time.Second,
		LivenessTTL:     3 * time.Minute,
		HistoryPageSize: 100,
	}
}

func (s *Settings) applyDefaults() {
	d := DefaultSettings()
	if s.MinReveal <= 0 {
		s.MinReveal = d.MinReveal
	}
	if s.MaxReveal <= 0 {
		s.MaxReveal = d.MaxReveal
	}
	if s.RevealTick <= 0 {
		s.RevealTick = d.RevealTick
	}
	if s.AdvanceCooldown <= 0 {
		s.AdvanceCooldown = d.AdvanceCooldown
	}
	if s.FailSafeTimeout <= 0 {
		s.FailSafeTimeout = d.FailSafeTimeout
	}
	if s.LivenessTTL <= 0 {
		s.LivenessTTL = d.LivenessTTL
	}
	if s.HistoryPageSize <= 0 {
		s.HistoryPageSize = d.HistoryPageSize
	}
}

// Flags is the coarse state a host needs to render controls.
type Flags struct {
	RoomID       string
	Title        string
	Mode         RoomMode
	TurnCount    int
	MaxTurns     int
	TurnInFlight bool
	Streaming    bool
	InputLocked  bool
	Opening      OpeningStage
	Awaiting     bool
}

// Snapshot is an atomic copy of everything a host renders in one frame.
// Shown maps message id to the number of runes currently revealed.
type Snapshot struct {
	Flags    Flags
	Messages []Message
	Shown    map[string]int
	Choices  []Choice
}

// Session owns one room's engine. All mutable state is confined to the run
// loop goroutine; hosts interact through the exported methods, which marshal
// onto the loop, and through the read-only event channel.
type Session struct {
	client   transport.Client
	recovery *Recovery
	cfg      Settings
	log      *logrus.Entry

	loop     chan func()
	quit     chan struct{}
	quitOnce sync.Once
	events   chan Event

	// Loop-confined state below.
	clock       Clock
	store       *MessageStore
	ingest      *Ingestor
	playback    *PlaybackScheduler
	reconciler  *Reconciler
	opening     *OpeningSequence
	turn        *turnController
	room        Room
	token       string // auth credential; empty means anonymous
	cancelToken int
	closed      bool
	awaiting    bool
}

// NewSession builds an unattached session. Call Run in a goroutine, then
// Attach to bind it to a room.
func NewSession(client transport.Client, recovery *Recovery, authToken string, cfg Settings, log *logrus.Entry) *Session {
	cfg.applyDefaults()
	s := &Session{
		client:   client,
		recovery: recovery,
		cfg:      cfg,
		log:      log,
		loop:     make(chan func(), 256),
		quit:     make(chan struct{}),
		events:   make(chan Event, 256),
		token:    authToken,
	}
	s.clock = &loopClock{post: s.post}
	s.store = NewMessageStore(log)
	s.playback = NewPlaybackScheduler(s.store, s.clock, cfg.MinReveal, cfg.MaxReveal, cfg.RevealTick, log)
	s.ingest = NewIngestor(s.store, func() string { return s.room.ID }, func() int { return s.cancelToken }, log)
	s.reconciler = NewReconciler(s.store, s.playback, log)
	s.opening = NewOpeningSequence(s.store, s.playback, log)
	s.turn = newTurnController(s, log)

	s.store.Observe(func() {
		s.playback.Observe()
		if s.awaiting {
			if last := s.store.LastNonSystem(); last != nil && last.Sender == SenderAssistant {
				s.awaiting = false
				s.recovery.Clear(s.room.ID)
				s.flagsChanged()
			}
		}
		s.emit(TranscriptChanged{})
	})
	s.playback.OnProgress(func(id string, shown int) {
		s.emit(RevealProgress{MessageID: id, Shown: shown})
	})
	s.opening.OnAdvance(func() { s.flagsChanged() })
	return s
}

// SetClock swaps the clock before Run. Test hook.
func (s *Session) SetClock(c Clock) {
	s.clock = c
	s.playback.clock = c
	if s.recovery != nil {
		s.recovery.now = c.Now
	}
}

// Run executes the session loop until Close. Every callback that touches
// session state runs here and nowhere else.
func (s *Session) Run() {
	for {
		select {
		case fn := <-s.loop:
			fn()
		case <-s.quit:
			return
		}
	}
}

// post marshals fn onto the session loop. Returns false once the session
// is shut down.
func (s *Session) post(fn func()) bool {
	select {
	case s.loop <- fn:
		return true
	case <-s.quit:
		return false
	}
}

// call runs fn on the loop and waits for it to finish.
func (s *Session) call(fn func() error) error {
	done := make(chan error, 1)
	if !s.post(func() { done <- fn() }) {
		return ErrSessionClosed
	}
	select {
	case err := <-done:
		return err
	case <-s.quit:
		return ErrSessionClosed
	}
}

// Events is the host-facing stream of engine events. Slow consumers lose
// events rather than stalling the loop.
func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.WithField("event", fmt.Sprintf("%T", ev)).Debug("event dropped; host not draining")
	}
}

func (s *Session) postNotice(n Notice) { s.emit(NoticePosted{Notice: n}) }

func (s *Session) flagsChanged() { s.emit(FlagsChanged{}) }

// bumpToken advances the cancellation token, orphaning every outstanding
// async callback for the previous attempt.
func (s *Session) bumpToken() { s.cancelToken++ }

// Attach binds the session to a room. An empty roomID creates a fresh room.
// History is fetched, merged, and either replayed through the opening
// sequence (fresh room) or marked as already seen (resume).
//
// Attaching a live session to a different room is a switch: the in-flight
// turn (if any) is abandoned without rollback, the old transcript is
// discarded wholesale, and the advanced cancellation token makes every
// event still in flight for the old room a silent no-op. Re-attaching to
// the same room is a resync and merges instead.
func (s *Session) Attach(ctx context.Context, roomID string) error {
	var (
		room *transport.Room
		err  error
	)
	if roomID == "" {
		room, err = s.client.CreateRoom(ctx, "")
	} else {
		room, err = s.client.FetchRoom(ctx, roomID)
	}
	if err != nil {
		return fmt.Errorf("attaching session: %w", err)
	}

	history, err := s.client.FetchMessages(ctx, room.ID, s.cfg.HistoryPageSize)
	if err != nil {
		return fmt.Errorf("fetching history: %w", err)
	}

	return s.call(func() error {
		if s.closed {
			return ErrSessionClosed
		}
		s.bumpToken()
		if s.room.ID != "" && s.room.ID != room.ID {
			s.turn.detach()
			s.playback.Reset()
			s.store.Reset()
			s.opening.Reset()
		}
		s.room = RoomFromWire(*room)

		msgs := make([]Message, 0, len(history))
		for _, w := range history {
			msgs = append(msgs, MessageFromWire(w))
		}
		s.store.MergeBatch(msgs)

		s.playback.HistoryLoaded()
		if roomID == "" || !s.hasAssistantHistory() {
			s.opening.Start()
		} else {
			s.opening.Skip()
		}

		if s.recovery != nil {
			s.awaiting = s.recovery.AwaitingResponse(s.room.ID, s.store)
			if s.awaiting {
				s.postNotice(Notice{
					Cause:     CauseTimeout,
					Level:     NoticeInfo,
					Text:      "Your last message may still be processing.",
					Retryable: true,
				})
			}
		}
		s.flagsChanged()
		return nil
	})
}

// hasAssistantHistory reports whether any non-intro assistant message is
// already in the transcript; used to tell a resumed room from a fresh one.
func (s *Session) hasAssistantHistory() bool {
	for _, m := range s.store.Snapshot() {
		if m.Sender == SenderAssistant && m.Meta != MetaIntro {
			return true
		}
	}
	return false
}

// SubmitText sends a free-form user turn. uiRoomID is the room the host
// believes it is in; pass the value from the last Snapshot.
func (s *Session) SubmitText(text, uiRoomID string) error {
	return s.call(func() error { return s.turn.submit(TurnInput{Text: text}, uiRoomID) })
}

// SelectChoice answers a pending branch prompt.
func (s *Session) SelectChoice(choiceID, uiRoomID string) error {
	return s.call(func() error {
		err := s.turn.submit(TurnInput{ChoiceID: choiceID}, uiRoomID)
		if err == nil {
			s.turn.pendingChoices = nil
		}
		return err
	})
}

// Advance sends an empty continue signal, asking the other side to keep
// going without user text.
func (s *Session) Advance(uiRoomID string) error {
	return s.call(func() error { return s.turn.submit(TurnInput{Continue: true}, uiRoomID) })
}

// EditMessage rewrites the body of an existing transcript entry in place.
// The id, position, and playback state are preserved, so an edited reply
// never re-animates. Rejected while a turn is running.
func (s *Session) EditMessage(id, content string) error {
	return s.call(func() error {
		switch {
		case s.closed:
			return ErrSessionClosed
		case s.turn.status == TurnInFlight:
			return ErrTurnInFlight
		case content == "":
			return ErrEmptyInput
		}
		if !s.store.SetContent(id, content) {
			return ErrNotFound
		}
		return nil
	})
}

// CancelTurn aborts the in-flight turn, keeping any output already shown.
func (s *Session) CancelTurn() {
	s.post(func() { s.turn.cancel() })
}

// SkipOpening fast-forwards the intro/greeting animation.
func (s *Session) SkipOpening() {
	s.post(func() {
		s.playback.Cancel()
		s.opening.Skip()
		s.flagsChanged()
	})
}

// Snapshot returns an atomic copy of the render state. Safe from any
// goroutine; returns the zero Snapshot after Close.
func (s *Session) Snapshot() Snapshot {
	var snap Snapshot
	s.call(func() error {
		snap = s.snapshotLocked()
		return nil
	})
	return snap
}

func (s *Session) snapshotLocked() Snapshot {
	msgs := s.store.Snapshot()
	shown := make(map[string]int, len(msgs))
	for i := range msgs {
		shown[msgs[i].ID] = s.playback.Shown(&msgs[i])
	}
	return Snapshot{
		Flags: Flags{
			RoomID:       s.room.ID,
			Title:        s.room.Title,
			Mode:         s.room.Mode,
			TurnCount:    s.room.TurnCount,
			MaxTurns:     s.room.MaxTurns,
			TurnInFlight: s.turn.status == TurnInFlight,
			Streaming:    s.streamingNow(),
			InputLocked:  s.inputLocked(),
			Opening:      s.opening.Stage(),
			Awaiting:     s.awaiting,
		},
		Messages: msgs,
		Shown:    shown,
		Choices:  append([]Choice(nil), s.turn.pendingChoices...),
	}
}

func (s *Session) streamingNow() bool {
	last := s.store.Last()
	return last != nil && last.Streaming()
}

func (s *Session) inputLocked() bool {
	if s.closed {
		return true
	}
	if s.turn.status == TurnInFlight {
		return true
	}
	if s.room.Mode == ModeBranch && len(s.turn.pendingChoices) > 0 {
		return true
	}
	if s.room.MaxTurns > 0 && s.room.TurnCount >= s.room.MaxTurns {
		return true
	}
	return false
}

// teardown ends the session after a fatal notice. The loop stays alive so a
// final Snapshot still works; only input is dead.
func (s *Session) teardown(cause NoticeCause) {
	if s.closed {
		return
	}
	s.closed = true
	s.bumpToken()
	s.playback.Cancel()
	s.emit(SessionEnded{Cause: cause})
	s.flagsChanged()
}

// Close shuts the session down. Idempotent. The quit channel is closed from
// inside the posted cleanup so the loop is guaranteed to run the disarm and
// cancel steps before it stops draining.
func (s *Session) Close() {
	delivered := s.post(func() {
		s.closed = true
		s.bumpToken()
		s.turn.disarmFailSafe()
		s.playback.Cancel()
		s.quitOnce.Do(func() { close(s.quit) })
	})
	if !delivered {
		s.quitOnce.Do(func() { close(s.quit) })
	}
}
