package chat

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/strandapp/strand/pkg/transport"
)

// TurnStatus is the lifecycle of one request/response cycle.
type TurnStatus string

const (
	TurnIdle     TurnStatus = "idle"
	TurnInFlight TurnStatus = "in-flight"
	TurnDone     TurnStatus = "done"
	TurnFailed   TurnStatus = "failed"
)

// TurnInput is what the user submitted: free text, a selected branch choice,
// or an empty "continue" signal.
type TurnInput struct {
	Text     string
	ChoiceID string
	Continue bool
}

func (in TurnInput) kind() string {
	switch {
	case in.ChoiceID != "":
		return "choice"
	case in.Continue:
		return "continue"
	default:
		return "text"
	}
}

// turnController orchestrates one logical turn: optimistic echo, stream (or
// single request for branch turns), reconciliation, rollback. A room accepts
// at most one in-flight turn; a second submission is rejected before it
// reaches the network.
type turnController struct {
	s   *Session
	log *logrus.Entry

	status         TurnStatus
	idempotencyKey string

	tempUserID string
	stream     *StreamSession
	streamStop context.CancelFunc
	gotDelta   bool

	pendingChoices []Choice
	cooldownUntil  time.Time
	failSafeStop   func()

	// rand drives the continuation-hint probability; injected for tests.
	rand func() float64
}

func newTurnController(s *Session, log *logrus.Entry) *turnController {
	return &turnController{s: s, log: log, status: TurnIdle, rand: rand.Float64}
}

// submit runs on the session loop. uiRoomID is the room the UI believes it
// is acting on; a mismatch with the authoritative room aborts before any
// network traffic (guards a pending room-creation race).
func (t *turnController) submit(in TurnInput, uiRoomID string) error {
	if t.s.closed {
		return ErrSessionClosed
	}
	if t.status == TurnInFlight {
		t.s.postNotice(Notice{Cause: CauseTurnConflict, Level: NoticeInfo, Text: "Hold on, still replying."})
		return ErrTurnInFlight
	}
	if uiRoomID != "" && uiRoomID != t.s.room.ID {
		return ErrRoomMismatch
	}
	if t.s.token == "" {
		t.s.postNotice(Notice{Cause: CauseAuthRequired, Level: NoticeError, Text: "You need to log in to continue."})
		return ErrAuthRequired
	}
	if t.s.room.Mode == ModeBranch && len(t.pendingChoices) > 0 && in.ChoiceID == "" {
		t.s.postNotice(Notice{Cause: CauseTurnConflict, Level: NoticeWarn, Text: "Pick one of the choices first."})
		return ErrChoicesPending
	}
	if in.Continue && t.s.clock.Now().Before(t.cooldownUntil) {
		return ErrCooldown
	}
	if !in.Continue && in.ChoiceID == "" && strings.TrimSpace(in.Text) == "" {
		return ErrEmptyInput
	}
	if t.s.room.MaxTurns > 0 && t.s.room.TurnCount >= t.s.room.MaxTurns {
		t.s.postNotice(Notice{Cause: CauseTurnLimit, Level: NoticeInfo, Text: "This conversation has reached its end."})
		return ErrTurnLimit
	}

	t.status = TurnInFlight
	t.idempotencyKey = uuid.NewString()
	t.gotDelta = false
	t.s.awaiting = false
	if in.Continue {
		t.cooldownUntil = t.s.clock.Now().Add(t.s.cfg.AdvanceCooldown)
	}

	// Optimistic echo. A bare continue signal has nothing to echo.
	t.tempUserID = ""
	if !in.Continue {
		echo := Message{
			ID:        NewTempID(),
			RoomID:    t.s.room.ID,
			Sender:    SenderUser,
			Content:   in.Text,
			CreatedAt: t.s.clock.Now(),
			Pending:   true,
			State:     PlaybackFinal,
			Meta:      MetaPlain,
		}
		if in.ChoiceID != "" {
			echo.Content = t.choiceLabel(in.ChoiceID)
		}
		t.tempUserID = echo.ID
		t.s.store.Append(echo)
	}

	t.s.recovery.NoteSubmitted(t.s.room.ID, in.kind())
	t.armFailSafe()
	t.s.flagsChanged()

	req := transport.TurnRequest{
		RoomID:         t.s.room.ID,
		IdempotencyKey: t.idempotencyKey,
		Text:           in.Text,
		ChoiceID:       in.ChoiceID,
		Continue:       in.Continue,
	}

	// Branch/choice turns are request/response; everything else streams.
	if in.ChoiceID != "" || t.s.room.Mode == ModeBranch {
		t.startRequest(req)
	} else {
		t.startStream(req)
	}
	return nil
}

// startStream opens the delta connection off-loop and pumps its events back
// onto the session loop. tok pins the attempt to the room's current
// cancellation token: anything arriving after the token advances is stale.
func (t *turnController) startStream(req transport.TurnRequest) {
	tok := t.s.cancelToken
	ss := t.s.ingest.Open()
	t.stream = ss

	ctx, cancel := context.WithCancel(context.Background())
	t.streamStop = cancel

	go func() {
		stream, err := t.s.client.OpenStream(ctx, req)
		if err != nil {
			t.s.post(func() { t.onSubmitError(tok, err) })
			return
		}
		for ev := range stream.Events {
			ev := ev
			switch ev.Kind {
			case transport.StreamDelta:
				t.s.post(func() {
					// A delta from an orphaned stream must not mark the
					// current attempt as having produced output.
					if tok == t.s.cancelToken {
						t.gotDelta = true
					}
					t.s.ingest.OnDelta(ss.ID, ev.Delta)
				})
			case transport.StreamDone:
				t.s.post(func() { t.onStreamDone(tok, ss, ev.Result) })
			case transport.StreamError:
				t.s.post(func() { t.onStreamError(tok, ss, ev.Err) })
			}
		}
	}()
}

// startRequest submits a non-streaming turn off-loop.
func (t *turnController) startRequest(req transport.TurnRequest) {
	tok := t.s.cancelToken
	ctx, cancel := context.WithCancel(context.Background())
	t.streamStop = cancel

	go func() {
		res, err := t.s.client.SubmitTurn(ctx, req)
		if err != nil {
			t.s.post(func() { t.onSubmitError(tok, err) })
			return
		}
		t.s.post(func() { t.onResult(tok, "", res) })
	}()
}

// onStreamDone runs on the loop when the terminal payload arrives.
func (t *turnController) onStreamDone(tok int, ss *StreamSession, res *transport.TurnResult) {
	targetID, ok := t.s.ingest.OnDone(ss.ID)
	if !ok || tok != t.s.cancelToken {
		return // stale completion; drop silently
	}
	if res == nil {
		t.onStreamError(tok, ss, "terminal event carried no payload")
		return
	}
	t.onResult(tok, targetID, res)
}

// onResult finishes a successful turn: reconcile, bookkeeping, unlock.
func (t *turnController) onResult(tok int, tempAssistantID string, res *transport.TurnResult) {
	if tok != t.s.cancelToken || t.status != TurnInFlight {
		return
	}
	t.disarmFailSafe()
	t.status = TurnDone
	t.stream = nil
	t.streamStop = nil

	t.s.reconciler.Apply(t.tempUserID, tempAssistantID, res)
	t.tempUserID = ""

	if res.TurnCount > 0 {
		t.s.room.TurnCount = res.TurnCount
	} else {
		t.s.room.TurnCount++
	}

	t.pendingChoices = choicesFromWire(res.Choices)
	if len(t.pendingChoices) > 0 {
		t.s.emit(ChoicesOffered{Choices: t.pendingChoices})
	}

	t.maybeHintContinue(res.Assistant.ID)
	t.maybeAppendEndMarker()

	t.s.recovery.Clear(t.s.room.ID)
	t.s.flagsChanged()
}

// onSubmitError runs when the request or stream never produced output: the
// attempt is rolled back so no dangling pending row survives.
func (t *turnController) onSubmitError(tok int, err error) {
	if tok != t.s.cancelToken || t.status != TurnInFlight {
		return
	}
	t.disarmFailSafe()
	t.status = TurnFailed
	t.rollback()

	t.log.WithError(err).Warn("turn submission failed")
	notice := classifyTransportErr(err)
	t.s.postNotice(notice)
	if notice.fatal() {
		t.s.teardown(notice.Cause)
		return
	}
	t.s.flagsChanged()
}

// onStreamError runs when the stream broke after opening. Partial text the
// user already saw is kept; only rows with no visible output are removed.
func (t *turnController) onStreamError(tok int, ss *StreamSession, errText string) {
	targetID, ok := t.s.ingest.OnError(ss.ID)
	if !ok || tok != t.s.cancelToken || t.status != TurnInFlight {
		return
	}
	t.disarmFailSafe()
	t.status = TurnFailed
	t.stream = nil
	t.streamStop = nil

	if !t.gotDelta {
		// Nothing was ever shown; this is a plain transport failure.
		t.s.store.Remove(targetID)
		t.rollback()
	}

	t.log.WithField("error", errText).Warn("stream failed")
	t.s.postNotice(Notice{Cause: CauseStream, Level: NoticeWarn, Text: "The reply was interrupted.", Retryable: true})
	t.s.recovery.Clear(t.s.room.ID)
	t.s.flagsChanged()
}

// cancel aborts the in-flight turn at the user's request. Output already on
// screen stays; the cancellation token advance makes every outstanding
// callback for this attempt a no-op.
func (t *turnController) cancel() {
	if t.status != TurnInFlight {
		return
	}
	t.disarmFailSafe()
	t.s.bumpToken()
	if t.streamStop != nil {
		t.streamStop()
		t.streamStop = nil
	}
	if t.stream != nil {
		if m := t.s.store.Get(t.stream.TargetID); m != nil && m.State == PlaybackStreaming {
			m.State = PlaybackFinal
			t.s.store.Touch(m.ID)
		}
		t.s.ingest.Drop(t.stream.ID)
		t.stream = nil
	}
	t.status = TurnIdle
	t.s.recovery.Clear(t.s.room.ID)
	t.s.flagsChanged()
}

// detach abandons whatever this controller was doing without touching the
// transcript. Used on a room switch: the outgoing room's rows are left
// exactly as they are, and the advanced cancellation token makes every
// outstanding callback for them a no-op.
func (t *turnController) detach() {
	t.disarmFailSafe()
	if t.streamStop != nil {
		t.streamStop()
		t.streamStop = nil
	}
	if t.stream != nil {
		t.s.ingest.Drop(t.stream.ID)
		t.stream = nil
	}
	t.status = TurnIdle
	t.tempUserID = ""
	t.gotDelta = false
	t.pendingChoices = nil
	t.cooldownUntil = time.Time{}
}

// onFailSafe fires when the completion signal never arrived. Treated as a
// transport failure so the input is never locked forever.
func (t *turnController) onFailSafe(tok int) {
	if tok != t.s.cancelToken || t.status != TurnInFlight {
		return
	}
	t.log.Warn("fail-safe timer fired; unlocking input")
	t.failSafeStop = nil
	t.s.bumpToken()
	if t.streamStop != nil {
		t.streamStop()
		t.streamStop = nil
	}
	t.status = TurnFailed
	if !t.gotDelta {
		if t.stream != nil {
			t.s.store.Remove(t.stream.TargetID)
		}
		t.rollback()
	}
	t.stream = nil
	t.s.postNotice(Notice{Cause: CauseTimeout, Level: NoticeWarn, Text: "No reply arrived in time.", Retryable: true})
	t.s.recovery.Clear(t.s.room.ID)
	t.s.flagsChanged()
}

// rollback removes the provisional rows this attempt created, restoring the
// pre-submit transcript.
func (t *turnController) rollback() {
	if t.tempUserID != "" {
		t.s.store.Remove(t.tempUserID)
		t.tempUserID = ""
	}
	if t.stream != nil {
		t.s.ingest.Drop(t.stream.ID)
		t.stream = nil
	}
	t.s.recovery.Clear(t.s.room.ID)
}

func (t *turnController) armFailSafe() {
	t.disarmFailSafe()
	tok := t.s.cancelToken
	t.failSafeStop = t.s.clock.AfterFunc(t.s.cfg.FailSafeTimeout, func() { t.onFailSafe(tok) })
}

func (t *turnController) disarmFailSafe() {
	if t.failSafeStop != nil {
		t.failSafeStop()
		t.failSafeStop = nil
	}
}

func (t *turnController) choiceLabel(choiceID string) string {
	for _, c := range t.pendingChoices {
		if c.ID == choiceID {
			return c.Label
		}
	}
	return choiceID
}

// maybeHintContinue tags short or trailing-punctuation replies with a
// display-only continue nudge. Pure flavor; randomized so it does not nag.
func (t *turnController) maybeHintContinue(assistantID string) {
	m := t.s.store.Get(assistantID)
	if m == nil {
		return
	}
	text := strings.TrimSpace(m.Content)
	short := len([]rune(text)) < 80
	trailing := strings.HasSuffix(text, "...") || strings.HasSuffix(text, "…")
	if (short || trailing) && t.rand() < 0.3 {
		m.ContinueHint = true
		t.s.store.Touch(m.ID)
	}
}

// maybeAppendEndMarker closes out a bounded room when the cap is reached.
func (t *turnController) maybeAppendEndMarker() {
	room := &t.s.room
	if room.MaxTurns == 0 || room.TurnCount < room.MaxTurns {
		return
	}
	id := "end-" + room.ID
	if t.s.store.Has(id) {
		return
	}
	t.s.store.Append(Message{
		ID:        id,
		RoomID:    room.ID,
		Sender:    SenderSystem,
		Content:   "The story has reached its final turn.",
		CreatedAt: t.s.clock.Now(),
		State:     PlaybackFinal,
		Meta:      MetaStatus,
	})
}
