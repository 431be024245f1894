package chat

import "github.com/sirupsen/logrus"

// OpeningStage is the state of the session-start sequence.
type OpeningStage string

const (
	OpeningIdle     OpeningStage = "idle"
	OpeningIntro    OpeningStage = "intro"
	OpeningGreeting OpeningStage = "greeting"
	OpeningDone     OpeningStage = "done"
)

// OpeningSequence orders the scene intro before the first assistant reply on
// a fresh session. The transport gives no such ordering guarantee, so it is
// enforced here. Resumed sessions and reloads skip straight to done: already
// seen history must never re-animate.
//
// While the sequence is running, normal per-message playback is suppressed so
// the same content is not animated twice.
type OpeningSequence struct {
	store    *MessageStore
	playback *PlaybackScheduler
	log      *logrus.Entry

	stage     OpeningStage
	onAdvance func()
}

// NewOpeningSequence creates the controller in the idle state.
func NewOpeningSequence(store *MessageStore, playback *PlaybackScheduler, log *logrus.Entry) *OpeningSequence {
	return &OpeningSequence{
		store:     store,
		playback:  playback,
		log:       log,
		stage:     OpeningIdle,
		onAdvance: func() {},
	}
}

// Stage returns the current stage.
func (o *OpeningSequence) Stage() OpeningStage { return o.stage }

// Active reports whether the sequence still owns playback.
func (o *OpeningSequence) Active() bool {
	return o.stage == OpeningIntro || o.stage == OpeningGreeting
}

// OnAdvance registers a callback fired on every stage change.
func (o *OpeningSequence) OnAdvance(fn func()) { o.onAdvance = fn }

// Reset rearms the sequence for a new room.
func (o *OpeningSequence) Reset() {
	o.stage = OpeningIdle
}

// Skip moves directly to done. Used for resumed sessions.
func (o *OpeningSequence) Skip() {
	o.stage = OpeningDone
	o.playback.Suppress(false)
	o.onAdvance()
}

// Start runs the sequence on a fresh session: intro (if present) first, then
// the first assistant reply, each through the Playback Scheduler. Completion
// of each reveal advances the stage.
func (o *OpeningSequence) Start() {
	if o.stage != OpeningIdle {
		return
	}
	o.playback.Suppress(true)

	intro := o.findIntro()
	if intro == nil {
		o.enterGreeting()
		return
	}

	o.stage = OpeningIntro
	o.onAdvance()
	o.log.WithField("message_id", intro.ID).Debug("revealing scene intro")
	o.playback.Reveal(intro.ID, o.enterGreeting)
}

func (o *OpeningSequence) enterGreeting() {
	greeting := o.findGreeting()
	if greeting == nil {
		o.finish()
		return
	}
	o.stage = OpeningGreeting
	o.onAdvance()
	o.log.WithField("message_id", greeting.ID).Debug("revealing first reply")
	o.playback.Reveal(greeting.ID, o.finish)
}

func (o *OpeningSequence) finish() {
	o.stage = OpeningDone
	o.playback.Suppress(false)
	o.onAdvance()
}

func (o *OpeningSequence) findIntro() *Message {
	for _, m := range o.store.Snapshot() {
		if m.Meta == MetaIntro {
			return o.store.Get(m.ID)
		}
	}
	return nil
}

func (o *OpeningSequence) findGreeting() *Message {
	for _, m := range o.store.Snapshot() {
		if m.Sender == SenderAssistant && m.Meta != MetaIntro {
			return o.store.Get(m.ID)
		}
	}
	return nil
}
