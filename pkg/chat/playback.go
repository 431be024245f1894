package chat

import (
	"time"

	"github.com/sirupsen/logrus"
)

// revealPerRune is the nominal reveal speed before clamping to the
// configured duration bounds.
const revealPerRune = 30 * time.Millisecond

// PlaybackScheduler paces the reveal of confirmed text so responses that did
// not stream live still appear to type in. The effect is display-only: stored
// content is never altered, only the shown prefix length advances.
//
// At most one reveal run is active at a time; starting a new one cancels the
// previous via a generation token, so stale ticks become no-ops.
type PlaybackScheduler struct {
	store *MessageStore
	clock Clock
	log   *logrus.Entry

	minDur time.Duration
	maxDur time.Duration
	tick   time.Duration

	onProgress func(id string, shown int)

	played     map[string]bool
	generation int
	active     *revealRun

	// suppressed blocks store-driven reveals while the opening sequence owns
	// playback, so the same content is never animated twice.
	suppressed bool
	// historyLoaded flips after the initial page is in; everything before
	// that replays instantly.
	historyLoaded bool
	lastTerminal  string
}

type revealRun struct {
	id     string
	gen    int
	length int
	shown  int
	step   int
	cancel func()
	done   func()
}

// NewPlaybackScheduler creates a scheduler over the given store.
func NewPlaybackScheduler(store *MessageStore, clock Clock, min, max, tick time.Duration, log *logrus.Entry) *PlaybackScheduler {
	return &PlaybackScheduler{
		store:      store,
		clock:      clock,
		log:        log,
		minDur:     min,
		maxDur:     max,
		tick:       tick,
		played:     make(map[string]bool),
		onProgress: func(string, int) {},
	}
}

// OnProgress registers the per-tick callback. Called once during wiring.
func (p *PlaybackScheduler) OnProgress(fn func(id string, shown int)) { p.onProgress = fn }

// HistoryLoaded marks the initial page as replayed: every message currently
// in the store is treated as already seen and will never animate.
func (p *PlaybackScheduler) HistoryLoaded() {
	for _, m := range p.store.Snapshot() {
		if m.ID != "" {
			p.played[m.ID] = true
		}
		if cur := p.store.Get(m.ID); cur != nil && cur.State != PlaybackStreaming {
			cur.State = PlaybackFinal
		}
	}
	if last := p.store.LastNonSystem(); last != nil {
		p.lastTerminal = last.ID
	}
	p.historyLoaded = true
}

// Suppress gates store-driven reveals while the opening sequence runs.
func (p *PlaybackScheduler) Suppress(on bool) { p.suppressed = on }

// MarkPlayed records that the user already watched this content arrive
// (live streaming), so it must not be re-animated.
func (p *PlaybackScheduler) MarkPlayed(id string) {
	if id == "" {
		return
	}
	p.played[id] = true
	if m := p.store.Get(id); m != nil && m.State != PlaybackStreaming {
		m.State = PlaybackFinal
	}
}

// Played reports whether the id has completed playback (or was exempted).
func (p *PlaybackScheduler) Played(id string) bool { return p.played[id] }

// Shown returns the display-safe rune prefix length for a message. Only a
// message with an active reveal run is partially shown; everything else
// displays in full (live streams show whatever has arrived).
func (p *PlaybackScheduler) Shown(m *Message) int {
	if m.State == PlaybackReveal && p.active != nil && p.active.id == m.ID {
		return p.active.shown
	}
	return len([]rune(m.Content))
}

// Observe inspects the store's terminal entry after a mutation and starts a
// reveal run when a new, not-yet-played, non-system message has settled.
// Never called for content still receiving live deltas: the two mechanisms
// are mutually exclusive per message.
func (p *PlaybackScheduler) Observe() {
	if !p.historyLoaded || p.suppressed {
		return
	}
	last := p.store.LastNonSystem()
	if last == nil || last.ID == "" || last.ID == p.lastTerminal {
		return
	}
	if last.Pending || last.State != PlaybackIdle || p.played[last.ID] {
		return
	}
	p.lastTerminal = last.ID
	p.Reveal(last.ID, nil)
}

// Reveal starts a reveal run for the given message, cancelling any active
// one. done, if non-nil, fires on the session loop when the run completes
// naturally (not when cancelled).
func (p *PlaybackScheduler) Reveal(id string, done func()) {
	m := p.store.Get(id)
	if m == nil {
		if done != nil {
			done()
		}
		return
	}

	p.cancelActive()

	length := len([]rune(m.Content))
	if length == 0 {
		p.finish(&revealRun{id: id, done: done})
		return
	}

	duration := clampDuration(time.Duration(length)*revealPerRune, p.minDur, p.maxDur)
	ticks := int(duration / p.tick)
	if ticks < 1 {
		ticks = 1
	}
	step := (length + ticks - 1) / ticks

	p.generation++
	run := &revealRun{
		id:     id,
		gen:    p.generation,
		length: length,
		step:   step,
		done:   done,
	}
	p.active = run
	m.State = PlaybackReveal

	p.log.WithFields(logrus.Fields{
		"message_id": id,
		"runes":      length,
		"duration":   duration,
	}).Debug("starting reveal")

	p.scheduleTick(run)
}

// Cancel invalidates the active run. In-flight ticks observe the stale
// generation and drop themselves.
func (p *PlaybackScheduler) Cancel() {
	p.cancelActive()
}

// Reset returns the scheduler to its pre-attach state for a new room. The
// next HistoryLoaded call re-establishes the replay baseline.
func (p *PlaybackScheduler) Reset() {
	p.cancelActive()
	p.played = make(map[string]bool)
	p.lastTerminal = ""
	p.historyLoaded = false
	p.suppressed = false
}

func (p *PlaybackScheduler) cancelActive() {
	if p.active == nil {
		return
	}
	p.generation++
	if p.active.cancel != nil {
		p.active.cancel()
	}
	// Whatever was revealed stays revealed; the message is simply final now.
	if m := p.store.Get(p.active.id); m != nil && m.State == PlaybackReveal {
		m.State = PlaybackFinal
	}
	p.played[p.active.id] = true
	p.active = nil
}

func (p *PlaybackScheduler) scheduleTick(run *revealRun) {
	run.cancel = p.clock.AfterFunc(p.tick, func() {
		if run.gen != p.generation || p.active != run {
			return // stale tick
		}
		run.shown += run.step
		if run.shown >= run.length {
			run.shown = run.length
			p.onProgress(run.id, run.shown)
			p.finish(run)
			return
		}
		p.onProgress(run.id, run.shown)
		p.scheduleTick(run)
	})
}

func (p *PlaybackScheduler) finish(run *revealRun) {
	p.played[run.id] = true
	if m := p.store.Get(run.id); m != nil {
		m.State = PlaybackFinal
	}
	if p.active == run {
		p.active = nil
	}
	if run.done != nil {
		run.done()
	}
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
