package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpeningFixture() (*MessageStore, *manualClock, *PlaybackScheduler, *OpeningSequence) {
	store := NewMessageStore(testLogger())
	clock := newManualClock()
	playback := NewPlaybackScheduler(store, clock, 100*time.Millisecond, time.Second, 10*time.Millisecond, testLogger())
	return store, clock, playback, NewOpeningSequence(store, playback, testLogger())
}

func TestOpeningRevealsIntroBeforeGreeting(t *testing.T) {
	store, clock, playback, o := newOpeningFixture()

	// Arrival order gives no ordering guarantee; the greeting may be first.
	store.Append(assistantMsg("greet", "Hello, traveler. What brings you here tonight?"))
	intro := assistantMsg("intro", "A storm batters the lonely inn at the crossroads.")
	intro.Meta = MetaIntro
	store.Append(intro)

	playback.HistoryLoaded()
	o.Start()

	require.Equal(t, OpeningIntro, o.Stage())
	require.NotNil(t, playback.active)
	assert.Equal(t, "intro", playback.active.id, "scene intro animates first regardless of arrival order")

	// Finish the intro; the greeting follows without any external trigger.
	clock.Advance(2 * time.Second)
	require.NotNil(t, playback.active)
	assert.Equal(t, "greet", playback.active.id)
	assert.Equal(t, OpeningGreeting, o.Stage())

	clock.Advance(2 * time.Second)
	assert.Equal(t, OpeningDone, o.Stage())
	assert.False(t, playback.suppressed, "normal playback resumes after the sequence")
}

func TestOpeningWithoutIntroGoesStraightToGreeting(t *testing.T) {
	store, clock, playback, o := newOpeningFixture()
	store.Append(assistantMsg("greet", "Welcome back."))
	playback.HistoryLoaded()

	o.Start()
	require.Equal(t, OpeningGreeting, o.Stage())
	require.NotNil(t, playback.active)
	assert.Equal(t, "greet", playback.active.id)

	clock.Advance(2 * time.Second)
	assert.Equal(t, OpeningDone, o.Stage())
}

func TestOpeningSkipOnResume(t *testing.T) {
	store, _, playback, o := newOpeningFixture()
	intro := assistantMsg("intro", "The storm again.")
	intro.Meta = MetaIntro
	store.Append(intro)
	store.Append(assistantMsg("greet", "Hello again."))
	playback.HistoryLoaded()

	o.Skip()

	assert.Equal(t, OpeningDone, o.Stage())
	assert.Nil(t, playback.active, "resumed history never re-animates")
	assert.False(t, playback.suppressed)
}

func TestOpeningEmptyRoomFinishesImmediately(t *testing.T) {
	_, _, playback, o := newOpeningFixture()
	playback.HistoryLoaded()

	o.Start()
	assert.Equal(t, OpeningDone, o.Stage())
	assert.False(t, playback.suppressed)
}

func TestOpeningStartIsOneShot(t *testing.T) {
	store, clock, playback, o := newOpeningFixture()
	store.Append(assistantMsg("greet", "Hello."))
	playback.HistoryLoaded()

	o.Start()
	clock.Advance(2 * time.Second)
	require.Equal(t, OpeningDone, o.Stage())

	o.Start()
	assert.Equal(t, OpeningDone, o.Stage(), "a finished sequence never restarts")
	assert.Nil(t, playback.active)
}
