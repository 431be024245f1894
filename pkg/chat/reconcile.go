package chat

import (
	"github.com/sirupsen/logrus"

	"github.com/strandapp/strand/pkg/transport"
)

// Reconciler merges the authoritative result of a completed turn into the
// store, replacing the optimistic and streaming rows it confirms.
//
// Reconciliation is idempotent: replaying the same payload leaves the store
// unchanged, because every step resolves through id-based merge.
type Reconciler struct {
	store    *MessageStore
	playback *PlaybackScheduler
	log      *logrus.Entry
}

// NewReconciler wires the engine's reconciliation step.
func NewReconciler(store *MessageStore, playback *PlaybackScheduler, log *logrus.Entry) *Reconciler {
	return &Reconciler{store: store, playback: playback, log: log}
}

// Apply replaces the provisional rows of a turn with their confirmed
// counterparts. tempUserID/tempAssistantID identify the optimistic echo and
// the streaming row; either may already be gone (room switch), in which case
// that step is a no-op.
func (r *Reconciler) Apply(tempUserID, tempAssistantID string, res *transport.TurnResult) {
	// A continue turn carries no user payload; an all-zero user row must
	// not enter the transcript.
	user := MessageFromWire(res.User)
	if user.ID != "" || user.Content != "" {
		if !r.store.ReplaceProvisional(tempUserID, user) && !r.store.Has(user.ID) {
			// The echo is gone but the turn is real; the confirmed row
			// still belongs in the transcript.
			r.store.Append(user)
		}
	}

	assistant := MessageFromWire(res.Assistant)
	streamed := r.store.Has(tempAssistantID) || r.playback.Played(assistant.ID)
	if streamed {
		// The user already watched this content arrive as live deltas, so
		// the scheduler must not re-animate it under its confirmed id.
		r.playback.MarkPlayed(assistant.ID)
		assistant.State = PlaybackFinal
	}
	if !r.store.ReplaceProvisional(tempAssistantID, assistant) && !r.store.Has(assistant.ID) {
		r.store.Append(assistant)
	}
	if streamed {
		r.playback.MarkPlayed(assistant.ID)
	}

	if res.Ending != nil {
		ending := MessageFromWire(*res.Ending)
		if !r.store.Has(ending.ID) {
			r.store.Append(ending)
		}
	}

	r.log.WithFields(logrus.Fields{
		"user_id":      user.ID,
		"assistant_id": assistant.ID,
	}).Debug("turn reconciled")
}
