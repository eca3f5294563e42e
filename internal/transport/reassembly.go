package transport

import (
	"github.com/airenas/go-app/pkg/goapp"
)

const maxPendingTurns = 32

// Reassembler rebuilds one ordered transcript from turns that may arrive
// out of order, duplicated or revised. Delivered text is strictly ordered
// and gap free: turn N+1 never becomes visible before turn N.
type Reassembler struct {
	pending    map[uint64]string
	next       uint64
	started    bool
	transcript string
}

func NewReassembler() *Reassembler {
	return &Reassembler{pending: map[uint64]string{}}
}

// Add records one inbound turn and flushes every consecutively numbered
// turn into the running transcript. The first turn ever observed fixes
// the numbering origin. Returns the transcript and whether it changed.
func (r *Reassembler) Add(order uint64, text string) (string, bool) {
	if !r.started {
		r.next = order
		r.started = true
	}
	if order < r.next {
		// Already delivered. Retransmissions are dropped.
		return r.transcript, false
	}
	r.pending[order] = text

	changed := r.flush()
	if len(r.pending) > maxPendingTurns {
		// A turn that never arrives would stall everything behind it.
		// Skip forward to the smallest waiting turn instead.
		skipTo := smallestKey(r.pending)
		goapp.Log.Warn().Uint64("from", r.next).Uint64("to", skipTo).
			Int("pending", len(r.pending)).Msg("missing turn, skipping forward")
		r.next = skipTo
		if r.flush() {
			changed = true
		}
	}
	return r.transcript, changed
}

// Replace installs a flat incremental transcript verbatim, bypassing turn
// reassembly. Used for backends that do not number their output.
func (r *Reassembler) Replace(text string) (string, bool) {
	if text == r.transcript {
		return r.transcript, false
	}
	r.transcript = text
	return r.transcript, true
}

// Transcript returns the current reassembled text.
func (r *Reassembler) Transcript() string {
	return r.transcript
}

// Reset clears all turn state and the transcript.
func (r *Reassembler) Reset() {
	r.pending = map[uint64]string{}
	r.next = 0
	r.started = false
	r.transcript = ""
}

func (r *Reassembler) flush() bool {
	changed := false
	for {
		text, ok := r.pending[r.next]
		if !ok {
			return changed
		}
		delete(r.pending, r.next)
		r.next++
		if r.transcript == "" {
			r.transcript = text
		} else {
			r.transcript = r.transcript + " " + text
		}
		changed = true
	}
}

func smallestKey(m map[uint64]string) uint64 {
	var res uint64
	first := true
	for k := range m {
		if first || k < res {
			res = k
			first = false
		}
	}
	return res
}
