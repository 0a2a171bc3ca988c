package sensor

import "time"

// Debouncer filters raw samples of the barrier line into a stable state.
//
// The algorithm is confirm-then-commit: a raw edge only records a candidate
// and resets the confirmation clock; the candidate is committed once the raw
// value has held for the full delay and differs from the stable state. Any
// flicker shorter than the delay never reaches the stable state, and each raw
// edge restarts the clock, so the delay measures time since the last edge.
type Debouncer struct {
	delay time.Duration

	primed     bool
	lastRaw    State
	stable     State
	lastChange time.Time

	counts Counts
}

// NewDebouncer creates a debouncer with the given confirmation delay.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Poll feeds one raw sample (true = beam interrupted) taken at the given
// instant. It returns a Transition when the stable state changes, nil
// otherwise.
//
// The very first sample is taken as immediate ground truth: it seeds the
// stable state without waiting for the delay and is never reported as a
// transition, so a device booting in front of an occupied spot does not emit
// a spurious first event.
func (d *Debouncer) Poll(raw bool, now time.Time) *Transition {
	s := stateFromRaw(raw)

	if !d.primed {
		d.primed = true
		d.lastRaw = s
		d.stable = s
		d.lastChange = now
		return nil
	}

	if s != d.lastRaw {
		// Candidate edge. Not confirmed yet.
		d.lastRaw = s
		d.lastChange = now
		return nil
	}

	if now.Sub(d.lastChange) >= d.delay && s != d.stable {
		from := d.stable
		d.stable = s
		switch s {
		case StateClear:
			d.counts.Clear++
		case StateInterrupted:
			d.counts.Interrupted++
		}
		return &Transition{From: from, To: s, Time: now}
	}

	return nil
}

// State returns the current stable state. Before the first Poll it returns
// StateClear.
func (d *Debouncer) State() State {
	return d.stable
}

// Primed reports whether the boot-time ground-truth sample has been taken.
func (d *Debouncer) Primed() bool {
	return d.primed
}

// CountsSnapshot returns the transition counters accumulated since startup.
func (d *Debouncer) CountsSnapshot() Counts {
	return d.counts
}
