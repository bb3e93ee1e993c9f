package tcpm

import "time"

// timerWheel is the single-shot timer described in §4.6 (C6): at most one
// deadline is ever pending, recorded as an absolute monotonic microsecond
// value. now is injectable so tests can drive the clock deterministically
// instead of sleeping.
type timerWheel struct {
	now    func() int64 // current monotonic time in microseconds
	target int64        // 0 means disarmed
}

func newTimerWheel() timerWheel {
	start := time.Now()
	return timerWheel{
		now: func() int64 {
			return time.Since(start).Microseconds()
		},
	}
}

// arm records a deadline ms milliseconds from now.
func (t *timerWheel) arm(ms int) {
	t.target = t.now() + int64(ms)*1000
}

// disarm zeros the deadline (invariant 4: disarmed iff target == 0).
func (t *timerWheel) disarm() {
	t.target = 0
}

// armed reports whether a deadline is currently pending.
func (t *timerWheel) armed() bool {
	return t.target != 0
}

// expired reports whether the armed deadline has passed. It does not
// disarm the timer; the caller (checkTimer) does that atomically with
// consuming the expiry.
func (t *timerWheel) expired() bool {
	return t.target != 0 && t.now() >= t.target
}

// AdvanceTime moves a test clock forward by ms milliseconds and re-checks
// the timer, running the state machine if the deadline fires. It is only
// meaningful on a Port built with a manual clock (see NewForTest); on a
// Port driven by the real wall clock it is a harmless no-op since the real
// clock will have already moved on its own.
func (p *Port) AdvanceTime(ms int) {
	if p.advance == nil {
		return
	}
	p.advance(ms)
	p.checkTimer()
}

// newManualClock returns a clock function and an advance function for use
// in tests, so scenarios can express "after N ms" without sleeping.
func newManualClock() (now func() int64, advance func(ms int)) {
	var cur int64
	return func() int64 { return cur },
		func(ms int) { cur += int64(ms) * 1000 }
}
