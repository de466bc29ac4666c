package governor

import "time"

// Limits is the quota of a single credential. Zero disables a limit.
type Limits struct {
	RequestsPerMinute int
	TokensPerMinute   int
	RequestsPerDay    int
}

const minuteWindow = time.Minute

// Slot is one credential and its usage counters. Counters are only touched by
// the governor that owns the slot, under its lock.
type Slot struct {
	// Index is the position of the slot in the original credential pool.
	Index      int
	Credential string

	requestsThisMinute int
	tokensThisMinute   int
	requestsToday      int
	minuteWindowStart  time.Time
	dayWindowStart     time.Time
	exhausted          bool
}

// SlotState is a read-only copy of a slot's counters.
type SlotState struct {
	Index              int
	RequestsThisMinute int
	TokensThisMinute   int
	RequestsToday      int
	MinuteWindowStart  time.Time
	DayWindowStart     time.Time
	Exhausted          bool
}

func newSlot(index int, credential string, now time.Time) *Slot {
	return &Slot{
		Index:             index,
		Credential:        credential,
		minuteWindowStart: now,
		dayWindowStart:    now,
	}
}

func (s *Slot) state() SlotState {
	return SlotState{
		Index:              s.Index,
		RequestsThisMinute: s.requestsThisMinute,
		TokensThisMinute:   s.tokensThisMinute,
		RequestsToday:      s.requestsToday,
		MinuteWindowStart:  s.minuteWindowStart,
		DayWindowStart:     s.dayWindowStart,
		Exhausted:          s.exhausted,
	}
}

// rollover resets counters whose window has passed. Day windows follow the UTC calendar.
func (s *Slot) rollover(now time.Time) {
	if now.Sub(s.minuteWindowStart) >= minuteWindow {
		s.minuteWindowStart = now
		s.requestsThisMinute = 0
		s.tokensThisMinute = 0
	}
	if !sameUTCDay(now, s.dayWindowStart) {
		s.dayWindowStart = now
		s.requestsToday = 0
		s.exhausted = false
	}
}

func (s *Slot) untilMinuteRollover(now time.Time) time.Duration {
	d := s.minuteWindowStart.Add(minuteWindow).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func untilNextUTCDay(now time.Time) time.Duration {
	u := now.UTC()
	next := time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
	return next.Sub(u)
}
