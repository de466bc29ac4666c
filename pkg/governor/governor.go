package governor

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrAllCredentialsExhausted = errors.New("all credentials exhausted")

// Decision is the outcome of Authorize. When Proceed is false, Wait is how
// long the slot stays throttled. Exhausted is set when the slot hit its daily cap.
type Decision struct {
	Proceed   bool
	Wait      time.Duration
	Exhausted bool
}

type Option func(*Governor)

func WithClock(now func() time.Time) Option {
	return func(g *Governor) {
		g.now = now
	}
}

// WithSleep replaces the function used to wait for a throttled window.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Governor) {
		g.sleep = sleep
	}
}

// Governor owns a pool of credential slots and their counters. It is safe for
// concurrent use, though each worker normally owns its own governor (see Partition).
type Governor struct {
	mu      sync.Mutex
	slots   []*Slot
	current int
	limits  Limits
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(credentials []string, limits Limits, options ...Option) (*Governor, error) {
	if len(credentials) == 0 {
		return nil, errors.New("governor needs at least one credential")
	}
	g := &Governor{
		limits: limits,
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, o := range options {
		o(g)
	}
	now := g.now()
	for i, c := range credentials {
		g.slots = append(g.slots, newSlot(i, c, now))
	}
	return g, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (g *Governor) Len() int {
	return len(g.slots)
}

func (g *Governor) Limits() Limits {
	return g.limits
}

// Current returns the slot calls are currently routed to.
func (g *Governor) Current() *Slot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.slots[g.current]
}

func (g *Governor) State(slot *Slot) SlotState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slot.state()
}

// Authorize decides whether a call may be made on slot now. On Proceed the
// request counters are incremented before the call is made.
func (g *Governor) Authorize(slot *Slot) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authorizeLocked(slot, g.now())
}

func (g *Governor) authorizeLocked(slot *Slot, now time.Time) Decision {
	slot.rollover(now)

	if slot.exhausted {
		return Decision{Wait: untilNextUTCDay(now), Exhausted: true}
	}
	if g.limits.RequestsPerDay > 0 && slot.requestsToday >= g.limits.RequestsPerDay {
		slot.exhausted = true
		return Decision{Wait: untilNextUTCDay(now), Exhausted: true}
	}
	if (g.limits.RequestsPerMinute > 0 && slot.requestsThisMinute >= g.limits.RequestsPerMinute) ||
		(g.limits.TokensPerMinute > 0 && slot.tokensThisMinute >= g.limits.TokensPerMinute) {
		return Decision{Wait: slot.untilMinuteRollover(now)}
	}

	slot.requestsThisMinute++
	slot.requestsToday++
	return Decision{Proceed: true}
}

// RecordUsage adds the tokens a finished call consumed to the slot's minute window.
func (g *Governor) RecordUsage(slot *Slot, tokens int) {
	if tokens <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	slot.rollover(g.now())
	slot.tokensThisMinute += tokens
}

// Acquire returns a slot that was authorized for one call. It starts with the
// current slot and rotates through the pool when it is throttled. When every
// slot is throttled it sleeps until the earliest window reopens. It fails with
// ErrAllCredentialsExhausted when every slot hit its daily cap, and with the
// context error when ctx is done while waiting.
func (g *Governor) Acquire(ctx context.Context) (*Slot, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		slot, wait, err := g.tryAcquire()
		if err != nil || slot != nil {
			return slot, err
		}

		log.Debug().Dur("wait", wait).Msg("all credentials throttled, waiting for the next window")
		if err := g.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (g *Governor) tryAcquire() (*Slot, time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	n := len(g.slots)
	shortest := time.Duration(-1)
	for i := 0; i < n; i++ {
		idx := (g.current + i) % n
		slot := g.slots[idx]
		d := g.authorizeLocked(slot, now)
		if d.Proceed {
			if idx != g.current {
				log.Info().Int("from", g.slots[g.current].Index).Int("to", slot.Index).Msg("rotating credential")
				g.current = idx
			}
			return slot, 0, nil
		}
		if d.Exhausted {
			continue
		}
		if shortest < 0 || d.Wait < shortest {
			shortest = d.Wait
		}
	}

	if shortest < 0 {
		return nil, 0, ErrAllCredentialsExhausted
	}
	return nil, shortest, nil
}

// OnExhausted marks slot as unusable until the next day and moves to the
// next usable slot. A full cycle without one returns ErrAllCredentialsExhausted.
func (g *Governor) OnExhausted(slot *Slot) (*Slot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	slot.exhausted = true
	log.Warn().Int("slot", slot.Index).Msg("credential exhausted")

	now := g.now()
	n := len(g.slots)
	start := g.current
	for i, s := range g.slots {
		if s == slot {
			start = i
		}
	}
	for i := 1; i <= n; i++ {
		idx := (start + i) % n
		s := g.slots[idx]
		s.rollover(now)
		if !s.exhausted {
			g.current = idx
			return s, nil
		}
	}
	return nil, ErrAllCredentialsExhausted
}

// Partition splits the slots round-robin into n governors with disjoint slots
// and the same limits, so that each worker owns its credentials. n is capped
// at the number of slots. The receiver must not be used afterwards.
func (g *Governor) Partition(n int) []*Governor {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n > len(g.slots) {
		n = len(g.slots)
	}
	if n < 1 {
		n = 1
	}
	ret := make([]*Governor, n)
	for i := range ret {
		ret[i] = &Governor{limits: g.limits, now: g.now, sleep: g.sleep}
	}
	for i, s := range g.slots {
		p := ret[i%n]
		p.slots = append(p.slots, s)
	}
	return ret
}
