// Package dropper releases exactly one ranked candidate per tier at
// the tier's cadence. Each tier owns a mutex so its releases never
// overlap; tiers run independently of one another.
package dropper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"signaldrop/internal/config"
	"signaldrop/internal/pool"
	"signaldrop/internal/signal"
	"signaldrop/internal/tier"
)

type State string

const (
	StateIdle     State = "IDLE"
	StateArmed    State = "ARMED"
	StateDropping State = "DROPPING"
)

// DropHandler consumes one released candidate for a tier. An error
// means the handler delivered nothing for this candidate.
type DropHandler func(ctx context.Context, sig signal.Ranked, t tier.Tier) error

// ErrNothingToDrop reports an empty tier view on a forced drop.
var ErrNothingToDrop = errors.New("no candidate visible to tier")

// Status is a point-in-time snapshot of one tier's drop schedule. The
// countdown is recomputed from NextDropAt on every call rather than
// kept as a running timer, so it cannot drift from the schedule.
type Status struct {
	Tier       tier.Tier     `json:"tier"`
	State      State         `json:"state"`
	Depth      int           `json:"depth"`
	Interval   time.Duration `json:"interval"`
	NextDropAt time.Time     `json:"next_drop_at"`
	Countdown  time.Duration `json:"countdown"`
}

type tierRunner struct {
	tier     tier.Tier
	interval time.Duration

	// drop serializes releases for this tier. The tick path only
	// try-locks it; a busy lock means the previous drop is still in
	// flight and the tick retries on the next pass.
	drop sync.Mutex

	mu         sync.Mutex
	state      State
	nextDropAt time.Time
}

func (r *tierRunner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *tierRunner) resetClock(now time.Time) {
	r.mu.Lock()
	r.nextDropAt = now.Add(r.interval)
	r.mu.Unlock()
}

// Dropper drives the per-tier release schedule against one shared
// pool. Construct it once in main; handlers registered under the same
// name replace one another, so a re-wired startup path cannot end up
// dispatching twice.
type Dropper struct {
	pool    *pool.Pool
	cfg     config.DropperConfig
	logger  *zap.Logger
	runners map[tier.Tier]*tierRunner

	mu       sync.RWMutex
	handlers map[string]DropHandler

	now func() time.Time
}

func New(p *pool.Pool, cfg config.DropperConfig, tiers config.TiersConfig, logger *zap.Logger) *Dropper {
	if logger == nil {
		logger = zap.NewNop()
	}
	runners := make(map[tier.Tier]*tierRunner)
	for _, t := range tier.All() {
		tc, ok := tiers.For(string(t))
		if !ok || tc.DropInterval <= 0 {
			continue
		}
		runners[t] = &tierRunner{tier: t, interval: tc.DropInterval, state: StateIdle}
	}
	return &Dropper{
		pool:     p,
		cfg:      cfg,
		logger:   logger,
		runners:  runners,
		handlers: make(map[string]DropHandler),
		now:      time.Now,
	}
}

// OnDrop registers a handler under a stable name. Registering the same
// name again replaces the previous handler. Handlers run synchronously
// inside the drop critical section, in name order.
func (d *Dropper) OnDrop(name string, h DropHandler) {
	if d == nil || h == nil {
		return
	}
	d.mu.Lock()
	d.handlers[name] = h
	d.mu.Unlock()
}

// Run ticks the schedule until the context is cancelled. The tick is
// deliberately coarse (about a second): drops land within a tick of
// their due time, and an idle pass costs next to nothing.
func (d *Dropper) Run(ctx context.Context) error {
	tick := d.cfg.Tick
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	d.logger.Info("dropper started", zap.Duration("tick", tick), zap.Int("tiers", len(d.runners)))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs one scheduling pass over every tier.
func (d *Dropper) Tick(ctx context.Context) {
	if d == nil {
		return
	}
	now := d.now()
	for _, t := range tier.All() {
		r, ok := d.runners[t]
		if !ok {
			continue
		}
		d.tickTier(ctx, r, now)
	}
}

func (d *Dropper) tickTier(ctx context.Context, r *tierRunner, now time.Time) {
	depth := d.pool.Depth(r.tier)

	r.mu.Lock()
	if r.nextDropAt.IsZero() {
		r.nextDropAt = now.Add(r.interval)
	}
	if depth == 0 {
		// Nothing to release: stay idle and push the clock forward
		// once the interval elapses. Never block waiting for content.
		if r.state != StateDropping {
			r.state = StateIdle
		}
		if !now.Before(r.nextDropAt) {
			r.nextDropAt = now.Add(r.interval)
		}
		r.mu.Unlock()
		return
	}
	if r.state != StateDropping {
		r.state = StateArmed
	}
	due := !now.Before(r.nextDropAt)
	r.mu.Unlock()

	if !due {
		return
	}
	if !r.drop.TryLock() {
		// Previous drop still holds the tier. The clock was not
		// advanced, so the next tick picks this release up again.
		return
	}
	defer r.drop.Unlock()
	_, _ = d.dropOne(ctx, r)
}

// ForceDrop bypasses the timer but still takes the tier lock, so a
// forced release can never overlap a scheduled one.
func (d *Dropper) ForceDrop(ctx context.Context, t tier.Tier) (signal.Ranked, error) {
	if d == nil {
		return signal.Ranked{}, errors.New("dropper not initialized")
	}
	r, ok := d.runners[t]
	if !ok {
		return signal.Ranked{}, fmt.Errorf("unknown tier %q", t)
	}
	r.drop.Lock()
	defer r.drop.Unlock()
	return d.dropOne(ctx, r)
}

// dropOne performs the critical section: release the tier's best
// candidate, hand it to the registered handlers, and put it back if
// nobody took it. The caller holds r.drop; state and clock are updated
// on every path so a failure can never leave the tier DROPPING.
func (d *Dropper) dropOne(ctx context.Context, r *tierRunner) (signal.Ranked, error) {
	r.setState(StateDropping)

	released, ok := d.pool.ReleaseBest(r.tier)
	if !ok {
		r.setState(StateIdle)
		r.resetClock(d.now())
		return signal.Ranked{}, ErrNothingToDrop
	}

	err := d.dispatch(ctx, released, r.tier)
	if err != nil {
		d.pool.Readmit(released.Candidate)
		d.logger.Warn("drop handoff failed, candidate readmitted",
			zap.String("tier", string(r.tier)),
			zap.String("id", released.ID),
			zap.Error(err))
	} else {
		d.logger.Info("candidate dropped",
			zap.String("tier", string(r.tier)),
			zap.String("id", released.ID),
			zap.String("symbol", released.Symbol),
			zap.Float64("score", released.Score))
	}

	r.resetClock(d.now())
	if d.pool.Depth(r.tier) > 0 {
		r.setState(StateArmed)
	} else {
		r.setState(StateIdle)
	}
	return released, err
}

// dispatch invokes every registered handler in name order. It fails
// only when no handler delivered, which is the signal for dropOne to
// readmit the candidate.
func (d *Dropper) dispatch(ctx context.Context, sig signal.Ranked, t tier.Tier) error {
	d.mu.RLock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	handlers := make([]DropHandler, len(names))
	for i, name := range names {
		handlers[i] = d.handlers[name]
	}
	d.mu.RUnlock()

	if len(handlers) == 0 {
		return errors.New("no drop handlers registered")
	}

	delivered := 0
	var firstErr error
	for i, h := range handlers {
		if err := h(ctx, sig, t); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", names[i], err)
			}
			d.logger.Warn("drop handler failed",
				zap.String("handler", names[i]),
				zap.String("tier", string(t)),
				zap.String("id", sig.ID),
				zap.Error(err))
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return firstErr
	}
	return nil
}

// Status reports every tier's schedule, ordered by tier level.
func (d *Dropper) Status() []Status {
	if d == nil {
		return nil
	}
	now := d.now()
	out := make([]Status, 0, len(d.runners))
	for _, t := range tier.All() {
		r, ok := d.runners[t]
		if !ok {
			continue
		}
		r.mu.Lock()
		state, next := r.state, r.nextDropAt
		r.mu.Unlock()
		countdown := time.Duration(0)
		if !next.IsZero() {
			if left := next.Sub(now); left > 0 {
				countdown = left
			}
		}
		out = append(out, Status{
			Tier:       t,
			State:      state,
			Depth:      d.pool.Depth(t),
			Interval:   r.interval,
			NextDropAt: next,
			Countdown:  countdown,
		})
	}
	return out
}
