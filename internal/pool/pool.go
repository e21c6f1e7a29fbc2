// Package pool holds the not-yet-distributed candidate signals and
// exposes a ranked view per tier. Scores are never stored: they are
// recomputed from the candidate, the clock and the recent-drop history
// on every read, so a view is always consistent with "now".
package pool

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"signaldrop/internal/config"
	"signaldrop/internal/signal"
	"signaldrop/internal/tier"
)

var (
	// ErrBelowMinQuality rejects candidates under the admission floor.
	ErrBelowMinQuality = errors.New("quality below pool minimum")
	// ErrExpired rejects candidates whose expiry already passed.
	ErrExpired = errors.New("candidate already expired")
	// ErrPoolFull rejects a newcomer that would not outrank anything
	// in a pool at capacity.
	ErrPoolFull = errors.New("pool at capacity")
)

// Pool is the single process-wide candidate buffer. Construct it once
// in main and share the instance; a second pool would rank and release
// from a set nobody distributes.
type Pool struct {
	mu       sync.RWMutex
	items    map[string]signal.Candidate
	lastDrop map[string]time.Time

	maxSize    int
	minQuality float64
	tierFloor  float64
	freshHL    time.Duration
	repeatHL   time.Duration
	weights    config.WeightsConfig
	tiers      config.TiersConfig

	logger *zap.Logger
	now    func() time.Time
}

func New(cfg config.PoolConfig, tiers config.TiersConfig, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 200
	}
	if cfg.FreshnessHalfLife <= 0 {
		cfg.FreshnessHalfLife = 15 * time.Minute
	}
	if cfg.RepeatPenaltyHalfLife <= 0 {
		cfg.RepeatPenaltyHalfLife = 10 * time.Minute
	}
	floor := tiers.MinQualityFloor()
	min := cfg.MinQuality
	if min <= 0 {
		min = floor
	}
	return &Pool{
		items:      make(map[string]signal.Candidate),
		lastDrop:   make(map[string]time.Time),
		maxSize:    cfg.MaxSize,
		minQuality: min,
		tierFloor:  floor,
		freshHL:    cfg.FreshnessHalfLife,
		repeatHL:   cfg.RepeatPenaltyHalfLife,
		weights:    cfg.Weights,
		tiers:      tiers,
		logger:     logger,
		now:        time.Now,
	}
}

// Admit validates and inserts a candidate. Rejections are a logged
// no-op for the pipeline: invalid input never enters the pool, and a
// candidate below the admission floor or past expiry is dropped here
// rather than surfacing later as an unrankable entry. Re-admitting an
// ID already pooled is benign.
func (p *Pool) Admit(c signal.Candidate) error {
	if p == nil {
		return nil
	}
	if err := c.Validate(); err != nil {
		return err
	}
	now := p.now()
	if c.Expired(now) {
		return fmt.Errorf("%w: %s", ErrExpired, c.ID)
	}
	if c.Quality < p.minQuality {
		p.logger.Debug("pool reject",
			zap.String("id", c.ID),
			zap.String("symbol", c.Symbol),
			zap.Float64("quality", c.Quality),
			zap.Float64("min_quality", p.minQuality))
		return fmt.Errorf("%w: %.1f < %.1f", ErrBelowMinQuality, c.Quality, p.minQuality)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.items[c.ID]; ok {
		return nil
	}
	if len(p.items) >= p.maxSize {
		lowestID, lowestScore := p.lowestLocked(now)
		if lowestID == "" || p.scoreLocked(c, now) <= lowestScore {
			return fmt.Errorf("%w: %s would not outrank the weakest entry", ErrPoolFull, c.ID)
		}
		delete(p.items, lowestID)
		p.logger.Debug("pool full, evicted lowest",
			zap.String("id", lowestID),
			zap.Float64("score", lowestScore))
	}
	p.items[c.ID] = c
	p.logger.Debug("pool admit",
		zap.String("id", c.ID),
		zap.String("symbol", c.Symbol),
		zap.String("strategy", c.Strategy),
		zap.Float64("quality", c.Quality),
		zap.Int("pooled", len(p.items)))
	return nil
}

// TopN returns the n highest-ranked candidates visible to the tier,
// ties broken by most-recent-first. Rank numbers are dense: candidates
// with an identical score share one. n <= 0 returns the whole view.
func (p *Pool) TopN(t tier.Tier, n int) []signal.Ranked {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	now := p.now()
	cut, filtered := p.viewCut(t)
	ranked := make([]signal.Ranked, 0, len(p.items))
	for _, c := range p.items {
		if c.Expired(now) {
			continue
		}
		if filtered && c.Quality < cut {
			continue
		}
		ranked = append(ranked, signal.Ranked{Candidate: c, Score: p.scoreLocked(c, now)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		return rankBefore(ranked[i], ranked[j])
	})
	rank := 0
	prev := math.Inf(1)
	for i := range ranked {
		if ranked[i].Score != prev {
			rank++
			prev = ranked[i].Score
		}
		ranked[i].Rank = rank
	}
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Best returns the single top-ranked candidate for the tier.
func (p *Pool) Best(t tier.Tier) (signal.Ranked, bool) {
	top := p.TopN(t, 1)
	if len(top) == 0 {
		return signal.Ranked{}, false
	}
	return top[0], true
}

// ReleaseBest atomically picks the tier's top-ranked candidate, evicts
// it and records the (symbol, strategy) pair so the diversity penalty
// suppresses an immediate repeat pick. Selection and eviction happen
// under one lock: two tiers racing for the same candidate can never
// both walk away with it.
func (p *Pool) ReleaseBest(t tier.Tier) (signal.Ranked, bool) {
	if p == nil {
		return signal.Ranked{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	cut, filtered := p.viewCut(t)
	var best signal.Ranked
	found := false
	for _, c := range p.items {
		if c.Expired(now) {
			continue
		}
		if filtered && c.Quality < cut {
			continue
		}
		r := signal.Ranked{Candidate: c, Score: p.scoreLocked(c, now)}
		if !found || rankBefore(r, best) {
			best = r
			found = true
		}
	}
	if !found {
		return signal.Ranked{}, false
	}
	best.Rank = 1
	delete(p.items, best.ID)
	p.lastDrop[diversityKey(best.Candidate)] = now
	return best, true
}

// Evict removes a candidate without touching the drop history. Used
// for expiry cleanup and administrative removal.
func (p *Pool) Evict(id string) (signal.Candidate, bool) {
	if p == nil {
		return signal.Candidate{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.items[id]
	if !ok {
		return signal.Candidate{}, false
	}
	delete(p.items, id)
	return c, true
}

// Readmit puts a released candidate back after a failed handoff so it
// is not silently lost. Candidates that expired in the meantime stay
// out.
func (p *Pool) Readmit(c signal.Candidate) {
	if p == nil {
		return
	}
	now := p.now()
	if c.Expired(now) {
		p.logger.Debug("readmit skipped, candidate expired", zap.String("id", c.ID))
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.items[c.ID]; ok {
		return
	}
	if len(p.items) >= p.maxSize {
		p.evictLowestLocked(now)
	}
	p.items[c.ID] = c
}

// PruneExpired drops expired candidates and stale drop-history keys.
// Returns the number of candidates removed.
func (p *Pool) PruneExpired() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	removed := 0
	for id, c := range p.items {
		if c.Expired(now) {
			delete(p.items, id)
			removed++
		}
	}
	horizon := now.Add(-4 * p.repeatHL)
	for key, at := range p.lastDrop {
		if at.Before(horizon) {
			delete(p.lastDrop, key)
		}
	}
	if removed > 0 {
		p.logger.Debug("pool pruned", zap.Int("removed", removed), zap.Int("pooled", len(p.items)))
	}
	return removed
}

func (p *Pool) Size() int {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// Depth counts the candidates currently visible to a tier.
func (p *Pool) Depth(t tier.Tier) int {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	now := p.now()
	cut, filtered := p.viewCut(t)
	depth := 0
	for _, c := range p.items {
		if c.Expired(now) {
			continue
		}
		if filtered && c.Quality < cut {
			continue
		}
		depth++
	}
	return depth
}

// viewCut resolves the quality cut a tier's view applies on top of
// pool membership. The most permissive tier (the one holding the
// lowest configured minimum) sees the whole pool; its minimum gates
// admission instead.
func (p *Pool) viewCut(t tier.Tier) (float64, bool) {
	tc, ok := p.tiers.For(string(t))
	if !ok {
		return 0, false
	}
	if tc.MinQuality <= p.tierFloor {
		return 0, false
	}
	return tc.MinQuality, true
}

// scoreLocked computes the composite ranking score, each component in
// [0,1] weighted by the configured coefficients:
//
//	freshness = 0.5^(age/freshness_half_life)
//	diversity = 1 - 0.5^(since_last_drop/repeat_penalty_half_life)
//
// A (symbol, strategy) pair never dropped carries no diversity penalty.
func (p *Pool) scoreLocked(c signal.Candidate, now time.Time) float64 {
	age := now.Sub(c.CreatedAt)
	if age < 0 {
		age = 0
	}
	freshness := math.Pow(0.5, age.Seconds()/p.freshHL.Seconds())

	diversity := 1.0
	if last, ok := p.lastDrop[diversityKey(c)]; ok {
		elapsed := now.Sub(last)
		if elapsed < 0 {
			elapsed = 0
		}
		diversity = 1 - math.Pow(0.5, elapsed.Seconds()/p.repeatHL.Seconds())
	}

	w := p.weights
	return w.Confidence*(c.Confidence/100) +
		w.Quality*(c.Quality/100) +
		w.Freshness*freshness +
		w.Diversity*diversity
}

func (p *Pool) lowestLocked(now time.Time) (string, float64) {
	lowestID := ""
	lowest := math.Inf(1)
	for id, c := range p.items {
		if score := p.scoreLocked(c, now); score < lowest {
			lowest = score
			lowestID = id
		}
	}
	return lowestID, lowest
}

func (p *Pool) evictLowestLocked(now time.Time) {
	lowestID, lowest := p.lowestLocked(now)
	if lowestID == "" {
		return
	}
	delete(p.items, lowestID)
	p.logger.Debug("pool full, evicted lowest",
		zap.String("id", lowestID),
		zap.Float64("score", lowest))
}

// rankBefore orders by score descending, then most-recent-first, then
// ID for determinism.
func rankBefore(a, b signal.Ranked) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

func diversityKey(c signal.Candidate) string {
	return c.Symbol + "|" + c.Strategy
}

var _ signal.Admitter = (*Pool)(nil)
