package signal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"signaldrop/internal/config"
)

// Admitter receives validated candidates. Implemented by the ranking pool.
type Admitter interface {
	Admit(c Candidate) error
}

// Hub runs candidate sources, normalizes and validates what they emit,
// drops duplicates, and hands survivors to the pool. The HTTP ingest
// endpoint shares the same path via Submit.
type Hub struct {
	sources map[string]Source
	mu      sync.RWMutex

	sink   Admitter
	cfg    config.IntakeConfig
	logger *zap.Logger

	dedupMu  sync.Mutex
	lastSeen map[string]time.Time

	droppedDedup   uint64
	droppedInvalid uint64
	rejected       uint64
	admitted       uint64

	now func() time.Time
}

func NewHub(sink Admitter, cfg config.IntakeConfig, logger *zap.Logger) *Hub {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 128
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 5 * time.Minute
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 30 * time.Minute
	}
	return &Hub{
		sources:  map[string]Source{},
		sink:     sink,
		cfg:      cfg,
		logger:   logger,
		lastSeen: map[string]time.Time{},
		now:      time.Now,
	}
}

func (h *Hub) Register(s Source) {
	if h == nil || s == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sources[s.Name()] = s
}

// Submit pushes one candidate through normalize/validate/dedupe/admit
// synchronously, so callers see validation and admission errors. A
// duplicate inside the dedup window is a benign no-op.
func (h *Hub) Submit(c Candidate) error {
	c = h.normalize(c)
	if err := c.Validate(); err != nil {
		atomic.AddUint64(&h.droppedInvalid, 1)
		return err
	}
	if h.isDuplicate(c) {
		atomic.AddUint64(&h.droppedDedup, 1)
		return nil
	}
	if err := h.sink.Admit(c); err != nil {
		atomic.AddUint64(&h.rejected, 1)
		return err
	}
	atomic.AddUint64(&h.admitted, 1)
	return nil
}

func (h *Hub) Run(ctx context.Context) error {
	if h == nil {
		return nil
	}
	out := make(chan Candidate, h.cfg.Buffer)

	h.mu.RLock()
	sources := make([]Source, 0, len(h.sources))
	for _, s := range h.sources {
		sources = append(sources, s)
	}
	h.mu.RUnlock()

	for _, s := range sources {
		s := s
		go func() {
			if err := s.Start(ctx, out); err != nil && h.logger != nil {
				h.logger.Warn("candidate source stopped", zap.String("source", s.Name()), zap.Error(err))
			}
		}()
	}

	statsTicker := time.NewTicker(60 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, s := range sources {
				_ = s.Stop()
			}
			return ctx.Err()
		case <-statsTicker.C:
			if h.logger != nil {
				h.logger.Info("intake stats",
					zap.Uint64("admitted", atomic.LoadUint64(&h.admitted)),
					zap.Uint64("rejected", atomic.LoadUint64(&h.rejected)),
					zap.Uint64("dropped_dedup", atomic.LoadUint64(&h.droppedDedup)),
					zap.Uint64("dropped_invalid", atomic.LoadUint64(&h.droppedInvalid)),
				)
			}
		case c := <-out:
			if err := h.Submit(c); err != nil && h.logger != nil {
				h.logger.Debug("candidate dropped at intake",
					zap.String("candidate", c.ID),
					zap.String("symbol", c.Symbol),
					zap.Error(err),
				)
			}
		}
	}
}

// Sources snapshots the health of every registered source.
func (h *Hub) Sources() map[string]HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]HealthStatus, len(h.sources))
	for name, s := range h.sources {
		out[name] = s.Health()
	}
	return out
}

// Stats reports intake counters since start.
func (h *Hub) Stats() map[string]uint64 {
	return map[string]uint64{
		"admitted":        atomic.LoadUint64(&h.admitted),
		"rejected":        atomic.LoadUint64(&h.rejected),
		"dropped_dedup":   atomic.LoadUint64(&h.droppedDedup),
		"dropped_invalid": atomic.LoadUint64(&h.droppedInvalid),
	}
}

func (h *Hub) normalize(c Candidate) Candidate {
	now := h.now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.ExpiresAt.IsZero() {
		c.ExpiresAt = c.CreatedAt.Add(h.cfg.DefaultTTL)
	}
	return c
}

func (h *Hub) isDuplicate(c Candidate) bool {
	h.dedupMu.Lock()
	defer h.dedupMu.Unlock()
	now := h.now().UTC()
	if last, ok := h.lastSeen[c.ID]; ok && now.Sub(last) < h.cfg.DedupWindow {
		return true
	}
	h.lastSeen[c.ID] = now
	// Trim entries outside the window so the map stays bounded.
	if len(h.lastSeen) > 4096 {
		for k, t := range h.lastSeen {
			if now.Sub(t) >= h.cfg.DedupWindow {
				delete(h.lastSeen, k)
			}
		}
	}
	return false
}
