// Package gate fans a released candidate out to the subscribed users
// of the eligible tiers. It is the only caller of the persistence
// boundary for distributed signal rows: quota enforcement, redaction
// and push all happen here, per user, in isolation.
package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"signaldrop/internal/config"
	"signaldrop/internal/models"
	"signaldrop/internal/notify"
	"signaldrop/internal/repository"
	"signaldrop/internal/signal"
	"signaldrop/internal/tier"
)

// Result summarizes one fan-out. Counts always add up to Eligible.
type Result struct {
	Tier         tier.Tier `json:"tier"`
	CandidateID  string    `json:"candidate_id"`
	Eligible     int       `json:"eligible"`
	Notified     int       `json:"notified"`
	SkippedQuota int       `json:"skipped_quota"`
	Duplicates   int       `json:"duplicates"`
	Failed       int       `json:"failed"`
}

type outcome int

const (
	outcomeDelivered outcome = iota
	outcomeQuotaSkip
	outcomeDuplicate
	outcomeFailed
)

type Gate struct {
	repo     repository.DistributionRepository
	notifier notify.Notifier
	cfg      config.DistributionConfig
	tiers    config.TiersConfig
	logger   *zap.Logger
	now      func() time.Time
}

func New(repo repository.DistributionRepository, notifier notify.Notifier, cfg config.DistributionConfig, tiers config.TiersConfig, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PerUserTimeout <= 0 {
		cfg.PerUserTimeout = 3 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.PersistRetries < 0 {
		cfg.PersistRetries = 0
	}
	return &Gate{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		tiers:    tiers,
		logger:   logger,
		now:      time.Now,
	}
}

// EligibleTiers resolves which tiers receive a drop for t. Higher-tier
// visibility is an explicit policy switch, never an accident of pool
// filtering.
func (g *Gate) EligibleTiers(t tier.Tier) []tier.Tier {
	if g.cfg.IncludeHigherTiers {
		return tier.AtOrAbove(t)
	}
	return []tier.Tier{t}
}

// Distribute fans the candidate out to every active user of the
// eligible tiers. A failure for one user never aborts the rest; the
// error return covers only the inability to resolve the audience.
func (g *Gate) Distribute(ctx context.Context, sig signal.Ranked, t tier.Tier) (Result, error) {
	res := Result{Tier: t, CandidateID: sig.ID}
	if g == nil || g.repo == nil {
		return res, errors.New("gate not initialized")
	}

	eligible := g.EligibleTiers(t)
	names := make([]string, len(eligible))
	for i, et := range eligible {
		names[i] = string(et)
	}
	users, err := g.repo.ListActiveUsersByTiers(ctx, names)
	if err != nil {
		return res, fmt.Errorf("list eligible users: %w", err)
	}
	res.Eligible = len(users)

	for i := range users {
		switch g.deliverOne(ctx, users[i], sig) {
		case outcomeDelivered:
			res.Notified++
		case outcomeQuotaSkip:
			res.SkippedQuota++
		case outcomeDuplicate:
			res.Duplicates++
		case outcomeFailed:
			res.Failed++
		}
	}

	g.logger.Info("distribution complete",
		zap.String("tier", string(t)),
		zap.String("candidate_id", sig.ID),
		zap.String("symbol", sig.Symbol),
		zap.Int("eligible", res.Eligible),
		zap.Int("notified", res.Notified),
		zap.Int("skipped_quota", res.SkippedQuota),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("failed", res.Failed))
	return res, nil
}

// HandleDrop adapts Distribute to the dropper's handler contract: it
// errors only when nothing was delivered and at least one user
// genuinely failed, which makes the dropper readmit the candidate.
// Quota skips and duplicate rows are expected outcomes, not failures.
func (g *Gate) HandleDrop(ctx context.Context, sig signal.Ranked, t tier.Tier) error {
	res, err := g.Distribute(ctx, sig, t)
	if err != nil {
		return err
	}
	if res.Notified == 0 && res.Duplicates == 0 && res.Failed > 0 {
		return fmt.Errorf("candidate %s reached no user: %d failed, %d quota-skipped",
			sig.ID, res.Failed, res.SkippedQuota)
	}
	return nil
}

// deliverOne runs the whole per-user sequence under one bounded
// context: quota check-and-increment, row build, idempotent persist,
// best-effort push. The quota increment is a single conditional upsert
// so two racing drops can never both take the last slot.
func (g *Gate) deliverOne(ctx context.Context, user models.User, sig signal.Ranked) outcome {
	uctx, cancel := context.WithTimeout(ctx, g.cfg.PerUserTimeout)
	defer cancel()

	tc, ok := g.tiers.For(user.Tier)
	if !ok {
		g.logger.Warn("user has unknown tier, skipped",
			zap.String("user_id", user.ID),
			zap.String("tier", user.Tier))
		return outcomeFailed
	}

	day := repository.UTCDay(g.now())
	allowed, err := g.repo.IncrementQuota(uctx, user.ID, day, tc.DailyQuota)
	if err != nil {
		g.logger.Warn("quota check failed",
			zap.String("user_id", user.ID),
			zap.Error(err))
		return outcomeFailed
	}
	if !allowed {
		g.logger.Debug("daily quota exhausted, user skipped",
			zap.String("user_id", user.ID),
			zap.String("tier", user.Tier),
			zap.String("day", day))
		return outcomeQuotaSkip
	}

	row, err := buildRow(user, sig, tc)
	if err != nil {
		g.logger.Error("build signal row",
			zap.String("user_id", user.ID),
			zap.String("candidate_id", sig.ID),
			zap.Error(err))
		return outcomeFailed
	}

	created, err := g.persistWithRetry(uctx, row)
	if err != nil {
		g.logger.Warn("persist failed",
			zap.String("user_id", user.ID),
			zap.String("candidate_id", sig.ID),
			zap.Error(err))
		return outcomeFailed
	}
	if !created {
		g.logger.Debug("row already exists, persist skipped",
			zap.String("user_id", user.ID),
			zap.String("candidate_id", sig.ID))
		return outcomeDuplicate
	}

	if g.notifier != nil {
		// Push is best-effort: the poll path reconstructs the visible
		// set from the row just written.
		if err := g.notifier.Publish(uctx, user.ID, notify.EventNewSignal, row); err != nil {
			g.logger.Warn("push notify failed",
				zap.String("user_id", user.ID),
				zap.Error(err))
		}
	}
	return outcomeDelivered
}

// persistWithRetry retries transient insert errors a bounded number of
// times with linear backoff. A duplicate is not an error and is never
// retried; the unique index makes the retried insert idempotent.
func (g *Gate) persistWithRetry(ctx context.Context, row *models.DistributedSignal) (bool, error) {
	attempts := g.cfg.PersistRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		created, err := g.repo.SaveDistributedSignal(ctx, row)
		if err == nil {
			return created, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(g.cfg.RetryBackoff * time.Duration(attempt)):
		}
	}
	return false, lastErr
}

// buildRow materializes the per-user row. Price fields are written
// only for tiers that unlock full detail; for everyone else the
// columns stay NULL so no read path can leak them.
func buildRow(user models.User, sig signal.Ranked, tc config.TierConfig) (*models.DistributedSignal, error) {
	row := &models.DistributedSignal{
		UserID:      user.ID,
		CandidateID: sig.ID,
		Tier:        user.Tier,
		Symbol:      sig.Symbol,
		Direction:   string(sig.Direction),
		Confidence:  sig.Confidence,
		Quality:     sig.Quality,
		ExpiresAt:   sig.ExpiresAt,
		FullDetails: tc.FullDetails,
	}
	if tc.FullDetails {
		entry := sig.Entry
		stop := sig.StopLoss
		row.Entry = &entry
		row.StopLoss = &stop
		targets, err := json.Marshal(sig.TakeProfits)
		if err != nil {
			return nil, fmt.Errorf("marshal take profits: %w", err)
		}
		row.TakeProfits = datatypes.JSON(targets)
	}
	meta, err := json.Marshal(map[string]any{
		"strategy": sig.Strategy,
		"rank":     sig.Rank,
		"score":    sig.Score,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	row.Metadata = datatypes.JSON(meta)
	return row, nil
}
