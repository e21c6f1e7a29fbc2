package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"signaldrop/internal/cache"
	"signaldrop/internal/config"
	"signaldrop/internal/models"
	"signaldrop/internal/repository"
)

// SignalQueryService serves the consumer read contract over the
// persisted rows. The optional cache is read-through and time-bounded;
// the store stays the only source of truth.
type SignalQueryService struct {
	Repo   repository.SignalRepository
	Cache  *cache.SignalCache
	Cfg    config.QueryConfig
	Logger *zap.Logger
}

func (s *SignalQueryService) defaultLimit() int {
	if s.Cfg.DefaultLimit > 0 {
		return s.Cfg.DefaultLimit
	}
	return 50
}

func (s *SignalQueryService) historyWindow() time.Duration {
	if s.Cfg.HistoryWindow > 0 {
		return s.Cfg.HistoryWindow
	}
	return 24 * time.Hour
}

// ActiveSignals returns the user's visible set: unexpired, unresolved,
// newest first. Only the default-shaped query goes through the cache
// so each user holds at most one entry.
func (s *SignalQueryService) ActiveSignals(ctx context.Context, userID string, limit int) ([]models.DistributedSignal, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = s.defaultLimit()
	}
	now := time.Now().UTC()
	cacheable := limit == s.defaultLimit()
	if cacheable && s.Cache != nil {
		if rows, ok := s.Cache.GetActive(ctx, userID); ok {
			// Entries may have expired within the cache TTL.
			return filterActive(rows, now), nil
		}
	}
	rows, err := s.Repo.ListActiveSignals(ctx, userID, now, limit)
	if err != nil {
		return nil, err
	}
	if cacheable && s.Cache != nil {
		s.Cache.SetActive(ctx, userID, rows)
	}
	return rows, nil
}

// SignalHistory returns the user's rows from the trailing window
// regardless of expiry, most recently resolved or created first.
func (s *SignalQueryService) SignalHistory(ctx context.Context, userID string, limit int) ([]models.DistributedSignal, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = s.defaultLimit()
	}
	since := time.Now().UTC().Add(-s.historyWindow())
	return s.Repo.ListSignalHistory(ctx, userID, since, limit)
}

func (s *SignalQueryService) MarkViewed(ctx context.Context, userID string, id uint64) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	if err := s.Repo.MarkViewed(ctx, userID, id); err != nil {
		return err
	}
	s.Cache.InvalidateUser(ctx, userID)
	return nil
}

func (s *SignalQueryService) MarkClicked(ctx context.Context, userID string, id uint64) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	if err := s.Repo.MarkClicked(ctx, userID, id); err != nil {
		return err
	}
	s.Cache.InvalidateUser(ctx, userID)
	return nil
}

// ResolveOutcome records a WIN/LOSS/TIMEOUT for a row. It reports
// false when the row does not exist or already carries an outcome.
func (s *SignalQueryService) ResolveOutcome(ctx context.Context, id uint64, outcome string) (bool, error) {
	if s == nil || s.Repo == nil {
		return false, nil
	}
	switch outcome {
	case models.OutcomeWin, models.OutcomeLoss, models.OutcomeTimeout:
	default:
		return false, fmt.Errorf("invalid outcome %q", outcome)
	}
	row, err := s.Repo.GetDistributedSignalByID(ctx, id)
	if err != nil {
		return false, err
	}
	if row == nil {
		return false, nil
	}
	resolved, err := s.Repo.ResolveOutcome(ctx, id, outcome, time.Now().UTC())
	if err != nil {
		return false, err
	}
	if resolved {
		s.Cache.InvalidateUser(ctx, row.UserID)
		if s.Logger != nil {
			s.Logger.Info("signal outcome resolved",
				zap.Uint64("id", id),
				zap.String("user_id", row.UserID),
				zap.String("outcome", outcome))
		}
	}
	return resolved, nil
}

func filterActive(rows []models.DistributedSignal, now time.Time) []models.DistributedSignal {
	out := make([]models.DistributedSignal, 0, len(rows))
	for _, r := range rows {
		if !r.ExpiresAt.After(now) || r.Outcome != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}
