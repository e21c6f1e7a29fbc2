package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"signaldrop/internal/config"
	"signaldrop/internal/repository"
)

// OutcomeSweeper resolves stale rows: a distributed signal whose expiry
// plus grace period passed without a WIN or LOSS is timed out. The
// grace period leaves room for a late manual resolution before the
// sweep claims the row.
type OutcomeSweeper struct {
	Repo   repository.SignalRepository
	Cfg    config.SweeperConfig
	Logger *zap.Logger
}

func (s *OutcomeSweeper) Run(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	interval := s.Cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) && s.Logger != nil {
			s.Logger.Warn("outcome sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (s *OutcomeSweeper) RunOnce(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	grace := s.Cfg.Grace
	if grace < 0 {
		grace = 0
	}
	cutoff := time.Now().UTC().Add(-grace)
	n, err := s.Repo.TimeoutExpiredSignals(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 && s.Logger != nil {
		s.Logger.Info("expired signals timed out", zap.Int64("count", n))
	}
	return nil
}
