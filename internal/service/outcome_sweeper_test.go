package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"signaldrop/internal/config"
	"signaldrop/internal/repository"
)

type stubSweepRepo struct {
	repository.SignalRepository
	cutoff time.Time
	count  int64
	err    error
	calls  int
}

func (s *stubSweepRepo) TimeoutExpiredSignals(_ context.Context, expiredBefore time.Time) (int64, error) {
	s.calls++
	s.cutoff = expiredBefore
	return s.count, s.err
}

func TestSweeperAppliesGrace(t *testing.T) {
	repo := &stubSweepRepo{count: 3}
	sweeper := &OutcomeSweeper{Repo: repo, Cfg: config.SweeperConfig{Grace: 5 * time.Minute}}

	before := time.Now().UTC()
	if err := sweeper.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	after := time.Now().UTC()

	if repo.calls != 1 {
		t.Fatalf("expected one sweep call, got %d", repo.calls)
	}
	lo := before.Add(-5 * time.Minute)
	hi := after.Add(-5 * time.Minute)
	if repo.cutoff.Before(lo) || repo.cutoff.After(hi) {
		t.Fatalf("cutoff %v outside [%v, %v]", repo.cutoff, lo, hi)
	}
}

func TestSweeperPropagatesError(t *testing.T) {
	repo := &stubSweepRepo{err: errors.New("db gone")}
	sweeper := &OutcomeSweeper{Repo: repo, Cfg: config.SweeperConfig{}}

	if err := sweeper.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected sweep error")
	}
}
