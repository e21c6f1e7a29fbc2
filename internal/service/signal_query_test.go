package service

import (
	"context"
	"testing"
	"time"

	"signaldrop/internal/config"
	"signaldrop/internal/models"
	"signaldrop/internal/repository"
)

type stubQueryRepo struct {
	repository.SignalRepository
	active      []models.DistributedSignal
	activeLimit int
	history     []models.DistributedSignal
	since       time.Time
	viewed      []uint64
	row         *models.DistributedSignal
	resolved    bool
	resolvedAs  string
}

func (s *stubQueryRepo) ListActiveSignals(_ context.Context, _ string, _ time.Time, limit int) ([]models.DistributedSignal, error) {
	s.activeLimit = limit
	return s.active, nil
}

func (s *stubQueryRepo) ListSignalHistory(_ context.Context, _ string, since time.Time, _ int) ([]models.DistributedSignal, error) {
	s.since = since
	return s.history, nil
}

func (s *stubQueryRepo) MarkViewed(_ context.Context, _ string, id uint64) error {
	s.viewed = append(s.viewed, id)
	return nil
}

func (s *stubQueryRepo) GetDistributedSignalByID(_ context.Context, _ uint64) (*models.DistributedSignal, error) {
	return s.row, nil
}

func (s *stubQueryRepo) ResolveOutcome(_ context.Context, _ uint64, outcome string, _ time.Time) (bool, error) {
	s.resolvedAs = outcome
	return s.resolved, nil
}

func TestActiveSignalsDefaultLimit(t *testing.T) {
	repo := &stubQueryRepo{}
	svc := &SignalQueryService{Repo: repo, Cfg: config.QueryConfig{DefaultLimit: 25}}

	if _, err := svc.ActiveSignals(context.Background(), "u1", 0); err != nil {
		t.Fatalf("active: %v", err)
	}
	if repo.activeLimit != 25 {
		t.Fatalf("limit = %d, want configured default 25", repo.activeLimit)
	}
	if _, err := svc.ActiveSignals(context.Background(), "u1", 7); err != nil {
		t.Fatalf("active: %v", err)
	}
	if repo.activeLimit != 7 {
		t.Fatalf("explicit limit must pass through, got %d", repo.activeLimit)
	}
}

func TestHistoryUsesTrailingWindow(t *testing.T) {
	repo := &stubQueryRepo{}
	svc := &SignalQueryService{Repo: repo, Cfg: config.QueryConfig{HistoryWindow: 24 * time.Hour}}

	before := time.Now().UTC()
	if _, err := svc.SignalHistory(context.Background(), "u1", 0); err != nil {
		t.Fatalf("history: %v", err)
	}
	after := time.Now().UTC()

	lo := before.Add(-24 * time.Hour)
	hi := after.Add(-24 * time.Hour)
	if repo.since.Before(lo) || repo.since.After(hi) {
		t.Fatalf("since %v outside the trailing 24h window", repo.since)
	}
}

func TestResolveOutcomeValidation(t *testing.T) {
	repo := &stubQueryRepo{row: &models.DistributedSignal{ID: 9, UserID: "u1"}, resolved: true}
	svc := &SignalQueryService{Repo: repo}

	if _, err := svc.ResolveOutcome(context.Background(), 9, "MAYBE"); err == nil {
		t.Fatalf("invalid outcome must be rejected")
	}

	ok, err := svc.ResolveOutcome(context.Background(), 9, models.OutcomeWin)
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	if repo.resolvedAs != models.OutcomeWin {
		t.Fatalf("outcome passed through = %q", repo.resolvedAs)
	}

	repo.row = nil
	ok, err = svc.ResolveOutcome(context.Background(), 10, models.OutcomeLoss)
	if err != nil || ok {
		t.Fatalf("missing row must report false, got ok=%v err=%v", ok, err)
	}
}

func TestFilterActiveDropsExpiredAndResolved(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	win := models.OutcomeWin
	rows := []models.DistributedSignal{
		{ID: 1, ExpiresAt: now.Add(time.Hour)},
		{ID: 2, ExpiresAt: now.Add(-time.Minute)},
		{ID: 3, ExpiresAt: now.Add(time.Hour), Outcome: &win},
	}
	got := filterActive(rows, now)
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("filterActive = %+v, want only row 1", got)
	}
}
