package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"signaldrop/internal/config"
	"signaldrop/internal/dropper"
	"signaldrop/internal/models"
	"signaldrop/internal/pool"
	"signaldrop/internal/repository"
	"signaldrop/internal/signal"
	"signaldrop/internal/tier"
)

type stubRepo struct {
	mu       sync.Mutex
	users    []models.User
	quota    map[string]int
	rows     map[string]*models.DistributedSignal
	saveErrs map[string]int // user id -> remaining failures, -1 fails forever
	saves    int
}

func newStubRepo(users ...models.User) *stubRepo {
	return &stubRepo{
		users:    users,
		quota:    make(map[string]int),
		rows:     make(map[string]*models.DistributedSignal),
		saveErrs: make(map[string]int),
	}
}

func (s *stubRepo) ListActiveUsersByTiers(_ context.Context, tiers []string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(tiers))
	for _, t := range tiers {
		want[t] = true
	}
	var out []models.User
	for _, u := range s.users {
		if u.Active && want[u.Tier] {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *stubRepo) IncrementQuota(_ context.Context, userID, day string, max int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if max < 1 {
		return false, nil
	}
	key := userID + "|" + day
	if s.quota[key] >= max {
		return false, nil
	}
	s.quota[key]++
	return true, nil
}

func (s *stubRepo) SaveDistributedSignal(_ context.Context, item *models.DistributedSignal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if n, ok := s.saveErrs[item.UserID]; ok && n != 0 {
		if n > 0 {
			s.saveErrs[item.UserID] = n - 1
		}
		return false, errors.New("connection reset")
	}
	key := item.UserID + "|" + item.CandidateID
	if _, ok := s.rows[key]; ok {
		return false, nil
	}
	cp := *item
	s.rows[key] = &cp
	return true, nil
}

func (s *stubRepo) quotaCount(userID, day string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quota[userID+"|"+day]
}

func (s *stubRepo) row(userID, candidateID string) *models.DistributedSignal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[userID+"|"+candidateID]
}

var _ repository.DistributionRepository = (*stubRepo)(nil)

type stubNotifier struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (n *stubNotifier) Publish(_ context.Context, userID, event string, _ any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, userID+"/"+event)
	return nil
}

func (n *stubNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

var testTiers = config.TiersConfig{
	Free: config.TierConfig{MinQuality: 75, DropInterval: 10 * time.Minute, DailyQuota: 2},
	Pro:  config.TierConfig{MinQuality: 60, DropInterval: 2 * time.Minute, DailyQuota: 15, FullDetails: true},
	Max:  config.TierConfig{MinQuality: 50, DropInterval: 30 * time.Second, DailyQuota: 30, FullDetails: true},
}

func user(id, tierName string) models.User {
	return models.User{ID: id, Email: id + "@example.com", Tier: tierName, Active: true}
}

func ranked(id string) signal.Ranked {
	now := time.Now().UTC()
	return signal.Ranked{
		Candidate: signal.Candidate{
			ID:          id,
			Symbol:      "BTCUSDT",
			Direction:   signal.Long,
			Confidence:  82,
			Quality:     80,
			Entry:       decimal.NewFromInt(100),
			StopLoss:    decimal.NewFromInt(95),
			TakeProfits: []decimal.Decimal{decimal.NewFromInt(110), decimal.NewFromInt(120)},
			Strategy:    "breakout",
			CreatedAt:   now,
			ExpiresAt:   now.Add(time.Hour),
		},
		Score: 0.91,
		Rank:  1,
	}
}

func newTestGate(repo repository.DistributionRepository, notifier *stubNotifier, tiers config.TiersConfig, include bool, retries int) *Gate {
	cfg := config.DistributionConfig{
		IncludeHigherTiers: include,
		PerUserTimeout:     time.Second,
		PersistRetries:     retries,
		RetryBackoff:       time.Millisecond,
	}
	if notifier == nil {
		return New(repo, nil, cfg, tiers, nil)
	}
	return New(repo, notifier, cfg, tiers, nil)
}

func TestDailyQuotaSequential(t *testing.T) {
	repo := newStubRepo(user("u1", "FREE"))
	g := newTestGate(repo, nil, testTiers, false, 0)
	ctx := context.Background()
	day := repository.UTCDay(time.Now())

	for i, want := range []int{1, 1, 0} {
		res, err := g.Distribute(ctx, ranked(fmt.Sprintf("c%d", i)), tier.Free)
		if err != nil {
			t.Fatalf("distribute %d: %v", i, err)
		}
		if res.Notified != want {
			t.Fatalf("attempt %d: notified = %d, want %d", i, res.Notified, want)
		}
		if want == 0 && res.SkippedQuota != 1 {
			t.Fatalf("attempt %d should be a quota skip, got %+v", i, res)
		}
	}
	if got := repo.quotaCount("u1", day); got != 2 {
		t.Fatalf("quota count = %d, want 2 (never past the max)", got)
	}
}

func TestQuotaRaceSingleSlot(t *testing.T) {
	tiers := testTiers
	tiers.Free.DailyQuota = 1
	repo := newStubRepo(user("u1", "FREE"))
	g := newTestGate(repo, nil, tiers, false, 0)
	day := repository.UTCDay(time.Now())

	results := make([]Result, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = g.Distribute(context.Background(), ranked(fmt.Sprintf("c%d", i)), tier.Free)
		}(i)
	}
	wg.Wait()

	notified := results[0].Notified + results[1].Notified
	skipped := results[0].SkippedQuota + results[1].SkippedQuota
	if notified != 1 || skipped != 1 {
		t.Fatalf("racing on the last slot: notified=%d skipped=%d, want exactly 1/1", notified, skipped)
	}
	if got := repo.quotaCount("u1", day); got != 1 {
		t.Fatalf("quota count = %d, want 1", got)
	}
}

func TestRedactionPerTier(t *testing.T) {
	repo := newStubRepo(user("free-user", "FREE"), user("pro-user", "PRO"))
	g := newTestGate(repo, nil, testTiers, true, 0)

	res, err := g.Distribute(context.Background(), ranked("cand"), tier.Free)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if res.Notified != 2 {
		t.Fatalf("notified = %d, want 2", res.Notified)
	}

	freeRow := repo.row("free-user", "cand")
	if freeRow == nil {
		t.Fatalf("missing FREE row")
	}
	if freeRow.Entry != nil || freeRow.StopLoss != nil || len(freeRow.TakeProfits) != 0 {
		t.Fatalf("FREE row must persist null price fields, got %+v", freeRow)
	}
	if freeRow.FullDetails {
		t.Fatalf("FREE row must not unlock full details")
	}
	if freeRow.Symbol != "BTCUSDT" || freeRow.Confidence != 82 {
		t.Fatalf("non-price fields must survive redaction, got %+v", freeRow)
	}

	proRow := repo.row("pro-user", "cand")
	if proRow == nil {
		t.Fatalf("missing PRO row")
	}
	if proRow.Entry == nil || !proRow.Entry.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("PRO row must carry the real entry, got %v", proRow.Entry)
	}
	if proRow.StopLoss == nil || len(proRow.TakeProfits) == 0 || !proRow.FullDetails {
		t.Fatalf("PRO row must carry full detail, got %+v", proRow)
	}
}

func TestHigherTierPolicyOff(t *testing.T) {
	repo := newStubRepo(user("free-user", "FREE"), user("pro-user", "PRO"))
	g := newTestGate(repo, nil, testTiers, false, 0)

	res, err := g.Distribute(context.Background(), ranked("cand"), tier.Free)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if res.Eligible != 1 || res.Notified != 1 {
		t.Fatalf("policy off must reach only the drop tier, got %+v", res)
	}
	if repo.row("pro-user", "cand") != nil {
		t.Fatalf("PRO user must not receive a FREE drop when the policy is off")
	}

	want := []tier.Tier{tier.Pro, tier.Max}
	gOn := newTestGate(repo, nil, testTiers, true, 0)
	got := gOn.EligibleTiers(tier.Pro)
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("EligibleTiers(PRO) = %v, want %v", got, want)
	}
}

func TestPerUserIsolation(t *testing.T) {
	repo := newStubRepo(user("u1", "PRO"), user("u2", "PRO"), user("u3", "PRO"))
	repo.saveErrs["u2"] = -1
	g := newTestGate(repo, nil, testTiers, false, 0)

	res, err := g.Distribute(context.Background(), ranked("cand"), tier.Pro)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if res.Notified != 2 || res.Failed != 1 {
		t.Fatalf("one failing user must not abort the rest, got %+v", res)
	}
	if err := g.HandleDrop(context.Background(), ranked("cand2"), tier.Pro); err != nil {
		t.Fatalf("partial delivery is a success for the dropper: %v", err)
	}
}

func TestPersistRetriesTransientError(t *testing.T) {
	repo := newStubRepo(user("u1", "PRO"))
	repo.saveErrs["u1"] = 2
	g := newTestGate(repo, nil, testTiers, false, 2)

	res, err := g.Distribute(context.Background(), ranked("cand"), tier.Pro)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if res.Notified != 1 {
		t.Fatalf("persist should succeed after retries, got %+v", res)
	}
	if repo.saves != 3 {
		t.Fatalf("expected 3 save attempts, got %d", repo.saves)
	}
}

func TestDuplicateRowIsBenign(t *testing.T) {
	repo := newStubRepo(user("u1", "PRO"))
	notifier := &stubNotifier{}
	g := newTestGate(repo, notifier, testTiers, false, 0)
	ctx := context.Background()

	if _, err := g.Distribute(ctx, ranked("cand"), tier.Pro); err != nil {
		t.Fatalf("first distribute: %v", err)
	}
	res, err := g.Distribute(ctx, ranked("cand"), tier.Pro)
	if err != nil {
		t.Fatalf("second distribute: %v", err)
	}
	if res.Duplicates != 1 || res.Notified != 0 || res.Failed != 0 {
		t.Fatalf("replayed candidate must be a benign duplicate, got %+v", res)
	}
	if notifier.count() != 1 {
		t.Fatalf("duplicates must not be re-pushed, got %d events", notifier.count())
	}
	if err := g.HandleDrop(ctx, ranked("cand"), tier.Pro); err != nil {
		t.Fatalf("duplicate-only result must not fail the drop: %v", err)
	}
}

func TestHandleDropAllFailed(t *testing.T) {
	repo := newStubRepo(user("u1", "PRO"))
	repo.saveErrs["u1"] = -1
	g := newTestGate(repo, nil, testTiers, false, 0)

	if err := g.HandleDrop(context.Background(), ranked("cand"), tier.Pro); err == nil {
		t.Fatalf("nothing delivered and a real failure must error so the dropper readmits")
	}
}

func TestPushFailureDoesNotFailDelivery(t *testing.T) {
	repo := newStubRepo(user("u1", "PRO"))
	notifier := &stubNotifier{err: errors.New("stream gone")}
	g := newTestGate(repo, notifier, testTiers, false, 0)

	res, err := g.Distribute(context.Background(), ranked("cand"), tier.Pro)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if res.Notified != 1 {
		t.Fatalf("push is best-effort, delivery must still count: %+v", res)
	}
	if repo.row("u1", "cand") == nil {
		t.Fatalf("row must be persisted even when push fails")
	}
}

// End to end through the real pool and dropper: admit, force a PRO
// drop, and verify the gate persisted and pushed to the right users.
func TestDropDeliversRoundTrip(t *testing.T) {
	repo := newStubRepo(user("u-free", "FREE"), user("u-pro", "PRO"))
	notifier := &stubNotifier{}
	g := newTestGate(repo, notifier, testTiers, false, 0)

	p := pool.New(config.PoolConfig{}, testTiers, nil)
	d := dropper.New(p, config.DropperConfig{}, testTiers, nil)
	d.OnDrop("gate", g.HandleDrop)

	cand := ranked("rt-1").Candidate
	if err := p.Admit(cand); err != nil {
		t.Fatalf("admit: %v", err)
	}

	released, err := d.ForceDrop(context.Background(), tier.Pro)
	if err != nil {
		t.Fatalf("force drop: %v", err)
	}
	if released.ID != "rt-1" {
		t.Fatalf("released %q, want rt-1", released.ID)
	}
	if p.Size() != 0 {
		t.Fatalf("delivered candidate must leave the pool, size = %d", p.Size())
	}

	row := repo.row("u-pro", "rt-1")
	if row == nil {
		t.Fatalf("no row for the PRO user")
	}
	if row.Symbol != cand.Symbol || row.Confidence != cand.Confidence || row.Quality != cand.Quality {
		t.Fatalf("row does not match the candidate: %+v", row)
	}
	if !row.FullDetails || row.Entry == nil || !row.Entry.Equal(cand.Entry) {
		t.Fatalf("PRO rows carry full prices, got %+v", row)
	}
	if !strings.Contains(string(row.Metadata), `"rank":1`) {
		t.Fatalf("metadata missing rank: %s", row.Metadata)
	}
	if repo.row("u-free", "rt-1") != nil {
		t.Fatalf("FREE user must not receive a PRO drop when higher tiers are excluded")
	}
	if got := notifier.count(); got != 1 {
		t.Fatalf("pushes = %d, want 1", got)
	}
}
