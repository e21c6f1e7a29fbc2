package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"signaldrop/internal/models"
)

// UserRepository covers account management and audience resolution.
type UserRepository interface {
	CreateUser(ctx context.Context, item *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByAPIKey(ctx context.Context, key string) (*models.User, error)
	ListUsers(ctx context.Context, params ListUsersParams) ([]models.User, error)
	CountUsers(ctx context.Context, params ListUsersParams) (int64, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) error
	ListActiveUsersByTiers(ctx context.Context, tiers []string) ([]models.User, error)
}

// SignalRepository covers the per-user distributed signal rows.
// SaveDistributedSignal reports whether a row was created; a conflict
// on (user, candidate) is a benign no-op, never an error.
type SignalRepository interface {
	SaveDistributedSignal(ctx context.Context, item *models.DistributedSignal) (bool, error)
	GetDistributedSignalByID(ctx context.Context, id uint64) (*models.DistributedSignal, error)
	ListActiveSignals(ctx context.Context, userID string, now time.Time, limit int) ([]models.DistributedSignal, error)
	ListSignalHistory(ctx context.Context, userID string, since time.Time, limit int) ([]models.DistributedSignal, error)
	MarkViewed(ctx context.Context, userID string, id uint64) error
	MarkClicked(ctx context.Context, userID string, id uint64) error
	ResolveOutcome(ctx context.Context, id uint64, outcome string, resolvedAt time.Time) (bool, error)
	TimeoutExpiredSignals(ctx context.Context, expiredBefore time.Time) (int64, error)
}

// QuotaRepository covers the per-user, per-UTC-day delivery counters.
// IncrementQuota is the atomic check-and-increment: it reports false
// when the user's count for the day already reached max, and never
// lets the stored count exceed max.
type QuotaRepository interface {
	IncrementQuota(ctx context.Context, userID string, day string, max int) (bool, error)
	GetQuota(ctx context.Context, userID string, day string) (*models.TierQuota, error)
	SumQuotaUsed(ctx context.Context, day string) (int64, error)
}

// StatsRepository derives counters from the stored rows at read time.
type StatsRepository interface {
	CountDistributedByTier(ctx context.Context, since time.Time) (map[string]int64, error)
	CountOutcomes(ctx context.Context, since time.Time) (map[string]int64, error)
}

// DistributionRepository is the slice of the store the distribution
// gate needs: resolve the audience, take a quota slot, write the row.
type DistributionRepository interface {
	ListActiveUsersByTiers(ctx context.Context, tiers []string) ([]models.User, error)
	IncrementQuota(ctx context.Context, userID string, day string, max int) (bool, error)
	SaveDistributedSignal(ctx context.Context, item *models.DistributedSignal) (bool, error)
}

// Repository is the full persistence boundary.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	UserRepository
	SignalRepository
	QuotaRepository
	StatsRepository
}

type ListUsersParams struct {
	Limit   int
	Offset  int
	Tier    *string
	Active  *bool
	OrderBy string
	Asc     *bool
}

// UserUpdate carries the mutable user fields; nil means unchanged.
type UserUpdate struct {
	Tier   *string
	Active *bool
}

// UTCDay formats t's UTC calendar day as the quota-row key.
func UTCDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
