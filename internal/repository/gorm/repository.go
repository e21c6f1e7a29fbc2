package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signaldrop/internal/models"
	"signaldrop/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Users -------------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, item *models.User) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetUserByAPIKey(ctx context.Context, key string) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.User
	err := s.db.WithContext(ctx).Where("api_key = ?", key).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListUsers(ctx context.Context, params repository.ListUsersParams) ([]models.User, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.userQuery(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.User
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountUsers(ctx context.Context, params repository.ListUsersParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.userQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) userQuery(ctx context.Context, params repository.ListUsersParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.User{})
	if params.Tier != nil && strings.TrimSpace(*params.Tier) != "" {
		query = query.Where("tier = ?", strings.ToUpper(strings.TrimSpace(*params.Tier)))
	}
	if params.Active != nil {
		query = query.Where("active = ?", *params.Active)
	}
	return query
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd repository.UserUpdate) error {
	if s == nil || s.db == nil {
		return nil
	}
	fields := map[string]any{}
	if upd.Tier != nil {
		fields["tier"] = strings.ToUpper(strings.TrimSpace(*upd.Tier))
	}
	if upd.Active != nil {
		fields["active"] = *upd.Active
	}
	if len(fields) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Store) ListActiveUsersByTiers(ctx context.Context, tiers []string) ([]models.User, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	tiers = cleanStrings(tiers)
	if len(tiers) == 0 {
		return nil, nil
	}
	var items []models.User
	if err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Where("tier IN ?", tiers).
		Order("created_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Distributed signals -------------------------------------------------------

// SaveDistributedSignal inserts the per-user row. The (user_id,
// candidate_id) unique index makes retries idempotent: a conflicting
// insert affects zero rows and is reported as created=false.
func (s *Store) SaveDistributedSignal(ctx context.Context, item *models.DistributedSignal) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "candidate_id"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) GetDistributedSignalByID(ctx context.Context, id uint64) (*models.DistributedSignal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.DistributedSignal
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListActiveSignals(ctx context.Context, userID string, now time.Time, limit int) ([]models.DistributedSignal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	var items []models.DistributedSignal
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("expires_at > ?", now).
		Where("outcome IS NULL").
		Order("created_at desc").
		Limit(normalizeLimit(limit, 50)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListSignalHistory(ctx context.Context, userID string, since time.Time, limit int) ([]models.DistributedSignal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.DistributedSignal
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("created_at >= ?", since).
		Order("COALESCE(resolved_at, created_at) desc, id desc").
		Limit(normalizeLimit(limit, 100)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) MarkViewed(ctx context.Context, userID string, id uint64) error {
	return s.setFlag(ctx, userID, id, "viewed")
}

func (s *Store) MarkClicked(ctx context.Context, userID string, id uint64) error {
	return s.setFlag(ctx, userID, id, "clicked")
}

func (s *Store) setFlag(ctx context.Context, userID string, id uint64, column string) error {
	if s == nil || s.db == nil {
		return nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.DistributedSignal{}).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Update(column, true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ResolveOutcome records the outcome once. Rows that already carry an
// outcome are left untouched and reported as resolved=false.
func (s *Store) ResolveOutcome(ctx context.Context, id uint64, outcome string, resolvedAt time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	if resolvedAt.IsZero() {
		resolvedAt = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Model(&models.DistributedSignal{}).
		Where("id = ?", id).
		Where("outcome IS NULL").
		Updates(map[string]any{
			"outcome":     outcome,
			"resolved_at": resolvedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) TimeoutExpiredSignals(ctx context.Context, expiredBefore time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if expiredBefore.IsZero() {
		expiredBefore = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Model(&models.DistributedSignal{}).
		Where("outcome IS NULL").
		Where("expires_at < ?", expiredBefore).
		Updates(map[string]any{
			"outcome":     models.OutcomeTimeout,
			"resolved_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// --- Quotas --------------------------------------------------------------------

// IncrementQuota performs the atomic check-and-increment for one user
// and UTC day: insert a fresh row at count=1, or bump the existing row
// only while count < max. Zero affected rows means the quota is spent;
// two racing calls on the last slot produce exactly one success.
func (s *Store) IncrementQuota(ctx context.Context, userID string, day string, max int) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	if max < 1 {
		return false, nil
	}
	item := models.TierQuota{UserID: userID, QuotaDate: day, Count: 1}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "quota_date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"count":      gorm.Expr("tier_quotas.count + 1"),
			"updated_at": time.Now().UTC(),
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			gorm.Expr("tier_quotas.count < ?", max),
		}},
	}).Create(&item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) GetQuota(ctx context.Context, userID string, day string) (*models.TierQuota, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.TierQuota
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("quota_date = ?", day).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// --- Derived counters ------------------------------------------------------------

func (s *Store) CountDistributedByTier(ctx context.Context, since time.Time) (map[string]int64, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	type tierCount struct {
		Tier  string
		Total int64
	}
	query := s.db.WithContext(ctx).
		Model(&models.DistributedSignal{}).
		Select("tier, COUNT(*) AS total")
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}
	var rows []tierCount
	if err := query.Group("tier").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Tier] = r.Total
	}
	return out, nil
}

func (s *Store) CountOutcomes(ctx context.Context, since time.Time) (map[string]int64, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	type outcomeCount struct {
		Outcome string
		Total   int64
	}
	query := s.db.WithContext(ctx).
		Model(&models.DistributedSignal{}).
		Select("outcome, COUNT(*) AS total").
		Where("outcome IS NOT NULL")
	if !since.IsZero() {
		query = query.Where("resolved_at >= ?", since)
	}
	var rows []outcomeCount
	if err := query.Group("outcome").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Outcome] = r.Total
	}
	return out, nil
}

func (s *Store) SumQuotaUsed(ctx context.Context, day string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.db.WithContext(ctx).
		Model(&models.TierQuota{}).
		Where("quota_date = ?", day).
		Select("COALESCE(SUM(count), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}

var _ repository.Repository = (*Store)(nil)
