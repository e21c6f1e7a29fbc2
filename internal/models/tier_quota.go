package models

import "time"

// TierQuota counts signals delivered to one user on one UTC calendar
// day. Rows are created lazily on first delivery and only ever
// incremented; a new day means a new row, never a reset in place.
type TierQuota struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	UserID    string `gorm:"type:varchar(64);not null;uniqueIndex:idx_quota_user_date"`
	QuotaDate string `gorm:"type:varchar(10);not null;uniqueIndex:idx_quota_user_date;index"`
	Count     int    `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (TierQuota) TableName() string {
	return "tier_quotas"
}
