package models

import "time"

// User is a subscriber account. Tier drives drop cadence, daily quota,
// and detail visibility.
type User struct {
	ID     string `gorm:"type:varchar(64);primaryKey"`
	Email  string `gorm:"type:varchar(255);not null;uniqueIndex"`
	Tier   string `gorm:"type:varchar(10);not null;index"`
	Active bool   `gorm:"not null;default:true;index"`
	APIKey string `gorm:"column:api_key;type:varchar(64);not null;uniqueIndex"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}
