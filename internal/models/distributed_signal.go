package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Outcome values for a distributed signal. The column stays null until
// the signal is resolved.
const (
	OutcomeWin     = "WIN"
	OutcomeLoss    = "LOSS"
	OutcomeTimeout = "TIMEOUT"
)

// DistributedSignal is the per-user row written at distribution time.
// Exactly one row exists per (user, candidate). Price fields are null
// when the owning tier does not unlock full detail; redaction happens
// before the row is built, never client-side.
type DistributedSignal struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	UserID      string `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_candidate;index"`
	CandidateID string `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_candidate"`
	Tier        string `gorm:"type:varchar(10);not null;index"`

	Symbol     string  `gorm:"type:varchar(32);not null;index"`
	Direction  string  `gorm:"type:varchar(10);not null"`
	Confidence float64 `gorm:"not null"`
	Quality    float64 `gorm:"not null"`

	// Store money-like values as numeric to avoid float errors.
	Entry       *decimal.Decimal `gorm:"type:numeric(30,10)"`
	StopLoss    *decimal.Decimal `gorm:"type:numeric(30,10)"`
	TakeProfits datatypes.JSON   `gorm:"type:jsonb"`
	FullDetails bool             `gorm:"not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	ExpiresAt time.Time `gorm:"type:timestamptz;not null;index"`

	Viewed     bool       `gorm:"not null;default:false"`
	Clicked    bool       `gorm:"not null;default:false"`
	Outcome    *string    `gorm:"type:varchar(10);index"`
	ResolvedAt *time.Time `gorm:"type:timestamptz"`

	Metadata datatypes.JSON `gorm:"type:jsonb"`
}

func (DistributedSignal) TableName() string {
	return "distributed_signals"
}
