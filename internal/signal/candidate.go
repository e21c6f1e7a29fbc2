package signal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the trade side of a candidate.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(Long):
		return Long, nil
	case string(Short):
		return Short, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// Candidate is a proposed trade idea awaiting ranking and distribution.
// Candidates are value types and read-only once admitted to the pool.
type Candidate struct {
	ID          string
	Symbol      string
	Direction   Direction
	Confidence  float64
	Quality     float64
	Entry       decimal.Decimal
	StopLoss    decimal.Decimal
	TakeProfits []decimal.Decimal
	Strategy    string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

var ErrInvalid = errors.New("invalid candidate")

// Validate enforces the admission invariants. A candidate that fails
// here never enters the pool.
func (c Candidate) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalid)
	}
	if strings.TrimSpace(c.Symbol) == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalid)
	}
	if c.Direction != Long && c.Direction != Short {
		return fmt.Errorf("%w: direction %q", ErrInvalid, c.Direction)
	}
	if c.Confidence < 0 || c.Confidence > 100 {
		return fmt.Errorf("%w: confidence %.2f out of range", ErrInvalid, c.Confidence)
	}
	if c.Quality < 0 || c.Quality > 100 {
		return fmt.Errorf("%w: quality %.2f out of range", ErrInvalid, c.Quality)
	}
	if strings.TrimSpace(c.Strategy) == "" {
		return fmt.Errorf("%w: missing strategy", ErrInvalid)
	}
	if !c.Entry.IsPositive() {
		return fmt.Errorf("%w: entry must be positive", ErrInvalid)
	}
	if !c.StopLoss.IsPositive() {
		return fmt.Errorf("%w: stop loss must be positive", ErrInvalid)
	}
	if len(c.TakeProfits) == 0 {
		return fmt.Errorf("%w: at least one take profit required", ErrInvalid)
	}
	for i, tp := range c.TakeProfits {
		if !tp.IsPositive() {
			return fmt.Errorf("%w: take profit %d must be positive", ErrInvalid, i)
		}
	}
	if c.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing created_at", ErrInvalid)
	}
	if !c.ExpiresAt.After(c.CreatedAt) {
		return fmt.Errorf("%w: expires_at must be after created_at", ErrInvalid)
	}
	return nil
}

// Expired reports whether the candidate's expiry has passed at now.
func (c Candidate) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Ranked is a candidate with its composite score and dense rank among
// the candidates visible in one view. Derived on read, never stored.
type Ranked struct {
	Candidate
	Score float64
	Rank  int
}
