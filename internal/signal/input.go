package signal

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CandidateInput is the wire shape accepted by the ingest endpoint and
// the upstream feed. Prices accept JSON numbers or numeric strings.
type CandidateInput struct {
	ID          string            `json:"id"`
	Symbol      string            `json:"symbol"`
	Direction   string            `json:"direction"`
	Confidence  float64           `json:"confidence"`
	Quality     float64           `json:"quality"`
	Entry       decimal.Decimal   `json:"entry"`
	StopLoss    decimal.Decimal   `json:"stop_loss"`
	TakeProfits []decimal.Decimal `json:"take_profits"`
	Strategy    string            `json:"strategy"`
	CreatedAt   *time.Time        `json:"created_at,omitempty"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
}

// Candidate converts the input to the domain type. Validation happens
// at admission, not here.
func (in CandidateInput) Candidate() Candidate {
	c := Candidate{
		ID:          strings.TrimSpace(in.ID),
		Symbol:      strings.ToUpper(strings.TrimSpace(in.Symbol)),
		Direction:   Direction(strings.ToUpper(strings.TrimSpace(in.Direction))),
		Confidence:  in.Confidence,
		Quality:     in.Quality,
		Entry:       in.Entry,
		StopLoss:    in.StopLoss,
		TakeProfits: in.TakeProfits,
		Strategy:    strings.TrimSpace(in.Strategy),
	}
	if in.CreatedAt != nil {
		c.CreatedAt = in.CreatedAt.UTC()
	}
	if in.ExpiresAt != nil {
		c.ExpiresAt = in.ExpiresAt.UTC()
	}
	return c
}
