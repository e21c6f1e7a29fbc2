package signal

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validCandidate(id string) Candidate {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return Candidate{
		ID:          id,
		Symbol:      "ETHUSDT",
		Direction:   Long,
		Confidence:  70,
		Quality:     70,
		Entry:       decimal.NewFromInt(2000),
		StopLoss:    decimal.NewFromInt(1900),
		TakeProfits: []decimal.Decimal{decimal.NewFromInt(2200)},
		Strategy:    "momentum",
		CreatedAt:   created,
		ExpiresAt:   created.Add(time.Hour),
	}
}

func TestValidateAcceptsWellFormed(t *testing.T) {
	if err := validCandidate("c1").Validate(); err != nil {
		t.Fatalf("valid candidate rejected: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := map[string]func(c *Candidate){
		"missing id":        func(c *Candidate) { c.ID = " " },
		"missing symbol":    func(c *Candidate) { c.Symbol = "" },
		"bad direction":     func(c *Candidate) { c.Direction = "SIDEWAYS" },
		"confidence high":   func(c *Candidate) { c.Confidence = 101 },
		"confidence low":    func(c *Candidate) { c.Confidence = -1 },
		"quality high":      func(c *Candidate) { c.Quality = 100.5 },
		"missing strategy":  func(c *Candidate) { c.Strategy = "" },
		"zero entry":        func(c *Candidate) { c.Entry = decimal.Zero },
		"negative stop":     func(c *Candidate) { c.StopLoss = decimal.NewFromInt(-1) },
		"no take profits":   func(c *Candidate) { c.TakeProfits = nil },
		"zero take profit":  func(c *Candidate) { c.TakeProfits = []decimal.Decimal{decimal.Zero} },
		"missing created":   func(c *Candidate) { c.CreatedAt = time.Time{} },
		"expiry not after":  func(c *Candidate) { c.ExpiresAt = c.CreatedAt },
		"expiry before":     func(c *Candidate) { c.ExpiresAt = c.CreatedAt.Add(-time.Minute) },
	}
	for name, mutate := range cases {
		c := validCandidate("c1")
		mutate(&c)
		err := c.Validate()
		if err == nil {
			t.Fatalf("%s: expected a validation error", name)
		}
		if !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: error %v does not wrap ErrInvalid", name, err)
		}
	}
}

func TestExpired(t *testing.T) {
	c := validCandidate("c1")
	if c.Expired(c.ExpiresAt.Add(-time.Second)) {
		t.Fatalf("not yet expired")
	}
	if !c.Expired(c.ExpiresAt) {
		t.Fatalf("expiry instant counts as expired")
	}
}

func TestCandidateInputNormalizesFields(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("CET", 3600))
	in := CandidateInput{
		ID:        " abc ",
		Symbol:    " btcusdt ",
		Direction: "long",
		Strategy:  " breakout ",
		CreatedAt: &created,
	}
	c := in.Candidate()
	if c.ID != "abc" || c.Symbol != "BTCUSDT" || c.Strategy != "breakout" {
		t.Fatalf("fields not trimmed/uppercased: %+v", c)
	}
	if c.Direction != Long {
		t.Fatalf("direction = %q, want LONG", c.Direction)
	}
	if c.CreatedAt.Location() != time.UTC || !c.CreatedAt.Equal(created) {
		t.Fatalf("created_at must be converted to UTC, got %v", c.CreatedAt)
	}
	if !c.ExpiresAt.IsZero() {
		t.Fatalf("absent expiry must stay zero for the hub to default")
	}
}

func TestParseDirection(t *testing.T) {
	if d, err := ParseDirection(" short "); err != nil || d != Short {
		t.Fatalf("ParseDirection(short) = %q, %v", d, err)
	}
	if _, err := ParseDirection("hold"); err == nil {
		t.Fatalf("unknown direction must error")
	}
}
