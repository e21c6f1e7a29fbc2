package signal

import (
	"errors"
	"sync"
	"testing"
	"time"

	"signaldrop/internal/config"
)

type stubSink struct {
	mu  sync.Mutex
	got []Candidate
	err error
}

func (s *stubSink) Admit(c Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, c)
	return nil
}

func (s *stubSink) admitted() []Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Candidate, len(s.got))
	copy(out, s.got)
	return out
}

func newTestHub(sink Admitter, cfg config.IntakeConfig, at time.Time) *Hub {
	h := NewHub(sink, cfg, nil)
	h.now = func() time.Time { return at }
	return h
}

func TestSubmitMintsDefaults(t *testing.T) {
	sink := &stubSink{}
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	h := newTestHub(sink, config.IntakeConfig{DefaultTTL: 20 * time.Minute}, at)

	c := validCandidate("")
	c.CreatedAt = time.Time{}
	c.ExpiresAt = time.Time{}
	if err := h.Submit(c); err != nil {
		t.Fatalf("submit: %v", err)
	}

	got := sink.admitted()
	if len(got) != 1 {
		t.Fatalf("admitted = %d, want 1", len(got))
	}
	if got[0].ID == "" {
		t.Fatalf("missing id must be minted")
	}
	if !got[0].CreatedAt.Equal(at) {
		t.Fatalf("created_at = %v, want %v", got[0].CreatedAt, at)
	}
	if want := at.Add(20 * time.Minute); !got[0].ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want created_at + default ttl %v", got[0].ExpiresAt, want)
	}
}

func TestSubmitRejectsInvalid(t *testing.T) {
	sink := &stubSink{}
	h := newTestHub(sink, config.IntakeConfig{}, time.Now().UTC())

	c := validCandidate("c1")
	c.Confidence = 150
	if err := h.Submit(c); !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
	if len(sink.admitted()) != 0 {
		t.Fatalf("invalid candidate must not reach the pool")
	}
	if got := h.Stats()["dropped_invalid"]; got != 1 {
		t.Fatalf("dropped_invalid = %d, want 1", got)
	}
}

func TestSubmitDedupWindow(t *testing.T) {
	sink := &stubSink{}
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	h := newTestHub(sink, config.IntakeConfig{DedupWindow: time.Minute}, at)

	if err := h.Submit(validCandidate("dup")); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := h.Submit(validCandidate("dup")); err != nil {
		t.Fatalf("duplicate submit must be a no-op, got %v", err)
	}
	if len(sink.admitted()) != 1 {
		t.Fatalf("admitted = %d, want 1 (duplicate suppressed)", len(sink.admitted()))
	}
	if got := h.Stats()["dropped_dedup"]; got != 1 {
		t.Fatalf("dropped_dedup = %d, want 1", got)
	}

	// Past the window the same id flows again.
	h.now = func() time.Time { return at.Add(2 * time.Minute) }
	c := validCandidate("dup")
	c.CreatedAt = at.Add(2 * time.Minute)
	c.ExpiresAt = c.CreatedAt.Add(time.Hour)
	if err := h.Submit(c); err != nil {
		t.Fatalf("resubmit after window: %v", err)
	}
	if len(sink.admitted()) != 2 {
		t.Fatalf("admitted = %d, want 2", len(sink.admitted()))
	}
}

func TestSubmitSurfacesAdmitError(t *testing.T) {
	sink := &stubSink{err: errors.New("below floor")}
	h := newTestHub(sink, config.IntakeConfig{}, time.Now().UTC())

	if err := h.Submit(validCandidate("c1")); err == nil {
		t.Fatalf("pool rejection must surface to the caller")
	}
	if got := h.Stats()["rejected"]; got != 1 {
		t.Fatalf("rejected = %d, want 1", got)
	}
}
