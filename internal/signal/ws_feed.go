package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"signaldrop/internal/config"
)

// WSFeed consumes candidates pushed by an upstream provider over a
// websocket. Optional; most deployments ingest over HTTP only.
type WSFeed struct {
	cfg    config.FeedConfig
	logger *zap.Logger

	mu     sync.Mutex
	health HealthStatus
}

type feedMessage struct {
	Type string         `json:"type"`
	Data CandidateInput `json:"data"`
}

func NewWSFeed(cfg config.FeedConfig, logger *zap.Logger) *WSFeed {
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 1 << 20
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 1 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}
	return &WSFeed{
		cfg:    cfg,
		logger: logger,
		health: HealthStatus{Status: "idle"},
	}
}

func (f *WSFeed) Name() string { return "ws_feed" }

func (f *WSFeed) Stop() error { return nil }

func (f *WSFeed) Health() HealthStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.health
}

func (f *WSFeed) Start(ctx context.Context, out chan<- Candidate) error {
	if f == nil {
		return fmt.Errorf("feed is nil")
	}
	if strings.TrimSpace(f.cfg.URL) == "" {
		return fmt.Errorf("feed url is empty")
	}
	backoff := f.cfg.BackoffMin
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, _, err := websocket.Dial(ctx, f.cfg.URL, nil)
		if err != nil {
			f.setError(err)
			if f.logger != nil {
				f.logger.Warn("feed connect failed", zap.Error(err))
			}
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, f.cfg.BackoffMax)
			continue
		}
		conn.SetReadLimit(f.cfg.ReadLimit)
		f.setStatus("connected")
		if f.logger != nil {
			f.logger.Info("feed connected", zap.String("url", f.cfg.URL))
		}
		backoff = f.cfg.BackoffMin

		err = f.consume(ctx, conn, out)
		_ = conn.Close(websocket.StatusNormalClosure, "reconnect")
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		f.setError(err)
		if err := sleepWithJitter(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff, f.cfg.BackoffMax)
	}
}

func (f *WSFeed) consume(ctx context.Context, conn *websocket.Conn, out chan<- Candidate) error {
	heartbeatErr := make(chan error, 1)
	heartbeatCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(f.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				heartbeatErr <- heartbeatCtx.Err()
				return
			case <-ticker.C:
				pingCtx, cancelPing := context.WithTimeout(heartbeatCtx, f.cfg.PingTimeout)
				err := conn.Ping(pingCtx)
				cancelPing()
				if err != nil {
					heartbeatErr <- err
					return
				}
			}
		}
	}()

	for {
		select {
		case err := <-heartbeatErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		default:
		}
		_, data, err := conn.Read(ctx)
		if err != nil {
			if f.logger != nil && !errors.Is(err, context.Canceled) {
				f.logger.Warn("feed read failed", zap.Error(err))
			}
			return err
		}
		var msg feedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if f.logger != nil {
				f.logger.Debug("feed message unparseable", zap.Error(err))
			}
			continue
		}
		if strings.EqualFold(msg.Type, "ping") {
			_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"pong"}`))
			continue
		}
		if !strings.EqualFold(msg.Type, "candidate") {
			continue
		}
		f.markSeen()
		select {
		case out <- msg.Data.Candidate():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *WSFeed) setStatus(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.health.Status = status
	f.health.LastError = nil
}

func (f *WSFeed) setError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.health.Status = "error"
	msg := err.Error()
	f.health.LastError = &msg
}

func (f *WSFeed) markSeen() {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	f.health.LastSeenAt = &now
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, base time.Duration) error {
	if base <= 0 {
		return nil
	}
	jitter := time.Duration(rand.Int63n(int64(base/2) + 1))
	timer := time.NewTimer(base + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
