package cronrunner

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		if r == nil || r.baseCtx == nil {
			job(context.Background())
			return
		}
		job(r.baseCtx)
	})
}

// AddNamed registers a job that recovers panics and logs slow runs, so
// one bad maintenance job cannot take the scheduler down.
func (r *Runner) AddNamed(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.Add(spec, func(ctx context.Context) {
		start := time.Now()
		defer func() {
			if rec := recover(); rec != nil && r.logger != nil {
				r.logger.Error("cron job panicked", zap.String("job", name), zap.Any("panic", rec))
			}
		}()
		job(ctx)
		if d := time.Since(start); d > 30*time.Second && r.logger != nil {
			r.logger.Warn("cron job slow", zap.String("job", name), zap.Duration("took", d))
		}
	})
}

func (r *Runner) Start() {
	if r.logger != nil {
		r.logger.Info("cron started")
	}
	r.cron.Start()
}

func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	if r.logger != nil {
		r.logger.Info("cron stopped")
	}
}
