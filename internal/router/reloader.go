package router

import (
	"context"
	"math/rand"
	"time"

	"relay/internal/config"
	"relay/internal/logger"
)

// Reloader periodically refreshes the router's rule set from storage so
// rule edits made by other instances take effect without a restart.
type Reloader struct {
	repo   Repository
	router *Router
	cfg    config.ReloadConfig
	logger logger.Logger
}

func NewReloader(repo Repository, router *Router, cfg config.ReloadConfig, log logger.Logger) *Reloader {
	return &Reloader{
		repo:   repo,
		router: router,
		cfg:    cfg,
		logger: log,
	}
}

// Reload loads active rules once. Jitter desynchronizes instances that
// share a database; skipJitter is for startup and tests.
func (r *Reloader) Reload(ctx context.Context, skipJitter ...bool) error {
	shouldSkipJitter := len(skipJitter) > 0 && skipJitter[0]

	if err := r.applyJitter(ctx, shouldSkipJitter); err != nil {
		return err
	}

	rules, err := r.repo.GetActiveRules(ctx)
	if err != nil {
		return err
	}

	r.router.ReplaceRules(ctx, rules)
	return nil
}

func (r *Reloader) Start(ctx context.Context) error {
	interval := time.Duration(r.cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := r.Reload(ctx, true); err != nil {
		r.logger.ErrorwCtx(ctx, "Failed to reload routing rules",
			"error", err,
		)
	}

	for {
		select {
		case <-ticker.C:
			if err := r.Reload(ctx); err != nil {
				r.logger.ErrorwCtx(ctx, "Failed to reload routing rules",
					"error", err,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Reloader) applyJitter(ctx context.Context, skipJitter bool) error {
	if skipJitter || r.cfg.JitterMaxMilliseconds == 0 {
		return nil
	}

	jitter := time.Duration(rand.Intn(r.cfg.JitterMaxMilliseconds)) * time.Millisecond
	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
