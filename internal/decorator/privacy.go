package decorator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"relay/internal/adapter"
	"relay/internal/config"
	"relay/internal/consent"
	"relay/internal/logger"
	"relay/internal/validation"
	"relay/pkg/metrics"
	"relay/pkg/models"
)

// Privacy gates every call on the user's consent state and anonymizes
// identifying fields before they reach the wrapped adapter. A blocked
// call returns nil: callers must not treat a consent decision as a
// delivery failure.
type Privacy struct {
	inner    adapter.Adapter
	cfg      config.PrivacyConfig
	category string
	store    consent.Store
	logger   logger.Logger
}

func NewPrivacy(inner adapter.Adapter, cfg config.PrivacyConfig, category string, store consent.Store, log logger.Logger) *Privacy {
	return &Privacy{
		inner:    inner,
		cfg:      cfg,
		category: category,
		store:    store,
		logger:   log,
	}
}

func (d *Privacy) Name() string {
	return d.inner.Name()
}

func (d *Privacy) Initialize(ctx context.Context) error {
	return d.inner.Initialize(ctx)
}

func (d *Privacy) Track(ctx context.Context, event models.Event) error {
	allowed, reason := d.canTrack(ctx, event.Identifier())
	if !allowed {
		d.block(ctx, "track", reason)
		return nil
	}
	return d.inner.Track(ctx, d.anonymizeEvent(event))
}

func (d *Privacy) Identify(ctx context.Context, payload models.IdentifyPayload) error {
	id := payload.UserID
	if id == "" {
		id = payload.AnonymousID
	}
	allowed, reason := d.canTrack(ctx, id)
	if !allowed {
		d.block(ctx, "identify", reason)
		return nil
	}
	payload.UserID = d.hash(payload.UserID)
	payload.AnonymousID = d.hash(payload.AnonymousID)
	payload.Context = d.anonymizeContext(payload.Context)
	return d.inner.Identify(ctx, payload)
}

func (d *Privacy) Group(ctx context.Context, payload models.GroupPayload) error {
	allowed, reason := d.canTrack(ctx, payload.UserID)
	if !allowed {
		d.block(ctx, "group", reason)
		return nil
	}
	payload.UserID = d.hash(payload.UserID)
	payload.Context = d.anonymizeContext(payload.Context)
	return d.inner.Group(ctx, payload)
}

func (d *Privacy) Page(ctx context.Context, payload models.PagePayload) error {
	allowed, reason := d.canTrack(ctx, payload.UserID)
	if !allowed {
		d.block(ctx, "page", reason)
		return nil
	}
	payload.UserID = d.hash(payload.UserID)
	payload.Context = d.anonymizeContext(payload.Context)
	return d.inner.Page(ctx, payload)
}

func (d *Privacy) Flush(ctx context.Context) error {
	return d.inner.Flush(ctx)
}

func (d *Privacy) Destroy(ctx context.Context) error {
	return d.inner.Destroy(ctx)
}

// canTrack decides whether this call may proceed. A consent store error
// fails closed: with the user's wishes unknown, nothing is sent.
func (d *Privacy) canTrack(ctx context.Context, identifier string) (bool, string) {
	if d.cfg.RespectDoNotTrack && consent.IsDoNotTrack(ctx) {
		return false, "do_not_track"
	}

	status, err := d.store.Get(ctx, identifier)
	if err != nil {
		d.logger.WarnwCtx(ctx, "Consent lookup failed, blocking dispatch",
			"provider", d.inner.Name(),
			"error", err,
		)
		return false, "consent_lookup_failed"
	}

	if status == nil {
		if d.cfg.RequireCookieConsent {
			return false, "no_consent"
		}
		return true, ""
	}

	if d.cfg.CCPAMode && !status.Granted {
		return false, "opt_out"
	}

	if !status.Allows(d.category) {
		return false, "consent_withheld"
	}

	return true, ""
}

func (d *Privacy) block(ctx context.Context, operation, reason string) {
	metrics.ConsentBlockedTotal.WithLabelValues(d.inner.Name(), operation, reason).Inc()
	d.logger.DebugwCtx(ctx, "Dispatch suppressed by privacy filter",
		"provider", d.inner.Name(),
		"operation", operation,
		"reason", reason,
	)
}

func (d *Privacy) anonymizeEvent(event models.Event) models.Event {
	out := event.Clone()
	out.UserID = d.hash(out.UserID)
	out.AnonymousID = d.hash(out.AnonymousID)
	out.Context = d.anonymizeContext(out.Context)
	return out
}

func (d *Privacy) anonymizeContext(ctx *models.EventContext) *models.EventContext {
	if ctx == nil || ctx.User == nil {
		return ctx
	}
	out := *ctx
	user := *ctx.User
	user.Email = d.hash(user.Email)
	user.IP = validation.TruncateIP(user.IP)
	out.User = &user
	return &out
}

func (d *Privacy) hash(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(d.cfg.HashSalt + value))
	return hex.EncodeToString(sum[:])
}
