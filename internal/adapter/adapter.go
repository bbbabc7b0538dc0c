package adapter

import (
	"context"

	"relay/pkg/models"
)

// Adapter is the capability surface every destination implements. A nil
// error from Track/Identify/Group/Page means the payload was accepted for
// delivery, not that delivery is confirmed.
//
// Adapters must treat a disabled provider config as a silent no-op
// success, and Destroy must be safe to call once after which the adapter
// is unusable.
type Adapter interface {
	Name() string
	Initialize(ctx context.Context) error
	Track(ctx context.Context, event models.Event) error
	Identify(ctx context.Context, payload models.IdentifyPayload) error
	Group(ctx context.Context, payload models.GroupPayload) error
	Page(ctx context.Context, payload models.PagePayload) error
	Flush(ctx context.Context) error
	Destroy(ctx context.Context) error
}

// BatchSender is implemented by adapters with a native batch call. The
// batching decorator prefers it over per-item dispatch when present.
type BatchSender interface {
	SendBatch(ctx context.Context, items []Item) error
}

// Loader constructs an adapter on demand. The orchestrator never builds
// adapters directly; each provider supplies a Loader in configuration and
// construction is deferred until the provider is first targeted.
type Loader func(ctx context.Context) (Adapter, error)
