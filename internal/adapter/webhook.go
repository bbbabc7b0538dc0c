package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"relay/internal/config"
	"relay/internal/constants"
	"relay/internal/logger"
	"relay/pkg/errors"
	"relay/pkg/models"
)

// WebhookAdapter delivers items as JSON POSTs to a configured endpoint.
// It also serves as the reference implementation of the Adapter contract.
type WebhookAdapter struct {
	name   string
	cfg    config.ProviderConfig
	client *http.Client
	logger logger.Logger

	initOnce  sync.Once
	destroyMu sync.Mutex
	destroyed bool
}

func NewWebhookAdapter(name string, cfg config.ProviderConfig, log logger.Logger) *WebhookAdapter {
	return &WebhookAdapter{
		name:   name,
		cfg:    cfg,
		logger: log,
		client: &http.Client{Timeout: constants.DefaultHTTPTimeout},
	}
}

func (a *WebhookAdapter) Name() string {
	return a.name
}

func (a *WebhookAdapter) Initialize(ctx context.Context) error {
	var err error
	a.initOnce.Do(func() {
		if a.cfg.Endpoint == "" && a.cfg.Enabled {
			err = errors.ErrConstruction.WithDetail("message", "webhook endpoint is not configured")
			return
		}
		a.logger.DebugwCtx(ctx, "Webhook adapter initialized",
			"provider", a.name,
			"endpoint", a.cfg.Endpoint,
		)
	})
	return err
}

func (a *WebhookAdapter) Track(ctx context.Context, event models.Event) error {
	return a.send(ctx, TrackItem(event))
}

func (a *WebhookAdapter) Identify(ctx context.Context, payload models.IdentifyPayload) error {
	return a.send(ctx, IdentifyItem(payload))
}

func (a *WebhookAdapter) Group(ctx context.Context, payload models.GroupPayload) error {
	return a.send(ctx, GroupItem(payload))
}

func (a *WebhookAdapter) Page(ctx context.Context, payload models.PagePayload) error {
	return a.send(ctx, PageItem(payload))
}

// SendBatch posts the whole batch to the batch endpoint when one is
// configured, falling back to per-item posts otherwise.
func (a *WebhookAdapter) SendBatch(ctx context.Context, items []Item) error {
	if !a.cfg.Enabled {
		return nil
	}
	if a.cfg.BatchEndpoint == "" {
		for _, item := range items {
			if err := a.send(ctx, item); err != nil {
				return err
			}
		}
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{"batch": items})
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}
	return a.post(ctx, a.cfg.BatchEndpoint, body)
}

func (a *WebhookAdapter) Flush(ctx context.Context) error {
	// No internal queue; buffering is the batching decorator's job.
	return nil
}

func (a *WebhookAdapter) Destroy(ctx context.Context) error {
	a.destroyMu.Lock()
	defer a.destroyMu.Unlock()
	if a.destroyed {
		return nil
	}
	a.destroyed = true
	a.client.CloseIdleConnections()
	return nil
}

func (a *WebhookAdapter) send(ctx context.Context, item Item) error {
	if !a.cfg.Enabled {
		if a.cfg.Debug {
			a.logger.DebugwCtx(ctx, "Provider disabled, dropping item",
				"provider", a.name,
				"operation", item.Operation,
			)
		}
		return nil
	}

	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	return a.post(ctx, a.cfg.Endpoint, body)
}

func (a *WebhookAdapter) post(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}
	for k, v := range a.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		// Network errors and timeouts are retryable.
		return errors.ErrInternal.WithCause(err).AsRetryable()
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	return ClassifyStatus(resp.StatusCode)
}

// ClassifyStatus maps an HTTP response code to the retry taxonomy:
// 2xx is success, 429 and 408 and all 5xx are retryable, remaining 4xx
// are client errors and never retried.
func ClassifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return errors.ErrRateLimited.WithDetail("status", code).AsRetryable()
	case code == http.StatusRequestTimeout:
		return errors.ErrTimeout.WithDetail("status", code).AsRetryable()
	case code >= 500:
		return errors.ErrInternal.WithDetail("status", code).AsRetryable()
	default:
		return errors.ErrValidation.
			WithDetail("status", code).
			WithDetail("message", fmt.Sprintf("provider rejected request with status %d", code)).
			AsFatal()
	}
}
