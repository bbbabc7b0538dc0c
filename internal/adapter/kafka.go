package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"relay/internal/config"
	"relay/internal/constants"
	"relay/internal/logger"
	"relay/pkg/errors"
	"relay/pkg/models"
	"relay/pkg/tracing"
)

// KafkaAdapter publishes items to a Kafka topic, keyed by the event's
// user or anonymous identifier so one actor's events stay ordered within
// a partition.
type KafkaAdapter struct {
	name   string
	cfg    config.ProviderConfig
	writer *kafka.Writer
	logger logger.Logger

	initOnce  sync.Once
	destroyMu sync.Mutex
	destroyed bool
}

func NewKafkaAdapter(name string, cfg config.ProviderConfig, log logger.Logger) *KafkaAdapter {
	return &KafkaAdapter{
		name:   name,
		cfg:    cfg,
		logger: log,
	}
}

func (a *KafkaAdapter) Name() string {
	return a.name
}

func (a *KafkaAdapter) Initialize(ctx context.Context) error {
	var err error
	a.initOnce.Do(func() {
		if !a.cfg.Enabled {
			return
		}
		if len(a.cfg.Brokers) == 0 || a.cfg.Topic == "" {
			err = errors.ErrConstruction.WithDetail("message", "kafka brokers and topic are required")
			return
		}
		a.writer = &kafka.Writer{
			Addr:         kafka.TCP(a.cfg.Brokers...),
			Topic:        a.cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: constants.KafkaBatchTimeout,
			WriteTimeout: constants.KafkaWriteTimeout,
			Async:        false,
		}
		a.logger.DebugwCtx(ctx, "Kafka adapter initialized",
			"provider", a.name,
			"topic", a.cfg.Topic,
			"brokers", a.cfg.Brokers,
		)
	})
	return err
}

func (a *KafkaAdapter) Track(ctx context.Context, event models.Event) error {
	return a.publish(ctx, TrackItem(event))
}

func (a *KafkaAdapter) Identify(ctx context.Context, payload models.IdentifyPayload) error {
	return a.publish(ctx, IdentifyItem(payload))
}

func (a *KafkaAdapter) Group(ctx context.Context, payload models.GroupPayload) error {
	return a.publish(ctx, GroupItem(payload))
}

func (a *KafkaAdapter) Page(ctx context.Context, payload models.PagePayload) error {
	return a.publish(ctx, PageItem(payload))
}

// SendBatch writes the whole batch in a single WriteMessages call so the
// broker round trip is amortized across items.
func (a *KafkaAdapter) SendBatch(ctx context.Context, items []Item) error {
	if !a.cfg.Enabled {
		return nil
	}
	if a.writer == nil {
		return errors.ErrConstruction.WithDetail("message", "kafka adapter not initialized")
	}

	msgs := make([]kafka.Message, 0, len(items))
	for _, item := range items {
		msg, err := a.message(ctx, item)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	if err := a.writer.WriteMessages(ctx, msgs...); err != nil {
		return errors.ErrInternal.WithCause(err).AsRetryable()
	}
	return nil
}

func (a *KafkaAdapter) Flush(ctx context.Context) error {
	// The writer is synchronous; every publish is flushed on return.
	return nil
}

func (a *KafkaAdapter) Destroy(ctx context.Context) error {
	a.destroyMu.Lock()
	defer a.destroyMu.Unlock()
	if a.destroyed {
		return nil
	}
	a.destroyed = true
	if a.writer == nil {
		return nil
	}
	if err := a.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}

func (a *KafkaAdapter) publish(ctx context.Context, item Item) error {
	if !a.cfg.Enabled {
		if a.cfg.Debug {
			a.logger.DebugwCtx(ctx, "Provider disabled, dropping item",
				"provider", a.name,
				"operation", item.Operation,
			)
		}
		return nil
	}
	if a.writer == nil {
		return errors.ErrConstruction.WithDetail("message", "kafka adapter not initialized")
	}

	msg, err := a.message(ctx, item)
	if err != nil {
		return err
	}

	if err := a.writer.WriteMessages(ctx, msg); err != nil {
		return errors.ErrInternal.WithCause(err).AsRetryable()
	}
	return nil
}

func (a *KafkaAdapter) message(ctx context.Context, item Item) (kafka.Message, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal item: %w", err)
	}

	headers := []kafka.Header{}
	headers = tracing.InjectTraceContext(ctx, headers)

	return kafka.Message{
		Key:     []byte(itemKey(item)),
		Value:   body,
		Headers: headers,
		Time:    time.Now(),
	}, nil
}

func itemKey(item Item) string {
	switch item.Operation {
	case constants.OperationTrack:
		return item.Event.Identifier()
	case constants.OperationIdentify:
		if item.Identify.UserID != "" {
			return item.Identify.UserID
		}
		return item.Identify.AnonymousID
	case constants.OperationGroup:
		return item.Group.GroupID
	case constants.OperationPage:
		if item.Page.UserID != "" {
			return item.Page.UserID
		}
		return item.Page.AnonymousID
	default:
		return ""
	}
}
