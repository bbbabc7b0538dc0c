package audit

import (
	"context"
	"time"

	"relay/pkg/models"
)

// DispatchRecord is one orchestrated operation as it completed, kept for
// offline debugging of delivery behaviour.
type DispatchRecord struct {
	ID         string                   `bson:"_id,omitempty"`
	Operation  string                   `bson:"operation"`
	EventName  string                   `bson:"event_name,omitempty"`
	Identifier string                   `bson:"identifier,omitempty"`
	Strategy   string                   `bson:"strategy"`
	Success    bool                     `bson:"success"`
	Providers  map[string]ProviderEntry `bson:"providers"`
	DurationMs int64                    `bson:"duration_ms"`
	CreatedAt  time.Time                `bson:"created_at"`
}

type ProviderEntry struct {
	Success    bool   `bson:"success"`
	Error      string `bson:"error,omitempty"`
	Loaded     bool   `bson:"loaded"`
	DurationMs int64  `bson:"duration_ms"`
}

// Store records dispatch outcomes. Recording is best effort; a failed
// write never affects the dispatch result.
type Store interface {
	Record(ctx context.Context, record DispatchRecord) error
}

// NewRecord flattens an execution result into a storable record.
func NewRecord(operation, eventName, identifier, strategy string, result models.ExecutionResult) DispatchRecord {
	providers := make(map[string]ProviderEntry, len(result.PerProvider))
	for name, pr := range result.PerProvider {
		providers[name] = ProviderEntry{
			Success:    pr.Success,
			Error:      pr.Error,
			Loaded:     pr.Loaded,
			DurationMs: pr.Duration.Milliseconds(),
		}
	}
	return DispatchRecord{
		Operation:  operation,
		EventName:  eventName,
		Identifier: identifier,
		Strategy:   strategy,
		Success:    result.Success,
		Providers:  providers,
		DurationMs: result.Duration.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
}

// NopStore discards records. Used when no Mongo database is configured.
type NopStore struct{}

func (NopStore) Record(ctx context.Context, record DispatchRecord) error {
	return nil
}
