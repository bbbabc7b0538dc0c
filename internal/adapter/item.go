package adapter

import (
	"context"
	"fmt"

	"relay/internal/constants"
	"relay/pkg/models"
)

// Item is a single queued operation. Exactly one payload pointer is set,
// matching Operation. Attempts counts how many flushes have already
// failed for this item.
type Item struct {
	Operation string                  `json:"operation"`
	Event     *models.Event           `json:"event,omitempty"`
	Identify  *models.IdentifyPayload `json:"identify,omitempty"`
	Group     *models.GroupPayload    `json:"group,omitempty"`
	Page      *models.PagePayload     `json:"page,omitempty"`
	Attempts  int                     `json:"-"`
}

func TrackItem(event models.Event) Item {
	return Item{Operation: constants.OperationTrack, Event: &event}
}

func IdentifyItem(payload models.IdentifyPayload) Item {
	return Item{Operation: constants.OperationIdentify, Identify: &payload}
}

func GroupItem(payload models.GroupPayload) Item {
	return Item{Operation: constants.OperationGroup, Group: &payload}
}

func PageItem(payload models.PagePayload) Item {
	return Item{Operation: constants.OperationPage, Page: &payload}
}

// Send dispatches one item through the adapter's per-type call.
func Send(ctx context.Context, a Adapter, item Item) error {
	switch item.Operation {
	case constants.OperationTrack:
		return a.Track(ctx, *item.Event)
	case constants.OperationIdentify:
		return a.Identify(ctx, *item.Identify)
	case constants.OperationGroup:
		return a.Group(ctx, *item.Group)
	case constants.OperationPage:
		return a.Page(ctx, *item.Page)
	default:
		return fmt.Errorf("unknown operation: %s", item.Operation)
	}
}
