package models

import "time"

// Event is a single analytics event. Once validated it is treated as
// immutable; sanitization produces a copy rather than mutating in place.
type Event struct {
	Name        string                 `json:"name"`
	Properties  map[string]interface{} `json:"properties,omitempty"`
	UserID      string                 `json:"user_id,omitempty"`
	AnonymousID string                 `json:"anonymous_id,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Context     *EventContext          `json:"context,omitempty"`
}

// EventContext carries descriptive metadata captured at the call site.
// It is never mutated after creation.
type EventContext struct {
	Page     *PageContext     `json:"page,omitempty"`
	User     *UserContext     `json:"user,omitempty"`
	Device   *DeviceContext   `json:"device,omitempty"`
	Campaign *CampaignContext `json:"campaign,omitempty"`
	Session  *SessionContext  `json:"session,omitempty"`
}

type PageContext struct {
	URL      string `json:"url,omitempty"`
	Path     string `json:"path,omitempty"`
	Title    string `json:"title,omitempty"`
	Referrer string `json:"referrer,omitempty"`
	Search   string `json:"search,omitempty"`
}

type UserContext struct {
	Email  string `json:"email,omitempty"`
	IP     string `json:"ip,omitempty"`
	Locale string `json:"locale,omitempty"`
}

type DeviceContext struct {
	UserAgent string `json:"user_agent,omitempty"`
	OS        string `json:"os,omitempty"`
	Type      string `json:"type,omitempty"`
	ScreenW   int    `json:"screen_w,omitempty"`
	ScreenH   int    `json:"screen_h,omitempty"`
}

type CampaignContext struct {
	Source  string `json:"source,omitempty"`
	Medium  string `json:"medium,omitempty"`
	Name    string `json:"name,omitempty"`
	Term    string `json:"term,omitempty"`
	Content string `json:"content,omitempty"`
}

type SessionContext struct {
	ID        string    `json:"id,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Identifier returns the user id when present, otherwise the anonymous id.
func (e Event) Identifier() string {
	if e.UserID != "" {
		return e.UserID
	}
	return e.AnonymousID
}

// UserSegment reads the conventional segmentation property, if present.
func (e Event) UserSegment() string {
	if e.Properties == nil {
		return ""
	}
	if seg, ok := e.Properties["userSegment"].(string); ok {
		return seg
	}
	return ""
}

// Clone returns a deep copy of the event. Property maps are copied one
// level deep; nested values are shared since they are never mutated.
func (e Event) Clone() Event {
	out := e
	if e.Properties != nil {
		props := make(map[string]interface{}, len(e.Properties))
		for k, v := range e.Properties {
			props[k] = v
		}
		out.Properties = props
	}
	if e.Context != nil {
		ctx := *e.Context
		if e.Context.Page != nil {
			page := *e.Context.Page
			ctx.Page = &page
		}
		if e.Context.User != nil {
			user := *e.Context.User
			ctx.User = &user
		}
		if e.Context.Device != nil {
			dev := *e.Context.Device
			ctx.Device = &dev
		}
		if e.Context.Campaign != nil {
			camp := *e.Context.Campaign
			ctx.Campaign = &camp
		}
		if e.Context.Session != nil {
			sess := *e.Context.Session
			ctx.Session = &sess
		}
		out.Context = &ctx
	}
	return out
}

// IdentifyPayload associates a user id with a set of traits.
type IdentifyPayload struct {
	UserID      string                 `json:"user_id"`
	AnonymousID string                 `json:"anonymous_id,omitempty"`
	Traits      map[string]interface{} `json:"traits,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Context     *EventContext          `json:"context,omitempty"`
}

// GroupPayload associates a user with a group (company, team, account).
type GroupPayload struct {
	GroupID   string                 `json:"group_id"`
	UserID    string                 `json:"user_id,omitempty"`
	Traits    map[string]interface{} `json:"traits,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Context   *EventContext          `json:"context,omitempty"`
}

// PagePayload records a page or screen view.
type PagePayload struct {
	Name        string                 `json:"name"`
	UserID      string                 `json:"user_id,omitempty"`
	AnonymousID string                 `json:"anonymous_id,omitempty"`
	Properties  map[string]interface{} `json:"properties,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Context     *EventContext          `json:"context,omitempty"`
}
