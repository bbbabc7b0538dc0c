package models

import "time"

// ConsentStatus is the user's tracking permission, per category. It is
// owned by an external store; the core only reads and writes it through
// the consent.Store interface.
type ConsentStatus struct {
	Granted    bool            `json:"granted"`
	Categories map[string]bool `json:"categories,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Allows reports whether tracking is permitted for the given category.
// An absent category inherits the top-level grant.
func (c ConsentStatus) Allows(category string) bool {
	if !c.Granted {
		return false
	}
	if c.Categories == nil {
		return true
	}
	allowed, ok := c.Categories[category]
	if !ok {
		return true
	}
	return allowed
}
