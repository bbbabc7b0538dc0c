package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/pkg/errors"
	"relay/pkg/models"
)

func validEvent() models.Event {
	return models.Event{
		Name:      "purchase",
		UserID:    "user-1",
		Timestamp: time.Now(),
		Properties: map[string]interface{}{
			"amount": 10.5,
		},
	}
}

func TestValidateEvent(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		mutate  func(*models.Event)
		valid   bool
		field   string
	}{
		{
			name:   "valid event",
			mutate: func(e *models.Event) {},
			valid:  true,
		},
		{
			name:   "empty name",
			mutate: func(e *models.Event) { e.Name = "" },
			valid:  false,
			field:  "name",
		},
		{
			name: "missing identifiers",
			mutate: func(e *models.Event) {
				e.UserID = ""
				e.AnonymousID = ""
			},
			valid: false,
			field: "user_id",
		},
		{
			name:   "zero timestamp",
			mutate: func(e *models.Event) { e.Timestamp = time.Time{} },
			valid:  false,
			field:  "timestamp",
		},
		{
			name:   "anonymous id alone is enough",
			mutate: func(e *models.Event) { e.UserID = ""; e.AnonymousID = "anon-1" },
			valid:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := validEvent()
			tt.mutate(&event)

			result := v.ValidateEvent(event)
			assert.Equal(t, tt.valid, result.Valid)

			if tt.valid {
				require.NotNil(t, result.Sanitized)
				assert.NoError(t, result.Err())
			} else {
				require.NotEmpty(t, result.Errors)
				assert.Equal(t, tt.field, result.Errors[0].Field)
				assert.True(t, errors.IsValidation(result.Err()))
			}
		})
	}
}

func TestValidateEventDoesNotMutateInput(t *testing.T) {
	v := NewValidator()

	event := validEvent()
	event.Properties["password"] = "hunter2"

	result := v.ValidateEvent(event)
	require.True(t, result.Valid)

	_, kept := event.Properties["password"]
	assert.True(t, kept, "input event must be untouched")
	_, sanitized := result.Sanitized.Properties["password"]
	assert.False(t, sanitized, "sanitized copy must drop PII keys")
}

func TestValidateEventTruncatesIdentifiers(t *testing.T) {
	v := NewValidator()

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}

	event := validEvent()
	event.UserID = string(long)

	result := v.ValidateEvent(event)
	require.True(t, result.Valid)
	assert.Len(t, result.Sanitized.UserID, 255)
}

func TestValidateIdentify(t *testing.T) {
	v := NewValidator()

	p := models.IdentifyPayload{
		UserID: "user-1",
		Traits: map[string]interface{}{
			"plan":        "pro",
			"credit_card": "4111111111111111",
		},
		Timestamp: time.Now(),
	}
	require.NoError(t, v.ValidateIdentify(&p))
	assert.Contains(t, p.Traits, "plan")
	assert.NotContains(t, p.Traits, "credit_card")

	missing := models.IdentifyPayload{Timestamp: time.Now()}
	err := v.ValidateIdentify(&missing)
	assert.True(t, errors.IsValidation(err))
}

func TestValidateGroup(t *testing.T) {
	v := NewValidator()

	err := v.ValidateGroup(&models.GroupPayload{Timestamp: time.Now()})
	assert.True(t, errors.IsValidation(err))

	p := models.GroupPayload{GroupID: "acme", Timestamp: time.Now()}
	assert.NoError(t, v.ValidateGroup(&p))
}

func TestValidatePage(t *testing.T) {
	v := NewValidator()

	err := v.ValidatePage(&models.PagePayload{Timestamp: time.Now()})
	assert.True(t, errors.IsValidation(err))

	p := models.PagePayload{Name: "Pricing", Timestamp: time.Now()}
	assert.NoError(t, v.ValidatePage(&p))
}
