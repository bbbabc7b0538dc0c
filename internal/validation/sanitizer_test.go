package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"relay/pkg/models"
)

func TestSanitizeMapDropsPIIKeys(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		key     string
		dropped bool
	}{
		{"password", true},
		{"user_password", true},
		{"ssn", true},
		{"creditCard", true},
		{"phone_number", true},
		{"shipping_address", true},
		{"api_key", true},
		{"authToken", true},
		{"amount", false},
		{"plan", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			out := s.SanitizeMap(map[string]interface{}{tt.key: "value"}, 0)
			_, kept := out[tt.key]
			assert.Equal(t, !tt.dropped, kept)
		})
	}
}

func TestSanitizeMapDropsPIIValues(t *testing.T) {
	s := NewSanitizer()

	out := s.SanitizeMap(map[string]interface{}{
		"contact":  "jane.doe@example.com",
		"hotline":  "+1 (555) 123-4567",
		"greeting": "hello world",
	}, 0)

	assert.NotContains(t, out, "contact")
	assert.NotContains(t, out, "hotline")
	assert.Equal(t, "hello world", out["greeting"])
}

func TestSanitizeMapDropsOversizedStructures(t *testing.T) {
	s := NewSanitizer()

	bigArray := make([]interface{}, 101)
	for i := range bigArray {
		bigArray[i] = i
	}
	bigObject := make(map[string]interface{})
	for i := 0; i < 21; i++ {
		bigObject[string(rune('a'+i))] = i
	}

	out := s.SanitizeMap(map[string]interface{}{
		"items":    bigArray,
		"details":  bigObject,
		"small":    []interface{}{1, 2, 3},
		"shallow":  map[string]interface{}{"k": "v"},
	}, 0)

	assert.NotContains(t, out, "items")
	assert.NotContains(t, out, "details")
	assert.Contains(t, out, "small")
	assert.Contains(t, out, "shallow")
}

func TestSanitizeMapRecursesIntoNestedMaps(t *testing.T) {
	s := NewSanitizer()

	out := s.SanitizeMap(map[string]interface{}{
		"nested": map[string]interface{}{
			"password": "secret",
			"ok":       "fine",
		},
	}, 0)

	nested, ok := out["nested"].(map[string]interface{})
	assert.True(t, ok)
	assert.NotContains(t, nested, "password")
	assert.Equal(t, "fine", nested["ok"])
}

func TestTruncateIP(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ipv4", "203.0.113.42", "203.0.113.0"},
		{"ipv4 already masked", "10.1.2.0", "10.1.2.0"},
		{"ipv6", "2001:db8:85a3:8d3:1319:8a2e:370:7348", "2001:db8:85a3:8d3::"},
		{"garbage", "not-an-ip", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateIP(tt.in))
		})
	}
}

func TestSanitizeContextTruncatesIP(t *testing.T) {
	s := NewSanitizer()

	ctx := s.SanitizeContext(models.EventContext{
		User: &models.UserContext{IP: "198.51.100.7", Email: "x@example.com"},
	})

	assert.Equal(t, "198.51.100.0", ctx.User.IP)
	// Email survives sanitization here; the privacy decorator hashes it
	// before dispatch when consent requires anonymization.
	assert.Equal(t, "x@example.com", ctx.User.Email)
}
