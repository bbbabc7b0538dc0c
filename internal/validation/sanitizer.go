package validation

import (
	"net"
	"regexp"
	"strings"

	"relay/internal/constants"
	"relay/pkg/metrics"
	"relay/pkg/models"
)

// piiKeyMarkers are substrings that flag a property key as carrying
// personally identifiable data. Matching is case-insensitive.
var piiKeyMarkers = []string{
	"password",
	"passwd",
	"secret",
	"ssn",
	"social_security",
	"credit_card",
	"creditcard",
	"card_number",
	"cvv",
	"phone",
	"address",
	"token",
	"api_key",
	"apikey",
	"auth",
}

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ().\-]{6,18}[0-9]$`)
)

// Sanitizer produces privacy-safe copies of events and payloads. It never
// mutates its input.
type Sanitizer struct{}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{}
}

func (s *Sanitizer) SanitizeEvent(event models.Event) models.Event {
	out := event.Clone()

	out.Name = truncate(out.Name, constants.MaxIdentifierLength)
	out.UserID = truncate(out.UserID, constants.MaxIdentifierLength)
	out.AnonymousID = truncate(out.AnonymousID, constants.MaxIdentifierLength)
	out.Properties = s.SanitizeMap(out.Properties, 0)

	if out.Context != nil {
		ctx := s.SanitizeContext(*out.Context)
		out.Context = &ctx
	}

	return out
}

// SanitizeMap prunes PII-marked keys, PII-looking string values, and
// oversized nested structures. depth guards recursion into nested maps.
func (s *Sanitizer) SanitizeMap(m map[string]interface{}, depth int) map[string]interface{} {
	if m == nil {
		return nil
	}

	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if isPIIKey(k) {
			metrics.SanitizerDroppedFieldsTotal.WithLabelValues("pii_key").Inc()
			continue
		}

		switch val := v.(type) {
		case string:
			if looksLikeEmail(val) || looksLikePhone(val) {
				metrics.SanitizerDroppedFieldsTotal.WithLabelValues("pii_value").Inc()
				continue
			}
			out[k] = truncate(val, constants.MaxPropertyLength)
		case map[string]interface{}:
			if len(val) > constants.MaxObjectKeys {
				metrics.SanitizerDroppedFieldsTotal.WithLabelValues("oversized_object").Inc()
				continue
			}
			out[k] = s.SanitizeMap(val, depth+1)
		case []interface{}:
			if len(val) > constants.MaxArrayItems {
				metrics.SanitizerDroppedFieldsTotal.WithLabelValues("oversized_array").Inc()
				continue
			}
			out[k] = s.sanitizeSlice(val, depth+1)
		default:
			out[k] = v
		}
	}
	return out
}

func (s *Sanitizer) sanitizeSlice(items []interface{}, depth int) []interface{} {
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		switch val := item.(type) {
		case string:
			if looksLikeEmail(val) || looksLikePhone(val) {
				metrics.SanitizerDroppedFieldsTotal.WithLabelValues("pii_value").Inc()
				continue
			}
			out = append(out, truncate(val, constants.MaxPropertyLength))
		case map[string]interface{}:
			if len(val) > constants.MaxObjectKeys {
				metrics.SanitizerDroppedFieldsTotal.WithLabelValues("oversized_object").Inc()
				continue
			}
			out = append(out, s.SanitizeMap(val, depth+1))
		default:
			out = append(out, item)
		}
	}
	return out
}

func (s *Sanitizer) SanitizeContext(ctx models.EventContext) models.EventContext {
	out := ctx

	if ctx.User != nil {
		user := *ctx.User
		user.IP = TruncateIP(user.IP)
		out.User = &user
	}

	if ctx.Page != nil {
		page := *ctx.Page
		page.URL = truncate(page.URL, constants.MaxPropertyLength)
		page.Referrer = truncate(page.Referrer, constants.MaxPropertyLength)
		page.Title = truncate(page.Title, constants.MaxIdentifierLength)
		out.Page = &page
	}

	return out
}

// TruncateIP reduces an IP address to network-prefix granularity: the
// last IPv4 octet is zeroed, the last 64 bits of an IPv6 address are
// zeroed. Unparseable input is dropped entirely.
func TruncateIP(ip string) string {
	if ip == "" {
		return ""
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}

	if v4 := parsed.To4(); v4 != nil {
		masked := v4.Mask(net.CIDRMask(24, 32))
		return masked.String()
	}

	masked := parsed.Mask(net.CIDRMask(64, 128))
	return masked.String()
}

func isPIIKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range piiKeyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func looksLikeEmail(s string) bool {
	return emailPattern.MatchString(s)
}

func looksLikePhone(s string) bool {
	return phonePattern.MatchString(s)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
