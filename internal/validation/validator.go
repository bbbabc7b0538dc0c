package validation

import (
	"fmt"

	"relay/internal/constants"
	"relay/pkg/errors"
	"relay/pkg/metrics"
	"relay/pkg/models"
)

// Result is the outcome of validating one event or payload. Validation
// never panics and never returns a Go error for malformed input; callers
// inspect Valid and log the collected field errors.
type Result struct {
	Valid     bool
	Errors    []FieldError
	Sanitized *models.Event
}

type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Err folds the field errors into a single coded validation error, or nil.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	details := make(map[string]interface{}, len(r.Errors))
	for _, fe := range r.Errors {
		details[fe.Field] = fe.Message
	}
	return errors.ErrValidation.WithDetails(details)
}

type Validator struct {
	sanitizer *Sanitizer
}

func NewValidator() *Validator {
	return &Validator{sanitizer: NewSanitizer()}
}

// ValidateEvent checks required fields and shape, then produces a
// sanitized copy. The input event is never modified.
func (v *Validator) ValidateEvent(event models.Event) Result {
	var errs []FieldError

	if event.Name == "" {
		errs = append(errs, FieldError{Field: "name", Message: "event name is required"})
	}
	if len(event.Name) > constants.MaxIdentifierLength {
		errs = append(errs, FieldError{Field: "name", Message: fmt.Sprintf("event name exceeds %d characters", constants.MaxIdentifierLength)})
	}
	if event.UserID == "" && event.AnonymousID == "" {
		errs = append(errs, FieldError{Field: "user_id", Message: "either user_id or anonymous_id is required"})
	}
	if event.Timestamp.IsZero() {
		errs = append(errs, FieldError{Field: "timestamp", Message: "timestamp is required"})
	}

	if len(errs) > 0 {
		for _, fe := range errs {
			metrics.ValidationFailuresTotal.WithLabelValues(constants.OperationTrack, fe.Field).Inc()
		}
		return Result{Valid: false, Errors: errs}
	}

	sanitized := v.sanitizer.SanitizeEvent(event)
	return Result{Valid: true, Sanitized: &sanitized}
}

// ValidateIdentify checks an identify payload and sanitizes its traits.
func (v *Validator) ValidateIdentify(p *models.IdentifyPayload) error {
	if p.UserID == "" && p.AnonymousID == "" {
		metrics.ValidationFailuresTotal.WithLabelValues(constants.OperationIdentify, "user_id").Inc()
		return errors.ErrValidation.WithDetail("user_id", "either user_id or anonymous_id is required")
	}
	if len(p.UserID) > constants.MaxIdentifierLength {
		p.UserID = p.UserID[:constants.MaxIdentifierLength]
	}
	p.Traits = v.sanitizer.SanitizeMap(p.Traits, 0)
	if p.Context != nil {
		ctx := v.sanitizer.SanitizeContext(*p.Context)
		p.Context = &ctx
	}
	return nil
}

// ValidateGroup checks a group payload and sanitizes its traits.
func (v *Validator) ValidateGroup(p *models.GroupPayload) error {
	if p.GroupID == "" {
		metrics.ValidationFailuresTotal.WithLabelValues(constants.OperationGroup, "group_id").Inc()
		return errors.ErrValidation.WithDetail("group_id", "group_id is required")
	}
	if len(p.GroupID) > constants.MaxIdentifierLength {
		p.GroupID = p.GroupID[:constants.MaxIdentifierLength]
	}
	p.Traits = v.sanitizer.SanitizeMap(p.Traits, 0)
	if p.Context != nil {
		ctx := v.sanitizer.SanitizeContext(*p.Context)
		p.Context = &ctx
	}
	return nil
}

// ValidatePage checks a page payload and sanitizes its properties.
func (v *Validator) ValidatePage(p *models.PagePayload) error {
	if p.Name == "" {
		metrics.ValidationFailuresTotal.WithLabelValues(constants.OperationPage, "name").Inc()
		return errors.ErrValidation.WithDetail("name", "page name is required")
	}
	if len(p.Name) > constants.MaxIdentifierLength {
		p.Name = p.Name[:constants.MaxIdentifierLength]
	}
	p.Properties = v.sanitizer.SanitizeMap(p.Properties, 0)
	if p.Context != nil {
		ctx := v.sanitizer.SanitizeContext(*p.Context)
		p.Context = &ctx
	}
	return nil
}
