// Package service implements the booking engine: availability matching, the
// session lifecycle and rating aggregation. Every operation runs its checks and
// writes in one repository.Store transaction and emits notifications only after
// the transaction commits.
package service

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/apperr"
	"github.com/Freeeeeet/tutorbook/internal/notify"
	"github.com/go-playground/validator/v10"
)

// Options are shared by all services.
type Options struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Location is the zone in which calendar dates and times of day of sessions
	// are evaluated against availability. Defaults to UTC.
	Location *time.Location
	Emitter  notify.Emitter
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Emitter == nil {
		o.Emitter = notify.Nop{}
	}
	return o
}

// NewValidator returns a validator that reports fields by their json names
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidationError converts validator output into a field-level apperr.
func ValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.KindValidation, "invalid input", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return apperr.Validation("invalid input", fields)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		if fe.Param() == "0" {
			return "must be positive"
		}
		return "must be greater than " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "nefield":
		return "must differ from " + fe.Param()
	}
	return "failed on " + fe.Tag()
}

func notFound(what string) error {
	return apperr.New(apperr.KindNotFound, what+" not found")
}
