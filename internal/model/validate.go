package model

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
)

// ErrValidation marks input that was rejected before any state changed.
var ErrValidation = eris.New("validation failed")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks struct tags on v and wraps failures in ErrValidation.
func Validate(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, strings.ToLower(fe.Field())+" ("+fe.Tag()+")")
		}
		return eris.Wrapf(ErrValidation, "invalid %s", strings.Join(fields, ", "))
	}
	return eris.Wrap(ErrValidation, err.Error())
}

// Invalid builds a validation error with a custom message.
func Invalid(format string, args ...any) error {
	return eris.Wrapf(ErrValidation, format, args...)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return eris.Is(err, ErrValidation)
}
