// Package validate wraps a shared go-playground validator for request DTOs.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "usiverify/pkg/domain-errors"
)

// v is initialised once; custom registrations belong in init.
var v = validator.New(validator.WithRequiredStructEnabled())

// Struct validates s against its validate tags. Failures are returned as a
// single CodeValidation error naming every failing field.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "validation failed")
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
	}
	return dErrors.New(dErrors.CodeValidation, strings.Join(msgs, "; "))
}
