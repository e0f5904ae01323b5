// Package validator holds the shared go-playground validator with the
// project's custom tags.
package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var weekdayNames = map[string]struct{}{
	"mon": {}, "tue": {}, "wed": {}, "thu": {}, "fri": {}, "sat": {}, "sun": {},
}

// Validate is safe for concurrent use. Errors name fields by their json,
// form or yaml tag.
var Validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(fieldName)
	// weekday: three-letter day name, any case.
	_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		_, ok := weekdayNames[strings.ToLower(strings.TrimSpace(fl.Field().String()))]
		return ok
	})
	return v
}

func fieldName(f reflect.StructField) string {
	for _, key := range []string{"json", "form", "yaml"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}
