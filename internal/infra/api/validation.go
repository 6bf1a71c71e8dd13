// internal/infra/api/validation.go
package api

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"lesson_planner_bot/internal/domain/chat"
	"lesson_planner_bot/internal/domain/classroom"
)

// newValidator returns a validator that reports JSON field names and knows
// the backend's enumerations.
func newValidator() *validator.Validate {
	v := validator.New()

	// Use JSON tag names for errors instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("cefr", oneOfValidation(classroom.CefrLevels))
	_ = v.RegisterValidation("special_need", oneOfValidation(classroom.SpecialNeeds))
	_ = v.RegisterValidation("assessment_type", oneOfValidation(chat.AssessmentTypes))
	return v
}

func oneOfValidation[T ~string](allowed []T) validator.Func {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[string(a)] = struct{}{}
	}
	return func(fl validator.FieldLevel) bool {
		_, ok := set[fl.Field().String()]
		return ok
	}
}
