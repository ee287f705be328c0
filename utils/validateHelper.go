package utils

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	structValidatorOnce sync.Once
	structValidator     *validator.Validate
)

// ValidateStruct enforces the same `binding` tag rules gin applies, for
// callers that construct inputs outside an HTTP request (cmd tooling, tests,
// library use).
func ValidateStruct(v any) error {
	structValidatorOnce.Do(func() {
		structValidator = validator.New()
		structValidator.SetTagName("binding")
	})
	return structValidator.Struct(v)
}
