package llmoutput

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("playwright_script", func(fl validator.FieldLevel) bool {
		return looksLikePlaywright(fl.Field().String())
	})
	return v
}

func looksLikePlaywright(script string) bool {
	if !strings.Contains(script, "@playwright/test") {
		return false
	}
	return strings.Contains(script, "test(") || strings.Contains(script, "test.describe")
}

// checkStruct runs struct rules and folds failures into se.
func checkStruct(s any, se *SchemaError) {
	err := validate.Struct(s)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		se.invalid("payload", err.Error())
		return
	}
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		se.invalid(fieldPath(fe.Namespace()), rule)
	}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
