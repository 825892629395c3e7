package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/lexiflow/core/internal/pkg/apperr"
)

// Normalizer is implemented by requests that clean their own fields
// (trim, lower-case) before rules are checked.
type Normalizer interface {
	Normalize()
}

var engine = newEngine()

func newEngine() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	_ = v.RegisterValidation("jsonobject", isJSONObject)
	return v
}

// isJSONObject accepts an empty value or a JSON object.
func isJSONObject(fl validator.FieldLevel) bool {
	f := fl.Field()
	if f.Kind() != reflect.Slice || f.Type().Elem().Kind() != reflect.Uint8 {
		return false
	}
	raw := bytes.TrimSpace(f.Bytes())
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return true
	}
	return raw[0] == '{' && json.Valid(raw)
}

// Bind decodes the JSON body into dst and validates it.
func Bind(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperr.Validation("body", "json", "Request body must be valid JSON")
	}
	return Struct(dst)
}

// Struct normalizes v and checks its validate tags. Only the first failing
// field is reported.
func Struct(v any) error {
	if n, ok := v.(Normalizer); ok {
		n.Normalize()
	}
	err := engine.Struct(v)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return apperr.Validation("body", "invalid", err.Error())
	}
	return fromFieldError(ves[0])
}

func fromFieldError(fe validator.FieldError) *apperr.Error {
	field := fieldPath(fe)
	kind := fe.Kind()
	switch fe.Tag() {
	case "required":
		return apperr.Validation(field, "required", fmt.Sprintf("%s is required", field))
	case "min":
		switch kind {
		case reflect.String:
			return apperr.Validation(field, "min_length", fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
		case reflect.Slice, reflect.Array, reflect.Map:
			return apperr.Validation(field, "min_items", fmt.Sprintf("%s must contain at least %s items", field, fe.Param()))
		default:
			return apperr.Validation(field, "range", fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		}
	case "max":
		switch kind {
		case reflect.String:
			return apperr.Validation(field, "max_length", fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		case reflect.Slice, reflect.Array, reflect.Map:
			return apperr.Validation(field, "max_items", fmt.Sprintf("%s must contain at most %s items", field, fe.Param()))
		default:
			return apperr.Validation(field, "range", fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		}
	case "gte", "lte":
		return apperr.Validation(field, "range", fmt.Sprintf("%s is out of range", field))
	case "oneof":
		return apperr.Validation(field, "oneof", fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", ")))
	case "email", "uuid", "uuid4", "jsonobject":
		return apperr.Validation(field, "format", fmt.Sprintf("%s has an invalid format", field))
	default:
		return apperr.Validation(field, fe.Tag(), fmt.Sprintf("%s is invalid", field))
	}
}

// fieldPath drops the top-level struct name and embedded struct names:
// "WordRequest.Target.session_id" -> "session_id".
func fieldPath(fe validator.FieldError) string {
	parts := strings.Split(fe.Namespace(), ".")
	if len(parts) < 2 {
		return fe.Field()
	}
	kept := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		if p != "" && unicode.IsUpper(rune(p[0])) {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return fe.Field()
	}
	return strings.Join(kept, ".")
}
