package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// FieldError describes a single failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// DecodeJSON decodes the request body into dst and validates its struct tags.
// Failures are returned as 400 AppErrors.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return BadRequest("invalid payload", nil)
	}
	return ValidateStruct(dst)
}

// ValidateStruct runs validator tags on v.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return BadRequest("invalid payload", nil)
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: jsonFieldName(fe), Rule: fe.Tag(), Param: fe.Param()})
	}
	return BadRequest("Invalid request data", fields)
}

func jsonFieldName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return ""
	}
	return strings.ToLower(name[:1]) + name[1:]
}
