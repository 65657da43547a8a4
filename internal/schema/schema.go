// Package schema validates upstream payloads before any adapter projects
// fields out of them. Validation is structural only: required fields,
// primitive types, non-empty and equal-length sequences. Range checks belong
// elsewhere.
//
// Every failure is a *SchemaViolation naming the offending field by its
// upstream JSON path, e.g. "daily.time[2]".
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrSchemaViolation matches any *SchemaViolation via errors.Is.
var ErrSchemaViolation = errors.New("schema violation")

// SchemaViolation reports a malformed upstream payload.
type SchemaViolation struct {
	Source string // upstream name, e.g. "forecast"
	Path   string // JSON path of the offending field; "$" for the document itself
	Rule   string // failed rule: required, min, eqlen, unique, type, syntax, ...
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("schema violation in %s payload at %s: %s", e.Source, e.Path, e.Rule)
}

func (e *SchemaViolation) Is(target error) bool {
	return target == ErrSchemaViolation
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report upstream field names, not Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	v.RegisterStructValidation(forecastDailyRules, ForecastDaily{})
	return v
}

// decode unmarshals raw into T and runs the structural rules on it.
func decode[T any](source string, raw []byte) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fromJSONError(source, err)
	}
	if err := check(source, out); err != nil {
		return out, err
	}
	return out, nil
}

// check runs the structural rules on an already-built value.
func check(source string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &SchemaViolation{Source: source, Path: trimRoot(fe.Namespace()), Rule: fe.Tag()}
	}
	return &SchemaViolation{Source: source, Path: "$", Rule: err.Error()}
}

func fromJSONError(source string, err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		return &SchemaViolation{Source: source, Path: "$", Rule: "syntax"}
	case errors.As(err, &typeErr):
		path := typeErr.Field
		if path == "" {
			path = "$"
		}
		return &SchemaViolation{Source: source, Path: path, Rule: "type:" + typeErr.Type.String()}
	default:
		return &SchemaViolation{Source: source, Path: "$", Rule: err.Error()}
	}
}

// trimRoot drops the Go type name validator puts in front of every namespace.
func trimRoot(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
