// Package schema validates record payloads against a declared record
// schema and supplies the schema-aware parts of the merge field walk.
package schema

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"time"

	"github.com/8arr3tt/have-we-met-sub007/pkg/errors"
	"github.com/8arr3tt/have-we-met-sub007/pkg/fieldpath"
	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
)

// Validator checks record payloads against one RecordSchema. A nil schema
// accepts every payload, so callers can thread an optional schema through
// without branching.
type Validator struct {
	schema *models.RecordSchema
}

// NewValidator creates a validator for the given schema.
func NewValidator(schema *models.RecordSchema) *Validator {
	return &Validator{schema: schema}
}

// Result is the outcome of validating one payload.
type Result struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
}

// Err converts an invalid result into a typed error naming the record.
// Valid results return nil.
func (r Result) Err(recordID string) error {
	if r.Valid {
		return nil
	}
	return &errors.SchemaValidationError{RecordID: recordID, Violations: r.Violations}
}

// Validate checks the payload's declared fields for type and format and
// enforces required paths. Fields the schema does not declare pass
// untouched; a present null satisfies required.
func (v *Validator) Validate(record models.Record) Result {
	if v == nil || v.schema == nil {
		return Result{Valid: true}
	}

	var violations []string
	for _, path := range v.schema.Required {
		if !fieldpath.Has(record, path) {
			violations = append(violations, fmt.Sprintf("field '%s': required field is missing", path))
		}
	}

	violations = append(violations, validateFields("", v.schema.Fields, record)...)

	return Result{Valid: len(violations) == 0, Violations: violations}
}

// validateFields walks the declared fields in name order so violation
// lists are stable.
func validateFields(prefix string, fields map[string]models.FieldDefinition, data map[string]any) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var violations []string
	for _, name := range names {
		value, ok := data[name]
		if !ok || value == nil {
			continue
		}

		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		violations = append(violations, validateValue(path, value, fields[name])...)
	}
	return violations
}

func validateValue(path string, value any, def models.FieldDefinition) []string {
	if !matchesType(value, def.Type) {
		return []string{fmt.Sprintf("field '%s': expected type %s, got %s", path, def.Type, typeName(value))}
	}

	var violations []string

	if def.Format != "" {
		if s, ok := value.(string); ok {
			if msg := checkFormat(s, def.Format); msg != "" {
				violations = append(violations, fmt.Sprintf("field '%s': %s", path, msg))
			}
		}
	}

	if def.Type == models.FieldTypeObject && len(def.Fields) > 0 {
		if nested, ok := value.(map[string]any); ok {
			violations = append(violations, validateFields(path, def.Fields, nested)...)
		}
	}

	if def.Type == models.FieldTypeArray && def.Items != nil {
		if items, ok := value.([]any); ok {
			for i, item := range items {
				if item == nil {
					continue
				}
				violations = append(violations, validateValue(fmt.Sprintf("%s[%d]", path, i), item, *def.Items)...)
			}
		}
	}

	return violations
}

// matchesType reports whether the value fits the declared field type.
// Unrecognized declared types are not enforced.
func matchesType(value any, fieldType string) bool {
	switch fieldType {
	case models.FieldTypeString:
		_, ok := value.(string)
		return ok
	case models.FieldTypeNumber:
		switch value.(type) {
		case float64, float32, int, int64, int32:
			return true
		}
		return false
	case models.FieldTypeBoolean:
		_, ok := value.(bool)
		return ok
	case models.FieldTypeDate:
		if _, ok := value.(time.Time); ok {
			return true
		}
		if s, ok := value.(string); ok {
			return dateRegex.MatchString(s) || dateTimeRegex.MatchString(s)
		}
		return false
	case models.FieldTypeArray:
		rv := reflect.ValueOf(value)
		return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
	case models.FieldTypeObject:
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

// typeName names a payload value in schema terms for violation messages.
func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return models.FieldTypeString
	case float64, float32, int, int64, int32:
		return models.FieldTypeNumber
	case bool:
		return models.FieldTypeBoolean
	case time.Time:
		return models.FieldTypeDate
	case map[string]any:
		return models.FieldTypeObject
	case []any:
		return models.FieldTypeArray
	default:
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			return models.FieldTypeArray
		}
		return fmt.Sprintf("%T", value)
	}
}

func checkFormat(value, format string) string {
	switch format {
	case "email":
		if !emailRegex.MatchString(value) {
			return "invalid email format"
		}
	case "date":
		if !dateRegex.MatchString(value) {
			return "invalid date format (expected YYYY-MM-DD)"
		}
	case "date-time":
		if !dateTimeRegex.MatchString(value) {
			return "invalid date-time format (expected ISO 8601)"
		}
	case "phone":
		if !validPhone(value) {
			return "invalid phone format"
		}
	case "uri", "url":
		if !uriRegex.MatchString(value) {
			return "invalid URI format"
		}
	case "uuid":
		if !uuidRegex.MatchString(value) {
			return "invalid UUID format"
		}
	}
	return ""
}

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	dateRegex     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dateTimeRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?)?$`)
	phoneRegex    = regexp.MustCompile(`^\+?[\d\s\-().]{6,20}$`)
	uriRegex      = regexp.MustCompile(`^(https?|ftp)://[^\s/$.?#].[^\s]*$`)
	uuidRegex     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// validPhone accepts dialable strings: an optional leading +, separators,
// and 7 to 15 digits.
func validPhone(s string) bool {
	if !phoneRegex.MatchString(s) {
		return false
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 7 && digits <= 15
}
