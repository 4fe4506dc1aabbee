package models

import (
	"fmt"
	"strings"
)

// FieldPredicate compares a named contact attribute against a literal value.
// Config keys: "field" (attribute name), "operator", "value".
type FieldPredicate struct{}

func (p FieldPredicate) Evaluate(contact *Contact, config map[string]any) (bool, error) {
	field, _ := config["field"].(string)
	if field == "" {
		return false, fmt.Errorf("field predicate: missing field name")
	}

	operator, _ := config["operator"].(string)
	if operator == "" {
		operator = "eq"
	}

	actual, present := contact.Field(field)

	switch operator {
	case "exists":
		return present, nil
	case "empty":
		return !present || toString(actual) == "", nil
	}

	expected := toString(config["value"])
	got := toString(actual)

	switch operator {
	case "eq":
		return got == expected, nil
	case "neq":
		return got != expected, nil
	case "contains":
		return strings.Contains(got, expected), nil
	default:
		return false, fmt.Errorf("field predicate: unsupported operator %q", operator)
	}
}

func toString(v any) string {
	if v == nil {
		return ""
	}

	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", v)
}
