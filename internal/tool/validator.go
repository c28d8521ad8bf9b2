package tool

import (
	"fmt"
	"sort"
	"strings"

	careErrors "github.com/carelane/carelane/internal/errors"
)

// validateObject checks an argument map against a JSON-Schema-like definition.
// It collects every offending field so the correction re-prompt can name them
// all at once instead of one per attempt.
func validateObject(schema map[string]interface{}, input map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	var offending []string

	// Check Required Fields
	if required, ok := schema["required"].([]interface{}); ok {
		for _, field := range required {
			fieldName, ok := field.(string)
			if !ok {
				continue // Malformed schema
			}
			if _, exists := input[fieldName]; !exists {
				offending = append(offending, fmt.Sprintf("%s (missing)", fieldName))
			}
		}
	} else if required, ok := schema["required"].([]string); ok {
		for _, fieldName := range required {
			if _, exists := input[fieldName]; !exists {
				offending = append(offending, fmt.Sprintf("%s (missing)", fieldName))
			}
		}
	}

	// Check Properties
	if properties, ok := schema["properties"].(map[string]interface{}); ok {
		for key, value := range input {
			propSchema, defined := properties[key]
			if !defined {
				// Extra fields are tolerated; the handler ignores them.
				continue
			}

			propSchemaMap, ok := propSchema.(map[string]interface{})
			if !ok {
				continue
			}

			if err := validateField(key, propSchemaMap, value); err != nil {
				offending = append(offending, err.Error())
			}
		}
	}

	if len(offending) > 0 {
		sort.Strings(offending)
		return fmt.Errorf("%w: %s", careErrors.ErrSchemaValidation, strings.Join(offending, "; "))
	}
	return nil
}

func validateField(fieldName string, schema map[string]interface{}, value interface{}) error {
	expectedType, _ := schema["type"].(string)

	switch expectedType {
	case "string":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%s (expected string, got %T)", fieldName, value)
		}
		if enum, ok := schema["enum"].([]string); ok && !containsString(enum, s) {
			return fmt.Errorf("%s (%q is not one of the allowed values)", fieldName, s)
		}
		if enum, ok := schema["enum"].([]interface{}); ok && !containsValue(enum, s) {
			return fmt.Errorf("%s (%q is not one of the allowed values)", fieldName, s)
		}
	case "number", "integer":
		// JSON unmarshals numbers to float64
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("%s (expected number, got %T)", fieldName, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s (expected boolean, got %T)", fieldName, value)
		}
	}

	return nil
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func containsValue(values []interface{}, target string) bool {
	for _, v := range values {
		if s, ok := v.(string); ok && s == target {
			return true
		}
	}
	return false
}
