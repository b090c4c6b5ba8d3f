package utils

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	var messages []string
	for _, err := range ve {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

func ValidateString(value, fieldName string, minLen, maxLen int, required bool) *ValidationError {
	if required && strings.TrimSpace(value) == "" {
		return &ValidationError{Field: fieldName, Message: "is required"}
	}

	if value != "" {
		if utf8.RuneCountInString(value) < minLen {
			return &ValidationError{Field: fieldName, Message: fmt.Sprintf("must be at least %d characters", minLen)}
		}
		if utf8.RuneCountInString(value) > maxLen {
			return &ValidationError{Field: fieldName, Message: fmt.Sprintf("must be at most %d characters", maxLen)}
		}
	}

	return nil
}

// ValidateTaxID accepts a Romanian CIF with or without the RO prefix:
// 2-10 digits, optionally preceded by "RO".
func ValidateTaxID(value, fieldName string) *ValidationError {
	v := strings.TrimSpace(strings.ToUpper(value))
	if v == "" {
		return &ValidationError{Field: fieldName, Message: "is required"}
	}
	v = strings.TrimPrefix(v, "RO")
	if len(v) < 2 || len(v) > 10 {
		return &ValidationError{Field: fieldName, Message: "must be 2-10 digits, optionally prefixed with RO"}
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return &ValidationError{Field: fieldName, Message: "must contain only digits after the RO prefix"}
		}
	}
	return nil
}
