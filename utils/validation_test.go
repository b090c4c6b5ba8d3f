package utils

import "testing"

func TestValidateTaxID(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"plain digits", "12345678", false},
		{"with RO prefix", "RO12345678", false},
		{"lowercase prefix", "ro12345678", false},
		{"surrounding whitespace", " RO12345678 ", false},
		{"empty", "", true},
		{"too short", "1", true},
		{"too long", "12345678901", true},
		{"letters in body", "RO12AB5678", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTaxID(tt.value, "tax_id")
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTaxID(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestValidateString(t *testing.T) {
	if err := ValidateString("", "name", 1, 10, true); err == nil {
		t.Error("required empty string must fail")
	}
	if err := ValidateString("", "name", 1, 10, false); err != nil {
		t.Errorf("optional empty string must pass, got %v", err)
	}
	if err := ValidateString("abcdefghijk", "name", 1, 10, true); err == nil {
		t.Error("over-length string must fail")
	}
	if err := ValidateString("ănaf", "name", 4, 10, true); err != nil {
		t.Errorf("length must count runes, not bytes, got %v", err)
	}
}
