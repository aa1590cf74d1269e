package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "Str0ng!Passw0rd", false},
		{"too short", "Sh0rt!pw", true},
		{"no uppercase", "all-l0wer-case!", true},
		{"no lowercase", "ALL-UPPER-C4SE!", true},
		{"no digit", "No-Digits-Here!", true},
		{"no special", "NoSpecials12345", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePassword(%q) = %v, wantErr %v", tt.password, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePassword_CollectsAllFailures(t *testing.T) {
	err := ValidatePassword("short")
	if err == nil {
		t.Fatal("expected validation error")
	}

	var validErr *PasswordValidationError
	if !errors.As(err, &validErr) {
		t.Fatalf("error type = %T, want *PasswordValidationError", err)
	}
	// short, no upper, no digit, no special
	if len(validErr.Messages) != 4 {
		t.Errorf("got %d messages, want 4: %v", len(validErr.Messages), validErr.Messages)
	}
}

func TestValidatePasswordOrError_ReturnsFirstMessage(t *testing.T) {
	err := ValidatePasswordOrError("short")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "12 characters") {
		t.Errorf("error = %q, want the length message first", err.Error())
	}
}
