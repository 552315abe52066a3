package manifest

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My_Skill--Name!!", "my-skill-name"},
		{"myPackage", "my-package"},
		{"octo/Code Review", "code-review"},
		{"already-fine", "already-fine"},
		{"  Spaced  Out  ", "spaced-out"},
		{"UPPER", "upper"},
		{"a_b_c", "a-b-c"},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if err != nil {
			t.Errorf("Normalize(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if err := ValidateName(got); err != nil {
			t.Errorf("Normalize(%q) produced invalid name %q: %v", tt.in, got, err)
		}
	}
}

func TestNormalizeEmptyResult(t *testing.T) {
	if _, err := Normalize("!!!"); err == nil {
		t.Error("Normalize of all-invalid input succeeded, want error")
	}
}

func TestNormalizeTruncates(t *testing.T) {
	long := strings.Repeat("a", 100)
	got, err := Normalize(long)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(got) != 64 {
		t.Errorf("len = %d, want 64", len(got))
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"a", "abc", "my-skill", "a1-b2"}
	for _, n := range valid {
		if err := ValidateName(n); err != nil {
			t.Errorf("ValidateName(%q): %v", n, err)
		}
	}
	invalid := []string{"", "-leading", "trailing-", "double--hyphen", "Upper", "has_underscore", strings.Repeat("a", 65)}
	for _, n := range invalid {
		if err := ValidateName(n); err == nil {
			t.Errorf("ValidateName(%q) succeeded, want error", n)
		}
	}
}
