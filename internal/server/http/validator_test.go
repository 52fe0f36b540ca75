package http

import (
	"errors"
	"strings"
	"testing"

	"chessduel/internal/server/core"

	"github.com/go-playground/validator/v10"
)

func TestStrongPassword(t *testing.T) {
	tests := map[string]bool{
		"secret123":              true,
		"ab1":                    false,
		"correct-horse":          false,
		"12345678":               false,
		"пароль12":               true,
		strings.Repeat("a1", 65): false,
		strings.Repeat("a1", 64): true,
	}
	for pw, want := range tests {
		if got := strongPassword(pw); got != want {
			t.Errorf("strongPassword(%q) = %v, want %v", pw, got, want)
		}
	}
}

func TestDescribeUsesJSONNames(t *testing.T) {
	err := validate.Struct(&core.MoveRequest{From: "e2", To: "e44", Promotion: "k"})
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		t.Fatalf("err = %v", err)
	}
	want := "to must be exactly 2 characters; promotion must be one of [q r b n]"
	if got := describe(fieldErrs); got != want {
		t.Errorf("describe = %q, want %q", got, want)
	}

	if err := validate.Struct(&core.UndoRequest{}); err != nil {
		t.Errorf("empty undo rejected: %v", err)
	}
}
