package redact_test

import (
	"testing"

	"github.com/MacielDouglas/direcciones-sub001/internal/app/system/redact"
)

func TestComplement(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"nothing to mask", "portão azul, fundos", "portão azul, fundos"},
		{"single term", "familia peruana", "familia *******"},
		{"case insensitive", "Vive un Anciano", "Vive un *******"},
		{"plural", "dos chinos en el 2do piso", "dos ****** en el 2do piso"},
		{"adjacent terms", "pareja boliviana anciana", "pareja ********* *******"},
		{"accented term", "familia indígena", "familia ********"},
		{"embedded word not masked", "machinoso", "machinoso"},
		{"line edges", "chino", "*****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := redact.Complement(tt.input); got != tt.want {
				t.Errorf("Complement(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestContains(t *testing.T) {
	if !redact.Contains("senhora idosa") {
		t.Error("expected idosa to be detected")
	}
	if redact.Contains("casa de esquina") {
		t.Error("expected no sensitive term")
	}
}
