package validate

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/pavelanni/labgrader/internal/model"
)

func TestNameEmailSilent(t *testing.T) {
	tests := []struct {
		name      string
		pName     any
		pEmail    any
		wantCheck string
	}{
		{"valid", "Ada Lovelace", "ada@example.org", ""},
		{"missing both", nil, nil, "name provided?"},
		{"missing email", "Ada", nil, "email provided?"},
		{"name not a string", 42, "ada@example.org", "is name a str?"},
		{"email not a string", "Ada", []string{"a@b"}, "is email a str?"},
		{"placeholder name", "First Last", "ada@example.org", "is name set?"},
		{"placeholder email", "Ada", "first.last@domain.com", "is email set?"},
		{"both placeholders", model.PlaceholderName, model.PlaceholderEmail, "is name set?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := NameEmail(&out, tt.pName, tt.pEmail, true)
			if out.Len() != 0 {
				t.Errorf("silent mode printed %q", out.String())
			}
			if tt.wantCheck == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ce *CheckError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *CheckError, got %v", err)
			}
			if ce.Check != tt.wantCheck {
				t.Errorf("failed check = %q, want %q", ce.Check, tt.wantCheck)
			}
		})
	}
}

func TestNameEmailReporting(t *testing.T) {
	var out bytes.Buffer
	err := NameEmail(&out, "First Last", "ada@example.org", false)
	if err != nil {
		t.Fatalf("reporting mode returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != len(checks) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(checks), out.String())
	}
	if !strings.HasPrefix(lines[0], "👍") {
		t.Errorf("first line = %q, want a pass", lines[0])
	}
	if !strings.Contains(lines[4], "❌  is name set?") {
		t.Errorf("line 5 = %q, want name placeholder failure", lines[4])
	}
	if !strings.HasPrefix(lines[5], "👍") {
		t.Errorf("last line = %q, want a pass", lines[5])
	}
}

func TestParticipant(t *testing.T) {
	if err := Participant(model.Participant{Name: "Ada", Email: "ada@example.org"}); err != nil {
		t.Errorf("Participant() = %v, want nil", err)
	}
	if err := Participant(model.Participant{Name: "Ada", Email: model.PlaceholderEmail}); err == nil {
		t.Error("Participant() with placeholder email should fail")
	}

	var ce *CheckError
	err := Participant(model.Participant{Name: "Ada"})
	if !errors.As(err, &ce) || ce.Check != "email provided?" {
		t.Errorf("Participant() with empty email = %v, want email provided? failure", err)
	}
}
