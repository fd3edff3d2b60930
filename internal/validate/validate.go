// Package validate checks the participant identity before anything is sent to a grading server.
package validate

import (
	"fmt"
	"io"
	"strings"

	"github.com/pavelanni/labgrader/internal/model"
)

// CheckError reports the first failing check in silent mode.
type CheckError struct {
	Check   string
	Details string
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("❌  %s - %s", e.Check, e.Details)
}

type check struct {
	name    string
	details string
	value   func(name, email any) any
	ok      func(v any) bool
}

func isPresent(v any) bool { return v != nil }

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func lacks(placeholder string) func(any) bool {
	return func(v any) bool {
		s, ok := v.(string)
		return ok && !strings.Contains(s, placeholder)
	}
}

func nameOf(name, _ any) any   { return name }
func emailOf(_, email any) any { return email }

// Order matters: silent mode stops at the first failure.
var checks = []check{
	{"name provided?", "You should provide a name", nameOf, isPresent},
	{"email provided?", "You should provide an email address", emailOf, isPresent},
	{"is name a str?", "The name should be a string", nameOf, isString},
	{"is email a str?", "The email address should be a string", emailOf, isString},
	{"is name set?", "You should write your name in the name variable", nameOf, lacks(model.PlaceholderName)},
	{"is email set?", "You should write your email address in the email variable", emailOf, lacks(model.PlaceholderEmail)},
}

// NameEmail validates a participant identity. Values are untyped because they
// usually come straight from a config file or notebook variable.
//
// In reporting mode every check is printed to w and the result is always nil.
// In silent mode nothing is printed and the first failing check is returned.
func NameEmail(w io.Writer, name, email any, silent bool) error {
	for _, c := range checks {
		if c.ok(c.value(name, email)) {
			if !silent {
				fmt.Fprintf(w, "👍  %s\n", c.name)
			}
			continue
		}
		err := &CheckError{Check: c.name, Details: c.details}
		if silent {
			return err
		}
		fmt.Fprintln(w, err.Error())
	}
	return nil
}

// Participant validates p in silent mode. Empty fields count as not provided.
func Participant(p model.Participant) error {
	return NameEmail(io.Discard, nilIfEmpty(p.Name), nilIfEmpty(p.Email), true)
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
