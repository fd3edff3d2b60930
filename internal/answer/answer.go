// Package answer defines the two accepted answer variants and their JSON encoding.
package answer

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Answer type names sent as answer_type.
const (
	TypeCircuit = "QuantumCircuit"
	TypePulse   = "PulseQobj"
)

// Answer is an opaque payload the grading service knows how to validate.
type Answer interface {
	Type() string
	Document() any
	isAnswer()
}

// Circuit is an assembled circuit description.
type Circuit struct {
	Qobj any
}

func (Circuit) Type() string    { return TypeCircuit }
func (c Circuit) Document() any { return c.Qobj }
func (Circuit) isAnswer()       {}

// PulseProgram is a pulse schedule description.
type PulseProgram struct {
	Qobj any
}

func (PulseProgram) Type() string    { return TypePulse }
func (p PulseProgram) Document() any { return p.Qobj }
func (PulseProgram) isAnswer()       {}

// From reports whether v is one of the accepted variants.
// Pointers to a variant are accepted; a nil pointer is not.
func From(v any) (Answer, bool) {
	switch a := v.(type) {
	case Circuit:
		return a, true
	case PulseProgram:
		return a, true
	case *Circuit:
		if a != nil {
			return *a, true
		}
	case *PulseProgram:
		if a != nil {
			return *a, true
		}
	}
	return nil, false
}

// ParseKind maps a CLI kind ("circuit", "pulse" or a full type name) to a type name.
func ParseKind(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "circuit", "quantumcircuit":
		return TypeCircuit, nil
	case "pulse", "pulseqobj":
		return TypePulse, nil
	}
	return "", fmt.Errorf("unknown answer kind %q (want circuit or pulse)", kind)
}

// Load reads a JSON document from path and wraps it in the variant named by kind.
func Load(path, kind string) (Answer, error) {
	typ, err := ParseKind(kind)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answer %s: %w", path, err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse answer %s: %w", path, err)
	}
	if typ == TypeCircuit {
		return Circuit{Qobj: doc}, nil
	}
	return PulseProgram{Qobj: doc}, nil
}
