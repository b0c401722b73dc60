package engine

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/lazypower/hebbian/internal/store"
)

// ValidationError reports input the engine refused before touching the store.
type ValidationError struct {
	Op     string
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: invalid %s: %s", e.Op, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: invalid %s %q: %s", e.Op, e.Field, e.Value, e.Reason)
}

// ErrNeuronNotFound is returned when an operation names a neuron that does
// not exist.
var ErrNeuronNotFound = errors.New("neuron not found")

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalid(op, field, value, reason string) *ValidationError {
	return &ValidationError{Op: op, Field: field, Value: value, Reason: reason}
}

// ParseNeuronType converts user input into a neuron type.
func ParseNeuronType(s string) (store.NeuronType, error) {
	t := store.NeuronType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", invalid("parse", "type", s, "must be one of file, tool, error, semantic")
	}
	return t, nil
}

// maxPathLen bounds identifiers; anything longer is not a path or tool name.
const maxPathLen = 4096

func validateIdentity(op string, typ store.NeuronType, path string) (string, error) {
	if !typ.Valid() {
		return "", invalid(op, "type", string(typ), "must be one of file, tool, error, semantic")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "", invalid(op, "path", "", "must not be empty")
	}
	if len(path) > maxPathLen {
		return "", invalid(op, "path", truncateRunes(path, 64), fmt.Sprintf("longer than %d bytes", maxPathLen))
	}
	if strings.ContainsRune(path, 0) {
		return "", invalid(op, "path", path, "contains NUL")
	}
	return path, nil
}

func validateVector(op string, vec []float64) error {
	if len(vec) == 0 {
		return invalid(op, "embedding", "", "must not be empty")
	}
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid(op, "embedding", "", fmt.Sprintf("component %d is not finite", i))
		}
	}
	return nil
}
