package vhdl

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Config controls the names used in the generated design unit.
type Config struct {
	Entity       string       // Entity name (default "MLP").
	Architecture string       // Architecture name (default "Behavioral").
	Logger       *slog.Logger // Diagnostics sink; nil discards.
}

// DefaultConfig returns the MLP/Behavioral naming.
func DefaultConfig() Config {
	return Config{
		Entity:       "MLP",
		Architecture: "Behavioral",
	}
}

// basicIdentifier matches a VHDL basic identifier: a letter followed by
// letters, digits and single underscores, not ending in an underscore.
var basicIdentifier = regexp.MustCompile(`^[A-Za-z](_?[A-Za-z0-9])*$`)

// reserved holds VHDL reserved words that could plausibly be picked as a
// unit name, plus the identifiers the generator declares itself.
var reserved = map[string]bool{
	"architecture": true, "begin": true, "end": true, "entity": true,
	"is": true, "of": true, "port": true, "process": true, "signal": true,
	"variable": true, "constant": true, "type": true, "array": true,
	"library": true, "use": true, "in": true, "out": true, "loop": true,
	"for": true, "if": true, "then": true, "else": true, "to": true,
	"downto": true, "all": true, "and": true, "or": true, "not": true,
	"input_vec": true, "output_bit": true, "sum_val": true,
}

// Validate checks that the entity and architecture names are usable.
func (c Config) Validate() error {
	for _, f := range []struct{ field, value string }{
		{"entity", c.Entity},
		{"architecture", c.Architecture},
	} {
		if !basicIdentifier.MatchString(f.value) {
			return fmt.Errorf("invalid %s name %q: must be a VHDL basic identifier", f.field, f.value)
		}
		if reserved[strings.ToLower(f.value)] {
			return fmt.Errorf("invalid %s name %q: reserved word", f.field, f.value)
		}
	}
	return nil
}
