// Package generate translates integer MLP parameters into a synthesizable
// VHDL module.
//
// This package wraps the internal generate implementation and provides a
// clean public API for embedding the generator in other tools.
//
// Example usage:
//
//	import "github.com/born-ml/hdlgen/generate"
//
//	g := generate.New(generate.DefaultConfig())
//	err := g.Generate(generate.Request{
//	    WeightsFile: "weights.json",
//	    BiasesFile:  "biases.json",
//	    OutputFile:  "mlp_generated.vhd",
//	})
package generate

import (
	"github.com/born-ml/hdlgen/internal/generate"
	"github.com/born-ml/hdlgen/internal/model"
)

// DefaultOutputFile is the output path used when a Request names none.
const DefaultOutputFile = generate.DefaultOutputFile

// Errors returned by the generator. Use errors.Is to test for them.
var (
	ErrShape        = model.ErrShape
	ErrTypeMismatch = model.ErrTypeMismatch
	ErrIO           = model.ErrIO
)

// Config configures a Generator.
//
// Fields:
//   - Emitter: default entity and architecture names
//   - Parallel: worker settings used by Batch
//   - Logger: slog logger for diagnostics (nil = discard)
type Config = generate.Config

// DefaultConfig returns sensible defaults.
//
// Defaults:
//   - Entity: MLP
//   - Architecture: Behavioral
//   - Parallel: one worker per CPU
func DefaultConfig() Config {
	return generate.DefaultConfig()
}

// Request describes one generated file.
//
// Either WeightsFile and BiasesFile (JSON) or ModelFile (SafeTensors) must
// be set. InputSize 0 derives the input width from the first layer.
type Request = generate.Request

// Generator turns requests into VHDL files.
type Generator = generate.Generator

// New creates a new Generator.
func New(cfg Config) *Generator {
	return generate.New(cfg)
}

// LoadManifest reads a JSON list of requests for Generator.Batch.
func LoadManifest(path string) ([]Request, error) {
	return generate.LoadManifest(path)
}
