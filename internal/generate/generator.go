// Package generate wires loading, validation and VHDL emission into a
// single all-or-nothing file generation step.
package generate

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/born-ml/hdlgen/internal/loader"
	"github.com/born-ml/hdlgen/internal/parallel"
	"github.com/born-ml/hdlgen/internal/serialization"
	"github.com/born-ml/hdlgen/internal/vhdl"
)

// DefaultOutputFile is the output path used when a request names none.
const DefaultOutputFile = "mlp_generated.vhd"

// Config configures a Generator.
type Config struct {
	// Emitter holds the default entity and architecture names.
	Emitter vhdl.Config

	// Parallel controls how Batch spreads jobs over goroutines.
	Parallel parallel.Config

	// Logger receives progress diagnostics. Nil discards.
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults for generation.
func DefaultConfig() Config {
	return Config{
		Emitter:  vhdl.DefaultConfig(),
		Parallel: parallel.DefaultConfig(),
	}
}

// Request describes one generated file.
type Request struct {
	WeightsFile  string `json:"weights_file,omitempty"`
	BiasesFile   string `json:"biases_file,omitempty"`
	ModelFile    string `json:"model_file,omitempty"`
	OutputFile   string `json:"output_file,omitempty"`
	InputSize    int    `json:"input_size,omitempty"` // 0 derives the width from the weights.
	Entity       string `json:"entity,omitempty"`
	Architecture string `json:"architecture,omitempty"`
}

// output returns the request's output path with the default applied.
func (r Request) output() string {
	if r.OutputFile == "" {
		return DefaultOutputFile
	}
	return r.OutputFile
}

// Generator turns requests into VHDL files.
type Generator struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Generator.
func New(cfg Config) *Generator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Generator{cfg: cfg, logger: logger}
}

// Generate loads and validates the model, then writes the VHDL file.
//
// The output file is never opened when loading or validation fails. The
// text is written to a temporary file in the output directory and renamed
// into place only after the whole module was written, so a failed run
// leaves no output behind.
func (g *Generator) Generate(req Request) error {
	out := req.output()
	logger := g.logger.With("output", out)

	emitterCfg := g.cfg.Emitter
	if req.Entity != "" {
		emitterCfg.Entity = req.Entity
	}
	if req.Architecture != "" {
		emitterCfg.Architecture = req.Architecture
	}
	emitterCfg.Logger = logger
	emitter, err := vhdl.New(emitterCfg)
	if err != nil {
		return err
	}

	logger.Debug("loading model",
		"weights", req.WeightsFile, "biases", req.BiasesFile, "model", req.ModelFile)
	net, err := loader.Load(loader.Source{
		WeightsFile: req.WeightsFile,
		BiasesFile:  req.BiasesFile,
		ModelFile:   req.ModelFile,
	})
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}

	width, err := net.ResolveInputWidth(req.InputSize)
	if err != nil {
		return fmt.Errorf("failed to resolve input size: %w", err)
	}
	logger.Debug("model validated", "layers", net.Len(), "input_width", width)

	if err := serialization.WriteFileAtomic(out, func(w io.Writer) error {
		return emitter.Emit(w, net, width)
	}); err != nil {
		return err
	}

	logger.Info("VHDL code successfully generated", "layers", net.Len(), "input_width", width)
	return nil
}
