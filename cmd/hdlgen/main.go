// Package main provides the hdlgen CLI.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/born-ml/hdlgen/generate"
	"github.com/born-ml/hdlgen/internal/loader"
	"github.com/born-ml/hdlgen/internal/parallel"
	"github.com/born-ml/hdlgen/internal/serialization"
	"github.com/born-ml/hdlgen/internal/sim"
)

const version = "v0.1.0-dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// command is one hdlgen subcommand.
type command struct {
	name  string
	usage string
	run   func(args []string, logger *slog.Logger, stdout, stderr io.Writer) error
}

var commands = []command{
	{"mlp", "Generate a VHDL module from MLP weights and biases", runMLP},
	{"pack", "Convert JSON weights and biases into a SafeTensors file", runPack},
	{"eval", "Evaluate the network on an input vector", runEval},
	{"sim", "Interpret a generated VHDL file on an input vector", runSim},
	{"batch", "Run a JSON manifest of generation jobs", runBatch},
	{"version", "Show version", runVersion},
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	root := flag.NewFlagSet("hdlgen", flag.ContinueOnError)
	root.SetOutput(stderr)
	logLevel := root.String("log-level", "info", "Log level: debug, info, warn, error")
	root.Usage = func() { printUsage(stderr) }
	if err := root.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(stderr, "Error: invalid --log-level %q\n", *logLevel)
		return 1
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	}))

	rest := root.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return 1
	}
	for _, cmd := range commands {
		if cmd.name != rest[0] {
			continue
		}
		if err := cmd.run(rest[1:], logger, stdout, stderr); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return 0
			}
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Fprintf(stderr, "Error: unknown command %q\n\n", rest[0])
	printUsage(stderr)
	return 1
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "hdlgen - integer MLP to VHDL generator")
	fmt.Fprintf(w, "Version: %s\n\n", version)
	fmt.Fprintln(w, "Usage: hdlgen [--log-level LEVEL] <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.name, cmd.usage)
	}
}

// newFlagSet returns a FlagSet that reports errors on stderr instead of exiting.
func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("hdlgen "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// modelFlags registers the shared model source flags.
func modelFlags(fs *flag.FlagSet) *loader.Source {
	src := &loader.Source{}
	fs.StringVar(&src.WeightsFile, "weights-file", "", "Path to the weights JSON file")
	fs.StringVar(&src.BiasesFile, "biases-file", "", "Path to the biases JSON file")
	fs.StringVar(&src.ModelFile, "model", "", "Path to a SafeTensors model (replaces --weights-file/--biases-file)")
	return src
}

func runMLP(args []string, logger *slog.Logger, _, stderr io.Writer) error {
	fs := newFlagSet("mlp", stderr)
	src := modelFlags(fs)
	outputFile := fs.String("output-file", generate.DefaultOutputFile, "Path for the generated VHDL file")
	inputSize := fs.Int("input-size", 0, "Input vector width (0 = derive from the weights)")
	entity := fs.String("entity", "MLP", "VHDL entity name")
	architecture := fs.String("architecture", "Behavioral", "VHDL architecture name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := generate.DefaultConfig()
	cfg.Logger = logger
	return generate.New(cfg).Generate(generate.Request{
		WeightsFile:  src.WeightsFile,
		BiasesFile:   src.BiasesFile,
		ModelFile:    src.ModelFile,
		OutputFile:   *outputFile,
		InputSize:    *inputSize,
		Entity:       *entity,
		Architecture: *architecture,
	})
}

func runPack(args []string, logger *slog.Logger, _, stderr io.Writer) error {
	fs := newFlagSet("pack", stderr)
	weightsFile := fs.String("weights-file", "", "Path to the weights JSON file")
	biasesFile := fs.String("biases-file", "", "Path to the biases JSON file")
	outputFile := fs.String("output-file", "model.safetensors", "Path for the SafeTensors file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	net, err := loader.LoadJSON(*weightsFile, *biasesFile)
	if err != nil {
		return err
	}
	if err := serialization.WriteNetwork(*outputFile, net, nil); err != nil {
		return err
	}
	logger.Info("SafeTensors model written", "output", *outputFile, "layers", net.Len())
	return nil
}

func runEval(args []string, logger *slog.Logger, stdout, stderr io.Writer) error {
	fs := newFlagSet("eval", stderr)
	src := modelFlags(fs)
	input := fs.String("input", "", "Comma separated input vector, e.g. 3,3")
	if err := fs.Parse(args); err != nil {
		return err
	}

	x, err := parseVector(*input)
	if err != nil {
		return err
	}
	net, err := loader.Load(*src)
	if err != nil {
		return err
	}
	logger.Debug("evaluating", "layers", net.Len(), "input", x)
	res, err := sim.Reference(net, x)
	if err != nil {
		return err
	}
	printResult(stdout, res)
	return nil
}

func runSim(args []string, logger *slog.Logger, stdout, stderr io.Writer) error {
	fs := newFlagSet("sim", stderr)
	hdl := fs.String("hdl", generate.DefaultOutputFile, "Path to a generated VHDL file")
	input := fs.String("input", "", "Comma separated input vector, e.g. 3,3")
	if err := fs.Parse(args); err != nil {
		return err
	}

	x, err := parseVector(*input)
	if err != nil {
		return err
	}

	//nolint:gosec // G304: File path comes from user input
	f, err := os.Open(*hdl)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", *hdl, err)
	}
	defer func() {
		_ = f.Close()
	}()

	prog, err := sim.Parse(f)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", *hdl, err)
	}
	logger.Debug("parsed module", "entity", prog.Entity, "steps", len(prog.Steps))
	res, err := prog.Run(x)
	if err != nil {
		return err
	}
	printResult(stdout, res)
	return nil
}

func runBatch(args []string, logger *slog.Logger, stdout, stderr io.Writer) error {
	fs := newFlagSet("batch", stderr)
	workers := fs.Int("workers", 0, "Number of concurrent jobs (0 = one per CPU)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("batch expects exactly one manifest path")
	}

	reqs, err := generate.LoadManifest(fs.Arg(0))
	if err != nil {
		return err
	}

	cfg := generate.DefaultConfig()
	cfg.Logger = logger
	if *workers > 0 {
		cfg.Parallel = parallel.Config{Enabled: *workers > 1, NumWorkers: *workers}
	}
	if err := generate.New(cfg).Batch(reqs); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d modules generated\n", len(reqs))
	return nil
}

func runVersion(_ []string, _ *slog.Logger, stdout, _ io.Writer) error {
	fmt.Fprintf(stdout, "hdlgen %s\n", version)
	return nil
}

// parseVector parses a comma separated list of integers.
func parseVector(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("--input is required")
	}
	parts := strings.Split(s, ",")
	values := make([]int64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid input element %d: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}

func printResult(w io.Writer, res sim.Result) {
	for i, layer := range res.Layers {
		fmt.Fprintf(w, "layer %d: %v\n", i, layer)
	}
	fmt.Fprintf(w, "output_bit: %d\n", res.Bit)
}
