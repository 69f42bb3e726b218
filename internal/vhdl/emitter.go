package vhdl

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/born-ml/hdlgen/internal/model"
)

// Identifiers shared by every generated module.
const (
	InputPort   = "input_vec"
	OutputPort  = "output_bit"
	Accumulator = "sum_val"
)

// WeightsName returns the constant holding layer i's weights.
func WeightsName(i int) string {
	return "weights_layer_" + strconv.Itoa(i)
}

// BiasesName returns the constant holding layer i's biases.
func BiasesName(i int) string {
	return "biases_layer_" + strconv.Itoa(i)
}

// OutputName returns the variable holding layer i's outputs.
func OutputName(i int) string {
	return "layer_" + strconv.Itoa(i) + "_output"
}

// Emitter writes a network as a combinational VHDL entity.
// An Emitter holds no per-call state and may be shared between goroutines.
type Emitter struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Emitter. Empty names fall back to DefaultConfig.
func New(cfg Config) (*Emitter, error) {
	def := DefaultConfig()
	if cfg.Entity == "" {
		cfg.Entity = def.Entity
	}
	if cfg.Architecture == "" {
		cfg.Architecture = def.Architecture
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Emitter{cfg: cfg, logger: logger}, nil
}

// Emit writes the four sections (interface, constants, forward pass,
// closing) for net to w. The same network and width always produce the
// same bytes.
//
// Emit does not re-validate net beyond rejecting an empty network or a
// non-positive input width; both are ShapeErrors returned before anything
// is written. Write failures are returned as *model.IOError.
func (e *Emitter) Emit(w io.Writer, net *model.Network, inputWidth int) error {
	if net == nil || net.Len() == 0 {
		return model.NewShapeError("empty_network", model.NoLayer, "cannot emit a network without layers")
	}
	if inputWidth <= 0 {
		return model.NewShapeError("input_size", model.NoLayer, "input width must be positive, got %d", inputWidth)
	}

	out := &sectionWriter{w: bufio.NewWriter(w)}

	e.logger.Debug("writing interface", "entity", e.cfg.Entity, "input_width", inputWidth)
	e.writeInterface(out, net, inputWidth)

	e.logger.Debug("writing constants", "layers", net.Len())
	e.writeConstants(out, net)

	e.logger.Debug("writing forward pass")
	e.writeForwardPass(out, net)

	e.writeClosing(out)

	if out.err == nil {
		out.err = out.w.Flush()
	}
	if out.err != nil {
		return &model.IOError{Op: "write", Err: out.err}
	}
	return nil
}

// sectionWriter remembers the first write error and drops later writes.
type sectionWriter struct {
	w   *bufio.Writer
	err error
}

func (s *sectionWriter) line(format string, args ...any) {
	if s.err != nil {
		return
	}
	if _, err := fmt.Fprintf(s.w, format, args...); err != nil {
		s.err = err
		return
	}
	s.err = s.w.WriteByte('\n')
}

func (s *sectionWriter) blank() {
	s.line("")
}

func (e *Emitter) writeInterface(out *sectionWriter, net *model.Network, inputWidth int) {
	out.line("-- Auto-generated VHDL MLP: %d layers, %d inputs, 1 output bit", net.Len(), inputWidth)
	out.line("library IEEE;")
	out.line("use IEEE.STD_LOGIC_1164.ALL;")
	out.line("use IEEE.NUMERIC_STD.ALL;")
	out.blank()
	out.line("entity %s is", e.cfg.Entity)
	out.line("    Port (")
	out.line("        %s  : in  INTEGER_VECTOR(%d downto 0);", InputPort, inputWidth-1)
	out.line("        %s : out STD_LOGIC", OutputPort)
	out.line("    );")
	out.line("end %s;", e.cfg.Entity)
	out.blank()
}

func (e *Emitter) writeConstants(out *sectionWriter, net *model.Network) {
	out.line("architecture %s of %s is", e.cfg.Architecture, e.cfg.Entity)
	for i, l := range net.Layers() {
		rows, cols := l.Inputs(), l.Outputs()
		e.logger.Debug("writing layer constants", "layer", i, "weights_shape", l.Weights.Shape().String(), "biases", l.Biases.Len())

		wName := WeightsName(i)
		out.line("    type %s_t is array (0 to %d, 0 to %d) of integer;", wName, rows-1, cols-1)
		out.line("    constant %s : %s_t := (", wName, wName)
		for r := 0; r < rows; r++ {
			row := aggregate(l.Weights.Row(r))
			switch {
			case rows == 1:
				out.line("        0 => %s", row)
			case r < rows-1:
				out.line("        %s,", row)
			default:
				out.line("        %s", row)
			}
		}
		out.line("    );")
		out.blank()

		out.line("    constant %s : INTEGER_VECTOR(%d downto 0) := %s;", BiasesName(i), cols-1, descending(l.Biases.Values()))
		out.blank()
	}
}

func (e *Emitter) writeForwardPass(out *sectionWriter, net *model.Network) {
	out.line("begin")
	out.line("    process(%s)", InputPort)
	out.line("        variable %s : integer;", Accumulator)
	for i, l := range net.Layers() {
		out.line("        variable %s : INTEGER_VECTOR(%d downto 0);", OutputName(i), l.Outputs()-1)
	}
	out.line("    begin")
	out.blank()

	for i, l := range net.Layers() {
		e.logger.Debug("writing layer loop", "layer", i)
		src := InputPort
		if i > 0 {
			src = OutputName(i - 1)
		}
		out.line("        for j in 0 to %d loop", l.Outputs()-1)
		out.line("            %s := %s(j);", Accumulator, BiasesName(i))
		out.line("            for k in 0 to %d loop", l.Inputs()-1)
		out.line("                %s := %s + (%s(k) * %s(k, j));", Accumulator, Accumulator, src, WeightsName(i))
		out.line("            end loop;")
		out.line("            %s(j) := %s;", OutputName(i), Accumulator)
		out.line("        end loop;")
		out.blank()
	}

	// Binary classifier head: only output 0 of the last layer is observed.
	out.line("        if %s(0) > 0 then", OutputName(net.Len()-1))
	out.line("            %s <= '1';", OutputPort)
	out.line("        else")
	out.line("            %s <= '0';", OutputPort)
	out.line("        end if;")
	out.blank()
	out.line("    end process;")
}

func (e *Emitter) writeClosing(out *sectionWriter) {
	out.line("end %s;", e.cfg.Architecture)
}

// aggregate formats values as a positional aggregate. A one-element
// aggregate must use named association to be legal VHDL.
func aggregate(values []int64) string {
	if len(values) == 1 {
		return "(0 => " + strconv.FormatInt(values[0], 10) + ")"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// descending formats values for a "downto" vector with named association
// from the highest index to 0, so element j lands at index j.
func descending(values []int64) string {
	parts := make([]string, len(values))
	for i := range values {
		j := len(values) - 1 - i
		parts[i] = strconv.Itoa(j) + " => " + strconv.FormatInt(values[j], 10)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
