package sim

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/born-ml/hdlgen/internal/vhdl"
)

// Step is one layer loop read from the generated process.
type Step struct {
	Outputs int    // Upper bound of the j loop + 1.
	Inputs  int    // Upper bound of the k loop + 1.
	Bias    string // Bias constant.
	Source  string // Input vector of the layer.
	Weights string // Weight constant.
	Target  string // Output variable.
}

// Program is the arithmetic content of a generated VHDL file.
type Program struct {
	Entity     string
	InputWidth int
	Weights    map[string][][]int64 // Weight constants, row-major.
	Biases     map[string][]int64   // Bias constants, Biases[name][j].
	Variables  map[string]int       // Output variables and their lengths.
	Steps      []Step               // Layer loops in program order.
	Threshold  string               // Variable whose element 0 drives the output bit.
}

var (
	reEntity    = regexp.MustCompile(`^entity (\w+) is$`)
	reInputPort = regexp.MustCompile(`^` + vhdl.InputPort + `\s+: in\s+INTEGER_VECTOR\((\d+) downto 0\);$`)
	reArrayType = regexp.MustCompile(`^type (\w+)_t is array \(0 to (\d+), 0 to (\d+)\) of integer;$`)
	reWeights   = regexp.MustCompile(`^constant (\w+) : (\w+)_t := \($`)
	reRow       = regexp.MustCompile(`^(?:0 => )?(\(.*\)),?$`)
	reBiases    = regexp.MustCompile(`^constant (\w+) : INTEGER_VECTOR\((\d+) downto 0\) := (\(.*\));$`)
	reVariable  = regexp.MustCompile(`^variable (\w+) : INTEGER_VECTOR\((\d+) downto 0\);$`)
	reLoopJ     = regexp.MustCompile(`^for j in 0 to (\d+) loop$`)
	reInit      = regexp.MustCompile(`^` + vhdl.Accumulator + ` := (\w+)\(j\);$`)
	reLoopK     = regexp.MustCompile(`^for k in 0 to (\d+) loop$`)
	reAccum     = regexp.MustCompile(`^` + vhdl.Accumulator + ` := ` + vhdl.Accumulator + ` \+ \((\w+)\(k\) \* (\w+)\(k, j\)\);$`)
	reStore     = regexp.MustCompile(`^(\w+)\(j\) := ` + vhdl.Accumulator + `;$`)
	reEndLoop   = regexp.MustCompile(`^end loop;$`)
	reThreshold = regexp.MustCompile(`^if (\w+)\(0\) > 0 then$`)
)

// MaxBound caps every declared range. Larger vectors could not come from a
// network that fits in memory, and the bound keeps allocations sized by
// untrusted text finite.
const MaxBound = 1 << 24

// bound parses the upper index of a "0 to hi" or "hi downto 0" range and
// returns the element count.
func bound(s string) (int, error) {
	hi, err := strconv.Atoi(s)
	if err != nil || hi < 0 || hi >= MaxBound {
		return 0, fmt.Errorf("bound %s out of range", s)
	}
	return hi + 1, nil
}

// structural lines carry no arithmetic and are accepted as-is.
var structural = []*regexp.Regexp{
	regexp.MustCompile(`^library IEEE;$`),
	regexp.MustCompile(`^use IEEE\.\w+\.ALL;$`),
	regexp.MustCompile(`^Port \($`),
	regexp.MustCompile(`^` + vhdl.OutputPort + ` : out STD_LOGIC$`),
	regexp.MustCompile(`^\);$`),
	regexp.MustCompile(`^end \w+;$`),
	regexp.MustCompile(`^architecture \w+ of \w+ is$`),
	regexp.MustCompile(`^begin$`),
	regexp.MustCompile(`^process\(` + vhdl.InputPort + `\)$`),
	regexp.MustCompile(`^variable ` + vhdl.Accumulator + ` : integer;$`),
	regexp.MustCompile(`^` + vhdl.OutputPort + ` <= '[01]';$`),
	regexp.MustCompile(`^else$`),
	regexp.MustCompile(`^end if;$`),
	regexp.MustCompile(`^end process;$`),
}

// parser walks the file line by line.
type parser struct {
	lines []string
	pos   int
	prog  *Program
	dims  map[string][2]int // Declared array type bounds by constant name.
}

// Parse reads VHDL produced by package vhdl.
// Any statement outside that template is an error.
func Parse(r io.Reader) (*Program, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read VHDL: %w", err)
	}

	p := &parser{
		lines: lines,
		prog: &Program{
			Weights:   make(map[string][][]int64),
			Biases:    make(map[string][]int64),
			Variables: make(map[string]int),
		},
		dims: make(map[string][2]int),
	}
	if err := p.run(); err != nil {
		return nil, err
	}
	if p.prog.InputWidth == 0 {
		return nil, fmt.Errorf("no %s port declaration found", vhdl.InputPort)
	}
	if p.prog.Threshold == "" {
		return nil, fmt.Errorf("no output threshold found")
	}
	return p.prog, nil
}

// next returns the next non-blank, non-comment line, trimmed.
func (p *parser) next() (string, int, bool) {
	for p.pos < len(p.lines) {
		line := strings.TrimSpace(p.lines[p.pos])
		p.pos++
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		return line, p.pos, true
	}
	return "", p.pos, false
}

// expect reads the next line and matches it against re.
func (p *parser) expect(re *regexp.Regexp) ([]string, error) {
	line, n, ok := p.next()
	if !ok {
		return nil, fmt.Errorf("unexpected end of file, want %s", re)
	}
	m := re.FindStringSubmatch(line)
	if m == nil {
		return nil, fmt.Errorf("line %d: %q does not match %s", n, line, re)
	}
	return m, nil
}

func (p *parser) run() error {
	for {
		line, n, ok := p.next()
		if !ok {
			return nil
		}

		var err error
		switch {
		case reEntity.MatchString(line):
			p.prog.Entity = reEntity.FindStringSubmatch(line)[1]
		case reInputPort.MatchString(line):
			p.prog.InputWidth, err = bound(reInputPort.FindStringSubmatch(line)[1])
		case reArrayType.MatchString(line):
			m := reArrayType.FindStringSubmatch(line)
			var rows, cols int
			if rows, err = bound(m[2]); err == nil {
				if cols, err = bound(m[3]); err == nil {
					p.dims[m[1]] = [2]int{rows, cols}
				}
			}
		case reWeights.MatchString(line):
			err = p.weights(reWeights.FindStringSubmatch(line))
		case reBiases.MatchString(line):
			err = p.biases(reBiases.FindStringSubmatch(line))
		case reVariable.MatchString(line):
			m := reVariable.FindStringSubmatch(line)
			var n int
			if n, err = bound(m[2]); err == nil {
				p.prog.Variables[m[1]] = n
			}
		case reLoopJ.MatchString(line):
			err = p.step(reLoopJ.FindStringSubmatch(line))
		case reThreshold.MatchString(line):
			p.prog.Threshold = reThreshold.FindStringSubmatch(line)[1]
		case isStructural(line):
		default:
			err = fmt.Errorf("unrecognized statement %q", line)
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
}

func isStructural(line string) bool {
	for _, re := range structural {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// weights reads the rows of a weight constant up to the closing ");".
func (p *parser) weights(m []string) error {
	name, typ := m[1], m[2]
	if name != typ {
		return fmt.Errorf("constant %s declared with type %s_t", name, typ)
	}
	dims, ok := p.dims[name]
	if !ok {
		return fmt.Errorf("constant %s has no array type", name)
	}

	var rows [][]int64
	for {
		line, n, ok := p.next()
		if !ok {
			return fmt.Errorf("unterminated constant %s", name)
		}
		if line == ");" {
			break
		}
		rm := reRow.FindStringSubmatch(line)
		if rm == nil {
			return fmt.Errorf("line %d: bad row %q in %s", n, line, name)
		}
		row, err := parseAggregate(rm[1])
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		if len(row) != dims[1] {
			return fmt.Errorf("line %d: row of %s has %d values, type declares %d", n, name, len(row), dims[1])
		}
		rows = append(rows, row)
	}
	if len(rows) != dims[0] {
		return fmt.Errorf("constant %s has %d rows, type declares %d", name, len(rows), dims[0])
	}
	p.prog.Weights[name] = rows
	return nil
}

// biases reads a named-association bias constant.
func (p *parser) biases(m []string) error {
	name := m[1]
	n, err := bound(m[2])
	if err != nil {
		return err
	}
	hi := n - 1
	values := make([]int64, n)
	seen := make([]bool, n)

	body := strings.TrimSuffix(strings.TrimPrefix(m[3], "("), ")")
	for _, assoc := range strings.Split(body, ",") {
		idx, val, ok := strings.Cut(assoc, "=>")
		if !ok {
			return fmt.Errorf("constant %s: expected index => value, got %q", name, assoc)
		}
		j, err := strconv.Atoi(strings.TrimSpace(idx))
		if err != nil || j < 0 || j > hi {
			return fmt.Errorf("constant %s: bad index %q", name, idx)
		}
		v, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return fmt.Errorf("constant %s: %w", name, err)
		}
		if seen[j] {
			return fmt.Errorf("constant %s: index %d assigned twice", name, j)
		}
		values[j], seen[j] = v, true
	}
	for j, ok := range seen {
		if !ok {
			return fmt.Errorf("constant %s: index %d not assigned", name, j)
		}
	}
	p.prog.Biases[name] = values
	return nil
}

// step reads one layer loop after its "for j" line.
func (p *parser) step(loopJ []string) error {
	var s Step
	var err error
	if s.Outputs, err = bound(loopJ[1]); err != nil {
		return err
	}

	m, err := p.expect(reInit)
	if err != nil {
		return err
	}
	s.Bias = m[1]

	if m, err = p.expect(reLoopK); err != nil {
		return err
	}
	if s.Inputs, err = bound(m[1]); err != nil {
		return err
	}

	if m, err = p.expect(reAccum); err != nil {
		return err
	}
	s.Source, s.Weights = m[1], m[2]

	if _, err = p.expect(reEndLoop); err != nil {
		return err
	}
	if m, err = p.expect(reStore); err != nil {
		return err
	}
	s.Target = m[1]
	if _, err = p.expect(reEndLoop); err != nil {
		return err
	}

	p.prog.Steps = append(p.prog.Steps, s)
	return nil
}

// parseAggregate parses "(a, b, c)" or "(0 => a)".
func parseAggregate(s string) ([]int64, error) {
	body := strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	if idx, val, ok := strings.Cut(body, "=>"); ok {
		if strings.TrimSpace(idx) != "0" {
			return nil, fmt.Errorf("unexpected named association %q", s)
		}
		v, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return nil, err
		}
		return []int64{v}, nil
	}

	parts := strings.Split(body, ",")
	out := make([]int64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
