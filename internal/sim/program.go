package sim

import (
	"fmt"
	"math"

	"github.com/born-ml/hdlgen/internal/model"
	"github.com/born-ml/hdlgen/internal/vhdl"
)

// Run interprets the program for one input vector with exact int64
// arithmetic, following the loops in the order they appear.
func (p *Program) Run(input []int64) (Result, error) {
	if len(input) != p.InputWidth {
		return Result{}, model.NewShapeError("input_size", model.NoLayer,
			"input has %d values, %s is %d wide", len(input), vhdl.InputPort, p.InputWidth)
	}
	if len(p.Steps) == 0 {
		return Result{}, fmt.Errorf("program has no layer loops")
	}

	env := map[string][]int64{vhdl.InputPort: input}
	for name, n := range p.Variables {
		if n <= 0 || n > MaxBound {
			return Result{}, fmt.Errorf("variable %s has %d elements, want 1 to %d", name, n, MaxBound)
		}
		env[name] = make([]int64, n)
	}

	layers := make([][]int64, 0, len(p.Steps))
	for i, s := range p.Steps {
		if err := p.runStep(env, s); err != nil {
			return Result{}, fmt.Errorf("layer loop %d: %w", i, err)
		}
		out := make([]int64, len(env[s.Target]))
		copy(out, env[s.Target])
		layers = append(layers, out)
	}

	final, ok := env[p.Threshold]
	if !ok || len(final) == 0 {
		return Result{}, fmt.Errorf("threshold reads undeclared variable %s", p.Threshold)
	}
	if p.Threshold != p.Steps[len(p.Steps)-1].Target {
		return Result{}, fmt.Errorf("threshold reads %s, last layer writes %s", p.Threshold, p.Steps[len(p.Steps)-1].Target)
	}

	return decide(layers), nil
}

func (p *Program) runStep(env map[string][]int64, s Step) error {
	src, ok := env[s.Source]
	if !ok {
		return fmt.Errorf("undeclared source %s", s.Source)
	}
	dst, ok := env[s.Target]
	if !ok || s.Target == vhdl.InputPort {
		return fmt.Errorf("undeclared target %s", s.Target)
	}
	w, ok := p.Weights[s.Weights]
	if !ok {
		return fmt.Errorf("undeclared constant %s", s.Weights)
	}
	b, ok := p.Biases[s.Bias]
	if !ok {
		return fmt.Errorf("undeclared constant %s", s.Bias)
	}

	switch {
	case s.Inputs > len(src):
		return fmt.Errorf("k loop reads %s(0 to %d), it has %d elements", s.Source, s.Inputs-1, len(src))
	case s.Inputs > len(w) || s.Outputs > len(w[0]):
		return fmt.Errorf("loops index %s(0 to %d, 0 to %d), it is %dx%d", s.Weights, s.Inputs-1, s.Outputs-1, len(w), len(w[0]))
	case s.Outputs > len(b):
		return fmt.Errorf("j loop reads %s(0 to %d), it has %d elements", s.Bias, s.Outputs-1, len(b))
	case s.Outputs > len(dst):
		return fmt.Errorf("j loop writes %s(0 to %d), it has %d elements", s.Target, s.Outputs-1, len(dst))
	}

	for j := 0; j < s.Outputs; j++ {
		acc := b[j]
		for k := 0; k < s.Inputs; k++ {
			prod, ok := mul(src[k], w[k][j])
			if !ok {
				return fmt.Errorf("%s(%d) * %s(%d, %d): %w", s.Source, k, s.Weights, k, j, ErrOverflow)
			}
			if acc, ok = add(acc, prod); !ok {
				return fmt.Errorf("accumulating output %d: %w", j, ErrOverflow)
			}
		}
		dst[j] = acc
	}
	return nil
}

func add(a, b int64) (int64, bool) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, false
	}
	return s, true
}

func mul(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	p := a * b
	if p/b != a {
		return 0, false
	}
	return p, true
}
