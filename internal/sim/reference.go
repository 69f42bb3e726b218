package sim

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/hdlgen/internal/model"
)

// ErrInexact is returned when a value could not be represented exactly in
// float64 arithmetic.
var ErrInexact = errors.New("value exceeds exact float64 integer range")

// ErrOverflow is returned when int64 accumulation overflows.
var ErrOverflow = errors.New("int64 overflow")

// exactLimit bounds every magnitude seen by the float64 evaluation. Below
// 2^52 every partial sum is an exactly representable integer.
const exactLimit = 1 << 52

// Result holds the outputs of every layer and the decision bit.
type Result struct {
	Layers [][]int64 // Layers[i] is the output vector of layer i.
	Bit    int       // 1 when Layers[last][0] > 0, else 0.
}

// Output returns the final layer's output vector.
func (r Result) Output() []int64 {
	return r.Layers[len(r.Layers)-1]
}

// decide applies the sign threshold to output 0 of the last layer.
func decide(layers [][]int64) Result {
	bit := 0
	if layers[len(layers)-1][0] > 0 {
		bit = 1
	}
	return Result{Layers: layers, Bit: bit}
}

// Reference computes the forward pass of net for input with gonum:
// out = Wᵀ·x + b per layer, no activation, sign threshold on output 0.
//
// Computation fails with ErrInexact when the worst-case magnitude of any
// partial sum, bounded by |W|ᵀ·|x| + |b|, reaches 2^52.
func Reference(net *model.Network, input []int64) (Result, error) {
	if len(input) != net.InputWidth() {
		return Result{}, model.NewShapeError("input_size", model.NoLayer,
			"input has %d values, network expects %d", len(input), net.InputWidth())
	}

	x, err := toVec(input)
	if err != nil {
		return Result{}, fmt.Errorf("input: %w", err)
	}

	layers := make([][]int64, net.Len())
	for i, l := range net.Layers() {
		w, err := toDense(l.Weights)
		if err != nil {
			return Result{}, fmt.Errorf("layer %d weights: %w", i, err)
		}
		b, err := toVec(l.Biases.Values())
		if err != nil {
			return Result{}, fmt.Errorf("layer %d biases: %w", i, err)
		}

		if err := checkBound(w, x, b); err != nil {
			return Result{}, fmt.Errorf("layer %d: %w", i, err)
		}

		y := mat.NewVecDense(l.Outputs(), nil)
		y.MulVec(w.T(), x)
		y.AddVec(y, b)

		out := make([]int64, y.Len())
		for j := range out {
			out[j] = int64(y.AtVec(j))
		}
		layers[i] = out
		x = y
	}

	return decide(layers), nil
}

// checkBound verifies |W|ᵀ·|x| + |b| stays below exactLimit.
func checkBound(w *mat.Dense, x, b *mat.VecDense) error {
	rows, cols := w.Dims()

	absW := mat.NewDense(rows, cols, nil)
	absW.Apply(func(_, _ int, v float64) float64 { return math.Abs(v) }, w)
	absX := mat.NewVecDense(x.Len(), nil)
	for i := 0; i < x.Len(); i++ {
		absX.SetVec(i, math.Abs(x.AtVec(i)))
	}

	bound := mat.NewVecDense(cols, nil)
	bound.MulVec(absW.T(), absX)
	for j := 0; j < cols; j++ {
		if bound.AtVec(j)+math.Abs(b.AtVec(j)) >= exactLimit {
			return fmt.Errorf("output %d: %w", j, ErrInexact)
		}
	}
	return nil
}

func toFloat(v int64) (float64, error) {
	if v >= exactLimit || v <= -exactLimit {
		return 0, fmt.Errorf("%d: %w", v, ErrInexact)
	}
	return float64(v), nil
}

func toVec(values []int64) (*mat.VecDense, error) {
	data := make([]float64, len(values))
	for i, v := range values {
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		data[i] = f
	}
	return mat.NewVecDense(len(data), data), nil
}

func toDense(m model.Matrix) (*mat.Dense, error) {
	data := make([]float64, 0, m.Rows()*m.Cols())
	for r := 0; r < m.Rows(); r++ {
		for _, v := range m.Row(r) {
			f, err := toFloat(v)
			if err != nil {
				return nil, err
			}
			data = append(data, f)
		}
	}
	return mat.NewDense(m.Rows(), m.Cols(), data), nil
}
