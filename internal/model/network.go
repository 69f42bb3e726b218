package model

import "fmt"

// Layer is one fully-connected layer: Weights is inputs × outputs and Biases
// has one entry per output.
type Layer struct {
	Weights Matrix
	Biases  Vector
}

// NewLayer pairs a weight matrix with its bias vector.
func NewLayer(weights Matrix, biases Vector) (Layer, error) {
	if weights.Rows() == 0 || weights.Cols() == 0 {
		return Layer{}, NewShapeError("empty_matrix", NoLayer, "weights must be built with NewMatrix")
	}
	if biases.Len() != weights.Cols() {
		return Layer{}, NewShapeError("bias_length", NoLayer,
			"weights shape %s needs %d biases, got %d", weights.Shape(), weights.Cols(), biases.Len())
	}
	return Layer{Weights: weights, Biases: biases}, nil
}

// Inputs returns the number of inputs (weight rows).
func (l Layer) Inputs() int {
	return l.Weights.Rows()
}

// Outputs returns the number of neurons (weight columns).
func (l Layer) Outputs() int {
	return l.Weights.Cols()
}

// Network is a validated, immutable feed-forward chain of layers.
// Index 0 is the layer closest to the input.
type Network struct {
	layers []Layer
}

// NewNetwork validates the layer chain.
//
// It fails with a ShapeError when layers is empty, when a layer was not
// built through NewLayer, or when the outputs of layer i do not match the
// inputs of layer i+1 (the first such pair is reported).
func NewNetwork(layers []Layer) (*Network, error) {
	if len(layers) == 0 {
		return nil, NewShapeError("empty_network", NoLayer, "network has no layers")
	}

	for i, l := range layers {
		if l.Outputs() == 0 || l.Biases.Len() != l.Outputs() {
			return nil, NewShapeError("bias_length", i,
				"weights shape %s needs %d biases, got %d", l.Weights.Shape(), l.Outputs(), l.Biases.Len())
		}
	}

	for i := 0; i+1 < len(layers); i++ {
		out, in := layers[i].Outputs(), layers[i+1].Inputs()
		if out != in {
			return nil, &ShapeError{
				Kind:    "chain",
				Layer:   i,
				Other:   i + 1,
				Details: fmt.Sprintf("layer %d outputs %d values, layer %d expects %d inputs", i, out, i+1, in),
			}
		}
	}

	owned := make([]Layer, len(layers))
	copy(owned, layers)
	return &Network{layers: owned}, nil
}

// Len returns the number of layers.
func (n *Network) Len() int {
	return len(n.layers)
}

// Layer returns layer i.
func (n *Network) Layer(i int) Layer {
	return n.layers[i]
}

// Layers returns a copy of the layer slice.
func (n *Network) Layers() []Layer {
	out := make([]Layer, len(n.layers))
	copy(out, n.layers)
	return out
}

// InputWidth returns the input width derived from the first layer.
func (n *Network) InputWidth() int {
	return n.layers[0].Inputs()
}

// OutputWidth returns the number of outputs of the last layer.
func (n *Network) OutputWidth() int {
	return n.layers[len(n.layers)-1].Outputs()
}

// ResolveInputWidth returns the width of the network input port.
//
// explicit == 0 means no width was supplied and the derived width is used.
// A negative width, or a positive width that differs from the first layer's
// row count, is a ShapeError.
func (n *Network) ResolveInputWidth(explicit int) (int, error) {
	derived := n.InputWidth()
	switch {
	case explicit == 0:
		return derived, nil
	case explicit < 0:
		return 0, NewShapeError("input_size", NoLayer, "input size must be positive, got %d", explicit)
	case explicit != derived:
		return 0, NewShapeError("input_size", 0,
			"input size %d does not match weights shape %s (expected %d)", explicit, n.layers[0].Weights.Shape(), derived)
	}
	return explicit, nil
}
