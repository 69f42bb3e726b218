package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/hdlgen/internal/model"
)

// Sources named in errors.
const (
	sourceWeights = "weights"
	sourceBiases  = "biases"
)

// DecodeJSONList decodes one JSON document that must be a list.
// Numbers are kept as json.Number so integers are never rounded through float64.
func DecodeJSONList(r io.Reader, source string) ([]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s JSON: %w", source, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("failed to decode %s JSON: trailing data after document", source)
	}

	list, ok := doc.([]any)
	if !ok {
		return nil, model.NewShapeError("not_a_list", model.NoLayer,
			"%s document must be a list of per-layer arrays, got %s", source, jsonKind(doc))
	}
	return list, nil
}

// ReadJSONFile reads a JSON list of per-layer arrays from path.
func ReadJSONFile(path, source string) ([]any, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, &model.IOError{Op: "read", Path: path, Err: err}
	}
	defer func() {
		_ = file.Close() // Read-only, close error carries no information
	}()

	list, err := DecodeJSONList(file, source)
	if err != nil {
		var se *model.ShapeError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &model.IOError{Op: "read", Path: path, Err: err}
	}
	return list, nil
}

// LoadJSON reads the weights and biases documents and assembles the network.
func LoadJSON(weightsPath, biasesPath string) (*model.Network, error) {
	rawWeights, err := ReadJSONFile(weightsPath, sourceWeights)
	if err != nil {
		return nil, err
	}
	rawBiases, err := ReadJSONFile(biasesPath, sourceBiases)
	if err != nil {
		return nil, err
	}
	return Assemble(rawWeights, rawBiases)
}

// jsonModel is the single-file JSON layout: {"weights": [...], "biases": [...]}.
type jsonModel struct {
	Weights []any `json:"weights"`
	Biases  []any `json:"biases"`
}

// LoadJSONModel reads a single JSON document holding both lists.
func LoadJSONModel(path string) (*model.Network, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, &model.IOError{Op: "read", Path: path, Err: err}
	}
	defer func() {
		_ = file.Close()
	}()

	dec := json.NewDecoder(file)
	dec.UseNumber()
	var doc jsonModel
	if err := dec.Decode(&doc); err != nil {
		return nil, &model.IOError{Op: "read", Path: path, Err: fmt.Errorf("failed to decode model JSON: %w", err)}
	}
	return Assemble(doc.Weights, doc.Biases)
}

// Assemble validates raw per-layer arrays and builds the network.
//
// Every weights entry must be a rectangular 2-D integer array and every
// biases entry a 1-D integer array. Both lists must be non-empty and of
// equal length. Rank, count and chain problems are ShapeErrors; non-integer
// values are TypeMismatchErrors.
func Assemble(rawWeights, rawBiases []any) (*model.Network, error) {
	if len(rawWeights) == 0 || len(rawBiases) == 0 {
		return nil, model.NewShapeError("empty_network", model.NoLayer,
			"need at least one layer, got %d weight and %d bias entries", len(rawWeights), len(rawBiases))
	}

	matrices := make([]model.Matrix, len(rawWeights))
	for i, raw := range rawWeights {
		m, err := toMatrix(raw, i)
		if err != nil {
			return nil, err
		}
		matrices[i] = m
	}

	vectors := make([]model.Vector, len(rawBiases))
	for i, raw := range rawBiases {
		v, err := toVector(raw, i)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}

	if len(matrices) != len(vectors) {
		missing := min(len(matrices), len(vectors))
		return nil, model.NewShapeError("layer_count", missing,
			"%d weight entries but %d bias entries", len(matrices), len(vectors))
	}

	layers := make([]model.Layer, len(matrices))
	for i := range matrices {
		l, err := model.NewLayer(matrices[i], vectors[i])
		if err != nil {
			return nil, attribute(err, i)
		}
		layers[i] = l
	}

	return model.NewNetwork(layers)
}

// toMatrix converts one weights entry.
func toMatrix(raw any, layer int) (model.Matrix, error) {
	shape, err := inferShape(raw)
	if err != nil {
		return model.Matrix{}, attribute(err, layer)
	}
	if shape.Rank() != 2 {
		return model.Matrix{}, model.NewShapeError("rank", layer,
			"weights must be 2D, got rank %d with shape %s", shape.Rank(), shape)
	}
	if err := shape.Validate(); err != nil {
		return model.Matrix{}, model.NewShapeError("empty_matrix", layer, "weights shape %s: %v", shape, err)
	}

	outer := raw.([]any)
	rows := make([][]int64, len(outer))
	for r, rowRaw := range outer {
		row := rowRaw.([]any)
		rows[r] = make([]int64, len(row))
		for c, v := range row {
			n, err := toInt(v, sourceWeights, layer, []int{r, c})
			if err != nil {
				return model.Matrix{}, err
			}
			rows[r][c] = n
		}
	}

	m, err := model.NewMatrix(rows)
	if err != nil {
		return model.Matrix{}, attribute(err, layer)
	}
	return m, nil
}

// toVector converts one biases entry.
func toVector(raw any, layer int) (model.Vector, error) {
	shape, err := inferShape(raw)
	if err != nil {
		return model.Vector{}, attribute(err, layer)
	}
	if shape.Rank() != 1 {
		return model.Vector{}, model.NewShapeError("rank", layer,
			"biases must be 1D, got rank %d with shape %s", shape.Rank(), shape)
	}

	items := raw.([]any)
	values := make([]int64, len(items))
	for i, v := range items {
		n, err := toInt(v, sourceBiases, layer, []int{i})
		if err != nil {
			return model.Vector{}, err
		}
		values[i] = n
	}
	return model.NewVector(values), nil
}

// inferShape returns the rectangular shape of a nested list. Scalars have
// rank 0; an empty list has shape (0,).
func inferShape(v any) (model.Shape, error) {
	list, ok := v.([]any)
	if !ok {
		return model.Shape{}, nil
	}
	if len(list) == 0 {
		return model.Shape{0}, nil
	}

	first, err := inferShape(list[0])
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(list); i++ {
		s, err := inferShape(list[i])
		if err != nil {
			return nil, err
		}
		if !s.Equal(first) {
			return nil, model.NewShapeError("ragged", model.NoLayer,
				"element %d has shape %s, element 0 has shape %s", i, s, first)
		}
	}

	return append(model.Shape{len(list)}, first...), nil
}

// toInt converts a decoded JSON leaf to int64.
func toInt(v any, source string, layer int, index []int) (int64, error) {
	num, ok := v.(json.Number)
	if !ok {
		return 0, &model.TypeMismatchError{Source: source, Layer: layer, Index: index, Value: jsonKind(v)}
	}
	n, err := num.Int64()
	if err != nil {
		return 0, &model.TypeMismatchError{Source: source, Layer: layer, Index: index, Value: num.String()}
	}
	return n, nil
}

// attribute tags a layer-agnostic ShapeError with the layer index.
func attribute(err error, layer int) error {
	var se *model.ShapeError
	if errors.As(err, &se) && se.Layer == model.NoLayer {
		return se.AtLayer(layer)
	}
	return err
}

// jsonKind names the JSON type of a decoded value.
func jsonKind(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return fmt.Sprintf("string %q", v)
	case json.Number:
		return "number " + v.String()
	case []any:
		return "list"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
