package loader

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/born-ml/hdlgen/internal/model"
	"github.com/born-ml/hdlgen/internal/serialization"
)

// SafeTensors format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]

// SafeTensorsDType represents SafeTensors data types.
type SafeTensorsDType string

// SafeTensors dtypes. Only the integer ones can hold model values.
const (
	SafeTensorsF16  SafeTensorsDType = "F16"
	SafeTensorsF32  SafeTensorsDType = "F32"
	SafeTensorsF64  SafeTensorsDType = "F64"
	SafeTensorsBF16 SafeTensorsDType = "BF16"
	SafeTensorsI32  SafeTensorsDType = "I32"
	SafeTensorsI64  SafeTensorsDType = "I64"
	SafeTensorsU8   SafeTensorsDType = "U8"
	SafeTensorsBool SafeTensorsDType = "BOOL"
)

// integerSize returns the element size of an integer dtype, or 0.
func (d SafeTensorsDType) integerSize() int {
	switch d {
	case SafeTensorsI64:
		return 8
	case SafeTensorsI32:
		return 4
	case SafeTensorsU8:
		return 1
	default:
		return 0
	}
}

// SafeTensorInfo describes a tensor in SafeTensors format.
type SafeTensorInfo struct {
	DType       SafeTensorsDType `json:"dtype"`
	Shape       []int            `json:"shape"`
	DataOffsets [2]int64         `json:"data_offsets"` // [start, end]
}

// SafeTensorsHeader is the JSON header in SafeTensors format.
type SafeTensorsHeader struct {
	Metadata map[string]string         `json:"__metadata__"`
	Tensors  map[string]SafeTensorInfo `json:"-"`
}

// UnmarshalJSON implements custom JSON unmarshaling for SafeTensorsHeader.
func (h *SafeTensorsHeader) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	if metadataRaw, ok := rawMap["__metadata__"]; ok {
		if err := json.Unmarshal(metadataRaw, &h.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	h.Tensors = make(map[string]SafeTensorInfo, len(rawMap))
	for key, value := range rawMap {
		if key == "__metadata__" {
			continue
		}
		var info SafeTensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("failed to unmarshal tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}

	return nil
}

// SafeTensorsReader reads SafeTensors format files.
type SafeTensorsReader struct {
	file       *os.File
	path       string
	header     SafeTensorsHeader
	dataOffset int64 // Offset where tensor data starts
	dataSize   int64
}

// NewSafeTensorsReader opens path, parses its header and validates the
// tensor names and data offsets.
func NewSafeTensorsReader(path string) (*SafeTensorsReader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, &model.IOError{Op: "read", Path: path, Err: err}
	}

	fail := func(err error) (*SafeTensorsReader, error) {
		_ = file.Close() // Best effort close on error
		return nil, &model.IOError{Op: "read", Path: path, Err: err}
	}

	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		return fail(fmt.Errorf("failed to read header size: %w", err))
	}
	if headerSize > serialization.MaxHeaderSize {
		return fail(fmt.Errorf("%w: %d bytes", serialization.ErrHeaderTooLarge, headerSize))
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		return fail(fmt.Errorf("failed to read header: %w", err))
	}

	var header SafeTensorsHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return fail(fmt.Errorf("failed to parse header JSON: %w", err))
	}

	stat, err := file.Stat()
	if err != nil {
		return fail(err)
	}
	dataOffset := int64(8 + headerSize) //nolint:gosec // G115: bounded by MaxHeaderSize.

	metas := make([]serialization.TensorMeta, 0, len(header.Tensors))
	for name, info := range header.Tensors {
		if err := serialization.ValidateTensorName(name); err != nil {
			return fail(err)
		}
		metas = append(metas, serialization.TensorMeta{
			Name:   name,
			Offset: info.DataOffsets[0],
			Size:   info.DataOffsets[1] - info.DataOffsets[0],
		})
	}
	if err := serialization.ValidateTensorOffsets(metas, stat.Size()-dataOffset); err != nil {
		return fail(err)
	}

	return &SafeTensorsReader{
		file:       file,
		path:       path,
		header:     header,
		dataOffset: dataOffset,
		dataSize:   stat.Size() - dataOffset,
	}, nil
}

// VerifyChecksum checks the data section against the SHA-256 recorded
// under serialization.ChecksumKey. Files without the key pass unchecked.
func (r *SafeTensorsReader) VerifyChecksum() error {
	stored, ok := r.header.Metadata[serialization.ChecksumKey]
	if !ok {
		return nil
	}
	want, err := serialization.ParseChecksum(stored)
	if err != nil {
		return &model.IOError{Op: "read", Path: r.path, Err: err}
	}
	got, err := serialization.ComputeChecksumReader(io.NewSectionReader(r.file, r.dataOffset, r.dataSize))
	if err != nil {
		return &model.IOError{Op: "read", Path: r.path, Err: err}
	}
	if err := serialization.ValidateChecksum(got, want); err != nil {
		return &model.IOError{Op: "read", Path: r.path, Err: err}
	}
	return nil
}

// Close closes the SafeTensors file.
func (r *SafeTensorsReader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Metadata returns the metadata map from the header.
func (r *SafeTensorsReader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns all tensor names in the file, sorted.
func (r *SafeTensorsReader) TensorNames() []string {
	names := make([]string, 0, len(r.header.Tensors))
	for name := range r.header.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TensorInfo returns information about a specific tensor.
func (r *SafeTensorsReader) TensorInfo(name string) (*SafeTensorInfo, error) {
	info, ok := r.header.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("tensor %s not found", name)
	}
	return &info, nil
}

// ReadTensorData reads raw tensor bytes for a given tensor name.
func (r *SafeTensorsReader) ReadTensorData(name string) ([]byte, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	start := r.dataOffset + info.DataOffsets[0]
	data := make([]byte, info.DataOffsets[1]-info.DataOffsets[0])
	if _, err := r.file.ReadAt(data, start); err != nil {
		return nil, &model.IOError{Op: "read", Path: r.path, Err: fmt.Errorf("tensor %s: %w", name, err)}
	}
	return data, nil
}

// ReadIntegers reads an integer tensor and widens its values to int64.
// Float and bool tensors are a TypeMismatchError.
func (r *SafeTensorsReader) ReadIntegers(name string) (model.Shape, []int64, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, nil, err
	}

	size := info.DType.integerSize()
	if size == 0 {
		return nil, nil, &model.TypeMismatchError{
			Source: name,
			Layer:  model.NoLayer,
			Value:  "dtype " + string(info.DType),
		}
	}

	shape := model.Shape(info.Shape)
	if err := shape.Validate(); err != nil {
		return nil, nil, model.NewShapeError("empty_matrix", model.NoLayer, "tensor %s shape %s: %v", name, shape, err)
	}
	if got := info.DataOffsets[1] - info.DataOffsets[0]; !holdsExactly(got, size, shape) {
		return nil, nil, model.NewShapeError("data_size", model.NoLayer,
			"tensor %s with shape %s and dtype %s does not fill %d bytes", name, shape, info.DType, got)
	}

	data, err := r.ReadTensorData(name)
	if err != nil {
		return nil, nil, err
	}

	values := make([]int64, shape.NumElements())
	for i := range values {
		chunk := data[i*size : (i+1)*size]
		switch info.DType {
		case SafeTensorsI64:
			values[i] = int64(binary.LittleEndian.Uint64(chunk)) //nolint:gosec // G115: two's complement reinterpretation.
		case SafeTensorsI32:
			values[i] = int64(int32(binary.LittleEndian.Uint32(chunk))) //nolint:gosec // G115: two's complement reinterpretation.
		case SafeTensorsU8:
			values[i] = int64(chunk[0])
		}
	}
	return shape, values, nil
}

// holdsExactly reports whether n bytes hold exactly the elements of shape
// at size bytes each. It divides instead of multiplying so that header
// dimensions whose product overflows int cannot match.
func holdsExactly(n int64, size int, shape model.Shape) bool {
	if n%int64(size) != 0 {
		return false
	}
	n /= int64(size)
	for _, dim := range shape {
		if n%int64(dim) != 0 {
			return false
		}
		n /= int64(dim)
	}
	return n == 1
}

// LoadSafeTensors reads a network stored as "weights.<i>" and "biases.<i>"
// integer tensors for i = 0..N-1.
func LoadSafeTensors(path string) (*model.Network, error) {
	r, err := NewSafeTensorsReader(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = r.Close()
	}()

	if err := r.VerifyChecksum(); err != nil {
		return nil, err
	}

	weightCount, biasCount := 0, 0
	for _, name := range r.TensorNames() {
		switch {
		case strings.HasPrefix(name, "weights."):
			weightCount++
		case strings.HasPrefix(name, "biases."):
			biasCount++
		}
	}
	if weightCount == 0 || biasCount == 0 {
		return nil, model.NewShapeError("empty_network", model.NoLayer,
			"%s: need at least one layer, got %d weight and %d bias tensors", path, weightCount, biasCount)
	}
	if weightCount != biasCount {
		return nil, model.NewShapeError("layer_count", min(weightCount, biasCount),
			"%s: %d weight tensors but %d bias tensors", path, weightCount, biasCount)
	}

	layers := make([]model.Layer, weightCount)
	for i := range layers {
		l, err := readLayer(r, i)
		if err != nil {
			return nil, err
		}
		layers[i] = l
	}

	return model.NewNetwork(layers)
}

// readLayer loads the weight and bias tensors of layer i.
func readLayer(r *SafeTensorsReader, i int) (model.Layer, error) {
	wName := serialization.WeightsTensorName(i)
	bName := serialization.BiasesTensorName(i)
	for _, name := range []string{wName, bName} {
		if _, err := r.TensorInfo(name); err != nil {
			return model.Layer{}, model.NewShapeError("missing_tensor", i,
				"tensor %s not found (layers must be numbered from 0 without gaps)", name)
		}
	}

	wShape, wData, err := r.ReadIntegers(wName)
	if err != nil {
		return model.Layer{}, attribute(err, i)
	}
	if wShape.Rank() != 2 {
		return model.Layer{}, model.NewShapeError("rank", i,
			"weights must be 2D, got rank %d with shape %s", wShape.Rank(), wShape)
	}

	bShape, bData, err := r.ReadIntegers(bName)
	if err != nil {
		return model.Layer{}, attribute(err, i)
	}
	if bShape.Rank() != 1 {
		return model.Layer{}, model.NewShapeError("rank", i,
			"biases must be 1D, got rank %d with shape %s", bShape.Rank(), bShape)
	}

	rows := make([][]int64, wShape[0])
	for row := range rows {
		rows[row] = wData[row*wShape[1] : (row+1)*wShape[1]]
	}
	m, err := model.NewMatrix(rows)
	if err != nil {
		return model.Layer{}, attribute(err, i)
	}
	l, err := model.NewLayer(m, model.NewVector(bData))
	if err != nil {
		return model.Layer{}, attribute(err, i)
	}
	return l, nil
}
