package serialization

import (
	"bytes"
	"errors"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/born-ml/hdlgen/internal/model"
)

// SafeTensors dtype written for every tensor. Values are stored as
// little-endian int64 so any model accepted by the loader round-trips.
const dtypeI64 = "I64"

// WeightsTensorName returns the SafeTensors name of layer i's weight matrix.
func WeightsTensorName(i int) string {
	return "weights." + strconv.Itoa(i)
}

// BiasesTensorName returns the SafeTensors name of layer i's bias vector.
func BiasesTensorName(i int) string {
	return "biases." + strconv.Itoa(i)
}

// SafeTensorsWriter writes networks in SafeTensors format.
type SafeTensorsWriter struct {
	file   *os.File
	closed bool
}

// SafeTensorHeader represents a tensor in the SafeTensors header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// NewSafeTensorsWriter creates a new SafeTensors file writer.
func NewSafeTensorsWriter(path string) (*SafeTensorsWriter, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	file, err := os.Create(path)
	if err != nil {
		return nil, &model.IOError{Op: "create", Path: path, Err: err}
	}

	return &SafeTensorsWriter{file: file}, nil
}

// WriteNetwork writes net to a SafeTensors file at path.
//
// Layer i is stored as "weights.<i>" with shape [rows, cols] and
// "biases.<i>" with shape [cols]. The metadata always carries
// format=hdlgen, the layer count and the SHA-256 of the data section
// under ChecksumKey; extra entries are merged in but cannot replace those
// keys. The file is replaced atomically through WriteFileAtomic.
func WriteNetwork(path string, net *model.Network, metadata map[string]string) error {
	if net == nil || net.Len() == 0 {
		return model.NewShapeError("empty_network", model.NoLayer, "network has no layers")
	}
	return WriteFileAtomic(path, func(w io.Writer) error {
		return encodeNetwork(w, net, metadata)
	})
}

type namedTensor struct {
	shape []int64
	data  []int64
}

// WriteNetwork writes the network tensors to the underlying file.
// Tensors are written in alphabetical order by name (SafeTensors requirement).
func (w *SafeTensorsWriter) WriteNetwork(net *model.Network, metadata map[string]string) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	if net == nil || net.Len() == 0 {
		return model.NewShapeError("empty_network", model.NoLayer, "network has no layers")
	}

	if err := encodeNetwork(w.file, net, metadata); err != nil {
		var ioErr *model.IOError
		if errors.As(err, &ioErr) && ioErr.Path == "" {
			ioErr.Path = w.file.Name()
		}
		return err
	}
	return nil
}

// encodeNetwork writes the header and tensor data of net to out.
func encodeNetwork(out io.Writer, net *model.Network, metadata map[string]string) error {
	tensors := make(map[string]namedTensor, 2*net.Len())
	for i, l := range net.Layers() {
		rows, cols := l.Weights.Rows(), l.Weights.Cols()
		data := make([]int64, 0, rows*cols)
		for r := 0; r < rows; r++ {
			data = append(data, l.Weights.Row(r)...)
		}
		tensors[WeightsTensorName(i)] = namedTensor{shape: []int64{int64(rows), int64(cols)}, data: data}
		tensors[BiasesTensorName(i)] = namedTensor{shape: []int64{int64(cols)}, data: l.Biases.Values()}
	}

	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]interface{}, len(names)+1)
	var payload bytes.Buffer
	for _, name := range names {
		start := int64(payload.Len())
		// Writes to a bytes.Buffer cannot fail.
		_ = binary.Write(&payload, binary.LittleEndian, tensors[name].data)
		header[name] = SafeTensorHeader{
			DType:       dtypeI64,
			Shape:       tensors[name].shape,
			DataOffsets: [2]int64{start, int64(payload.Len())},
		}
	}

	meta := make(map[string]string, len(metadata)+3)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["format"] = "hdlgen"
	meta["layers"] = strconv.Itoa(net.Len())
	meta[ChecksumKey] = FormatChecksum(ComputeChecksum(payload.Bytes()))
	header["__metadata__"] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	// Write header size (8 bytes, little-endian uint64)
	if err := binary.Write(out, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return &model.IOError{Op: "write", Err: err}
	}
	if _, err := out.Write(headerJSON); err != nil {
		return &model.IOError{Op: "write", Err: err}
	}
	if _, err := out.Write(payload.Bytes()); err != nil {
		return &model.IOError{Op: "write", Err: err}
	}

	return nil
}

// Close closes the writer and the underlying file.
func (w *SafeTensorsWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}
