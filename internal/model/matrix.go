package model

// Matrix is an immutable row-major rows × cols integer matrix.
//
// Rows index the inputs of a layer and columns index its outputs, so
// At(k, j) is the weight from input k to neuron j.
type Matrix struct {
	rows int
	cols int
	data []int64
}

// NewMatrix copies rows into a Matrix.
// It fails with a ShapeError when rows is empty, a row is empty, or the rows
// have different lengths.
func NewMatrix(rows [][]int64) (Matrix, error) {
	if len(rows) == 0 {
		return Matrix{}, NewShapeError("empty_matrix", NoLayer, "matrix has no rows")
	}
	cols := len(rows[0])
	shape := Shape{len(rows), cols}
	if err := shape.Validate(); err != nil {
		return Matrix{}, NewShapeError("empty_matrix", NoLayer, "shape %s: %v", shape, err)
	}

	data := make([]int64, 0, shape.NumElements())
	for r, row := range rows {
		if len(row) != cols {
			return Matrix{}, NewShapeError("ragged", NoLayer,
				"row %d has %d columns, row 0 has %d", r, len(row), cols)
		}
		data = append(data, row...)
	}

	return Matrix{rows: len(rows), cols: cols, data: data}, nil
}

// Rows returns the number of rows (layer inputs).
func (m Matrix) Rows() int {
	return m.rows
}

// Cols returns the number of columns (layer outputs).
func (m Matrix) Cols() int {
	return m.cols
}

// Shape returns (rows, cols).
func (m Matrix) Shape() Shape {
	return Shape{m.rows, m.cols}
}

// At returns the element at row r, column c.
func (m Matrix) At(r, c int) int64 {
	return m.data[r*m.cols+c]
}

// Row returns a copy of row r.
func (m Matrix) Row(r int) []int64 {
	row := make([]int64, m.cols)
	copy(row, m.data[r*m.cols:(r+1)*m.cols])
	return row
}

// Vector is an immutable integer vector.
type Vector struct {
	data []int64
}

// NewVector copies values into a Vector.
func NewVector(values []int64) Vector {
	data := make([]int64, len(values))
	copy(data, values)
	return Vector{data: data}
}

// Len returns the number of elements.
func (v Vector) Len() int {
	return len(v.data)
}

// At returns element i.
func (v Vector) At(i int) int64 {
	return v.data[i]
}

// Values returns a copy of the elements.
func (v Vector) Values() []int64 {
	out := make([]int64, len(v.data))
	copy(out, v.data)
	return out
}
