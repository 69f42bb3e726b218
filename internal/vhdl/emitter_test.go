package vhdl

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/hdlgen/internal/model"
)

// buildNetwork creates a network from literal per-layer rows and biases.
func buildNetwork(t testing.TB, weights [][][]int64, biases [][]int64) *model.Network {
	t.Helper()
	layers := make([]model.Layer, len(weights))
	for i := range weights {
		w, err := model.NewMatrix(weights[i])
		require.NoError(t, err)
		l, err := model.NewLayer(w, model.NewVector(biases[i]))
		require.NoError(t, err)
		layers[i] = l
	}
	net, err := model.NewNetwork(layers)
	require.NoError(t, err)
	return net
}

func twoLayerNetwork(t testing.TB) *model.Network {
	return buildNetwork(t,
		[][][]int64{{{1, 2}, {3, 4}}, {{1}, {1}}},
		[][]int64{{0, 0}, {-5}},
	)
}

func emit(t testing.TB, e *Emitter, net *model.Network, width int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, e.Emit(&buf, net, width))
	return buf.String()
}

func defaultEmitter(t testing.TB) *Emitter {
	t.Helper()
	e, err := New(DefaultConfig())
	require.NoError(t, err)
	return e
}

func TestEmit_Golden(t *testing.T) {
	want, err := os.ReadFile(filepath.Join("testdata", "two_layer.vhd"))
	require.NoError(t, err)

	got := emit(t, defaultEmitter(t), twoLayerNetwork(t), 2)
	assert.Equal(t, string(want), got)
}

func TestEmit_Deterministic(t *testing.T) {
	e := defaultEmitter(t)
	net := buildNetwork(t,
		[][][]int64{{{1, -2, 3}, {4, 5, -6}}, {{7, 8}, {9, 10}, {11, 12}}},
		[][]int64{{1, 2, 3}, {-1, -2}},
	)

	first := emit(t, e, net, 2)
	second := emit(t, e, net, 2)
	assert.Equal(t, first, second)

	other, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, first, emit(t, other, net, 2))
}

var (
	reInputPort  = regexp.MustCompile(`(?m)^\s+input_vec\s+: in\s+INTEGER_VECTOR\((\d+) downto 0\);$`)
	reOutputPort = regexp.MustCompile(`(?m)^\s+output_bit : out STD_LOGIC$`)
	rePortLine   = regexp.MustCompile(`(?m)^\s+\w+\s+: (in|out)\s`)
)

func TestEmit_SingleLayerPorts(t *testing.T) {
	e := defaultEmitter(t)
	for _, dims := range [][2]int{{1, 1}, {3, 1}, {1, 4}, {5, 3}} {
		rows, cols := dims[0], dims[1]
		t.Run(fmt.Sprintf("%dx%d", rows, cols), func(t *testing.T) {
			weights := make([][]int64, rows)
			for r := range weights {
				weights[r] = make([]int64, cols)
				for c := range weights[r] {
					weights[r][c] = int64(r*cols + c)
				}
			}
			net := buildNetwork(t, [][][]int64{weights}, [][]int64{make([]int64, cols)})

			width, err := net.ResolveInputWidth(0)
			require.NoError(t, err)
			out := emit(t, e, net, width)

			m := reInputPort.FindAllStringSubmatch(out, -1)
			require.Len(t, m, 1)
			assert.Equal(t, fmt.Sprint(rows-1), m[0][1])
			assert.Len(t, reOutputPort.FindAllString(out, -1), 1)
			assert.Len(t, rePortLine.FindAllString(out, -1), 2, "only the input vector and output bit are ports")
			assert.NotContains(t, strings.ToLower(out), "clk")
		})
	}
}

func TestEmit_ConstantsMatchSourceMatrix(t *testing.T) {
	weights := [][][]int64{
		{{1, 2, 3}, {4, 5, 6}},
		{{7}, {8}, {9}},
		{{-1, -2}},
	}
	biases := [][]int64{{10, 20, 30}, {40}, {50, 60}}
	out := emit(t, defaultEmitter(t), buildNetwork(t, weights, biases), 2)

	assert.Contains(t, out, "    type weights_layer_0_t is array (0 to 1, 0 to 2) of integer;\n"+
		"    constant weights_layer_0 : weights_layer_0_t := (\n"+
		"        (1, 2, 3),\n"+
		"        (4, 5, 6)\n"+
		"    );\n")
	assert.Contains(t, out, "    type weights_layer_1_t is array (0 to 2, 0 to 0) of integer;\n"+
		"    constant weights_layer_1 : weights_layer_1_t := (\n"+
		"        (0 => 7),\n"+
		"        (0 => 8),\n"+
		"        (0 => 9)\n"+
		"    );\n")
	assert.Contains(t, out, "    type weights_layer_2_t is array (0 to 0, 0 to 1) of integer;\n"+
		"    constant weights_layer_2 : weights_layer_2_t := (\n"+
		"        0 => (-1, -2)\n"+
		"    );\n")
	assert.Contains(t, out, "constant biases_layer_0 : INTEGER_VECTOR(2 downto 0) := (2 => 30, 1 => 20, 0 => 10);")
	assert.Contains(t, out, "constant biases_layer_1 : INTEGER_VECTOR(0 downto 0) := (0 => 40);")
	assert.Contains(t, out, "constant biases_layer_2 : INTEGER_VECTOR(1 downto 0) := (1 => 60, 0 => 50);")
}

func TestEmit_SectionOrder(t *testing.T) {
	out := emit(t, defaultEmitter(t), twoLayerNetwork(t), 2)

	markers := []string{
		"entity MLP is",
		"end MLP;",
		"architecture Behavioral of MLP is",
		"constant weights_layer_0",
		"constant biases_layer_1",
		"begin\n    process(input_vec)",
		"end process;",
		"end Behavioral;\n",
	}
	last := -1
	for _, m := range markers {
		idx := strings.Index(out, m)
		require.GreaterOrEqual(t, idx, 0, "missing %q", m)
		assert.Greater(t, idx, last, "%q out of order", m)
		last = idx
	}
	assert.True(t, strings.HasSuffix(out, "end Behavioral;\n"))
}

func TestEmit_LayerChaining(t *testing.T) {
	net := buildNetwork(t,
		[][][]int64{{{1, 1}}, {{1, 1, 1}, {1, 1, 1}}, {{1}, {1}, {1}}},
		[][]int64{{0, 0}, {0, 0, 0}, {0}},
	)
	out := emit(t, defaultEmitter(t), net, 1)

	assert.Contains(t, out, "sum_val := sum_val + (input_vec(k) * weights_layer_0(k, j));")
	assert.Contains(t, out, "sum_val := sum_val + (layer_0_output(k) * weights_layer_1(k, j));")
	assert.Contains(t, out, "sum_val := sum_val + (layer_1_output(k) * weights_layer_2(k, j));")
	assert.Contains(t, out, "variable layer_1_output : INTEGER_VECTOR(2 downto 0);")
	assert.Contains(t, out, "if layer_2_output(0) > 0 then")
	assert.Equal(t, 1, strings.Count(out, "variable sum_val : integer;"))
}

func TestEmit_WideFinalLayerReadsOnlyIndexZero(t *testing.T) {
	net := buildNetwork(t, [][][]int64{{{1, 2, 3}}}, [][]int64{{0, 0, 0}})
	out := emit(t, defaultEmitter(t), net, 1)

	assert.Contains(t, out, "for j in 0 to 2 loop")
	assert.Contains(t, out, "if layer_0_output(0) > 0 then")
	assert.NotContains(t, out, "layer_0_output(1)")
	assert.NotContains(t, out, "layer_0_output(2)")
}

func TestEmit_CustomNames(t *testing.T) {
	e, err := New(Config{Entity: "spam_filter", Architecture: "rtl"})
	require.NoError(t, err)
	out := emit(t, e, twoLayerNetwork(t), 2)

	assert.Contains(t, out, "entity spam_filter is")
	assert.Contains(t, out, "end spam_filter;")
	assert.Contains(t, out, "architecture rtl of spam_filter is")
	assert.True(t, strings.HasSuffix(out, "end rtl;\n"))
}

func TestEmit_Errors(t *testing.T) {
	e := defaultEmitter(t)

	var buf bytes.Buffer
	err := e.Emit(&buf, nil, 2)
	assert.ErrorIs(t, err, model.ErrShape)
	assert.Zero(t, buf.Len())

	err = e.Emit(&buf, &model.Network{}, 2)
	assert.ErrorIs(t, err, model.ErrShape)
	assert.Zero(t, buf.Len())

	err = e.Emit(&buf, twoLayerNetwork(t), 0)
	assert.ErrorIs(t, err, model.ErrShape)
	assert.Zero(t, buf.Len())
}

// failingWriter accepts limit bytes, then fails.
type failingWriter struct {
	limit int
	n     int
}

var errDiskFull = errors.New("disk full")

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n+len(p) > w.limit {
		return 0, errDiskFull
	}
	w.n += len(p)
	return len(p), nil
}

func TestEmit_WriteFailure(t *testing.T) {
	e := defaultEmitter(t)

	for _, limit := range []int{0, 100, 1000} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			err := e.Emit(&failingWriter{limit: limit}, twoLayerNetwork(t), 2)
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrIO)
			assert.ErrorIs(t, err, errDiskFull)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default", cfg: DefaultConfig()},
		{name: "underscores", cfg: Config{Entity: "mlp_top_1", Architecture: "rtl"}},
		{name: "leading digit", cfg: Config{Entity: "1mlp", Architecture: "rtl"}, wantErr: true},
		{name: "double underscore", cfg: Config{Entity: "mlp__top", Architecture: "rtl"}, wantErr: true},
		{name: "trailing underscore", cfg: Config{Entity: "mlp_", Architecture: "rtl"}, wantErr: true},
		{name: "reserved entity", cfg: Config{Entity: "Process", Architecture: "rtl"}, wantErr: true},
		{name: "generated name", cfg: Config{Entity: "MLP", Architecture: "input_vec"}, wantErr: true},
		{name: "space", cfg: Config{Entity: "my mlp", Architecture: "rtl"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	_, err := New(Config{Entity: "bad name"})
	assert.Error(t, err)
}

func BenchmarkEmit(b *testing.B) {
	const inputs, hidden = 64, 32
	w0 := make([][]int64, inputs)
	for r := range w0 {
		w0[r] = make([]int64, hidden)
		for c := range w0[r] {
			w0[r][c] = int64((r*hidden+c)%17 - 8)
		}
	}
	w1 := make([][]int64, hidden)
	for r := range w1 {
		w1[r] = []int64{int64(r%5 - 2)}
	}
	net := buildNetwork(b, [][][]int64{w0, w1}, [][]int64{make([]int64, hidden), {3}})
	e, err := New(DefaultConfig())
	require.NoError(b, err)

	var buf bytes.Buffer
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		if err := e.Emit(&buf, net, inputs); err != nil {
			b.Fatal(err)
		}
	}
}
