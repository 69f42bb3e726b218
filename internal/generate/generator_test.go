package generate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/hdlgen/internal/model"
	"github.com/born-ml/hdlgen/internal/parallel"
	"github.com/born-ml/hdlgen/internal/serialization"
	"github.com/born-ml/hdlgen/internal/sim"
)

const (
	twoLayerWeights = `[[[1, 2], [3, 4]], [[1], [1]]]`
	twoLayerBiases  = `[[0, 0], [-5]]`
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// twoLayerRequest writes the two layer fixture into dir.
func twoLayerRequest(t *testing.T, dir string) Request {
	t.Helper()
	return Request{
		WeightsFile: writeFile(t, dir, "weights.json", twoLayerWeights),
		BiasesFile:  writeFile(t, dir, "biases.json", twoLayerBiases),
		OutputFile:  filepath.Join(dir, "out.vhd"),
	}
}

// dirEntries lists the file names in dir.
func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestGenerate_TwoLayerGolden(t *testing.T) {
	dir := t.TempDir()
	req := twoLayerRequest(t, dir)

	require.NoError(t, New(DefaultConfig()).Generate(req))

	got, err := os.ReadFile(req.OutputFile)
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join("..", "vhdl", "testdata", "two_layer.vhd"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	// Only inputs and the output remain; the temporary file was renamed.
	assert.ElementsMatch(t, []string{"weights.json", "biases.json", "out.vhd"}, dirEntries(t, dir))
}

func TestGenerate_OutputComputesForwardPass(t *testing.T) {
	dir := t.TempDir()
	req := twoLayerRequest(t, dir)
	require.NoError(t, New(DefaultConfig()).Generate(req))

	f, err := os.Open(req.OutputFile)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	prog, err := sim.Parse(f)
	require.NoError(t, err)
	res, err := prog.Run([]int64{3, 3})
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{12, 18}, {25}}, res.Layers)
	assert.Equal(t, 1, res.Bit)
}

func TestGenerate_CustomNames(t *testing.T) {
	dir := t.TempDir()
	req := twoLayerRequest(t, dir)
	req.Entity = "Classifier"
	req.Architecture = "RTL"

	require.NoError(t, New(DefaultConfig()).Generate(req))

	got, err := os.ReadFile(req.OutputFile)
	require.NoError(t, err)
	text := string(got)
	assert.Contains(t, text, "entity Classifier is")
	assert.Contains(t, text, "architecture RTL of Classifier is")
	assert.True(t, strings.HasSuffix(text, "end RTL;\n"))
}

func TestGenerate_SafeTensorsModel(t *testing.T) {
	dir := t.TempDir()
	req := twoLayerRequest(t, dir)
	net := buildNetwork(t)

	modelPath := filepath.Join(dir, "model.safetensors")
	require.NoError(t, serialization.WriteNetwork(modelPath, net, nil))

	fromJSON := filepath.Join(dir, "json.vhd")
	fromModel := filepath.Join(dir, "model.vhd")
	g := New(DefaultConfig())
	require.NoError(t, g.Generate(Request{WeightsFile: req.WeightsFile, BiasesFile: req.BiasesFile, OutputFile: fromJSON}))
	require.NoError(t, g.Generate(Request{ModelFile: modelPath, OutputFile: fromModel}))

	a, err := os.ReadFile(fromJSON)
	require.NoError(t, err)
	b, err := os.ReadFile(fromModel)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func buildNetwork(t *testing.T) *model.Network {
	t.Helper()
	w0, err := model.NewMatrix([][]int64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	w1, err := model.NewMatrix([][]int64{{1}, {1}})
	require.NoError(t, err)
	l0, err := model.NewLayer(w0, model.NewVector([]int64{0, 0}))
	require.NoError(t, err)
	l1, err := model.NewLayer(w1, model.NewVector([]int64{-5}))
	require.NoError(t, err)
	net, err := model.NewNetwork([]model.Layer{l0, l1})
	require.NoError(t, err)
	return net
}

func TestGenerate_FailuresLeaveNoOutput(t *testing.T) {
	tests := []struct {
		name      string
		weights   string
		biases    string
		inputSize int
		entity    string
		wantErr   error
	}{
		{name: "empty lists", weights: `[]`, biases: `[]`, wantErr: model.ErrShape},
		{name: "chain mismatch", weights: `[[[1, 2], [3, 4]], [[1], [1], [1]]]`, biases: `[[0, 0], [0]]`, wantErr: model.ErrShape},
		{name: "bias length", weights: `[[[1], [2]]]`, biases: `[[0, 0]]`, wantErr: model.ErrShape},
		{name: "float weight", weights: `[[[1.5]]]`, biases: `[[0]]`, wantErr: model.ErrTypeMismatch},
		{name: "malformed json", weights: `[[[1]]`, biases: `[[0]]`, wantErr: model.ErrIO},
		{name: "explicit width mismatch", weights: twoLayerWeights, biases: twoLayerBiases, inputSize: 3, wantErr: model.ErrShape},
		{name: "invalid entity", weights: twoLayerWeights, biases: twoLayerBiases, entity: "1bad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			req := Request{
				WeightsFile: writeFile(t, dir, "w.json", tt.weights),
				BiasesFile:  writeFile(t, dir, "b.json", tt.biases),
				OutputFile:  filepath.Join(dir, "out.vhd"),
				InputSize:   tt.inputSize,
				Entity:      tt.entity,
			}

			err := New(DefaultConfig()).Generate(req)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
			assert.ElementsMatch(t, []string{"w.json", "b.json"}, dirEntries(t, dir))
		})
	}
}

func TestGenerate_MissingInputFile(t *testing.T) {
	dir := t.TempDir()
	req := twoLayerRequest(t, dir)
	req.BiasesFile = filepath.Join(dir, "absent.json")

	err := New(DefaultConfig()).Generate(req)
	require.Error(t, err)

	var ioErr *model.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, req.BiasesFile, ioErr.Path)
	_, statErr := os.Stat(req.OutputFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestGenerate_UnwritableOutputDir(t *testing.T) {
	dir := t.TempDir()
	req := twoLayerRequest(t, dir)
	req.OutputFile = filepath.Join(dir, "missing", "out.vhd")

	err := New(DefaultConfig()).Generate(req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrIO))
}

func TestGenerate_ReplacesExistingOutput(t *testing.T) {
	dir := t.TempDir()
	req := twoLayerRequest(t, dir)
	writeFile(t, dir, "out.vhd", "stale")

	require.NoError(t, New(DefaultConfig()).Generate(req))

	got, err := os.ReadFile(req.OutputFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(got), "-- Auto-generated VHDL MLP"))
}

func TestRequest_DefaultOutput(t *testing.T) {
	assert.Equal(t, DefaultOutputFile, Request{}.output())
	assert.Equal(t, "x.vhd", Request{OutputFile: "x.vhd"}.output())
}

func TestBatch(t *testing.T) {
	dir := t.TempDir()
	base := twoLayerRequest(t, dir)

	reqs := make([]Request, 4)
	for i := range reqs {
		reqs[i] = base
		reqs[i].OutputFile = filepath.Join(dir, "out"+string(rune('a'+i))+".vhd")
	}

	g := New(Config{Parallel: parallel.Config{Enabled: true, NumWorkers: 2}})
	require.NoError(t, g.Batch(reqs))

	assert.NoFileExists(t, base.OutputFile)

	first, err := os.ReadFile(reqs[0].OutputFile)
	require.NoError(t, err)
	for _, req := range reqs[1:] {
		got, err := os.ReadFile(req.OutputFile)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(got))
	}
}

func TestBatch_ReportsEveryFailure(t *testing.T) {
	dir := t.TempDir()
	good := twoLayerRequest(t, dir)
	bad := Request{
		WeightsFile: writeFile(t, dir, "empty_w.json", `[]`),
		BiasesFile:  writeFile(t, dir, "empty_b.json", `[]`),
	}

	reqs := []Request{good, bad, good, bad}
	for i := range reqs {
		reqs[i].OutputFile = filepath.Join(dir, "job"+string(rune('0'+i))+".vhd")
	}

	err := New(Config{Parallel: parallel.Config{Enabled: true, NumWorkers: 4}}).Batch(reqs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrShape))
	assert.Contains(t, err.Error(), "job 1 (")
	assert.Contains(t, err.Error(), "job 3 (")
	assert.NotContains(t, err.Error(), "job 0 (")

	assert.FileExists(t, reqs[0].OutputFile)
	assert.FileExists(t, reqs[2].OutputFile)
	assert.NoFileExists(t, reqs[1].OutputFile)
	assert.NoFileExists(t, reqs[3].OutputFile)
}

func TestBatch_DuplicateOutputs(t *testing.T) {
	dir := t.TempDir()
	req := twoLayerRequest(t, dir)

	err := New(DefaultConfig()).Batch([]Request{req, req})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jobs 0 and 1")
	assert.NoFileExists(t, req.OutputFile)
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "jobs.json", `[
		{"weights_file": "w.json", "biases_file": "b.json", "output_file": "a.vhd", "entity": "A"},
		{"model_file": "/abs/model.safetensors", "input_size": 4}
	]`)

	reqs, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	assert.Equal(t, Request{
		WeightsFile: filepath.Join(dir, "w.json"),
		BiasesFile:  filepath.Join(dir, "b.json"),
		OutputFile:  filepath.Join(dir, "a.vhd"),
		Entity:      "A",
	}, reqs[0])
	assert.Equal(t, Request{
		ModelFile:  "/abs/model.safetensors",
		OutputFile: filepath.Join(dir, DefaultOutputFile),
		InputSize:  4,
	}, reqs[1])
}

func TestLoadManifest_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown field", content: `[{"weights": "w.json"}]`},
		{name: "not a list", content: `{"weights_file": "w.json"}`},
		{name: "malformed", content: `[{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "jobs.json", tt.content)
			_, err := LoadManifest(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrIO))
		})
	}

	_, err := LoadManifest(filepath.Join(t.TempDir(), "absent.json"))
	assert.True(t, errors.Is(err, model.ErrIO))
}
