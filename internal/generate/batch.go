package generate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/born-ml/hdlgen/internal/model"
	"github.com/born-ml/hdlgen/internal/parallel"
)

// Batch runs every request concurrently according to the Parallel config.
//
// Each request writes its own file, so requests must name distinct output
// paths; duplicates are rejected before any job starts. All jobs run even if
// some fail, and the returned error lists each failure with its job index.
func (g *Generator) Batch(reqs []Request) error {
	seen := make(map[string]int, len(reqs))
	for i, req := range reqs {
		out := filepath.Clean(req.output())
		if j, dup := seen[out]; dup {
			return fmt.Errorf("jobs %d and %d both write %s", j, i, out)
		}
		seen[out] = i
	}

	g.logger.Debug("starting batch", "jobs", len(reqs), "workers", g.cfg.Parallel.NumWorkers)
	return parallel.ForEach(len(reqs), func(i int) error {
		if err := g.Generate(reqs[i]); err != nil {
			return fmt.Errorf("job %d (%s): %w", i, reqs[i].output(), err)
		}
		return nil
	}, g.cfg.Parallel)
}

// LoadManifest reads a JSON list of requests from path.
// Relative file paths in the manifest are resolved against its directory.
func LoadManifest(path string) ([]Request, error) {
	//nolint:gosec // G304: File path comes from user input
	file, err := os.Open(path)
	if err != nil {
		return nil, &model.IOError{Op: "read", Path: path, Err: err}
	}
	defer func() {
		_ = file.Close()
	}()

	dec := json.NewDecoder(file)
	dec.DisallowUnknownFields()
	var reqs []Request
	if err := dec.Decode(&reqs); err != nil {
		return nil, &model.IOError{Op: "read", Path: path, Err: fmt.Errorf("failed to decode manifest: %w", err)}
	}

	base := filepath.Dir(path)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	for i := range reqs {
		reqs[i].WeightsFile = resolve(reqs[i].WeightsFile)
		reqs[i].BiasesFile = resolve(reqs[i].BiasesFile)
		reqs[i].ModelFile = resolve(reqs[i].ModelFile)
		reqs[i].OutputFile = resolve(reqs[i].output())
	}
	return reqs, nil
}
