package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/born-ml/hdlgen/internal/model"
)

// ModelFormat represents the on-disk model format.
type ModelFormat int

// Supported model formats.
const (
	FormatUnknown ModelFormat = iota
	FormatJSON
	FormatSafeTensors
)

// String returns the format name.
func (f ModelFormat) String() string {
	switch f {
	case FormatJSON:
		return "JSON"
	case FormatSafeTensors:
		return "SafeTensors"
	default:
		return "Unknown"
	}
}

// DetectFormat detects the model format from the file extension.
func DetectFormat(path string) ModelFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".safetensors":
		return FormatSafeTensors
	default:
		return FormatUnknown
	}
}

// Source names where a network comes from: either a weights/biases pair of
// JSON files, or a single model file.
type Source struct {
	WeightsFile string
	BiasesFile  string
	ModelFile   string
}

// Load reads and validates the network described by src.
//
// A single model file may be SafeTensors or a JSON object with "weights"
// and "biases" keys.
func Load(src Source) (*model.Network, error) {
	if src.ModelFile != "" {
		if src.WeightsFile != "" || src.BiasesFile != "" {
			return nil, fmt.Errorf("model file %s given together with weights/biases files", src.ModelFile)
		}
		switch DetectFormat(src.ModelFile) {
		case FormatSafeTensors:
			return LoadSafeTensors(src.ModelFile)
		case FormatJSON:
			return LoadJSONModel(src.ModelFile)
		default:
			return nil, fmt.Errorf("unsupported model format: %s (expected .safetensors or .json)", src.ModelFile)
		}
	}

	if src.WeightsFile == "" || src.BiasesFile == "" {
		return nil, fmt.Errorf("both weights and biases files are required")
	}
	return LoadJSON(src.WeightsFile, src.BiasesFile)
}
