// Package loader turns model files into a validated *model.Network.
//
// Supported inputs:
//   - A weights JSON document (list of 2-D integer arrays, one per layer)
//     plus a biases JSON document (list of 1-D integer arrays)
//   - A single JSON object {"weights": [...], "biases": [...]}
//   - A SafeTensors file with integer tensors "weights.<i>" and "biases.<i>"
//
// JSON numbers are decoded with UseNumber, so a value such as 0.5 or 1e3 is
// reported as a model.TypeMismatchError instead of being truncated.
// Structural problems (wrong rank, ragged rows, missing biases, broken
// layer chain) are model.ShapeErrors carrying the layer index. SafeTensors
// files whose metadata records a data checksum are verified before use.
//
// Example:
//
//	net, err := loader.Load(loader.Source{
//	    WeightsFile: "weights.json",
//	    BiasesFile:  "biases.json",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
package loader
