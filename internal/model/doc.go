// Package model holds the validated, immutable representation of an integer
// multi-layer perceptron: matrices, vectors, layers and the layer chain.
//
// Every constructor checks dimensions at construction time, so a *Network
// handed to the emitter is always well formed:
//   - each Matrix is rectangular with rows > 0 and cols > 0
//   - each Layer has len(biases) == cols
//   - a Network has at least one layer and layer i's cols equal layer i+1's rows
//
// Example:
//
//	w, err := model.NewMatrix([][]int64{{1, 2}, {3, 4}})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	layer, err := model.NewLayer(w, model.NewVector([]int64{0, 0}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	net, err := model.NewNetwork([]model.Layer{layer})
package model
