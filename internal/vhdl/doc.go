// Package vhdl emits an integer MLP as a combinational VHDL-2008 entity.
//
// The generated unit has one INTEGER_VECTOR input port and one STD_LOGIC
// output bit. Each layer's weights and biases become constants named
// weights_layer_<i> and biases_layer_<i>; a single process accumulates
// bias + sum(input(k) * weight(k, j)) per neuron, layer by layer, and
// drives the output bit high when output 0 of the last layer is positive.
package vhdl
