// Package sim checks generated hardware against the model it came from.
//
// Two evaluators produce the same Result for an input vector:
//   - Reference runs the forward pass on the *model.Network with gonum.
//   - Parse + Program.Run interpret the VHDL text written by package vhdl,
//     reading the constants and loop bounds back out of the file.
//
// Agreement between the two shows the emitted accumulation loops reproduce
// the network arithmetic. Neither evaluator models hardware timing or the
// width of the target integer type.
package sim
