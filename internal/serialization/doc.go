// Package serialization writes validated networks to SafeTensors files and
// provides the header checks shared with the SafeTensors reader.
//
// Layout of a written file:
//
//	[8 bytes: header size (uint64 LE)]
//	[header: JSON, "__metadata__" plus one entry per tensor]
//	[tensor data: little-endian int64, tensors in alphabetical order]
//
// Layer i is stored as "weights.<i>" (shape [rows, cols]) and "biases.<i>"
// (shape [cols]). The metadata records the SHA-256 of the data section
// under ChecksumKey so readers can detect corruption.
//
// Example:
//
//	if err := serialization.WriteNetwork("mlp.safetensors", net, nil); err != nil {
//	    log.Fatal(err)
//	}
package serialization
