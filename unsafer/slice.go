// Package unsafer reinterprets Go values as raw bytes for copying them into
// mapped GPU memory or push constant ranges.
package unsafer

import (
	"unsafe"
)

// SliceToBytes interprets an arbitrary input slice as a byte slice. An empty
// input yields a nil slice.
//
// Note that the returned slice points to the same underlying data in memory. It
// does not make a copy.
func SliceToBytes[T any](input []T) []byte {
	if len(input) == 0 {
		return nil
	}

	size := int(unsafe.Sizeof(input[0])) * len(input)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(input))), size)
}

// StructToBytes interprets the memory of the value pointed to by input as a
// byte slice. Like SliceToBytes it does not copy.
func StructToBytes[T any](input *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(input)), unsafe.Sizeof(*input))
}

// SliceBytesToUint32 reinterprets SPIR-V bytecode as 32 bit words. Trailing
// bytes which do not form a whole word are dropped.
func SliceBytesToUint32(code []byte) []uint32 {
	if len(code) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(unsafe.SliceData(code))), len(code)/4)
}
