// Package tensor holds the element-type vocabulary shared by net
// descriptors, evaluators and the driver: byte widths per element and
// little-endian encode/decode helpers for moving tensor data through
// raw byte buffers.
package tensor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// DType identifies the element type of a tensor flowing through an
// output buffer.
type DType int

const (
	Float32 DType = iota
	Float16
	Uint8
)

// Size returns the width of one element in bytes.
func (d DType) Size() int {
	switch d {
	case Float32:
		return 4
	case Float16:
		return 2
	case Uint8:
		return 1
	default:
		return 0
	}
}

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	case Uint8:
		return "uint8"
	default:
		return fmt.Sprintf("DType(%d)", int(d))
	}
}

// ParseDType maps a configuration string to a DType.
func ParseDType(s string) (DType, error) {
	switch s {
	case "float32", "":
		return Float32, nil
	case "float16":
		return Float16, nil
	case "uint8":
		return Uint8, nil
	default:
		return 0, fmt.Errorf("unknown dtype %q", s)
	}
}

// PutFloat32s encodes src into dst little-endian. dst must hold at
// least 4*len(src) bytes.
func PutFloat32s(dst []byte, src []float32) error {
	if len(dst) < 4*len(src) {
		return fmt.Errorf("destination too small: %d bytes for %d float32 values", len(dst), len(src))
	}
	for i, v := range src {
		binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(v))
	}
	return nil
}

// PutFloat16s encodes src into dst as IEEE 754 half-precision,
// little-endian. dst must hold at least 2*len(src) bytes.
func PutFloat16s(dst []byte, src []float32) error {
	if len(dst) < 2*len(src) {
		return fmt.Errorf("destination too small: %d bytes for %d float16 values", len(dst), len(src))
	}
	for i, v := range src {
		binary.LittleEndian.PutUint16(dst[2*i:], float16.Fromfloat32(v).Bits())
	}
	return nil
}

// DecodeFloat32s decodes count little-endian float32 values from src.
func DecodeFloat32s(src []byte, count int) ([]float32, error) {
	if len(src) < 4*count {
		return nil, fmt.Errorf("source too small: %d bytes for %d float32 values", len(src), count)
	}
	out := make([]float32, count)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
	}
	return out, nil
}

// DecodeFloat16s decodes count little-endian half-precision values
// from src, widening to float32.
func DecodeFloat16s(src []byte, count int) ([]float32, error) {
	if len(src) < 2*count {
		return nil, fmt.Errorf("source too small: %d bytes for %d float16 values", len(src), count)
	}
	out := make([]float32, count)
	for i := range out {
		out[i] = float16.Frombits(binary.LittleEndian.Uint16(src[2*i:])).Float32()
	}
	return out, nil
}
