package tensor

import (
	"math"
	"testing"
)

func TestDTypeSize(t *testing.T) {
	cases := []struct {
		dtype DType
		size  int
	}{
		{Float32, 4},
		{Float16, 2},
		{Uint8, 1},
		{DType(99), 0},
	}
	for _, c := range cases {
		if got := c.dtype.Size(); got != c.size {
			t.Errorf("%v.Size() = %d, expected %d", c.dtype, got, c.size)
		}
	}
}

func TestParseDType(t *testing.T) {
	cases := []struct {
		in   string
		want DType
	}{
		{"float32", Float32},
		{"", Float32},
		{"float16", Float16},
		{"uint8", Uint8},
	}
	for _, c := range cases {
		got, err := ParseDType(c.in)
		if err != nil {
			t.Errorf("ParseDType(%q) failed: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseDType(%q) = %v, expected %v", c.in, got, c.want)
		}
	}

	if _, err := ParseDType("int64"); err == nil {
		t.Error("Expected error for unknown dtype")
	}
}

func TestFloat32Roundtrip(t *testing.T) {
	src := []float32{0, 1, -1, 0.5, math.MaxFloat32, float32(math.Pi)}
	buf := make([]byte, 4*len(src))
	if err := PutFloat32s(buf, src); err != nil {
		t.Fatalf("PutFloat32s failed: %v", err)
	}
	got, err := DecodeFloat32s(buf, len(src))
	if err != nil {
		t.Fatalf("DecodeFloat32s failed: %v", err)
	}
	for i := range src {
		if got[i] != src[i] {
			t.Errorf("Element %d: got %f, expected %f", i, got[i], src[i])
		}
	}
}

func TestFloat16Roundtrip(t *testing.T) {
	// Values exactly representable in half precision survive the trip
	src := []float32{0, 1, -1, 0.5, 0.25, 2048}
	buf := make([]byte, 2*len(src))
	if err := PutFloat16s(buf, src); err != nil {
		t.Fatalf("PutFloat16s failed: %v", err)
	}
	got, err := DecodeFloat16s(buf, len(src))
	if err != nil {
		t.Fatalf("DecodeFloat16s failed: %v", err)
	}
	for i := range src {
		if got[i] != src[i] {
			t.Errorf("Element %d: got %f, expected %f", i, got[i], src[i])
		}
	}
}

func TestEncodeBoundsChecks(t *testing.T) {
	src := []float32{1, 2, 3}
	if err := PutFloat32s(make([]byte, 8), src); err == nil {
		t.Error("Expected error for short float32 destination")
	}
	if err := PutFloat16s(make([]byte, 4), src); err == nil {
		t.Error("Expected error for short float16 destination")
	}
	if _, err := DecodeFloat32s(make([]byte, 8), 3); err == nil {
		t.Error("Expected error for short float32 source")
	}
	if _, err := DecodeFloat16s(make([]byte, 4), 3); err == nil {
		t.Error("Expected error for short float16 source")
	}
}
