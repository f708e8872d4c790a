package evaluator

import (
	"testing"

	"github.com/SyedDaiam9101/frameval/internal/tensor"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{MaxBatchSize: 4, MaxFrameWidth: 224, MaxFrameHeight: 224}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid config, got: %v", err)
	}

	cases := []Config{
		{MaxBatchSize: 0, MaxFrameWidth: 224, MaxFrameHeight: 224},
		{MaxBatchSize: 4, MaxFrameWidth: 0, MaxFrameHeight: 224},
		{MaxBatchSize: 4, MaxFrameWidth: 224, MaxFrameHeight: -1},
		{MaxBatchSize: 4, MaxFrameWidth: 224, MaxFrameHeight: 224, DeviceID: -1},
	}
	for i, cfg := range cases {
		if err := cfg.Validate(); err == nil {
			t.Errorf("Case %d: expected validation error, got nil", i)
		}
	}
}

func TestConfigMaxInputBufferBytes(t *testing.T) {
	cfg := Config{MaxBatchSize: 4, MaxFrameWidth: 224, MaxFrameHeight: 224}
	want := 4 * 224 * 224 * 3
	if got := cfg.MaxInputBufferBytes(); got != want {
		t.Errorf("MaxInputBufferBytes() = %d, expected %d", got, want)
	}
}

func TestNetDescriptorValidate(t *testing.T) {
	if err := testDescriptor().Validate(); err != nil {
		t.Errorf("Expected valid descriptor, got: %v", err)
	}

	noModel := testDescriptor()
	noModel.ModelPath = ""
	if err := noModel.Validate(); err == nil {
		t.Error("Expected error for missing model path")
	}

	noInput := testDescriptor()
	noInput.InputLayer = ""
	if err := noInput.Validate(); err == nil {
		t.Error("Expected error for missing input layer")
	}

	noOutputs := testDescriptor()
	noOutputs.Outputs = nil
	if err := noOutputs.Validate(); err == nil {
		t.Error("Expected error for empty output list")
	}

	badElems := testDescriptor()
	badElems.Outputs[0].ElemsPerFrame = 0
	if err := badElems.Validate(); err == nil {
		t.Error("Expected error for zero element count")
	}
}

func TestOutputLayerFrameBytes(t *testing.T) {
	f32 := OutputLayer{Name: "prob", ElemsPerFrame: 1000, DType: tensor.Float32}
	if f32.FrameBytes() != 4000 {
		t.Errorf("float32 FrameBytes() = %d, expected 4000", f32.FrameBytes())
	}
	f16 := OutputLayer{Name: "fc7", ElemsPerFrame: 1000, DType: tensor.Float16}
	if f16.FrameBytes() != 2000 {
		t.Errorf("float16 FrameBytes() = %d, expected 2000", f16.FrameBytes())
	}
}

func TestFrameMetadata(t *testing.T) {
	md := FrameMetadata{Width: 640, Height: 480, PixelFormat: RGB24}
	if err := md.Validate(); err != nil {
		t.Errorf("Expected valid metadata, got: %v", err)
	}
	if md.FrameBytes() != 640*480*3 {
		t.Errorf("FrameBytes() = %d, expected %d", md.FrameBytes(), 640*480*3)
	}

	bad := FrameMetadata{Width: 0, Height: 480, PixelFormat: RGB24}
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for zero width")
	}
	unknown := FrameMetadata{Width: 640, Height: 480, PixelFormat: PixelFormat(99)}
	if err := unknown.Validate(); err == nil {
		t.Error("Expected error for unknown pixel format")
	}
}
