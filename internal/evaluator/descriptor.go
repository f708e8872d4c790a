package evaluator

import (
	"fmt"

	"github.com/SyedDaiam9101/frameval/internal/tensor"
)

// Config carries the resource limits for one evaluator instance. It is
// built once by the embedding pipeline and shared read-only by every
// evaluator and buffer it sizes.
type Config struct {
	MaxBatchSize   int
	MaxFrameWidth  int
	MaxFrameHeight int
	DeviceID       int
}

// Validate checks that all limits are positive and the device ID is
// non-negative.
func (c Config) Validate() error {
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive, got %d", c.MaxBatchSize)
	}
	if c.MaxFrameWidth <= 0 {
		return fmt.Errorf("max_frame_width must be positive, got %d", c.MaxFrameWidth)
	}
	if c.MaxFrameHeight <= 0 {
		return fmt.Errorf("max_frame_height must be positive, got %d", c.MaxFrameHeight)
	}
	if c.DeviceID < 0 {
		return fmt.Errorf("device_id must not be negative, got %d", c.DeviceID)
	}
	return nil
}

// MaxInputBufferBytes is the capacity of an input buffer sized for this
// config: MaxBatchSize frames of interleaved RGB24 at the maximum frame
// geometry.
func (c Config) MaxInputBufferBytes() int {
	return c.MaxBatchSize * c.MaxFrameWidth * c.MaxFrameHeight * 3
}

// OutputLayer describes one declared network output: its binding name,
// the flattened element count of one frame's record (excluding the
// batch dimension) and the element type.
type OutputLayer struct {
	Name          string
	ElemsPerFrame int
	DType         tensor.DType
}

// FrameBytes returns the size of one frame's output record.
func (o OutputLayer) FrameBytes() int {
	return o.ElemsPerFrame * o.DType.Size()
}

// NetDescriptor is the static description of a trained network. It is
// loaded once at startup, owned by the constructor and shared by every
// evaluator the constructor spawns.
//
// ModelPath points at the network topology (for ONNX, the single model
// file). WeightsPath is for backends that ship weights separately and
// may be empty otherwise. Channels, InputHeight and InputWidth are the
// network's fixed input geometry, independent of the source frame size.
// Mean and Scale are the per-channel normalization the input
// transformer applies.
type NetDescriptor struct {
	ModelPath   string
	WeightsPath string
	InputLayer  string
	Channels    int
	InputHeight int
	InputWidth  int
	Mean        [3]float32
	Scale       float32
	Outputs     []OutputLayer
}

// Validate checks the descriptor for the fields every backend needs.
func (d NetDescriptor) Validate() error {
	if d.ModelPath == "" {
		return fmt.Errorf("model path is required")
	}
	if d.InputLayer == "" {
		return fmt.Errorf("input layer name is required")
	}
	if d.Channels <= 0 || d.InputHeight <= 0 || d.InputWidth <= 0 {
		return fmt.Errorf("invalid net input geometry: channels=%d, height=%d, width=%d",
			d.Channels, d.InputHeight, d.InputWidth)
	}
	if len(d.Outputs) == 0 {
		return fmt.Errorf("at least one output layer is required")
	}
	for i, out := range d.Outputs {
		if out.Name == "" {
			return fmt.Errorf("output %d has no name", i)
		}
		if out.ElemsPerFrame <= 0 {
			return fmt.Errorf("output %q has invalid element count %d", out.Name, out.ElemsPerFrame)
		}
		if out.DType.Size() == 0 {
			return fmt.Errorf("output %q has invalid dtype", out.Name)
		}
	}
	return nil
}

// OutputNames returns the declared output layer names in order.
func (d NetDescriptor) OutputNames() []string {
	names := make([]string, len(d.Outputs))
	for i, out := range d.Outputs {
		names[i] = out.Name
	}
	return names
}

// InputElems is the flattened element count of one frame in the
// network's input tensor.
func (d NetDescriptor) InputElems() int {
	return d.Channels * d.InputHeight * d.InputWidth
}

// PixelFormat identifies the raw pixel layout of decoded frames.
type PixelFormat int

const (
	// RGB24 is interleaved 8-bit RGB, 3 bytes per pixel.
	RGB24 PixelFormat = iota
)

func (p PixelFormat) String() string {
	switch p {
	case RGB24:
		return "rgb24"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(p))
	}
}

// BytesPerPixel returns the storage width of one pixel, or 0 for
// unknown formats.
func (p PixelFormat) BytesPerPixel() int {
	if p == RGB24 {
		return 3
	}
	return 0
}

// FrameMetadata describes the geometry and format of the frames
// currently flowing through the pipeline. It is set by Configure and
// may change between Configure calls when the stream geometry changes.
type FrameMetadata struct {
	Width       int
	Height      int
	PixelFormat PixelFormat
}

// Validate checks the metadata for positive geometry and a known pixel
// format.
func (m FrameMetadata) Validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("invalid frame geometry: %dx%d", m.Width, m.Height)
	}
	if m.PixelFormat.BytesPerPixel() == 0 {
		return fmt.Errorf("unsupported pixel format %v", m.PixelFormat)
	}
	return nil
}

// FrameBytes returns the byte size of one raw frame.
func (m FrameMetadata) FrameBytes() int {
	return m.Width * m.Height * m.PixelFormat.BytesPerPixel()
}
