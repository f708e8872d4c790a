// Package transform converts raw decoded frame bytes into the numeric
// layout a backend network expects: interleaved RGB24 in, normalized
// planar CHW float32 out, resized to the network's fixed input
// geometry.
package transform

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/SyedDaiam9101/frameval/internal/evaluator"
)

// Factory builds one private RGBInterleaved transformer per evaluator.
type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) New(cfg evaluator.Config, desc evaluator.NetDescriptor) (evaluator.Transformer, error) {
	if desc.Channels != 3 {
		return nil, fmt.Errorf("rgb transformer supports 3-channel networks, got %d", desc.Channels)
	}
	scale := desc.Scale
	if scale == 0 {
		scale = 1
	}
	return &RGBInterleaved{desc: desc, scale: scale}, nil
}

var _ evaluator.TransformerFactory = (*Factory)(nil)

// RGBInterleaved is the input transformer for interleaved RGB24 frames.
// Configure fixes the source geometry; TransformInput resizes each
// frame to the network input geometry (bilinear) and writes planar CHW
// floats, applying (value - mean[c]) * scale per channel.
type RGBInterleaved struct {
	desc  evaluator.NetDescriptor
	scale float32

	md         evaluator.FrameMetadata
	configured bool
	// resize is precomputed per geometry: true when source and net
	// geometry differ.
	resize bool
}

func (t *RGBInterleaved) Configure(md evaluator.FrameMetadata) error {
	if err := md.Validate(); err != nil {
		return err
	}
	if md.PixelFormat != evaluator.RGB24 {
		return fmt.Errorf("rgb transformer supports rgb24 frames, got %v", md.PixelFormat)
	}
	t.md = md
	t.resize = md.Width != t.desc.InputWidth || md.Height != t.desc.InputHeight
	t.configured = true
	return nil
}

func (t *RGBInterleaved) TransformInput(raw []byte, dst []float32, batchSize int) error {
	if !t.configured {
		return fmt.Errorf("transformer not configured")
	}
	if batchSize <= 0 {
		return fmt.Errorf("invalid batch size %d", batchSize)
	}
	frameBytes := t.md.FrameBytes()
	if len(raw) < batchSize*frameBytes {
		return fmt.Errorf("raw buffer holds %d bytes, batch needs %d", len(raw), batchSize*frameBytes)
	}
	frameElems := t.desc.InputElems()
	if len(dst) < batchSize*frameElems {
		return fmt.Errorf("destination holds %d elements, batch needs %d", len(dst), batchSize*frameElems)
	}
	for i := 0; i < batchSize; i++ {
		frame := raw[i*frameBytes : (i+1)*frameBytes]
		out := dst[i*frameElems : (i+1)*frameElems]
		if t.resize {
			t.writeResized(frame, out)
		} else {
			t.writeDirect(frame, out)
		}
	}
	return nil
}

// writeDirect handles the common case where the stream geometry already
// matches the network input geometry.
func (t *RGBInterleaved) writeDirect(frame []byte, out []float32) {
	w, h := t.desc.InputWidth, t.desc.InputHeight
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := (y*w + x) * 3
			for c := 0; c < 3; c++ {
				out[c*plane+y*w+x] = (float32(frame[px+c]) - t.desc.Mean[c]) * t.scale
			}
		}
	}
}

func (t *RGBInterleaved) writeResized(frame []byte, out []float32) {
	src := image.NewNRGBA(image.Rect(0, 0, t.md.Width, t.md.Height))
	for y := 0; y < t.md.Height; y++ {
		for x := 0; x < t.md.Width; x++ {
			si := (y*t.md.Width + x) * 3
			di := y*src.Stride + x*4
			src.Pix[di+0] = frame[si+0]
			src.Pix[di+1] = frame[si+1]
			src.Pix[di+2] = frame[si+2]
			src.Pix[di+3] = 0xff
		}
	}
	resized := imaging.Resize(src, t.desc.InputWidth, t.desc.InputHeight, imaging.Linear)

	w, h := t.desc.InputWidth, t.desc.InputHeight
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			di := y*resized.Stride + x*4
			for c := 0; c < 3; c++ {
				out[c*plane+y*w+x] = (float32(resized.Pix[di+c]) - t.desc.Mean[c]) * t.scale
			}
		}
	}
}

var _ evaluator.Transformer = (*RGBInterleaved)(nil)
