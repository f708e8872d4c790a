package evaluator

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/SyedDaiam9101/frameval/internal/tensor"
)

func init() {
	Register("mock", func(opts BackendOptions) (Constructor, error) {
		return NewMockConstructor(opts)
	})
}

// MockConstructor is a backend for tests and for running the pipeline
// without a model file or the ONNX shared library. Its evaluators are
// deterministic: every element of frame i's output record is that
// frame's byte checksum, so order preservation is observable from the
// outside. The backend config string tunes it, e.g.
// "devices=2,kind=device".
type MockConstructor struct {
	desc    NetDescriptor
	factory TransformerFactory
	prof    Profiler
	devices int
	kind    BufferKind
}

func NewMockConstructor(opts BackendOptions) (*MockConstructor, error) {
	if err := opts.Descriptor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid net descriptor: %w", err)
	}
	if opts.Transformers == nil {
		return nil, fmt.Errorf("transformer factory is required")
	}
	prof := opts.Profiler
	if prof == nil {
		prof = nopProfiler{}
	}
	c := &MockConstructor{
		desc:    opts.Descriptor,
		factory: opts.Transformers,
		prof:    prof,
		devices: 1,
		kind:    KindHost,
	}
	if opts.Config != "" {
		for _, kv := range strings.Split(opts.Config, ",") {
			key, value, _ := strings.Cut(kv, "=")
			switch key {
			case "devices":
				n, err := strconv.Atoi(value)
				if err != nil || n <= 0 {
					return nil, fmt.Errorf("invalid device count %q", value)
				}
				c.devices = n
			case "kind":
				switch value {
				case "host":
					c.kind = KindHost
				case "device":
					c.kind = KindDevice
				default:
					return nil, fmt.Errorf("unknown buffer kind %q", value)
				}
			default:
				return nil, fmt.Errorf("unknown mock option %q", kv)
			}
		}
	}
	return c, nil
}

func (c *MockConstructor) NumDevices() int { return c.devices }

func (c *MockConstructor) InputBufferKind() BufferKind  { return c.kind }
func (c *MockConstructor) OutputBufferKind() BufferKind { return c.kind }

func (c *MockConstructor) NumOutputs() int { return len(c.desc.Outputs) }

func (c *MockConstructor) OutputNames() []string { return c.desc.OutputNames() }

func (c *MockConstructor) NewInputBuffer(cfg Config) (*Buffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newBuffer(cfg.MaxInputBufferBytes(), c.kind)
}

func (c *MockConstructor) NewOutputBuffers(cfg Config) ([]*Buffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	buffers := make([]*Buffer, len(c.desc.Outputs))
	for i, out := range c.desc.Outputs {
		buf, err := newBuffer(cfg.MaxBatchSize*out.FrameBytes(), c.kind)
		if err != nil {
			return nil, fmt.Errorf("allocating output buffer %q: %w", out.Name, err)
		}
		buffers[i] = buf
	}
	return buffers, nil
}

func (c *MockConstructor) NewEvaluator(cfg Config) (Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DeviceID >= c.devices {
		return nil, fmt.Errorf("device_id %d out of range, backend has %d device(s)",
			cfg.DeviceID, c.devices)
	}
	transformer, err := c.factory.New(cfg, c.desc)
	if err != nil {
		return nil, fmt.Errorf("building input transformer: %w", err)
	}
	return &MockEvaluator{
		cfg:         cfg,
		desc:        c.desc,
		transformer: transformer,
		prof:        c.prof,
		kind:        c.kind,
		scratch:     make([]float32, cfg.MaxBatchSize*c.desc.InputElems()),
	}, nil
}

var _ Constructor = (*MockConstructor)(nil)

// MockEvaluator implements the full evaluator contract without a
// network. The transform phase runs for real (through the private
// transformer); the "forward pass" writes each frame's checksum into
// every element of that frame's output records.
type MockEvaluator struct {
	cfg         Config
	desc        NetDescriptor
	transformer Transformer
	prof        Profiler
	kind        BufferKind
	scratch     []float32

	md         FrameMetadata
	configured bool
	closed     bool

	// CallCount tracks Evaluate invocations.
	CallCount int
	// ConfigureCount tracks Configure invocations.
	ConfigureCount int
	// FailForward, when set, makes the forward-pass phase fail with
	// that error to exercise whole-batch abort paths.
	FailForward error
}

func (e *MockEvaluator) Configure(md FrameMetadata) error {
	if e.closed {
		return ErrClosed
	}
	if err := md.Validate(); err != nil {
		return err
	}
	e.ConfigureCount++
	e.md = md
	if err := e.transformer.Configure(md); err != nil {
		return fmt.Errorf("configuring transformer: %w", err)
	}
	e.configured = true
	return nil
}

func (e *MockEvaluator) Evaluate(input *Buffer, outputs []*Buffer, batchSize int) error {
	if e.closed {
		return ErrClosed
	}
	if !e.configured {
		return ErrNotConfigured
	}
	if batchSize <= 0 {
		return ErrEmptyBatch
	}
	if batchSize > e.cfg.MaxBatchSize {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, batchSize, e.cfg.MaxBatchSize)
	}
	if len(outputs) != len(e.desc.Outputs) {
		return fmt.Errorf("%w: got %d, want %d", ErrOutputArity, len(outputs), len(e.desc.Outputs))
	}
	if input.Kind() != e.kind {
		return fmt.Errorf("%w: input is %v, backend wants %v", ErrBufferKind, input.Kind(), e.kind)
	}
	raw, err := input.Bytes()
	if err != nil {
		return fmt.Errorf("input buffer: %w", err)
	}
	frameBytes := e.md.FrameBytes()
	if len(raw) < batchSize*frameBytes {
		return fmt.Errorf("%w: input holds %d bytes, batch needs %d",
			ErrBufferTooSmall, len(raw), batchSize*frameBytes)
	}
	dsts := make([][]byte, len(outputs))
	for i, out := range outputs {
		if out.Kind() != e.kind {
			return fmt.Errorf("%w: output %d is %v, backend wants %v", ErrBufferKind, i, out.Kind(), e.kind)
		}
		dst, err := out.Bytes()
		if err != nil {
			return fmt.Errorf("output buffer %d: %w", i, err)
		}
		need := batchSize * e.desc.Outputs[i].FrameBytes()
		if len(dst) < need {
			return fmt.Errorf("%w: output %q holds %d bytes, batch needs %d",
				ErrBufferTooSmall, e.desc.Outputs[i].Name, len(dst), need)
		}
		dsts[i] = dst
	}
	e.CallCount++

	transformStart := time.Now()
	err = e.transformer.TransformInput(raw[:batchSize*frameBytes], e.scratch[:batchSize*e.desc.InputElems()], batchSize)
	e.prof.AddInterval("mock:transform_input", transformStart, time.Now())
	if err != nil {
		return fmt.Errorf("transforming input: %w", err)
	}

	netStart := time.Now()
	if e.FailForward != nil {
		e.prof.AddInterval("mock:net", netStart, time.Now())
		return fmt.Errorf("forward pass failed: %w", e.FailForward)
	}
	for i, out := range e.desc.Outputs {
		record := make([]float32, out.ElemsPerFrame)
		for frame := 0; frame < batchSize; frame++ {
			v := FrameChecksum(raw[frame*frameBytes : (frame+1)*frameBytes])
			for j := range record {
				record[j] = v
			}
			dst := dsts[i][frame*out.FrameBytes() : (frame+1)*out.FrameBytes()]
			switch out.DType {
			case tensor.Float32:
				err = tensor.PutFloat32s(dst, record)
			case tensor.Float16:
				err = tensor.PutFloat16s(dst, record)
			case tensor.Uint8:
				for j, f := range record {
					dst[j] = byte(f * 255)
				}
			default:
				err = fmt.Errorf("unsupported dtype %v", out.DType)
			}
			if err != nil {
				e.prof.AddInterval("mock:net", netStart, time.Now())
				return fmt.Errorf("writing output %q: %w", out.Name, err)
			}
		}
	}
	e.prof.AddInterval("mock:net", netStart, time.Now())
	return nil
}

func (e *MockEvaluator) Close() error {
	e.closed = true
	return nil
}

var _ Evaluator = (*MockEvaluator)(nil)

// FrameChecksum reduces one raw frame to a value in [0,1). Tests use it
// to verify that frame i's output corresponds to frame i's input.
func FrameChecksum(frame []byte) float32 {
	var sum uint32
	for _, b := range frame {
		sum += uint32(b)
	}
	return float32(sum%1000) / 1000
}
