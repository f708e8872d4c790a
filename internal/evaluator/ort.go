package evaluator

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/SyedDaiam9101/frameval/internal/tensor"
)

func init() {
	Register("onnx", func(opts BackendOptions) (Constructor, error) {
		return NewORTConstructor(opts)
	})
	Register("onnx-cuda", func(opts BackendOptions) (Constructor, error) {
		return NewORTCUDAConstructor(opts)
	})
}

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// ortInit initializes the ONNX Runtime environment once per process.
// The environment lives for the process lifetime; sessions come and go
// underneath it.
func ortInit() error {
	ortInitOnce.Do(func() {
		if !ort.IsInitialized() {
			ortInitErr = ort.InitializeEnvironment()
		}
	})
	return ortInitErr
}

// ORTConstructor builds ONNX Runtime evaluators. The CPU variant has a
// single device slot; the CUDA variant exposes one slot per configured
// card, and each evaluator pins the CUDA execution provider to the
// device the config names. Both keep I/O buffers host-side: ONNX
// Runtime manages device transfers internally.
type ORTConstructor struct {
	desc    NetDescriptor
	factory TransformerFactory
	prof    Profiler
	cuda    bool
	devices int
}

// NewORTConstructor builds the CPU-backed constructor.
func NewORTConstructor(opts BackendOptions) (*ORTConstructor, error) {
	return newORTConstructor(opts, false, 1)
}

// NewORTCUDAConstructor builds the CUDA-backed constructor. The backend
// config string selects the device count, e.g. "devices=2"; the default
// is a single card.
func NewORTCUDAConstructor(opts BackendOptions) (*ORTConstructor, error) {
	devices := 1
	if opts.Config != "" {
		for _, kv := range strings.Split(opts.Config, ",") {
			key, value, found := strings.Cut(kv, "=")
			if !found || key != "devices" {
				return nil, fmt.Errorf("unknown onnx-cuda option %q", kv)
			}
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid device count %q", value)
			}
			devices = n
		}
	}
	return newORTConstructor(opts, true, devices)
}

func newORTConstructor(opts BackendOptions, cuda bool, devices int) (*ORTConstructor, error) {
	if err := opts.Descriptor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid net descriptor: %w", err)
	}
	for _, out := range opts.Descriptor.Outputs {
		if out.DType != tensor.Float32 {
			return nil, fmt.Errorf("onnx backend supports float32 outputs only, %q declares %v",
				out.Name, out.DType)
		}
	}
	if opts.Transformers == nil {
		return nil, fmt.Errorf("transformer factory is required")
	}
	prof := opts.Profiler
	if prof == nil {
		prof = nopProfiler{}
	}
	return &ORTConstructor{
		desc:    opts.Descriptor,
		factory: opts.Transformers,
		prof:    prof,
		cuda:    cuda,
		devices: devices,
	}, nil
}

func (c *ORTConstructor) NumDevices() int {
	return c.devices
}

func (c *ORTConstructor) InputBufferKind() BufferKind  { return KindHost }
func (c *ORTConstructor) OutputBufferKind() BufferKind { return KindHost }

func (c *ORTConstructor) NumOutputs() int {
	return len(c.desc.Outputs)
}

func (c *ORTConstructor) OutputNames() []string {
	return c.desc.OutputNames()
}

func (c *ORTConstructor) NewInputBuffer(cfg Config) (*Buffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newBuffer(cfg.MaxInputBufferBytes(), KindHost)
}

func (c *ORTConstructor) NewOutputBuffers(cfg Config) ([]*Buffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	buffers := make([]*Buffer, len(c.desc.Outputs))
	for i, out := range c.desc.Outputs {
		buf, err := newBuffer(cfg.MaxBatchSize*out.FrameBytes(), KindHost)
		if err != nil {
			return nil, fmt.Errorf("allocating output buffer %q: %w", out.Name, err)
		}
		buffers[i] = buf
	}
	return buffers, nil
}

func (c *ORTConstructor) NewEvaluator(cfg Config) (Evaluator, error) {
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
	return newORTEvaluator(cfg, c.desc, transformer, c.prof, c.cuda)
}

var _ Constructor = (*ORTConstructor)(nil)

// ortEvaluator runs batched forward passes through one ONNX Runtime
// session. The input tensor is held persistently and recreated only
// when its batch dimension has to change: to MaxBatchSize at Configure,
// to the active batch size at Evaluate (ragged final batches).
type ortEvaluator struct {
	name        string
	cfg         Config
	desc        NetDescriptor
	transformer Transformer
	prof        Profiler

	session    *ort.DynamicAdvancedSession
	inputNames map[string]bool

	input      *ort.Tensor[float32]
	inputBatch int
	md         FrameMetadata
	configured bool
	closed     bool
}

func newORTEvaluator(cfg Config, desc NetDescriptor, transformer Transformer, prof Profiler, cuda bool) (*ortEvaluator, error) {
	if err := ortInit(); err != nil {
		return nil, fmt.Errorf("initializing onnxruntime environment: %w", err)
	}

	// Resolve the model's bindings up front: output bindings must match
	// the descriptor before any session is built. The input binding is
	// re-checked in Configure, once metadata is known.
	inputs, outputs, err := ort.GetInputOutputInfo(desc.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("reading model %s: %w", desc.ModelPath, err)
	}
	inputNames := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		inputNames[in.Name] = true
	}
	outputNames := make(map[string]bool, len(outputs))
	for _, out := range outputs {
		outputNames[out.Name] = true
	}
	for _, out := range desc.Outputs {
		if !outputNames[out.Name] {
			return nil, fmt.Errorf("%w: %q", ErrNoOutputBinding, out.Name)
		}
	}

	var options *ort.SessionOptions
	name := "onnx"
	if cuda {
		name = "onnx-cuda"
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("creating CUDA provider options: %w", err)
		}
		defer cudaOpts.Destroy()
		err = cudaOpts.Update(map[string]string{
			"device_id": strconv.Itoa(cfg.DeviceID),
		})
		if err != nil {
			return nil, fmt.Errorf("binding CUDA device %d: %w", cfg.DeviceID, err)
		}
		options, err = ort.NewSessionOptions()
		if err != nil {
			return nil, fmt.Errorf("creating session options: %w", err)
		}
		defer options.Destroy()
		if err := options.AppendExecutionProviderCUDA(cudaOpts); err != nil {
			return nil, fmt.Errorf("enabling CUDA execution provider: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		desc.ModelPath,
		[]string{desc.InputLayer},
		desc.OutputNames(),
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("creating session for %s: %w", desc.ModelPath, err)
	}

	return &ortEvaluator{
		name:        name,
		cfg:         cfg,
		desc:        desc,
		transformer: transformer,
		prof:        prof,
		session:     session,
		inputNames:  inputNames,
	}, nil
}

func (e *ortEvaluator) Configure(md FrameMetadata) error {
	if e.closed {
		return ErrClosed
	}
	if err := md.Validate(); err != nil {
		return err
	}
	if !e.inputNames[e.desc.InputLayer] {
		return fmt.Errorf("%w: %q", ErrNoInputBinding, e.desc.InputLayer)
	}
	e.md = md

	if err := e.reshapeInput(e.cfg.MaxBatchSize); err != nil {
		return err
	}
	if err := e.transformer.Configure(md); err != nil {
		return fmt.Errorf("configuring transformer: %w", err)
	}
	e.configured = true
	return nil
}

// reshapeInput recreates the input tensor when its batch dimension
// differs from batch. The net geometry never changes, only the leading
// dimension.
func (e *ortEvaluator) reshapeInput(batch int) error {
	if e.input != nil && e.inputBatch == batch {
		return nil
	}
	if e.input != nil {
		if err := e.input.Destroy(); err != nil {
			return fmt.Errorf("destroying input tensor: %w", err)
		}
		e.input = nil
	}
	shape := ort.NewShape(
		int64(batch),
		int64(e.desc.Channels),
		int64(e.desc.InputHeight),
		int64(e.desc.InputWidth),
	)
	input, err := ort.NewEmptyTensor[float32](shape)
	if err != nil {
		return fmt.Errorf("allocating input tensor %v: %w", shape, err)
	}
	e.input = input
	e.inputBatch = batch
	return nil
}

func (e *ortEvaluator) Evaluate(input *Buffer, outputs []*Buffer, batchSize int) error {
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
	if input.Kind() != KindHost {
		return fmt.Errorf("%w: input is %v, backend wants host", ErrBufferKind, input.Kind())
	}
	raw, err := input.Bytes()
	if err != nil {
		return fmt.Errorf("input buffer: %w", err)
	}
	if len(raw) < batchSize*e.md.FrameBytes() {
		return fmt.Errorf("%w: input holds %d bytes, batch needs %d",
			ErrBufferTooSmall, len(raw), batchSize*e.md.FrameBytes())
	}
	dsts := make([][]byte, len(outputs))
	for i, out := range outputs {
		if out.Kind() != KindHost {
			return fmt.Errorf("%w: output %d is %v, backend wants host", ErrBufferKind, i, out.Kind())
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

	if err := e.reshapeInput(batchSize); err != nil {
		return err
	}

	transformStart := time.Now()
	err = e.transformer.TransformInput(raw[:batchSize*e.md.FrameBytes()], e.input.GetData(), batchSize)
	e.prof.AddInterval(e.name+":transform_input", transformStart, time.Now())
	if err != nil {
		return fmt.Errorf("transforming input: %w", err)
	}

	outTensors := make([]ort.ArbitraryTensor, len(e.desc.Outputs))
	for i, out := range e.desc.Outputs {
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(batchSize), int64(out.ElemsPerFrame)))
		if err != nil {
			for _, prev := range outTensors[:i] {
				prev.Destroy()
			}
			return fmt.Errorf("allocating output tensor %q: %w", out.Name, err)
		}
		outTensors[i] = t
	}
	defer func() {
		for _, t := range outTensors {
			t.Destroy()
		}
	}()

	netStart := time.Now()
	err = e.session.Run([]ort.ArbitraryTensor{e.input}, outTensors)
	e.prof.AddInterval(e.name+":net", netStart, time.Now())
	if err != nil {
		return fmt.Errorf("forward pass failed: %w", err)
	}

	// Copy each output in declaration order; frame i's record always
	// lands at offset i*FrameBytes of its buffer.
	for i, out := range e.desc.Outputs {
		data := outTensors[i].(*ort.Tensor[float32]).GetData()
		n := batchSize * out.ElemsPerFrame
		if len(data) < n {
			return fmt.Errorf("output %q produced %d elements, batch needs %d", out.Name, len(data), n)
		}
		if err := tensor.PutFloat32s(dsts[i][:batchSize*out.FrameBytes()], data[:n]); err != nil {
			return fmt.Errorf("copying output %q: %w", out.Name, err)
		}
	}
	return nil
}

func (e *ortEvaluator) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if e.input != nil {
		e.input.Destroy()
		e.input = nil
	}
	if e.session != nil {
		err := e.session.Destroy()
		e.session = nil
		if err != nil {
			return fmt.Errorf("destroying session: %w", err)
		}
	}
	return nil
}

var _ Evaluator = (*ortEvaluator)(nil)
