// Package evaluator defines the batch-inference stage of the pipeline:
// a uniform Evaluator/Constructor contract that lets heterogeneous
// compute backends (ONNX Runtime on CPU or CUDA, a mock for tests) be
// swapped behind one interface, each with its own buffer placement
// rules, batch negotiation and dynamic input reshaping.
package evaluator

import "time"

// Evaluator owns one backend network instance bound to one device and
// runs batched forward passes.
//
// Lifecycle: Configure must be called before the first Evaluate and may
// be called again whenever the stream's frame geometry changes. Close
// is safe in any state; a closed evaluator rejects further calls.
//
// Concurrency: an Evaluator must only ever be invoked by one goroutine
// at a time. There is no internal locking; Evaluate blocks until the
// transform and forward pass complete. Separate instances (one per
// device) may be driven concurrently.
type Evaluator interface {
	// Configure informs the evaluator of the current frame geometry,
	// reshapes the network input tensor to the configured maximum batch
	// when needed and forwards the geometry to the input transformer.
	// Calling it again with identical metadata costs nothing beyond the
	// shape check.
	Configure(md FrameMetadata) error

	// Evaluate runs one batch. input holds batchSize contiguous raw
	// frames sized per the last Configure; outputs is one buffer per
	// declared output layer, in declaration order, each with capacity
	// for batchSize records. Exactly batchSize records are written into
	// each output buffer, frame order preserved; bytes beyond that are
	// never touched.
	Evaluate(input *Buffer, outputs []*Buffer, batchSize int) error

	// Close releases the network instance and transformer. Safe to call
	// from any state.
	Close() error
}

// Transformer converts raw frame bytes into the numeric layout the
// backend's network expects. Implementations are supplied by the
// embedding pipeline; the evaluator calls them but does not implement
// them.
type Transformer interface {
	// Configure prepares per-geometry resize and normalization
	// parameters.
	Configure(md FrameMetadata) error

	// TransformInput populates dst from batchSize raw frames of raw.
	// It is deterministic, writes nothing but dst and never reads past
	// batchSize frames even when raw has capacity for more.
	TransformInput(raw []byte, dst []float32, batchSize int) error
}

// TransformerFactory builds one private Transformer per evaluator.
type TransformerFactory interface {
	New(cfg Config, desc NetDescriptor) (Transformer, error)
}

// Profiler receives the two timed intervals every Evaluate call emits,
// named for the transform phase and the forward-pass phase. The
// profiling subsystem itself is external; this is its contract.
type Profiler interface {
	AddInterval(name string, start, end time.Time)
}

// Constructor describes a backend's capabilities and produces
// evaluators and their I/O buffers, so the driver can size and place
// buffers correctly before any heavyweight network load occurs.
type Constructor interface {
	// NumDevices is the count of independent device slots this backend
	// can use concurrently.
	NumDevices() int

	// InputBufferKind and OutputBufferKind declare which memory space
	// the buffers must live in. The driver allocates accordingly and
	// never passes a buffer of the wrong kind.
	InputBufferKind() BufferKind
	OutputBufferKind() BufferKind

	// NumOutputs and OutputNames give the arity and ordered naming of
	// the network outputs. NumOutputs always equals len(OutputNames),
	// and both equal the number of output buffers Evaluate expects.
	NumOutputs() int
	OutputNames() []string

	// NewInputBuffer allocates one input buffer sized
	// MaxBatchSize x MaxFrameWidth x MaxFrameHeight x 3 bytes.
	// Ownership transfers to the caller.
	NewInputBuffer(cfg Config) (*Buffer, error)

	// NewOutputBuffers allocates one buffer per declared output, each
	// sized MaxBatchSize records, in declaration order. Ownership
	// transfers to the caller.
	NewOutputBuffers(cfg Config) ([]*Buffer, error)

	// NewEvaluator builds one fresh Evaluator, with its private input
	// transformer, bound to the device the config names. Ownership
	// transfers to the caller.
	NewEvaluator(cfg Config) (Evaluator, error)
}
