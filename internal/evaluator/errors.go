package evaluator

import "errors"

// Contract-violation and configuration errors. Contract violations are
// caller programming errors: the evaluator fails loudly instead of
// clipping batches or overrunning buffers.
var (
	// ErrNotConfigured is returned by Evaluate before the first
	// successful Configure call.
	ErrNotConfigured = errors.New("evaluator not configured")

	// ErrClosed is returned when an evaluator is used after Close.
	ErrClosed = errors.New("evaluator closed")

	// ErrEmptyBatch is returned for batch sizes below 1.
	ErrEmptyBatch = errors.New("empty batch")

	// ErrBatchTooLarge is returned when the active batch size exceeds
	// the MaxBatchSize of the owning config. Batches are never clipped.
	ErrBatchTooLarge = errors.New("batch size exceeds max batch size")

	// ErrOutputArity is returned when the number of output buffers does
	// not match the constructor's declared output count.
	ErrOutputArity = errors.New("wrong number of output buffers")

	// ErrBufferTooSmall is returned when a caller-supplied buffer cannot
	// hold the bytes the active batch requires.
	ErrBufferTooSmall = errors.New("buffer too small for batch")

	// ErrBufferKind is returned when a buffer lives in the wrong memory
	// space for the backend (host vs device).
	ErrBufferKind = errors.New("buffer kind mismatch")

	// ErrBufferReleased is returned when a released buffer is used or
	// released a second time.
	ErrBufferReleased = errors.New("buffer already released")

	// ErrNoInputBinding is returned by Configure when the network has no
	// input matching the descriptor's declared input layer name.
	ErrNoInputBinding = errors.New("no input binding for declared input layer")

	// ErrNoOutputBinding is returned at construction when a declared
	// output layer name has no matching network output.
	ErrNoOutputBinding = errors.New("no output binding for declared output layer")
)
