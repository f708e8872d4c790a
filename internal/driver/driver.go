// Package driver sequences configure/evaluate calls for one evaluator
// instance: it asks the constructor for buffer metadata, allocates the
// I/O buffers, packs incoming frames into the input buffer and hands
// the filled output buffers' contents to the caller. One Driver per
// device; drive separate instances from separate goroutines.
package driver

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/SyedDaiam9101/frameval/internal/cache"
	"github.com/SyedDaiam9101/frameval/internal/evaluator"
	"github.com/SyedDaiam9101/frameval/internal/metrics"
)

// resultTTL is how long batch outputs stay in the optional Redis sink.
const resultTTL = 10 * time.Minute

var tracer = otel.Tracer("frameval/driver")

// Driver owns one evaluator and its I/O buffers.
type Driver struct {
	cons    evaluator.Constructor
	cfg     evaluator.Config
	cache   *cache.Cache
	eval    evaluator.Evaluator
	input   *evaluator.Buffer
	outputs []*evaluator.Buffer
	md      evaluator.FrameMetadata
}

// New allocates buffers through the constructor and builds the
// evaluator for the device named in cfg. The driver only handles
// host-resident buffers; device-resident backends need a device-aware
// driver.
func New(cons evaluator.Constructor, cfg evaluator.Config, resultCache *cache.Cache) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid evaluator config: %w", err)
	}
	if cons.InputBufferKind() != evaluator.KindHost || cons.OutputBufferKind() != evaluator.KindHost {
		return nil, fmt.Errorf("backend wants %v input / %v output buffers, driver only handles host memory",
			cons.InputBufferKind(), cons.OutputBufferKind())
	}

	input, err := cons.NewInputBuffer(cfg)
	if err != nil {
		return nil, fmt.Errorf("allocating input buffer: %w", err)
	}
	outputs, err := cons.NewOutputBuffers(cfg)
	if err != nil {
		input.Release()
		return nil, fmt.Errorf("allocating output buffers: %w", err)
	}
	eval, err := cons.NewEvaluator(cfg)
	if err != nil {
		input.Release()
		for _, out := range outputs {
			out.Release()
		}
		return nil, fmt.Errorf("building evaluator: %w", err)
	}
	return &Driver{
		cons:    cons,
		cfg:     cfg,
		cache:   resultCache,
		eval:    eval,
		input:   input,
		outputs: outputs,
	}, nil
}

// Configure propagates a geometry change to the evaluator. Call it
// before the first RunBatch and again whenever the stream geometry
// changes.
func (d *Driver) Configure(md evaluator.FrameMetadata) error {
	if err := d.eval.Configure(md); err != nil {
		return err
	}
	d.md = md
	return nil
}

// Result carries one output layer's bytes for a completed batch. Data
// is a copy; the driver's buffers are reused for the next batch.
type Result struct {
	Output string
	Data   []byte
}

// RunBatch packs frames into the input buffer, evaluates, and returns
// the per-output results along with the batch's assigned ID. Each batch
// is traced as one span on the frameval/driver tracer.
func (d *Driver) RunBatch(ctx context.Context, frames [][]byte) (string, []Result, error) {
	start := time.Now()
	batchID := uuid.New().String()

	batchSize := len(frames)
	if batchSize == 0 {
		return batchID, nil, evaluator.ErrEmptyBatch
	}
	if batchSize > d.cfg.MaxBatchSize {
		return batchID, nil, fmt.Errorf("%w: %d > %d", evaluator.ErrBatchTooLarge, batchSize, d.cfg.MaxBatchSize)
	}
	frameBytes := d.md.FrameBytes()
	if frameBytes == 0 {
		return batchID, nil, evaluator.ErrNotConfigured
	}

	raw, err := d.input.Bytes()
	if err != nil {
		return batchID, nil, fmt.Errorf("input buffer: %w", err)
	}
	for i, frame := range frames {
		if len(frame) != frameBytes {
			return batchID, nil, fmt.Errorf("frame %d has %d bytes, geometry needs %d", i, len(frame), frameBytes)
		}
		copy(raw[i*frameBytes:], frame)
	}

	metrics.RecordBatch(batchSize)
	_, span := tracer.Start(ctx, "driver.RunBatch", trace.WithAttributes(
		attribute.String("batch.id", batchID),
		attribute.Int("batch.size", batchSize),
	))
	evalStart := time.Now()
	err = d.eval.Evaluate(d.input, d.outputs, batchSize)
	evalDuration := time.Since(evalStart)
	metrics.RecordEvaluateLatency(evalDuration.Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluate failed")
		span.End()
		log.Printf("[%s] Evaluate error: %v", batchID, err)
		return batchID, nil, err
	}
	span.End()

	names := d.cons.OutputNames()
	results := make([]Result, len(d.outputs))
	for i, out := range d.outputs {
		data, err := out.Bytes()
		if err != nil {
			return batchID, nil, fmt.Errorf("output buffer %d: %w", i, err)
		}
		n := batchSize * outputFrameBytes(data, d.cfg.MaxBatchSize)
		results[i] = Result{Output: names[i], Data: append([]byte(nil), data[:n]...)}
	}

	if d.cache != nil {
		for _, res := range results {
			if err := d.cache.SetResult(batchID, res.Output, res.Data, resultTTL); err != nil {
				log.Printf("[%s] Warning: failed to cache result %s: %v", batchID, res.Output, err)
			}
		}
	}

	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0
	log.Printf("[%s] RunBatch: batch_size=%d, evaluate_ms=%.2f, total_ms=%.2f",
		batchID, batchSize, float64(evalDuration.Microseconds())/1000.0, latencyMs)

	return batchID, results, nil
}

// outputFrameBytes recovers the per-frame record size from a buffer
// sized for the maximum batch.
func outputFrameBytes(data []byte, maxBatch int) int {
	return len(data) / maxBatch
}

// Close releases the evaluator and both buffer sets deterministically.
func (d *Driver) Close() error {
	var firstErr error
	if err := d.eval.Close(); err != nil {
		firstErr = err
	}
	if err := d.input.Release(); err != nil && firstErr == nil {
		firstErr = err
	}
	for _, out := range d.outputs {
		if err := out.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
