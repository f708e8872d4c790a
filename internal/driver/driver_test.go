package driver

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/SyedDaiam9101/frameval/internal/evaluator"
	"github.com/SyedDaiam9101/frameval/internal/tensor"
	"github.com/SyedDaiam9101/frameval/internal/transform"
)

func testDescriptor() evaluator.NetDescriptor {
	return evaluator.NetDescriptor{
		ModelPath:   "net.onnx",
		InputLayer:  "data",
		Channels:    3,
		InputHeight: 8,
		InputWidth:  8,
		Scale:       1,
		Outputs: []evaluator.OutputLayer{
			{Name: "prob", ElemsPerFrame: 5, DType: tensor.Float32},
			{Name: "fc7", ElemsPerFrame: 3, DType: tensor.Float32},
		},
	}
}

func newTestDriver(t *testing.T, cfg evaluator.Config) *Driver {
	t.Helper()
	cons, err := evaluator.NewMockConstructor(evaluator.BackendOptions{
		Descriptor:   testDescriptor(),
		Transformers: transform.NewFactory(),
	})
	if err != nil {
		t.Fatalf("NewMockConstructor failed: %v", err)
	}
	d, err := New(cons, cfg, nil)
	if err != nil {
		t.Fatalf("driver.New failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func makeFrame(md evaluator.FrameMetadata, seed byte) []byte {
	frame := make([]byte, md.FrameBytes())
	for i := range frame {
		frame[i] = seed + byte(i%7)
	}
	return frame
}

func TestRunBatchResults(t *testing.T) {
	cfg := evaluator.Config{MaxBatchSize: 4, MaxFrameWidth: 8, MaxFrameHeight: 8}
	d := newTestDriver(t, cfg)
	md := evaluator.FrameMetadata{Width: 8, Height: 8, PixelFormat: evaluator.RGB24}
	if err := d.Configure(md); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	frames := [][]byte{makeFrame(md, 1), makeFrame(md, 9), makeFrame(md, 50)}
	batchID, results, err := d.RunBatch(context.Background(), frames)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if batchID == "" {
		t.Error("Expected a non-empty batch ID")
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Output != "prob" || results[1].Output != "fc7" {
		t.Errorf("Output names out of declaration order: %s, %s", results[0].Output, results[1].Output)
	}

	// prob: 3 frames x 5 float32 elements
	if len(results[0].Data) != 3*5*4 {
		t.Fatalf("prob result has %d bytes, expected %d", len(results[0].Data), 3*5*4)
	}
	// Each frame's record carries its own checksum
	for i, frame := range frames {
		want := evaluator.FrameChecksum(frame)
		vals, err := tensor.DecodeFloat32s(results[0].Data[i*5*4:], 5)
		if err != nil {
			t.Fatalf("Decoding frame %d: %v", i, err)
		}
		for j, v := range vals {
			if v != want {
				t.Errorf("Frame %d element %d = %f, expected %f", i, j, v, want)
			}
		}
	}
}

func TestRunBatchResultDataIsACopy(t *testing.T) {
	cfg := evaluator.Config{MaxBatchSize: 2, MaxFrameWidth: 8, MaxFrameHeight: 8}
	d := newTestDriver(t, cfg)
	md := evaluator.FrameMetadata{Width: 8, Height: 8, PixelFormat: evaluator.RGB24}
	if err := d.Configure(md); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	_, first, err := d.RunBatch(context.Background(), [][]byte{makeFrame(md, 3)})
	if err != nil {
		t.Fatalf("First RunBatch failed: %v", err)
	}
	snapshot := append([]byte(nil), first[0].Data...)

	if _, _, err := d.RunBatch(context.Background(), [][]byte{makeFrame(md, 200)}); err != nil {
		t.Fatalf("Second RunBatch failed: %v", err)
	}
	if !bytes.Equal(first[0].Data, snapshot) {
		t.Error("Result data aliases the driver's reused output buffer")
	}
}

func TestRunBatchValidation(t *testing.T) {
	cfg := evaluator.Config{MaxBatchSize: 2, MaxFrameWidth: 8, MaxFrameHeight: 8}
	d := newTestDriver(t, cfg)
	md := evaluator.FrameMetadata{Width: 8, Height: 8, PixelFormat: evaluator.RGB24}
	if err := d.Configure(md); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	if _, _, err := d.RunBatch(context.Background(), nil); !errors.Is(err, evaluator.ErrEmptyBatch) {
		t.Errorf("Empty batch: got %v, expected ErrEmptyBatch", err)
	}

	tooMany := [][]byte{makeFrame(md, 1), makeFrame(md, 2), makeFrame(md, 3)}
	if _, _, err := d.RunBatch(context.Background(), tooMany); !errors.Is(err, evaluator.ErrBatchTooLarge) {
		t.Errorf("Oversized batch: got %v, expected ErrBatchTooLarge", err)
	}

	if _, _, err := d.RunBatch(context.Background(), [][]byte{make([]byte, 10)}); err == nil {
		t.Error("Expected error for a frame that does not match the configured geometry")
	}
}

func TestRunBatchBeforeConfigure(t *testing.T) {
	cfg := evaluator.Config{MaxBatchSize: 2, MaxFrameWidth: 8, MaxFrameHeight: 8}
	d := newTestDriver(t, cfg)
	if _, _, err := d.RunBatch(context.Background(), [][]byte{make([]byte, 8*8*3)}); !errors.Is(err, evaluator.ErrNotConfigured) {
		t.Errorf("Got %v, expected ErrNotConfigured", err)
	}
}

func TestRunBatchEmitsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	cfg := evaluator.Config{MaxBatchSize: 4, MaxFrameWidth: 8, MaxFrameHeight: 8}
	d := newTestDriver(t, cfg)
	md := evaluator.FrameMetadata{Width: 8, Height: 8, PixelFormat: evaluator.RGB24}
	if err := d.Configure(md); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	frames := [][]byte{makeFrame(md, 1), makeFrame(md, 2)}
	batchID, _, err := d.RunBatch(context.Background(), frames)
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span per batch, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "driver.RunBatch" {
		t.Errorf("Span name = %q, expected driver.RunBatch", span.Name())
	}
	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if got := attrs["batch.id"].AsString(); got != batchID {
		t.Errorf("batch.id attribute = %q, expected %q", got, batchID)
	}
	if got := attrs["batch.size"].AsInt64(); got != 2 {
		t.Errorf("batch.size attribute = %d, expected 2", got)
	}
}

func TestNewRejectsDeviceBuffers(t *testing.T) {
	cons, err := evaluator.NewMockConstructor(evaluator.BackendOptions{
		Descriptor:   testDescriptor(),
		Transformers: transform.NewFactory(),
		Config:       "kind=device",
	})
	if err != nil {
		t.Fatalf("NewMockConstructor failed: %v", err)
	}
	cfg := evaluator.Config{MaxBatchSize: 2, MaxFrameWidth: 8, MaxFrameHeight: 8}
	if _, err := New(cons, cfg, nil); err == nil {
		t.Error("Expected error for a device-buffer backend")
	}
}

func TestCloseReleasesBuffers(t *testing.T) {
	cfg := evaluator.Config{MaxBatchSize: 2, MaxFrameWidth: 8, MaxFrameHeight: 8}
	cons, err := evaluator.NewMockConstructor(evaluator.BackendOptions{
		Descriptor:   testDescriptor(),
		Transformers: transform.NewFactory(),
	})
	if err != nil {
		t.Fatalf("NewMockConstructor failed: %v", err)
	}
	d, err := New(cons, cfg, nil)
	if err != nil {
		t.Fatalf("driver.New failed: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	md := evaluator.FrameMetadata{Width: 8, Height: 8, PixelFormat: evaluator.RGB24}
	if err := d.Configure(md); !errors.Is(err, evaluator.ErrClosed) {
		t.Errorf("Configure after Close: got %v, expected ErrClosed", err)
	}
}
