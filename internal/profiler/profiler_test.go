package profiler

import (
	"testing"
	"time"
)

func TestRecordingOrder(t *testing.T) {
	rec := NewRecording()
	base := time.Now()
	rec.AddInterval("mock:transform_input", base, base.Add(time.Millisecond))
	rec.AddInterval("mock:net", base.Add(time.Millisecond), base.Add(3*time.Millisecond))

	names := rec.Names()
	if len(names) != 2 {
		t.Fatalf("Expected 2 intervals, got %d", len(names))
	}
	if names[0] != "mock:transform_input" || names[1] != "mock:net" {
		t.Errorf("Intervals out of order: %v", names)
	}

	ivs := rec.Intervals()
	if got := ivs[1].End.Sub(ivs[1].Start); got != 2*time.Millisecond {
		t.Errorf("Second interval duration = %v, expected 2ms", got)
	}
}

func TestRecordingReturnsCopies(t *testing.T) {
	rec := NewRecording()
	rec.AddInterval("a", time.Now(), time.Now())
	ivs := rec.Intervals()
	ivs[0].Name = "mutated"
	if rec.Names()[0] != "a" {
		t.Error("Intervals() exposed internal state")
	}
}

func TestPromAddInterval(t *testing.T) {
	// Exercises the histogram path; a bad label set would panic.
	p := NewProm()
	now := time.Now()
	p.AddInterval("onnx:net", now, now.Add(5*time.Millisecond))
	p.AddInterval("onnx:transform_input", now, now)
}
