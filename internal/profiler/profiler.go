// Package profiler implements the timing collaborator evaluators
// report to. Every Evaluate call emits exactly two named intervals, one
// for the transform phase and one for the forward pass.
package profiler

import (
	"sync"
	"time"

	"github.com/SyedDaiam9101/frameval/internal/evaluator"
	"github.com/SyedDaiam9101/frameval/internal/metrics"
)

// Prom forwards interval durations to the Prometheus phase histogram.
type Prom struct{}

func NewProm() *Prom { return &Prom{} }

func (p *Prom) AddInterval(name string, start, end time.Time) {
	metrics.RecordPhase(name, end.Sub(start).Seconds())
}

var _ evaluator.Profiler = (*Prom)(nil)

// Interval is one recorded timing sample.
type Interval struct {
	Name  string
	Start time.Time
	End   time.Time
}

// Recording captures intervals in memory. Tests use it to assert which
// phases an Evaluate call timed.
type Recording struct {
	mu        sync.Mutex
	intervals []Interval
}

func NewRecording() *Recording { return &Recording{} }

func (r *Recording) AddInterval(name string, start, end time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intervals = append(r.intervals, Interval{Name: name, Start: start, End: end})
}

// Intervals returns a copy of everything recorded so far.
func (r *Recording) Intervals() []Interval {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Interval, len(r.intervals))
	copy(out, r.intervals)
	return out
}

// Names returns the recorded interval names in order.
func (r *Recording) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.intervals))
	for i, iv := range r.intervals {
		names[i] = iv.Name
	}
	return names
}

var _ evaluator.Profiler = (*Recording)(nil)
