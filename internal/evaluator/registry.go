package evaluator

import (
	"fmt"
	"strings"
	"time"
)

// BackendOptions is everything a backend needs to build a Constructor:
// the shared net descriptor, the transformer factory the pipeline
// supplies, the profiler collaborator (nil means no profiling) and a
// backend-specific configuration string.
type BackendOptions struct {
	Descriptor   NetDescriptor
	Transformers TransformerFactory
	Profiler     Profiler
	Config       string
}

// Builder turns backend options into a Constructor.
type Builder func(opts BackendOptions) (Constructor, error)

var registeredBuilders = make(map[string]Builder)

// Register makes a backend selectable by name. Call it during package
// initialization. Registering the same name twice panics; duplicates
// are init-order mistakes, not runtime conditions.
func Register(name string, builder Builder) {
	if _, dup := registeredBuilders[name]; dup {
		panic(fmt.Sprintf("backend %q registered twice", name))
	}
	registeredBuilders[name] = builder
}

// RegisteredBackends lists the names backends registered under.
func RegisteredBackends() []string {
	names := make([]string, 0, len(registeredBuilders))
	for name := range registeredBuilders {
		names = append(names, name)
	}
	return names
}

// NewConstructor selects a backend at pipeline-build time. spec is
// "<name>" or "<name>:<backend config>"; for example "onnx" or
// "onnx-cuda:devices=2".
func NewConstructor(spec string, opts BackendOptions) (Constructor, error) {
	name := spec
	if idx := strings.Index(spec, ":"); idx != -1 {
		name = spec[:idx]
		opts.Config = spec[idx+1:]
	}
	builder, ok := registeredBuilders[name]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q (registered: %s)",
			name, strings.Join(RegisteredBackends(), ", "))
	}
	return builder(opts)
}

// nopProfiler is used when no profiler collaborator is supplied.
type nopProfiler struct{}

func (nopProfiler) AddInterval(string, time.Time, time.Time) {}
