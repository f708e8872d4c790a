// cmd/frameval/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/SyedDaiam9101/frameval/internal/cache"
	"github.com/SyedDaiam9101/frameval/internal/config"
	"github.com/SyedDaiam9101/frameval/internal/driver"
	"github.com/SyedDaiam9101/frameval/internal/evaluator"
	"github.com/SyedDaiam9101/frameval/internal/metrics"
	"github.com/SyedDaiam9101/frameval/internal/profiler"
	"github.com/SyedDaiam9101/frameval/internal/transform"
)

const serviceName = "frameval"

func main() {
	// Parse command-line flags
	backend := flag.String("backend", "", "Backend spec, e.g. onnx, onnx-cuda:devices=2, mock (default: onnx)")
	modelPath := flag.String("model", "", "Path to model file (default: net.onnx)")
	redisAddr := flag.String("redis", "", "Redis address for the result sink (default: disabled)")
	port := flag.Int("port", 0, "gRPC health/reflection port (default: 50051)")
	metricsPort := flag.Int("metrics", 0, "Prometheus metrics port (default: 9100)")
	configFile := flag.String("config", "", "Path to config file (optional)")
	useMock := flag.Bool("mock", false, "Use the mock backend (for testing)")
	flag.Parse()

	// Load configuration from file and environment
	var cfg *config.Config
	var err error
	if *configFile != "" {
		cfg, err = config.LoadWithConfigFile(*configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override with flags if provided
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *useMock {
		cfg.Backend = "mock"
	}
	if *modelPath != "" {
		cfg.Model = *modelPath
	}
	if *redisAddr != "" {
		cfg.Redis = *redisAddr
	}
	if *port > 0 {
		cfg.Port = *port
	}
	if *metricsPort > 0 {
		cfg.MetricsPort = *metricsPort
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Starting %s...", serviceName)
	log.Printf("Configuration: backend=%s, model=%s, max_batch=%d, device=%d, port=%d, metrics=%d, redis=%s, otel=%v",
		cfg.Backend, cfg.Model, cfg.MaxBatchSize, cfg.DeviceID, cfg.Port, cfg.MetricsPort, cfg.Redis, cfg.OTELEnabled)

	// Initialize OpenTelemetry tracer
	var tracerShutdown func(context.Context) error
	if cfg.OTELEnabled {
		tracerShutdown, err = initTracer(cfg.OTELEndpoint)
		if err != nil {
			log.Printf("Warning: Failed to initialize tracer: %v", err)
		} else {
			log.Printf("OpenTelemetry tracing enabled (endpoint: %s)", cfg.OTELEndpoint)
		}
	}

	// Build the backend constructor from the registry
	desc, err := cfg.NetDescriptor()
	if err != nil {
		log.Fatalf("Invalid net descriptor: %v", err)
	}
	cons, err := evaluator.NewConstructor(cfg.Backend, evaluator.BackendOptions{
		Descriptor:   desc,
		Transformers: transform.NewFactory(),
		Profiler:     profiler.NewProm(),
	})
	if err != nil {
		log.Fatalf("Failed to build backend %q: %v", cfg.Backend, err)
	}
	log.Printf("Backend %s: devices=%d, outputs=%v, input_buffers=%v, output_buffers=%v",
		cfg.Backend, cons.NumDevices(), cons.OutputNames(), cons.InputBufferKind(), cons.OutputBufferKind())

	// Connect the optional Redis result sink
	var resultCache *cache.Cache
	if cfg.Redis != "" {
		log.Printf("Connecting to Redis at %s...", cfg.Redis)
		resultCache, err = cache.New(cfg.Redis)
		if err != nil {
			log.Printf("Warning: Failed to connect to Redis: %v (continuing without result sink)", err)
			resultCache = nil
		} else {
			defer resultCache.Close()
			log.Printf("Redis connected successfully")
		}
	}

	// Build the driver: buffers first, then the evaluator
	d, err := driver.New(cons, cfg.EvaluatorConfig(), resultCache)
	if err != nil {
		log.Fatalf("Failed to build driver: %v", err)
	}
	defer d.Close()

	md := evaluator.FrameMetadata{
		Width:       cfg.MaxFrameWidth,
		Height:      cfg.MaxFrameHeight,
		PixelFormat: evaluator.RGB24,
	}
	if err := d.Configure(md); err != nil {
		log.Fatalf("Failed to configure evaluator: %v", err)
	}
	log.Printf("Evaluator configured for %dx%d %v frames", md.Width, md.Height, md.PixelFormat)

	// Create gRPC health server
	healthServer := health.NewServer()

	// Start HTTP server for metrics and health checks
	httpServer := startHTTPServer(cfg.MetricsPort, healthServer)

	// Create gRPC server exposing health and reflection only; the RPC
	// ingest surface belongs to the embedding pipeline
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	addr := fmt.Sprintf(":%d", cfg.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", addr, err)
	}

	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	metrics.SetHealthy()

	// Synthetic ingest loop until a real pipeline feeds the driver
	loopCtx, loopCancel := context.WithCancel(context.Background())
	go runLoop(loopCtx, d, md, cfg.MaxBatchSize)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down gracefully...", sig)

		healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		metrics.SetUnhealthy()

		loopCancel()
		grpcServer.GracefulStop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(ctx)

		if tracerShutdown != nil {
			tracerShutdown(ctx)
		}
	}()

	log.Printf("gRPC server listening on %s", addr)
	log.Printf("%s is ready", serviceName)

	if err := grpcServer.Serve(lis); err != nil {
		log.Fatalf("Failed to serve: %v", err)
	}

	log.Printf("Server shutdown complete")
}

// runLoop feeds synthetic gradient frames through the driver so the
// stage can be exercised and profiled without a decoder attached.
func runLoop(ctx context.Context, d *driver.Driver, md evaluator.FrameMetadata, maxBatch int) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	batchSize := maxBatch
	seq := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frames := make([][]byte, batchSize)
		for i := range frames {
			frames[i] = syntheticFrame(md, seq+i)
		}
		seq += batchSize

		batchID, results, err := d.RunBatch(ctx, frames)
		if err != nil {
			log.Printf("[%s] Batch failed: %v", batchID, err)
			continue
		}
		for _, res := range results {
			log.Printf("[%s] output %s: %d bytes", batchID, res.Output, len(res.Data))
		}

		batchSize = nextBatchSize(batchSize, maxBatch)
	}
}

// nextBatchSize halves the batch down to 1, then wraps back to max, so
// successive batches exercise every ragged-batch reshape.
func nextBatchSize(cur, max int) int {
	if cur > 1 {
		return cur / 2
	}
	return max
}

func syntheticFrame(md evaluator.FrameMetadata, seed int) []byte {
	frame := make([]byte, md.FrameBytes())
	for i := range frame {
		frame[i] = byte((i + seed) % 251)
	}
	return frame
}

func startHTTPServer(port int, healthServer *health.Server) *http.Server {
	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Health check endpoint
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp, err := healthServer.Check(r.Context(), &healthpb.HealthCheckRequest{})
		if err != nil || resp.Status != healthpb.HealthCheckResponse_SERVING {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Service Unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Readiness check (same as healthz for now)
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		resp, err := healthServer.Check(r.Context(), &healthpb.HealthCheckRequest{})
		if err != nil || resp.Status != healthpb.HealthCheckResponse_SERVING {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Not Ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ready"))
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		log.Printf("HTTP server listening on %s (metrics, health)", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	return server
}

func initTracer(endpoint string) (func(context.Context) error, error) {
	if endpoint != "" {
		// OTLP export needs collector wiring; stdout keeps spans visible
		// until one is configured
		log.Printf("Note: Using stdout trace exporter (OTLP endpoint: %s)", endpoint)
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	// Create resource with service information
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create tracer provider
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	// Set global tracer provider
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
