// telemetry-mcp is an MCP server exposing the lab's Prometheus and
// Loki backends as query tools.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bc-dunia/otgmcp/internal/otel"
	"github.com/bc-dunia/otgmcp/internal/telemetry"
	"github.com/bc-dunia/otgmcp/internal/tools"
)

const version = "1.0.0"

func main() {
	prometheusURL := flag.String("prometheus-url", "", "Prometheus server URL, e.g. http://localhost:9090")
	lokiURL := flag.String("loki-url", "", "Loki server URL, e.g. http://localhost:3100")
	transport := flag.String("transport", "stdio", "MCP transport: stdio, sse or http")
	addr := flag.String("addr", ":8082", "Listen address for sse and http transports")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	otelExporter := flag.String("otel-exporter", "none", "Telemetry exporter: none, stdout, otlp-grpc, otlp-http")
	otelEndpoint := flag.String("otel-endpoint", "", "OTLP collector endpoint, e.g. localhost:4317")
	otelInsecure := flag.Bool("otel-insecure", false, "Disable TLS for the OTLP connection")
	flag.Parse()

	logger, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if *prometheusURL == "" && *lokiURL == "" {
		logger.Fatal("at least one of --prometheus-url and --loki-url is required")
	}

	var prom tools.Prometheus
	if *prometheusURL != "" {
		client, err := telemetry.NewPrometheusClient(*prometheusURL)
		if err != nil {
			logger.Fatal("building prometheus client", zap.Error(err))
		}
		prom = client
		logger.Info("prometheus backend configured", zap.String("url", *prometheusURL))
	}

	var loki tools.Loki
	if *lokiURL != "" {
		loki = telemetry.NewLokiClient(*lokiURL)
		logger.Info("loki backend configured", zap.String("url", *lokiURL))
	}

	ctx := context.Background()
	otelCfg := &otel.Config{
		Enabled:        *otelExporter != "none",
		ServiceName:    "telemetry-mcp",
		ServiceVersion: version,
		ExporterType:   otel.ExporterType(*otelExporter),
		OTLPEndpoint:   *otelEndpoint,
		OTLPInsecure:   *otelInsecure,
		SampleRate:     1.0,
	}
	tracer, err := otel.NewTracer(ctx, otelCfg)
	if err != nil {
		logger.Fatal("initializing tracing", zap.Error(err))
	}
	metrics, err := otel.NewMetrics(ctx, otelCfg)
	if err != nil {
		logger.Fatal("initializing metrics", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracer.Shutdown(shutdownCtx)
		_ = metrics.Shutdown(shutdownCtx)
	}()

	svc := tools.NewTelemetryService(prom, loki, tracer, metrics)

	mcpServer := server.NewMCPServer(
		"Lab Telemetry MCP Server",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Lab Telemetry MCP Server queries the lab's observability backends. "+
			"Use prometheus_query and prometheus_query_range for PromQL metrics, "+
			"loki_query and loki_query_range for LogQL log searches."),
	)
	svc.Register(mcpServer)

	if err := serve(mcpServer, *transport, *addr, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func serve(s *server.MCPServer, transport, addr string, logger *zap.Logger) error {
	switch transport {
	case "stdio":
		logger.Info("serving on stdio")
		return server.ServeStdio(s)

	case "sse":
		sse := server.NewSSEServer(s)
		return serveHTTP(logger, "sse", addr,
			func() error { return sse.Start(addr) },
			sse.Shutdown)

	case "http":
		httpSrv := server.NewStreamableHTTPServer(s)
		return serveHTTP(logger, "http", addr,
			func() error { return httpSrv.Start(addr) },
			httpSrv.Shutdown)

	default:
		return fmt.Errorf("unknown transport %q: want stdio, sse or http", transport)
	}
}

func serveHTTP(logger *zap.Logger, transport, addr string, start func() error, shutdown func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() { errCh <- start() }()
	logger.Info("serving", zap.String("transport", transport), zap.String("addr", addr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return shutdown(ctx)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
