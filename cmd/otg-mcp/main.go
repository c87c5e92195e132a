// otg-mcp is an MCP server exposing Open Traffic Generator targets as
// tools: configuration, traffic control, metrics, captures and schema
// introspection.
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

	"github.com/bc-dunia/otgmcp/internal/config"
	"github.com/bc-dunia/otgmcp/internal/otel"
	"github.com/bc-dunia/otgmcp/internal/otg"
	"github.com/bc-dunia/otgmcp/internal/schema"
	"github.com/bc-dunia/otgmcp/internal/tools"
	"github.com/bc-dunia/otgmcp/schemas"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", os.Getenv("OTG_MCP_CONFIG"), "Path to the JSON config file (defaults to a local dev target)")
	transport := flag.String("transport", "stdio", "MCP transport: stdio, sse or http")
	addr := flag.String("addr", ":8081", "Listen address for sse and http transports")
	logLevel := flag.String("log-level", envOr("OTG_MCP_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	otelExporter := flag.String("otel-exporter", "none", "Telemetry exporter: none, stdout, otlp-grpc, otlp-http")
	otelEndpoint := flag.String("otel-endpoint", "", "OTLP collector endpoint, e.g. localhost:4317")
	otelInsecure := flag.Bool("otel-insecure", false, "Disable TLS for the OTLP connection")
	otelSampleRate := flag.Float64("otel-sample-rate", 1.0, "Trace sampling rate between 0 and 1")
	flag.Parse()

	logger, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
		if err != nil {
			logger.Fatal("loading config", zap.Error(err))
		}
	}

	// An empty catalog is fatal: version resolution has nothing to
	// resolve against.
	catalog, err := schema.Load(schemas.FS, cfg.SchemaPath)
	if err != nil {
		logger.Fatal("loading schema catalog", zap.Error(err))
	}
	logger.Info("schema catalog ready",
		zap.Int("versions", catalog.Len()),
		zap.String("latest", catalog.Latest().String()))
	store := schema.NewStore(catalog)

	ctx := context.Background()
	otelCfg := &otel.Config{
		Enabled:        *otelExporter != "none",
		ServiceName:    "otg-mcp",
		ServiceVersion: version,
		ExporterType:   otel.ExporterType(*otelExporter),
		OTLPEndpoint:   *otelEndpoint,
		OTLPInsecure:   *otelInsecure,
		SampleRate:     *otelSampleRate,
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

	pool := otg.NewPool(cfg, store)
	svc := tools.NewService(tools.PoolProvider{Pool: pool}, store, tracer, metrics)

	mcpServer := server.NewMCPServer(
		"OTG MCP Server",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("OTG MCP Server drives Open Traffic Generator lab targets. "+
			"List targets with get_available_targets, apply a configuration with set_config, "+
			"then start_traffic, get_metrics and stop_traffic. Packet captures are available "+
			"via start_capture, stop_capture and get_capture. Schema introspection for the "+
			"target's API version is available via list_schemas_for_target and get_schemas_for_target."),
	)
	svc.Register(mcpServer)

	if err := serve(mcpServer, *transport, *addr, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// serve runs the chosen transport until EOF (stdio) or a signal.
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

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// newLogger builds a production logger writing to stderr; on the stdio
// transport stdout belongs to the protocol.
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
