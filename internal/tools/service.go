// Package tools registers the MCP tool surface: traffic generator
// operations on the OTG server and Prometheus/Loki queries on the
// telemetry server.
package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/bc-dunia/otgmcp/internal/config"
	"github.com/bc-dunia/otgmcp/internal/otel"
	"github.com/bc-dunia/otgmcp/internal/otg"
	"github.com/bc-dunia/otgmcp/internal/schema"
)

// TargetClient is the per-target operation set the tools need. The
// concrete implementation is otg.Client.
type TargetClient interface {
	GetVersion(ctx context.Context) (*otg.VersionInfo, error)
	SetConfig(ctx context.Context, cfg json.RawMessage) (json.RawMessage, error)
	GetConfig(ctx context.Context) (json.RawMessage, error)
	StartTraffic(ctx context.Context) error
	StopTraffic(ctx context.Context) error
	GetMetrics(ctx context.Context, filter otg.MetricsFilter) (*otg.MetricsResult, error)
	StartCapture(ctx context.Context, portNames []string) error
	StopCapture(ctx context.Context, portNames []string) error
	GetCapture(ctx context.Context, portName, dir string) (string, int, error)
}

// Provider hands out target clients and schema resolutions.
type Provider interface {
	Client(target string) (TargetClient, error)
	ResolvedVersion(ctx context.Context, target string) (schema.Version, error)
	Targets() []string
	PortsFor(target string) (map[string]config.PortConfig, error)
	CaptureDir() string
}

// PoolProvider adapts otg.Pool to the Provider interface.
type PoolProvider struct {
	*otg.Pool
}

// Client returns the pooled client for target.
func (p PoolProvider) Client(target string) (TargetClient, error) {
	return p.Pool.Get(target)
}

// Service carries the shared dependencies behind every tool handler.
type Service struct {
	provider Provider
	store    *schema.Store
	tracer   *otel.Tracer
	metrics  *otel.Metrics
	log      *zap.Logger
	started  time.Time
}

// NewService builds the OTG tool service. Tracer and metrics may be nil;
// no-op recorders are substituted.
func NewService(provider Provider, store *schema.Store, tracer *otel.Tracer, metrics *otel.Metrics) *Service {
	if tracer == nil {
		tracer = otel.NoopTracer()
	}
	if metrics == nil {
		metrics = otel.NoopMetrics()
	}
	return &Service{
		provider: provider,
		store:    store,
		tracer:   tracer,
		metrics:  metrics,
		log:      zap.L().Named("tools"),
		started:  time.Now(),
	}
}

// handle wraps a tool handler with tracing, latency metrics and logging.
func (s *Service) handle(name string, fn server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target := req.GetString("target", "")
		ctx, span := s.tracer.StartToolSpan(ctx, name, target)
		defer span.End()

		start := time.Now()
		result, err := fn(ctx, req)
		elapsed := time.Since(start)

		success := err == nil && (result == nil || !result.IsError)
		s.metrics.RecordToolCall(ctx, name, float64(elapsed.Microseconds())/1000.0, success)

		if success {
			s.log.Debug("tool call complete",
				zap.String("tool", name),
				zap.String("target", target),
				zap.Duration("elapsed", elapsed))
		} else {
			s.log.Warn("tool call failed",
				zap.String("tool", name),
				zap.String("target", target),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
		}
		return result, err
	}
}

// jsonResult marshals v as an indented text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("encoding result: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
