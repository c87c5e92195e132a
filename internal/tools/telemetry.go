package tools

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/bc-dunia/otgmcp/internal/otel"
	"github.com/bc-dunia/otgmcp/internal/telemetry"
)

// Prometheus is the metrics query surface the telemetry tools need.
type Prometheus interface {
	Query(ctx context.Context, query string, ts time.Time) (*telemetry.PromResult, error)
	QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) (*telemetry.PromResult, error)
}

// Loki is the log query surface the telemetry tools need.
type Loki interface {
	Query(ctx context.Context, query string, ts time.Time, limit int) (*telemetry.LokiResult, error)
	QueryRange(ctx context.Context, query string, start, end time.Time, limit int, direction string) (*telemetry.LokiResult, error)
}

// TelemetryService registers the Prometheus and Loki query tools.
// Either backend may be nil; its tools are then not registered.
type TelemetryService struct {
	prom Prometheus
	loki Loki
	svc  *Service
}

// NewTelemetryService builds the telemetry tool service. The embedded
// Service supplies tracing and metrics instrumentation.
func NewTelemetryService(prom Prometheus, loki Loki, tracer *otel.Tracer, metrics *otel.Metrics) *TelemetryService {
	if tracer == nil {
		tracer = otel.NoopTracer()
	}
	if metrics == nil {
		metrics = otel.NoopMetrics()
	}
	return &TelemetryService{
		prom: prom,
		loki: loki,
		svc: &Service{
			tracer:  tracer,
			metrics: metrics,
			log:     zap.L().Named("tools"),
			started: time.Now(),
		},
	}
}

// Register adds the query tools for the configured backends.
func (t *TelemetryService) Register(srv *server.MCPServer) {
	if t.prom != nil {
		srv.AddTool(mcp.NewTool("prometheus_query",
			mcp.WithDescription("Run an instant PromQL query against the lab Prometheus server."),
			mcp.WithString("query", mcp.Required(), mcp.Description("PromQL expression.")),
			mcp.WithString("time", mcp.Description("Evaluation time, RFC 3339 or unix seconds. Defaults to now.")),
		), t.svc.handle("prometheus_query", t.promQuery))

		srv.AddTool(mcp.NewTool("prometheus_query_range",
			mcp.WithDescription("Run a PromQL range query against the lab Prometheus server."),
			mcp.WithString("query", mcp.Required(), mcp.Description("PromQL expression.")),
			mcp.WithString("start", mcp.Required(), mcp.Description("Range start, RFC 3339 or unix seconds.")),
			mcp.WithString("end", mcp.Description("Range end, RFC 3339 or unix seconds. Defaults to now.")),
			mcp.WithString("step", mcp.Description("Resolution step as a Go duration, e.g. \"15s\". Defaults to 1m.")),
		), t.svc.handle("prometheus_query_range", t.promQueryRange))
	}

	if t.loki != nil {
		srv.AddTool(mcp.NewTool("loki_query",
			mcp.WithDescription("Run an instant LogQL query against the lab Loki server."),
			mcp.WithString("query", mcp.Required(), mcp.Description("LogQL expression.")),
			mcp.WithString("time", mcp.Description("Evaluation time, RFC 3339 or unix seconds. Defaults to now.")),
			mcp.WithNumber("limit", mcp.Description("Maximum entries to return. Defaults to 100.")),
		), t.svc.handle("loki_query", t.lokiQuery))

		srv.AddTool(mcp.NewTool("loki_query_range",
			mcp.WithDescription("Run a LogQL range query against the lab Loki server and return timestamped log lines."),
			mcp.WithString("query", mcp.Required(), mcp.Description("LogQL expression.")),
			mcp.WithString("start", mcp.Required(), mcp.Description("Range start, RFC 3339 or unix seconds.")),
			mcp.WithString("end", mcp.Description("Range end, RFC 3339 or unix seconds. Defaults to now.")),
			mcp.WithNumber("limit", mcp.Description("Maximum entries to return. Defaults to 100.")),
			mcp.WithString("direction", mcp.Description("\"forward\" or \"backward\". Defaults to backward.")),
		), t.svc.handle("loki_query_range", t.lokiQueryRange))
	}
}

func (t *TelemetryService) promQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ts, err := parseTime(req.GetString("time", ""), time.Time{})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := t.prom.Query(ctx, query, ts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (t *TelemetryService) promQueryRange(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	start, end, errResult := parseRange(req)
	if errResult != nil {
		return errResult, nil
	}

	step := time.Minute
	if stepStr := req.GetString("step", ""); stepStr != "" {
		step, err = time.ParseDuration(stepStr)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid step %q: %v", stepStr, err)), nil
		}
	}

	result, err := t.prom.QueryRange(ctx, query, start, end, step)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (t *TelemetryService) lokiQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ts, err := parseTime(req.GetString("time", ""), time.Time{})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := t.loki.Query(ctx, query, ts, req.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return lokiResult(result)
}

func (t *TelemetryService) lokiQueryRange(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	start, end, errResult := parseRange(req)
	if errResult != nil {
		return errResult, nil
	}

	result, err := t.loki.QueryRange(ctx, query, start, end,
		req.GetInt("limit", 0), req.GetString("direction", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return lokiResult(result)
}

// lokiResult renders stream results as flat log lines, which reads far
// better in a conversation than nested stream JSON. Metric results pass
// through as JSON.
func lokiResult(result *telemetry.LokiResult) (*mcp.CallToolResult, error) {
	if result.ResultType != "streams" {
		return jsonResult(result)
	}
	lines := result.FormatLines()
	if len(lines) == 0 {
		return mcp.NewToolResultText("no log entries matched"), nil
	}
	out := ""
	for _, line := range lines {
		out += line + "\n"
	}
	return mcp.NewToolResultText(out), nil
}

func parseRange(req mcp.CallToolRequest) (start, end time.Time, errResult *mcp.CallToolResult) {
	startStr, err := req.RequireString("start")
	if err != nil {
		return start, end, mcp.NewToolResultError(err.Error())
	}
	start, err = parseTime(startStr, time.Time{})
	if err != nil {
		return start, end, mcp.NewToolResultError(err.Error())
	}
	end, err = parseTime(req.GetString("end", ""), time.Now())
	if err != nil {
		return start, end, mcp.NewToolResultError(err.Error())
	}
	return start, end, nil
}

// parseTime accepts RFC 3339 timestamps and unix seconds. Empty input
// yields the fallback.
func parseTime(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(secs)
		nsec := int64((secs - float64(sec)) * 1e9)
		return time.Unix(sec, nsec), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or unix seconds", s)
}
