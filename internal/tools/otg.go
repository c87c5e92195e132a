package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/bc-dunia/otgmcp/internal/otg"
)

// Register adds the traffic generator tools to the MCP server.
func (s *Service) Register(srv *server.MCPServer) {
	srv.AddTool(mcp.NewTool("get_available_targets",
		mcp.WithDescription("List configured traffic generator targets, their ports and the schema version each resolves to."),
	), s.handle("get_available_targets", s.getAvailableTargets))

	srv.AddTool(mcp.NewTool("health",
		mcp.WithDescription("Report server process health and reachability of every configured target."),
	), s.handle("health", s.health))

	srv.AddTool(mcp.NewTool("set_config",
		mcp.WithDescription("Apply a full OTG configuration (ports, flows, captures) to a target. Replaces the current configuration."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target name as listed by get_available_targets.")),
		mcp.WithObject("config", mcp.Required(), mcp.Description("OTG Config object. Schema available via get_schemas_for_target.")),
	), s.handle("set_config", s.setConfig))

	srv.AddTool(mcp.NewTool("get_config",
		mcp.WithDescription("Fetch the configuration currently applied to a target."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target name.")),
	), s.handle("get_config", s.getConfig))

	srv.AddTool(mcp.NewTool("start_traffic",
		mcp.WithDescription("Start transmitting all configured flows on a target."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target name.")),
	), s.handle("start_traffic", s.startTraffic))

	srv.AddTool(mcp.NewTool("stop_traffic",
		mcp.WithDescription("Stop transmitting flows on a target and wait for transmit rates to drain."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target name.")),
	), s.handle("stop_traffic", s.stopTraffic))

	srv.AddTool(mcp.NewTool("get_metrics",
		mcp.WithDescription("Fetch flow and port metrics from a target. With no filter both kinds are returned."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target name.")),
		mcp.WithArray("flow_names", mcp.Description("Flow names to fetch metrics for. Empty array means all flows.")),
		mcp.WithArray("port_names", mcp.Description("Port names to fetch metrics for. Empty array means all ports.")),
	), s.handle("get_metrics", s.getMetrics))

	srv.AddTool(mcp.NewTool("start_capture",
		mcp.WithDescription("Start packet capture on ports that have a capture entry in the applied configuration."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target name.")),
		mcp.WithArray("port_names", mcp.Required(), mcp.Description("Ports to capture on.")),
	), s.handle("start_capture", s.startCapture))

	srv.AddTool(mcp.NewTool("stop_capture",
		mcp.WithDescription("Stop packet capture on the given ports. Captured packets stay on the target until fetched."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target name.")),
		mcp.WithArray("port_names", mcp.Required(), mcp.Description("Ports to stop capturing on.")),
	), s.handle("stop_capture", s.stopCapture))

	srv.AddTool(mcp.NewTool("get_capture",
		mcp.WithDescription("Download the capture buffer for one port to a local pcap file and return its path."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target name.")),
		mcp.WithString("port_name", mcp.Required(), mcp.Description("Port whose capture buffer to download.")),
	), s.handle("get_capture", s.getCapture))

	srv.AddTool(mcp.NewTool("list_schemas_for_target",
		mcp.WithDescription("List the component schema names available for a target's resolved API version."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target name.")),
	), s.handle("list_schemas_for_target", s.listSchemas))

	srv.AddTool(mcp.NewTool("get_schemas_for_target",
		mcp.WithDescription("Return component schema definitions for a target's resolved API version."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target name.")),
		mcp.WithArray("schema_names", mcp.Description("Schema names, e.g. [\"Flow\", \"Port\"]. Empty means all.")),
	), s.handle("get_schemas_for_target", s.getSchemas))
}

type targetSummary struct {
	Ports         []portSummary `json:"ports"`
	SchemaVersion string        `json:"schema_version,omitempty"`
	Error         string        `json:"error,omitempty"`
}

type portSummary struct {
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
}

func (s *Service) getAvailableTargets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out := make(map[string]targetSummary)
	for _, target := range s.provider.Targets() {
		summary := targetSummary{}

		ports, err := s.provider.PortsFor(target)
		if err == nil {
			for _, p := range ports {
				summary.Ports = append(summary.Ports, portSummary{Name: p.Name, Location: p.Location})
			}
		}

		if v, err := s.provider.ResolvedVersion(ctx, target); err != nil {
			summary.Error = err.Error()
		} else {
			summary.SchemaVersion = v.String()
		}
		out[target] = summary
	}
	return jsonResult(out)
}

type healthReport struct {
	Status  string                  `json:"status"`
	Server  serverHealth            `json:"server"`
	Targets map[string]targetHealth `json:"targets"`
}

type serverHealth struct {
	UptimeSeconds  float64 `json:"uptime_seconds"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryRSSBytes uint64  `json:"memory_rss_bytes"`
	Goroutines     int     `json:"goroutines"`
	SchemaVersions int     `json:"schema_versions"`
}

type targetHealth struct {
	Reachable     bool   `json:"reachable"`
	APIVersion    string `json:"api_version,omitempty"`
	SchemaVersion string `json:"schema_version,omitempty"`
	Error         string `json:"error,omitempty"`
}

func (s *Service) health(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report := healthReport{
		Status: "ok",
		Server: serverHealth{
			UptimeSeconds:  time.Since(s.started).Seconds(),
			Goroutines:     runtime.NumGoroutine(),
			SchemaVersions: s.store.Catalog().Len(),
		},
		Targets: make(map[string]targetHealth),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			report.Server.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			report.Server.MemoryRSSBytes = mem.RSS
		}
	}

	for _, target := range s.provider.Targets() {
		th := targetHealth{}
		client, err := s.provider.Client(target)
		if err == nil {
			var info *targetVersionInfo
			info, err = probeTarget(ctx, client)
			if err == nil {
				th.Reachable = true
				th.APIVersion = info.sdkVersion
				if v, verr := s.provider.ResolvedVersion(ctx, target); verr == nil {
					th.SchemaVersion = v.String()
				}
			}
		}
		if err != nil {
			th.Error = err.Error()
			report.Status = "degraded"
		}
		report.Targets[target] = th
	}
	return jsonResult(report)
}

type targetVersionInfo struct {
	sdkVersion string
}

func probeTarget(ctx context.Context, client TargetClient) (*targetVersionInfo, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	info, err := client.GetVersion(probeCtx)
	if err != nil {
		return nil, err
	}
	return &targetVersionInfo{sdkVersion: info.SDKVersion}, nil
}

func (s *Service) setConfig(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, errResult := s.clientFor(req)
	if errResult != nil {
		return errResult, nil
	}

	args := req.GetArguments()
	cfgArg, ok := args["config"]
	if !ok {
		return mcp.NewToolResultError("config is required"), nil
	}
	raw, err := json.Marshal(cfgArg)
	if err != nil {
		return mcp.NewToolResultError("encoding config: " + err.Error()), nil
	}

	resp, err := client.SetConfig(ctx, raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return rawResult(resp), nil
}

func (s *Service) getConfig(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, errResult := s.clientFor(req)
	if errResult != nil {
		return errResult, nil
	}
	cfg, err := client.GetConfig(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return rawResult(cfg), nil
}

func (s *Service) startTraffic(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, errResult := s.clientFor(req)
	if errResult != nil {
		return errResult, nil
	}
	if err := client.StartTraffic(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("traffic started"), nil
}

func (s *Service) stopTraffic(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, errResult := s.clientFor(req)
	if errResult != nil {
		return errResult, nil
	}
	if err := client.StopTraffic(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("traffic stopped"), nil
}

func (s *Service) getMetrics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, errResult := s.clientFor(req)
	if errResult != nil {
		return errResult, nil
	}

	filter := otgFilter(req)
	result, err := client.GetMetrics(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (s *Service) startCapture(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.captureControl(ctx, req, TargetClient.StartCapture, "capture started")
}

func (s *Service) stopCapture(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.captureControl(ctx, req, TargetClient.StopCapture, "capture stopped")
}

func (s *Service) captureControl(ctx context.Context, req mcp.CallToolRequest,
	op func(TargetClient, context.Context, []string) error, okMsg string) (*mcp.CallToolResult, error) {

	client, errResult := s.clientFor(req)
	if errResult != nil {
		return errResult, nil
	}
	ports, ok := stringSlice(req, "port_names")
	if !ok || len(ports) == 0 {
		return mcp.NewToolResultError("port_names must be a non-empty array of strings"), nil
	}
	if err := op(client, ctx, ports); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s on ports %v", okMsg, ports)), nil
}

type captureResult struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

func (s *Service) getCapture(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, errResult := s.clientFor(req)
	if errResult != nil {
		return errResult, nil
	}
	portName, err := req.RequireString("port_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	path, size, err := client.GetCapture(ctx, portName, s.provider.CaptureDir())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(captureResult{Path: path, Bytes: size})
}

func (s *Service) listSchemas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	v, err := s.provider.ResolvedVersion(ctx, target)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	names, err := s.store.Catalog().ComponentNames(v, "components.schemas")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"schema_version": v.String(),
		"schemas":        names,
	})
}

func (s *Service) getSchemas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	v, err := s.provider.ResolvedVersion(ctx, target)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	catalog := s.store.Catalog()

	names, _ := stringSlice(req, "schema_names")
	if len(names) == 0 {
		var nerr error
		names, nerr = catalog.ComponentNames(v, "components.schemas")
		if nerr != nil {
			return mcp.NewToolResultError(nerr.Error()), nil
		}
	}

	schemas := make(map[string]any, len(names))
	var missing []string
	for _, name := range names {
		node, cerr := catalog.Component(v, "components.schemas."+name)
		if cerr != nil {
			missing = append(missing, name)
			continue
		}
		schemas[name] = node
	}

	out := map[string]any{
		"schema_version": v.String(),
		"schemas":        schemas,
	}
	if len(missing) > 0 {
		out["missing"] = missing
	}
	return jsonResult(out)
}

// clientFor resolves the target argument to a client, or returns a tool
// error result to hand back as-is.
func (s *Service) clientFor(req mcp.CallToolRequest) (TargetClient, *mcp.CallToolResult) {
	target, err := req.RequireString("target")
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	client, err := s.provider.Client(target)
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	return client, nil
}

// otgFilter reads the optional flow_names and port_names arguments. An
// absent key stays nil so the client knows the kind was not requested.
func otgFilter(req mcp.CallToolRequest) otg.MetricsFilter {
	var filter otg.MetricsFilter
	if names, ok := stringSlice(req, "flow_names"); ok {
		filter.FlowNames = names
	}
	if names, ok := stringSlice(req, "port_names"); ok {
		filter.PortNames = names
	}
	return filter
}

// stringSlice reads an array-of-strings argument. Returns ok=false when
// the key is absent or not an array of strings.
func stringSlice(req mcp.CallToolRequest, key string) ([]string, bool) {
	raw, ok := req.GetArguments()[key]
	if !ok {
		return nil, false
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, str)
	}
	return out, true
}

// rawResult returns target JSON verbatim; re-encoding could reorder or
// lose fields the target cares about.
func rawResult(raw json.RawMessage) *mcp.CallToolResult {
	return mcp.NewToolResultText(string(raw))
}
