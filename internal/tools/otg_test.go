package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bc-dunia/otgmcp/internal/config"
	"github.com/bc-dunia/otgmcp/internal/otg"
	"github.com/bc-dunia/otgmcp/internal/schema"
)

// mockClient implements TargetClient with canned responses.
type mockClient struct {
	version     *otg.VersionInfo
	versionErr  error
	setConfigIn json.RawMessage
	metricsIn   otg.MetricsFilter
	captureIn   []string
	failOps     bool
}

func (m *mockClient) GetVersion(ctx context.Context) (*otg.VersionInfo, error) {
	return m.version, m.versionErr
}

func (m *mockClient) SetConfig(ctx context.Context, cfg json.RawMessage) (json.RawMessage, error) {
	if m.failOps {
		return nil, errors.New("config rejected")
	}
	m.setConfigIn = cfg
	return json.RawMessage(`{"warnings":[]}`), nil
}

func (m *mockClient) GetConfig(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"ports":[]}`), nil
}

func (m *mockClient) StartTraffic(ctx context.Context) error {
	if m.failOps {
		return errors.New("no flows configured")
	}
	return nil
}

func (m *mockClient) StopTraffic(ctx context.Context) error { return nil }

func (m *mockClient) GetMetrics(ctx context.Context, filter otg.MetricsFilter) (*otg.MetricsResult, error) {
	m.metricsIn = filter
	return &otg.MetricsResult{
		FlowMetrics: json.RawMessage(`[{"name":"f1"}]`),
	}, nil
}

func (m *mockClient) StartCapture(ctx context.Context, portNames []string) error {
	m.captureIn = portNames
	return nil
}

func (m *mockClient) StopCapture(ctx context.Context, portNames []string) error {
	m.captureIn = portNames
	return nil
}

func (m *mockClient) GetCapture(ctx context.Context, portName, dir string) (string, int, error) {
	return dir + "/" + portName + ".pcap", 64, nil
}

// mockProvider implements Provider over a fixed client map.
type mockProvider struct {
	clients  map[string]*mockClient
	resolved schema.Version
}

func (p *mockProvider) Client(target string) (TargetClient, error) {
	c, ok := p.clients[target]
	if !ok {
		return nil, errors.New("unknown target " + target)
	}
	return c, nil
}

func (p *mockProvider) ResolvedVersion(ctx context.Context, target string) (schema.Version, error) {
	if _, ok := p.clients[target]; !ok {
		return schema.Version{}, errors.New("unknown target " + target)
	}
	if c := p.clients[target]; c.versionErr != nil {
		return schema.Version{}, c.versionErr
	}
	return p.resolved, nil
}

func (p *mockProvider) Targets() []string {
	names := make([]string, 0, len(p.clients))
	for name := range p.clients {
		names = append(names, name)
	}
	return names
}

func (p *mockProvider) PortsFor(target string) (map[string]config.PortConfig, error) {
	if _, ok := p.clients[target]; !ok {
		return nil, errors.New("unknown target " + target)
	}
	return map[string]config.PortConfig{
		"p1": {Name: "p1", Location: "eth1"},
	}, nil
}

func (p *mockProvider) CaptureDir() string { return "/tmp" }

func testStore(t *testing.T) *schema.Store {
	t.Helper()
	catalog, err := schema.NewCatalog([]*schema.Artifact{{
		Version: schema.MustParseVersion("1.30.0"),
		Source:  schema.SourceBuiltin,
		Document: map[string]any{
			"components": map[string]any{
				"schemas": map[string]any{
					"Flow": map[string]any{"type": "object"},
					"Port": map[string]any{"type": "object"},
				},
			},
		},
	}})
	require.NoError(t, err)
	return schema.NewStore(catalog)
}

func newTestService(t *testing.T) (*Service, *mockProvider) {
	t.Helper()
	provider := &mockProvider{
		clients: map[string]*mockClient{
			"lab:8443": {version: &otg.VersionInfo{SDKVersion: "1.30.5"}},
		},
		resolved: schema.MustParseVersion("1.30.0"),
	}
	return NewService(provider, testStore(t), nil, nil), provider
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text
}

func TestGetAvailableTargets(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.getAvailableTargets(context.Background(), callRequest("get_available_targets", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out map[string]targetSummary
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	require.Contains(t, out, "lab:8443")
	assert.Equal(t, "1.30.0", out["lab:8443"].SchemaVersion)
	require.Len(t, out["lab:8443"].Ports, 1)
	assert.Equal(t, "p1", out["lab:8443"].Ports[0].Name)
}

func TestHealthDegradedOnUnreachableTarget(t *testing.T) {
	svc, provider := newTestService(t)
	provider.clients["down:8443"] = &mockClient{versionErr: errors.New("connection refused")}

	result, err := svc.health(context.Background(), callRequest("health", nil))
	require.NoError(t, err)

	var report healthReport
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &report))
	assert.Equal(t, "degraded", report.Status)
	assert.True(t, report.Targets["lab:8443"].Reachable)
	assert.False(t, report.Targets["down:8443"].Reachable)
	assert.Contains(t, report.Targets["down:8443"].Error, "connection refused")
	assert.Equal(t, 1, report.Server.SchemaVersions)
}

func TestSetConfig(t *testing.T) {
	svc, provider := newTestService(t)

	req := callRequest("set_config", map[string]any{
		"target": "lab:8443",
		"config": map[string]any{"ports": []any{map[string]any{"name": "p1"}}},
	})
	result, err := svc.setConfig(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.JSONEq(t, `{"ports":[{"name":"p1"}]}`, string(provider.clients["lab:8443"].setConfigIn))

	t.Run("missing config argument", func(t *testing.T) {
		result, err := svc.setConfig(context.Background(), callRequest("set_config", map[string]any{
			"target": "lab:8443",
		}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("unknown target", func(t *testing.T) {
		result, err := svc.setConfig(context.Background(), callRequest("set_config", map[string]any{
			"target": "nowhere:1",
			"config": map[string]any{},
		}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("target rejection surfaces as tool error", func(t *testing.T) {
		provider.clients["lab:8443"].failOps = true
		defer func() { provider.clients["lab:8443"].failOps = false }()

		result, err := svc.setConfig(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})
}

func TestGetMetricsFilter(t *testing.T) {
	svc, provider := newTestService(t)
	client := provider.clients["lab:8443"]

	t.Run("no filter", func(t *testing.T) {
		_, err := svc.getMetrics(context.Background(), callRequest("get_metrics", map[string]any{
			"target": "lab:8443",
		}))
		require.NoError(t, err)
		assert.Nil(t, client.metricsIn.FlowNames)
		assert.Nil(t, client.metricsIn.PortNames)
	})

	t.Run("flow filter", func(t *testing.T) {
		_, err := svc.getMetrics(context.Background(), callRequest("get_metrics", map[string]any{
			"target":     "lab:8443",
			"flow_names": []any{"f1", "f2"},
		}))
		require.NoError(t, err)
		assert.Equal(t, []string{"f1", "f2"}, client.metricsIn.FlowNames)
		assert.Nil(t, client.metricsIn.PortNames)
	})

	t.Run("empty array means all of that kind", func(t *testing.T) {
		_, err := svc.getMetrics(context.Background(), callRequest("get_metrics", map[string]any{
			"target":     "lab:8443",
			"port_names": []any{},
		}))
		require.NoError(t, err)
		assert.NotNil(t, client.metricsIn.PortNames)
		assert.Empty(t, client.metricsIn.PortNames)
	})
}

func TestCaptureTools(t *testing.T) {
	svc, provider := newTestService(t)
	client := provider.clients["lab:8443"]

	result, err := svc.startCapture(context.Background(), callRequest("start_capture", map[string]any{
		"target":     "lab:8443",
		"port_names": []any{"p1"},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, []string{"p1"}, client.captureIn)

	t.Run("missing ports rejected", func(t *testing.T) {
		result, err := svc.stopCapture(context.Background(), callRequest("stop_capture", map[string]any{
			"target": "lab:8443",
		}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("get capture returns path", func(t *testing.T) {
		result, err := svc.getCapture(context.Background(), callRequest("get_capture", map[string]any{
			"target":    "lab:8443",
			"port_name": "p1",
		}))
		require.NoError(t, err)

		var out captureResult
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
		assert.Equal(t, "/tmp/p1.pcap", out.Path)
		assert.Equal(t, 64, out.Bytes)
	})
}

func TestSchemaTools(t *testing.T) {
	svc, _ := newTestService(t)

	t.Run("list", func(t *testing.T) {
		result, err := svc.listSchemas(context.Background(), callRequest("list_schemas_for_target", map[string]any{
			"target": "lab:8443",
		}))
		require.NoError(t, err)
		require.False(t, result.IsError)

		var out struct {
			SchemaVersion string   `json:"schema_version"`
			Schemas       []string `json:"schemas"`
		}
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
		assert.Equal(t, "1.30.0", out.SchemaVersion)
		assert.Equal(t, []string{"Flow", "Port"}, out.Schemas)
	})

	t.Run("get selected", func(t *testing.T) {
		result, err := svc.getSchemas(context.Background(), callRequest("get_schemas_for_target", map[string]any{
			"target":       "lab:8443",
			"schema_names": []any{"Flow", "Nope"},
		}))
		require.NoError(t, err)

		var out struct {
			Schemas map[string]any `json:"schemas"`
			Missing []string       `json:"missing"`
		}
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
		assert.Contains(t, out.Schemas, "Flow")
		assert.Equal(t, []string{"Nope"}, out.Missing)
	})

	t.Run("get all when unfiltered", func(t *testing.T) {
		result, err := svc.getSchemas(context.Background(), callRequest("get_schemas_for_target", map[string]any{
			"target": "lab:8443",
		}))
		require.NoError(t, err)

		var out struct {
			Schemas map[string]any `json:"schemas"`
		}
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
		assert.Len(t, out.Schemas, 2)
	})
}

func TestStartTrafficErrorResult(t *testing.T) {
	svc, provider := newTestService(t)
	provider.clients["lab:8443"].failOps = true

	result, err := svc.startTraffic(context.Background(), callRequest("start_traffic", map[string]any{
		"target": "lab:8443",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleWrapsInstrumentation(t *testing.T) {
	svc, _ := newTestService(t)

	handler := svc.handle("stop_traffic", svc.stopTraffic)
	result, err := handler(context.Background(), callRequest("stop_traffic", map[string]any{
		"target": "lab:8443",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "traffic stopped", resultText(t, result))
}
