package mockotg

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bc-dunia/otgmcp/internal/otg"
)

func startTarget(t *testing.T) (Server, *otg.Client) {
	t.Helper()
	srv, cleanup := StartTestServer()
	t.Cleanup(cleanup)
	require.NotEmpty(t, srv.Addr())

	client := otg.NewClient(otg.ClientConfig{
		Target: srv.URL(),
		Timeouts: otg.TimeoutConfig{
			ConnectTimeout:   time.Second,
			RequestTimeout:   5 * time.Second,
			StopVerifyWindow: 2 * time.Second,
		},
	})
	return srv, client
}

const labConfig = `{
	"ports": [{"name": "p1", "location": "eth1"}, {"name": "p2", "location": "eth2"}],
	"flows": [{"name": "f1", "tx_rx": {"choice": "port"}}],
	"captures": [{"name": "cap1", "port_names": ["p1"]}]
}`

func TestTrafficLifecycle(t *testing.T) {
	_, client := startTarget(t)
	ctx := context.Background()

	info, err := client.GetVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.30.0", info.SDKVersion)

	_, err = client.SetConfig(ctx, json.RawMessage(labConfig))
	require.NoError(t, err)

	got, err := client.GetConfig(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, labConfig, string(got))

	require.NoError(t, client.StartTraffic(ctx))

	result, err := client.GetMetrics(ctx, otg.MetricsFilter{FlowNames: []string{}})
	require.NoError(t, err)

	var flows []struct {
		Name     string `json:"name"`
		Transmit string `json:"transmit"`
	}
	require.NoError(t, json.Unmarshal(result.FlowMetrics, &flows))
	require.Len(t, flows, 1)
	assert.Equal(t, "f1", flows[0].Name)
	assert.Equal(t, "started", flows[0].Transmit)

	// Stop drains immediately on the mock since rates drop to zero.
	require.NoError(t, client.StopTraffic(ctx))

	result, err = client.GetMetrics(ctx, otg.MetricsFilter{FlowNames: []string{}})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(result.FlowMetrics, &flows))
	assert.Equal(t, "stopped", flows[0].Transmit)
}

func TestCaptureLifecycle(t *testing.T) {
	_, client := startTarget(t)
	ctx := context.Background()

	_, err := client.SetConfig(ctx, json.RawMessage(labConfig))
	require.NoError(t, err)

	require.NoError(t, client.StartCapture(ctx, []string{"p1"}))
	require.NoError(t, client.StopCapture(ctx, []string{"p1"}))

	path, size, err := client.GetCapture(ctx, "p1", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 24, size)
	assert.Contains(t, path, "p1")
}

func TestRejectsBadRequests(t *testing.T) {
	_, client := startTarget(t)
	ctx := context.Background()

	var targetErr *otg.TargetError

	_, err := client.SetConfig(ctx, json.RawMessage(`{"flows": [{"name": ""}]}`))
	require.ErrorAs(t, err, &targetErr)
	assert.Equal(t, otg.ErrorTypeHTTP, targetErr.Type)

	// Traffic control before any flows are configured.
	err = client.StartTraffic(ctx)
	require.ErrorAs(t, err, &targetErr)
	assert.Contains(t, targetErr.Message, "no flows")

	// Capture on an unknown port.
	_, err = client.SetConfig(ctx, json.RawMessage(labConfig))
	require.NoError(t, err)
	err = client.StartCapture(ctx, []string{"p9"})
	require.ErrorAs(t, err, &targetErr)
	assert.Contains(t, targetErr.Message, "unknown port")
}

func TestPortMetrics(t *testing.T) {
	_, client := startTarget(t)
	ctx := context.Background()

	_, err := client.SetConfig(ctx, json.RawMessage(labConfig))
	require.NoError(t, err)

	result, err := client.GetMetrics(ctx, otg.MetricsFilter{PortNames: []string{}})
	require.NoError(t, err)

	var ports []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(result.PortMetrics, &ports))
	assert.Len(t, ports, 2)
}
