package otg

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client talks to a single traffic generator target over its REST API.
// Configuration and metrics payloads pass through as raw JSON; the
// target is the authority on their shape.
type Client struct {
	target  string
	baseURL string
	http    *http.Client
	cfg     ClientConfig
	log     *zap.Logger
}

// NewClient builds a client for the given target. Targets are addressed
// as "host:port" and reached over HTTPS unless the target string already
// carries a scheme.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeouts.RequestTimeout == 0 {
		cfg.Timeouts = DefaultTimeoutConfig()
	}

	baseURL := cfg.Target
	if !strings.Contains(baseURL, "://") {
		baseURL = "https://" + baseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.Timeouts.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout: cfg.Timeouts.ConnectTimeout,
	}
	if cfg.SkipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		target:  cfg.Target,
		baseURL: baseURL,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeouts.RequestTimeout,
		},
		cfg: cfg,
		log: zap.L().Named("otg").With(zap.String("target", cfg.Target)),
	}
}

// Target returns the target name this client talks to.
func (c *Client) Target() string { return c.target }

// GetVersion fetches the target's version capabilities. The SDK version
// in the response drives schema selection.
func (c *Client) GetVersion(ctx context.Context) (*VersionInfo, error) {
	body, err := c.do(ctx, http.MethodGet, "/capabilities/version", nil)
	if err != nil {
		return nil, err
	}
	var info VersionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, classify(c.target, "get_version", fmt.Errorf("decoding version response: %w", err))
	}
	return &info, nil
}

// SetConfig applies a full traffic configuration to the target and
// returns the target's response (warnings, normalized config).
func (c *Client) SetConfig(ctx context.Context, config json.RawMessage) (json.RawMessage, error) {
	c.log.Info("applying configuration", zap.Int("bytes", len(config)))
	return c.do(ctx, http.MethodPost, "/config", config)
}

// GetConfig retrieves the currently applied configuration.
func (c *Client) GetConfig(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/config", nil)
}

// StartTraffic starts transmit on all configured flows.
func (c *Client) StartTraffic(ctx context.Context) error {
	c.log.Info("starting traffic")
	return c.setFlowTransmit(ctx, "start")
}

// StopTraffic stops transmit on all configured flows and then polls flow
// metrics until transmit rates drain or the verify window elapses. Some
// targets acknowledge the stop before the data plane quiesces.
func (c *Client) StopTraffic(ctx context.Context) error {
	c.log.Info("stopping traffic")
	if err := c.setFlowTransmit(ctx, "stop"); err != nil {
		return err
	}

	deadline := time.Now().Add(c.cfg.Timeouts.StopVerifyWindow)
	for time.Now().Before(deadline) {
		drained, err := c.transmitDrained(ctx)
		if err != nil {
			// Verification is best effort; the stop itself succeeded.
			c.log.Warn("stop verification failed", zap.Error(err))
			return nil
		}
		if drained {
			return nil
		}
		select {
		case <-ctx.Done():
			return classify(c.target, "stop_traffic", ctx.Err())
		case <-time.After(500 * time.Millisecond):
		}
	}
	c.log.Warn("traffic still draining after stop",
		zap.Duration("window", c.cfg.Timeouts.StopVerifyWindow))
	return nil
}

func (c *Client) setFlowTransmit(ctx context.Context, state string) error {
	req := controlState{
		Choice: "traffic",
		Traffic: &trafficControl{
			Choice:       "flow_transmit",
			FlowTransmit: &flowTransmitControl{State: state},
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return classify(c.target, "set_control_state", err)
	}
	_, err = c.do(ctx, http.MethodPost, "/control/state", body)
	return err
}

// stopRateFloor is the frames/s rate below which a flow counts as
// stopped; hardware counters rarely settle at exactly zero.
const stopRateFloor = 0.1

func (c *Client) transmitDrained(ctx context.Context) (bool, error) {
	body, err := c.metrics(ctx, metricsRequest{Choice: "flow", Flow: &flowMetricsQuery{}})
	if err != nil {
		return false, err
	}
	var rates flowRateResponse
	if err := json.Unmarshal(body, &rates); err != nil {
		return false, fmt.Errorf("decoding flow metrics: %w", err)
	}
	for _, fm := range rates.FlowMetrics {
		if fm.FramesTxRate > stopRateFloor {
			return false, nil
		}
	}
	return true, nil
}

// GetMetrics fetches metrics per the filter. Flow and port metrics are
// separate requests on the wire; when the filter names neither kind,
// both are fetched.
func (c *Client) GetMetrics(ctx context.Context, filter MetricsFilter) (*MetricsResult, error) {
	wantFlows := filter.FlowNames != nil
	wantPorts := filter.PortNames != nil
	if !wantFlows && !wantPorts {
		wantFlows, wantPorts = true, true
	}

	result := &MetricsResult{}
	if wantFlows {
		body, err := c.metrics(ctx, metricsRequest{
			Choice: "flow",
			Flow:   &flowMetricsQuery{FlowNames: filter.FlowNames},
		})
		if err != nil {
			return nil, err
		}
		result.FlowMetrics = extractMetrics(body, "flow_metrics")
	}
	if wantPorts {
		body, err := c.metrics(ctx, metricsRequest{
			Choice: "port",
			Port:   &portMetricsQuery{PortNames: filter.PortNames},
		})
		if err != nil {
			return nil, err
		}
		result.PortMetrics = extractMetrics(body, "port_metrics")
	}
	return result, nil
}

func (c *Client) metrics(ctx context.Context, req metricsRequest) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, classify(c.target, "get_metrics", err)
	}
	return c.do(ctx, http.MethodPost, "/monitor/metrics", body)
}

// extractMetrics pulls one metrics array out of a MetricsResponse
// without interpreting the entries.
func extractMetrics(body json.RawMessage, key string) json.RawMessage {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	return envelope[key]
}

// do issues one request and returns the response body. Non-2xx statuses
// and transport failures come back as classified TargetErrors.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	op := strings.ToLower(method) + " " + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, classify(c.target, op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(c.target, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(c.target, op, err)
	}

	c.log.Debug("request complete",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpError(c.target, op, resp.StatusCode, respBody)
	}
	return respBody, nil
}
