// Package otg provides an HTTP client for Open Traffic Generator targets.
package otg

import (
	"encoding/json"
	"time"
)

// VersionInfo is the payload of a target's /capabilities/version endpoint.
// SDKVersion is the value fed into schema resolution.
type VersionInfo struct {
	APISpecVersion string `json:"api_spec_version"`
	SDKVersion     string `json:"sdk_version"`
	AppVersion     string `json:"app_version"`
}

// TimeoutConfig holds timeout settings for target operations.
type TimeoutConfig struct {
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	// StopVerifyWindow bounds how long StopTraffic polls flow metrics
	// waiting for transmit rates to drain.
	StopVerifyWindow time.Duration
}

// DefaultTimeoutConfig returns sensible default timeout values.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		ConnectTimeout:   5 * time.Second,
		RequestTimeout:   30 * time.Second,
		StopVerifyWindow: 5 * time.Second,
	}
}

// ClientConfig holds configuration for a single target client.
type ClientConfig struct {
	// Target is the "host:port" of the traffic generator controller.
	Target string
	// SkipTLSVerify disables certificate verification; lab controllers
	// usually present self-signed certificates.
	SkipTLSVerify bool
	Timeouts      TimeoutConfig
}

// MetricsFilter selects which metrics a request asks for. A nil slice
// means the kind was not requested; an empty non-nil slice means all
// entries of that kind. When neither kind is requested, both are fetched.
type MetricsFilter struct {
	FlowNames []string
	PortNames []string
}

// MetricsResult is the merged metrics payload returned to callers.
type MetricsResult struct {
	PortMetrics json.RawMessage `json:"port_metrics,omitempty"`
	FlowMetrics json.RawMessage `json:"flow_metrics,omitempty"`
}

// controlState mirrors the OTG ControlState request body. Only the
// shapes this client sends are modeled; payloads coming back stay raw.
type controlState struct {
	Choice  string          `json:"choice"`
	Port    *portControl    `json:"port,omitempty"`
	Traffic *trafficControl `json:"traffic,omitempty"`
}

type portControl struct {
	Choice  string          `json:"choice"`
	Capture *captureControl `json:"capture,omitempty"`
}

type captureControl struct {
	State     string   `json:"state"`
	PortNames []string `json:"port_names,omitempty"`
}

type trafficControl struct {
	Choice       string               `json:"choice"`
	FlowTransmit *flowTransmitControl `json:"flow_transmit,omitempty"`
}

type flowTransmitControl struct {
	State     string   `json:"state"`
	FlowNames []string `json:"flow_names,omitempty"`
}

// metricsRequest mirrors the OTG MetricsRequest body.
type metricsRequest struct {
	Choice string              `json:"choice"`
	Port   *portMetricsQuery   `json:"port,omitempty"`
	Flow   *flowMetricsQuery   `json:"flow,omitempty"`
}

type portMetricsQuery struct {
	PortNames []string `json:"port_names,omitempty"`
}

type flowMetricsQuery struct {
	FlowNames []string `json:"flow_names,omitempty"`
}

// captureRequest mirrors the OTG CaptureRequest body.
type captureRequest struct {
	PortName string `json:"port_name"`
}

// flowRateResponse is the minimal metrics shape needed to verify that
// traffic has drained after a stop request.
type flowRateResponse struct {
	FlowMetrics []struct {
		Name         string  `json:"name"`
		FramesTxRate float64 `json:"frames_tx_rate"`
	} `json:"flow_metrics"`
}
