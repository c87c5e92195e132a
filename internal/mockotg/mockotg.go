// Package mockotg implements an in-process traffic generator target for
// development and tests. It speaks the OTG REST surface: configuration,
// traffic control, metrics, captures and version capabilities.
package mockotg

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config configures the mock target.
type Config struct {
	Addr string
	// SDKVersion is what /capabilities/version reports; drives schema
	// resolution on the client side.
	SDKVersion string
	// LineRate is the synthetic per-flow transmit rate in frames/s.
	LineRate float64
}

// DefaultConfig returns a config listening on a random local port.
func DefaultConfig() *Config {
	return &Config{
		Addr:       "127.0.0.1:0",
		SDKVersion: "1.30.0",
		LineRate:   1000,
	}
}

// Server is the mock target lifecycle.
type Server interface {
	Start() error
	Stop(ctx context.Context)
	Addr() string
	URL() string
}

// New creates a mock target.
func New(cfg *Config) Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &mockTarget{cfg: cfg, log: zap.L().Named("mockotg")}
}

// StartTestServer starts a mock target with defaults and returns a
// cleanup function.
func StartTestServer() (Server, func()) {
	srv := New(nil)
	if err := srv.Start(); err != nil {
		return srv, func() {}
	}
	return srv, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Stop(ctx)
	}
}

type flowState struct {
	name         string
	transmitting bool
	startedAt    time.Time
	stoppedAt    time.Time
}

type mockTarget struct {
	cfg        *Config
	log        *zap.Logger
	httpServer *http.Server
	listener   net.Listener
	addr       string

	mu       sync.Mutex
	config   json.RawMessage
	flows    []*flowState
	ports    []string
	captures map[string]bool // port -> capturing
}

func (s *mockTarget) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.addr = ln.Addr().String()
	s.captures = make(map[string]bool)

	mux := http.NewServeMux()
	mux.HandleFunc("/capabilities/version", s.handleVersion)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/control/state", s.handleControlState)
	mux.HandleFunc("/monitor/metrics", s.handleMetrics)
	mux.HandleFunc("/monitor/capture", s.handleCapture)

	s.httpServer = &http.Server{Handler: mux}
	go func() { _ = s.httpServer.Serve(ln) }()

	s.log.Info("mock target listening", zap.String("addr", s.addr))
	return nil
}

func (s *mockTarget) Stop(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	_ = s.httpServer.Shutdown(ctx)
}

func (s *mockTarget) Addr() string { return s.addr }

func (s *mockTarget) URL() string {
	if s.addr == "" {
		return ""
	}
	return "http://" + s.addr
}

func (s *mockTarget) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]string{
		"api_spec_version": s.cfg.SDKVersion,
		"sdk_version":      s.cfg.SDKVersion,
		"app_version":      "mockotg-1.0",
	})
}

func (s *mockTarget) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.setConfig(w, r)
	case http.MethodGet:
		s.mu.Lock()
		cfg := s.config
		s.mu.Unlock()
		if cfg == nil {
			cfg = json.RawMessage(`{}`)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(cfg)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// otgConfig is the subset of the Config schema the mock validates.
type otgConfig struct {
	Ports []struct {
		Name string `json:"name"`
	} `json:"ports"`
	Flows []struct {
		Name string `json:"name"`
	} `json:"flows"`
	Captures []struct {
		Name      string   `json:"name"`
		PortNames []string `json:"port_names"`
	} `json:"captures"`
}

func (s *mockTarget) setConfig(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}

	var cfg otgConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid config: "+err.Error())
		return
	}
	for _, p := range cfg.Ports {
		if p.Name == "" {
			writeError(w, http.StatusBadRequest, "port without a name")
			return
		}
	}
	for _, f := range cfg.Flows {
		if f.Name == "" {
			writeError(w, http.StatusBadRequest, "flow without a name")
			return
		}
	}

	s.mu.Lock()
	s.config = body
	s.flows = s.flows[:0]
	for _, f := range cfg.Flows {
		s.flows = append(s.flows, &flowState{name: f.Name})
	}
	s.ports = s.ports[:0]
	for _, p := range cfg.Ports {
		s.ports = append(s.ports, p.Name)
	}
	s.captures = make(map[string]bool)
	s.mu.Unlock()

	writeJSON(w, map[string]any{"warnings": []string{}})
}

type controlStateRequest struct {
	Choice string `json:"choice"`
	Port   *struct {
		Choice  string `json:"choice"`
		Capture *struct {
			State     string   `json:"state"`
			PortNames []string `json:"port_names"`
		} `json:"capture"`
	} `json:"port"`
	Traffic *struct {
		Choice       string `json:"choice"`
		FlowTransmit *struct {
			State     string   `json:"state"`
			FlowNames []string `json:"flow_names"`
		} `json:"flow_transmit"`
	} `json:"traffic"`
}

func (s *mockTarget) handleControlState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req controlStateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid control state: "+err.Error())
		return
	}

	switch req.Choice {
	case "traffic":
		if req.Traffic == nil || req.Traffic.FlowTransmit == nil {
			writeError(w, http.StatusBadRequest, "traffic control without flow_transmit")
			return
		}
		s.setTransmit(req.Traffic.FlowTransmit.State, req.Traffic.FlowTransmit.FlowNames, w)
	case "port":
		if req.Port == nil || req.Port.Capture == nil {
			writeError(w, http.StatusBadRequest, "port control without capture")
			return
		}
		s.setCapture(req.Port.Capture.State, req.Port.Capture.PortNames, w)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported control choice %q", req.Choice))
	}
}

func (s *mockTarget) setTransmit(state string, flowNames []string, w http.ResponseWriter) {
	if state != "start" && state != "stop" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported transmit state %q", state))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.flows) == 0 {
		writeError(w, http.StatusBadRequest, "no flows configured")
		return
	}

	selected := func(name string) bool {
		if len(flowNames) == 0 {
			return true
		}
		for _, n := range flowNames {
			if n == name {
				return true
			}
		}
		return false
	}
	now := time.Now()
	for _, f := range s.flows {
		if !selected(f.name) {
			continue
		}
		if state == "start" {
			f.transmitting = true
			f.startedAt = now
		} else if f.transmitting {
			f.transmitting = false
			f.stoppedAt = now
		}
	}
	writeJSON(w, map[string]any{"warnings": []string{}})
}

func (s *mockTarget) setCapture(state string, portNames []string, w http.ResponseWriter) {
	if state != "start" && state != "stop" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported capture state %q", state))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range portNames {
		if !s.hasPort(p) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown port %q", p))
			return
		}
		s.captures[p] = state == "start"
	}
	writeJSON(w, map[string]any{"warnings": []string{}})
}

func (s *mockTarget) hasPort(name string) bool {
	for _, p := range s.ports {
		if p == name {
			return true
		}
	}
	return false
}

type metricsRequest struct {
	Choice string `json:"choice"`
	Flow   *struct {
		FlowNames []string `json:"flow_names"`
	} `json:"flow"`
	Port *struct {
		PortNames []string `json:"port_names"`
	} `json:"port"`
}

func (s *mockTarget) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req metricsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid metrics request: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch req.Choice {
	case "flow":
		var metrics []map[string]any
		for _, f := range s.flows {
			metrics = append(metrics, s.flowMetric(f))
		}
		writeJSON(w, map[string]any{"flow_metrics": metrics})
	case "port":
		var metrics []map[string]any
		for _, p := range s.ports {
			metrics = append(metrics, map[string]any{
				"name":      p,
				"frames_tx": s.totalFrames(),
				"frames_rx": s.totalFrames(),
			})
		}
		writeJSON(w, map[string]any{"port_metrics": metrics})
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported metrics choice %q", req.Choice))
	}
}

// flowMetric synthesizes counters from elapsed transmit time at the
// configured line rate.
func (s *mockTarget) flowMetric(f *flowState) map[string]any {
	frames := int64(0)
	rate := 0.0
	if !f.startedAt.IsZero() {
		until := f.stoppedAt
		if f.transmitting {
			until = time.Now()
			rate = s.cfg.LineRate
		}
		frames = int64(until.Sub(f.startedAt).Seconds() * s.cfg.LineRate)
	}
	return map[string]any{
		"name":           f.name,
		"transmit":       transmitState(f.transmitting),
		"frames_tx":      frames,
		"frames_rx":      frames,
		"frames_tx_rate": rate,
	}
}

func transmitState(on bool) string {
	if on {
		return "started"
	}
	return "stopped"
}

func (s *mockTarget) totalFrames() int64 {
	var total int64
	for _, f := range s.flows {
		if f.startedAt.IsZero() {
			continue
		}
		until := f.stoppedAt
		if f.transmitting {
			until = time.Now()
		}
		total += int64(until.Sub(f.startedAt).Seconds() * s.cfg.LineRate)
	}
	return total
}

type captureRequest struct {
	PortName string `json:"port_name"`
}

func (s *mockTarget) handleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req captureRequest
	if err := json.Unmarshal(body, &req); err != nil || req.PortName == "" {
		writeError(w, http.StatusBadRequest, "capture request needs port_name")
		return
	}

	s.mu.Lock()
	known := s.hasPort(req.PortName)
	s.mu.Unlock()
	if !known {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown port %q", req.PortName))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(pcapHeader())
}

// pcapHeader is a valid empty little-endian pcap file.
func pcapHeader() []byte {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint32(buf[0:], 0xa1b2c3d4)
	binary.LittleEndian.PutUint16(buf[4:], 2)      // major
	binary.LittleEndian.PutUint16(buf[6:], 4)      // minor
	binary.LittleEndian.PutUint32(buf[16:], 65535) // snaplen
	binary.LittleEndian.PutUint32(buf[20:], 1)     // ethernet
	return buf
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"errors": []string{msg}})
}
