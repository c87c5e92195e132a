package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultLogLimit bounds how many log lines a query returns when the
// caller does not say.
const DefaultLogLimit = 100

// LogEntry is one log line with its ingestion timestamp.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Line      string    `json:"line"`
}

// LogStream is a labeled set of log entries.
type LogStream struct {
	Labels  map[string]string `json:"labels"`
	Entries []LogEntry        `json:"entries"`
}

// LokiResult holds a parsed log query result. For metric-style LogQL
// results the streams are empty and Raw carries the untouched payload.
type LokiResult struct {
	ResultType string          `json:"result_type"`
	Streams    []LogStream     `json:"streams,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// LokiClient queries one Loki server over its HTTP API.
type LokiClient struct {
	url  string
	http *http.Client
	log  *zap.Logger
}

// NewLokiClient builds a client for the given server URL.
func NewLokiClient(serverURL string) *LokiClient {
	return &LokiClient{
		url:  strings.TrimRight(serverURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
		log:  zap.L().Named("loki"),
	}
}

// URL returns the server address this client queries.
func (c *LokiClient) URL() string { return c.url }

// Query runs an instant LogQL query at ts. A zero ts means now.
func (c *LokiClient) Query(ctx context.Context, query string, ts time.Time, limit int) (*LokiResult, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(normalizeLimit(limit)))
	if !ts.IsZero() {
		params.Set("time", strconv.FormatInt(ts.UnixNano(), 10))
	}
	return c.get(ctx, "/loki/api/v1/query", params)
}

// QueryRange runs a LogQL query over [start, end]. Direction is
// "forward" or "backward"; empty means backward, newest first.
func (c *LokiClient) QueryRange(ctx context.Context, query string, start, end time.Time, limit int, direction string) (*LokiResult, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("range query end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	if direction == "" {
		direction = "backward"
	}
	if direction != "forward" && direction != "backward" {
		return nil, fmt.Errorf("direction must be forward or backward, got %q", direction)
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("start", strconv.FormatInt(start.UnixNano(), 10))
	params.Set("end", strconv.FormatInt(end.UnixNano(), 10))
	params.Set("limit", strconv.Itoa(normalizeLimit(limit)))
	params.Set("direction", direction)
	return c.get(ctx, "/loki/api/v1/query_range", params)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLogLimit
	}
	return limit
}

type lokiEnvelope struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string          `json:"resultType"`
		Result     json.RawMessage `json:"result"`
	} `json:"data"`
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

func (c *LokiClient) get(ctx context.Context, path string, params url.Values) (*LokiResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying loki at %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading loki response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("loki returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope lokiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding loki response: %w", err)
	}
	if envelope.Status != "success" {
		return nil, fmt.Errorf("loki query failed with status %q", envelope.Status)
	}

	result := &LokiResult{ResultType: envelope.Data.ResultType}
	if envelope.Data.ResultType != "streams" {
		result.Raw = envelope.Data.Result
		return result, nil
	}

	var streams []lokiStream
	if err := json.Unmarshal(envelope.Data.Result, &streams); err != nil {
		return nil, fmt.Errorf("decoding loki streams: %w", err)
	}
	for _, s := range streams {
		stream := LogStream{Labels: s.Stream}
		for _, v := range s.Values {
			nanos, err := strconv.ParseInt(v[0], 10, 64)
			if err != nil {
				c.log.Warn("skipping entry with bad timestamp", zap.String("ts", v[0]))
				continue
			}
			stream.Entries = append(stream.Entries, LogEntry{
				Timestamp: time.Unix(0, nanos).UTC(),
				Line:      v[1],
			})
		}
		result.Streams = append(result.Streams, stream)
	}
	return result, nil
}

// FormatLines flattens all streams into "timestamp {labels} line" text,
// sorted by time, the shape operators expect when reading lab logs.
func (r *LokiResult) FormatLines() []string {
	type flat struct {
		ts     time.Time
		labels string
		line   string
	}
	var entries []flat
	for _, s := range r.Streams {
		labels := formatLabels(s.Labels)
		for _, e := range s.Entries {
			entries = append(entries, flat{ts: e.Timestamp, labels: labels, line: e.Line})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ts.Before(entries[j].ts) })

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s %s %s", e.ts.Format(time.RFC3339Nano), e.labels, e.line))
	}
	return lines
}

func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}
