// Package telemetry provides query clients for the lab's observability
// backends: Prometheus for metrics and Loki for logs.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"
)

// PromResult is a query result plus any warnings the server attached.
type PromResult struct {
	ResultType string      `json:"result_type"`
	Result     model.Value `json:"result"`
	Warnings   []string    `json:"warnings,omitempty"`
}

// PrometheusClient runs instant and range queries against one
// Prometheus server.
type PrometheusClient struct {
	api promv1.API
	url string
	log *zap.Logger
}

// NewPrometheusClient builds a client for the given server URL.
func NewPrometheusClient(url string) (*PrometheusClient, error) {
	c, err := api.NewClient(api.Config{Address: url})
	if err != nil {
		return nil, fmt.Errorf("building prometheus client for %s: %w", url, err)
	}
	return &PrometheusClient{
		api: promv1.NewAPI(c),
		url: url,
		log: zap.L().Named("prometheus"),
	}, nil
}

// URL returns the server address this client queries.
func (c *PrometheusClient) URL() string { return c.url }

// Query runs an instant PromQL query at ts. A zero ts means now.
func (c *PrometheusClient) Query(ctx context.Context, query string, ts time.Time) (*PromResult, error) {
	if ts.IsZero() {
		ts = time.Now()
	}
	value, warnings, err := c.api.Query(ctx, query, ts)
	if err != nil {
		return nil, fmt.Errorf("prometheus query %q: %w", query, err)
	}
	c.log.Debug("instant query complete",
		zap.String("query", query),
		zap.String("type", value.Type().String()),
		zap.Int("warnings", len(warnings)))
	return &PromResult{
		ResultType: value.Type().String(),
		Result:     value,
		Warnings:   warnings,
	}, nil
}

// QueryRange runs a PromQL query over [start, end] with the given step.
func (c *PrometheusClient) QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) (*PromResult, error) {
	if step <= 0 {
		return nil, fmt.Errorf("range query step must be positive, got %s", step)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("range query end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	value, warnings, err := c.api.QueryRange(ctx, query, promv1.Range{
		Start: start,
		End:   end,
		Step:  step,
	})
	if err != nil {
		return nil, fmt.Errorf("prometheus range query %q: %w", query, err)
	}
	c.log.Debug("range query complete",
		zap.String("query", query),
		zap.Duration("span", end.Sub(start)),
		zap.Duration("step", step))
	return &PromResult{
		ResultType: value.Type().String(),
		Result:     value,
		Warnings:   warnings,
	}, nil
}
