package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/query", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "up", r.Form.Get("query"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "success",
			"data": {
				"resultType": "vector",
				"result": [
					{"metric": {"__name__": "up", "job": "otg"}, "value": [1724577600, "1"]}
				]
			}
		}`))
	}))
	defer srv.Close()

	client, err := NewPrometheusClient(srv.URL)
	require.NoError(t, err)

	result, err := client.Query(context.Background(), "up", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "vector", result.ResultType)
	assert.Contains(t, result.Result.String(), "up")
}

func TestPrometheusQueryRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/query_range", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "rate(frames_tx[1m])", r.Form.Get("query"))
		assert.NotEmpty(t, r.Form.Get("start"))
		assert.NotEmpty(t, r.Form.Get("step"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "success",
			"data": {
				"resultType": "matrix",
				"result": [
					{"metric": {"flow": "f1"}, "values": [[1724577600, "100"], [1724577615, "101"]]}
				]
			}
		}`))
	}))
	defer srv.Close()

	client, err := NewPrometheusClient(srv.URL)
	require.NoError(t, err)

	end := time.Now()
	result, err := client.QueryRange(context.Background(), "rate(frames_tx[1m])", end.Add(-time.Hour), end, 15*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "matrix", result.ResultType)
}

func TestPrometheusQueryRangeValidation(t *testing.T) {
	client, err := NewPrometheusClient("http://localhost:9090")
	require.NoError(t, err)

	now := time.Now()
	_, err = client.QueryRange(context.Background(), "up", now, now.Add(-time.Hour), 15*time.Second)
	assert.Error(t, err)

	_, err = client.QueryRange(context.Background(), "up", now.Add(-time.Hour), now, 0)
	assert.Error(t, err)
}

func TestLokiQueryRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/loki/api/v1/query_range", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, `{app="otg"}`, q.Get("query"))
		assert.Equal(t, "backward", q.Get("direction"))
		assert.Equal(t, "100", q.Get("limit"))
		w.Write([]byte(`{
			"status": "success",
			"data": {
				"resultType": "streams",
				"result": [
					{
						"stream": {"app": "otg", "level": "info"},
						"values": [
							["1724577600000000000", "traffic started"],
							["1724577601000000000", "traffic stopped"]
						]
					}
				]
			}
		}`))
	}))
	defer srv.Close()

	client := NewLokiClient(srv.URL)
	end := time.Now()
	result, err := client.QueryRange(context.Background(), `{app="otg"}`, end.Add(-time.Hour), end, 0, "")
	require.NoError(t, err)

	require.Len(t, result.Streams, 1)
	require.Len(t, result.Streams[0].Entries, 2)
	assert.Equal(t, "traffic started", result.Streams[0].Entries[0].Line)
	assert.Equal(t, time.Unix(1724577600, 0).UTC(), result.Streams[0].Entries[0].Timestamp)

	lines := result.FormatLines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "traffic started")
	assert.Contains(t, lines[0], `app="otg"`)
}

func TestLokiInstantQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/loki/api/v1/query", r.URL.Path)
		w.Write([]byte(`{
			"status": "success",
			"data": {
				"resultType": "vector",
				"result": [{"metric": {}, "value": [1724577600, "42"]}]
			}
		}`))
	}))
	defer srv.Close()

	client := NewLokiClient(srv.URL)
	result, err := client.Query(context.Background(), `count_over_time({app="otg"}[5m])`, time.Time{}, 50)
	require.NoError(t, err)
	assert.Equal(t, "vector", result.ResultType)
	assert.Empty(t, result.Streams)
	assert.NotEmpty(t, result.Raw)
}

func TestLokiErrors(t *testing.T) {
	t.Run("http error surfaces body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "parse error: unexpected end of input", http.StatusBadRequest)
		}))
		defer srv.Close()

		client := NewLokiClient(srv.URL)
		_, err := client.Query(context.Background(), "{bad", time.Time{}, 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse error")
	})

	t.Run("invalid direction rejected", func(t *testing.T) {
		client := NewLokiClient("http://localhost:3100")
		end := time.Now()
		_, err := client.QueryRange(context.Background(), "{}", end.Add(-time.Hour), end, 0, "sideways")
		assert.Error(t, err)
	})

	t.Run("inverted range rejected", func(t *testing.T) {
		client := NewLokiClient("http://localhost:3100")
		now := time.Now()
		_, err := client.QueryRange(context.Background(), "{}", now, now.Add(-time.Hour), 0, "")
		assert.Error(t, err)
	})
}
