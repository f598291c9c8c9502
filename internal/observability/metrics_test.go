package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	m := GetMetrics()

	if m.APIRequests == nil {
		t.Error("APIRequests metric not initialized")
	}
	if m.ProcessingPolls == nil {
		t.Error("ProcessingPolls metric not initialized")
	}

	before := testutil.ToFloat64(m.ProcessingPolls)
	m.ProcessingPolls.Inc()
	if got := testutil.ToFloat64(m.ProcessingPolls); got != before+1 {
		t.Errorf("expected ProcessingPolls to be %f, got %f", before+1, got)
	}

	m.ProjectVulnerabilities.WithLabelValues("critical").Set(4)
	if got := testutil.ToFloat64(m.ProjectVulnerabilities.WithLabelValues("critical")); got != 4 {
		t.Errorf("expected critical gauge to be 4, got %f", got)
	}
}

func TestMetricsSingleton(t *testing.T) {
	m1 := GetMetrics()
	m2 := GetMetrics()

	if m1 != m2 {
		t.Error("GetMetrics should return the same instance")
	}
}

func newTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dtrack_upload_test_total",
		Help: "test counter",
	})
	counter.Add(3)
	reg.MustRegister(counter)
	return reg
}

func TestExport_Textfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dtrack.prom")

	err := Export(context.Background(), ExportConfig{TextfilePath: path}, newTestRegistry(t), nil)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read textfile: %v", err)
	}
	if !strings.Contains(string(data), "dtrack_upload_test_total 3") {
		t.Errorf("textfile missing metric: %s", data)
	}
}

func TestExport_Pushgateway(t *testing.T) {
	var gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := ExportConfig{
		PushgatewayURL: server.URL,
		Job:            "ci",
		Grouping:       map[string]string{"project": "app", "empty": ""},
	}
	if err := Export(context.Background(), cfg, newTestRegistry(t), nil); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	if gotPath != "/metrics/job/ci/project/app" {
		t.Errorf("unexpected push path %q", gotPath)
	}
	if gotBody == "" {
		t.Error("expected a non-empty push body")
	}
}

func TestExport_PushgatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := Export(context.Background(), ExportConfig{PushgatewayURL: server.URL}, newTestRegistry(t), nil)
	if err == nil {
		t.Fatal("expected push error, got nil")
	}
}

func TestExport_NothingConfigured(t *testing.T) {
	if err := Export(context.Background(), ExportConfig{}, nil, nil); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}
