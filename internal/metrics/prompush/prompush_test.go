package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"warehouse/internal/metrics"
)

// readCounterValue reads the current value of a Counter for assertions.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	if m.GetCounter() == nil {
		t.Fatalf("metric did not contain Counter value")
	}
	return m.GetCounter().GetValue()
}

// readSummaryCountSum reads sample count and sum from a SummaryVec.
func readSummaryCountSum(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()

	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	if !ok {
		t.Fatalf("SummaryVec.WithLabelValues(...) does not implement prometheus.Metric")
	}
	if err := metric.Write(m); err != nil {
		t.Fatalf("Summary.Write() error = %v", err)
	}
	if m.GetSummary() == nil {
		t.Fatalf("metric did not contain Summary value")
	}
	sum := m.GetSummary()
	return sum.GetSampleCount(), sum.GetSampleSum()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		jobName     string
		gatewayURL  string
		wantErr     bool
		wantJobName string
	}{
		{
			name:       "missing gateway URL returns error",
			jobName:    "warehouse-load",
			gatewayURL: "",
			wantErr:    true,
		},
		{
			name:        "empty job name uses default",
			jobName:     "",
			gatewayURL:  "http://pushgateway:9091",
			wantJobName: "warehouse",
		},
		{
			name:        "explicit job name is preserved",
			jobName:     "nightly-load",
			gatewayURL:  "http://pushgateway:9091",
			wantJobName: "nightly-load",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := NewBackend(tt.jobName, tt.gatewayURL)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewBackend(%q, %q) error = nil, want non-nil", tt.jobName, tt.gatewayURL)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBackend(%q, %q) error = %v", tt.jobName, tt.gatewayURL, err)
			}
			if b.jobName != tt.wantJobName {
				t.Fatalf("backend.jobName = %q, want %q", b.jobName, tt.wantJobName)
			}
			if b.gatewayURL != tt.gatewayURL {
				t.Fatalf("backend.gatewayURL = %q, want %q", b.gatewayURL, tt.gatewayURL)
			}

			// Label cardinality sanity: these must not panic.
			b.stageCounter.WithLabelValues("load_facts", "success").Add(1)
			b.stageDuration.WithLabelValues("transform", "failure").Observe(0.5)
			b.rowCounter.WithLabelValues("extracted").Add(1)
		})
	}
}

func TestIncCounter(t *testing.T) {
	t.Parallel()

	t.Run("routes stage counter", func(t *testing.T) {
		t.Parallel()
		b, err := NewBackend("warehouse", "http://example.com")
		if err != nil {
			t.Fatalf("NewBackend() error = %v", err)
		}

		b.IncCounter("warehouse_stage_total", 3, metrics.Labels{"stage": "extract", "status": "success"})

		if got := readCounterValue(t, b.stageCounter.WithLabelValues("extract", "success")); got != 3 {
			t.Fatalf("stageCounter value = %v, want 3", got)
		}
	})

	t.Run("routes row counter", func(t *testing.T) {
		t.Parallel()
		b, err := NewBackend("warehouse", "http://example.com")
		if err != nil {
			t.Fatalf("NewBackend() error = %v", err)
		}

		b.IncCounter("warehouse_rows_total", 5, metrics.Labels{"kind": "cleaned"})

		if got := readCounterValue(t, b.rowCounter.WithLabelValues("cleaned")); got != 5 {
			t.Fatalf("rowCounter value = %v, want 5", got)
		}
	})

	t.Run("ignores unknown metric name", func(t *testing.T) {
		t.Parallel()
		b, err := NewBackend("warehouse", "http://example.com")
		if err != nil {
			t.Fatalf("NewBackend() error = %v", err)
		}

		b.IncCounter("unknown_metric", 10, metrics.Labels{"foo": "bar"})

		if got := readCounterValue(t, b.stageCounter.WithLabelValues("x", "y")); got != 0 {
			t.Fatalf("stageCounter value = %v, want 0 (unchanged)", got)
		}
	})
}

func TestObserveHistogram(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		metricName string
		value      float64
		wantCount  uint64
		wantSum    float64
	}{
		{
			name:       "records stage duration",
			metricName: "warehouse_stage_duration_seconds",
			value:      1.5,
			wantCount:  1,
			wantSum:    1.5,
		},
		{
			name:       "ignores unknown metric name",
			metricName: "other_metric",
			value:      2.0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := NewBackend("warehouse", "http://example.com")
			if err != nil {
				t.Fatalf("NewBackend() error = %v", err)
			}

			b.ObserveHistogram(tt.metricName, tt.value, metrics.Labels{"stage": "load_facts", "status": "success"})

			gotCount, gotSum := readSummaryCountSum(t, b.stageDuration, "load_facts", "success")
			if gotCount != tt.wantCount {
				t.Fatalf("summary sample count = %d, want %d", gotCount, tt.wantCount)
			}
			if gotSum != tt.wantSum {
				t.Fatalf("summary sample sum = %v, want %v", gotSum, tt.wantSum)
			}
		})
	}
}

// TestFlush verifies that Flush pushes the registry to the configured
// Pushgateway URL.
func TestFlush(t *testing.T) {
	t.Parallel()

	type pushRequestInfo struct {
		method  string
		path    string
		bodyLen int
	}

	reqCh := make(chan pushRequestInfo, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		reqCh <- pushRequestInfo{method: r.Method, path: r.URL.Path, bodyLen: len(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("warehouse-load", server.URL)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	b.IncCounter("warehouse_stage_total", 1, metrics.Labels{"stage": "extract", "status": "success"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var got pushRequestInfo
	select {
	case got = <-reqCh:
	default:
		t.Fatalf("Flush() did not send any HTTP request to the Pushgateway")
	}

	if got.method == "" || got.path == "" {
		t.Fatalf("push request missing method or path: %+v", got)
	}
	if got.bodyLen == 0 {
		t.Fatalf("push request body length = 0, want > 0")
	}
}

func BenchmarkIncCounterStage(b *testing.B) {
	backend, err := NewBackend("warehouse", "http://example.com")
	if err != nil {
		b.Fatalf("NewBackend() error = %v", err)
	}

	labels := metrics.Labels{"stage": "extract", "status": "success"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		backend.IncCounter("warehouse_stage_total", 1, labels)
	}
}
