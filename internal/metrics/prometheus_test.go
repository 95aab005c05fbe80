package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounters(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordPipeline("trades", 3, 20*time.Millisecond)
	r.RecordPipeline("trades", 2, 10*time.Millisecond)
	r.RecordNotification(true)
	r.RecordNotification(false)
	r.RecordNotification(false)
	r.RecordQuoteError("AAPL")

	if got := testutil.ToFloat64(r.pipelineRuns.WithLabelValues("trades")); got != 2 {
		t.Fatalf("pipeline runs 期望 2, 实际 %v", got)
	}
	if got := testutil.ToFloat64(r.matched.WithLabelValues("trades")); got != 5 {
		t.Fatalf("matched 期望 5, 实际 %v", got)
	}
	if got := testutil.ToFloat64(r.notifications.WithLabelValues("failed")); got != 2 {
		t.Fatalf("failed notifications 期望 2, 实际 %v", got)
	}
	if got := testutil.ToFloat64(r.quoteErrors.WithLabelValues("AAPL")); got != 1 {
		t.Fatalf("quote errors 期望 1, 实际 %v", got)
	}
}

func TestRecorderHandler(t *testing.T) {
	r := New(nil)
	r.RecordPipeline("news", 1, time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `tjournal_pipeline_runs_total{scope="news"} 1`) {
		t.Fatalf("输出缺少 pipeline 指标:\n%s", body)
	}
}
