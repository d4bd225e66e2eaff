package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/peersync/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog/log"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("peer-a", "GET", "/health", 200, 12*time.Millisecond)
	RecordMessageSent("peer-a", "set_host")
	RecordMessageReceived("peer-a", "spawn_object")
	RecordMessageDropped("peer-a", "in", "malformed")
	RecordObjects("peer-a", 2, 1)
	RecordConnected("peer-a", true)
	RecordTick("peer-a", 300*time.Microsecond)

	if got := testutil.ToFloat64(objects.WithLabelValues("peer-a", "authoritative")); got != 2 {
		t.Fatalf("authoritative gauge=%v", got)
	}
	if got := testutil.ToFloat64(connected.WithLabelValues("peer-a")); got != 1 {
		t.Fatalf("connected gauge=%v", got)
	}
}

func TestMessageCountersIncrement(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(messagesSent.WithLabelValues("peer-b", "send_movement"))
	RecordMessageSent("peer-b", "send_movement")
	RecordMessageSent("peer-b", "send_movement")
	after := testutil.ToFloat64(messagesSent.WithLabelValues("peer-b", "send_movement"))
	if after-before != 2 {
		t.Fatalf("delta=%v", after-before)
	}
}

func TestPrimeMessageKindsCreatesZeroSeries(t *testing.T) {
	testlog.Start(t)
	beforeSent := testutil.CollectAndCount(messagesSent)
	beforeRecv := testutil.CollectAndCount(messagesReceived)
	PrimeMessageKinds("peer-d", []string{"send_movement", "send_color"})
	if got := testutil.CollectAndCount(messagesSent) - beforeSent; got != 2 {
		t.Fatalf("sent series delta=%d", got)
	}
	if got := testutil.CollectAndCount(messagesReceived) - beforeRecv; got != 2 {
		t.Fatalf("received series delta=%d", got)
	}
	if got := testutil.ToFloat64(messagesReceived.WithLabelValues("peer-d", "send_color")); got != 0 {
		t.Fatalf("primed series=%v", got)
	}

	PrimeMessageKinds("peer-d", []string{"send_movement"})
	if got := testutil.CollectAndCount(messagesSent) - beforeSent; got != 2 {
		t.Fatalf("repeat prime added series, delta=%d", got)
	}
}

func TestMiddlewareRecordsRoutePath(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(log.Logger), RequestMetricsMiddleware("peer-c"))
	r.GET("/objects/:name", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(httpRequests.WithLabelValues("peer-c", "GET", "/objects/:name", "204"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/objects/NetObj0", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status=%d", w.Code)
	}
	after := testutil.ToFloat64(httpRequests.WithLabelValues("peer-c", "GET", "/objects/:name", "204"))
	if after-before != 1 {
		t.Fatalf("expected templated path to be counted once, delta=%v", after-before)
	}
	if strings.Contains(w.Body.String(), "error") {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
}
