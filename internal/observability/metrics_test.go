package observability

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"transferchain/go-sdk/internal/apperrors"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndHandler(t *testing.T) {
	m := NewMetrics()
	m.ObserveBroadcast("transfer", nil)
	m.ObserveBroadcast("transfer", apperrors.Transport("broadcast", errors.New("boom")))
	m.AddBytes("upload", 10)
	m.AddAddresses(251)
	done := m.UploadStarted()
	if got := testutil.ToFloat64(m.UploadsInFlight); got != 1 {
		t.Fatalf("unexpected in-flight: %v", got)
	}
	done()

	if got := testutil.ToFloat64(m.BroadcastsTotal.WithLabelValues("transfer", "transport")); got != 1 {
		t.Fatalf("unexpected transport failures: %v", got)
	}
	if got := testutil.ToFloat64(m.AddressesGenerated); got != 251 {
		t.Fatalf("unexpected addresses: %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "tcsdk_broadcasts_total") {
		t.Fatalf("metrics output missing counter: %s", body)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveBroadcast("x", nil)
	m.ObserveFile("upload", errors.New("x"))
	m.UploadStarted()()
	if m.Registry() != nil {
		t.Fatal("nil metrics has no registry")
	}
}

func TestStatus(t *testing.T) {
	if Status(nil) != "ok" {
		t.Fatal("nil error must be ok")
	}
	if Status(apperrors.ErrIntegrity) != apperrors.CategoryCrypto {
		t.Fatal("integrity error must be crypto")
	}
}
