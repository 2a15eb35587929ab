package observability

import (
	"net/http"
	"time"

	"transferchain/go-sdk/internal/apperrors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the SDK counters. Every method is safe on a nil receiver so
// components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Blockchain
	BroadcastsTotal *prometheus.CounterVec
	TxSearchesTotal *prometheus.CounterVec

	// Transport
	RPCCallsTotal   *prometheus.CounterVec
	RPCCallDuration *prometheus.HistogramVec

	// Upload/download pipeline
	FilesTotal        *prometheus.CounterVec
	BytesTotal        *prometheus.CounterVec
	SlotDeletesTotal  *prometheus.CounterVec
	UploadsInFlight   prometheus.Gauge
	OperationDuration *prometheus.HistogramVec

	// Identity
	AddressesGenerated prometheus.Counter
	UsersRestored      *prometheus.CounterVec
}

// NewMetrics registers all collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		BroadcastsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcsdk_broadcasts_total",
			Help: "Transactions broadcast, by type and outcome",
		}, []string{"tx_type", "status"}),
		TxSearchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcsdk_tx_searches_total",
			Help: "Transaction searches against the read node",
		}, []string{"tx_type", "status"}),
		RPCCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcsdk_rpc_calls_total",
			Help: "Transport RPC calls, by method and error category",
		}, []string{"method", "status"}),
		RPCCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tcsdk_rpc_call_duration_seconds",
			Help:    "Transport RPC latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		FilesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcsdk_files_total",
			Help: "Files processed by the orchestrators",
		}, []string{"operation", "status"}),
		BytesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcsdk_bytes_total",
			Help: "Encrypted bytes moved, by direction",
		}, []string{"direction"}),
		SlotDeletesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcsdk_slot_deletes_total",
			Help: "Slot delete RPCs, by path and outcome",
		}, []string{"path", "status"}),
		UploadsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "tcsdk_uploads_in_flight",
			Help: "Per-file upload tasks currently running",
		}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tcsdk_operation_duration_seconds",
			Help:    "Public operation latency",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}, []string{"operation"}),
		AddressesGenerated: f.NewCounter(prometheus.CounterOpts{
			Name: "tcsdk_addresses_generated_total",
			Help: "Addresses derived for new users",
		}),
		UsersRestored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcsdk_users_restored_total",
			Help: "Users rebuilt from blockchain history",
		}, []string{"kind"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Status maps an error to the label value used by every counter.
func Status(err error) string {
	if err == nil {
		return "ok"
	}
	return apperrors.Category(err)
}

func (m *Metrics) ObserveBroadcast(txType string, err error) {
	if m == nil {
		return
	}
	m.BroadcastsTotal.WithLabelValues(txType, Status(err)).Inc()
}

func (m *Metrics) ObserveTxSearch(txType string, err error) {
	if m == nil {
		return
	}
	m.TxSearchesTotal.WithLabelValues(txType, Status(err)).Inc()
}

func (m *Metrics) ObserveRPC(method string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.RPCCallsTotal.WithLabelValues(method, Status(err)).Inc()
	m.RPCCallDuration.WithLabelValues(method).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveFile(operation string, err error) {
	if m == nil {
		return
	}
	m.FilesTotal.WithLabelValues(operation, Status(err)).Inc()
}

func (m *Metrics) AddBytes(direction string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesTotal.WithLabelValues(direction).Add(float64(n))
}

func (m *Metrics) ObserveSlotDelete(path string, err error) {
	if m == nil {
		return
	}
	m.SlotDeletesTotal.WithLabelValues(path, Status(err)).Inc()
}

// UploadStarted increments the in-flight gauge and returns its decrement.
func (m *Metrics) UploadStarted() func() {
	if m == nil {
		return func() {}
	}
	m.UploadsInFlight.Inc()
	return m.UploadsInFlight.Dec
}

func (m *Metrics) ObserveOperation(operation string, started time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func (m *Metrics) AddAddresses(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AddressesGenerated.Add(float64(n))
}

func (m *Metrics) ObserveRestore(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.UsersRestored.WithLabelValues(kind).Add(float64(n))
}
