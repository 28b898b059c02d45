package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"weave/exception"
	"weave/logx"
	"weave/metrics"
)

var nodeUpUnixSeconds = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "weave_node_up_timestamp_unix_seconds",
		Help: "Unix timestamp of node start",
	},
)

// InitMetrics registers the engine metrics with the default registry. Call
// once at node startup.
func InitMetrics() error {
	if err := metrics.Register(nil); err != nil {
		return err
	}
	if err := prometheus.Register(nodeUpUnixSeconds); err != nil {
		return err
	}
	nodeUpUnixSeconds.SetToCurrentTime()
	return nil
}

func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("MONITORING", "Registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

// StartMetricsServer exposes /metrics on addr in the background.
func StartMetricsServer(addr string) {
	mux := http.NewServeMux()
	RegisterMetrics(mux)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	exception.SafeGo("metrics-server", func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Error("MONITORING", "Metrics server stopped: ", err)
		}
	})
	logx.Info("MONITORING", "Metrics server listening on ", addr)
}
