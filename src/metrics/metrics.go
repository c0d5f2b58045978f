package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sentinel_ticks_ingested_total", Help: "Ticks persisted, by symbol and ingestion source"},
		[]string{"symbol", "source"},
	)
	SignalsFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sentinel_signals_fired_total", Help: "Signals produced by the detector"},
		[]string{"kind"},
	)
	ChannelFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sentinel_channel_failures_total", Help: "Alert channel delivery failures"},
		[]string{"channel"},
	)
	StoreErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sentinel_store_errors_total", Help: "Ticks that failed to persist"},
	)
	FetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sentinel_fetch_errors_total", Help: "Polling fetch failures"},
		[]string{"symbol"},
	)
	ParseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sentinel_parse_errors_total", Help: "Inbound events or responses that could not be decoded"},
		[]string{"source"},
	)
	StreamReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sentinel_stream_reconnects_total", Help: "Stream reconnect attempts"},
	)
)

func init() {
	prometheus.MustRegister(TicksIngested, SignalsFired, ChannelFailures, StoreErrors, FetchErrors, ParseErrors, StreamReconnects)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
