package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metric descriptors for the server.
type Metrics struct {
	app       *App
	startTime time.Time

	playersConnected prometheus.Gauge
	connectionsTotal prometheus.Counter
	commandsTotal    *prometheus.CounterVec
	commandErrors    prometheus.Counter
	commandSeconds   prometheus.Histogram
	scriptTicks      prometheus.Histogram
	queueDepth       prometheus.Gauge
	uptimeSeconds    prometheus.Gauge
	memoryHeapBytes  prometheus.Gauge
	goroutines       prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics for the app.
func NewMetrics(app *App, startTime time.Time) *Metrics {
	m := &Metrics{
		app:       app,
		startTime: startTime,
		playersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "goweave_players_connected",
			Help: "Number of currently connected players.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goweave_connections_total",
			Help: "Total connections since server start.",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goweave_commands_processed_total",
			Help: "Total commands processed, by command name.",
		}, []string{"cmd"}),
		commandErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goweave_command_errors_total",
			Help: "Total commands that failed with an error.",
		}),
		commandSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "goweave_command_seconds",
			Help:    "Wall time spent executing one command.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		scriptTicks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "goweave_script_ticks",
			Help:    "Evaluator ticks consumed by one command.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "goweave_queue_depth",
			Help: "Commands waiting in the dispatch queue.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "goweave_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "goweave_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "goweave_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	prometheus.MustRegister(
		m.playersConnected,
		m.connectionsTotal,
		m.commandsTotal,
		m.commandErrors,
		m.commandSeconds,
		m.scriptTicks,
		m.queueDepth,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
	)
	return m
}

// Update refreshes the gauge metrics from current server state.
func (m *Metrics) Update() {
	m.playersConnected.Set(float64(m.app.conns.Count()))
	m.queueDepth.Set(float64(len(m.app.queue)))
	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns an http.Handler that updates gauges before serving.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		promhttp.Handler().ServeHTTP(w, r)
	})
}

// noteCommand records one processed command.
func (m *Metrics) noteCommand(cmd string, dur time.Duration, ticks int, failed bool) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(cmd).Inc()
	m.commandSeconds.Observe(dur.Seconds())
	m.scriptTicks.Observe(float64(ticks))
	if failed {
		m.commandErrors.Inc()
	}
}
