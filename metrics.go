package reactor

import "github.com/prometheus/client_golang/prometheus"

// Metrics is a Prometheus-backed instrumentation bundle shared by every
// EventLoop and TcpServer it's attached to via WithLoopMetrics/
// WithServerMetrics. A nil *Metrics is valid everywhere it's accepted and
// disables instrumentation entirely.
type Metrics struct {
	loopIterations   prometheus.Counter
	loopActiveEvents prometheus.Histogram

	connectionsOpened prometheus.Counter
	connectionsClosed prometheus.Counter
	connectionsActive prometheus.Gauge

	bytesRead    prometheus.Counter
	bytesWritten prometheus.Counter

	highWaterHits prometheus.Counter
	timersFired   prometheus.Counter
}

// NewMetrics builds a Metrics bundle and registers its collectors against
// reg. Pass prometheus.DefaultRegisterer to publish on the default /metrics
// handler, or a scoped *prometheus.Registry in tests.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		loopIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "loop_iterations_total",
			Help: "Number of EventLoop.Run poll/dispatch iterations.",
		}),
		loopActiveEvents: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "loop_active_channels",
			Help:    "Number of Channels reported ready per poll iteration.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		connectionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_opened_total",
			Help: "Total TcpConnections accepted or established.",
		}),
		connectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_closed_total",
			Help: "Total TcpConnections that reached Disconnected.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections_active",
			Help: "TcpConnections currently in Connected or Disconnecting state.",
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_read_total",
			Help: "Total bytes read from peer sockets.",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_written_total",
			Help: "Total bytes written to peer sockets.",
		}),
		highWaterHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "high_water_mark_hits_total",
			Help: "Times a TcpConnection's output buffer crossed its high-water mark.",
		}),
		timersFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "timers_fired_total",
			Help: "Total timer callbacks invoked by any TimerQueue.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.loopIterations, m.loopActiveEvents,
			m.connectionsOpened, m.connectionsClosed, m.connectionsActive,
			m.bytesRead, m.bytesWritten,
			m.highWaterHits, m.timersFired,
		)
	}
	return m
}

func (m *Metrics) observeLoopIteration(activeChannels int) {
	if m == nil {
		return
	}
	m.loopIterations.Inc()
	m.loopActiveEvents.Observe(float64(activeChannels))
}

func (m *Metrics) connectionOpened() {
	if m == nil {
		return
	}
	m.connectionsOpened.Inc()
	m.connectionsActive.Inc()
}

func (m *Metrics) connectionClosed() {
	if m == nil {
		return
	}
	m.connectionsClosed.Inc()
	m.connectionsActive.Dec()
}

func (m *Metrics) addBytesRead(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesRead.Add(float64(n))
}

func (m *Metrics) addBytesWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesWritten.Add(float64(n))
}

func (m *Metrics) highWaterMarkHit() {
	if m == nil {
		return
	}
	m.highWaterHits.Inc()
}

func (m *Metrics) timerFired() {
	if m == nil {
		return
	}
	m.timersFired.Inc()
}
