package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/strataproc/strata/pkg/stream"
)

// loaderMetrics is the Prometheus implementation of stream.LoaderMetrics.
type loaderMetrics struct {
	tilesRead    prometheus.Counter
	bytesRead    prometheus.Counter
	tilesSkipped *prometheus.CounterVec
	queueDepth   prometheus.Gauge
}

// NewLoaderMetrics creates Prometheus-backed loader instrumentation.
// Returns nil when metrics are disabled.
func NewLoaderMetrics() stream.LoaderMetrics {
	reg := Registry()
	if reg == nil {
		return nil
	}

	return &loaderMetrics{
		tilesRead: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "strata_loader_tiles_read_total",
			Help: "Total tiles read from the input stack",
		}),
		bytesRead: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "strata_loader_bytes_read_total",
			Help: "Total decoded bytes read from the input stack",
		}),
		tilesSkipped: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "strata_loader_tiles_skipped_total",
			Help: "Total tiles skipped by stage",
		}, []string{"stage"}), // "mask", "nodata"
		queueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "strata_loader_queue_depth",
			Help: "Blocks currently queued ahead of the consumer",
		}),
	}
}

func (m *loaderMetrics) TileRead(bytes int) {
	m.tilesRead.Inc()
	m.bytesRead.Add(float64(bytes))
}

func (m *loaderMetrics) TileSkipped(stage string) {
	m.tilesSkipped.WithLabelValues(stage).Inc()
}

func (m *loaderMetrics) QueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// writerMetrics is the Prometheus implementation of stream.WriterMetrics.
type writerMetrics struct {
	blocksWritten prometheus.Counter
	bytesWritten  prometheus.Counter
	queueDepth    prometheus.Gauge
}

// NewWriterMetrics creates Prometheus-backed writer instrumentation.
// Returns nil when metrics are disabled.
func NewWriterMetrics() stream.WriterMetrics {
	reg := Registry()
	if reg == nil {
		return nil
	}

	return &writerMetrics{
		blocksWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "strata_writer_blocks_written_total",
			Help: "Total region writes applied to output rasters",
		}),
		bytesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "strata_writer_bytes_written_total",
			Help: "Total payload bytes written to output rasters",
		}),
		queueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "strata_writer_queue_depth",
			Help: "Writes currently queued behind the consumer",
		}),
	}
}

func (m *writerMetrics) BlockWritten(bytes int) {
	m.blocksWritten.Inc()
	m.bytesWritten.Add(float64(bytes))
}

func (m *writerMetrics) QueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}
