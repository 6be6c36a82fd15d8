package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the streaming pipeline
type Metrics struct {
	ticksTotal        prometheus.Counter
	ticksSkipped      prometheus.Counter
	framesSentTotal   prometheus.Counter
	framesDropped     *prometheus.CounterVec
	connectedClients  prometheus.Gauge
	blocksPushedTotal prometheus.Counter
	samplesPushed     prometheus.Counter
	extractDuration   prometheus.Histogram
	boardSynthetic    prometheus.Gauge
}

// NewMetrics registers all collectors with the default registry
func NewMetrics() *Metrics {
	return &Metrics{
		ticksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "eeg_broadcast_ticks_total",
			Help: "Total broadcast scheduler ticks",
		}),
		ticksSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "eeg_broadcast_ticks_skipped_total",
			Help: "Ticks skipped due to extraction or serialization failure",
		}),
		framesSentTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "eeg_frames_sent_total",
			Help: "Feature frames queued to clients",
		}),
		framesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "eeg_frames_dropped_total",
			Help: "Feature frames not delivered, by reason",
		}, []string{"reason"}),
		connectedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "eeg_connected_clients",
			Help: "Currently connected websocket clients",
		}),
		blocksPushedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "eeg_sample_blocks_total",
			Help: "Sample blocks pushed into the ring buffer",
		}),
		samplesPushed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "eeg_samples_total",
			Help: "Samples per channel pushed into the ring buffer",
		}),
		extractDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "eeg_extract_duration_seconds",
			Help:    "Time spent per tick on feature extraction and serialization",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		boardSynthetic: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "eeg_board_synthetic",
			Help: "1 when the synthetic board is active, 0 for live hardware",
		}),
	}
}

func (m *Metrics) IncTicks()        { m.ticksTotal.Inc() }
func (m *Metrics) IncTicksSkipped() { m.ticksSkipped.Inc() }
func (m *Metrics) IncFramesSent()   { m.framesSentTotal.Inc() }

func (m *Metrics) IncFramesDropped(reason string) {
	m.framesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetConnectedClients(n int) {
	m.connectedClients.Set(float64(n))
}

func (m *Metrics) AddSampleBlock(samplesPerChannel int) {
	m.blocksPushedTotal.Inc()
	m.samplesPushed.Add(float64(samplesPerChannel))
}

func (m *Metrics) ObserveExtractDuration(d time.Duration) {
	m.extractDuration.Observe(d.Seconds())
}

func (m *Metrics) SetBoardSynthetic(synthetic bool) {
	if synthetic {
		m.boardSynthetic.Set(1)
	} else {
		m.boardSynthetic.Set(0)
	}
}
