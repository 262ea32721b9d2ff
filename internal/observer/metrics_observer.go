package observer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Page event metadata keys read by the metrics observer
const (
	MetaSource        = "source"
	MetaDecodeVariant = "decode_variant"
	MetaOCRConfidence = "ocr_confidence"
)

// MetricsObserver exports grading events as Prometheus metrics and keeps
// a small in-process summary for the health endpoint.
type MetricsObserver struct {
	batches       *prometheus.CounterVec
	pages         *prometheus.CounterVec
	identified    *prometheus.CounterVec
	ocrConfidence prometheus.Histogram
	batchDuration prometheus.Histogram

	mu               sync.RWMutex
	totalBatches     int64
	failedBatches    int64
	gradedPages      int64
	unresolvedPages  int64
	totalBatchTime   time.Duration
	completedBatches int64
}

// NewMetricsObserver creates the collectors and registers them with reg
func NewMetricsObserver(reg prometheus.Registerer) (*MetricsObserver, error) {
	o := &MetricsObserver{
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scantron_batches_total",
				Help: "Grading batches by outcome",
			},
			[]string{"outcome"},
		),
		pages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scantron_pages_total",
				Help: "Processed pages by outcome",
			},
			[]string{"outcome"},
		),
		identified: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scantron_identified_pages_total",
				Help: "Graded pages by identification source and decode variant",
			},
			[]string{"source", "variant"},
		),
		ocrConfidence: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scantron_ocr_confidence",
				Help:    "Tesseract confidence of name field reads",
				Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
		),
		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scantron_batch_duration_seconds",
				Help:    "Wall time of completed grading batches",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
	}
	for _, c := range []prometheus.Collector{o.batches, o.pages, o.identified, o.ocrConfidence, o.batchDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// OnEvent handles grading events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event GradingEvent) {
	switch event.EventType {
	case BatchStarted:
		o.batches.WithLabelValues("started").Inc()
	case BatchCompleted:
		o.batches.WithLabelValues("completed").Inc()
		o.batchDuration.Observe(event.Duration.Seconds())
	case BatchFailed:
		o.batches.WithLabelValues("failed").Inc()
	case PageGraded:
		o.pages.WithLabelValues("graded").Inc()
		o.identified.WithLabelValues(metaString(event, MetaSource), metaString(event, MetaDecodeVariant)).Inc()
		o.observeOCR(event)
	case PageUnidentified:
		o.pages.WithLabelValues("unidentified").Inc()
		o.observeOCR(event)
	case PageFetchFailed:
		o.pages.WithLabelValues("fetch_failed").Inc()
	case PageResolved:
		o.pages.WithLabelValues("resolved").Inc()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	switch event.EventType {
	case BatchStarted:
		o.totalBatches++
	case BatchCompleted:
		o.completedBatches++
		o.totalBatchTime += event.Duration
	case BatchFailed:
		o.failedBatches++
	case PageGraded:
		o.gradedPages++
	case PageUnidentified:
		o.unresolvedPages++
	}
}

func (o *MetricsObserver) observeOCR(event GradingEvent) {
	if c, ok := event.Metadata[MetaOCRConfidence].(float64); ok {
		o.ocrConfidence.Observe(c)
	}
}

// metaString renders a metadata value as a label, "none" when absent
func metaString(event GradingEvent, key string) string {
	v, ok := event.Metadata[key]
	if !ok || v == nil {
		return "none"
	}
	s := fmt.Sprint(v)
	if s == "" {
		return "none"
	}
	return s
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgBatchTime := time.Duration(0)
	if o.completedBatches > 0 {
		avgBatchTime = o.totalBatchTime / time.Duration(o.completedBatches)
	}

	return map[string]interface{}{
		"total_batches":       o.totalBatches,
		"completed_batches":   o.completedBatches,
		"failed_batches":      o.failedBatches,
		"graded_pages":        o.gradedPages,
		"unidentified_pages":  o.unresolvedPages,
		"avg_batch_time_secs": avgBatchTime.Seconds(),
	}
}
