// Package metrics holds the Prometheus collectors shared by the OCR pipeline
// and the HTTP server.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ocrCallOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocrapi",
			Subsystem: "ocr",
			Name:      "calls_total",
			Help:      "The total number of OCR engine invocations.",
		},
		[]string{"engine", "language", "outcome"},
	)
	ocrCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ocrapi",
			Subsystem: "ocr",
			Name:      "call_duration_seconds",
			Help:      "Time spent inside the OCR engine per invocation.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"engine", "language"},
	)
	engineLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ocrapi",
			Subsystem: "ocr",
			Name:      "engine_load_duration_seconds",
			Help:      "Time spent initializing an OCR engine instance.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"engine", "language", "outcome"},
	)
	engineCacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocrapi",
			Subsystem: "ocr",
			Name:      "engine_cache_lookups_total",
			Help:      "Engine instance cache lookups by result.",
		},
		[]string{"result"},
	)
	detectionOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocrapi",
			Subsystem: "recognition",
			Name:      "detections_total",
			Help:      "Detected languages in auto mode.",
		},
		[]string{"language", "rerun"},
	)
	httpRequestOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ocrapi",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "The total number of HTTP requests by route and status.",
		},
		[]string{"route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ocrapi",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(ocrCallOps)
	prometheus.MustRegister(ocrCallDuration)
	prometheus.MustRegister(engineLoadDuration)
	prometheus.MustRegister(engineCacheOps)
	prometheus.MustRegister(detectionOps)
	prometheus.MustRegister(httpRequestOps)
	prometheus.MustRegister(httpRequestDuration)
}

// RecordOCRCall records one engine invocation.
func RecordOCRCall(engine, language string, ok bool, d time.Duration) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	ocrCallOps.WithLabelValues(engine, language, outcome).Inc()
	ocrCallDuration.WithLabelValues(engine, language).Observe(d.Seconds())
}

// RecordEngineLoad records the initialization of an engine instance.
func RecordEngineLoad(engine, language string, ok bool, d time.Duration) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	engineLoadDuration.WithLabelValues(engine, language, outcome).Observe(d.Seconds())
}

// RecordEngineCache counts a hit or miss on the engine instance cache.
func RecordEngineCache(hit bool) {
	if hit {
		engineCacheOps.WithLabelValues("hit").Inc()
		return
	}
	engineCacheOps.WithLabelValues("miss").Inc()
}

// RecordDetection counts a detected language and whether it caused a second pass.
func RecordDetection(language string, rerun bool) {
	detectionOps.WithLabelValues(language, strconv.FormatBool(rerun)).Inc()
}

// RecordRequest records a finished HTTP request.
func RecordRequest(route string, status int, d time.Duration) {
	httpRequestOps.WithLabelValues(route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}
