package observability

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hotelproxy", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hotelproxy", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hotelproxy", Name: "external_requests_total", Help: "Outbound requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hotelproxy", Name: "external_request_duration_seconds",
			Help:    "Outbound request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hotelproxy", Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del|flush
	)
	CardInfoHotels = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hotelproxy", Name: "cardinfo_hotels_total", Help: "Card info lookups by outcome."},
		[]string{"outcome"}, // cached|fetched|missing
	)
	CardInfoBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hotelproxy", Name: "cardinfo_batches_total", Help: "Card info oracle batches."},
		[]string{"result", "error"}, // ok|error, error: LabelErr
	)
	CacheWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hotelproxy", Name: "cache_writes_total", Help: "Background cache writes."},
		[]string{"event"}, // queued|written|failed|dropped
	)
	SearchPages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "hotelproxy", Name: "search_pages_total", Help: "Search session pages."},
		[]string{"result"}, // ok|error|stale|rejected
	)
)

// Serve exposes h (the default registry when nil) on a separate listener.
func Serve(addr string, h http.Handler) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return // disabled
	}
	if h == nil {
		h = promhttp.Handler()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		HTTPRequests, HTTPLatency, ExternalRequests, ExternalLatency, CacheEvents,
		CardInfoHotels, CardInfoBatches, CacheWrites, SearchPages,
	)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) {
	CacheEvents.WithLabelValues(cache, event).Inc()
}

func ObserveCardInfo(cached, fetched, missing int) {
	CardInfoHotels.WithLabelValues("cached").Add(float64(cached))
	CardInfoHotels.WithLabelValues("fetched").Add(float64(fetched))
	CardInfoHotels.WithLabelValues("missing").Add(float64(missing))
}

func ObserveCardInfoBatch(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	CardInfoBatches.WithLabelValues(result, LabelErr(err)).Inc()
}

func ObserveCacheWrite(event string) {
	CacheWrites.WithLabelValues(event).Inc()
}

func ObserveSearchPage(result string) {
	SearchPages.WithLabelValues(result).Inc()
}

// LabelErr names the innermost type of err so wrapped errors of the same kind
// share one series.
func LabelErr(err error) string {
	if err == nil {
		return "none"
	}
	for {
		inner := errors.Unwrap(err)
		if inner == nil {
			return fmt.Sprintf("%T", err)
		}
		err = inner
	}
}
