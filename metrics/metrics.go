package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PageCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blogfeed",
		Name:      "page_cache_lookups_total",
		Help:      "Cached page lookups by result (hit, miss, error).",
	}, []string{"result"})

	FeedPages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blogfeed",
		Name:      "feed_pages_total",
		Help:      "Feed pages assembled by scope.",
	}, []string{"scope"})

	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blogfeed",
		Name:      "post_events_total",
		Help:      "Post events published by type and outcome.",
	}, []string{"type", "outcome"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
