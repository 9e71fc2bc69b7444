// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TradeExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trade_executions_total", Help: "Trade execution attempts by mode and result"},
		[]string{"mode", "result"},
	)
	ExchangeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "exchange_requests_total", Help: "Exchange REST calls by endpoint and result"},
		[]string{"endpoint", "result"},
	)
	ExchangeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exchange_request_duration_seconds",
			Help:    "Exchange REST call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	AlertsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "alerts_dropped_total", Help: "Notifications dropped because the queue was full"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "API requests by route and status code"},
		[]string{"route", "code"},
	)
)

func init() {
	prometheus.MustRegister(TradeExecutions, ExchangeRequests, ExchangeLatency, AlertsDropped, HTTPRequests)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
