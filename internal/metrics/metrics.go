// Package metrics exposes broker-level Prometheus collectors: queue depth,
// pending-ack size, publish/ack counters and consumer counts. It is a trimmed
// descendant of the teacher's prometheus.Operator: the gRPC interceptor and
// client-side collector surface was dropped since this broker has no gRPC
// server, keeping only the registry + HTTP handler + custom collectors.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	lib "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	xlog "go.bryk.io/hive/log"
)

// Registry groups the broker's metric collectors and exposes them over HTTP.
type Registry struct {
	reg *lib.Registry

	PublishTotal   *lib.CounterVec
	AckTotal       *lib.CounterVec
	DeliveryTotal  *lib.CounterVec
	QueueReady     *lib.GaugeVec
	QueuePending   *lib.GaugeVec
	ConsumerCount  *lib.GaugeVec
	CompactionRuns *lib.CounterVec
}

// NewRegistry returns a ready-to-use metrics registry. Host and runtime
// metrics are collected by default, mirroring the teacher's operator.init().
func NewRegistry() (*Registry, error) {
	r := &Registry{
		reg: lib.NewRegistry(),
		PublishTotal: lib.NewCounterVec(lib.CounterOpts{
			Namespace: "hive",
			Name:      "publish_total",
			Help:      "Total number of messages accepted by basicPublish, by exchange.",
		}, []string{"exchange"}),
		AckTotal: lib.NewCounterVec(lib.CounterOpts{
			Namespace: "hive",
			Name:      "ack_total",
			Help:      "Total number of messages acknowledged, by queue.",
		}, []string{"queue"}),
		DeliveryTotal: lib.NewCounterVec(lib.CounterOpts{
			Namespace: "hive",
			Name:      "delivery_total",
			Help:      "Total number of messages pushed to a consumer, by queue.",
		}, []string{"queue"}),
		QueueReady: lib.NewGaugeVec(lib.GaugeOpts{
			Namespace: "hive",
			Name:      "queue_ready",
			Help:      "Number of messages currently in the ready list, by queue.",
		}, []string{"queue"}),
		QueuePending: lib.NewGaugeVec(lib.GaugeOpts{
			Namespace: "hive",
			Name:      "queue_pending_ack",
			Help:      "Number of messages currently pending acknowledgement, by queue.",
		}, []string{"queue"}),
		ConsumerCount: lib.NewGaugeVec(lib.GaugeOpts{
			Namespace: "hive",
			Name:      "consumer_count",
			Help:      "Number of registered consumers, by queue.",
		}, []string{"queue"}),
		CompactionRuns: lib.NewCounterVec(lib.CounterOpts{
			Namespace: "hive",
			Name:      "compaction_runs_total",
			Help:      "Total number of message-log compaction runs, by queue.",
		}, []string{"queue"}),
	}

	collectAll := []lib.Collector{
		r.PublishTotal, r.AckTotal, r.DeliveryTotal,
		r.QueueReady, r.QueuePending, r.ConsumerCount, r.CompactionRuns,
	}
	for _, c := range collectAll {
		if err := r.reg.Register(c); err != nil {
			return nil, err
		}
	}
	if err := r.reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if runtime.GOOS == "linux" || runtime.GOOS == "windows" {
		po := collectors.ProcessCollectorOpts{ReportErrors: true}
		if err := r.reg.Register(collectors.NewProcessCollector(po)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Handler returns the HTTP handler used to expose metrics for scraping.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{
		ErrorLog:            &errorLogger{ll: xlog.Discard()},
		ErrorHandling:       promhttp.ContinueOnError,
		Registry:            r.reg,
		MaxRequestsInFlight: 10,
		Timeout:             5 * time.Second,
	})
}

// errorLogger adapts the broker's logger to promhttp's minimal logging
// interface, same pattern as the teacher's operator.errorLogger.
type errorLogger struct {
	ll xlog.Logger
}

func (el *errorLogger) Println(v ...any) {
	el.ll.Print(xlog.Warning, v...)
}
