// Package metrics exposes Prometheus metrics for the poll loop and its
// delivery paths.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/logo-monitor/internal/logic"
)

const (
	metricPrefix = "logo_monitor_"

	resultSuccess = "success"
	resultError   = "error"
)

// Metrics bundles the monitor's collectors.
type Metrics struct {
	SamplesTotal       *prometheus.CounterVec
	ProbeLatency       prometheus.Histogram
	TransitionsTotal   *prometheus.CounterVec
	ConfirmedHealthy   prometheus.Gauge
	PowerKW            prometheus.Gauge
	ConsecutiveFaults  prometheus.Gauge
	NotificationsTotal *prometheus.CounterVec
	MQTTPublishTotal   *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New constructs the collectors and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		SamplesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "samples_total",
				Help: "Total plant samples by probe result",
			},
			[]string{"result"},
		),
		ProbeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "probe_latency_seconds",
			Help:    "Probe latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "transitions_total",
				Help: "Total confirmed transitions by event",
			},
			[]string{"event"},
		),
		ConfirmedHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "confirmed_healthy",
			Help: "1 while the plant is confirmed healthy, 0 after a confirmed fault",
		}),
		PowerKW: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "power_kw",
			Help: "Last observed power in kW, -1 when unreadable",
		}),
		ConsecutiveFaults: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "consecutive_faults",
			Help: "Unhealthy samples since the last healthy one",
		}),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Total Telegram deliveries by result",
			},
			[]string{"result"},
		),
		MQTTPublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mqtt_publish_total",
				Help: "Total MQTT publishes by result",
			},
			[]string{"result"},
		),
		gatherer: reg,
	}
	reg.MustRegister(
		m.SamplesTotal,
		m.ProbeLatency,
		m.TransitionsTotal,
		m.ConfirmedHealthy,
		m.PowerKW,
		m.ConsecutiveFaults,
		m.NotificationsTotal,
		m.MQTTPublishTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveProbe records one probe call.
func (m *Metrics) ObserveProbe(latency time.Duration, err error) {
	m.SamplesTotal.WithLabelValues(result(err)).Inc()
	m.ProbeLatency.Observe(latency.Seconds())
}

// ObserveState mirrors the engine state into gauges.
func (m *Metrics) ObserveState(s logic.ConfirmedState) {
	if s.ConfirmedHealthy {
		m.ConfirmedHealthy.Set(1)
	} else {
		m.ConfirmedHealthy.Set(0)
	}
	m.PowerKW.Set(s.Power)
	m.ConsecutiveFaults.Set(float64(s.ConsecutiveFaults))
}

// ObserveTransition counts a confirmed transition.
func (m *Metrics) ObserveTransition(ev logic.Event) {
	m.TransitionsTotal.WithLabelValues(string(ev.Type)).Inc()
}

// ObserveNotification counts one Telegram delivery attempt.
func (m *Metrics) ObserveNotification(err error) {
	m.NotificationsTotal.WithLabelValues(result(err)).Inc()
}

// ObserveMQTTPublish counts one MQTT publish attempt.
func (m *Metrics) ObserveMQTTPublish(err error) {
	m.MQTTPublishTotal.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}
