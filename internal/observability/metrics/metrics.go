// Package metrics defines the prometheus collectors for the client
// daemon. Collectors are created against an injected registry so tests can
// stay hermetic.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	ConnTransitionsTotal   *prometheus.CounterVec
	HeartbeatFailuresTotal prometheus.Counter
	ReloadsTotal           prometheus.Counter
	AuthExchangesTotal     *prometheus.CounterVec
	MediaUploadsTotal      *prometheus.CounterVec
	MediaUploadBytesTotal  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conn_transitions_total",
				Help: "Connection lifecycle transitions.",
			},
			[]string{"from", "to"},
		),
		HeartbeatFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "conn_heartbeat_failures_total",
				Help: "Heartbeat probes that failed or timed out.",
			},
		),
		ReloadsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "conn_reloads_total",
				Help: "Full data reloads performed after recovery.",
			},
		),
		AuthExchangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_exchanges_total",
				Help: "Login and refresh exchanges by result.",
			},
			[]string{"flow", "result"},
		),
		MediaUploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "media_uploads_total",
				Help: "Media uploads by result.",
			},
			[]string{"result"},
		),
		MediaUploadBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "media_upload_bytes_total",
				Help: "Payload bytes successfully uploaded.",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.ConnTransitionsTotal,
			m.HeartbeatFailuresTotal,
			m.ReloadsTotal,
			m.AuthExchangesTotal,
			m.MediaUploadsTotal,
			m.MediaUploadBytesTotal,
		)
	}
	return m
}
