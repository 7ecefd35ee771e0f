// Package metrics registers the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Uploads     *prometheus.CounterVec
	UploadBytes prometheus.Counter
	Redirects   *prometheus.CounterVec
	StoreProbes *prometheus.CounterVec
	StatsMemo   *prometheus.CounterVec
	Deliveries  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anonhost",
			Name:      "uploads_total",
			Help:      "Object uploads by result.",
		}, []string{"result"}),
		UploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anonhost",
			Name:      "upload_bytes_total",
			Help:      "Bytes written to the object store.",
		}),
		Redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anonhost",
			Name:      "shortlink_redirects_total",
			Help:      "Short-link resolutions by result.",
		}, []string{"result"}),
		StoreProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anonhost",
			Name:      "store_probes_total",
			Help:      "Object store reachability probes by result.",
		}, []string{"result"}),
		StatsMemo: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anonhost",
			Name:      "stats_memo_total",
			Help:      "Stats memo lookups by outcome.",
		}, []string{"outcome"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anonhost",
			Name:      "deliveries_total",
			Help:      "Stored object deliveries by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(m.Uploads, m.UploadBytes, m.Redirects, m.StoreProbes, m.StatsMemo, m.Deliveries)
	}
	return m
}
