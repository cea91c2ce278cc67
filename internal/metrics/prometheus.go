package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reposerve"

// Register exposes the collector's counters on reg.  The values are
// read from the atomics at scrape time, so nothing is double-counted.
func (c *Collector) Register(reg prometheus.Registerer) error {
	counters := []struct {
		name, help string
		load       func() int64
	}{
		{"sessions_total", "Sessions registered since start.", c.TotalSessions},
		{"rejected_connections_total", "Connections refused because the server was full.", c.RejectedConnections},
		{"commands_total", "Commands dispatched.", c.Commands},
		{"files_served_total", "Completed file transfers.", c.FilesServed},
		{"received_bytes_total", "Bytes read from clients.", c.TotalBytesIn},
		{"sent_bytes_total", "Bytes written to clients.", c.TotalBytesOut},
		{"errors_total", "Session errors.", c.ErrorCount},
	}
	for _, ct := range counters {
		load := ct.load
		err := reg.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      ct.name,
			Help:      ct.help,
		}, func() float64 { return float64(load()) }))
		if err != nil {
			return err
		}
	}
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Sessions currently connected.",
	}, func() float64 { return float64(c.ActiveSessions()) }))
}
