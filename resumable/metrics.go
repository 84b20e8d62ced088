package resumable

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of a write, used as the "outcome" label of the writes counter.
const (
	outcomeComplete        = "complete"
	outcomeOpen            = "open"
	outcomeShort           = "short"
	outcomeCeilingExceeded = "ceiling_exceeded"
	outcomeError           = "error"
)

type metrics struct {
	sessionsCreated    prometheus.Counter
	sessionsFinished   prometheus.Counter
	sessionsTerminated prometheus.Counter
	bytesWritten       prometheus.Counter
	partsUploaded      prometheus.Counter
	writes             *prometheus.CounterVec
}

func newMetrics() metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "resumable",
			Name:      name,
			Help:      help,
		})
	}

	return metrics{
		sessionsCreated:    counter("sessions_created_total", "Number of created upload sessions"),
		sessionsFinished:   counter("sessions_finished_total", "Number of completed multipart uploads"),
		sessionsTerminated: counter("sessions_terminated_total", "Number of terminated upload sessions"),
		bytesWritten:       counter("bytes_written_total", "Number of bytes accepted by the object store"),
		partsUploaded:      counter("parts_uploaded_total", "Number of uploaded parts"),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resumable",
			Name:      "writes_total",
			Help:      "Number of writes by outcome",
		}, []string{"outcome"}),
	}
}

func (m metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.sessionsCreated,
		m.sessionsFinished,
		m.sessionsTerminated,
		m.bytesWritten,
		m.partsUploaded,
		m.writes,
	}
}

func (m metrics) logWrite(outcome string, transferred int64, parts int) {
	m.writes.WithLabelValues(outcome).Inc()
	m.bytesWritten.Add(float64(transferred))
	m.partsUploaded.Add(float64(parts))
}
