// Package metrics exposes per-session rsyncstats.TransferStats as
// Prometheus collectors on the daemon's existing monitoring HTTP
// endpoint, adapted from the
// prometheus.Collector pattern used for per-connection TCP info in the
// retrieval pack's sockstats exporter: a locked map of live sessions,
// visited by Collect rather than pushed eagerly.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oferchen/ocrsync/internal/rsyncstats"
)

// SessionCollector reports every currently-tracked transfer's counters
// on each Prometheus scrape. Sessions are added when a transfer starts
// and removed once its final Stats message has been reported; a
// crashed session that is never removed simply stops updating rather
// than disappearing from the metric, which is preferable for
// diagnosing a stuck transfer.
type SessionCollector struct {
	mu       sync.Mutex
	sessions map[string]*rsyncstats.TransferStats

	bytesRead       *prometheus.Desc
	bytesWritten    *prometheus.Desc
	totalSize       *prometheus.Desc
	filesTotal      *prometheus.Desc
	filesTransfer   *prometheus.Desc
	literalBytes    *prometheus.Desc
	matchedBytes    *prometheus.Desc
}

// NewSessionCollector constructs an empty collector. constLabels is
// attached to every metric it reports, e.g. {"instance": hostname}.
func NewSessionCollector(constLabels prometheus.Labels) *SessionCollector {
	labelNames := []string{"session"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("ocrsync_"+name, help, labelNames, constLabels)
	}
	return &SessionCollector{
		sessions:      make(map[string]*rsyncstats.TransferStats),
		bytesRead:     desc("bytes_read_total", "Bytes read from the peer, protocol overhead included."),
		bytesWritten:  desc("bytes_written_total", "Bytes written to the peer, protocol overhead included."),
		totalSize:     desc("size_bytes", "Total size of the file set as reconstructed on the receiving side."),
		filesTotal:    desc("files_total", "Number of files considered for transfer."),
		filesTransfer: desc("files_transferred_total", "Number of files actually transferred."),
		literalBytes:  desc("literal_bytes_total", "Bytes sent as literal data rather than matched from the basis."),
		matchedBytes:  desc("matched_bytes_total", "Bytes reconstructed from basis-file matches."),
	}
}

func (c *SessionCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.bytesRead
	descs <- c.bytesWritten
	descs <- c.totalSize
	descs <- c.filesTotal
	descs <- c.filesTransfer
	descs <- c.literalBytes
	descs <- c.matchedBytes
}

func (c *SessionCollector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, s := range c.sessions {
		metrics <- prometheus.MustNewConstMetric(c.bytesRead, prometheus.CounterValue, float64(s.Read), id)
		metrics <- prometheus.MustNewConstMetric(c.bytesWritten, prometheus.CounterValue, float64(s.Written), id)
		metrics <- prometheus.MustNewConstMetric(c.totalSize, prometheus.GaugeValue, float64(s.Size), id)
		metrics <- prometheus.MustNewConstMetric(c.filesTotal, prometheus.GaugeValue, float64(s.FilesTotal), id)
		metrics <- prometheus.MustNewConstMetric(c.filesTransfer, prometheus.CounterValue, float64(s.FilesTransferred), id)
		metrics <- prometheus.MustNewConstMetric(c.literalBytes, prometheus.CounterValue, float64(s.LiteralBytes), id)
		metrics <- prometheus.MustNewConstMetric(c.matchedBytes, prometheus.CounterValue, float64(s.MatchedBytes), id)
	}
}

// Track registers a session's stats pointer under id, replacing any
// metrics it exposes on every subsequent Collect until Forget is
// called. Callers update *stats in place as the transfer progresses.
func (c *SessionCollector) Track(id string, stats *rsyncstats.TransferStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[id] = stats
}

// Forget stops reporting id's metrics.
func (c *SessionCollector) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
}
