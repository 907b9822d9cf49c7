package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oferchen/ocrsync/internal/rsyncstats"
)

func collectCount(c *SessionCollector) int {
	ch := make(chan prometheus.Metric, 64)
	c.Collect(ch)
	close(ch)
	n := 0
	for range ch {
		n++
	}
	return n
}

func TestTrackForget(t *testing.T) {
	c := NewSessionCollector(nil)
	if got := collectCount(c); got != 0 {
		t.Fatalf("empty collector reported %d metrics, want 0", got)
	}

	stats := &rsyncstats.TransferStats{Read: 1, Written: 2, Size: 3}
	c.Track("sess1", stats)
	if got := collectCount(c); got == 0 {
		t.Fatal("tracked session reported no metrics")
	}

	c.Forget("sess1")
	if got := collectCount(c); got != 0 {
		t.Fatalf("forgotten session still reports %d metrics", got)
	}
}
