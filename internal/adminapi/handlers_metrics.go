package adminapi

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
)

// snapshotter is satisfied by metrics.Memory; other Sink implementations
// (e.g. a future Postgres-backed rate-limit-table sink) can opt into the
// metrics endpoint by implementing the same method.
type snapshotter interface {
	Snapshot() map[string]int64
}

// handleMetrics renders a minimal Prometheus exposition-format text
// rendering of whatever counters the configured sink has accumulated.
// A dedicated metrics pipeline is an external collaborator's job; the
// admin surface still needs something to serve, so this is the thinnest
// stdlib-only renderer that satisfies the exposition format, not a
// metrics library.
func (s *Server) handleMetrics(c *gin.Context) {
	snap, ok := s.sink.(snapshotter)
	if !ok {
		c.String(http.StatusOK, "# metrics sink does not support snapshotting\n")
		return
	}
	counters := snap.Snapshot()
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		metric, labels := splitMetricKey(name)
		fmt.Fprintf(&b, "# TYPE %s counter\n", sanitizeMetricName(metric))
		if labels == "" {
			fmt.Fprintf(&b, "%s %d\n", sanitizeMetricName(metric), counters[name])
		} else {
			fmt.Fprintf(&b, "%s{%s} %d\n", sanitizeMetricName(metric), labels, counters[name])
		}
	}
	c.Data(http.StatusOK, "text/plain; version=0.0.4", []byte(b.String()))
}

// splitMetricKey reverses metrics.key's "name|k=v|k=v" flattening into a
// Prometheus label list "k=\"v\",k=\"v\"".
func splitMetricKey(flat string) (name, labels string) {
	parts := strings.Split(flat, "|")
	name = parts[0]
	if len(parts) == 1 {
		return name, ""
	}
	pairs := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		pairs = append(pairs, fmt.Sprintf("%s=%q", kv[0], kv[1]))
	}
	return name, strings.Join(pairs, ",")
}

func sanitizeMetricName(name string) string {
	return strings.ReplaceAll(strings.ReplaceAll(name, ".", "_"), "-", "_")
}
