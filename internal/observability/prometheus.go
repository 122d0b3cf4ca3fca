package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Handler exposes a Prometheus text-format view of a Rolling recorder's
// cumulative snapshot, adapted from bidders.PrometheusMetricsHandler. It
// drops that handler's windowed time-series merge (bidders.metrics_timeseries.go
// has no SPEC_FULL.md analogue and duplicated what Rolling's own percentile
// tracking already provides) and reports the recorder's full rolling window
// instead of a query-selectable time range.
func Handler(rec *Rolling) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		var b strings.Builder
		b.WriteString("# HELP aip_bidder_invited_total Times a bidder was invited into an auction\n")
		b.WriteString("# TYPE aip_bidder_invited_total counter\n")
		b.WriteString("# HELP aip_bidder_won_total Auctions a bidder won\n")
		b.WriteString("# TYPE aip_bidder_won_total counter\n")
		b.WriteString("# HELP aip_bidder_lost_total Auctions in which a bidder submitted a bid that did not win\n")
		b.WriteString("# TYPE aip_bidder_lost_total counter\n")
		b.WriteString("# HELP aip_bidder_timeout_total Bids that arrived after window close\n")
		b.WriteString("# TYPE aip_bidder_timeout_total counter\n")
		b.WriteString("# HELP aip_bidder_errors_total Bid submission errors, labeled by reason\n")
		b.WriteString("# TYPE aip_bidder_errors_total counter\n")
		b.WriteString("# HELP aip_bidder_latency_p95_ms Estimated p95 bid latency in milliseconds\n")
		b.WriteString("# TYPE aip_bidder_latency_p95_ms gauge\n")
		b.WriteString("# HELP aip_bidder_latency_p99_ms Estimated p99 bid latency in milliseconds\n")
		b.WriteString("# TYPE aip_bidder_latency_p99_ms gauge\n")

		for _, snap := range rec.SnapshotAll() {
			b.WriteString(fmt.Sprintf("aip_bidder_invited_total{bidder=%q} %d\n", snap.Bidder, snap.Invited))
			b.WriteString(fmt.Sprintf("aip_bidder_won_total{bidder=%q} %d\n", snap.Bidder, snap.Won))
			b.WriteString(fmt.Sprintf("aip_bidder_lost_total{bidder=%q} %d\n", snap.Bidder, snap.Lost))
			b.WriteString(fmt.Sprintf("aip_bidder_timeout_total{bidder=%q} %d\n", snap.Bidder, snap.Timeout))
			for reason, c := range snap.Errors {
				b.WriteString(fmt.Sprintf("aip_bidder_errors_total{bidder=%q,reason=%q} %d\n", snap.Bidder, reason, c))
			}
			b.WriteString(fmt.Sprintf("aip_bidder_latency_p95_ms{bidder=%q} %s\n", snap.Bidder, formatFloat(snap.LatencyP95)))
			b.WriteString(fmt.Sprintf("aip_bidder_latency_p99_ms{bidder=%q} %s\n", snap.Bidder, formatFloat(snap.LatencyP99)))
		}

		_, _ = w.Write([]byte(b.String()))
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
