package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDecision(t *testing.T) {
	before := testutil.ToFloat64(DecisionsTotal.WithLabelValues("deny", "blacklist"))
	RecordDecision("deny", "blacklist", 0.001)
	assert.Equal(t, before+1, testutil.ToFloat64(DecisionsTotal.WithLabelValues("deny", "blacklist")))
}

func TestRecordHeuristic(t *testing.T) {
	hits := testutil.ToFloat64(HeuristicHitsTotal.WithLabelValues("tld"))
	errs := testutil.ToFloat64(HeuristicErrorsTotal.WithLabelValues("tld"))

	RecordHeuristic("tld", true, false)
	RecordHeuristic("tld", false, true)
	RecordHeuristic("tld", false, false)

	assert.Equal(t, hits+1, testutil.ToFloat64(HeuristicHitsTotal.WithLabelValues("tld")))
	assert.Equal(t, errs+1, testutil.ToFloat64(HeuristicErrorsTotal.WithLabelValues("tld")))
}

func TestRecordRefresh(t *testing.T) {
	failed := testutil.ToFloat64(BlacklistRefreshTotal.WithLabelValues("error"))
	RecordRefresh(false, 0, 0)
	assert.Equal(t, failed+1, testutil.ToFloat64(BlacklistRefreshTotal.WithLabelValues("error")))

	RecordRefresh(true, 12, 3)
	assert.Equal(t, 12.0, testutil.ToFloat64(BlacklistEntries.WithLabelValues("domain")))
	assert.Equal(t, 3.0, testutil.ToFloat64(BlacklistEntries.WithLabelValues("cidr")))
}

func TestRecordCacheLookupAndTunnel(t *testing.T) {
	hit := testutil.ToFloat64(DecisionCacheTotal.WithLabelValues("hit"))
	miss := testutil.ToFloat64(DecisionCacheTotal.WithLabelValues("miss"))
	RecordCacheLookup(true)
	RecordCacheLookup(false)
	assert.Equal(t, hit+1, testutil.ToFloat64(DecisionCacheTotal.WithLabelValues("hit")))
	assert.Equal(t, miss+1, testutil.ToFloat64(DecisionCacheTotal.WithLabelValues("miss")))

	up := testutil.ToFloat64(TunnelBytesTotal.WithLabelValues("upstream"))
	RecordTunnel(100, 50)
	assert.Equal(t, up+100, testutil.ToFloat64(TunnelBytesTotal.WithLabelValues("upstream")))

	sinkErr := testutil.ToFloat64(SinkErrorsTotal.WithLabelValues("alert"))
	RecordSinkError("alert")
	assert.Equal(t, sinkErr+1, testutil.ToFloat64(SinkErrorsTotal.WithLabelValues("alert")))
}
