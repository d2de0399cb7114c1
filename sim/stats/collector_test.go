package stats

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ExportsSeries(t *testing.T) {
	c := NewCollector()
	c.Observe(sampleResultSet("seed-1"))

	v := testutil.ToFloat64(c.values.WithLabelValues("seed-1", string(MessagesSent), "client/alice"))
	assert.Equal(t, 3.0, v)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.duration.WithLabelValues("seed-1")))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "mixnet_sim_series_value"))
}
