package metrics

import (
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsSingleton(t *testing.T) {
	assert.Same(t, New(), New())
}

func TestRecord(t *testing.T) {
	m := New()

	ok := testutil.ToFloat64(m.RunsTotal.WithLabelValues("bing", "bluesky", "success"))
	failed := testutil.ToFloat64(m.RunsTotal.WithLabelValues("bing", "bluesky", "failure"))
	m.RecordRun("bing", "bluesky", nil)
	m.RecordRun("bing", "bluesky", errors.New("boom"))
	assert.Equal(t, ok+1, testutil.ToFloat64(m.RunsTotal.WithLabelValues("bing", "bluesky", "success")))
	assert.Equal(t, failed+1, testutil.ToFloat64(m.RunsTotal.WithLabelValues("bing", "bluesky", "failure")))

	resized := testutil.ToFloat64(m.CompressionsTotal.WithLabelValues("true"))
	m.RecordCompression(60, true)
	assert.Equal(t, resized+1, testutil.ToFloat64(m.CompressionsTotal.WithLabelValues("true")))

	region := testutil.ToFloat64(m.SegmentsDropped.WithLabelValues("region"))
	m.RecordDropped([]string{"region", "hashtags"})
	assert.Equal(t, region+1, testutil.ToFloat64(m.SegmentsDropped.WithLabelValues("region")))
}

func TestWriteTextfileAndHandler(t *testing.T) {
	New().RecordRun("calendar", "bluesky", nil)

	path := filepath.Join(t.TempDir(), "autopost.prom")
	require.NoError(t, WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `autopost_runs_total{provider="calendar",result="success",target="bluesky"}`)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "autopost_runs_total")
}
