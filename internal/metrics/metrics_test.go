package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	c := New()
	c.RecordFrame("security", "failed", 2*time.Second)
	c.RecordFrame("security", "failed", time.Second)
	c.RecordFindings("security", map[string]int{"critical": 2})
	c.RecordChunkTimeout("security")
	c.RecordCache(true)
	c.RecordCache(false)
	c.RecordCache(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.FramesTotal.WithLabelValues("security", "failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.FindingsTotal.WithLabelValues("security", "critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ChunkTimeoutsTotal.WithLabelValues("security")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CacheHitsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.CacheMissesTotal))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.RecordFrame("x", "passed", time.Second)
	c.RecordAuditCall("confirm_edge", "success")
	assert.Nil(t, c.Registry())
	assert.NoError(t, c.WriteTextfile("ignored"))
}

func TestWriteTextfile(t *testing.T) {
	c := New()
	c.RecordPhase("validation", time.Second)

	path := filepath.Join(t.TempDir(), "warden.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "warden_phase_duration_seconds")
}
