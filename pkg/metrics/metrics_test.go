package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsReturnNilWhenDisabled(t *testing.T) {
	ResetForTesting()

	assert.False(t, IsEnabled())
	assert.Nil(t, NewLoaderMetrics())
	assert.Nil(t, NewWriterMetrics())
}

func TestLoaderMetricsRecord(t *testing.T) {
	ResetForTesting()
	InitRegistry()

	m := NewLoaderMetrics()
	require.NotNil(t, m)

	m.TileRead(1024)
	m.TileRead(2048)
	m.TileSkipped("mask")
	m.TileSkipped("nodata")
	m.TileSkipped("nodata")
	m.QueueDepth(1)

	impl := m.(*loaderMetrics)
	assert.Equal(t, 2.0, testutil.ToFloat64(impl.tilesRead))
	assert.Equal(t, 3072.0, testutil.ToFloat64(impl.bytesRead))
	assert.Equal(t, 1.0, testutil.ToFloat64(impl.tilesSkipped.WithLabelValues("mask")))
	assert.Equal(t, 2.0, testutil.ToFloat64(impl.tilesSkipped.WithLabelValues("nodata")))
	assert.Equal(t, 1.0, testutil.ToFloat64(impl.queueDepth))
}

func TestWriterMetricsRecord(t *testing.T) {
	ResetForTesting()
	InitRegistry()

	m := NewWriterMetrics()
	require.NotNil(t, m)

	m.BlockWritten(4096)
	m.QueueDepth(3)
	m.QueueDepth(0)

	impl := m.(*writerMetrics)
	assert.Equal(t, 1.0, testutil.ToFloat64(impl.blocksWritten))
	assert.Equal(t, 4096.0, testutil.ToFloat64(impl.bytesWritten))
	assert.Equal(t, 0.0, testutil.ToFloat64(impl.queueDepth))
}
