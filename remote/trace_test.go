package remote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestTracedSourcePassesThrough(t *testing.T) {
	backend := &fakeSource{data: []byte("0123456789")}

	src := newTracedSource(context.Background(), backend, noop.NewTracerProvider())

	assert.Equal(t, int64(10), src.Size())
	assert.Equal(t, backend.URL(), src.URL())
	assert.Equal(t, backend.Name(), src.Name())

	p := make([]byte, 4)

	n, err := src.ReadAt(p, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "3456", string(p))
	assert.Equal(t, []int64{3}, backend.reads)

	assert.NoError(t, src.Close())
}
