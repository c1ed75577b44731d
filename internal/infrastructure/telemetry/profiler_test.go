package telemetry

import (
	"context"
	"runtime/pprof"
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolveProfileTypes(t *testing.T) {
	types, err := resolveProfileTypes(nil)
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{
		pyroscope.ProfileCPU, pyroscope.ProfileInuseObjects, pyroscope.ProfileInuseSpace,
	}, types)

	types, err = resolveProfileTypes([]string{" Mutex ", "goroutines"})
	require.NoError(t, err)
	assert.Len(t, types, 3)

	_, err = resolveProfileTypes([]string{"heap"})
	assert.Error(t, err)
}

func TestNewProfiler_Disabled(t *testing.T) {
	p, err := NewProfiler(ProfilerConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())

	// no global provider swap when disabled
	p.LinkSpans(&TracerProvider{})
}

func TestNewProfiler_RequiresServer(t *testing.T) {
	_, err := NewProfiler(ProfilerConfig{Enabled: true, ApplicationName: "stockcore"}, zap.NewNop())
	assert.Error(t, err)
}

func TestProfileOperation_SetsLabel(t *testing.T) {
	var got string
	ProfileOperation(context.Background(), "receive_stock", func(ctx context.Context) {
		got, _ = pprof.Label(ctx, "operation")
	})
	assert.Equal(t, "receive_stock", got)
}

func TestWithProfilingLabels(t *testing.T) {
	var route, tenant string
	var hasMethod bool
	WithProfilingLabels(context.Background(), map[string]string{
		"route":     "/api/v1/packing/orders/:id/consume",
		"tenant_id": "t-1",
		"method":    "",
	}, func(ctx context.Context) {
		route, _ = pprof.Label(ctx, "route")
		tenant, _ = pprof.Label(ctx, "tenant_id")
		_, hasMethod = pprof.Label(ctx, "method")
	})
	assert.Equal(t, "/api/v1/packing/orders/:id/consume", route)
	assert.Equal(t, "t-1", tenant)
	assert.False(t, hasMethod)

	called := false
	WithProfilingLabels(context.Background(), nil, func(context.Context) { called = true })
	assert.True(t, called)
}
