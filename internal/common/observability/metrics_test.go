package observability

import (
	"context"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservability_RecordsToRegistry(t *testing.T) {
	reg := promclient.NewRegistry()
	obs, err := New("planner-test", reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = obs.Shutdown(context.Background()) })

	ctx := context.Background()
	obs.RecordGeneration(ctx, "success")
	obs.RecordGeneration(ctx, "failure")
	obs.RecordGenerationDuration(ctx, 1500*time.Millisecond, "success")
	obs.RecordBriefSize(ctx, 420)

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "plan_generations_total")
	assert.Contains(t, names, "plan_generation_duration_milliseconds")
	assert.Contains(t, names, "plan_brief_size_bytes")
	for _, n := range names {
		assert.NotContains(t, n, ".", "metric %s is not underscore-escaped", n)
	}
}

func TestObservability_NoopIsSafe(t *testing.T) {
	ctx := context.Background()
	obs := NewNoop()

	assert.NotPanics(t, func() {
		obs.RecordGeneration(ctx, "success")
		obs.RecordGenerationDuration(ctx, time.Second, "success")
		obs.RecordBriefSize(ctx, 10)
	})
	assert.NoError(t, obs.Shutdown(ctx))

	var nilObs *Observability
	assert.NotPanics(t, func() { nilObs.RecordGeneration(ctx, "x") })
}
