package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/parcel-valuation-service/internal/observability"
	"github.com/couchcryptid/parcel-valuation-service/internal/pipeline"
	"github.com/couchcryptid/parcel-valuation-service/internal/valuation"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockLoader struct {
	mu       sync.Mutex
	batches  [][]valuation.Resolution
	failures int
}

func (m *mockLoader) PublishBatch(_ context.Context, batch []valuation.Resolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("broker unavailable")
	}
	m.batches = append(m.batches, append([]valuation.Resolution(nil), batch...))
	return nil
}

func (m *mockLoader) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, b := range m.batches {
		for _, res := range b {
			out = append(out, res.ID)
		}
	}
	return out
}

func (m *mockLoader) batchSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, len(b))
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runInBackground(t *testing.T, p *pipeline.Pipeline) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, p.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(ldr, discardLogger(), metrics, 8, 4)

	runInBackground(t, p)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, p.Publish(context.Background(), valuation.Resolution{ID: id}))
	}

	require.Eventually(t, func() bool { return len(ldr.ids()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, ldr.ids())
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.RecordsPublished), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PublishQueueDepth), 0)
}

func TestPipeline_Run_BatchesQueuedResolutions(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(ldr, discardLogger(), observability.NewMetricsForTesting(), 8, 2)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, p.Publish(context.Background(), valuation.Resolution{ID: id}))
	}
	runInBackground(t, p)

	require.Eventually(t, func() bool { return len(ldr.ids()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int{2, 1}, ldr.batchSizes())
}

func TestPipeline_Run_RetriesFailedBatch(t *testing.T) {
	ldr := &mockLoader{failures: 1}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(ldr, discardLogger(), metrics, 8, 4)

	runInBackground(t, p)
	require.NoError(t, p.Publish(context.Background(), valuation.Resolution{ID: "a"}))

	require.Eventually(t, func() bool { return len(ldr.ids()) == 1 }, 3*time.Second, 20*time.Millisecond)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.PublishErrors), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RecordsPublished), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	p := pipeline.New(&mockLoader{}, discardLogger(), observability.NewMetricsForTesting(), 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_PublishQueueFull(t *testing.T) {
	p := pipeline.New(&mockLoader{}, discardLogger(), observability.NewMetricsForTesting(), 1, 1)

	require.NoError(t, p.Publish(context.Background(), valuation.Resolution{ID: "a"}))
	assert.ErrorIs(t, p.Publish(context.Background(), valuation.Resolution{ID: "b"}), pipeline.ErrQueueFull)
}

func TestPipeline_Flush(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(ldr, discardLogger(), observability.NewMetricsForTesting(), 8, 4)

	require.NoError(t, p.Publish(context.Background(), valuation.Resolution{ID: "a"}))
	require.NoError(t, p.Publish(context.Background(), valuation.Resolution{ID: "b"}))

	require.NoError(t, p.Flush(context.Background()))
	assert.Equal(t, []string{"a", "b"}, ldr.ids())
}

func TestPipeline_FlushFailure(t *testing.T) {
	ldr := &mockLoader{failures: 1}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(ldr, discardLogger(), metrics, 8, 4)

	require.NoError(t, p.Publish(context.Background(), valuation.Resolution{ID: "a"}))

	assert.Error(t, p.Flush(context.Background()))
	assert.Empty(t, ldr.ids())
}

func TestPipeline_CheckReadiness(t *testing.T) {
	p := pipeline.New(&mockLoader{}, discardLogger(), observability.NewMetricsForTesting(), 1, 1)
	assert.Error(t, p.CheckReadiness(context.Background()))

	runInBackground(t, p)
	require.Eventually(t, func() bool {
		return p.CheckReadiness(context.Background()) == nil
	}, time.Second, 10*time.Millisecond)
}

func TestPipeline_ServesAsSessionPublisher(t *testing.T) {
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(ldr, discardLogger(), metrics, 8, 4)
	runInBackground(t, p)

	svc := valuation.NewService(nil, emptyCandidates{}, nil, time.Second, discardLogger(), metrics)
	session := valuation.NewSession(svc, p)

	res, committed := session.Resolve(context.Background(), validPoint, "1 Main St")
	require.True(t, committed)

	require.Eventually(t, func() bool { return len(ldr.ids()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{res.ID}, ldr.ids())
}

// cancelAwareLoader blocks its first write until the caller's context is
// cancelled, like a broker write interrupted by shutdown.
type cancelAwareLoader struct {
	mockLoader
	entered chan struct{}
	once    sync.Once
}

func (c *cancelAwareLoader) PublishBatch(ctx context.Context, batch []valuation.Resolution) error {
	first := false
	c.once.Do(func() {
		first = true
		close(c.entered)
	})
	if first {
		<-ctx.Done()
		return ctx.Err()
	}
	return c.mockLoader.PublishBatch(ctx, batch)
}

func TestPipeline_CloseWritesBatchInterruptedByShutdown(t *testing.T) {
	ldr := &cancelAwareLoader{entered: make(chan struct{})}
	p := pipeline.New(ldr, discardLogger(), observability.NewMetricsForTesting(), 8, 4)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	require.NoError(t, p.Publish(context.Background(), valuation.Resolution{ID: "r-1"}))

	select {
	case <-ldr.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("publish loop never started writing")
	}
	cancel()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer closeCancel()
	require.NoError(t, p.Close(closeCtx))

	assert.Equal(t, []string{"r-1"}, ldr.ids())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_CloseWithoutStartFlushes(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(ldr, discardLogger(), observability.NewMetricsForTesting(), 8, 4)
	require.NoError(t, p.Publish(context.Background(), valuation.Resolution{ID: "a"}))

	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, []string{"a"}, ldr.ids())
}
