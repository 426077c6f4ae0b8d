package buckets

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"inference-filter/internal/database"
	"inference-filter/internal/filter"
	"inference-filter/internal/pipeline"
	"inference-filter/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu      sync.Mutex
	batches [][]database.PredictionRow
	calls   int
	err     error
}

func (s *fakeStore) SavePredictions(_ context.Context, rows []database.PredictionRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, rows)
	return nil
}

func (s *fakeStore) snapshot() ([][]database.PredictionRow, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]database.PredictionRow(nil), s.batches...), s.calls
}

func predicted(id string, idx int) filter.Outcome {
	return filter.Outcome{
		ExchangeID: id,
		Task:       pipeline.TaskImage,
		Prediction: &pipeline.PredictionResult{LabelIndex: idx, Confidence: 0.5, LabelName: "tabby"},
		InputBytes: 10,
		CreatedAt:  time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
	}
}

func TestShutdownFlushesPendingBuckets(t *testing.T) {
	store := &fakeStore{}
	c := NewPredictionCache(zap.NewNop().Sugar(), store, "mobilenet", WithFlushInterval(time.Hour))

	c.Record(predicted("a", 1))
	c.Record(predicted("b", 2))
	c.Record(filter.Outcome{ExchangeID: "c", Task: pipeline.TaskText, ErrorKind: shared.KindInputDecode})
	c.Shutdown()

	batches, _ := store.snapshot()
	require.Len(t, batches, 2)
	rows := map[string]database.PredictionRow{}
	for _, b := range batches {
		for _, r := range b {
			rows[r.ExchangeID] = r
		}
	}
	require.Len(t, rows, 3)
	assert.Equal(t, "mobilenet", rows["a"].Model)
	assert.Equal(t, 1, *rows["a"].LabelIndex)
	assert.Equal(t, "tabby", rows["b"].LabelName)
	assert.Nil(t, rows["c"].LabelIndex)
	assert.Equal(t, "input_decode", rows["c"].ErrorKind)
	assert.Equal(t, "text", rows["c"].Task)
}

func TestFullBucketFlushesImmediately(t *testing.T) {
	store := &fakeStore{}
	c := NewPredictionCache(zap.NewNop().Sugar(), store, "m", WithFlushInterval(time.Hour), WithMaxSize(2))

	c.Record(predicted("a", 1))
	c.Record(predicted("b", 1))

	assert.Eventually(t, func() bool {
		batches, _ := store.snapshot()
		return len(batches) == 1 && len(batches[0]) == 2
	}, time.Second, 5*time.Millisecond)
	c.Shutdown()
}

func TestTimerFlush(t *testing.T) {
	store := &fakeStore{}
	c := NewPredictionCache(zap.NewNop().Sugar(), store, "m", WithFlushInterval(10*time.Millisecond))

	c.Record(predicted("a", 1))

	assert.Eventually(t, func() bool {
		batches, _ := store.snapshot()
		return len(batches) == 1
	}, time.Second, 5*time.Millisecond)
	c.Shutdown()
}

func TestFlushGivesUpAfterRetries(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	c := NewPredictionCache(zap.NewNop().Sugar(), store, "m", WithFlushInterval(time.Hour), WithRetryPause(0))

	c.Record(predicted("a", 1))
	c.Shutdown()

	_, calls := store.snapshot()
	assert.Equal(t, shared.MaxFlushRetries, calls)
	assert.Equal(t, time.Duration(0), c.Flush(pipeline.TaskImage))
}
