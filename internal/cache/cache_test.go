package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"inference-filter/internal/labels"
	"inference-filter/internal/pipeline"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memClient struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	failGet bool
}

func newMemClient() *memClient {
	return &memClient{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memClient) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return redis.NewStringResult("", errors.New("connection refused"))
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memClient) Set(_ context.Context, key string, value any, exp time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	m.ttls[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (m *memClient) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

type countingPipeline struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingPipeline) Task() pipeline.Task { return pipeline.TaskText }

func (c *countingPipeline) Classify(context.Context, pipeline.Input) (*pipeline.PredictionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &pipeline.PredictionResult{LabelIndex: 3, LabelName: "positive", Confidence: 0.8}, nil
}

func (c *countingPipeline) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestCacheHitSkipsPipeline(t *testing.T) {
	client := newMemClient()
	next := &countingPipeline{}
	p := New(next, client, "bert", time.Minute, zap.NewNop().Sugar())

	in := pipeline.Input{Data: []byte("I love it")}
	res, err := p.Classify(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 3, res.LabelIndex)
	assert.Eventually(t, func() bool { return client.len() == 1 }, time.Second, 5*time.Millisecond)

	res, err = p.Classify(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "positive", res.LabelName)
	assert.Equal(t, 0.8, res.Confidence)
	assert.Equal(t, 1, next.count())
	assert.Equal(t, time.Minute, client.ttls[p.Key(in)])
}

func TestCacheUnavailableFallsThrough(t *testing.T) {
	client := newMemClient()
	client.failGet = true
	next := &countingPipeline{}
	p := New(next, client, "bert", 0, zap.NewNop().Sugar())

	for i := 0; i < 2; i++ {
		_, err := p.Classify(context.Background(), pipeline.Input{Data: []byte("x")})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, next.count())
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	client := newMemClient()
	next := &countingPipeline{err: errors.New("boom")}
	p := New(next, client, "bert", 0, zap.NewNop().Sugar())

	_, err := p.Classify(context.Background(), pipeline.Input{Data: []byte("x")})
	assert.Error(t, err)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, client.len())
}

func TestCacheCorruptEntry(t *testing.T) {
	client := newMemClient()
	next := &countingPipeline{}
	p := New(next, client, "bert", 0, zap.NewNop().Sugar())
	in := pipeline.Input{Data: []byte("x")}
	client.data[p.Key(in)] = "{not json"

	res, err := p.Classify(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 3, res.LabelIndex)
	assert.Equal(t, 1, next.count())
}

func TestKeySeparatesInputs(t *testing.T) {
	p := New(&countingPipeline{}, newMemClient(), "bert", 0, zap.NewNop().Sugar())
	a := p.Key(pipeline.Input{Data: []byte("abc")})
	b := p.Key(pipeline.Input{Data: []byte("abc"), ContentEncoding: "gzip"})
	c := p.Key(pipeline.Input{Data: []byte("abd")})
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, p.Key(pipeline.Input{Data: []byte("abc")}))

	other := New(&countingPipeline{}, newMemClient(), "distilbert", 0, zap.NewNop().Sugar())
	assert.NotEqual(t, a, other.Key(pipeline.Input{Data: []byte("abc")}))
}

func TestNamespaceTracksPredictionOptions(t *testing.T) {
	base := pipeline.Options{Task: pipeline.TaskText, Labels: labels.New([]string{"negative", "positive"})}
	ns := Namespace(base, "bert.onnx", "tokenizer.json")
	assert.True(t, strings.HasPrefix(ns, "bert.onnx-"))
	assert.Equal(t, ns, Namespace(base, "bert.onnx", "tokenizer.json"))

	on := true
	variants := map[string]pipeline.Options{
		"softmax":   {Task: pipeline.TaskText, Labels: base.Labels, Softmax: &on},
		"labels":    {Task: pipeline.TaskText, Labels: labels.New([]string{"neg", "pos"})},
		"json path": {Task: pipeline.TaskText, Labels: base.Labels, TextJSONPath: "text"},
		"no labels": {Task: pipeline.TaskText},
	}
	for name, opts := range variants {
		assert.NotEqual(t, ns, Namespace(opts, "bert.onnx", "tokenizer.json"), name)
	}

	shifted := labels.New([]string{"negative", "positive"})
	shifted.Offset = 1
	assert.NotEqual(t, ns, Namespace(pipeline.Options{Task: pipeline.TaskText, Labels: shifted}, "bert.onnx", "tokenizer.json"))

	img := pipeline.Options{Task: pipeline.TaskImage, Mean: []float32{0.5, 0.5, 0.5}}
	img2 := pipeline.Options{Task: pipeline.TaskImage, Mean: []float32{0.5, 0.5, 0.4}}
	assert.NotEqual(t, Namespace(img, "m.onnx"), Namespace(img2, "m.onnx"))
	assert.NotEqual(t, Namespace(img, "m.onnx"), Namespace(img, "other.onnx"))
}
