// Package buckets batches exchange outcomes per task and flushes them to the
// database on a timer or when a bucket fills up.
package buckets

import (
	"context"
	"sync"
	"time"

	"inference-filter/internal/database"
	"inference-filter/internal/filter"
	"inference-filter/internal/metrics"
	"inference-filter/internal/pipeline"
	"inference-filter/internal/shared"

	"go.uber.org/zap"
)

type Store interface {
	SavePredictions(ctx context.Context, rows []database.PredictionRow) error
}

// PredictionCache implements filter.Recorder.
type PredictionCache struct {
	buckets       map[pipeline.Task]*bucket
	killedBuckets map[pipeline.Task]*bucket
	mu            sync.Mutex
	log           *zap.SugaredLogger
	store         Store
	model         string
	pending       sync.WaitGroup

	flushInterval time.Duration
	maxSize       int
	retryPause    time.Duration
}

type bucket struct {
	task  pipeline.Task
	rows  []database.PredictionRow
	timer *time.Timer
}

type Option func(*PredictionCache)

func WithFlushInterval(d time.Duration) Option {
	return func(c *PredictionCache) { c.flushInterval = d }
}

func WithMaxSize(n int) Option {
	return func(c *PredictionCache) { c.maxSize = n }
}

// WithRetryPause sets the wait between failed database attempts.
func WithRetryPause(d time.Duration) Option {
	return func(c *PredictionCache) { c.retryPause = d }
}

func NewPredictionCache(log *zap.SugaredLogger, store Store, model string, opts ...Option) *PredictionCache {
	c := &PredictionCache{
		store:         store,
		log:           log,
		model:         model,
		buckets:       map[pipeline.Task]*bucket{},
		killedBuckets: map[pipeline.Task]*bucket{},
		flushInterval: shared.BucketFlushInterval,
		maxSize:       shared.MaxBucketSize,
		retryPause:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ filter.Recorder = (*PredictionCache)(nil)

func (c *PredictionCache) Record(o filter.Outcome) {
	row := database.PredictionRow{
		ExchangeID: o.ExchangeID,
		Model:      c.model,
		Task:       string(o.Task),
		InputBytes: o.InputBytes,
		ClassifyMs: o.ClassifyTime.Milliseconds(),
		CreatedAt:  o.CreatedAt,
	}
	if o.Prediction != nil {
		idx, conf := o.Prediction.LabelIndex, o.Prediction.Confidence
		row.LabelIndex = &idx
		row.Confidence = &conf
		row.LabelName = o.Prediction.LabelName
	}
	if o.ErrorKind != "" {
		row.ErrorKind = string(o.ErrorKind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.getBucket(o.Task)
	b.rows = append(b.rows, row)

	if b.timer == nil {
		task := o.Task
		c.pending.Add(1)
		b.timer = time.AfterFunc(c.flushInterval, func() {
			defer c.pending.Done()
			c.flushWithRetry(task)
		})
	}

	if len(b.rows) < c.maxSize {
		return
	}

	c.log.Infow("Executing flush from full bucket", "task", o.Task, "rows", len(b.rows))
	if !b.timer.Stop() {
		c.log.Info("Flush is already executed")
		return
	}
	task := o.Task
	go func() {
		defer c.pending.Done()
		c.flushWithRetry(task)
	}()
}

func (c *PredictionCache) flushWithRetry(task pipeline.Task) {
	retry := c.Flush(task)
	for retry != 0 {
		c.log.Warn("Flush requested retry, waiting...")
		time.Sleep(retry)
		retry = c.Flush(task)
	}
}

func (c *PredictionCache) getBucket(task pipeline.Task) *bucket {
	b, ok := c.buckets[task]
	if !ok {
		b = &bucket{task: task}
		c.buckets[task] = b
	}
	return b
}

// Flush writes the task's bucket. A non-zero return asks the caller to try
// again after that delay because another flush of the same task is running.
func (c *PredictionCache) Flush(task pipeline.Task) time.Duration {
	c.mu.Lock()
	b, ok := c.buckets[task]
	if !ok {
		c.mu.Unlock()
		return 0
	}
	if _, ok := c.killedBuckets[task]; ok {
		c.mu.Unlock()
		return shared.BucketRetryDelay
	}
	c.killedBuckets[task] = b
	delete(c.buckets, task)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.killedBuckets, task)
		c.mu.Unlock()
	}()

	var err error
	for attempt := range shared.MaxFlushRetries {
		err = c.store.SavePredictions(context.Background(), b.rows)
		if err == nil {
			break
		}
		c.log.Errorw("Failed to save predictions", "error", err, "attempt", attempt+1)
		if attempt+1 < shared.MaxFlushRetries {
			time.Sleep(c.retryPause)
		}
	}
	if err != nil {
		c.log.Errorw("Dropping prediction bucket", "error", err, "task", task, "rows", len(b.rows))
		metrics.RecorderFlushes.WithLabelValues("failed").Inc()
		return 0
	}
	metrics.RecorderFlushes.WithLabelValues("success").Inc()
	c.log.Infow("Flushed bucket", "task", task, "rows", len(b.rows))
	return 0
}

// Shutdown stops pending timers and flushes every bucket before returning.
func (c *PredictionCache) Shutdown() {
	c.log.Info("Shutting down prediction cache")
	c.mu.Lock()
	var tasks []pipeline.Task
	for task, b := range c.buckets {
		if b.timer != nil && b.timer.Stop() {
			c.pending.Done()
		}
		tasks = append(tasks, task)
	}
	c.mu.Unlock()

	wg := sync.WaitGroup{}
	for _, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.flushWithRetry(task)
		}()
	}
	wg.Wait()
	c.pending.Wait()
}
