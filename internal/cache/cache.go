// Package cache memoizes predictions in redis, keyed by a digest of the
// classified input.
package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"inference-filter/internal/metrics"
	"inference-filter/internal/pipeline"
	"inference-filter/internal/shared"

	"github.com/redis/go-redis/v9"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// Client is the part of the redis client the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Pipeline wraps another pipeline and serves repeated inputs from redis.
// Cache failures fall through to the wrapped pipeline.
type Pipeline struct {
	next      pipeline.Pipeline
	client    Client
	namespace string
	ttl       time.Duration
	log       *zap.SugaredLogger
}

// New wraps next. namespace identifies the model so predictions from
// different artifacts never share keys.
func New(next pipeline.Pipeline, client Client, namespace string, ttl time.Duration, log *zap.SugaredLogger) *Pipeline {
	if ttl <= 0 {
		ttl = shared.PredictionCacheTTL
	}
	return &Pipeline{next: next, client: client, namespace: namespace, ttl: ttl, log: log}
}

func (p *Pipeline) Task() pipeline.Task { return p.next.Task() }

func (p *Pipeline) Classify(ctx context.Context, in pipeline.Input) (*pipeline.PredictionResult, error) {
	key := p.Key(in)

	lookupCtx, cancel := context.WithTimeout(ctx, shared.CacheOpTimeout)
	raw, err := p.client.Get(lookupCtx, key).Bytes()
	cancel()
	switch {
	case err == nil:
		var res pipeline.PredictionResult
		if err := json.Unmarshal(raw, &res); err == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			p.log.Debugw("Cache hit for prediction", "key", key)
			return &res, nil
		}
		metrics.CacheLookups.WithLabelValues("corrupt").Inc()
		p.log.Warnw("Failed to unmarshal cached prediction", "key", key, "error", err)
	case errors.Is(err, redis.Nil):
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		p.log.Debugw("Prediction cache unavailable", "error", err)
	}

	res, err := p.next.Classify(ctx, in)
	if err != nil {
		return nil, err
	}
	go func() {
		encoded, err := json.Marshal(res)
		if err != nil {
			p.log.Errorw("Error marshalling prediction", "error", err)
			return
		}
		setCtx, cancel := context.WithTimeout(context.Background(), shared.CacheOpTimeout)
		defer cancel()
		if err := p.client.Set(setCtx, key, encoded, p.ttl).Err(); err != nil {
			p.log.Debugw("Failed to cache prediction", "key", key, "error", err)
		}
	}()
	return res, nil
}

// Key derives the cache key from the task, namespace, content encoding and
// input bytes.
func (p *Pipeline) Key(in pipeline.Input) string {
	h := blake3.New()
	_, _ = h.Write([]byte(in.ContentEncoding))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(in.Data)
	return fmt.Sprintf("inference-filter:v1:prediction:%s:%s:%s", p.namespace, p.next.Task(), hex.EncodeToString(h.Sum(nil)))
}

// Namespace names the cache space of one deployment: the model artifact
// plus a digest of every option that changes a prediction. Deployments that
// share a redis only share predictions when all of these match.
func Namespace(opts pipeline.Options, model string, artifacts ...string) string {
	h := blake3.New()
	field := func(v string) {
		_, _ = h.Write([]byte(v))
		_, _ = h.Write([]byte{0})
	}
	field(model)
	for _, a := range artifacts {
		field(a)
	}
	field(string(opts.Task))
	switch {
	case opts.Softmax == nil:
		field("softmax=auto")
	case *opts.Softmax:
		field("softmax=true")
	default:
		field("softmax=false")
	}
	field(opts.Layout.String())
	field(strconv.Itoa(opts.Height))
	field(strconv.Itoa(opts.Width))
	for _, v := range opts.Mean {
		field(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	field("std")
	for _, v := range opts.Std {
		field(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	field(opts.TextJSONPath)
	if opts.Labels != nil {
		field(strconv.Itoa(opts.Labels.Offset))
		for _, e := range opts.Labels.Entries() {
			field(strconv.Itoa(e.Index))
			field(e.Name)
		}
	}
	return model + "-" + hex.EncodeToString(h.Sum(nil))[:16]
}
