package filter

import (
	"context"
	"time"

	"inference-filter/internal/pipeline"
	"inference-filter/internal/shared"

	"go.uber.org/zap"
)

// Outcome summarizes a finished exchange for a Recorder.
type Outcome struct {
	ExchangeID   string
	Task         pipeline.Task
	Prediction   *pipeline.PredictionResult
	ErrorKind    shared.ErrorKind
	InputBytes   int
	ClassifyTime time.Duration
	CreatedAt    time.Time
}

// Recorder receives the outcome of every exchange that reached the
// pipeline. Record must not block the traffic path.
type Recorder interface {
	Record(Outcome)
}

// Factory holds the state shared by every exchange: configuration, the
// pipeline, and the outcome recorder.
type Factory struct {
	cfg      Config
	pipeline pipeline.Pipeline
	recorder Recorder
	log      *zap.SugaredLogger
	now      func() time.Time
}

type Option func(*Factory)

func WithRecorder(r Recorder) Option {
	return func(f *Factory) { f.recorder = r }
}

// WithClock replaces time.Now for buffering deadlines.
func WithClock(now func() time.Time) Option {
	return func(f *Factory) { f.now = now }
}

func NewFactory(cfg Config, p pipeline.Pipeline, log *zap.SugaredLogger, opts ...Option) (*Factory, error) {
	if err := cfg.Validate(p.Task()); err != nil {
		return nil, err
	}
	f := &Factory{
		cfg:      cfg,
		pipeline: p,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *Factory) Config() Config { return f.cfg }

func (f *Factory) Task() pipeline.Task { return f.pipeline.Task() }

// NewExchange creates the context for one exchange. ctx bounds inference
// for the exchange and is normally the inbound request's context.
func (f *Factory) NewExchange(ctx context.Context, id string, host Host) *Exchange {
	return &Exchange{
		ctx:   ctx,
		id:    id,
		f:     f,
		host:  host,
		log:   f.log.With("exchange_id", id),
		phase: PhaseAwaitingBody,
	}
}
