package filter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"inference-filter/internal/metrics"
	"inference-filter/internal/pipeline"
	"inference-filter/internal/shared"

	"go.uber.org/zap"
)

// Phase is the position of an exchange in its linear lifecycle.
type Phase int

const (
	PhaseAwaitingBody Phase = iota
	PhaseClassifying
	// PhaseAnnotated is terminal: the prediction, or its absence, is final.
	PhaseAnnotated
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingBody:
		return "awaiting_body"
	case PhaseClassifying:
		return "classifying"
	}
	return "annotated"
}

// Exchange is the per-exchange context. The host delivers its events
// sequentially; it is never used from two goroutines at once.
type Exchange struct {
	ctx  context.Context
	id   string
	f    *Factory
	host Host
	log  *zap.SugaredLogger

	phase      Phase
	acc        *Accumulator
	encoding   string
	started    time.Time
	prediction *pipeline.PredictionResult
	err        error

	inflight     bool
	classified   bool
	replied      bool
	annotated    bool
	done         bool
	inputBytes   int
	classifyTime time.Duration
}

func (e *Exchange) ID() string { return e.id }

func (e *Exchange) Phase() Phase { return e.phase }

// Prediction returns the stored prediction, or nil.
func (e *Exchange) Prediction() *pipeline.PredictionResult { return e.prediction }

// Err returns the failure that left the exchange without a prediction.
func (e *Exchange) Err() error { return e.err }

// InputBytes is the size of the input handed to the pipeline.
func (e *Exchange) InputBytes() int { return e.inputBytes }

// Replied reports whether the exchange was answered locally.
func (e *Exchange) Replied() bool { return e.replied }

func (e *Exchange) OnRequestHeaders(endOfStream bool) Action {
	metrics.InflightExchanges.Inc()
	e.inflight = true
	e.started = e.f.now()
	hdr := e.host.RequestHeaders()
	src := e.f.cfg.Source

	switch src.Kind {
	case SourceHeader:
		vals, ok := hdr[http.CanonicalHeaderKey(src.Name)]
		value := ""
		if len(vals) > 0 {
			value = vals[0]
		}
		return e.classifyInline(value, ok && len(vals) > 0)
	case SourceQuery:
		u, err := url.ParseRequestURI(e.host.RequestPath())
		if err != nil {
			return e.classifyInline("", false)
		}
		q := u.Query()
		return e.classifyInline(q.Get(src.Name), q.Has(src.Name))
	}

	e.encoding = hdr.Get("Content-Encoding")
	if endOfStream {
		return e.absentInput()
	}
	if limit := e.f.cfg.MaxBodyBytes; limit > 0 {
		if n, err := strconv.ParseInt(hdr.Get("Content-Length"), 10, 64); err == nil && n > int64(limit) {
			e.fail(shared.DecodeError(fmt.Errorf("content-length %d: %w", n, shared.ErrBodyTooLarge)))
			return ActionContinue
		}
	}
	e.acc = NewAccumulator(e.f.cfg.MaxBodyBytes)
	return ActionContinue
}

func (e *Exchange) OnRequestBody(bodySize int, endOfStream bool) Action {
	if e.phase != PhaseAwaitingBody || e.acc == nil {
		return ActionContinue
	}
	if d := e.f.cfg.MaxBufferDuration; d > 0 && e.f.now().Sub(e.started) > d {
		e.fail(shared.DecodeError(shared.ErrBufferTimeout))
		return ActionContinue
	}

	var chunk []byte
	if bodySize > 0 {
		var err error
		chunk, err = e.host.RequestBody(0, bodySize)
		if err != nil {
			e.fail(shared.DecodeError(fmt.Errorf("reading body chunk: %w", err)))
			return ActionContinue
		}
	}

	payload, complete, err := e.acc.Append(chunk, endOfStream)
	if err != nil {
		e.fail(shared.DecodeError(err))
		return ActionContinue
	}
	if !complete {
		return ActionPause
	}
	e.acc = nil
	if len(payload) == 0 && e.f.Task() == pipeline.TaskText {
		return e.reply(shared.ErrEmptyInput)
	}
	return e.classify(payload, e.encoding)
}

func (e *Exchange) OnResponseHeaders() Action {
	if e.prediction == nil || e.annotated {
		return ActionContinue
	}
	e.f.cfg.Annotator.Annotate(e.host, e.prediction)
	e.annotated = true
	return ActionContinue
}

// OnDone releases the exchange's buffers and reports its outcome. Further
// calls are no-ops.
func (e *Exchange) OnDone() {
	if e.done {
		return
	}
	e.done = true
	if e.acc != nil {
		e.acc.Release()
		e.acc = nil
	}
	if e.inflight {
		metrics.InflightExchanges.Dec()
	}

	task := string(e.f.Task())
	metrics.ExchangeCount.WithLabelValues(task, e.outcome()).Inc()
	if e.f.recorder != nil && e.classified {
		out := Outcome{
			ExchangeID:   e.id,
			Task:         e.f.Task(),
			Prediction:   e.prediction,
			InputBytes:   e.inputBytes,
			ClassifyTime: e.classifyTime,
			CreatedAt:    e.started,
		}
		if e.err != nil {
			out.ErrorKind = shared.KindOf(e.err)
		}
		e.f.recorder.Record(out)
	}
}

func (e *Exchange) outcome() string {
	switch {
	case e.replied:
		return "rejected"
	case e.prediction != nil:
		return "predicted"
	case e.err != nil:
		return "failed"
	}
	return "skipped"
}

// classifyInline handles input carried in a header or query parameter; the
// pipeline runs on the request-headers event.
func (e *Exchange) classifyInline(value string, present bool) Action {
	if !present {
		return e.absentInput()
	}
	if value == "" {
		return e.reply(shared.ErrEmptyInput)
	}
	return e.classify([]byte(value), "")
}

func (e *Exchange) absentInput() Action {
	if e.f.Task() == pipeline.TaskText {
		return e.reply(shared.ErrNoInput)
	}
	e.phase = PhaseAnnotated
	return ActionContinue
}

func (e *Exchange) classify(data []byte, encoding string) Action {
	e.phase = PhaseClassifying
	e.classified = true
	e.inputBytes = len(data)
	task := string(e.f.Task())
	metrics.BufferedBytes.WithLabelValues(task).Observe(float64(len(data)))

	ctx := e.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if t := e.f.cfg.InferenceTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	start := time.Now()
	res, err := e.f.pipeline.Classify(ctx, pipeline.Input{Data: data, ContentEncoding: encoding})
	e.classifyTime = time.Since(start)
	metrics.InferenceDuration.WithLabelValues(task).Observe(e.classifyTime.Seconds())

	if err != nil {
		var rerr *shared.RequestError
		if errors.As(err, &rerr) {
			e.classified = false
			return e.reply(rerr)
		}
		e.fail(err)
		return ActionContinue
	}
	e.setPrediction(res)
	e.phase = PhaseAnnotated
	return ActionContinue
}

func (e *Exchange) setPrediction(res *pipeline.PredictionResult) {
	if e.prediction != nil {
		e.log.Errorw("prediction already stored, ignoring second result", "label_index", res.LabelIndex)
		return
	}
	e.prediction = res
	label := strconv.Itoa(res.LabelIndex)
	if res.LabelName != "" {
		label = res.LabelName
	}
	metrics.PredictionCount.WithLabelValues(string(e.f.Task()), label).Inc()
	e.log.Debugw("stored prediction", "label_index", res.LabelIndex, "label_name", res.LabelName, "confidence", res.Confidence, "duration", e.classifyTime.String())
}

// fail ends classification without a prediction. The exchange keeps
// flowing; the failure is only logged and counted.
func (e *Exchange) fail(err error) {
	e.err = err
	e.phase = PhaseAnnotated
	if e.acc != nil {
		e.acc.Release()
		e.acc = nil
	}
	kind := shared.KindOf(err)
	metrics.ErrorCount.WithLabelValues(string(e.f.Task()), string(kind)).Inc()
	e.log.Warnw("classification failed", "error_kind", kind, "error", err.Error())
}

// reply answers the exchange locally with a plain-text error.
func (e *Exchange) reply(rerr *shared.RequestError) Action {
	e.err = rerr
	e.replied = true
	e.phase = PhaseAnnotated
	hdr := http.Header{}
	hdr.Set(shared.PoweredByHeader, shared.PoweredByValue)
	hdr.Set("Content-Type", "text/plain; charset=utf-8")
	e.host.SendResponse(rerr.StatusCode, hdr, []byte(rerr.Err.Error()+"\r\n"))
	return ActionPause
}
