// Package ctx
package ctx

import (
	"fmt"
	"time"

	"inference-filter/internal/pipeline"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ContextLogValues should only be accessed for logging, and not for
// actual business logic, or any other logic
type ContextLogValues struct {
	// Added in base middleware
	ExchangeID       string
	Method           string
	Path             string
	StartTime        time.Time
	StatusCode       int
	ExchangeDuration time.Duration

	// Added by the classify middleware once the exchange is done
	Task       pipeline.Task
	Phase      string
	Prediction *pipeline.PredictionResult
	ErrorKind  string
	InputBytes int

	// Override log Log Level
	LogLevel string

	// Added dynamically
	Error error
}

// AddError adds errors to the error chain. Always add errors, even if only warnings.
// Log level is determined by the status code of the exchange
func (c *ContextLogValues) AddError(err error) {
	if c.Error == nil {
		c.Error = err
		return
	}
	c.Error = fmt.Errorf("%w: %w", err, c.Error)
}

func (c *ContextLogValues) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("exchange_id", c.ExchangeID)
	enc.AddString("method", c.Method)
	enc.AddString("path", c.Path)
	enc.AddTime("start_time", c.StartTime)
	enc.AddDuration("exchange_duration", c.ExchangeDuration)
	enc.AddInt("status_code", c.StatusCode)
	if c.Task != "" {
		enc.AddString("task", string(c.Task))
		enc.AddString("phase", c.Phase)
		enc.AddInt("input_bytes", c.InputBytes)
	}
	if c.Prediction != nil {
		enc.AddInt("label_index", c.Prediction.LabelIndex)
		enc.AddFloat64("confidence", c.Prediction.Confidence)
		if c.Prediction.LabelName != "" {
			enc.AddString("label_name", c.Prediction.LabelName)
		}
	}
	if c.ErrorKind != "" {
		enc.AddString("error_kind", c.ErrorKind)
	}
	if c.Error != nil {
		enc.AddString("error", c.Error.Error())
	}
	return nil
}

type Context struct {
	echo.Context
	Log       *zap.SugaredLogger
	Reqid     string
	LogValues *ContextLogValues
}
