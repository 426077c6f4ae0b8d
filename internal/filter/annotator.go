package filter

import (
	"strconv"

	"inference-filter/internal/pipeline"
)

// HeaderWriter is the slice of the host the annotator needs.
type HeaderWriter interface {
	AddResponseHeader(key, value string)
}

// Annotator writes a prediction into response headers.
type Annotator struct {
	LabelHeader      string
	ConfidenceHeader string
}

// Values returns the label and confidence header values for p. The label is
// the resolved name when one exists, otherwise the numeric index.
func (a Annotator) Values(p *pipeline.PredictionResult) (label, confidence string) {
	label = strconv.Itoa(p.LabelIndex)
	if p.LabelName != "" {
		label = p.LabelName
	}
	return label, strconv.FormatFloat(p.Confidence, 'f', -1, 32)
}

// Annotate adds the label and confidence headers for p and returns how many
// headers it added. Existing headers, including upstream values under the
// same names, are kept; the exchange calls it at most once.
func (a Annotator) Annotate(h HeaderWriter, p *pipeline.PredictionResult) int {
	if p == nil {
		return 0
	}
	label, confidence := a.Values(p)
	h.AddResponseHeader(a.LabelHeader, label)
	h.AddResponseHeader(a.ConfidenceHeader, confidence)
	return 2
}
