package metric

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMetrics is the sentinel kind behind InvalidMetricsError.
var ErrInvalidMetrics = errors.New("invalid metrics")

// Reasons a metric is rejected.
const (
	ReasonMissing    = "missing"
	ReasonOutOfRange = "out_of_range"
	ReasonUnknown    = "unknown"
)

// FieldError describes one rejected metric.
type FieldError struct {
	Metric string  `json:"metric"`
	Reason string  `json:"reason"`
	Value  float64 `json:"value,omitempty"`
}

// InvalidMetricsError lists every metric that failed validation.
type InvalidMetricsError struct {
	Fields []FieldError
}

func (e *InvalidMetricsError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		if f.Reason == ReasonMissing {
			parts[i] = f.Metric + " (missing)"
			continue
		}
		parts[i] = fmt.Sprintf("%s (%s: %g)", f.Metric, f.Reason, f.Value)
	}
	return "invalid metrics: " + strings.Join(parts, ", ")
}

// Is makes errors.Is(err, ErrInvalidMetrics) hold.
func (e *InvalidMetricsError) Is(target error) bool {
	return target == ErrInvalidMetrics
}

// FieldNames returns the names of the offending metrics.
func (e *InvalidMetricsError) FieldNames() []string {
	out := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		out[i] = f.Metric
	}
	return out
}
