// Package metric declares the twelve operational metrics and validates
// metric sets against their declared ranges.
package metric

import (
	"math"
	"sort"

	"github.com/okian/tnvs/internal/domain/model"
)

// Metric names.
const (
	FleetUtilizationRate      = "fleet_utilization_rate"
	ActiveVehicleRatio        = "active_vehicle_ratio"
	OnlineHoursRatio          = "online_hours_ratio"
	DriverRetentionRate       = "driver_retention_rate"
	DriverAttendanceRate      = "driver_attendance_rate"
	DriverTrainingCompletion  = "driver_training_completion"
	DocumentComplianceRate    = "document_compliance_rate"
	VehicleInspectionPassRate = "vehicle_inspection_pass_rate"
	SafetyIncidentRate        = "safety_incident_rate"
	BookingCompletionRate     = "booking_completion_rate"
	CustomerSatisfaction      = "customer_satisfaction"
	PeakHourAvailability      = "peak_hour_availability"
)

// Kind is the declared range family of a metric.
type Kind int

const (
	// Fraction lies in [0,1], higher is better.
	Fraction Kind = iota
	// Rating lies in [0,5], higher is better.
	Rating
	// InvertedRate lies in [0,1], lower is better.
	InvertedRate
)

// Definition describes one required metric.
type Definition struct {
	Name     string
	Category model.Category
	Kind     Kind
}

// Bounds returns the inclusive valid range of the metric.
func (d Definition) Bounds() (lo, hi float64) {
	if d.Kind == Rating {
		return 0, 5
	}
	return 0, 1
}

// Normalize maps a raw value onto [0,1] where 1 is best.
func (d Definition) Normalize(v float64) float64 {
	switch d.Kind {
	case Rating:
		v /= 5
	case InvertedRate:
		v = 1 - v
	}
	return clamp01(v)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var definitions = []Definition{
	{FleetUtilizationRate, model.VehicleUtilization, Fraction},
	{ActiveVehicleRatio, model.VehicleUtilization, Fraction},
	{OnlineHoursRatio, model.VehicleUtilization, Fraction},
	{DriverRetentionRate, model.DriverManagement, Fraction},
	{DriverAttendanceRate, model.DriverManagement, Fraction},
	{DriverTrainingCompletion, model.DriverManagement, Fraction},
	{DocumentComplianceRate, model.ComplianceSafety, Fraction},
	{VehicleInspectionPassRate, model.ComplianceSafety, Fraction},
	{SafetyIncidentRate, model.ComplianceSafety, InvertedRate},
	{BookingCompletionRate, model.PlatformContribution, Fraction},
	{CustomerSatisfaction, model.PlatformContribution, Rating},
	{PeakHourAvailability, model.PlatformContribution, Fraction},
}

var byName = func() map[string]Definition {
	out := make(map[string]Definition, len(definitions))
	for _, d := range definitions {
		out[d.Name] = d
	}
	return out
}()

// Definitions returns the required metrics in category order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Lookup returns the definition of a metric by name.
func Lookup(name string) (Definition, bool) {
	d, ok := byName[name]
	return d, ok
}

// Validate checks that set holds exactly the required metrics, each within
// its declared range. All offending fields are reported in one error.
func Validate(set model.MetricSet) error {
	var problems []FieldError
	for _, d := range definitions {
		v, ok := set[d.Name]
		if !ok {
			problems = append(problems, FieldError{Metric: d.Name, Reason: ReasonMissing})
			continue
		}
		lo, hi := d.Bounds()
		if math.IsNaN(v) || math.IsInf(v, 0) || v < lo || v > hi {
			problems = append(problems, FieldError{Metric: d.Name, Reason: ReasonOutOfRange, Value: v})
		}
	}
	var unknown []string
	for name := range set {
		if _, ok := byName[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		problems = append(problems, FieldError{Metric: name, Reason: ReasonUnknown, Value: set[name]})
	}
	if len(problems) > 0 {
		return &InvalidMetricsError{Fields: problems}
	}
	return nil
}

// Quality returns the fraction of required metrics that are present and in
// range. It is meant for exploratory reads and never gates scoring.
func Quality(set model.MetricSet) float64 {
	good := 0
	for _, d := range definitions {
		v, ok := set[d.Name]
		if !ok {
			continue
		}
		lo, hi := d.Bounds()
		if !math.IsNaN(v) && v >= lo && v <= hi {
			good++
		}
	}
	return float64(good) / float64(len(definitions))
}
