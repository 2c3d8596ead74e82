package model

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Frequency is the cadence a score was computed for.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// ErrInvalidPeriod reports a period string that does not match its frequency.
var ErrInvalidPeriod = errors.New("invalid period")

var weekPattern = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)

// ParseFrequency validates a frequency string.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case Daily, Weekly, Monthly:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown frequency %q", ErrInvalidPeriod, s)
	}
}

// ValidatePeriod checks period against the format of f:
// YYYY-MM-DD (daily), YYYY-Www (ISO week) or YYYY-MM (monthly).
func ValidatePeriod(f Frequency, period string) error {
	switch f {
	case Daily:
		if _, err := time.Parse(time.DateOnly, period); err != nil {
			return fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidPeriod, period)
		}
	case Monthly:
		if _, err := time.Parse("2006-01", period); err != nil {
			return fmt.Errorf("%w: %q is not YYYY-MM", ErrInvalidPeriod, period)
		}
	case Weekly:
		m := weekPattern.FindStringSubmatch(period)
		if m == nil {
			return fmt.Errorf("%w: %q is not YYYY-Www", ErrInvalidPeriod, period)
		}
		year, _ := strconv.Atoi(m[1])
		week, _ := strconv.Atoi(m[2])
		// December 28th always falls in the last ISO week of its year.
		_, last := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
		if week < 1 || week > last {
			return fmt.Errorf("%w: %q has no ISO week %d", ErrInvalidPeriod, period, week)
		}
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidPeriod, f)
	}
	return nil
}

// MetricSet maps a metric name to its raw value for one operator and period.
type MetricSet map[string]float64

// Clone returns an independent copy.
func (m MetricSet) Clone() MetricSet {
	out := make(MetricSet, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Category is one of the four scoring categories.
type Category string

const (
	VehicleUtilization   Category = "vehicle_utilization"
	DriverManagement     Category = "driver_management"
	ComplianceSafety     Category = "compliance_safety"
	PlatformContribution Category = "platform_contribution"
)

// QualificationStatus is the outcome of a tier evaluation.
type QualificationStatus string

const (
	Qualified    QualificationStatus = "qualified"
	UnderReview  QualificationStatus = "under_review"
	Probationary QualificationStatus = "probationary"
	Disqualified QualificationStatus = "disqualified"
)

// PerformanceScore is the scored result for (operator, period, frequency).
// Once IsFinal is set the record never changes.
type PerformanceScore struct {
	OperatorID           string              `json:"operator_id"`
	Period               string              `json:"period"`
	Frequency            Frequency           `json:"frequency"`
	VehicleUtilization   float64             `json:"vehicle_utilization_score"`
	DriverManagement     float64             `json:"driver_management_score"`
	ComplianceSafety     float64             `json:"compliance_safety_score"`
	PlatformContribution float64             `json:"platform_contribution_score"`
	TotalScore           float64             `json:"total_score"`
	Tier                 Tier                `json:"tier"`
	QualificationStatus  QualificationStatus `json:"qualification_status"`
	MetricSnapshot       MetricSet           `json:"metric_snapshot"`
	CalculatedAt         time.Time           `json:"calculated_at"`
	IsFinal              bool                `json:"is_final"`
}

// MetricSubmission is the payload of a metric submission flowing through the queue.
type MetricSubmission struct {
	SubmissionID string
	OperatorID   string
	Period       string
	Frequency    Frequency
	Metrics      MetricSet
	ReceivedAt   time.Time
}
