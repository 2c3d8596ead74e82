package metric_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/tnvs/internal/domain/metric"
	"github.com/okian/tnvs/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func perfectSet() model.MetricSet {
	set := model.MetricSet{}
	for _, d := range metric.Definitions() {
		switch d.Kind {
		case metric.Rating:
			set[d.Name] = 5
		case metric.InvertedRate:
			set[d.Name] = 0
		default:
			set[d.Name] = 1
		}
	}
	return set
}

func TestDefinitions(t *testing.T) {
	Convey("Given the metric catalogue", t, func() {
		defs := metric.Definitions()

		Convey("Then there are twelve metrics, three per category", func() {
			So(len(defs), ShouldEqual, 12)
			perCategory := map[model.Category]int{}
			for _, d := range defs {
				perCategory[d.Category]++
			}
			So(perCategory[model.VehicleUtilization], ShouldEqual, 3)
			So(perCategory[model.DriverManagement], ShouldEqual, 3)
			So(perCategory[model.ComplianceSafety], ShouldEqual, 3)
			So(perCategory[model.PlatformContribution], ShouldEqual, 3)
		})

		Convey("Then normalisation handles ratings and inverted rates", func() {
			csat, _ := metric.Lookup(metric.CustomerSatisfaction)
			So(csat.Normalize(5), ShouldEqual, 1)
			So(csat.Normalize(2.5), ShouldEqual, 0.5)

			incidents, _ := metric.Lookup(metric.SafetyIncidentRate)
			So(incidents.Normalize(0), ShouldEqual, 1)
			So(incidents.Normalize(1), ShouldEqual, 0)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given a complete metric set", t, func() {
		set := perfectSet()

		Convey("When every value is within range", func() {
			Convey("Then validation passes", func() {
				So(metric.Validate(set), ShouldBeNil)
				So(metric.Quality(set), ShouldEqual, 1)
			})
		})

		Convey("When customer_satisfaction exceeds 5", func() {
			set[metric.CustomerSatisfaction] = 5.1
			err := metric.Validate(set)

			Convey("Then it fails naming the field", func() {
				So(errors.Is(err, metric.ErrInvalidMetrics), ShouldBeTrue)
				var invalid *metric.InvalidMetricsError
				So(errors.As(err, &invalid), ShouldBeTrue)
				So(invalid.FieldNames(), ShouldResemble, []string{metric.CustomerSatisfaction})
				So(invalid.Fields[0].Reason, ShouldEqual, metric.ReasonOutOfRange)
			})
		})

		Convey("When a fraction is negative and another is NaN", func() {
			set[metric.FleetUtilizationRate] = -0.1
			set[metric.PeakHourAvailability] = math.NaN()
			err := metric.Validate(set)

			Convey("Then both are reported", func() {
				var invalid *metric.InvalidMetricsError
				So(errors.As(err, &invalid), ShouldBeTrue)
				So(invalid.FieldNames(), ShouldContain, metric.FleetUtilizationRate)
				So(invalid.FieldNames(), ShouldContain, metric.PeakHourAvailability)
				So(err.Error(), ShouldContainSubstring, "fleet_utilization_rate")
			})
		})

		Convey("When only a subset is present", func() {
			delete(set, metric.SafetyIncidentRate)
			delete(set, metric.DriverRetentionRate)
			err := metric.Validate(set)

			Convey("Then it is invalid rather than defaulted", func() {
				var invalid *metric.InvalidMetricsError
				So(errors.As(err, &invalid), ShouldBeTrue)
				So(len(invalid.Fields), ShouldEqual, 2)
				So(invalid.Fields[0].Reason, ShouldEqual, metric.ReasonMissing)
			})

			Convey("And quality is still computed", func() {
				So(metric.Quality(set), ShouldAlmostEqual, 10.0/12.0, 1e-9)
			})
		})

		Convey("When an unknown metric is included", func() {
			set["weather_bonus"] = 1
			err := metric.Validate(set)

			Convey("Then it is rejected", func() {
				var invalid *metric.InvalidMetricsError
				So(errors.As(err, &invalid), ShouldBeTrue)
				So(invalid.Fields[0].Reason, ShouldEqual, metric.ReasonUnknown)
			})
		})
	})
}
