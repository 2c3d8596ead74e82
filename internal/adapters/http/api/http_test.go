package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/okian/tnvs/internal/adapters/http/api"
	service "github.com/okian/tnvs/internal/app"
	"github.com/okian/tnvs/internal/config"
	"github.com/okian/tnvs/internal/domain/metric"
	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/money"
	"github.com/okian/tnvs/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
	gin.SetMode(gin.TestMode)
}

var now = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.New(context.Background())
	cfg.WorkerCount = 2
	cfg.QueueSize = 16
	cfg.Operators = []config.OperatorSeed{
		{ID: "op-1", Region: "NCR", Type: "individual", Tier: "tier_1", TenureMonths: 12, PaymentConsistency: 0.96, UtilizationPercentile: 80},
		{ID: "op-2", Region: "CEB", Type: "corporate", Tier: "tier_2", TenureMonths: 2, PaymentConsistency: 0.5, UtilizationPercentile: 10},
	}
	return cfg
}

func metricSet(fraction, rating, incidents float64) map[string]float64 {
	set := map[string]float64{}
	for _, d := range metric.Definitions() {
		switch d.Kind {
		case metric.Rating:
			set[d.Name] = rating
		case metric.InvertedRate:
			set[d.Name] = incidents
		default:
			set[d.Name] = fraction
		}
	}
	return set
}

func newRouter(svc *service.Service) *gin.Engine {
	r := gin.New()
	api.NewServer(svc, svc, api.WithLogger(logger.Nop())).Register(context.Background(), r)
	return r
}

func startRouter() (*gin.Engine, *service.Service) {
	svc := service.New(
		service.WithConfig(testConfig()),
		service.WithClock(func() time.Time { return now }),
	)
	So(svc.Start(context.Background()), ShouldBeNil)
	return newRouter(svc), svc
}

func doRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			panic(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](w *httptest.ResponseRecorder) T {
	var v T
	So(json.Unmarshal(w.Body.Bytes(), &v), ShouldBeNil)
	return v
}

type errorBody struct {
	Code    string           `json:"code"`
	Message string           `json:"message"`
	Fields  []map[string]any `json:"fields"`
}

func eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestAPI_Operational(t *testing.T) {
	Convey("Given a router over a started service", t, func() {
		r, svc := startRouter()
		defer svc.Stop()

		Convey("When checking health", func() {
			w := doRequest(r, http.MethodGet, "/healthz", nil)

			Convey("Then it reports ok", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
			})
		})

		Convey("When reading stats", func() {
			w := doRequest(r, http.MethodGet, "/stats", nil)

			Convey("Then the service state is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				stats := decode[map[string]any](w)
				So(stats["started"], ShouldEqual, true)
				So(stats["storeBackend"], ShouldEqual, "memory")
			})
		})

		Convey("When scraping metrics after a request", func() {
			doRequest(r, http.MethodGet, "/healthz", nil)
			w := doRequest(r, http.MethodGet, "/metrics", nil)

			Convey("Then the HTTP counters are exposed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "/healthz")
			})
		})

		Convey("When a handler panics", func() {
			r.GET("/boom", func(*gin.Context) { panic("boom") })
			w := doRequest(r, http.MethodGet, "/boom", nil)

			Convey("Then the recovery middleware answers 500", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decode[errorBody](w).Code, ShouldEqual, "internal")
			})
		})
	})

	Convey("Given a router over a service that was never started", t, func() {
		svc := service.New(service.WithConfig(testConfig()))
		r := newRouter(svc)

		Convey("When a business route is called", func() {
			w := doRequest(r, http.MethodGet, "/v1/operators/op-1/wallet", nil)

			Convey("Then it is unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})
	})
}

func TestAPI_Scores(t *testing.T) {
	Convey("Given a router over a started service", t, func() {
		r, svc := startRouter()
		defer svc.Stop()

		Convey("When metrics are submitted synchronously", func() {
			w := doRequest(r, http.MethodPost, "/v1/operators/op-1/metrics?sync=true", map[string]any{
				"period": "2025-06", "frequency": "monthly", "metrics": metricSet(1, 5, 0),
			})

			Convey("Then the score is returned and stored", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				res := decode[service.ScoreResult](w)
				So(res.Score.TotalScore, ShouldEqual, 100)
				So(res.Score.Tier, ShouldEqual, model.Tier3)

				got := doRequest(r, http.MethodGet, "/v1/operators/op-1/score?period=2025-06&frequency=monthly", nil)
				So(got.Code, ShouldEqual, http.StatusOK)
				So(decode[model.PerformanceScore](got).Tier, ShouldEqual, model.Tier3)

				tierResp := doRequest(r, http.MethodGet, "/v1/operators/op-1/tier", nil)
				So(tierResp.Code, ShouldEqual, http.StatusOK)
				So(tierResp.Body.String(), ShouldContainSubstring, `"status":"qualified"`)
			})

			Convey("And finalizing freezes the period", func() {
				fin := doRequest(r, http.MethodPost, "/v1/operators/op-1/scores/finalize", map[string]string{
					"period": "2025-06", "frequency": "monthly",
				})
				So(fin.Code, ShouldEqual, http.StatusOK)
				So(decode[model.PerformanceScore](fin).IsFinal, ShouldBeTrue)

				again := doRequest(r, http.MethodPost, "/v1/operators/op-1/metrics?sync=true", map[string]any{
					"period": "2025-06", "frequency": "monthly", "metrics": metricSet(0, 0, 1),
				})
				So(again.Code, ShouldEqual, http.StatusConflict)
			})
		})

		Convey("When metrics are submitted asynchronously", func() {
			w := doRequest(r, http.MethodPost, "/v1/operators/op-1/metrics", map[string]any{
				"period": "2025-W27", "frequency": "weekly", "metrics": metricSet(0.5, 2.5, 0.5),
			})

			Convey("Then they are accepted and scored by a worker", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Body.String(), ShouldContainSubstring, `"status":"queued"`)
				var latest *httptest.ResponseRecorder
				So(eventually(2*time.Second, func() bool {
					latest = doRequest(r, http.MethodGet, "/v1/operators/op-1/score", nil)
					return latest.Code == http.StatusOK
				}), ShouldBeTrue)
				So(decode[model.PerformanceScore](latest).TotalScore, ShouldEqual, 50)
			})
		})

		Convey("When a metric is missing", func() {
			set := metricSet(1, 5, 0)
			delete(set, metric.CustomerSatisfaction)
			w := doRequest(r, http.MethodPost, "/v1/operators/op-1/metrics", map[string]any{
				"period": "2025-06", "frequency": "monthly", "metrics": set,
			})

			Convey("Then the offending metric is listed", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				body := decode[errorBody](w)
				So(body.Code, ShouldEqual, "invalid_metrics")
				So(len(body.Fields), ShouldEqual, 1)
				So(body.Fields[0]["metric"], ShouldEqual, metric.CustomerSatisfaction)
			})
		})

		Convey("When the request is malformed", func() {
			badJSON := doRequest(r, http.MethodPost, "/v1/operators/op-1/metrics", `{"period":`)
			badPeriod := doRequest(r, http.MethodPost, "/v1/operators/op-1/metrics", map[string]any{
				"period": "2025-6", "frequency": "monthly", "metrics": metricSet(1, 5, 0),
			})
			badFrequency := doRequest(r, http.MethodGet, "/v1/operators/op-1/score?period=2025-06&frequency=yearly", nil)

			Convey("Then each is a bad request", func() {
				So(badJSON.Code, ShouldEqual, http.StatusBadRequest)
				So(badPeriod.Code, ShouldEqual, http.StatusBadRequest)
				So(badFrequency.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the operator is unknown or has no score", func() {
			unknown := doRequest(r, http.MethodPost, "/v1/operators/op-x/metrics", map[string]any{
				"period": "2025-06", "frequency": "monthly", "metrics": metricSet(1, 5, 0),
			})
			noScore := doRequest(r, http.MethodGet, "/v1/operators/op-2/score", nil)

			Convey("Then both are not found", func() {
				So(unknown.Code, ShouldEqual, http.StatusNotFound)
				So(noScore.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When a profile is put", func() {
			ok := doRequest(r, http.MethodPut, "/v1/operators/op-3/profile", map[string]any{
				"region": "DVO", "type": "corporate", "active": true, "tier": "tier_2",
			})
			mismatch := doRequest(r, http.MethodPut, "/v1/operators/op-3/profile", map[string]any{
				"id": "op-4", "type": "corporate", "active": true,
			})
			invalid := doRequest(r, http.MethodPut, "/v1/operators/op-5/profile", map[string]any{
				"type": "partnership",
			})

			Convey("Then valid profiles are stored and the rest rejected", func() {
				So(ok.Code, ShouldEqual, http.StatusOK)
				got := doRequest(r, http.MethodGet, "/v1/operators/op-3/profile", nil)
				So(got.Code, ShouldEqual, http.StatusOK)
				So(decode[model.OperatorProfile](got).Region, ShouldEqual, "DVO")
				So(mismatch.Code, ShouldEqual, http.StatusBadRequest)
				So(invalid.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

type walletBody struct {
	Balance      string `json:"balance"`
	Available    string `json:"available"`
	Reserved     string `json:"reserved"`
	BoundaryFees string `json:"boundary_fees"`
}

func TestAPI_MoneyFlow(t *testing.T) {
	Convey("Given an operator scored into tier_3", t, func() {
		r, svc := startRouter()
		defer svc.Stop()
		w := doRequest(r, http.MethodPost, "/v1/operators/op-1/metrics?sync=true", map[string]any{
			"period": "2025-06", "frequency": "monthly", "metrics": metricSet(1, 5, 0),
		})
		So(w.Code, ShouldEqual, http.StatusCreated)

		booking := map[string]any{"operator_id": "op-1", "booking_id": "bk-1", "base_fare": "1000.00"}

		Convey("When a booking is delivered twice", func() {
			first := doRequest(r, http.MethodPost, "/v1/bookings/completed", booking)
			second := doRequest(r, http.MethodPost, "/v1/bookings/completed", booking)

			Convey("Then the commission is credited once", func() {
				So(first.Code, ShouldEqual, http.StatusCreated)
				So(second.Code, ShouldEqual, http.StatusOK)
				So(second.Body.String(), ShouldContainSubstring, `"duplicate":true`)

				wallet := doRequest(r, http.MethodGet, "/v1/operators/op-1/wallet", nil)
				So(wallet.Code, ShouldEqual, http.StatusOK)
				So(money.Format(money.MustParse(decode[walletBody](wallet).Balance)), ShouldEqual, "30.00")
			})
		})

		Convey("When another operator reuses the booking id", func() {
			first := doRequest(r, http.MethodPost, "/v1/bookings/completed", booking)
			other := doRequest(r, http.MethodPost, "/v1/bookings/completed", map[string]any{
				"operator_id": "op-2", "booking_id": "bk-1", "base_fare": "900.00",
			})

			Convey("Then it conflicts and op-2 is not shown op-1's credit", func() {
				So(first.Code, ShouldEqual, http.StatusCreated)
				So(other.Code, ShouldEqual, http.StatusConflict)
				So(decode[errorBody](other).Code, ShouldEqual, "conflict")
				So(other.Body.String(), ShouldNotContainSubstring, `"transaction"`)
			})
		})

		Convey("When the booking operator is unknown", func() {
			w := doRequest(r, http.MethodPost, "/v1/bookings/completed", map[string]any{
				"operator_id": "op-x", "booking_id": "bk-9", "base_fare": "100",
			})

			Convey("Then it is unprocessable", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			})
		})

		Convey("When a new tier_3 rate is added", func() {
			w := doRequest(r, http.MethodPost, "/v1/rates", map[string]any{
				"tier": "tier_3", "rate_percentage": "4.00", "min_performance_score": 90,
				"min_tenure_months": 12, "min_payment_consistency": 0.95,
				"min_utilization_percentile": 75, "effective_from": "2025-07-01",
			})
			credit := doRequest(r, http.MethodPost, "/v1/bookings/completed", booking)
			bad := doRequest(r, http.MethodPost, "/v1/rates", map[string]any{
				"tier": "tier_3", "rate_percentage": "140", "effective_from": "2025-07-01",
			})
			unknown := doRequest(r, http.MethodPost, "/v1/rates", map[string]any{
				"tier": "gold", "rate_percentage": "1", "effective_from": "2025-07-01",
			})

			Convey("Then bookings credit at the new rate", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(credit.Code, ShouldEqual, http.StatusCreated)
				wallet := doRequest(r, http.MethodGet, "/v1/operators/op-1/wallet", nil)
				So(money.Format(money.MustParse(decode[walletBody](wallet).Balance)), ShouldEqual, "40.00")
			})

			Convey("And out-of-range rows are rejected", func() {
				So(bad.Code, ShouldEqual, http.StatusBadRequest)
				So(unknown.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When boundary fees are posted", func() {
			fee := map[string]any{
				"operator_id": "op-1", "driver_id": "d-1", "fee_date": "2025-07-01",
				"driver_gross_earnings": "2000.00",
			}
			created := doRequest(r, http.MethodPost, "/v1/boundary-fees", fee)
			dup := doRequest(r, http.MethodPost, "/v1/boundary-fees", fee)
			invalid := doRequest(r, http.MethodPost, "/v1/boundary-fees", map[string]any{
				"operator_id": "op-1", "driver_id": "d-2", "fee_date": "07/01/2025", "trips_completed": -1,
			})

			Convey("Then one is recorded and the others rejected", func() {
				So(created.Code, ShouldEqual, http.StatusCreated)
				So(dup.Code, ShouldEqual, http.StatusConflict)
				So(invalid.Code, ShouldEqual, http.StatusBadRequest)
				So(decode[errorBody](invalid).Code, ShouldEqual, "invalid_boundary_fee")

				list := doRequest(r, http.MethodGet, "/v1/operators/op-1/boundary-fees", nil)
				So(list.Code, ShouldEqual, http.StatusOK)
				So(len(decode[[]model.BoundaryFee](list)), ShouldEqual, 1)

				wallet := decode[walletBody](doRequest(r, http.MethodGet, "/v1/operators/op-1/wallet", nil))
				So(money.Format(money.MustParse(wallet.BoundaryFees)), ShouldEqual, "600.00")
			})
		})

		Convey("When transactions are listed and reconciled", func() {
			doRequest(r, http.MethodPost, "/v1/bookings/completed", booking)
			adj := doRequest(r, http.MethodPost, "/v1/operators/op-1/adjustments", map[string]any{
				"type": "incentive_bonus", "amount": "20", "reason": "weekend drive",
			})
			So(adj.Code, ShouldEqual, http.StatusCreated)

			list := doRequest(r, http.MethodGet, "/v1/operators/op-1/transactions?type=commission_earned&from=2025-07-01&to=2025-07-01", nil)
			So(list.Code, ShouldEqual, http.StatusOK)
			body := decode[struct {
				Count        int                 `json:"count"`
				Transactions []model.Transaction `json:"transactions"`
			}](list)

			Convey("Then the filter applies and the flag sticks", func() {
				So(body.Count, ShouldEqual, 1)
				rec := doRequest(r, http.MethodPost, "/v1/transactions/"+body.Transactions[0].ID+"/reconcile", nil)
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(decode[model.Transaction](rec).Reconciled, ShouldBeTrue)

				So(doRequest(r, http.MethodPost, "/v1/transactions/tx-missing/reconcile", nil).Code, ShouldEqual, http.StatusNotFound)
				So(doRequest(r, http.MethodGet, "/v1/operators/op-1/transactions?type=tip", nil).Code, ShouldEqual, http.StatusBadRequest)
				So(doRequest(r, http.MethodGet, "/v1/operators/op-1/transactions?from=yesterday", nil).Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When earnings are paid out", func() {
			doRequest(r, http.MethodPost, "/v1/bookings/completed", map[string]any{
				"operator_id": "op-1", "booking_id": "bk-2", "base_fare": "1000.00",
			})
			doRequest(r, http.MethodPost, "/v1/operators/op-1/adjustments", map[string]any{
				"type": "incentive_bonus", "amount": "20", "reason": "weekend drive",
			})
			req := doRequest(r, http.MethodPost, "/v1/payouts", map[string]any{
				"operator_id": "op-1", "period_start": "2025-07-01", "period_end": "2025-07-01",
				"payment_method": "bank_transfer",
				"destination":    map[string]string{"bank_name": "BDO", "account_name": "Op One", "account_number": "001234567890"},
			})
			So(req.Code, ShouldEqual, http.StatusCreated)
			p := decode[model.Payout](req)

			Convey("Then the payout moves through approval and processing", func() {
				So(money.Format(p.PayoutAmount), ShouldEqual, "49.50")
				So(p.Status, ShouldEqual, model.PayoutPending)

				approved := doRequest(r, http.MethodPost, "/v1/payouts/"+p.ID+"/approve", map[string]string{"approved_by": "finance@tnvs"})
				So(approved.Code, ShouldEqual, http.StatusOK)
				again := doRequest(r, http.MethodPost, "/v1/payouts/"+p.ID+"/approve", map[string]string{"approved_by": "finance@tnvs"})
				So(again.Code, ShouldEqual, http.StatusConflict)

				processed := doRequest(r, http.MethodPost, "/v1/payouts/process", nil)
				So(processed.Code, ShouldEqual, http.StatusOK)
				So(processed.Body.String(), ShouldContainSubstring, p.ID)

				got := doRequest(r, http.MethodGet, "/v1/payouts/"+p.ID, nil)
				So(got.Code, ShouldEqual, http.StatusOK)
				So(decode[model.Payout](got).Status, ShouldEqual, model.PayoutCompleted)

				list := doRequest(r, http.MethodGet, "/v1/operators/op-1/payouts", nil)
				So(len(decode[[]model.Payout](list)), ShouldEqual, 1)

				wallet := decode[walletBody](doRequest(r, http.MethodGet, "/v1/operators/op-1/wallet", nil))
				So(money.Format(money.MustParse(wallet.Balance)), ShouldEqual, "0.50")
			})
		})

		Convey("When a payout request cannot be served", func() {
			nothing := doRequest(r, http.MethodPost, "/v1/payouts", map[string]any{
				"operator_id": "op-2", "period_start": "2025-07-01", "period_end": "2025-07-01",
				"payment_method": "e_wallet",
				"destination":    map[string]string{"provider": "GCash", "mobile_number": "09171234567"},
			})
			badDate := doRequest(r, http.MethodPost, "/v1/payouts", map[string]any{
				"operator_id": "op-1", "period_start": "July", "period_end": "2025-07-01",
				"payment_method": "bank_transfer",
			})
			missing := doRequest(r, http.MethodGet, "/v1/payouts/po-missing", nil)

			Convey("Then each maps to its status", func() {
				So(nothing.Code, ShouldEqual, http.StatusUnprocessableEntity)
				So(badDate.Code, ShouldEqual, http.StatusBadRequest)
				So(strings.Contains(badDate.Body.String(), "period_start"), ShouldBeTrue)
				So(missing.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}
