package payout_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/tnvs/internal/adapters/repository"
	"github.com/okian/tnvs/internal/domain/ledger"
	"github.com/okian/tnvs/internal/domain/model"
	"github.com/okian/tnvs/internal/domain/money"
	"github.com/okian/tnvs/internal/domain/operator"
	"github.com/okian/tnvs/internal/domain/payout"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

var (
	june1  = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	june30 = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
)

type fakeGateway struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []string
}

func (g *fakeGateway) Execute(_ context.Context, p model.Payout) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, p.ID)
	if err := g.fail[p.OperatorID]; err != nil {
		return "", err
	}
	return "ref-" + p.ID, nil
}

type fixture struct {
	engine  *payout.Engine
	ledger  *ledger.Ledger
	store   payout.Store
	dir     operator.Directory
	gateway *fakeGateway
}

func newFixture(opts ...payout.Option) fixture {
	return newFixtureWithStore(repository.NewMemoryPayouts(), opts...)
}

func newFixtureWithStore(store payout.Store, opts ...payout.Option) fixture {
	dir, err := operator.NewInMemoryDirectory(
		model.OperatorProfile{ID: "op-1", Type: model.OperatorIndividual, Active: true, Tier: model.Tier1},
		model.OperatorProfile{ID: "op-2", Type: model.OperatorCorporate, Active: true, Tier: model.Tier1},
	)
	So(err, ShouldBeNil)
	l := ledger.New(repository.NewMemoryLedger())
	gw := &fakeGateway{fail: map[string]error{}}
	e := payout.NewEngine(store, l, dir, gw, opts...)
	return fixture{engine: e, ledger: l, store: store, dir: dir, gateway: gw}
}

// oneToken lets the first call through and then blocks until ctx is done.
type oneToken struct {
	mu   sync.Mutex
	used bool
}

func (o *oneToken) Acquire(ctx context.Context) error {
	o.mu.Lock()
	if !o.used {
		o.used = true
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

// ctxStore refuses writes once ctx is done, like a database driver would.
type ctxStore struct {
	payout.Store
}

func (c ctxStore) Update(ctx context.Context, p model.Payout) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Store.Update(ctx, p)
}

// cancellingGateway cancels the batch while the call is in flight.
type cancellingGateway struct {
	cancel context.CancelFunc
}

func (g cancellingGateway) Execute(ctx context.Context, _ model.Payout) (string, error) {
	g.cancel()
	<-ctx.Done()
	return "", ctx.Err()
}

// slowGateway counts calls and holds each one briefly so batches overlap.
type slowGateway struct {
	mu    sync.Mutex
	calls int
}

func (g *slowGateway) Execute(_ context.Context, p model.Payout) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	return "ref-" + p.ID, nil
}

func (f fixture) credit(op string, typ model.TransactionType, amount string, at time.Time) {
	_, err := f.ledger.Post(context.Background(), model.Transaction{
		OperatorID: op, Type: typ, Amount: money.MustParse(amount), TransactionDate: at,
	})
	So(err, ShouldBeNil)
}

func bankRequest(op string) payout.Request {
	return payout.Request{
		OperatorID:    op,
		PeriodStart:   june1,
		PeriodEnd:     june30,
		PaymentMethod: model.BankTransfer,
		Destination:   model.Destination{BankName: "BDO", AccountName: "Juan Dela Cruz", AccountNumber: "001234567890"},
	}
}

func TestTransitions(t *testing.T) {
	Convey("Given the payout state machine", t, func() {
		So(payout.CanTransition(model.PayoutPending, model.PayoutApproved), ShouldBeTrue)
		So(payout.CanTransition(model.PayoutApproved, model.PayoutProcessing), ShouldBeTrue)
		So(payout.CanTransition(model.PayoutProcessing, model.PayoutCompleted), ShouldBeTrue)
		So(payout.CanTransition(model.PayoutProcessing, model.PayoutFailed), ShouldBeTrue)
		So(payout.CanTransition(model.PayoutPending, model.PayoutCompleted), ShouldBeFalse)
		So(payout.CanTransition(model.PayoutFailed, model.PayoutApproved), ShouldBeFalse)
		So(payout.CanTransition(model.PayoutCompleted, model.PayoutProcessing), ShouldBeFalse)
	})
}

func TestRequest(t *testing.T) {
	ctx := context.Background()

	Convey("Given an individual operator with June earnings", t, func() {
		f := newFixture()
		mid := june1.AddDate(0, 0, 14)
		f.credit("op-1", model.CommissionEarned, "1000.00", mid)
		f.credit("op-1", model.IncentiveBonus, "200.00", mid)
		f.credit("op-1", model.ManualAdjustment, "-50.00", mid)
		f.credit("op-1", model.PenaltyDeduction, "-150.00", mid)
		f.credit("op-1", model.CommissionEarned, "5.00", june30.AddDate(0, 0, 1))
		f.credit("op-1", model.BoundaryFeeTx, "20.00", mid)

		Convey("When a payout is requested for June", func() {
			p, err := f.engine.Request(ctx, bankRequest("op-1"))

			Convey("Then the breakdown follows the formula", func() {
				So(err, ShouldBeNil)
				So(p.Status, ShouldEqual, model.PayoutPending)
				So(money.Format(p.CommissionsAmount), ShouldEqual, "1000.00")
				So(money.Format(p.BonusesAmount), ShouldEqual, "200.00")
				So(money.Format(p.AdjustmentsAmount), ShouldEqual, "-50.00")
				So(money.Format(p.PenaltiesDeducted), ShouldEqual, "150.00")
				So(money.Format(p.TaxWithheld), ShouldEqual, "10.00")
				So(money.Format(p.PayoutAmount), ShouldEqual, "990.00")
			})

			Convey("And a second request cannot spend the reserved balance twice", func() {
				_, err := f.engine.Request(ctx, bankRequest("op-1"))
				var insufficient *payout.InsufficientBalanceError
				So(errors.As(err, &insufficient), ShouldBeTrue)
				So(errors.Is(err, payout.ErrInsufficientBalance), ShouldBeTrue)
				So(money.Format(insufficient.Available), ShouldEqual, "35.00")
			})
		})

		Convey("When a method fee is configured", func() {
			f := newFixture(payout.WithMethodFees(map[model.PaymentMethod]decimal.Decimal{model.BankTransfer: money.MustParse("15.00")}))
			f.credit("op-1", model.CommissionEarned, "100.00", mid)
			p, err := f.engine.Request(ctx, bankRequest("op-1"))

			Convey("Then it is deducted as other deductions", func() {
				So(err, ShouldBeNil)
				So(money.Format(p.OtherDeductions), ShouldEqual, "15.00")
				So(money.Format(p.PayoutAmount), ShouldEqual, "84.00")
			})
		})
	})

	Convey("Given a corporate operator", t, func() {
		f := newFixture()
		f.credit("op-2", model.CommissionEarned, "1000.00", june1)

		Convey("When a payout is requested", func() {
			p, err := f.engine.Request(ctx, bankRequest("op-2"))

			Convey("Then 2% is withheld", func() {
				So(err, ShouldBeNil)
				So(money.Format(p.TaxWithheld), ShouldEqual, "20.00")
				So(money.Format(p.PayoutAmount), ShouldEqual, "980.00")
			})
		})
	})

	Convey("Given penalties larger than earnings", t, func() {
		f := newFixture()
		f.credit("op-1", model.CommissionEarned, "100.00", june1)
		f.credit("op-1", model.PenaltyDeduction, "-300.00", june1)

		Convey("When a payout is requested", func() {
			_, err := f.engine.Request(ctx, bankRequest("op-1"))

			Convey("Then there is nothing to pay", func() {
				So(errors.Is(err, payout.ErrNothingToPay), ShouldBeTrue)
			})
		})
	})

	Convey("Given earnings exceeding the wallet balance", t, func() {
		f := newFixture()
		f.credit("op-1", model.CommissionEarned, "500.00", june1)
		f.credit("op-1", model.PayoutTx, "-400.00", june1.AddDate(0, -1, 0))

		Convey("When a payout is requested", func() {
			_, err := f.engine.Request(ctx, bankRequest("op-1"))

			Convey("Then the balance check fails and nothing is stored", func() {
				So(errors.Is(err, payout.ErrInsufficientBalance), ShouldBeTrue)
				list, _ := f.engine.ListByOperator(ctx, "op-1")
				So(list, ShouldBeEmpty)
			})
		})
	})

	Convey("Given destination details that do not fit the method", t, func() {
		f := newFixture()
		f.credit("op-1", model.CommissionEarned, "500.00", june1)

		Convey("When an e-wallet request has no mobile number", func() {
			req := bankRequest("op-1")
			req.PaymentMethod = model.EWallet
			req.Destination = model.Destination{Provider: "GCash"}
			_, err := f.engine.Request(ctx, req)

			Convey("Then the request is invalid", func() {
				So(errors.Is(err, payout.ErrInvalidRequest), ShouldBeTrue)
			})
		})

		Convey("When the period is reversed", func() {
			req := bankRequest("op-1")
			req.PeriodStart, req.PeriodEnd = june30, june1
			_, err := f.engine.Request(ctx, req)

			Convey("Then the request is invalid", func() {
				So(errors.Is(err, payout.ErrInvalidRequest), ShouldBeTrue)
			})
		})
	})
}

func TestApproveAndProcess(t *testing.T) {
	ctx := context.Background()

	Convey("Given two operators with pending payouts", t, func() {
		f := newFixture(payout.WithConcurrency(2))
		f.credit("op-1", model.CommissionEarned, "1000.00", june1)
		f.credit("op-2", model.CommissionEarned, "500.00", june1)
		p1, err := f.engine.Request(ctx, bankRequest("op-1"))
		So(err, ShouldBeNil)
		p2, err := f.engine.Request(ctx, bankRequest("op-2"))
		So(err, ShouldBeNil)

		Convey("When a pending payout is processed without approval", func() {
			res, err := f.engine.Process(ctx)

			Convey("Then nothing is executed", func() {
				So(err, ShouldBeNil)
				So(res.Completed, ShouldBeEmpty)
				So(f.gateway.calls, ShouldBeEmpty)
			})
		})

		Convey("When approval has no approver", func() {
			_, err := f.engine.Approve(ctx, p1.ID, "")

			Convey("Then it is rejected", func() {
				So(errors.Is(err, payout.ErrInvalidRequest), ShouldBeTrue)
			})
		})

		Convey("When both are approved and one gateway call fails", func() {
			a1, err := f.engine.Approve(ctx, p1.ID, "finance@tnvs")
			So(err, ShouldBeNil)
			So(a1.ApprovedAt, ShouldNotBeNil)
			_, err = f.engine.Approve(ctx, p2.ID, "finance@tnvs")
			So(err, ShouldBeNil)
			f.gateway.fail["op-2"] = errors.New("bank offline")

			res, err := f.engine.Process(ctx)
			So(err, ShouldBeNil)

			Convey("Then the healthy payout completes and debits the wallet", func() {
				So(res.Completed, ShouldResemble, []string{p1.ID})
				got, _ := f.engine.Get(ctx, p1.ID)
				So(got.Status, ShouldEqual, model.PayoutCompleted)
				So(got.GatewayReference, ShouldEqual, "ref-"+p1.ID)
				bal, _ := f.ledger.Balance(ctx, "op-1")
				So(money.Format(bal), ShouldEqual, money.Format(money.MustParse("1000.00").Sub(p1.PayoutAmount)))
			})

			Convey("And the failing payout is isolated with its reason", func() {
				So(len(res.Failed), ShouldEqual, 1)
				So(res.Failed[0].PayoutID, ShouldEqual, p2.ID)
				So(res.Failed[0].Reason, ShouldContainSubstring, "bank offline")
				got, _ := f.engine.Get(ctx, p2.ID)
				So(got.Status, ShouldEqual, model.PayoutFailed)
				bal, _ := f.ledger.Balance(ctx, "op-2")
				So(money.Format(bal), ShouldEqual, "500.00")
			})

			Convey("And a finished payout cannot be approved again", func() {
				_, err := f.engine.Approve(ctx, p1.ID, "finance@tnvs")
				So(errors.Is(err, payout.ErrInvalidState), ShouldBeTrue)
			})

			Convey("And a failed payout releases its reservation", func() {
				again, err := f.engine.Request(ctx, bankRequest("op-2"))
				So(err, ShouldBeNil)
				So(again.Status, ShouldEqual, model.PayoutPending)
			})
		})

		Convey("When the batch context is already cancelled", func() {
			_, err := f.engine.Approve(ctx, p1.ID, "finance@tnvs")
			So(err, ShouldBeNil)
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			res, err := f.engine.Process(cancelled)

			Convey("Then the payout is skipped and stays approved", func() {
				So(err, ShouldBeNil)
				So(res.Skipped, ShouldResemble, []string{p1.ID})
				got, _ := f.engine.Get(ctx, p1.ID)
				So(got.Status, ShouldEqual, model.PayoutApproved)
			})
		})
	})
}

func TestProcessCancellation(t *testing.T) {
	ctx := context.Background()

	Convey("Given two approved payouts and a throttle with one token", t, func() {
		f := newFixture(payout.WithConcurrency(2), payout.WithThrottle(&oneToken{}))
		f.credit("op-1", model.CommissionEarned, "1000.00", june1)
		f.credit("op-2", model.CommissionEarned, "500.00", june1)
		for _, op := range []string{"op-1", "op-2"} {
			p, err := f.engine.Request(ctx, bankRequest(op))
			So(err, ShouldBeNil)
			_, err = f.engine.Approve(ctx, p.ID, "finance@tnvs")
			So(err, ShouldBeNil)
		}

		Convey("When the batch deadline passes while one waits for a token", func() {
			batch, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()
			res, err := f.engine.Process(batch)

			Convey("Then the waiting payout is skipped, not failed, and stays approved", func() {
				So(err, ShouldBeNil)
				So(len(res.Completed), ShouldEqual, 1)
				So(res.Failed, ShouldBeEmpty)
				So(len(res.Skipped), ShouldEqual, 1)
				So(len(f.gateway.calls), ShouldEqual, 1)
				got, _ := f.engine.Get(ctx, res.Skipped[0])
				So(got.Status, ShouldEqual, model.PayoutApproved)
			})
		})
	})

	Convey("Given a store that rejects writes on a cancelled context", t, func() {
		store := ctxStore{Store: repository.NewMemoryPayouts()}
		batch, cancel := context.WithCancel(ctx)
		defer cancel()
		f := newFixtureWithStore(store)
		e := payout.NewEngine(store, f.ledger, f.dir, cancellingGateway{cancel: cancel})
		f.credit("op-1", model.CommissionEarned, "1000.00", june1)
		p, err := e.Request(ctx, bankRequest("op-1"))
		So(err, ShouldBeNil)
		_, err = e.Approve(ctx, p.ID, "finance@tnvs")
		So(err, ShouldBeNil)

		Convey("When the batch is cancelled during the gateway call", func() {
			res, err := e.Process(batch)

			Convey("Then the failure is still recorded and the reservation released", func() {
				So(err, ShouldBeNil)
				So(len(res.Failed), ShouldEqual, 1)
				got, _ := e.Get(ctx, p.ID)
				So(got.Status, ShouldEqual, model.PayoutFailed)
				So(got.FailureReason, ShouldContainSubstring, "context canceled")
			})
		})
	})
}

func TestProcessTwoEngines(t *testing.T) {
	ctx := context.Background()

	Convey("Given two engines sharing one payout store and ledger", t, func() {
		f := newFixture()
		gw := &slowGateway{}
		a := payout.NewEngine(f.store, f.ledger, f.dir, gw)
		b := payout.NewEngine(f.store, f.ledger, f.dir, gw)
		f.credit("op-1", model.CommissionEarned, "100.00", june1)
		p, err := a.Request(ctx, bankRequest("op-1"))
		So(err, ShouldBeNil)
		_, err = a.Approve(ctx, p.ID, "finance@tnvs")
		So(err, ShouldBeNil)

		Convey("When both run a batch at the same time", func() {
			var (
				wg     sync.WaitGroup
				ra, rb payout.BatchResult
			)
			wg.Add(2)
			go func() { defer wg.Done(); ra, _ = a.Process(ctx) }()
			go func() { defer wg.Done(); rb, _ = b.Process(ctx) }()
			wg.Wait()

			Convey("Then the payout is executed and debited once", func() {
				So(gw.calls, ShouldEqual, 1)
				So(len(ra.Completed)+len(rb.Completed), ShouldEqual, 1)
				bal, _ := f.ledger.Balance(ctx, "op-1")
				So(money.Format(bal), ShouldEqual, money.Format(money.MustParse("100.00").Sub(p.PayoutAmount)))
				So(bal.IsNegative(), ShouldBeFalse)
			})
		})
	})
}
