// Package service wires the commission pipeline together and exposes the
// operations the HTTP API and the CLI call.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	dedupeadapter "github.com/okian/tnvs/internal/adapters/dedupe"
	"github.com/okian/tnvs/internal/adapters/gateway"
	"github.com/okian/tnvs/internal/adapters/mq/queue"
	"github.com/okian/tnvs/internal/adapters/mq/worker"
	"github.com/okian/tnvs/internal/adapters/repository"
	"github.com/okian/tnvs/internal/adapters/repository/sqlstore"
	"github.com/okian/tnvs/internal/config"
	"github.com/okian/tnvs/internal/domain/boundary"
	"github.com/okian/tnvs/internal/domain/commission"
	"github.com/okian/tnvs/internal/domain/dedupe"
	"github.com/okian/tnvs/internal/domain/ledger"
	"github.com/okian/tnvs/internal/domain/operator"
	"github.com/okian/tnvs/internal/domain/payout"
	"github.com/okian/tnvs/internal/domain/scoring"
	"github.com/okian/tnvs/internal/domain/tier"
	"github.com/okian/tnvs/pkg/logger"
	"github.com/okian/tnvs/pkg/metrics"
)

// Service owns every pipeline component. Components are built in Start and
// released in Stop.
type Service struct {
	mu sync.RWMutex

	cfg     *config.Config
	logger  logger.Logger
	now     func() time.Time
	gateway payout.Gateway

	// stores is set by WithStores; otherwise Start opens the configured backend.
	stores         repository.Stores
	storesInjected bool

	// Core components
	directory  operator.Directory
	deduper    dedupe.Deduper
	closeDedup func() error
	rateBook   *tier.StaticRateBook
	rates      *tier.CachedRateBook
	scorer     scoring.Scorer
	evaluator  *tier.Evaluator
	ledger     *ledger.Ledger
	commission *commission.Service
	boundary   *boundary.Processor
	payouts    *payout.Engine
	queue      *queue.InMemoryQueue
	pool       *worker.Pool
	locks      *keyedMutex

	// State
	started bool
	cancel  context.CancelFunc
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. Defaults to config.New.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStores uses already opened stores instead of the configured backend.
// The service closes them on Stop.
func WithStores(stores repository.Stores) Option {
	return func(s *Service) {
		s.stores = stores
		s.storesInjected = true
	}
}

// WithGateway replaces the simulated payment gateway. Calls to it are still rate limited.
func WithGateway(gw payout.Gateway) Option {
	return func(s *Service) {
		if gw != nil {
			s.gateway = gw
		}
	}
}

// WithClock overrides time.Now for every component.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service. Nothing is opened until Start.
func New(opts ...Option) *Service {
	s := &Service{
		now:   time.Now,
		locks: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg == nil {
		s.cfg = config.New(context.Background())
	}
	return s
}

// Start opens storage, builds the calculators and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	cfg := s.cfg
	s.logger.Info(ctx, "starting tnvs service...")

	if !s.storesInjected {
		stores, err := openStores(ctx, cfg, s.logger)
		if err != nil {
			return err
		}
		s.stores = stores
	}

	if err := s.buildDeduper(ctx); err != nil {
		_ = s.stores.Close()
		return err
	}

	if err := s.buildDomain(ctx); err != nil {
		s.closeResources(ctx)
		return err
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(cfg.QueueSize))
	s.pool = worker.NewPool(cfg.WorkerCount, s.queue, worker.ProcessorFunc(s.processSubmission),
		worker.WithLogger(s.logger.Named("worker")))

	// Workers outlive the start request; Stop cancels them.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "tnvs service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", cfg.QueueSize),
		logger.String("store", cfg.StoreBackend),
		logger.String("dedupe", cfg.DedupeBackend),
	)
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Stores, error) {
	if cfg.StoreBackend == "memory" {
		log.Info(ctx, "using in-memory stores")
		return repository.NewMemoryStores(), nil
	}
	backend, err := sqlstore.ParseBackend(cfg.StoreBackend)
	if err != nil {
		return repository.Stores{}, err
	}
	st, err := sqlstore.Open(ctx, backend, cfg.StoreDSN,
		sqlstore.WithLogger(log.Named("sqlstore")),
		sqlstore.WithAutoMigrate(true),
	)
	if err != nil {
		return repository.Stores{}, fmt.Errorf("open %s store: %w", backend, err)
	}
	log.Info(ctx, "using sql stores", logger.String("backend", string(backend)))
	return st.Stores(), nil
}

func (s *Service) buildDeduper(ctx context.Context) error {
	cfg := s.cfg
	if cfg.DedupeBackend == "redis" {
		rd, err := dedupeadapter.Dial(ctx, cfg.RedisAddr,
			dedupeadapter.WithTTL(cfg.DedupeTTL),
			dedupeadapter.WithLogger(s.logger.Named("dedupe")),
		)
		if err != nil {
			return fmt.Errorf("connect redis dedupe: %w", err)
		}
		s.deduper = rd
		s.closeDedup = rd.Close
		return nil
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))
	s.closeDedup = nil
	return nil
}

// buildDomain assumes cfg passed Validate, so the accessors cannot fail.
func (s *Service) buildDomain(ctx context.Context) error {
	cfg := s.cfg
	log := s.logger

	profiles, err := cfg.OperatorProfiles()
	if err != nil {
		return err
	}
	s.directory, err = operator.NewInMemoryDirectory(profiles...)
	if err != nil {
		return fmt.Errorf("seed operator directory: %w", err)
	}

	rateConfigs, err := cfg.RateConfigs()
	if err != nil {
		return err
	}
	s.rateBook = tier.NewStaticRateBook(rateConfigs...)
	s.rates = tier.NewCachedRateBook(s.rateBook, cfg.RateCacheTTL)

	s.scorer = scoring.NewCalculator(scoring.WithAdjusters(scoring.NoopAdjuster{}))
	s.evaluator = tier.NewEvaluator(s.rates,
		tier.WithClock(s.now),
		tier.WithProbationWindow(cfg.ProbationWindow()),
		tier.WithViolationLookback(cfg.ViolationLookback()),
	)

	s.ledger = ledger.New(s.stores.Ledger,
		ledger.WithClock(s.now),
		ledger.WithLogger(log.Named("ledger")),
	)

	floor, err := cfg.Floor()
	if err != nil {
		return err
	}
	s.commission = commission.NewService(
		commission.NewCalculator(commission.WithMinimumCommission(floor)),
		s.ledger, s.rates, s.directory, s.stores.Scores,
		commission.WithDeduper(s.deduper),
		commission.WithLogger(log.Named("commission")),
		commission.WithClock(s.now),
	)

	policy, err := cfg.BoundaryPolicy()
	if err != nil {
		return err
	}
	s.boundary = boundary.NewProcessor(s.stores.BoundaryFees, s.ledger,
		boundary.WithPolicy(policy),
		boundary.WithLogger(log.Named("boundary")),
		boundary.WithClock(s.now),
	)

	withholding, err := cfg.Withholding()
	if err != nil {
		return err
	}
	fees, err := cfg.MethodFees()
	if err != nil {
		return err
	}
	gw := s.gateway
	if gw == nil {
		gw = gateway.NewSimulated(gateway.WithLogger(log.Named("gateway")))
	}
	s.payouts = payout.NewEngine(s.stores.Payouts, s.ledger, s.directory,
		gw,
		payout.WithThrottle(gateway.NewRateLimit(cfg.PayoutRatePerSecond, cfg.PayoutBurst)),
		payout.WithWithholdingRates(withholding),
		payout.WithMethodFees(fees),
		payout.WithConcurrency(cfg.PayoutConcurrency),
		payout.WithLocker(s.locks),
		payout.WithClock(s.now),
		payout.WithLogger(log.Named("payout")),
	)

	log.Debug(ctx, "domain components built",
		logger.Int("operators", len(profiles)),
		logger.Int("rateConfigs", len(rateConfigs)),
		logger.Decimal("commissionFloor", floor))
	return nil
}

// Stop drains the queue, stops the workers and closes storage.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping tnvs service...")

	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.closeResources(ctx)

	s.started = false
	s.logger.Info(ctx, "tnvs service stopped")
}

func (s *Service) closeResources(ctx context.Context) {
	if s.closeDedup != nil {
		if err := s.closeDedup(); err != nil {
			s.logger.Warn(ctx, "close deduper", logger.Error(err))
		}
	}
	if err := s.stores.Close(); err != nil {
		s.logger.Warn(ctx, "close stores", logger.Error(err))
	}
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":       s.started,
		"workerCount":   s.cfg.WorkerCount,
		"queueSize":     s.cfg.QueueSize,
		"storeBackend":  s.cfg.StoreBackend,
		"dedupeBackend": s.cfg.DedupeBackend,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["processed"] = s.pool.Processed()
		stats["failed"] = s.pool.Failed()
		stats["dedupeSize"] = s.deduper.Size()
		stats["lockedOperators"] = s.locks.held()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.pool.Size())
	}

	return stats
}

// AddRate registers a commission rate config. Cached lookups are dropped so
// the next booking sees the new schedule.
func (s *Service) AddRate(ctx context.Context, c tier.CommissionRateConfig) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := tier.ValidateRate(c); err != nil {
		return err
	}
	s.rateBook.Add(c)
	s.FlushRateCache()
	s.logger.Info(ctx, "commission rate added",
		logger.String("tier", string(c.Tier)),
		logger.Decimal("rate", c.RatePercentage),
		logger.String("effectiveFrom", c.EffectiveFrom.Format(time.RFC3339)),
		logger.Bool("active", c.IsActive),
	)
	return nil
}

// FlushRateCache drops cached rate lookups so the next evaluation reads the book.
func (s *Service) FlushRateCache() {
	if s.rates != nil {
		s.rates.Flush()
	}
}
