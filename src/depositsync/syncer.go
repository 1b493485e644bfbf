package depositsync

import (
	"context"
	"sync"
	"time"

	"github.com/onemorebsmith/francpay-core/src/model"
	"github.com/onemorebsmith/francpay-core/src/onchain"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const DefaultInterval = 5 * time.Second

// ErrDisabled is returned by RunOnce while sync is off
var ErrDisabled = errors.New("deposit sync is disabled")

// TransactionSource yields recent incoming transfers of the watched address
type TransactionSource interface {
	FetchTransactions(ctx context.Context, limit int) ([]model.ParsedTonTransaction, error)
	WatchAddress() model.TonWalletAddr
}

// Registrar credits a deposit on the backend. Implementations must be
// idempotent on the tx hash, a transfer can be submitted again after a restart.
type Registrar interface {
	RegisterOnchainDeposit(ctx context.Context, deposit model.DepositRegistration) error
}

// DepositHandler is called once per successfully registered transfer, from the
// loop goroutine. It must not call Disable.
type DepositHandler func(tx model.ParsedTonTransaction)

type Config struct {
	Interval   time.Duration `yaml:"sync_interval"`
	FetchLimit int           `yaml:"fetch_limit"`
}

type Status struct {
	Enabled     bool
	LastCycleAt time.Time
	LastError   string
	Processed   int
	Registered  uint64
}

// Syncer polls the indexer and registers every transfer it has not submitted
// yet. The processed set only saves redundant calls, the backend is the
// source of truth for what was credited.
type Syncer struct {
	source    TransactionSource
	registrar Registrar
	onDeposit DepositHandler
	cfg       Config
	logger    *zap.Logger

	mu         sync.Mutex
	enabled    bool
	generation uint64
	processed  map[string]struct{}
	status     Status
	cancel     context.CancelFunc
	done       chan struct{}

	cycleMu sync.Mutex // one cycle at a time
}

func NewSyncer(source TransactionSource, registrar Registrar, onDeposit DepositHandler, cfg Config, logger *zap.Logger) *Syncer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = onchain.DefaultFetchLimit
	}
	return &Syncer{
		source:    source,
		registrar: registrar,
		onDeposit: onDeposit,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "deposit_sync")),
		processed: map[string]struct{}{},
	}
}

// Enable starts the loop: one cycle right away, then one per interval.
// Enabling resets the processed set. No-op when already enabled.
func (s *Syncer) Enable(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	gen, ok := s.activateLocked()
	if !ok {
		s.mu.Unlock()
		cancel()
		return
	}
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.run(loopCtx, gen)
	}()
}

// Disable stops the loop and waits for it to exit. A cycle still waiting on
// the network will not touch state once it returns.
func (s *Syncer) Disable() {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return
	}
	s.enabled = false
	s.status.Enabled = false
	s.generation++
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	s.logger.Info("deposit sync disabled")
}

// SetEnabled maps an external on/off flag onto Enable and Disable
func (s *Syncer) SetEnabled(ctx context.Context, enabled bool) {
	if enabled {
		s.Enable(ctx)
		return
	}
	s.Disable()
}

func (s *Syncer) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Processed = len(s.processed)
	return st
}

func (s *Syncer) activateLocked() (uint64, bool) {
	if s.enabled {
		return 0, false
	}
	s.enabled = true
	s.generation++
	s.processed = map[string]struct{}{}
	s.status = Status{Enabled: true}
	processedGauge.Set(0)
	s.logger.Info("deposit sync enabled", zap.Duration("interval", s.cfg.Interval))
	return s.generation, true
}

// current reports whether a cycle started under gen may still mutate state
func (s *Syncer) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled && s.generation == gen
}

func (s *Syncer) run(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	if err := s.cycle(ctx, gen); err != nil {
		s.logger.Warn("deposit sync cycle failed", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping deposit sync thread, context cancelled")
			s.expire(gen)
			return
		case <-ticker.C:
			if err := s.cycle(ctx, gen); err != nil {
				s.logger.Warn("deposit sync cycle failed", zap.Error(err))
				continue
			}
		}
	}
}

// expire turns sync off after the loop of gen stopped on its own, so a later
// Enable starts a fresh loop. No-op after Disable or a newer Enable.
func (s *Syncer) expire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || s.generation != gen {
		return
	}
	s.enabled = false
	s.status.Enabled = false
	s.generation++
	s.cancel, s.done = nil, nil
}

// RunOnce runs a single cycle outside of the ticker
func (s *Syncer) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	gen, enabled := s.generation, s.enabled
	s.mu.Unlock()
	if !enabled {
		return ErrDisabled
	}
	return s.cycle(ctx, gen)
}

func (s *Syncer) cycle(ctx context.Context, gen uint64) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	cycleCounter.Inc()

	txs, err := s.source.FetchTransactions(ctx, s.cfg.FetchLimit)
	if !s.current(gen) {
		return nil
	}
	if err != nil {
		s.recordCycle(gen, err)
		return errors.Wrap(err, "failed fetching on-chain transactions")
	}

	var failures int
	for _, tx := range txs {
		if !s.current(gen) {
			return nil
		}
		if s.isProcessed(tx.Hash) {
			continue
		}

		err := s.registrar.RegisterOnchainDeposit(ctx, s.registration(tx))
		if !s.current(gen) {
			return nil
		}
		if err != nil {
			failures++
			registerErrorCounter.Inc()
			s.logger.Warn("failed registering deposit, retrying next cycle",
				zap.String("hash", tx.Hash), zap.Error(err))
			continue
		}

		if !s.markProcessed(gen, tx.Hash) {
			return nil
		}
		registeredCounter.Inc()
		s.logger.Info("registered on-chain deposit",
			zap.String("hash", tx.Hash),
			zap.String("amount", tx.AmountTon.String()),
			zap.String("tag", tx.CommentNormalized))
		if s.onDeposit != nil {
			s.onDeposit(tx)
		}
	}

	if failures > 0 {
		err = errors.Errorf("%d of %d deposits failed to register", failures, len(txs))
	}
	s.recordCycle(gen, err)
	return err
}

func (s *Syncer) isProcessed(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[hash]
	return ok
}

func (s *Syncer) markProcessed(gen uint64, hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || s.generation != gen {
		return false
	}
	s.processed[hash] = struct{}{}
	s.status.Registered++
	processedGauge.Set(float64(len(s.processed)))
	return true
}

func (s *Syncer) recordCycle(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || s.generation != gen {
		return
	}
	s.status.LastCycleAt = time.Now().UTC()
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
}

// registration credits FRE 1:1 with the on-chain amount
func (s *Syncer) registration(tx model.ParsedTonTransaction) model.DepositRegistration {
	metadata := map[string]any{"lt": nil, "utime": nil}
	if tx.Lt != "" {
		metadata["lt"] = tx.Lt
	}
	if tx.Utime != nil {
		metadata["utime"] = *tx.Utime
	}
	for k, v := range tx.Metadata {
		metadata[k] = v
	}
	if tx.Memo != "" {
		metadata["memo"] = tx.Memo
	}

	var memoTag *string
	if tx.CommentNormalized != "" {
		tag := tx.CommentNormalized
		memoTag = &tag
	}
	return model.DepositRegistration{
		TxHash:        tx.Hash,
		WalletAddress: s.source.WatchAddress(),
		AmountTon:     tx.AmountTon,
		AmountFre:     tx.AmountTon,
		MemoTag:       memoTag,
		Metadata:      metadata,
	}
}
