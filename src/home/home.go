package home

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/onemorebsmith/francpay-core/src/activity"
	"github.com/onemorebsmith/francpay-core/src/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	RecentFeedSize         = 5
	DepositRefreshInterval = 5 * time.Second

	balanceTable = "UserWalletBalance"
	ledgerTable  = "UserPaymentTransaction"
)

// ErrNoSession is returned by operations that need a signed in user
var ErrNoSession = errors.New("no active session")

// ErrNoRate is reported when no rate source is configured
var ErrNoRate = errors.New("no FRE rate source")

// Backend is the read side of the user's data
type Backend interface {
	GetProfile(ctx context.Context, userID string) (model.Profile, error)
	UpdateReferralCode(ctx context.Context, userID, code string) (string, error)
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, bool, error)
	GetLedgerRows(ctx context.Context, userID string, limit int) ([]model.LedgerRow, error)
	GetLedgerRow(ctx context.Context, id string) (model.LedgerRow, error)
}

// RateSource serves the latest FRE price snapshot
type RateSource interface {
	Rate(ctx context.Context) (model.PriceSnapshot, error)
}

// DepositSync is switched on for as long as a session is active
type DepositSync interface {
	SetEnabled(ctx context.Context, enabled bool)
}

// State is what the home screen renders
type State struct {
	UserID              string
	Profile             *model.Profile
	ReferralCode        string
	DepositTag          string
	Balance             decimal.Decimal
	FrePriceEur         decimal.Decimal
	BalanceEur          decimal.Decimal
	Recent              []model.TransactionDetail
	TransactionsLoading bool
	LastRefresh         time.Time
}

// Home owns the session state of one signed in user. Realtime events and
// refreshes both write it, the last write wins.
type Home struct {
	backend Backend
	sync    DepositSync
	rates   RateSource
	logger  *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	state   State
	session uint64
	loaded  bool

	surfaceMu     sync.Mutex
	surfaceCancel context.CancelFunc
	surfaceDone   chan struct{}
}

// New builds a Home, depositSync may be nil
func New(backend Backend, depositSync DepositSync, logger *zap.Logger) *Home {
	return &Home{
		backend: backend,
		sync:    depositSync,
		logger:  logger.With(zap.String("component", "home")),
		ctx:     context.Background(),
	}
}

// SetSession switches to userID, an empty id signs out
// SetRateSource enables the EUR valuation of the balance, call before SetSession
func (h *Home) SetRateSource(rates RateSource) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rates = rates
}

func (h *Home) SetSession(ctx context.Context, userID string) error {
	if userID == "" {
		h.ClearSession()
		return nil
	}
	parsed, err := uuid.Parse(userID)
	if err != nil {
		return errors.Wrapf(err, "invalid user id %q", userID)
	}
	userID = parsed.String()

	if previous, _ := h.current(); previous != "" && previous != userID {
		h.ClearSession()
	}

	h.mu.Lock()
	h.ctx = ctx
	h.session++
	h.loaded = false
	h.state = State{
		UserID:              userID,
		TransactionsLoading: true,
		DepositTag:          DepositTag("", userID),
		Balance:             decimal.Zero,
	}
	h.mu.Unlock()

	if h.sync != nil {
		h.sync.SetEnabled(ctx, true)
	}
	return h.Refresh(ctx)
}

// ClearSession resets state, stops deposit sync and the deposit surface timer
func (h *Home) ClearSession() {
	h.CloseDepositSurface()
	if h.sync != nil {
		h.sync.SetEnabled(context.Background(), false)
	}
	h.mu.Lock()
	h.session++
	h.loaded = false
	h.state = State{Balance: decimal.Zero}
	h.mu.Unlock()
}

func (h *Home) Snapshot() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.state
	st.Recent = append([]model.TransactionDetail(nil), h.state.Recent...)
	if h.state.Profile != nil {
		p := *h.state.Profile
		st.Profile = &p
	}
	return st
}

func (h *Home) current() (string, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.UserID, h.session
}

// Refresh reloads profile, balance and the recent feed. A failing source is
// logged and does not keep the others from updating.
func (h *Home) Refresh(ctx context.Context) error {
	userID, session := h.current()
	if userID == "" {
		return ErrNoSession
	}

	var (
		wg           sync.WaitGroup
		profile      model.Profile
		balance      decimal.Decimal
		balanceFound bool
		rows         []model.LedgerRow
		profileErr   error
		balErr       error
		txErr        error
		rate         model.PriceSnapshot
		rateErr      = ErrNoRate
	)
	h.mu.Lock()
	rates := h.rates
	h.mu.Unlock()
	if rates != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rate, rateErr = rates.Rate(ctx)
		}()
	}
	wg.Add(3)
	go func() {
		defer wg.Done()
		profile, profileErr = h.backend.GetProfile(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		balance, balanceFound, balErr = h.backend.GetBalance(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		rows, txErr = h.backend.GetLedgerRows(ctx, userID, RecentFeedSize)
	}()
	wg.Wait()

	referral := ""
	if profileErr != nil {
		h.logger.Error("failed loading profile", zap.Error(profileErr))
	} else {
		referral = h.ensureReferralCode(ctx, userID, profile.ReferralCode)
		profile.ReferralCode = referral
	}
	if balErr != nil {
		h.logger.Error("failed loading balance", zap.Error(balErr))
	}
	if txErr != nil {
		h.logger.Error("failed loading transactions", zap.Error(txErr))
	}
	if rates != nil && rateErr != nil {
		h.logger.Warn("FRE rate unavailable", zap.Error(rateErr))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session != session {
		return nil
	}
	if profileErr == nil {
		h.state.Profile = &profile
		h.state.ReferralCode = referral
	}
	h.state.DepositTag = DepositTag(h.state.ReferralCode, userID)
	if balErr == nil {
		if !balanceFound {
			balance = decimal.Zero
		}
		h.state.Balance = balance
	}
	if rateErr == nil {
		h.state.FrePriceEur = rate.PriceEur
	}
	h.valueBalanceLocked()
	if txErr == nil {
		recent := make([]model.TransactionDetail, 0, len(rows))
		for _, row := range rows {
			recent = append(recent, activity.MapToDetail(row))
		}
		h.state.Recent = recent
	}
	if !h.loaded {
		h.loaded = true
		h.state.TransactionsLoading = false
	}
	h.state.LastRefresh = time.Now().UTC()

	for _, err := range []error{profileErr, balErr, txErr} {
		if err != nil {
			return errors.Wrap(err, "partial refresh")
		}
	}
	return nil
}

// valueBalanceLocked prices the balance in EUR, zero while no rate is known
func (h *Home) valueBalanceLocked() {
	if !h.state.FrePriceEur.IsPositive() {
		h.state.BalanceEur = decimal.Zero
		return
	}
	h.state.BalanceEur = h.state.Balance.Mul(h.state.FrePriceEur).Round(2)
}

// ensureReferralCode backfills a missing referral code
func (h *Home) ensureReferralCode(ctx context.Context, userID, existing string) string {
	if existing != "" {
		return existing
	}
	code := GenerateReferralCode(userID)
	stored, err := h.backend.UpdateReferralCode(ctx, userID, code)
	if err != nil {
		h.logger.Error("failed assigning referral code", zap.Error(err))
		return code
	}
	if stored == "" {
		return code
	}
	return stored
}

// HandleDeposit is the deposit sync callback
func (h *Home) HandleDeposit(tx model.ParsedTonTransaction) {
	h.mu.Lock()
	ctx := h.ctx
	h.mu.Unlock()
	h.logger.Info("deposit registered, refreshing", zap.String("hash", tx.Hash))
	if err := h.Refresh(ctx); err != nil && !errors.Is(err, ErrNoSession) {
		h.logger.Warn("refresh after deposit failed", zap.Error(err))
	}
}

func belongsTo(ev model.ChangeEvent, userID string) bool {
	for _, record := range []map[string]any{ev.Record, ev.OldRecord} {
		if record == nil {
			continue
		}
		if owner, ok := record["authUserId"].(string); ok {
			return owner == userID
		}
	}
	return false
}

// ApplyChange merges a realtime row change into the state. It reports whether
// anything changed. Events of other users or tables are ignored.
func (h *Home) ApplyChange(ev model.ChangeEvent) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.UserID == "" || !belongsTo(ev, h.state.UserID) {
		return false
	}

	switch ev.Table {
	case balanceTable:
		value, ok := ev.Record["balanceFre"]
		if !ok || value == nil {
			value, ok = ev.OldRecord["balanceFre"]
		}
		if !ok || value == nil {
			return false
		}
		h.state.Balance = model.CoerceDecimal(value)
		h.valueBalanceLocked()
		return true

	case ledgerTable:
		record := ev.Record
		if record == nil {
			record = ev.OldRecord
		}
		row, ok := model.LedgerRowFromRecord(record)
		if !ok {
			return false
		}

		without := make([]model.TransactionDetail, 0, len(h.state.Recent)+1)
		for _, item := range h.state.Recent {
			if item.ID != row.ID {
				without = append(without, item)
			}
		}
		if ev.Type == model.ChangeDelete {
			h.state.Recent = without
			return true
		}

		merged := append([]model.TransactionDetail{activity.MapToDetail(row)}, without...)
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].CreatedAt.After(merged[j].CreatedAt)
		})
		if len(merged) > RecentFeedSize {
			merged = merged[:RecentFeedSize]
		}
		h.state.Recent = merged
		h.state.TransactionsLoading = false
		return true
	}
	return false
}

// TransactionDetail loads one row for the detail view
func (h *Home) TransactionDetail(ctx context.Context, id string) (model.TransactionDetail, error) {
	if id == "" {
		return model.TransactionDetail{}, errors.New("empty transaction id")
	}
	row, err := h.backend.GetLedgerRow(ctx, id)
	if err != nil {
		return model.TransactionDetail{}, errors.Wrapf(err, "failed loading transaction %s", id)
	}
	return activity.MapToDetail(row), nil
}

// Activity is the full feed with same-day staking rewards collapsed
func (h *Home) Activity(ctx context.Context, limit int) ([]model.TransactionDetail, error) {
	userID, _ := h.current()
	if userID == "" {
		return nil, ErrNoSession
	}
	rows, err := h.backend.GetLedgerRows(ctx, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed loading activity")
	}
	return activity.BuildFeed(rows), nil
}

// OpenDepositSurface polls Refresh every DepositRefreshInterval until closed
func (h *Home) OpenDepositSurface(ctx context.Context) {
	h.openDepositSurface(ctx, DepositRefreshInterval)
}

func (h *Home) openDepositSurface(ctx context.Context, interval time.Duration) {
	h.surfaceMu.Lock()
	defer h.surfaceMu.Unlock()
	if h.surfaceCancel != nil {
		return
	}
	surfaceCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	h.surfaceCancel, h.surfaceDone = cancel, done

	logger := h.logger.Named("deposit_surface")
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-surfaceCtx.Done():
				return
			case <-ticker.C:
				if err := h.Refresh(surfaceCtx); err != nil {
					logger.Warn("deposit surface refresh failed", zap.Error(err))
					continue
				}
			}
		}
	}()
}

func (h *Home) CloseDepositSurface() {
	h.surfaceMu.Lock()
	cancel, done := h.surfaceCancel, h.surfaceDone
	h.surfaceCancel, h.surfaceDone = nil, nil
	h.surfaceMu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}
