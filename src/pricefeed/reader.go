package pricefeed

import (
	"context"
	"sync"
	"time"

	"github.com/onemorebsmith/francpay-core/src/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultRefreshInterval = 3 * time.Minute

// SnapshotSource returns the latest stored snapshot
type SnapshotSource interface {
	Latest(ctx context.Context) (model.PriceSnapshot, error)
}

type SnapshotSourceFunc func(ctx context.Context) (model.PriceSnapshot, error)

func (f SnapshotSourceFunc) Latest(ctx context.Context) (model.PriceSnapshot, error) {
	return f(ctx)
}

// ValidateSnapshot rejects snapshots with a missing or non positive value
func ValidateSnapshot(snap model.PriceSnapshot) error {
	values := map[string]decimal.Decimal{
		"priceEur":     snap.PriceEur,
		"priceUsd":     snap.PriceUsd,
		"priceTon":     snap.PriceTon,
		"tonPriceUsd":  snap.TonPriceUsd,
		"usdToEurRate": snap.UsdToEurRate,
	}
	for name, value := range values {
		if err := positive(value, name); err != nil {
			return err
		}
	}
	return nil
}

// RateReader serves the latest FRE rate. Sources are tried in order, the
// first valid snapshot wins and is held until the next refresh.
type RateReader struct {
	sources  []SnapshotSource
	interval time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	latest    *model.PriceSnapshot
	refreshed time.Time
}

func NewRateReader(logger *zap.Logger, interval time.Duration, sources ...SnapshotSource) *RateReader {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &RateReader{
		sources:  sources,
		interval: interval,
		logger:   logger.Named("rate_reader"),
	}
}

// Refresh reloads the snapshot from the sources. On failure the previously
// held snapshot is kept.
func (r *RateReader) Refresh(ctx context.Context) (model.PriceSnapshot, error) {
	for i, src := range r.sources {
		snap, err := src.Latest(ctx)
		if err == nil {
			err = ValidateSnapshot(snap)
		}
		if err != nil {
			r.logger.Debug("snapshot source unavailable", zap.Int("source", i), zap.Error(err))
			continue
		}
		r.mu.Lock()
		r.latest = &snap
		r.refreshed = time.Now()
		r.mu.Unlock()
		return snap, nil
	}
	return model.PriceSnapshot{}, ErrNoSnapshot
}

// Rate returns the held snapshot, refreshing it when older than the interval
func (r *RateReader) Rate(ctx context.Context) (model.PriceSnapshot, error) {
	r.mu.Lock()
	latest, refreshed := r.latest, r.refreshed
	r.mu.Unlock()
	if latest != nil && time.Since(refreshed) < r.interval {
		return *latest, nil
	}
	snap, err := r.Refresh(ctx)
	if err == nil {
		return snap, nil
	}
	if latest != nil {
		return *latest, nil
	}
	return model.PriceSnapshot{}, errors.Wrap(err, "failed reading FRE rate")
}

// Start refreshes on a ticker until ctx is done
func (r *RateReader) Start(ctx context.Context) error {
	if _, err := r.Refresh(ctx); err != nil {
		r.logger.Warn("initial rate refresh failed", zap.Error(err))
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			snap, err := r.Refresh(ctx)
			if err != nil {
				r.logger.Warn("rate refresh failed", zap.Error(err))
				continue
			}
			r.logger.Info("FRE rate refreshed",
				zap.String("eur", snap.PriceEur.String()),
				zap.Time("fetched_at", snap.FetchedAt))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
