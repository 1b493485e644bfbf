package pricefeed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/onemorebsmith/francpay-core/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CacheRetention is how long snapshots stay in the redis cache
const CacheRetention = 24 * time.Hour

// Store persists snapshots with their raw upstream payloads
type Store interface {
	PutPriceSnapshot(ctx context.Context, snap model.PriceSnapshot, raw map[string]json.RawMessage) error
}

// Source produces one snapshot per call
type Source interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

type StoreFunc func(ctx context.Context, snap model.PriceSnapshot, raw map[string]json.RawMessage) error

func (f StoreFunc) PutPriceSnapshot(ctx context.Context, snap model.PriceSnapshot, raw map[string]json.RawMessage) error {
	return f(ctx, snap, raw)
}

// Job fetches a snapshot, persists it and refreshes the cache
type Job struct {
	source Source
	store  Store
	cache  *SnapshotCache
	logger *zap.Logger
}

// NewJob builds a job, cache may be nil
func NewJob(source Source, store Store, cache *SnapshotCache, logger *zap.Logger) *Job {
	return &Job{
		source: source,
		store:  store,
		cache:  cache,
		logger: logger.Named("price_feed"),
	}
}

func (j *Job) RunOnce(ctx context.Context) (model.PriceSnapshot, error) {
	snap, err := j.source.Fetch(ctx)
	if err != nil {
		fetchErrorCounter.Inc()
		return model.PriceSnapshot{}, errors.Wrap(err, "failed fetching price snapshot")
	}
	j.logger.Info("fetched FRE price",
		zap.String("usd", snap.PriceUsd.String()),
		zap.String("eur", snap.PriceEur.String()),
		zap.String("ton", snap.PriceTon.String()),
		zap.String("ton_usd", snap.TonPriceUsd.String()),
		zap.String("usd_eur", snap.UsdToEurRate.String()),
	)

	if err := j.store.PutPriceSnapshot(ctx, snap.PriceSnapshot, snap.Raw); err != nil {
		return model.PriceSnapshot{}, errors.Wrap(err, "failed persisting price snapshot")
	}
	snapshotCounter.Inc()
	priceGauge.WithLabelValues("eur").Set(snap.PriceEur.InexactFloat64())
	priceGauge.WithLabelValues("usd").Set(snap.PriceUsd.InexactFloat64())

	if j.cache != nil {
		if err := j.cache.Put(ctx, snap.PriceSnapshot); err != nil {
			j.logger.Warn("failed caching snapshot", zap.Error(err))
		} else if _, err := j.cache.Prune(ctx, snap.FetchedAt.Add(-CacheRetention)); err != nil {
			j.logger.Warn("failed pruning snapshot cache", zap.Error(err))
		}
	}
	return snap.PriceSnapshot, nil
}

// Run is the cron entry point, failures are logged and the next run retries
func (j *Job) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Error("price snapshot run failed", zap.Error(err))
	}
}
