package onchain

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/onemorebsmith/francpay-core/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Provider string

const (
	ProviderTonAPI    Provider = "tonapi"
	ProviderToncenter Provider = "toncenter"
)

// ParseProvider defaults anything unknown to tonapi
func ParseProvider(raw string) Provider {
	if Provider(strings.ToLower(strings.TrimSpace(raw))) == ProviderToncenter {
		return ProviderToncenter
	}
	return ProviderTonAPI
}

const DefaultFetchLimit = 20

type Config struct {
	WatchAddress string        `yaml:"ton_watch_address"`
	APIKey       string        `yaml:"ton_api_key"`
	APIBase      string        `yaml:"ton_api_base"`
	Provider     string        `yaml:"ton_provider"`
	Timeout      time.Duration `yaml:"ton_timeout"`
}

// Fetcher is one indexer shape normalized into ParsedTonTransaction
type Fetcher interface {
	Fetch(ctx context.Context, limit int) ([]model.ParsedTonTransaction, error)
	Name() string
}

// Watcher reads recent incoming transfers of the watched address from the
// configured indexer, falling back once to the other one on failure
type Watcher struct {
	address  model.TonWalletAddr
	primary  Fetcher
	fallback Fetcher
	logger   *zap.Logger
}

func NewWatcher(cfg Config, logger *zap.Logger) (*Watcher, error) {
	if strings.TrimSpace(cfg.WatchAddress) == "" {
		return nil, ErrNoWatchAddress
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	target := ResolveAddress(cfg.WatchAddress)

	tonapi := NewTonAPIClient(normalizeTonAPIBase(cfg.APIBase), cfg.APIKey, target, client)
	toncenter := NewToncenterClient(normalizeToncenterBase(cfg.APIBase), cfg.APIKey, target, client)

	var primary, fallback Fetcher = tonapi, toncenter
	if ParseProvider(cfg.Provider) == ProviderToncenter {
		primary, fallback = toncenter, tonapi
	}
	return NewWatcherWithFetchers(model.TonWalletAddr(cfg.WatchAddress), primary, fallback, logger), nil
}

// NewWatcherWithFetchers wires explicit providers, fallback may be nil
func NewWatcherWithFetchers(address model.TonWalletAddr, primary, fallback Fetcher, logger *zap.Logger) *Watcher {
	return &Watcher{
		address:  address,
		primary:  primary,
		fallback: fallback,
		logger:   logger.With(zap.String("component", "onchain_watcher"), zap.String("address", string(address))),
	}
}

// WatchAddress is the address as configured, sent along with every registration
func (w *Watcher) WatchAddress() model.TonWalletAddr {
	return w.address
}

func (w *Watcher) FetchTransactions(ctx context.Context, limit int) ([]model.ParsedTonTransaction, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	txs, err := w.fetch(ctx, w.primary, limit)
	if err == nil {
		if len(txs) == 0 && w.primary.Name() == string(ProviderTonAPI) {
			w.logger.Warn("tonapi returned no events, consider switching to the toncenter provider")
		}
		return txs, nil
	}
	w.logger.Warn("indexer fetch failed", zap.String("provider", w.primary.Name()), zap.Error(err))
	if w.fallback == nil || ctx.Err() != nil {
		return nil, err
	}

	fallbackCounter.WithLabelValues(w.primary.Name(), w.fallback.Name()).Inc()
	txs, fallbackErr := w.fetch(ctx, w.fallback, limit)
	if fallbackErr != nil {
		return nil, errors.Wrapf(fallbackErr, "fallback %s failed after %s: %s", w.fallback.Name(), w.primary.Name(), err)
	}
	return txs, nil
}

func (w *Watcher) fetch(ctx context.Context, fetcher Fetcher, limit int) ([]model.ParsedTonTransaction, error) {
	txs, err := fetcher.Fetch(ctx, limit)
	if err != nil {
		fetchErrorCounter.WithLabelValues(fetcher.Name()).Inc()
		return nil, err
	}
	fetchedCounter.WithLabelValues(fetcher.Name()).Add(float64(len(txs)))
	return txs, nil
}
