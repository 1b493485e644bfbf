package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/onemorebsmith/francpay-core/src/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	DefaultPairURL     = "https://api.dexscreener.com/latest/dex/pairs/ton/EQA5rtnJriNtvKo4WyqJ4xN9r9P1zFivF0iVEYyYRScntdyk"
	DefaultTonPriceURL = "https://api.coingecko.com/api/v3/simple/price?ids=the-open-network&vs_currencies=usd"
	DefaultUsdEurURL   = "https://api.coingecko.com/api/v3/simple/price?ids=usd&vs_currencies=eur"

	SnapshotSourceName = "gecko_terminal"
	freSymbol          = "FRE"
	userAgent          = "fre-market-fetcher/1.0"
)

var (
	// ErrInvalidPayload covers missing or non positive prices in an upstream payload
	ErrInvalidPayload = errors.New("invalid price payload")
	// ErrNoSnapshot is returned when no usable snapshot exists
	ErrNoSnapshot = errors.New("no price snapshot available")
)

type FetcherConfig struct {
	PairURL     string        `yaml:"pair_url"`
	TonPriceURL string        `yaml:"ton_price_url"`
	UsdEurURL   string        `yaml:"usd_eur_url"`
	Timeout     time.Duration `yaml:"request_timeout"`
}

// Fetcher reads the FRE pair from DexScreener and the TON/USD and USD/EUR
// rates from CoinGecko
type Fetcher struct {
	cfg    FetcherConfig
	client *http.Client
}

func NewFetcher(cfg FetcherConfig, client *http.Client) *Fetcher {
	if cfg.PairURL == "" {
		cfg.PairURL = DefaultPairURL
	}
	if cfg.TonPriceURL == "" {
		cfg.TonPriceURL = DefaultTonPriceURL
	}
	if cfg.UsdEurURL == "" {
		cfg.UsdEurURL = DefaultUsdEurURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{cfg: cfg, client: client}
}

type dexToken struct {
	Symbol string `json:"symbol"`
}

type dexPair struct {
	BaseToken   dexToken        `json:"baseToken"`
	QuoteToken  dexToken        `json:"quoteToken"`
	PriceUsd    decimal.Decimal `json:"priceUsd"`
	PriceNative decimal.Decimal `json:"priceNative"`
}

type dexPayload struct {
	Pairs []dexPair `json:"pairs"`
	Pair  *dexPair  `json:"pair"`
}

// simplePrice is the coingecko /simple/price shape: {id: {currency: price}}
type simplePrice map[string]map[string]decimal.Decimal

func (f *Fetcher) getJSON(ctx context.Context, url, label string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "[%s] failed building request", label)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Errorf("[%s] request timed out after %s", label, f.cfg.Timeout)
		}
		return nil, errors.Wrapf(err, "[%s] request failed", label)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "[%s] failed reading response", label)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("[%s] HTTP %s", label, resp.Status)
	}
	if !json.Valid(body) {
		return nil, errors.Wrapf(ErrInvalidPayload, "[%s] invalid json response", label)
	}
	return json.RawMessage(body), nil
}

func positive(value decimal.Decimal, what string) error {
	if !value.IsPositive() {
		return errors.Wrapf(ErrInvalidPayload, "%s missing or not positive", what)
	}
	return nil
}

// ExtractFrePrice returns the FRE price in USD and in TON from a DexScreener pair payload
func ExtractFrePrice(raw json.RawMessage) (usd, native decimal.Decimal, err error) {
	payload := dexPayload{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return usd, native, errors.Wrapf(ErrInvalidPayload, "dexscreener: %s", err)
	}
	var pair *dexPair
	if len(payload.Pairs) > 0 {
		pair = &payload.Pairs[0]
	} else {
		pair = payload.Pair
	}
	if pair == nil {
		return usd, native, errors.Wrap(ErrInvalidPayload, "pair entry missing in dexscreener payload")
	}
	if err := positive(pair.PriceUsd, "FRE priceUsd"); err != nil {
		return usd, native, err
	}
	if err := positive(pair.PriceNative, "FRE priceNative"); err != nil {
		return usd, native, err
	}
	base := strings.ToUpper(strings.TrimSpace(pair.BaseToken.Symbol))
	quote := strings.ToUpper(strings.TrimSpace(pair.QuoteToken.Symbol))
	if base != freSymbol && quote != freSymbol {
		return usd, native, errors.Wrapf(ErrInvalidPayload, "token %s not present in dexscreener pair", freSymbol)
	}
	return pair.PriceUsd, pair.PriceNative, nil
}

func extractSimplePrice(raw json.RawMessage, id, currency string) (decimal.Decimal, error) {
	payload := simplePrice{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return decimal.Zero, errors.Wrapf(ErrInvalidPayload, "coingecko: %s", err)
	}
	value := payload[id][currency]
	if err := positive(value, fmt.Sprintf("%s/%s", id, currency)); err != nil {
		return decimal.Zero, err
	}
	return value, nil
}

// Snapshot is a fetched snapshot with the payloads it was derived from
type Snapshot struct {
	model.PriceSnapshot
	Raw map[string]json.RawMessage
}

// BuildSnapshot derives the EUR and TON prices from the three payloads
func BuildSnapshot(pair, ton, usdEur json.RawMessage, fetchedAt time.Time) (Snapshot, error) {
	priceUsd, _, err := ExtractFrePrice(pair)
	if err != nil {
		return Snapshot{}, err
	}
	tonUsd, err := extractSimplePrice(ton, "the-open-network", "usd")
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "TON price missing in coingecko response")
	}
	rate, err := extractSimplePrice(usdEur, "usd", "eur")
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "USD->EUR rate missing in coingecko response")
	}
	return Snapshot{
		PriceSnapshot: model.PriceSnapshot{
			ID:           uuid.NewString(),
			Source:       SnapshotSourceName,
			PriceUsd:     priceUsd,
			PriceEur:     priceUsd.Mul(rate),
			PriceTon:     priceUsd.Div(tonUsd),
			TonPriceUsd:  tonUsd,
			UsdToEurRate: rate,
			FetchedAt:    fetchedAt.UTC(),
		},
		Raw: map[string]json.RawMessage{"pair": pair, "ton": ton, "usdEur": usdEur},
	}, nil
}

// Fetch queries the three sources concurrently
func (f *Fetcher) Fetch(ctx context.Context) (Snapshot, error) {
	type result struct {
		raw json.RawMessage
		err error
	}
	sources := []struct{ url, label string }{
		{f.cfg.PairURL, "DexScreener pair"},
		{f.cfg.TonPriceURL, "CoinGecko TON price"},
		{f.cfg.UsdEurURL, "USD->EUR rate"},
	}
	results := make([]result, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, url, label string) {
			defer wg.Done()
			raw, err := f.getJSON(ctx, url, label)
			results[i] = result{raw: raw, err: err}
		}(i, src.url, src.label)
	}
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			return Snapshot{}, r.err
		}
	}
	return BuildSnapshot(results[0].raw, results[1].raw, results[2].raw, time.Now())
}
