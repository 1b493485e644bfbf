package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/onemorebsmith/francpay-core/src/common"
	"github.com/onemorebsmith/francpay-core/src/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var logger *zap.Logger

func TestMain(m *testing.M) {
	logger = common.ConfigureZap(zap.DebugLevel)
	os.Exit(m.Run())
}

var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

const (
	pairBody   = `{"pairs": [{"baseToken": {"symbol": "fre"}, "quoteToken": {"symbol": "TON"}, "priceUsd": "0.01", "priceNative": "0.002"}]}`
	tonBody    = `{"the-open-network": {"usd": 5}}`
	usdEurBody = `{"usd": {"eur": 0.92}}`
)

type upstream struct {
	pair, ton, usdEur string
	status            int
	userAgents        atomic.Int32
}

func (u *upstream) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == userAgent {
			u.userAgents.Add(1)
		}
		if u.status != 0 && r.URL.Path == "/pair" {
			w.WriteHeader(u.status)
			return
		}
		switch {
		case r.URL.Path == "/pair":
			fmt.Fprint(w, u.pair)
		case r.URL.Query().Get("ids") == "the-open-network":
			fmt.Fprint(w, u.ton)
		default:
			fmt.Fprint(w, u.usdEur)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testFetcher(srv *httptest.Server) *Fetcher {
	return NewFetcher(FetcherConfig{
		PairURL:     srv.URL + "/pair",
		TonPriceURL: srv.URL + "/price?ids=the-open-network&vs_currencies=usd",
		UsdEurURL:   srv.URL + "/price?ids=usd&vs_currencies=eur",
		Timeout:     2 * time.Second,
	}, srv.Client())
}

func TestFetchSnapshot(t *testing.T) {
	up := &upstream{pair: pairBody, ton: tonBody, usdEur: usdEurBody}
	snap, err := testFetcher(up.server(t)).Fetch(context.Background())
	require.NoError(t, err)

	expected := model.PriceSnapshot{
		ID:           snap.ID,
		Source:       "gecko_terminal",
		PriceUsd:     decimal.RequireFromString("0.01"),
		PriceEur:     decimal.RequireFromString("0.0092"),
		PriceTon:     decimal.RequireFromString("0.002"),
		TonPriceUsd:  decimal.NewFromInt(5),
		UsdToEurRate: decimal.RequireFromString("0.92"),
		FetchedAt:    snap.FetchedAt,
	}
	if d := cmp.Diff(expected, snap.PriceSnapshot, decimalComparer); d != "" {
		t.Fatalf("unexpected snapshot: %s", d)
	}
	_, err = uuid.Parse(snap.ID)
	assert.NoError(t, err)
	assert.Equal(t, int32(3), up.userAgents.Load())
	assert.JSONEq(t, pairBody, string(snap.Raw["pair"]))
	assert.JSONEq(t, tonBody, string(snap.Raw["ton"]))
	assert.JSONEq(t, usdEurBody, string(snap.Raw["usdEur"]))
}

func TestFetchRejectsBadPayloads(t *testing.T) {
	cases := map[string]*upstream{
		"no pair":          {pair: `{"pairs": []}`, ton: tonBody, usdEur: usdEurBody},
		"other token":      {pair: `{"pair": {"baseToken": {"symbol": "USDT"}, "quoteToken": {"symbol": "TON"}, "priceUsd": "1", "priceNative": "0.2"}}`, ton: tonBody, usdEur: usdEurBody},
		"zero usd":         {pair: `{"pairs": [{"baseToken": {"symbol": "FRE"}, "priceUsd": "0", "priceNative": "0.002"}]}`, ton: tonBody, usdEur: usdEurBody},
		"missing ton":      {pair: pairBody, ton: `{}`, usdEur: usdEurBody},
		"negative rate":    {pair: pairBody, ton: tonBody, usdEur: `{"usd": {"eur": -1}}`},
		"not json":         {pair: pairBody, ton: `<html>`, usdEur: usdEurBody},
		"missing currency": {pair: pairBody, ton: tonBody, usdEur: `{"usd": {}}`},
	}
	for name, up := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := testFetcher(up.server(t)).Fetch(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPayload), "unexpected error %v", err)
		})
	}
}

func TestFetchHTTPError(t *testing.T) {
	up := &upstream{pair: pairBody, ton: tonBody, usdEur: usdEurBody, status: http.StatusBadGateway}
	_, err := testFetcher(up.server(t)).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DexScreener pair")
	assert.Contains(t, err.Error(), "502")
}

func TestExtractFrePriceFromQuoteSide(t *testing.T) {
	usd, native, err := ExtractFrePrice(json.RawMessage(
		`{"pair": {"baseToken": {"symbol": "TON"}, "quoteToken": {"symbol": " FRE "}, "priceUsd": "0.5", "priceNative": "0.1"}}`))
	require.NoError(t, err)
	assert.True(t, usd.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, native.Equal(decimal.RequireFromString("0.1")))
}

type stubSource struct {
	snap Snapshot
	err  error
}

func (s stubSource) Fetch(context.Context) (Snapshot, error) {
	return s.snap, s.err
}

func validSnapshot(fetchedAt time.Time) model.PriceSnapshot {
	return model.PriceSnapshot{
		ID:           uuid.NewString(),
		Source:       SnapshotSourceName,
		PriceUsd:     decimal.RequireFromString("0.01"),
		PriceEur:     decimal.RequireFromString("0.0092"),
		PriceTon:     decimal.RequireFromString("0.002"),
		TonPriceUsd:  decimal.NewFromInt(5),
		UsdToEurRate: decimal.RequireFromString("0.92"),
		FetchedAt:    fetchedAt,
	}
}

func TestJobRunOnce(t *testing.T) {
	snap := Snapshot{
		PriceSnapshot: validSnapshot(time.Now().UTC()),
		Raw:           map[string]json.RawMessage{"pair": json.RawMessage(pairBody)},
	}
	var stored []model.PriceSnapshot
	store := StoreFunc(func(_ context.Context, s model.PriceSnapshot, raw map[string]json.RawMessage) error {
		require.Contains(t, raw, "pair")
		stored = append(stored, s)
		return nil
	})

	got, err := NewJob(stubSource{snap: snap}, store, nil, logger).RunOnce(context.Background())
	require.NoError(t, err)
	if d := cmp.Diff(snap.PriceSnapshot, got, decimalComparer); d != "" {
		t.Fatalf("unexpected snapshot: %s", d)
	}
	require.Len(t, stored, 1)

	_, err = NewJob(stubSource{err: ErrInvalidPayload}, store, nil, logger).RunOnce(context.Background())
	assert.True(t, errors.Is(err, ErrInvalidPayload))
	assert.Len(t, stored, 1)

	failing := StoreFunc(func(context.Context, model.PriceSnapshot, map[string]json.RawMessage) error {
		return errors.New("db down")
	})
	_, err = NewJob(stubSource{snap: snap}, failing, nil, logger).RunOnce(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestRateReader(t *testing.T) {
	ctx := context.Background()
	good := validSnapshot(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	bad := good
	bad.PriceEur = decimal.Zero

	var cacheCalls, dbCalls int
	cache := SnapshotSourceFunc(func(context.Context) (model.PriceSnapshot, error) {
		cacheCalls++
		return bad, nil
	})
	db := SnapshotSourceFunc(func(context.Context) (model.PriceSnapshot, error) {
		dbCalls++
		return good, nil
	})

	reader := NewRateReader(logger, time.Hour, cache, db)
	snap, err := reader.Rate(ctx)
	require.NoError(t, err)
	assert.Equal(t, good.ID, snap.ID)

	// held until the interval passes
	_, err = reader.Rate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cacheCalls)
	assert.Equal(t, 1, dbCalls)

	empty := NewRateReader(logger, time.Hour, SnapshotSourceFunc(func(context.Context) (model.PriceSnapshot, error) {
		return model.PriceSnapshot{}, ErrNoSnapshot
	}))
	_, err = empty.Rate(ctx)
	assert.True(t, errors.Is(err, ErrNoSnapshot))
}

func TestRateReaderKeepsLastGoodSnapshot(t *testing.T) {
	ctx := context.Background()
	good := validSnapshot(time.Now().UTC())
	fail := false
	reader := NewRateReader(logger, time.Nanosecond, SnapshotSourceFunc(func(context.Context) (model.PriceSnapshot, error) {
		if fail {
			return model.PriceSnapshot{}, errors.New("unavailable")
		}
		return good, nil
	}))
	_, err := reader.Rate(ctx)
	require.NoError(t, err)

	fail = true
	time.Sleep(time.Millisecond)
	snap, err := reader.Rate(ctx)
	require.NoError(t, err)
	assert.Equal(t, good.ID, snap.ID)
}

func TestValidateSnapshot(t *testing.T) {
	snap := validSnapshot(time.Now())
	assert.NoError(t, ValidateSnapshot(snap))
	snap.UsdToEurRate = decimal.NewFromInt(-1)
	assert.True(t, errors.Is(ValidateSnapshot(snap), ErrInvalidPayload))
}

func TestSnapshotCache(t *testing.T) {
	addr := os.Getenv("FRANCPAY_TEST_REDIS")
	if addr == "" {
		t.Skip("FRANCPAY_TEST_REDIS not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	key := "francpay:test:" + uuid.NewString()
	defer client.Del(ctx, key)

	cache := NewSnapshotCache(client, key)
	_, err := cache.Latest(ctx)
	require.True(t, errors.Is(err, ErrNoSnapshot))

	base := time.Now().UTC().Truncate(time.Millisecond)
	older := validSnapshot(base.Add(-48 * time.Hour))
	newer := validSnapshot(base)
	require.NoError(t, cache.Put(ctx, newer))
	require.NoError(t, cache.Put(ctx, older))

	latest, err := cache.Latest(ctx)
	require.NoError(t, err)
	if d := cmp.Diff(newer, latest, decimalComparer); d != "" {
		t.Fatalf("unexpected cached snapshot: %s", d)
	}

	removed, err := cache.Prune(ctx, base.Add(-CacheRetention))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	count, err := cache.zset.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
