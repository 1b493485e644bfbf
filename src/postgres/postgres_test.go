package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/onemorebsmith/francpay-core/src/common"
	"github.com/onemorebsmith/francpay-core/src/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var logger *zap.Logger
var enabled bool

const testSchema = `
DROP TABLE IF EXISTS "UserPaymentTransaction", "UserWalletBalance", "UserProfile", "OnchainDeposit", "FrePriceSnapshot";
CREATE TABLE "UserPaymentTransaction" (
	id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	"authUserId" uuid NOT NULL,
	context text,
	counterparty text,
	"amountFre" numeric,
	"feeFre" numeric,
	metadata jsonb,
	"createdAt" timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE "UserWalletBalance" ("authUserId" uuid PRIMARY KEY, "balanceFre" numeric);
CREATE TABLE "UserProfile" (
	"authUserId" uuid PRIMARY KEY, username text, email text, "referralCode" text,
	"firstName" text, "lastName" text, "phoneNumber" text, city text, country text
);
CREATE TABLE "OnchainDeposit" (
	tx_hash text PRIMARY KEY, wallet text, amount_ton numeric, amount_fre numeric, memo_tag text, metadata jsonb
);
CREATE TABLE "FrePriceSnapshot" (
	id uuid PRIMARY KEY, source text, "priceUsd" numeric, "priceEur" numeric, "priceTon" numeric,
	"tonPriceUsd" numeric, "usdToEurRate" numeric, "rawPayload" jsonb, "fetchedAt" timestamptz NOT NULL
);
CREATE OR REPLACE FUNCTION rpc_register_onchain_deposit(p_tx_hash text, p_wallet_address text,
	p_amount_ton numeric, p_amount_fre numeric, p_memo_tag text, p_metadata jsonb) RETURNS void AS $$
BEGIN
	INSERT INTO "OnchainDeposit" VALUES (p_tx_hash, p_wallet_address, p_amount_ton, p_amount_fre, p_memo_tag, p_metadata)
	ON CONFLICT (tx_hash) DO NOTHING;
END;
$$ LANGUAGE plpgsql;
`

func TestMain(m *testing.M) {
	logger = common.ConfigureZap(zap.DebugLevel)
	if conn := os.Getenv("FRANCPAY_TEST_PG"); conn != "" {
		enabled = true
		ConfigurePostgres(conn)
		DoExecOrDie(context.Background(), testSchema)
	}
	os.Exit(m.Run())
}

func requirePostgres(t *testing.T) {
	t.Helper()
	if !enabled {
		t.Skip("FRANCPAY_TEST_PG not set")
	}
}

var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func TestLedgerRows(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()
	user := uuid.NewString()
	base := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	for i, amount := range []string{"5", "-2.5", "3"} {
		DoExecOrDie(ctx, `INSERT INTO "UserPaymentTransaction"("authUserId", context, counterparty, "amountFre", "feeFre", metadata, "createdAt")
			VALUES ($1, 'staking_reward', 'APY-FLEX', $2::numeric, 0, '{"productCode": "APY-FLEX"}', $3)`,
			user, amount, base.Add(time.Duration(i)*time.Minute))
	}
	DoExecOrDie(ctx, `INSERT INTO "UserPaymentTransaction"("authUserId", context, "amountFre", metadata, "createdAt")
		VALUES ($1, 'merchant_payment', NULL, '[1,2]', $2)`, user, base.Add(time.Hour))

	rows, err := GetLedgerRows(ctx, user, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	// newest first, array metadata dropped, null amount coerced
	if rows[0].Context != "merchant_payment" || rows[0].Metadata != nil || !rows[0].AmountFre.IsZero() {
		t.Fatalf("unexpected newest row %+v", rows[0])
	}
	if !rows[1].AmountFre.Equal(decimal.NewFromInt(3)) || rows[1].Metadata["productCode"] != "APY-FLEX" {
		t.Fatalf("unexpected row %+v", rows[1])
	}

	single, err := GetLedgerRow(ctx, rows[1].ID)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(rows[1], single, decimalComparer); d != "" {
		t.Fatalf("single row lookup differs: %s", d)
	}
	if _, err := GetLedgerRow(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBalanceAndProfile(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()
	user := uuid.NewString()

	if _, found, err := GetBalance(ctx, user); err != nil || found {
		t.Fatalf("expected no balance, got found=%t err=%v", found, err)
	}
	DoExecOrDie(ctx, `INSERT INTO "UserWalletBalance" VALUES ($1, 1520.07)`, user)
	balance, found, err := GetBalance(ctx, user)
	if err != nil || !found || !balance.Equal(decimal.RequireFromString("1520.07")) {
		t.Fatalf("unexpected balance %s found=%t err=%v", balance, found, err)
	}

	if _, err := GetProfile(ctx, user); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	DoExecOrDie(ctx, `INSERT INTO "UserProfile"("authUserId", username, email) VALUES ($1, 'alice', 'a@x.fr')`, user)
	profile, err := GetProfile(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if profile.Username != "alice" || profile.ReferralCode != "" {
		t.Fatalf("unexpected profile %+v", profile)
	}
	stored, err := UpdateReferralCode(ctx, user, "FRP-ABCDEF1234")
	if err != nil || stored != "FRP-ABCDEF1234" {
		t.Fatalf("unexpected referral update %q %v", stored, err)
	}
}

func TestRegisterOnchainDepositIsIdempotent(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()
	tag := "FRP-1234"
	deposit := model.DepositRegistration{
		TxHash:        "hash-" + uuid.NewString(),
		WalletAddress: "EQwatched",
		AmountTon:     decimal.RequireFromString("1.5"),
		AmountFre:     decimal.RequireFromString("1.5"),
		MemoTag:       &tag,
		Metadata:      map[string]any{"lt": "42"},
	}
	for i := 0; i < 2; i++ {
		if err := RegisterOnchainDeposit(ctx, deposit); err != nil {
			t.Fatal(err)
		}
	}
	deposit.MemoTag = nil
	deposit.TxHash = "hash-" + uuid.NewString()
	if err := (Backend{}).RegisterOnchainDeposit(ctx, deposit); err != nil {
		t.Fatal(err)
	}

	var count int
	err := DoQuery(ctx, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx, `SELECT count(*) FROM "OnchainDeposit" WHERE wallet = 'EQwatched'`).Scan(&count)
	})
	if err != nil {
		t.Fatal(err)
	}
	if count < 2 {
		t.Fatalf("expected both deposits recorded once, got %d", count)
	}
}

func TestPriceSnapshots(t *testing.T) {
	requirePostgres(t)
	ctx := context.Background()
	DoExecOrDie(ctx, `DELETE FROM "FrePriceSnapshot"`)
	if _, err := GetLatestPriceSnapshot(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	older := model.PriceSnapshot{
		ID: uuid.NewString(), Source: "gecko_terminal",
		PriceUsd: decimal.RequireFromString("0.01"), PriceEur: decimal.RequireFromString("0.0092"),
		PriceTon: decimal.RequireFromString("0.002"), TonPriceUsd: decimal.NewFromInt(5),
		UsdToEurRate: decimal.RequireFromString("0.92"),
		FetchedAt:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := older
	newer.ID = uuid.NewString()
	newer.PriceUsd = decimal.RequireFromString("0.02")
	newer.FetchedAt = older.FetchedAt.Add(time.Minute)
	raw := map[string]json.RawMessage{"pair": json.RawMessage(`{"pairs": []}`)}
	for _, snap := range []model.PriceSnapshot{newer, older} {
		if err := PutPriceSnapshot(ctx, snap, raw); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := GetLatestPriceSnapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(newer, latest, decimalComparer); d != "" {
		t.Fatalf("unexpected latest snapshot: %s", d)
	}
}

func TestListenChanges(t *testing.T) {
	requirePostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	channel := fmt.Sprintf("test_changes_%d", time.Now().UnixNano())
	events := make(chan model.ChangeEvent, 2)
	done := make(chan error, 1)
	go func() {
		done <- ListenChanges(ctx, channel, logger, func(ev model.ChangeEvent) {
			select {
			case events <- ev:
			default:
			}
		})
	}()

	payload := `{"type": "INSERT", "table": "UserWalletBalance", "schema": "public", "record": {"balanceFre": 12}, "old_record": null}`
	deadline := time.After(5 * time.Second)
	for {
		DoExecOrDie(ctx, `SELECT pg_notify($1, 'garbage')`, channel)
		DoExecOrDie(ctx, `SELECT pg_notify($1, $2)`, channel, payload)
		select {
		case ev := <-events:
			if ev.Type != model.ChangeInsert || ev.Table != "UserWalletBalance" || ev.Record["balanceFre"] != float64(12) {
				t.Fatalf("unexpected event %+v", ev)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatal(err)
			}
			return
		case <-deadline:
			t.Fatal("no change event received")
		case <-time.After(200 * time.Millisecond):
			// the listener may not be subscribed yet, notify again
		}
	}
}
