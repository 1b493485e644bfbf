package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/onemorebsmith/francpay-core/src/model"
	"github.com/pkg/errors"
)

// PutPriceSnapshot stores a snapshot along with the raw upstream payloads
func PutPriceSnapshot(ctx context.Context, snap model.PriceSnapshot, raw map[string]json.RawMessage) error {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return errors.Wrap(err, "failed to marshal raw price payloads")
	}
	fetchedAt := snap.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `INSERT into "FrePriceSnapshot"(id, source, "priceUsd", "priceEur", "priceTon",
				"tonPriceUsd", "usdToEurRate", "rawPayload", "fetchedAt")
			VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::jsonb, $9)
			ON CONFLICT DO NOTHING`,
			snap.ID, snap.Source, snap.PriceUsd.String(), snap.PriceEur.String(), snap.PriceTon.String(),
			snap.TonPriceUsd.String(), snap.UsdToEurRate.String(), string(encoded), fetchedAt)
		if err != nil {
			return errors.Wrap(err, "failed to record price snapshot to database")
		}
		return nil
	})
}

// GetLatestPriceSnapshot returns ErrNotFound when the table is empty
func GetLatestPriceSnapshot(ctx context.Context) (model.PriceSnapshot, error) {
	var snap model.PriceSnapshot
	err := DoQuery(ctx, func(conn *pgx.Conn) error {
		var usd, eur, tonPrice, tonUsd, rate string
		err := conn.QueryRow(ctx, `SELECT id::text, COALESCE(source, ''),
				COALESCE("priceUsd", 0)::text, COALESCE("priceEur", 0)::text, COALESCE("priceTon", 0)::text,
				COALESCE("tonPriceUsd", 0)::text, COALESCE("usdToEurRate", 0)::text, "fetchedAt"
			FROM "FrePriceSnapshot" ORDER BY "fetchedAt" DESC LIMIT 1`).
			Scan(&snap.ID, &snap.Source, &usd, &eur, &tonPrice, &tonUsd, &rate, &snap.FetchedAt)
		if err != nil {
			return notFound(err, "failed loading latest price snapshot")
		}
		snap.PriceUsd = model.CoerceDecimal(usd)
		snap.PriceEur = model.CoerceDecimal(eur)
		snap.PriceTon = model.CoerceDecimal(tonPrice)
		snap.TonPriceUsd = model.CoerceDecimal(tonUsd)
		snap.UsdToEurRate = model.CoerceDecimal(rate)
		snap.FetchedAt = snap.FetchedAt.UTC()
		return nil
	})
	return snap, err
}
