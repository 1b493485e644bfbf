package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/onemorebsmith/francpay-core/src/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const ledgerColumns = `id::text, COALESCE(context, ''), COALESCE(counterparty, ''),
	COALESCE("amountFre", 0)::text, COALESCE("feeFre", 0)::text,
	COALESCE(metadata::text, 'null'), "createdAt"`

func scanLedgerRow(row pgx.Row) (model.LedgerRow, error) {
	var (
		out               model.LedgerRow
		amount, fee, meta string
		createdAt         time.Time
	)
	if err := row.Scan(&out.ID, &out.Context, &out.Counterparty, &amount, &fee, &meta, &createdAt); err != nil {
		return out, err
	}
	out.AmountFre = model.CoerceDecimal(amount)
	out.FeeFre = model.CoerceDecimal(fee)
	out.CreatedAt = createdAt.UTC()

	// the metadata column is free form, keep objects only
	var decoded any
	if err := json.Unmarshal([]byte(meta), &decoded); err == nil {
		out.Metadata = model.SanitizeMetadata(decoded)
	}
	return out, nil
}

// GetLedgerRows returns the latest rows of a user, newest first
func GetLedgerRows(ctx context.Context, userID string, limit int) ([]model.LedgerRow, error) {
	var result []model.LedgerRow
	err := DoQuery(ctx, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+ledgerColumns+` FROM "UserPaymentTransaction"
			WHERE "authUserId" = $1
			ORDER BY "createdAt" DESC LIMIT $2`, userID, limit)
		if err != nil {
			return errors.Wrapf(err, "failed querying ledger rows for %s", userID)
		}
		defer rows.Close()
		for rows.Next() {
			row, err := scanLedgerRow(rows)
			if err != nil {
				return errors.Wrap(err, "failed scanning ledger row")
			}
			result = append(result, row)
		}
		return rows.Err()
	})
	return result, err
}

// GetLedgerRow loads a single row for the detail view
func GetLedgerRow(ctx context.Context, id string) (model.LedgerRow, error) {
	var result model.LedgerRow
	err := DoQuery(ctx, func(conn *pgx.Conn) error {
		row, err := scanLedgerRow(conn.QueryRow(ctx,
			`SELECT `+ledgerColumns+` FROM "UserPaymentTransaction" WHERE id::text = $1`, id))
		if err != nil {
			return notFound(err, "failed loading transaction %s", id)
		}
		result = row
		return nil
	})
	return result, err
}

// GetBalance returns the FRE balance of a user, found is false when the user
// has no wallet row yet
func GetBalance(ctx context.Context, userID string) (balance decimal.Decimal, found bool, err error) {
	err = DoQuery(ctx, func(conn *pgx.Conn) error {
		var raw string
		qErr := conn.QueryRow(ctx, `SELECT COALESCE("balanceFre", 0)::text FROM "UserWalletBalance"
			WHERE "authUserId" = $1`, userID).Scan(&raw)
		if errors.Is(qErr, pgx.ErrNoRows) {
			return nil
		}
		if qErr != nil {
			return errors.Wrapf(qErr, "failed loading balance for %s", userID)
		}
		balance, found = model.CoerceDecimal(raw), true
		return nil
	})
	return balance, found, err
}
