package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionCategory string

const (
	CategoryDeposit  TransactionCategory = "deposit"
	CategoryTransfer TransactionCategory = "transfer"
	CategoryWallet   TransactionCategory = "wallet"
	CategoryMerchant TransactionCategory = "merchant"
	CategoryStaking  TransactionCategory = "staking"
	CategoryOther    TransactionCategory = "other"
)

type Direction string

const (
	DirectionIn      Direction = "in"
	DirectionOut     Direction = "out"
	DirectionNeutral Direction = "neutral"
)

// LedgerRow - one entry of the user's payment transaction table, already
// narrowed from the backend's loosely typed shape
type LedgerRow struct {
	ID           string
	Context      string
	Counterparty string
	AmountFre    decimal.Decimal
	FeeFre       decimal.Decimal
	Metadata     map[string]any
	CreatedAt    time.Time
}

// TransactionDetail is the display form of a LedgerRow. Built on demand, never stored.
type TransactionDetail struct {
	ID           string
	Context      string
	Counterparty string
	Amount       decimal.Decimal
	Fee          decimal.Decimal
	CreatedAt    time.Time
	Metadata     map[string]any
	Category     TransactionCategory
	Direction    Direction
	Title        string
}

// RewardEntry is the per-row provenance kept inside an aggregate bucket
type RewardEntry struct {
	ID         string          `json:"id"`
	AmountFre  decimal.Decimal `json:"amountFre"`
	CreatedAt  time.Time       `json:"createdAt"`
	PayoutAt   *string         `json:"payoutAt"`
	PositionID *string         `json:"positionId"`
}

// SanitizeMetadata keeps json objects and drops anything else (arrays, scalars, null)
func SanitizeMetadata(raw any) map[string]any {
	if m, ok := raw.(map[string]any); ok && m != nil {
		return m
	}
	return nil
}

// CoerceDecimal reads an amount the backend may deliver as a number, a
// numeric string or garbage. Anything unreadable is zero.
func CoerceDecimal(raw any) decimal.Decimal {
	switch v := raw.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return v
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero
		}
		return *v
	case float64:
		return decimal.NewFromFloat(v)
	case float32:
		return decimal.NewFromFloat32(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int32:
		return decimal.NewFromInt32(v)
	case int64:
		return decimal.NewFromInt(v)
	case uint64:
		return decimal.NewFromInt(int64(v))
	case *string:
		if v == nil {
			return decimal.Zero
		}
		return CoerceDecimal(*v)
	case []byte:
		return CoerceDecimal(string(v))
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero
		}
		return d
	case fmt.Stringer:
		return CoerceDecimal(v.String())
	default:
		return decimal.Zero
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

// ParseTimestamp accepts the timestamp shapes postgres and the rest api emit.
// Unparseable values return false.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

func coerceTime(raw any) time.Time {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC()
	case string:
		t, _ := ParseTimestamp(v)
		return t
	case float64:
		return time.UnixMilli(int64(v)).UTC()
	default:
		return time.Time{}
	}
}

func coerceString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// LedgerRowFromRecord narrows a realtime change record (decoded json) into a LedgerRow
func LedgerRowFromRecord(record map[string]any) (LedgerRow, bool) {
	if record == nil {
		return LedgerRow{}, false
	}
	id := coerceString(record["id"])
	if id == "" {
		return LedgerRow{}, false
	}
	return LedgerRow{
		ID:           id,
		Context:      coerceString(record["context"]),
		Counterparty: coerceString(record["counterparty"]),
		AmountFre:    CoerceDecimal(record["amountFre"]),
		FeeFre:       CoerceDecimal(record["feeFre"]),
		Metadata:     SanitizeMetadata(record["metadata"]),
		CreatedAt:    coerceTime(record["createdAt"]),
	}, true
}
