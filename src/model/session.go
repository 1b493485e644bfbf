package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Profile struct {
	AuthUserID   string
	Username     string
	Email        string
	ReferralCode string
	FirstName    string
	LastName     string
	PhoneNumber  string
	City         string
	Country      string
}

type ChangeEventType string

const ( // matches the `type` field of the change trigger payload
	ChangeInsert ChangeEventType = "INSERT"
	ChangeUpdate ChangeEventType = "UPDATE"
	ChangeDelete ChangeEventType = "DELETE"
)

// ChangeEvent - a row change delivered by the realtime stream. Record is the
// new row (nil on delete), OldRecord the previous one when available.
type ChangeEvent struct {
	Type      ChangeEventType `json:"type"`
	Table     string          `json:"table"`
	Schema    string          `json:"schema"`
	Record    map[string]any  `json:"record"`
	OldRecord map[string]any  `json:"old_record"`
}

// PriceSnapshot - one normalized FRE market price reading
type PriceSnapshot struct {
	ID           string          `json:"id"`
	Source       string          `json:"source"`
	PriceUsd     decimal.Decimal `json:"priceUsd"`
	PriceEur     decimal.Decimal `json:"priceEur"`
	PriceTon     decimal.Decimal `json:"priceTon"`
	TonPriceUsd  decimal.Decimal `json:"tonPriceUsd"`
	UsdToEurRate decimal.Decimal `json:"usdToEurRate"`
	FetchedAt    time.Time       `json:"fetchedAt"`
}
