package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/onemorebsmith/francpay-core/src/model"
	"github.com/shopspring/decimal"
)

func GetProfile(ctx context.Context, userID string) (model.Profile, error) {
	var p model.Profile
	err := DoQuery(ctx, func(conn *pgx.Conn) error {
		err := conn.QueryRow(ctx, `SELECT "authUserId"::text, COALESCE(username, ''), COALESCE(email, ''),
				COALESCE("referralCode", ''), COALESCE("firstName", ''), COALESCE("lastName", ''),
				COALESCE("phoneNumber", ''), COALESCE(city, ''), COALESCE(country, '')
			FROM "UserProfile" WHERE "authUserId" = $1`, userID).
			Scan(&p.AuthUserID, &p.Username, &p.Email, &p.ReferralCode, &p.FirstName,
				&p.LastName, &p.PhoneNumber, &p.City, &p.Country)
		if err != nil {
			return notFound(err, "failed loading profile %s", userID)
		}
		return nil
	})
	return p, err
}

// UpdateReferralCode stores a backfilled code and returns what the row holds
func UpdateReferralCode(ctx context.Context, userID, code string) (string, error) {
	var stored string
	err := DoQuery(ctx, func(conn *pgx.Conn) error {
		err := conn.QueryRow(ctx, `UPDATE "UserProfile" SET "referralCode" = $2
			WHERE "authUserId" = $1 RETURNING COALESCE("referralCode", '')`, userID, code).Scan(&stored)
		if err != nil {
			return notFound(err, "failed assigning referral code to %s", userID)
		}
		return nil
	})
	return stored, err
}

// Backend exposes the package level queries behind an interface friendly type
type Backend struct{}

func (Backend) GetProfile(ctx context.Context, userID string) (model.Profile, error) {
	return GetProfile(ctx, userID)
}

func (Backend) UpdateReferralCode(ctx context.Context, userID, code string) (string, error) {
	return UpdateReferralCode(ctx, userID, code)
}

func (Backend) GetLedgerRows(ctx context.Context, userID string, limit int) ([]model.LedgerRow, error) {
	return GetLedgerRows(ctx, userID, limit)
}

func (Backend) GetLedgerRow(ctx context.Context, id string) (model.LedgerRow, error) {
	return GetLedgerRow(ctx, id)
}

func (Backend) RegisterOnchainDeposit(ctx context.Context, deposit model.DepositRegistration) error {
	return RegisterOnchainDeposit(ctx, deposit)
}

func (Backend) GetBalance(ctx context.Context, userID string) (decimal.Decimal, bool, error) {
	return GetBalance(ctx, userID)
}
