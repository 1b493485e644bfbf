package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/onemorebsmith/francpay-core/src/model"
	"github.com/pkg/errors"
)

// RegisterOnchainDeposit calls the crediting rpc. The function is keyed on the
// tx hash server side, a repeated hash is a silent no-op.
func RegisterOnchainDeposit(ctx context.Context, deposit model.DepositRegistration) error {
	metadata := deposit.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal metadata of deposit %s", deposit.TxHash)
	}
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `SELECT rpc_register_onchain_deposit(
				p_tx_hash => $1,
				p_wallet_address => $2,
				p_amount_ton => $3::numeric,
				p_amount_fre => $4::numeric,
				p_memo_tag => $5,
				p_metadata => $6::jsonb)`,
			deposit.TxHash, string(deposit.WalletAddress),
			deposit.AmountTon.String(), deposit.AmountFre.String(),
			deposit.MemoTag, string(encoded))
		if err != nil {
			return errors.Wrapf(err, "failed registering deposit %s", deposit.TxHash)
		}
		return nil
	})
}
