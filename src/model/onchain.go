package model

import "github.com/shopspring/decimal"

type TonWalletAddr string

// NanoTonDecimals is the scale of native TON amounts
const NanoTonDecimals = 9

// ParsedTonTransaction - an incoming transfer to the watched address, normalized
// from whichever indexer produced it. Hash is the dedup key.
type ParsedTonTransaction struct {
	Hash              string
	Lt                string
	AmountTon         decimal.Decimal
	Memo              string
	CommentNormalized string
	Utime             *int64
	Metadata          map[string]any
}

// DepositRegistration is the payload of rpc_register_onchain_deposit
type DepositRegistration struct {
	TxHash        string
	WalletAddress TonWalletAddr
	AmountTon     decimal.Decimal
	AmountFre     decimal.Decimal
	MemoTag       *string
	Metadata      map[string]any
}
