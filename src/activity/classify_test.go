package activity

import (
	"testing"

	"github.com/onemorebsmith/francpay-core/src/model"
	"github.com/shopspring/decimal"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		context  string
		extras   Extras
		expected model.TransactionCategory
	}{
		{"staking beats transfer", "user_staking_transfer", Extras{}, model.CategoryStaking},
		{"stake keyword", "STAKE_LOCK", Extras{}, model.CategoryStaking},
		{"deposit", "onchain_deposit", Extras{}, model.CategoryDeposit},
		{"deposit beats payment", "deposit_payment", Extras{}, model.CategoryDeposit},
		{"merchant", "merchant_payment", Extras{}, model.CategoryMerchant},
		{"payment", "user_payment", Extras{}, model.CategoryMerchant},
		{"wallet", "wallet_withdrawal", Extras{}, model.CategoryWallet},
		{"transfer", "user_transfer", Extras{}, model.CategoryTransfer},
		{"contact", "contact_send", Extras{}, model.CategoryTransfer},
		{"counterparty", "reward", Extras{Counterparty: "Staking Flex"}, model.CategoryStaking},
		{"metadata keyword", "reward", Extras{Metadata: map[string]any{"source": "stakingEngine"}}, model.CategoryStaking},
		{"metadata product code", "reward", Extras{Metadata: map[string]any{"productCode": "APY-FLEX"}}, model.CategoryStaking},
		{"unknown", "adjustment", Extras{Counterparty: "Ops"}, model.CategoryOther},
		{"empty", "", Extras{}, model.CategoryOther},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Classify(c.context, c.extras)
			if got != c.expected {
				t.Fatalf("expected %s, got %s", c.expected, got)
			}
			// same input, same answer
			if again := Classify(c.context, c.extras); again != got {
				t.Fatalf("classification not deterministic: %s vs %s", got, again)
			}
		})
	}
}

func TestIsStakingWithdraw(t *testing.T) {
	if !IsStakingWithdraw("staking_withdraw", nil) {
		t.Fatal("withdraw context should be a withdraw")
	}
	if !IsStakingWithdraw("staking_UNLOCK", nil) {
		t.Fatal("unlock context should be a withdraw")
	}
	if !IsStakingWithdraw("staking", map[string]any{"transactionType": "STAKING_UNLOCK"}) {
		t.Fatal("metadata marker should be a withdraw")
	}
	if IsStakingWithdraw("staking_reward", map[string]any{"transactionType": 12}) {
		t.Fatal("non string marker must be ignored")
	}
}

func TestFormatTitle(t *testing.T) {
	cases := []struct {
		context, counterparty string
		amount                decimal.Decimal
		metadata              map[string]any
		expected              string
	}{
		{"merchant_payment", "", decimal.RequireFromString("12.5"), nil, "Paiement FrancPay"},
		{"merchant_payment", "  ", decimal.RequireFromString("12.5"), nil, "Paiement FrancPay"},
		{"merchant_payment", "Boulangerie", decimal.NewFromInt(-4), nil, "Paiement Boulangerie"},
		{"onchain_deposit", "TON", decimal.NewFromInt(10), nil, "Depot on-chain"},
		{"wallet_send", "UQabc", decimal.NewFromInt(-1), nil, "Wallet UQabc"},
		{"user_transfer", "alice", decimal.NewFromInt(-1), nil, "Transfert alice"},
		{"staking_withdraw", "APY-FLEX", decimal.NewFromInt(50), nil, "Retrait staking APY-FLEX"},
		{"staking", "APY-FLEX", decimal.NewFromInt(50), map[string]any{"transactionType": "staking_withdraw"}, "Retrait staking APY-FLEX"},
		{"staking_reward", "APY-FLEX", decimal.NewFromInt(2), nil, "Recompense APY-FLEX"},
		{"staking_reward", "APY-FLEX", decimal.Zero, nil, "Recompense APY-FLEX"},
		{"staking_lock", "APY-FLEX", decimal.NewFromInt(-100), nil, "Blocage APY-FLEX"},
		{"adjustment", "", decimal.NewFromInt(1), nil, "Operation FrancPay"},
	}
	for _, c := range cases {
		got := FormatTitle(c.context, c.counterparty, c.amount, c.metadata)
		if got != c.expected {
			t.Fatalf("%s/%q: expected %q, got %q", c.context, c.counterparty, c.expected, got)
		}
	}
}

func TestCategoryLabel(t *testing.T) {
	if CategoryLabel(model.CategoryDeposit) != "Dépôt" {
		t.Fatal("wrong deposit label")
	}
	if CategoryLabel(model.TransactionCategory("bogus")) != "Autre" {
		t.Fatal("unknown categories should use the fallback label")
	}
}
