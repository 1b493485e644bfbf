// Package activity turns raw ledger rows into the user's activity feed:
// classification, titles, amount formatting and staking reward aggregation.
// Everything in here is pure; malformed rows degrade to zero amounts and the
// `other` category instead of failing.
package activity

import (
	"encoding/json"
	"strings"

	"github.com/onemorebsmith/francpay-core/src/model"
)

var stakingKeywords = []string{"staking", "stake", "stak"}

// Extras carries the optional row fields consulted after the context keywords
type Extras struct {
	Counterparty string
	Metadata     map[string]any
}

func includesStakingKeyword(value string) bool {
	if value == "" {
		return false
	}
	normalized := strings.ToLower(value)
	for _, k := range stakingKeywords {
		if strings.Contains(normalized, k) {
			return true
		}
	}
	return false
}

func containsAny(value string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(value, n) {
			return true
		}
	}
	return false
}

// Classify resolves the category of a ledger row. First match wins, context
// keywords before counterparty before metadata.
func Classify(context string, extras Extras) model.TransactionCategory {
	if includesStakingKeyword(context) {
		return model.CategoryStaking
	}
	normalized := strings.ToLower(context)
	switch {
	case strings.Contains(normalized, "deposit"):
		return model.CategoryDeposit
	case containsAny(normalized, "merchant", "payment"):
		return model.CategoryMerchant
	case strings.Contains(normalized, "wallet"):
		return model.CategoryWallet
	case containsAny(normalized, "transfer", "contact"):
		return model.CategoryTransfer
	}

	if includesStakingKeyword(extras.Counterparty) {
		return model.CategoryStaking
	}

	if extras.Metadata != nil {
		if encoded, err := json.Marshal(extras.Metadata); err == nil && includesStakingKeyword(string(encoded)) {
			return model.CategoryStaking
		}
		if _, ok := extras.Metadata["productCode"]; ok {
			return model.CategoryStaking
		}
	}
	return model.CategoryOther
}

func metadataString(metadata map[string]any, key string) (string, bool) {
	if metadata == nil {
		return "", false
	}
	v, ok := metadata[key].(string)
	return v, ok
}

// IsStakingWithdraw reports whether a staking row releases principal rather
// than paying a reward or locking funds
func IsStakingWithdraw(context string, metadata map[string]any) bool {
	normalized := strings.ToLower(context)
	if containsAny(normalized, "withdraw", "unlock") {
		return true
	}
	if txType, ok := metadataString(metadata, "transactionType"); ok {
		switch strings.ToLower(txType) {
		case "staking_withdraw", "staking_unlock":
			return true
		}
	}
	return false
}

var categoryLabels = map[model.TransactionCategory]string{
	model.CategoryDeposit:  "Dépôt",
	model.CategoryTransfer: "Transfert",
	model.CategoryWallet:   "Wallet",
	model.CategoryMerchant: "Paiement",
	model.CategoryStaking:  "Staking",
	model.CategoryOther:    "Autre",
}

func CategoryLabel(category model.TransactionCategory) string {
	if label, ok := categoryLabels[category]; ok {
		return label
	}
	return categoryLabels[model.CategoryOther]
}
