package activity

import (
	"strings"

	"github.com/onemorebsmith/francpay-core/src/model"
	"github.com/shopspring/decimal"
)

// DefaultCounterparty stands in for blank counterparties in titles
const DefaultCounterparty = "FrancPay"

const (
	groupSeparator   = "\u202f" // fr-FR narrow no-break space
	decimalSeparator = ","
)

func formatCounterparty(value string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return DefaultCounterparty
}

// FormatTitle builds the human title of a ledger row
func FormatTitle(context, counterparty string, amount decimal.Decimal, metadata map[string]any) string {
	category := Classify(context, Extras{Counterparty: counterparty, Metadata: metadata})
	target := formatCounterparty(counterparty)
	switch category {
	case model.CategoryDeposit:
		return "Depot on-chain"
	case model.CategoryMerchant:
		return "Paiement " + target
	case model.CategoryWallet:
		return "Wallet " + target
	case model.CategoryTransfer:
		return "Transfert " + target
	case model.CategoryStaking:
		if IsStakingWithdraw(context, metadata) {
			return "Retrait staking " + target
		}
		if !amount.IsNegative() {
			return "Recompense " + target
		}
		return "Blocage " + target
	default:
		return "Operation " + target
	}
}

// FormatAmount renders a FRE amount with two decimals in fr-FR style. Negative
// values always carry '-', positive ones '+' only when showSign is set.
func FormatAmount(value decimal.Decimal, showSign bool) string {
	absolute := value.Abs()
	formatted := formatFixed2(absolute)
	if absolute.IsZero() {
		if showSign {
			return "+" + formatted
		}
		return formatted
	}
	if value.IsNegative() {
		return "-" + formatted
	}
	if showSign {
		return "+" + formatted
	}
	return formatted
}

// SplitAmount splits a formatted balance into its whole and cents parts
func SplitAmount(value decimal.Decimal) (whole, cents string) {
	parts := strings.SplitN(FormatAmount(value, false), decimalSeparator, 2)
	if len(parts) < 2 {
		return parts[0], "00"
	}
	return parts[0], parts[1]
}

func formatFixed2(absolute decimal.Decimal) string {
	fixed := absolute.StringFixed(2)
	intPart, fracPart, _ := strings.Cut(fixed, ".")
	return groupThousands(intPart) + decimalSeparator + fracPart
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var sb strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		sb.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if sb.Len() > 0 {
			sb.WriteString(groupSeparator)
		}
		sb.WriteString(digits[i : i+3])
	}
	return sb.String()
}

func directionOf(amount decimal.Decimal) model.Direction {
	switch amount.Sign() {
	case 1:
		return model.DirectionIn
	case -1:
		return model.DirectionOut
	default:
		return model.DirectionNeutral
	}
}

// MapToDetail derives the display record of a row
func MapToDetail(row model.LedgerRow) model.TransactionDetail {
	metadata := model.SanitizeMetadata(row.Metadata)
	return model.TransactionDetail{
		ID:           row.ID,
		Context:      row.Context,
		Counterparty: row.Counterparty,
		Amount:       row.AmountFre,
		Fee:          row.FeeFre,
		CreatedAt:    row.CreatedAt,
		Metadata:     metadata,
		Category:     Classify(row.Context, Extras{Counterparty: row.Counterparty, Metadata: metadata}),
		Direction:    directionOf(row.AmountFre),
		Title:        FormatTitle(row.Context, row.Counterparty, row.AmountFre, metadata),
	}
}
