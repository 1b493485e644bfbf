package onchain

import (
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/tonkeeper/tongo/ton"
)

// Target is a watched address resolved once into the two forms used for matching
type Target struct {
	Friendly string // bounceable, url safe
	RawHex   string // account hash, lowercase hex
}

// ResolveAddress parses any textual TON address. Unparseable input is kept as
// is, with ':' stripped for the raw form, so matching can still fall back to a
// textual comparison.
func ResolveAddress(address string) Target {
	id, err := ton.ParseAccountID(strings.TrimSpace(address))
	if err != nil {
		return Target{Friendly: address, RawHex: strings.ReplaceAll(address, ":", "")}
	}
	return Target{
		Friendly: id.ToHuman(true, false),
		RawHex:   hex.EncodeToString(id.Address[:]),
	}
}

// MatchAddress reports whether value designates the same account as target,
// whatever textual encoding either side uses
func MatchAddress(value string, target Target) bool {
	if value == "" {
		return false
	}
	id, err := ton.ParseAccountID(strings.TrimSpace(value))
	if err == nil {
		if id.ToHuman(true, false) == target.Friendly {
			return true
		}
		return hex.EncodeToString(id.Address[:]) == target.RawHex
	}

	stripped := strings.ToLower(strings.Map(func(r rune) rune {
		if unicode.Is(unicode.ASCII_Hex_Digit, r) {
			return r
		}
		return -1
	}, value))
	if len(stripped) > len(target.RawHex) {
		stripped = stripped[len(stripped)-len(target.RawHex):]
	}
	return stripped == strings.ToLower(target.RawHex) || value == target.Friendly
}

// NormalizeComment strips every whitespace and uppercases, so deposit tags
// compare regardless of case and spacing
func NormalizeComment(value string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, value))
}
