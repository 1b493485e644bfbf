package home

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const referralPrefix = "FRP"

func randomSuffix() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
}

// GenerateReferralCode derives a stable code from a user id:
// FRP-<first 6 alphanumerics, X padded><last 4>. Without an id the code is random.
func GenerateReferralCode(userID string) string {
	if userID == "" {
		return referralPrefix + "-" + randomSuffix() + randomSuffix()
	}
	normalized := strings.ToUpper(strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return -1
	}, userID))

	head := normalized
	if len(head) > 6 {
		head = head[:6]
	}
	head += strings.Repeat("X", 6-len(head))

	tail := normalized
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	if tail == "" {
		tail = randomSuffix()
	}
	return referralPrefix + "-" + head + tail
}

// DepositTag is the memo a user puts on an on-chain transfer so the backend can
// attribute it: the referral code, or a tag derived from the user id
func DepositTag(referralCode, userID string) string {
	if referralCode != "" {
		return referralCode
	}
	if userID == "" {
		return ""
	}
	compact := strings.ReplaceAll(userID, "-", "")
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return referralPrefix + "-" + strings.ToUpper(compact)
}
