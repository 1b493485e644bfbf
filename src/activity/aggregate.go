package activity

import (
	"sort"
	"strings"
	"time"

	"github.com/onemorebsmith/francpay-core/src/model"
	"github.com/shopspring/decimal"
)

const (
	AggregateContext     = "staking_reward_aggregate"
	AggregationTypeDaily = "staking_reward_daily"

	defaultProductCode = "staking"
	defaultRewardParty = "Staking"
	aggregateIDPrefix  = "stakeagg_"
	isoMillis          = "2006-01-02T15:04:05.000Z07:00"
)

// rewardBucket collects same-day same-product reward rows. Rebuilt on every
// aggregation call, only the id survives across calls.
type rewardBucket struct {
	id               string
	productCode      string
	counterparty     string
	payoutDate       string
	latestCreatedAt  time.Time
	total            decimal.Decimal
	transactionIDs   []string
	payoutTimestamps []string
	entries          []model.RewardEntry
}

func bucketID(productCode, dateKey string) string {
	return aggregateIDPrefix + strings.ToLower(productCode) + "_" + dateKey
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func optionalString(metadata map[string]any, key string) *string {
	if v, ok := metadataString(metadata, key); ok {
		return &v
	}
	return nil
}

// IsStakingReward reports whether a row is a positive, non-withdraw staking payout
func IsStakingReward(row model.LedgerRow) bool {
	metadata := model.SanitizeMetadata(row.Metadata)
	category := Classify(row.Context, Extras{Counterparty: row.Counterparty, Metadata: metadata})
	return category == model.CategoryStaking &&
		row.AmountFre.IsPositive() &&
		!IsStakingWithdraw(row.Context, metadata)
}

func payoutTime(row model.LedgerRow) (time.Time, *string) {
	raw := optionalString(row.Metadata, "payoutAt")
	if raw != nil {
		if t, ok := model.ParseTimestamp(*raw); ok {
			return t, raw
		}
	}
	return row.CreatedAt.UTC(), raw
}

// rewardProductCode prefers metadata.productCode, an empty one keys under
// the default product without looking at the counterparty
func rewardProductCode(row model.LedgerRow) string {
	if code, ok := metadataString(row.Metadata, "productCode"); ok {
		if code == "" {
			return defaultProductCode
		}
		return code
	}
	if code := strings.ToLower(row.Counterparty); code != "" {
		return code
	}
	return defaultProductCode
}

// AggregateStakingRewards collapses staking reward rows sharing a product and
// a payout day (UTC) into one synthetic row per bucket. Every other row passes
// through with its metadata sanitized. Output is sorted by createdAt, newest
// first. Bucket totals are rounded to 2 decimals, so the feed total may drift
// from the raw sum by at most 0.005 per bucket.
func AggregateStakingRewards(rows []model.LedgerRow) []model.LedgerRow {
	buckets := map[string]*rewardBucket{}
	var order []string
	passthrough := make([]model.LedgerRow, 0, len(rows))

	for _, row := range rows {
		row.Metadata = model.SanitizeMetadata(row.Metadata)
		if !IsStakingReward(row) {
			passthrough = append(passthrough, row)
			continue
		}

		payoutAt, rawPayout := payoutTime(row)
		day := dateKey(payoutAt)
		code := rewardProductCode(row)
		key := strings.ToLower(code) + "__" + day

		bucket, exists := buckets[key]
		if !exists {
			counterparty := row.Counterparty
			if counterparty == "" {
				counterparty = defaultRewardParty
			}
			bucket = &rewardBucket{
				id:              bucketID(code, day),
				productCode:     code,
				counterparty:    counterparty,
				payoutDate:      day,
				latestCreatedAt: row.CreatedAt,
				total:           decimal.Zero,
			}
			buckets[key] = bucket
			order = append(order, key)
		}

		bucket.total = bucket.total.Add(row.AmountFre)
		bucket.transactionIDs = append(bucket.transactionIDs, row.ID)
		bucket.payoutTimestamps = append(bucket.payoutTimestamps, payoutAt.UTC().Format(isoMillis))
		bucket.entries = append(bucket.entries, model.RewardEntry{
			ID:         row.ID,
			AmountFre:  row.AmountFre,
			CreatedAt:  row.CreatedAt,
			PayoutAt:   rawPayout,
			PositionID: optionalString(row.Metadata, "positionId"),
		})
		if row.CreatedAt.After(bucket.latestCreatedAt) {
			bucket.latestCreatedAt = row.CreatedAt
		}
	}

	out := make([]model.LedgerRow, 0, len(order)+len(passthrough))
	for _, key := range order {
		out = append(out, buckets[key].toRow())
	}
	out = append(out, passthrough...)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (b *rewardBucket) toRow() model.LedgerRow {
	return model.LedgerRow{
		ID:           b.id,
		Context:      AggregateContext,
		Counterparty: b.counterparty,
		AmountFre:    b.total.Round(2),
		FeeFre:       decimal.Zero,
		CreatedAt:    b.latestCreatedAt,
		Metadata: map[string]any{
			"aggregated":      true,
			"aggregationType": AggregationTypeDaily,
			"productCode":     b.productCode,
			"payoutDate":      b.payoutDate,
			"payoutTimeline":  b.payoutTimestamps,
			"transactionIds":  b.transactionIDs,
			"entryCount":      len(b.transactionIDs),
			"entries":         b.entries,
		},
	}
}

// BucketEntries returns the audit trail of an aggregate row, nil for plain rows
func BucketEntries(row model.LedgerRow) []model.RewardEntry {
	if row.Metadata == nil {
		return nil
	}
	entries, _ := row.Metadata["entries"].([]model.RewardEntry)
	return entries
}

// BuildFeed aggregates rewards and maps every resulting row for display
func BuildFeed(rows []model.LedgerRow) []model.TransactionDetail {
	aggregated := AggregateStakingRewards(rows)
	feed := make([]model.TransactionDetail, 0, len(aggregated))
	for _, row := range aggregated {
		feed = append(feed, MapToDetail(row))
	}
	return feed
}
