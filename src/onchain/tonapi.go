package onchain

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/onemorebsmith/francpay-core/src/model"
)

const defaultTonAPIBase = "https://tonapi.io/v2/accounts"

type tonAPIAddressRef struct {
	Address string `json:"address"`
}

type tonAPIJetton struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals *int32 `json:"decimals"`
}

type tonAPIJettonTransfer struct {
	Amount    looseString       `json:"amount"`
	Jetton    *tonAPIJetton     `json:"jetton"`
	Decimals  *int32            `json:"decimals"`
	Recipient *tonAPIAddressRef `json:"recipient"`
	Sender    *tonAPIAddressRef `json:"sender"`
	Comment   string            `json:"comment"`
}

type tonAPITonTransfer struct {
	Amount    looseString       `json:"amount"`
	Recipient *tonAPIAddressRef `json:"recipient"`
	Sender    *tonAPIAddressRef `json:"sender"`
	Comment   string            `json:"comment"`
}

type tonAPIAction struct {
	Type           string                `json:"type"`
	JettonTransfer *tonAPIJettonTransfer `json:"JettonTransfer"`
	TonTransfer    *tonAPITonTransfer    `json:"TonTransfer"`
}

type tonAPIEvent struct {
	EventID   string         `json:"event_id"`
	Lt        looseString    `json:"lt"`
	Timestamp *int64         `json:"timestamp"`
	Actions   []tonAPIAction `json:"actions"`
}

type tonAPIEventsResponse struct {
	Events []tonAPIEvent `json:"events"`
	Result []tonAPIEvent `json:"result"`
}

// normalizeTonAPIBase falls back to the public endpoint for anything that is
// not an accounts base url
func normalizeTonAPIBase(base string) string {
	if base == "" || !strings.Contains(base, "/accounts") {
		return defaultTonAPIBase
	}
	return base
}

// TonAPIClient reads account events from the event based indexer
type TonAPIClient struct {
	base   string
	apiKey string
	target Target
	client *http.Client
}

func NewTonAPIClient(base, apiKey string, target Target, client *http.Client) *TonAPIClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &TonAPIClient{
		base:   strings.TrimSuffix(base, "/"),
		apiKey: apiKey,
		target: target,
		client: client,
	}
}

func (c *TonAPIClient) Name() string { return string(ProviderTonAPI) }

func (c *TonAPIClient) Fetch(ctx context.Context, limit int) ([]model.ParsedTonTransaction, error) {
	url := fmt.Sprintf("%s/%s/events?limit=%d", c.base, c.target.Friendly, limit)
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	payload := tonAPIEventsResponse{}
	if err := getJSON(ctx, c.client, url, headers, c.Name(), &payload); err != nil {
		return nil, err
	}
	events := payload.Events
	if events == nil {
		events = payload.Result
	}

	var parsed []model.ParsedTonTransaction
	for _, event := range events {
		for _, action := range event.Actions {
			tx, ok := c.parseJettonAction(action, event)
			if !ok {
				tx, ok = c.parseTonAction(action, event)
			}
			if !ok || tx.Hash == "" || !tx.AmountTon.IsPositive() {
				continue
			}
			parsed = append(parsed, tx)
		}
	}
	return parsed, nil
}

func (c *TonAPIClient) parseJettonAction(action tonAPIAction, event tonAPIEvent) (model.ParsedTonTransaction, bool) {
	transfer := action.JettonTransfer
	if action.Type != "JettonTransfer" || transfer == nil {
		return model.ParsedTonTransaction{}, false
	}
	if transfer.Recipient == nil || !MatchAddress(transfer.Recipient.Address, c.target) {
		return model.ParsedTonTransaction{}, false
	}

	decimals := int32(model.NanoTonDecimals)
	metadata := map[string]any{}
	if transfer.Decimals != nil {
		decimals = *transfer.Decimals
	}
	if transfer.Jetton != nil {
		if transfer.Jetton.Decimals != nil {
			decimals = *transfer.Jetton.Decimals
		}
		metadata["jettonAddress"] = transfer.Jetton.Address
		metadata["jettonSymbol"] = transfer.Jetton.Symbol
	}
	if transfer.Sender != nil {
		metadata["sender"] = transfer.Sender.Address
	}

	return model.ParsedTonTransaction{
		Hash:              event.EventID,
		Lt:                string(event.Lt),
		AmountTon:         scaleAmount(transfer.Amount, decimals),
		Memo:              transfer.Comment,
		CommentNormalized: NormalizeComment(transfer.Comment),
		Utime:             event.Timestamp,
		Metadata:          metadata,
	}, true
}

func (c *TonAPIClient) parseTonAction(action tonAPIAction, event tonAPIEvent) (model.ParsedTonTransaction, bool) {
	transfer := action.TonTransfer
	if action.Type != "TonTransfer" || transfer == nil {
		return model.ParsedTonTransaction{}, false
	}
	if transfer.Recipient == nil || !MatchAddress(transfer.Recipient.Address, c.target) {
		return model.ParsedTonTransaction{}, false
	}
	var metadata map[string]any
	if transfer.Sender != nil {
		metadata = map[string]any{"sender": transfer.Sender.Address}
	}
	return model.ParsedTonTransaction{
		Hash:              event.EventID,
		Lt:                string(event.Lt),
		AmountTon:         scaleAmount(transfer.Amount, model.NanoTonDecimals),
		Memo:              transfer.Comment,
		CommentNormalized: NormalizeComment(transfer.Comment),
		Utime:             event.Timestamp,
		Metadata:          metadata,
	}, true
}
