package onchain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/onemorebsmith/francpay-core/src/model"
	"github.com/pkg/errors"
)

const defaultToncenterBase = "https://toncenter.com/api/v2/getTransactions"

type toncenterMsgData struct {
	Text    string `json:"text"`
	Comment string `json:"comment"`
	Body    string `json:"body"`
	Base64  string `json:"base64"`
}

type toncenterInMsg struct {
	Value   looseString       `json:"value"`
	Source  string            `json:"source"`
	Message string            `json:"message"`
	Body    string            `json:"body"`
	MsgData *toncenterMsgData `json:"msg_data"`
}

type toncenterTransaction struct {
	TransactionID struct {
		Lt   looseString `json:"lt"`
		Hash string      `json:"hash"`
	} `json:"transaction_id"`
	InMsg *toncenterInMsg `json:"in_msg"`
	Utime *int64          `json:"utime"`
}

type toncenterResponse struct {
	OK           *bool                  `json:"ok"`
	Error        string                 `json:"error"`
	Result       json.RawMessage        `json:"result"`
	Transactions []toncenterTransaction `json:"transactions"`
}

// transactions digs the list out of result.transactions, result or transactions
func (r toncenterResponse) transactions() ([]toncenterTransaction, error) {
	raw := bytes.TrimSpace(r.Result)
	switch {
	case len(raw) > 0 && raw[0] == '{':
		wrapped := struct {
			Transactions []toncenterTransaction `json:"transactions"`
		}{}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, err
		}
		if wrapped.Transactions != nil {
			return wrapped.Transactions, nil
		}
	case len(raw) > 0 && raw[0] == '[':
		var list []toncenterTransaction
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	return r.Transactions, nil
}

func normalizeToncenterBase(base string) string {
	if !strings.Contains(base, "toncenter.com") {
		return defaultToncenterBase
	}
	return base
}

// extractMemo reads the comment from whichever field the indexer populated
func extractMemo(msg *toncenterInMsg) string {
	if msg == nil {
		return ""
	}
	if data := msg.MsgData; data != nil {
		switch {
		case data.Text != "":
			return data.Text
		case data.Comment != "":
			return data.Comment
		case data.Body != "":
			return data.Body
		case data.Base64 != "":
			decoded, err := base64.StdEncoding.DecodeString(data.Base64)
			if err != nil {
				return ""
			}
			return string(decoded)
		}
	}
	if msg.Message != "" {
		return msg.Message
	}
	return msg.Body
}

// ToncenterClient reads the flat transaction list of the ledger row indexer
type ToncenterClient struct {
	endpoint string
	apiKey   string
	target   Target
	client   *http.Client
}

func NewToncenterClient(endpoint, apiKey string, target Target, client *http.Client) *ToncenterClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &ToncenterClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		target:   target,
		client:   client,
	}
}

func (c *ToncenterClient) Name() string { return string(ProviderToncenter) }

func (c *ToncenterClient) Fetch(ctx context.Context, limit int) ([]model.ParsedTonTransaction, error) {
	params := url.Values{}
	params.Set("address", c.target.Friendly)
	params.Set("limit", strconv.Itoa(limit))
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	payload := toncenterResponse{}
	if err := getJSON(ctx, c.client, c.endpoint+"?"+params.Encode(), nil, c.Name(), &payload); err != nil {
		return nil, err
	}
	if payload.OK != nil && !*payload.OK {
		return nil, errors.Wrapf(ErrBadStatus, "toncenter: %s", payload.Error)
	}
	txs, err := payload.transactions()
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedPayload, "toncenter: %s", err)
	}

	parsed := make([]model.ParsedTonTransaction, 0, len(txs))
	for _, tx := range txs {
		memo := extractMemo(tx.InMsg)
		var value looseString
		if tx.InMsg != nil {
			value = tx.InMsg.Value
		}
		amount := scaleAmount(value, model.NanoTonDecimals)
		if tx.TransactionID.Hash == "" || !amount.IsPositive() {
			continue
		}
		var metadata map[string]any
		if tx.InMsg != nil && tx.InMsg.Source != "" {
			metadata = map[string]any{"sender": tx.InMsg.Source}
		}
		parsed = append(parsed, model.ParsedTonTransaction{
			Hash:              tx.TransactionID.Hash,
			Lt:                string(tx.TransactionID.Lt),
			AmountTon:         amount,
			Memo:              memo,
			CommentNormalized: NormalizeComment(memo),
			Utime:             tx.Utime,
			Metadata:          metadata,
		})
	}
	return parsed, nil
}
