package onchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNoWatchAddress is returned when the watcher has nothing to watch
	ErrNoWatchAddress = errors.New("no watch address configured")
	// ErrBadStatus wraps any non 2xx indexer response
	ErrBadStatus = errors.New("indexer returned a non 2xx status")
	// ErrMalformedPayload wraps undecodable indexer responses
	ErrMalformedPayload = errors.New("malformed indexer payload")
)

// maxErrorBody caps how much of a failed response ends up in the error
const maxErrorBody = 512

// looseString decodes json strings and numbers alike, indexers disagree on
// how amounts and logical times are encoded
type looseString string

func (ls *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		*ls = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*ls = looseString(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			*ls = ""
			return nil
		}
		*ls = looseString(n.String())
	}
	return nil
}

// scaleAmount converts an integer amount in minimal units to its decimal value
func scaleAmount(raw looseString, decimals int32) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero
	}
	return d.Shift(-decimals)
}

func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, provider string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrapf(err, "failed building %s request", provider)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed calling %s", provider)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errors.Wrap(ErrBadStatus, fmt.Sprintf("%s %d: %s", provider, resp.StatusCode, string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(ErrMalformedPayload, "%s: %s", provider, err)
	}
	return nil
}
