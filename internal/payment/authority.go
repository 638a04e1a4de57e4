// Package payment talks to the external payment authority that confirms
// a payer's charge. The engine never moves money itself.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Authority confirms that a payment exists and covers at least minAmount
// minor units.
type Authority interface {
	Confirm(ctx context.Context, confirmationID string, minAmount int64) (bool, error)
}

type confirmRequest struct {
	MinAmount int64 `json:"min_amount"`
}

type confirmResponse struct {
	OK bool `json:"ok"`
}

// HTTPAuthority calls POST {baseURL}/payments/{id}/confirm.
type HTTPAuthority struct {
	baseURL string
	client  *http.Client
}

func NewHTTPAuthority(baseURL string, timeout time.Duration) *HTTPAuthority {
	return &HTTPAuthority{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (a *HTTPAuthority) Confirm(ctx context.Context, confirmationID string, minAmount int64) (bool, error) {
	body, err := json.Marshal(confirmRequest{MinAmount: minAmount})
	if err != nil {
		return false, fmt.Errorf("marshal confirm request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/payments/%s/confirm", a.baseURL, url.PathEscape(confirmationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build confirm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("payment authority: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return false, fmt.Errorf("payment authority: status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		// the authority does not know this payment
		return false, nil
	}

	var out confirmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode confirm response: %w", err)
	}
	return out.OK, nil
}

// Static answers every confirmation the same way, except for ids listed
// in Declined. It backs local runs without a payment authority.
type Static struct {
	Approve  bool
	Declined map[string]bool
}

func (s Static) Confirm(ctx context.Context, confirmationID string, _ int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s.Declined[confirmationID] {
		return false, nil
	}
	return s.Approve, nil
}
