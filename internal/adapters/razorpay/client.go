// internal/adapters/razorpay/client.go
package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hotel_proxy/internal/adapters/observability"
	"hotel_proxy/internal/domain"
)

type Client struct {
	base   string
	hc     *http.Client
	keyID  string
	secret string
}

func New(base, keyID, secret string) (*Client, error) {
	if keyID == "" || secret == "" {
		return nil, fmt.Errorf("razorpay key id and secret are required")
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		hc:     &http.Client{Timeout: 15 * time.Second},
		keyID:  keyID,
		secret: secret,
	}, nil
}

func (c *Client) KeyID() string { return c.keyID }

type orderReq struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrder registers an order the checkout can pay against. Amounts are in
// the currency's minor unit. Order creation is not retried.
func (c *Client) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (domain.Order, error) {
	body, err := json.Marshal(orderReq{Amount: amountMinor, Currency: currency, Receipt: receipt, Notes: notes})
	if err != nil {
		return domain.Order{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/orders", bytes.NewReader(body))
	if err != nil {
		return domain.Order{}, err
	}
	req.SetBasicAuth(c.keyID, c.secret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("razorpay", "orders", 0, time.Since(start))
		return domain.Order{}, err
	}
	defer resp.Body.Close()
	observability.ObserveExternal("razorpay", "orders", resp.StatusCode, time.Since(start))

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Order{}, fmt.Errorf("read orders: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Order{}, &domain.UpstreamError{
			Service: "razorpay", Endpoint: "orders", HTTPStatus: resp.StatusCode,
			Description: errorDescription(b), Body: b,
		}
	}
	var o domain.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return domain.Order{}, fmt.Errorf("decode orders: %w", err)
	}
	return o, nil
}

// VerifySignature checks the checkout signature: hex HMAC-SHA256 of
// "orderID|paymentID" keyed with the account secret.
func (c *Client) VerifySignature(orderID, paymentID, signature string) bool {
	return ValidSignature(c.secret, orderID, paymentID, signature)
}

func Sign(secret, orderID, paymentID string) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(m.Sum(nil))
}

func ValidSignature(secret, orderID, paymentID, signature string) bool {
	want := Sign(secret, orderID, paymentID)
	got := strings.ToLower(strings.TrimSpace(signature))
	return hmac.Equal([]byte(want), []byte(got))
}

func errorDescription(b []byte) string {
	var e struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &e) == nil && e.Error.Description != "" {
		return e.Error.Description
	}
	return strings.TrimSpace(string(b))
}
