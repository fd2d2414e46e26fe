// Package gateway talks to the hosted payment provider: it creates provider orders
// for a charge and verifies the signature the checkout page sends back.
package gateway

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

	"storefront-orders/internal/util"

	"go.uber.org/zap"
)

// Client is the payment provider's REST client
type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	currency  string
	client    *http.Client
	logger    *zap.Logger
}

func NewClient(baseURL, keyID, keySecret, currency string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		currency:  currency,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: util.GetLogger(),
	}
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type createOrderResponse struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

// CreateOrder registers a charge of amountMinor (paise) and returns the provider order id
func (c *Client) CreateOrder(ctx context.Context, amountMinor int64, receipt string) (string, error) {
	ctx, span := util.StartSpan(ctx, "GatewayClient.CreateOrder")
	defer span.End()

	if amountMinor <= 0 {
		return "", fmt.Errorf("gateway amount must be positive, got %d", amountMinor)
	}

	body, err := json.Marshal(createOrderRequest{Amount: amountMinor, Currency: c.currency, Receipt: receipt})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.client.Do(req)
	if err != nil {
		util.RecordError(span, err)
		return "", fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(respBody))
		util.RecordError(span, err)
		return "", err
	}

	var out createOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode gateway response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("gateway response has no order id")
	}
	if out.Amount != amountMinor {
		return "", fmt.Errorf("gateway order %s amount %d differs from requested %d", out.ID, out.Amount, amountMinor)
	}

	c.logger.Info("Gateway order created",
		zap.String("gateway_order_id", out.ID),
		zap.Int64("amount", amountMinor),
		zap.String("receipt", receipt),
	)
	return out.ID, nil
}

// Sign returns the hex HMAC-SHA256 of "orderID|paymentID" under secret
func Sign(secret, providerOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(providerOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Configured reports whether the client holds provider credentials. Without a
// secret no signature can be trusted.
func (c *Client) Configured() bool {
	return c.keyID != "" && c.keySecret != ""
}

// VerifySignature compares in constant time. It always fails without a secret.
func (c *Client) VerifySignature(providerOrderID, paymentID, signature string) bool {
	if c.keySecret == "" {
		return false
	}
	expected := Sign(c.keySecret, providerOrderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
