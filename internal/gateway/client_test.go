package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key_id", user)
		assert.Equal(t, "key_secret", pass)

		var body createOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(56600), body.Amount)
		assert.Equal(t, "INR", body.Currency)
		assert.Equal(t, "rcpt-1", body.Receipt)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(createOrderResponse{ID: "order_abc", Amount: body.Amount, Status: "created"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "key_id", "key_secret", "INR", time.Second)
	id, err := c.CreateOrder(context.Background(), 56600, "rcpt-1")
	require.NoError(t, err)
	assert.Equal(t, "order_abc", id)
}

func TestCreateOrderProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "s", "INR", time.Second)
	_, err := c.CreateOrder(context.Background(), 100, "r")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestCreateOrderRejectsNonPositiveAmount(t *testing.T) {
	c := NewClient("http://unused", "k", "s", "INR", time.Second)
	_, err := c.CreateOrder(context.Background(), 0, "r")
	assert.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	c := NewClient("http://unused", "k", "secret", "INR", time.Second)
	sig := Sign("secret", "order_1", "pay_1")

	assert.True(t, c.VerifySignature("order_1", "pay_1", sig))
	assert.False(t, c.VerifySignature("order_1", "pay_2", sig))
	assert.False(t, c.VerifySignature("order_1", "pay_1", Sign("other", "order_1", "pay_1")))
	assert.False(t, c.VerifySignature("order_1", "pay_1", ""))
}

func TestVerifySignatureWithoutSecret(t *testing.T) {
	c := NewClient("http://unused", "k", "", "INR", time.Second)
	assert.False(t, c.Configured())
	assert.False(t, c.VerifySignature("order_x", "pay_forged", Sign("", "order_x", "pay_forged")))

	assert.True(t, NewClient("http://unused", "k", "secret", "INR", time.Second).Configured())
	assert.False(t, NewClient("http://unused", "", "secret", "INR", time.Second).Configured())
}

func TestCreateOrderRejectsAmountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(createOrderResponse{ID: "order_abc", Amount: 100, Status: "created"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "s", "INR", time.Second)
	_, err := c.CreateOrder(context.Background(), 56600, "r")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "differs")
}
