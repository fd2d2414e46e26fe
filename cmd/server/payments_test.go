package main

import (
	"testing"
	"time"

	"storefront-orders/config"
	"storefront-orders/internal/gateway"
	"storefront-orders/internal/models"
	"storefront-orders/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestGatewayDisabledWithoutSecret(t *testing.T) {
	business := config.BusinessConfig{CODLimit: decimal.NewFromInt(1000)}
	gw := gateway.NewClient("http://unused", "key_id", "", "INR", time.Second)

	settlement, client := paymentMethods(business, service.NewWalletLedger(), gw, zap.NewNop())
	assert.Nil(t, client)
	assert.False(t, settlement.Supports(models.PaymentGateway))
	assert.True(t, settlement.Supports(models.PaymentCOD))
	assert.True(t, settlement.Supports(models.PaymentWallet))
}

func TestGatewayEnabledWithCredentials(t *testing.T) {
	business := config.BusinessConfig{CODLimit: decimal.NewFromInt(1000)}
	gw := gateway.NewClient("http://unused", "key_id", "key_secret", "INR", time.Second)

	settlement, client := paymentMethods(business, service.NewWalletLedger(), gw, zap.NewNop())
	assert.NotNil(t, client)
	assert.True(t, settlement.Supports(models.PaymentGateway))
}
