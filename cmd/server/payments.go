package main

import (
	"storefront-orders/config"
	"storefront-orders/internal/gateway"
	"storefront-orders/internal/service"

	"go.uber.org/zap"
)

// paymentMethods registers the settlers this deployment can honour. The gateway
// method is left out when provider credentials are missing, so it is reported as
// unsupported instead of verifying signatures against an empty secret.
func paymentMethods(business config.BusinessConfig, ledger *service.WalletLedger, gw *gateway.Client, logger *zap.Logger) (*service.Settlement, service.GatewayClient) {
	settlers := []service.Settler{
		&service.CODSettler{Limit: business.CODLimit},
		&service.WalletSettler{Ledger: ledger},
	}
	if gw == nil || !gw.Configured() {
		logger.Warn("Payment gateway credentials missing, gateway payments disabled")
		return service.NewSettlement(settlers...), nil
	}
	settlers = append(settlers, &service.GatewaySettler{Verifier: gw})
	return service.NewSettlement(settlers...), gw
}
