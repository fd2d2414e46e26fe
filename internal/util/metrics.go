package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of orders placed",
	}, []string{"payment_method"})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of rejected or failed checkouts",
	}, []string{"reason"})

	OrdersCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancellations",
	}, []string{"scope"})

	ReturnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_returns_total",
		Help: "Return requests and their resolutions",
	}, []string{"outcome"})

	OrderStatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Admin driven order status changes",
	}, []string{"to"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_latency_seconds",
		Help:    "Latency of order placement",
		Buckets: prometheus.DefBuckets,
	})

	StockConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_stock_conflicts_total",
		Help: "Conditional stock decrements that found too few units",
	})

	PaymentOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_outcomes_total",
		Help: "Settlement outcomes by payment method",
	}, []string{"method", "status"})

	WalletEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_entries_total",
		Help: "Wallet ledger entries written",
	}, []string{"entry_type", "type"})

	WalletCacheDriftTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_cache_drift_total",
		Help: "Reconciliations that found the cached balance out of step with the ledger",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
