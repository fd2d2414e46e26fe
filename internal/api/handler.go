package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"storefront-orders/internal/models"
	"storefront-orders/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessCheck reports whether a dependency is reachable
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	checkout  *service.CheckoutOrchestrator
	lifecycle *service.OrderLifecycleManager
	wallet    *service.WalletService
	checks    map[string]ReadinessCheck
}

// NewHandler creates a new HTTP handler
func NewHandler(
	checkout *service.CheckoutOrchestrator,
	lifecycle *service.OrderLifecycleManager,
	wallet *service.WalletService,
	checks map[string]ReadinessCheck,
) *Handler {
	return &Handler{
		checkout:  checkout,
		lifecycle: lifecycle,
		wallet:    wallet,
		checks:    checks,
	}
}

// RouterConfig holds the HTTP surface settings
type RouterConfig struct {
	JWTSecret      string
	AllowedOrigins []string
	AccessLog      bool
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine, cfg RouterConfig) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	if cfg.AccessLog {
		router.Use(gin.Logger())
	}
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"},
			ExposeHeaders:    []string{"Content-Length", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           time.Hour,
		}))
	}

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1", authJWT(cfg.JWTSecret))
	{
		v1.GET("/coupons", h.listCoupons)
		v1.POST("/checkout/coupon", h.applyCoupon)
		v1.DELETE("/checkout/coupon", h.removeCoupon)
		v1.POST("/checkout/gateway-order", h.createGatewayOrder)

		v1.POST("/orders", h.placeOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.POST("/orders/:id/items/:itemId/cancel", h.cancelItem)
		v1.POST("/orders/:id/returns", h.requestReturn)

		v1.GET("/wallet", h.getWallet)
	}

	admin := v1.Group("/admin", requireAdmin())
	{
		admin.POST("/orders/:id/status", h.advanceStatus)
		admin.POST("/orders/:id/returns/approve", h.approveReturns)
		admin.POST("/orders/:id/returns/reject", h.rejectReturns)
		admin.POST("/wallets/:userId/reconcile", h.reconcileWallet)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// bindOptionalJSON accepts an empty body
func bindOptionalJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Invalid request body", err)
		return false
	}
	return true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "Invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) listCoupons(c *gin.Context) {
	coupons, err := h.checkout.AvailableCoupons(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupons": coupons})
}

type applyCouponRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *Handler) applyCoupon(c *gin.Context) {
	var req applyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	preview, err := h.checkout.ApplyCoupon(c.Request.Context(), currentUser(c), req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

func (h *Handler) removeCoupon(c *gin.Context) {
	if err := h.checkout.RemoveCoupon(c.Request.Context(), currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type gatewayOrderRequest struct {
	CouponCode string `json:"coupon_code"`
}

func (h *Handler) createGatewayOrder(c *gin.Context) {
	var req gatewayOrderRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	order, err := h.checkout.CreateGatewayOrder(c.Request.Context(), currentUser(c), req.CouponCode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// placeOrder handles checkout
func (h *Handler) placeOrder(c *gin.Context) {
	var req service.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	req.UserID = currentUser(c)
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	resp, err := h.checkout.PlaceOrder(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.lifecycle.ListOrders(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	order, err := h.lifecycle.GetOrder(c.Request.Context(), currentUser(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req cancelRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	res, err := h.lifecycle.CancelOrder(c.Request.Context(), currentUser(c), orderID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) cancelItem(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := uuidParam(c, "itemId")
	if !ok {
		return
	}
	var req cancelRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	res, err := h.lifecycle.CancelItem(c.Request.Context(), currentUser(c), orderID, itemID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type returnRequest struct {
	ItemIDs []uuid.UUID `json:"item_ids"`
	Reason  string      `json:"reason" binding:"required"`
}

func (h *Handler) requestReturn(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req returnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	res, err := h.lifecycle.RequestReturn(c.Request.Context(), currentUser(c), orderID, req.ItemIDs, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) getWallet(c *gin.Context) {
	view, err := h.wallet.GetWallet(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type advanceStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

func (h *Handler) advanceStatus(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req advanceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	if !req.Status.Valid() {
		badRequest(c, "Unknown order status", nil)
		return
	}

	order, err := h.lifecycle.AdvanceStatus(c.Request.Context(), orderID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) approveReturns(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	res, err := h.lifecycle.ApproveReturns(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) rejectReturns(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	res, err := h.lifecycle.RejectReturns(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) reconcileWallet(c *gin.Context) {
	userID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}

	res, err := h.wallet.Reconcile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
