package api

import (
	"errors"
	"net/http"

	"storefront-orders/internal/service"
	"storefront-orders/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error   string               `json:"error"`
	Reason  string               `json:"reason,omitempty"`
	Lines   []service.StockIssue `json:"lines,omitempty"`
	OrderID string               `json:"order_id,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrPaymentFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps service errors to HTTP. Infra failures are logged and hidden.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(status, errorResponse{Error: "internal server error"})
		return
	}

	resp := errorResponse{Error: err.Error()}
	var ce *service.CheckoutError
	if errors.As(err, &ce) {
		resp.Reason = string(ce.Reason)
		resp.Lines = ce.Lines
		if ce.OrderID != nil {
			resp.OrderID = ce.OrderID.String()
		}
	}
	c.JSON(status, resp)
}

func badRequest(c *gin.Context, msg string, err error) {
	resp := gin.H{"error": msg}
	if err != nil {
		resp["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}
