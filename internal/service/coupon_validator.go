package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-orders/internal/models"
	"storefront-orders/internal/store"
	"storefront-orders/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CouponValidator evaluates coupon rules without side effects
type CouponValidator struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewCouponValidator() *CouponValidator {
	return &CouponValidator{
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// Discount is an applicable coupon and the amount it takes off
type Discount struct {
	Coupon *models.Coupon
	Amount decimal.Decimal
}

var upperCaser = cases.Upper(language.Und)

// NormalizeCouponCode trims and upper-cases a user-entered code
func NormalizeCouponCode(code string) string {
	return upperCaser.String(strings.TrimSpace(code))
}

// Validate applies the rules in order: exists and active in window, minimum
// amount, single-use not yet redeemed. The discount never exceeds the subtotal.
func (v *CouponValidator) Validate(
	ctx context.Context,
	coupons store.CouponRepository,
	code string,
	userID uuid.UUID,
	subtotal decimal.Decimal,
) (*Discount, error) {
	ctx, span := util.StartSpan(ctx, "CouponValidator.Validate")
	defer span.End()

	code = NormalizeCouponCode(code)
	if code == "" {
		return nil, newCheckoutError(ErrValidation, ReasonCouponInvalid, "invalid or expired coupon")
	}

	coupon, err := coupons.FindByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newCheckoutError(ErrValidation, ReasonCouponInvalid, "invalid or expired coupon")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}

	if !coupon.ActiveAt(v.now()) {
		return nil, newCheckoutError(ErrValidation, ReasonCouponInvalid, "invalid or expired coupon")
	}

	if subtotal.LessThan(coupon.MinPrice) {
		return nil, newCheckoutError(ErrValidation, ReasonCouponMinAmount,
			"minimum order amount not met, requires %s", coupon.MinPrice.String())
	}

	if coupon.UsageType == models.CouponSingleUse {
		used, err := coupons.HasRedeemed(ctx, coupon.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to check coupon usage: %w", err)
		}
		if used {
			return nil, newCheckoutError(ErrValidation, ReasonCouponAlreadyUsed, "coupon already used")
		}
	}

	amount := minDecimal(coupon.OfferPrice, subtotal)

	v.logger.Debug("Coupon validated",
		zap.String("code", coupon.Code),
		zap.String("user_id", userID.String()),
		zap.String("discount", amount.String()),
	)

	return &Discount{Coupon: coupon, Amount: round2(amount)}, nil
}

// Available lists coupons the user could still apply
func (v *CouponValidator) Available(ctx context.Context, coupons store.CouponRepository, userID uuid.UUID) ([]*models.Coupon, error) {
	list, err := coupons.ListAvailable(ctx, userID, v.now())
	if err != nil {
		return nil, err
	}
	return list, nil
}
