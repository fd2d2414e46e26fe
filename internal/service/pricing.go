package service

import (
	"storefront-orders/internal/models"

	"github.com/shopspring/decimal"
)

// Pricing holds the flat delivery charge and the tax rate applied to the subtotal
type Pricing struct {
	DeliveryCharge decimal.Decimal
	TaxRate        decimal.Decimal
}

// Totals is the money breakdown of one order
type Totals struct {
	SubTotal       decimal.Decimal `json:"sub_total"`
	DeliveryCharge decimal.Decimal `json:"delivery_charge"`
	Tax            decimal.Decimal `json:"tax"`
	Discount       decimal.Decimal `json:"discount"`
	Total          decimal.Decimal `json:"total_amount"`
}

var hundred = decimal.NewFromInt(100)

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Subtotal is Σ price × qty over the cart
func Subtotal(items []models.CartItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.LineTotal())
	}
	return round2(sum)
}

// Compute returns subtotal + delivery + tax − discount. The discount is clamped to the subtotal.
func (p Pricing) Compute(subtotal, discount decimal.Decimal) Totals {
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	tax := round2(subtotal.Mul(p.TaxRate))
	delivery := round2(p.DeliveryCharge)

	return Totals{
		SubTotal:       subtotal,
		DeliveryCharge: delivery,
		Tax:            tax,
		Discount:       round2(discount),
		Total:          subtotal.Add(delivery).Add(tax).Sub(round2(discount)),
	}
}

// ToMinorUnits converts an amount to paise for the payment gateway
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// itemRefundShare is the item's price plus its proportional share of delivery and tax
func itemRefundShare(order *models.Order, item *models.OrderItem) decimal.Decimal {
	itemTotal := item.LineTotal()
	if !order.SubTotal.IsPositive() {
		return round2(itemTotal)
	}
	ratio := itemTotal.Div(order.SubTotal)
	delivery := order.DeliveryCharge.Mul(ratio)
	tax := order.Tax.Mul(ratio)
	return round2(itemTotal.Add(delivery).Add(tax))
}

func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
