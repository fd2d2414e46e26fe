package service

import (
	"testing"

	"storefront-orders/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestComputeTotals(t *testing.T) {
	p := Pricing{DeliveryCharge: dec("41"), TaxRate: dec("0.05")}

	tests := []struct {
		name     string
		subtotal string
		discount string
		tax      string
		wantDisc string
		total    string
	}{
		{"no discount", "1000", "0", "50", "0", "1091"},
		{"flat discount", "1000", "150", "50", "150", "941"},
		{"discount clamped to subtotal", "1000", "2000", "50", "1000", "91"},
		{"tax rounds half up", "333.30", "0", "16.67", "0", "390.97"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Compute(dec(tt.subtotal), dec(tt.discount))
			assert.True(t, dec(tt.tax).Equal(got.Tax), "tax %s", got.Tax)
			assert.True(t, dec(tt.wantDisc).Equal(got.Discount), "discount %s", got.Discount)
			assert.True(t, dec(tt.total).Equal(got.Total), "total %s", got.Total)

			identity := got.SubTotal.Add(got.DeliveryCharge).Add(got.Tax).Sub(got.Discount)
			assert.True(t, identity.Equal(got.Total))
			assert.True(t, got.Discount.LessThanOrEqual(got.SubTotal))
		})
	}
}

func TestSubtotal(t *testing.T) {
	items := []models.CartItem{
		line(uuid.New(), "8", 2, "199.99"),
		line(uuid.New(), "9", 1, "50"),
	}
	assert.True(t, dec("449.98").Equal(Subtotal(items)))
	assert.True(t, Subtotal(nil).IsZero())
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(109100), ToMinorUnits(dec("1091")))
	assert.Equal(t, int64(39097), ToMinorUnits(dec("390.97")))
}

func TestItemRefundShare(t *testing.T) {
	order := &models.Order{
		SubTotal:       dec("600"),
		DeliveryCharge: dec("41"),
		Tax:            dec("30"),
	}
	item := &models.OrderItem{Quantity: 1, Price: dec("200")}

	// 200 + 41/3 + 30/3
	assert.True(t, dec("223.67").Equal(itemRefundShare(order, item)), itemRefundShare(order, item).String())
}
