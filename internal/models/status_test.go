package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatusValid(t *testing.T) {
	for _, s := range []OrderStatus{
		StatusPending, StatusOrderPlaced, StatusOrderConfirmed, StatusOrderShipped, StatusDelivered,
		StatusCancelled, StatusPaymentFailed, StatusReturnRequested, StatusReturned,
	} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, OrderStatus("").Valid())
	assert.False(t, OrderStatus("shipped").Valid())
}

func TestOrderStatusCancellable(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   bool
	}{
		{StatusPending, true},
		{StatusOrderPlaced, true},
		{StatusOrderConfirmed, true},
		{StatusOrderShipped, true},
		{StatusDelivered, false},
		{StatusReturnRequested, false},
		{StatusReturned, false},
		{StatusCancelled, false},
		{StatusPaymentFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Cancellable())
		})
	}
}

func TestTransitionWrapsErrInvalidTransition(t *testing.T) {
	err := StatusDelivered.Transition(StatusCancelled)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, StatusDelivered.Transition(StatusReturnRequested))
}
