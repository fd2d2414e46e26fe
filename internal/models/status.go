package models

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a status change is not in the transition table
var ErrInvalidTransition = errors.New("invalid status transition")

// OrderStatus is shared by orders and their items
type OrderStatus string

const (
	StatusPending         OrderStatus = "Pending"
	StatusOrderPlaced     OrderStatus = "Order Placed"
	StatusOrderConfirmed  OrderStatus = "Order Confirmed"
	StatusOrderShipped    OrderStatus = "Order Shipped"
	StatusDelivered       OrderStatus = "Delivered"
	StatusCancelled       OrderStatus = "Cancelled"
	StatusPaymentFailed   OrderStatus = "Payment Failed"
	StatusReturnRequested OrderStatus = "Return Requested"
	StatusReturned        OrderStatus = "Returned"
)

// Delivered only moves forward through a return request; rejecting a return
// brings the item back to Delivered.
var statusTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:         {StatusOrderPlaced, StatusPaymentFailed, StatusCancelled},
	StatusOrderPlaced:     {StatusOrderConfirmed, StatusOrderShipped, StatusCancelled},
	StatusOrderConfirmed:  {StatusOrderShipped, StatusCancelled},
	StatusOrderShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:       {StatusReturnRequested},
	StatusReturnRequested: {StatusReturned, StatusDelivered},
}

// Valid reports whether s is a known status
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusOrderPlaced, StatusOrderConfirmed, StatusOrderShipped, StatusDelivered,
		StatusCancelled, StatusPaymentFailed, StatusReturnRequested, StatusReturned:
		return true
	}
	return false
}

// CanTransition reports whether the table allows s → to
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range statusTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition returns ErrInvalidTransition wrapped with both ends when s → to is not allowed
func (s OrderStatus) Transition(to OrderStatus) error {
	if !s.CanTransition(to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s, to)
	}
	return nil
}

// Cancellable reports whether an item in s may still be cancelled
func (s OrderStatus) Cancellable() bool {
	return s.CanTransition(StatusCancelled)
}

// Closed reports whether an item no longer counts towards the order's live total
func (s OrderStatus) Closed() bool {
	return s == StatusCancelled || s == StatusReturned || s == StatusPaymentFailed
}
