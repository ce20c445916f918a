package model

type OrderStatus string

const (
	OrderStatusPendingPayment   OrderStatus = "pending_payment"
	OrderStatusPaymentConfirmed OrderStatus = "payment_confirmed"
	OrderStatusPaymentFailed    OrderStatus = "payment_failed"
	OrderStatusInReview         OrderStatus = "in_review"
	OrderStatusInProduction     OrderStatus = "in_production"
	OrderStatusReadyForDelivery OrderStatus = "ready_for_delivery"
	OrderStatusOutForDelivery   OrderStatus = "out_for_delivery"
	OrderStatusDelivered        OrderStatus = "delivered"
	OrderStatusCompleted        OrderStatus = "completed"
	OrderStatusCancelled        OrderStatus = "cancelled"
	OrderStatusRefunded         OrderStatus = "refunded"
)

// AllOrderStatuses lists every status in lifecycle order.
var AllOrderStatuses = []OrderStatus{
	OrderStatusPendingPayment,
	OrderStatusPaymentConfirmed,
	OrderStatusPaymentFailed,
	OrderStatusInReview,
	OrderStatusInProduction,
	OrderStatusReadyForDelivery,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// Trigger identifies which channel is allowed to drive a transition.
type Trigger string

const (
	TriggerPayment    Trigger = "payment"
	TriggerProduction Trigger = "production"
	TriggerDelivery   Trigger = "delivery"
	TriggerRelease    Trigger = "escrow_release"
	TriggerRefund     Trigger = "escrow_refund"
	TriggerCancel     Trigger = "cancel"
)

var forward = map[OrderStatus]map[OrderStatus]Trigger{
	OrderStatusPendingPayment: {
		OrderStatusPaymentConfirmed: TriggerPayment,
		OrderStatusPaymentFailed:    TriggerPayment,
		OrderStatusCancelled:        TriggerCancel,
	},
	OrderStatusPaymentConfirmed: {
		OrderStatusInReview:  TriggerProduction,
		OrderStatusCancelled: TriggerCancel,
	},
	OrderStatusInReview: {
		OrderStatusInProduction: TriggerProduction,
		OrderStatusCancelled:    TriggerCancel,
	},
	OrderStatusInProduction: {
		OrderStatusReadyForDelivery: TriggerProduction,
		OrderStatusCancelled:        TriggerCancel,
	},
	OrderStatusReadyForDelivery: {
		OrderStatusOutForDelivery: TriggerDelivery,
		OrderStatusCancelled:      TriggerCancel,
	},
	OrderStatusOutForDelivery: {
		OrderStatusDelivered: TriggerDelivery,
	},
	OrderStatusDelivered: {
		OrderStatusCompleted: TriggerRelease,
	},
	OrderStatusCancelled: {
		OrderStatusRefunded: TriggerRefund,
	},
	OrderStatusCompleted:     {},
	OrderStatusRefunded:      {},
	OrderStatusPaymentFailed: {},
}

// TransitionTrigger reports which trigger owns the from->to edge.
func TransitionTrigger(from, to OrderStatus) (Trigger, bool) {
	t, ok := forward[from][to]
	return t, ok
}

// CanTransition reports whether trigger t may move an order from -> to.
func CanTransition(from, to OrderStatus, t Trigger) bool {
	owner, ok := forward[from][to]
	return ok && owner == t
}

func (s OrderStatus) Valid() bool {
	_, ok := forward[s]
	return ok
}

func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusRefunded, OrderStatusPaymentFailed:
		return true
	}
	return false
}

// Cancellable is the set of statuses an order may be cancelled from.
func (s OrderStatus) Cancellable() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusPaymentConfirmed, OrderStatusInReview,
		OrderStatusInProduction, OrderStatusReadyForDelivery:
		return true
	}
	return false
}

// BeforeDelivery reports whether the order has not yet been handed to delivery.
func (s OrderStatus) BeforeDelivery() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusPaymentConfirmed, OrderStatusInReview, OrderStatusInProduction:
		return true
	}
	return false
}

// CanOverride reports whether an admin override may move an order from -> to.
// Payment, delivery completion and settlement statuses stay owned by their
// channels. An unpaid order can only be cancelled, since nothing is in escrow.
func CanOverride(from, to OrderStatus) bool {
	if from == to || !to.Valid() || from.Terminal() || from == OrderStatusCancelled {
		return false
	}
	if from == OrderStatusPendingPayment {
		return to == OrderStatusCancelled
	}
	switch to {
	case OrderStatusPendingPayment, OrderStatusPaymentConfirmed, OrderStatusPaymentFailed,
		OrderStatusDelivered, OrderStatusCompleted, OrderStatusRefunded:
		return false
	case OrderStatusCancelled:
		return from.Cancellable()
	}
	return true
}
