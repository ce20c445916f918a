package model

type EscrowStatus string

const (
	EscrowStatusNone     EscrowStatus = "none"
	EscrowStatusHeld     EscrowStatus = "held"
	EscrowStatusReleased EscrowStatus = "released_to_shop"
	EscrowStatusRefunded EscrowStatus = "refunded_to_customer"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusReleased PaymentStatus = "released"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// HasCustody reports whether escrow ever received the order's money.
func (p Payment) HasCustody() bool {
	return p.EscrowStatus != EscrowStatusNone && p.EscrowStatus != ""
}
