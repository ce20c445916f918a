// Package policy holds the role and ownership rules for every order operation.
package policy

import "github.com/shinyyama/tailor-backend/internal/model"

type Role string

const (
	RoleCustomer        Role = "customer"
	RoleShop            Role = "shop"
	RoleAdmin           Role = "admin"
	RoleSystem          Role = "system"
	RoleDeliveryPartner Role = "delivery_partner"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleShop, RoleAdmin, RoleSystem, RoleDeliveryPartner:
		return true
	}
	return false
}

type Actor struct {
	ID   string
	Role Role
}

// System is the actor used for payment webhooks and delivery propagation.
func System(id string) Actor {
	return Actor{ID: id, Role: RoleSystem}
}

func (a Actor) Is(r Role) bool {
	return a.Role == r
}

type Operation string

const (
	OpPlaceOrder        Operation = "place_order"
	OpViewOrder         Operation = "view_order"
	OpEditOrder         Operation = "edit_order"
	OpCancel            Operation = "cancel"
	OpReview            Operation = "review"
	OpAdvanceProduction Operation = "advance_production"
	OpOverride          Operation = "override"
	OpInitiatePayment   Operation = "initiate_payment"
	OpConfirmPayment    Operation = "confirm_payment"
	OpViewPayment       Operation = "view_payment"
	OpReleaseEscrow     Operation = "release_escrow"
	OpRefundEscrow      Operation = "refund_escrow"
	OpAssignDelivery    Operation = "assign_delivery"
	OpDeliveryCallback  Operation = "delivery_callback"
	OpViewDelivery      Operation = "view_delivery"
	OpViewEarnings      Operation = "view_earnings"
	OpViewRevenue       Operation = "view_revenue"
)

// CanPerform is the single authorization gate for order-scoped operations.
// o may be nil for operations that do not target an existing order.
func CanPerform(a Actor, op Operation, o *model.Order) bool {
	if a.ID == "" || !a.Role.Valid() {
		return false
	}
	owns := o != nil && a.Role == RoleCustomer && o.CustomerUID == a.ID
	assigned := o != nil && a.Role == RoleShop && o.ShopUID == a.ID
	admin := a.Role == RoleAdmin
	system := a.Role == RoleSystem

	switch op {
	case OpPlaceOrder:
		return a.Role == RoleCustomer
	case OpViewOrder, OpViewPayment, OpEditOrder:
		return owns || assigned || admin || (system && op == OpViewOrder)
	case OpCancel:
		return owns || admin
	case OpReview, OpInitiatePayment:
		return owns
	case OpAdvanceProduction:
		return assigned || admin
	case OpOverride:
		return admin
	case OpConfirmPayment:
		return system
	case OpReleaseEscrow:
		return admin || system
	case OpRefundEscrow:
		return admin
	case OpViewEarnings:
		return a.Role == RoleShop || admin
	case OpViewRevenue:
		return admin
	}
	return false
}

// CanHandleJob gates delivery-job operations.
func CanHandleJob(a Actor, op Operation, j *model.DeliveryJob) bool {
	if a.ID == "" || !a.Role.Valid() || j == nil {
		return false
	}
	switch a.Role {
	case RoleAdmin:
		return op == OpAssignDelivery || op == OpDeliveryCallback || op == OpViewDelivery
	case RoleSystem:
		return op == OpDeliveryCallback || op == OpViewDelivery
	case RoleDeliveryPartner:
		return (op == OpDeliveryCallback || op == OpViewDelivery) && j.PartnerUID == a.ID
	}
	return false
}

const (
	FieldSpecialInstructions = "specialInstructions"
	FieldDeliveryAddress     = "deliveryAddress"
	FieldShopNotes           = "shopNotes"
	FieldEstimatedCompletion = "estimatedCompletion"
)

// EditableFields is the allow-list of order fields a role may patch at a status.
// Status, pricing and escrow fields are never editable through a patch.
func EditableFields(r Role, status model.OrderStatus) map[string]bool {
	fields := map[string]bool{}
	customer := func() {
		if status.BeforeDelivery() {
			fields[FieldSpecialInstructions] = true
			fields[FieldDeliveryAddress] = true
		}
	}
	shop := func() {
		if !status.Terminal() && status != model.OrderStatusCancelled {
			fields[FieldShopNotes] = true
			fields[FieldEstimatedCompletion] = true
		}
	}
	switch r {
	case RoleCustomer:
		customer()
	case RoleShop:
		shop()
	case RoleAdmin:
		customer()
		shop()
	}
	return fields
}
