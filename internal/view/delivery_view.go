package view

import (
	"time"

	"github.com/shinyyama/tailor-backend/internal/model"
	"github.com/shinyyama/tailor-backend/internal/policy"
)

type JobEventView struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
	At     string `json:"at"`
}

// CustomerDeliveryJobView never carries the pickup leg, which is the shop's location.
type CustomerDeliveryJobView struct {
	Number         string         `json:"jobNumber"`
	Status         string         `json:"status"`
	DropoffAddress model.Address  `json:"dropoffAddress"`
	Zone           string         `json:"zone"`
	Attempts       int            `json:"attempts"`
	MaxAttempts    int            `json:"maxAttempts"`
	PickedUpAt     *string        `json:"pickedUpAt,omitempty"`
	DeliveredAt    *string        `json:"deliveredAt,omitempty"`
	Events         []JobEventView `json:"events"`
}

type StaffJobEventView struct {
	JobEventView
	Seq       int    `json:"seq"`
	ActorUID  string `json:"actorUid,omitempty"`
	ActorRole string `json:"actorRole"`
}

type StaffDeliveryJobView struct {
	ID             uint64              `json:"id"`
	Number         string              `json:"jobNumber"`
	Type           string              `json:"type"`
	OrderID        uint64              `json:"orderId"`
	Status         string              `json:"status"`
	PickupAddress  model.Address       `json:"pickupAddress"`
	DropoffAddress model.Address       `json:"dropoffAddress"`
	Zone           string              `json:"zone"`
	Cost           int64               `json:"cost"`
	PartnerUID     string              `json:"partnerUid,omitempty"`
	Attempts       int                 `json:"attempts"`
	MaxAttempts    int                 `json:"maxAttempts"`
	FailureReason  string              `json:"failureReason,omitempty"`
	ProofObject    string              `json:"proofObject,omitempty"`
	AssignedAt     *string             `json:"assignedAt,omitempty"`
	PickedUpAt     *string             `json:"pickedUpAt,omitempty"`
	DeliveredAt    *string             `json:"deliveredAt,omitempty"`
	FailedAt       *string             `json:"failedAt,omitempty"`
	CancelledAt    *string             `json:"cancelledAt,omitempty"`
	Events         []StaffJobEventView `json:"events"`
	CreatedAt      string              `json:"createdAt"`
}

func DeliveryJob(a policy.Actor, j *model.DeliveryJob) any {
	if IsStaff(a) || a.Role == policy.RoleDeliveryPartner {
		return StaffDeliveryJob(j)
	}
	return CustomerDeliveryJob(j)
}

func DeliveryJobs(a policy.Actor, list []model.DeliveryJob) []any {
	out := make([]any, 0, len(list))
	for i := range list {
		out = append(out, DeliveryJob(a, &list[i]))
	}
	return out
}

func CustomerDeliveryJob(j *model.DeliveryJob) CustomerDeliveryJobView {
	events := make([]JobEventView, 0, len(j.Events))
	for _, e := range j.Events {
		v := jobEvent(e)
		v.Note = customerNote(e.ActorRole, e.Note)
		events = append(events, v)
	}
	return CustomerDeliveryJobView{
		Number:         j.Number,
		Status:         string(j.Status),
		DropoffAddress: j.DropoffAddress,
		Zone:           j.Zone,
		Attempts:       j.Attempts,
		MaxAttempts:    j.MaxAttempts,
		PickedUpAt:     formatTime(j.PickedUpAt),
		DeliveredAt:    formatTime(j.DeliveredAt),
		Events:         events,
	}
}

func StaffDeliveryJob(j *model.DeliveryJob) StaffDeliveryJobView {
	events := make([]StaffJobEventView, 0, len(j.Events))
	for _, e := range j.Events {
		events = append(events, StaffJobEventView{JobEventView: jobEvent(e), Seq: e.Seq, ActorUID: e.ActorUID, ActorRole: e.ActorRole})
	}
	return StaffDeliveryJobView{
		ID:             j.ID,
		Number:         j.Number,
		Type:           string(j.Type),
		OrderID:        j.OrderID,
		Status:         string(j.Status),
		PickupAddress:  j.PickupAddress,
		DropoffAddress: j.DropoffAddress,
		Zone:           j.Zone,
		Cost:           j.Cost,
		PartnerUID:     j.PartnerUID,
		Attempts:       j.Attempts,
		MaxAttempts:    j.MaxAttempts,
		FailureReason:  j.FailureReason,
		ProofObject:    j.ProofObject,
		AssignedAt:     formatTime(j.AssignedAt),
		PickedUpAt:     formatTime(j.PickedUpAt),
		DeliveredAt:    formatTime(j.DeliveredAt),
		FailedAt:       formatTime(j.FailedAt),
		CancelledAt:    formatTime(j.CancelledAt),
		Events:         events,
		CreatedAt:      j.CreatedAt.Format(time.RFC3339),
	}
}

func jobEvent(e model.DeliveryJobEvent) JobEventView {
	return JobEventView{Status: string(e.Status), Note: e.Note, At: e.CreatedAt.Format(time.RFC3339)}
}
