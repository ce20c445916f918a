package model

import "time"

type DeliveryJobType string

// Only the shop-to-customer leg is dispatched; measurements are taken at order time.
const DeliveryJobTypeDelivery DeliveryJobType = "delivery"

type DeliveryJobStatus string

const (
	DeliveryJobRequested   DeliveryJobStatus = "requested"
	DeliveryJobAssigned    DeliveryJobStatus = "assigned"
	DeliveryJobPickedUp    DeliveryJobStatus = "picked_up"
	DeliveryJobDelivered   DeliveryJobStatus = "delivered"
	DeliveryJobFailed      DeliveryJobStatus = "failed"
	DeliveryJobCancelled   DeliveryJobStatus = "cancelled"
	DeliveryJobRescheduled DeliveryJobStatus = "rescheduled"
)

var jobNext = map[DeliveryJobStatus]map[DeliveryJobStatus]bool{
	DeliveryJobRequested:   {DeliveryJobAssigned: true, DeliveryJobCancelled: true},
	DeliveryJobAssigned:    {DeliveryJobPickedUp: true, DeliveryJobRescheduled: true, DeliveryJobFailed: true, DeliveryJobCancelled: true},
	DeliveryJobPickedUp:    {DeliveryJobDelivered: true, DeliveryJobRescheduled: true, DeliveryJobFailed: true},
	DeliveryJobRescheduled: {DeliveryJobAssigned: true, DeliveryJobCancelled: true},
	DeliveryJobDelivered:   {},
	DeliveryJobFailed:      {},
	DeliveryJobCancelled:   {},
}

func CanAdvanceJob(from, to DeliveryJobStatus) bool {
	return jobNext[from][to]
}

func (s DeliveryJobStatus) Terminal() bool {
	return len(jobNext[s]) == 0
}

type DeliveryJob struct {
	ID             uint64             `gorm:"primaryKey;autoIncrement"`
	Number         string             `gorm:"column:number;size:32;uniqueIndex;not null"`
	Type           DeliveryJobType    `gorm:"column:type;size:16;not null"`
	OrderID        uint64             `gorm:"column:order_id;index;not null"`
	Status         DeliveryJobStatus  `gorm:"column:status;size:32;not null"`
	PickupAddress  Address            `gorm:"column:pickup_address;type:json;serializer:json"`
	DropoffAddress Address            `gorm:"column:dropoff_address;type:json;serializer:json"`
	Zone           string             `gorm:"column:zone;size:8;not null"`
	Cost           int64              `gorm:"column:cost;not null"`
	PartnerUID     string             `gorm:"column:partner_uid;size:128;index"`
	Attempts       int                `gorm:"column:attempts;not null;default:0"`
	MaxAttempts    int                `gorm:"column:max_attempts;not null"`
	FailureReason  string             `gorm:"column:failure_reason;type:text"`
	ProofObject    string             `gorm:"column:proof_object;size:255"`
	AssignedAt     *time.Time         `gorm:"column:assigned_at"`
	PickedUpAt     *time.Time         `gorm:"column:picked_up_at"`
	DeliveredAt    *time.Time         `gorm:"column:delivered_at"`
	FailedAt       *time.Time         `gorm:"column:failed_at"`
	CancelledAt    *time.Time         `gorm:"column:cancelled_at"`
	Events         []DeliveryJobEvent `gorm:"foreignKey:JobID"`
	CreatedAt      time.Time          `gorm:"autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"autoUpdateTime"`
}

func (DeliveryJob) TableName() string {
	return "delivery_jobs"
}

func (j *DeliveryJob) AppendEvent(e DeliveryJobEvent) {
	e.JobID = j.ID
	e.Seq = len(j.Events) + 1
	j.Events = append(j.Events, e)
}

func (j *DeliveryJob) Clone() *DeliveryJob {
	cp := *j
	cp.Events = append([]DeliveryJobEvent(nil), j.Events...)
	return &cp
}

type DeliveryJobEvent struct {
	ID        uint64            `gorm:"primaryKey;autoIncrement"`
	JobID     uint64            `gorm:"column:job_id;not null;uniqueIndex:ux_job_event_seq,priority:1"`
	Seq       int               `gorm:"column:seq;not null;uniqueIndex:ux_job_event_seq,priority:2"`
	Status    DeliveryJobStatus `gorm:"column:status;size:32;not null"`
	ActorUID  string            `gorm:"column:actor_uid;size:128"`
	ActorRole string            `gorm:"column:actor_role;size:32;not null"`
	Note      string            `gorm:"column:note;type:text"`
	CreatedAt time.Time         `gorm:"column:created_at;not null"`
}

func (DeliveryJobEvent) TableName() string {
	return "delivery_job_events"
}
