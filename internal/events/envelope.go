package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypeOrderCreated         = "order.created"
	TypeOrderStatusChanged   = "order.status_changed"
	TypeEscrowHeld           = "escrow.held"
	TypeEscrowReleased       = "escrow.released"
	TypeEscrowRefunded       = "escrow.refunded"
	TypeDeliveryJobCreated   = "delivery.job_created"
	TypeDeliveryStatusChange = "delivery.status_changed"
)

const producerName = "tailor-api"

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Payloads carry customer-safe figures only; shop payouts never leave the ledger.

type OrderStatusPayload struct {
	OrderID     uint64 `json:"order_id"`
	OrderNumber string `json:"order_number"`
	From        string `json:"from,omitempty"`
	To          string `json:"to"`
	ActorRole   string `json:"actor_role"`
	Override    bool   `json:"override,omitempty"`
}

type EscrowPayload struct {
	OrderID     uint64 `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"escrow_status"`
	Amount      int64  `json:"amount"`
}

type DeliveryPayload struct {
	OrderID   uint64 `json:"order_id"`
	JobNumber string `json:"job_number"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
}

func New(eventType, correlationID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producerName,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

type Publisher interface {
	Publish(ctx context.Context, e Envelope)
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Envelope) {}
func (NopPublisher) Close() error                      { return nil }
