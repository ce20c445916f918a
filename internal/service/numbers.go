package service

import (
	"context"
	"fmt"

	"github.com/shinyyama/tailor-backend/internal/repository"
)

// NumberSource issues order numbers. Uniqueness comes from the backing
// sequence, not from clocks or randomness.
type NumberSource interface {
	OrderNumber(ctx context.Context) (string, error)
}

const (
	seqOrder       = "order"
	seqDeliveryJob = "delivery_job"
)

type sequenceNumbers struct {
	seq repository.SequenceRepository
}

func NewSequenceNumbers(seq repository.SequenceRepository) NumberSource {
	return &sequenceNumbers{seq: seq}
}

func (n *sequenceNumbers) OrderNumber(ctx context.Context) (string, error) {
	v, err := n.seq.Next(ctx, seqOrder)
	if err != nil {
		return "", fmt.Errorf("next order number: %w", err)
	}
	return fmt.Sprintf("ORD-%08d", v), nil
}

// nextJobNumber allocates inside the order transaction so no second
// connection is taken while the order row is locked.
func nextJobNumber(tx repository.OrderTx) (string, error) {
	v, err := tx.NextSequence(seqDeliveryJob)
	if err != nil {
		return "", fmt.Errorf("next job number: %w", err)
	}
	return fmt.Sprintf("DL-%08d", v), nil
}
