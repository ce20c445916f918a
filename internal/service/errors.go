package service

import (
	"errors"

	"github.com/shinyyama/tailor-backend/internal/pricing"
	"github.com/shinyyama/tailor-backend/internal/repository"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrValidation          = errors.New("invalid request")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrOrderNotCancellable = errors.New("order is not cancellable")
	ErrEscrowNotHeld       = errors.New("escrow is not held")
	ErrAlreadyHeld         = errors.New("escrow already held")
	ErrOrderNotDelivered   = errors.New("order not delivered")
	ErrPricingUnavailable  = pricing.ErrPricingUnavailable
	ErrDeliveryExhausted   = errors.New("delivery attempts exhausted")
	ErrNotReviewable       = errors.New("order cannot be reviewed")
	ErrAlreadyReviewed     = errors.New("order already reviewed")
)

// errDuplicate aborts a Mutate without writing when a callback was already applied.
var errDuplicate = errors.New("duplicate callback")

func mapRepoErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
