package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shinyyama/tailor-backend/internal/events"
	"github.com/shinyyama/tailor-backend/internal/model"
	"github.com/shinyyama/tailor-backend/internal/policy"
	"github.com/shinyyama/tailor-backend/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sourceDelivery = "delivery"

var coordinatorActor = policy.System("delivery-coordinator")

// Callback is what a delivery partner reports for a job.
type Callback struct {
	CallbackID string
	Note       string
}

type Proof struct {
	ContentType string
	Body        io.Reader
}

type DeliveryService interface {
	Get(ctx context.Context, actor policy.Actor, jobID uint64) (*model.DeliveryJob, error)
	ForOrder(ctx context.Context, actor policy.Actor, orderID uint64) ([]model.DeliveryJob, error)
	List(ctx context.Context, actor policy.Actor, status model.DeliveryJobStatus, limit int) ([]model.DeliveryJob, error)
	Assign(ctx context.Context, actor policy.Actor, jobID uint64, partnerUID string) (*model.DeliveryJob, error)
	Pickup(ctx context.Context, actor policy.Actor, jobID uint64, cb Callback) (*model.DeliveryJob, error)
	Deliver(ctx context.Context, actor policy.Actor, jobID uint64, cb Callback, proof *Proof) (*model.DeliveryJob, error)
	Fail(ctx context.Context, actor policy.Actor, jobID uint64, cb Callback) (*model.DeliveryJob, error)
}

type deliveryService struct {
	*engine
}

func NewDeliveryService(d Deps) DeliveryService {
	return &deliveryService{engine: newEngine(d)}
}

func (s *deliveryService) Get(ctx context.Context, actor policy.Actor, jobID uint64) (*model.DeliveryJob, error) {
	j, err := s.Jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if policy.CanHandleJob(actor, policy.OpViewDelivery, j) {
		return j, nil
	}
	o, err := s.Orders.FindByID(ctx, j.OrderID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !policy.CanPerform(actor, policy.OpViewOrder, o) {
		return nil, ErrUnauthorized
	}
	return j, nil
}

func (s *deliveryService) ForOrder(ctx context.Context, actor policy.Actor, orderID uint64) ([]model.DeliveryJob, error) {
	o, err := s.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !policy.CanPerform(actor, policy.OpViewOrder, o) {
		return nil, ErrUnauthorized
	}
	return s.Jobs.List(ctx, repository.JobFilter{OrderID: o.ID})
}

func (s *deliveryService) List(ctx context.Context, actor policy.Actor, status model.DeliveryJobStatus, limit int) ([]model.DeliveryJob, error) {
	f := repository.JobFilter{Status: status, Limit: limit}
	switch actor.Role {
	case policy.RoleDeliveryPartner:
		f.PartnerUID = actor.ID
	case policy.RoleAdmin:
	default:
		return nil, ErrUnauthorized
	}
	if actor.ID == "" {
		return nil, ErrUnauthorized
	}
	return s.Jobs.List(ctx, f)
}

func (s *deliveryService) Assign(ctx context.Context, actor policy.Actor, jobID uint64, partnerUID string) (*model.DeliveryJob, error) {
	if partnerUID == "" {
		return nil, fmt.Errorf("%w: partnerUid is required", ErrValidation)
	}
	return s.advance(ctx, actor, jobID, policy.OpAssignDelivery, Callback{}, func(tx repository.OrderTx, j *model.DeliveryJob, b *outbox) error {
		if !model.CanAdvanceJob(j.Status, model.DeliveryJobAssigned) {
			return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, j.Number, j.Status)
		}
		now := s.Now()
		j.PartnerUID = partnerUID
		j.AssignedAt = &now
		s.step(j, b, model.DeliveryJobAssigned, actor, "assigned to "+partnerUID)
		b.notify(partnerUID, "delivery_assigned", "New delivery "+j.Number, "A delivery job was assigned to you", j.OrderID)
		return nil
	})
}

func (s *deliveryService) Pickup(ctx context.Context, actor policy.Actor, jobID uint64, cb Callback) (*model.DeliveryJob, error) {
	return s.advance(ctx, actor, jobID, policy.OpDeliveryCallback, cb, func(tx repository.OrderTx, j *model.DeliveryJob, b *outbox) error {
		if j.Status == model.DeliveryJobPickedUp {
			return errDuplicate
		}
		if !model.CanAdvanceJob(j.Status, model.DeliveryJobPickedUp) {
			return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, j.Number, j.Status)
		}
		now := s.Now()
		j.PickedUpAt = &now
		s.step(j, b, model.DeliveryJobPickedUp, actor, cb.Note)
		return s.propagate(ctx, tx, b, model.OrderStatusOutForDelivery, "picked up by "+j.Number)
	})
}

// Deliver uploads the optional proof photo before taking the order lock.
func (s *deliveryService) Deliver(ctx context.Context, actor policy.Actor, jobID uint64, cb Callback, proof *Proof) (*model.DeliveryJob, error) {
	var object string
	if proof != nil && proof.Body != nil {
		j, err := s.Jobs.FindByID(ctx, jobID)
		if err != nil {
			return nil, mapRepoErr(err)
		}
		if !policy.CanHandleJob(actor, policy.OpDeliveryCallback, j) {
			return nil, ErrUnauthorized
		}
		if s.Proofs == nil {
			s.Logger.Warn("proof of delivery dropped; no bucket configured", zap.String("job_number", j.Number))
		} else {
			object, err = s.Proofs.PutProof(ctx, j.Number, proof.ContentType, proof.Body)
			if err != nil {
				return nil, err
			}
		}
	}
	return s.advance(ctx, actor, jobID, policy.OpDeliveryCallback, cb, func(tx repository.OrderTx, j *model.DeliveryJob, b *outbox) error {
		if j.Status == model.DeliveryJobDelivered {
			return errDuplicate
		}
		if !model.CanAdvanceJob(j.Status, model.DeliveryJobDelivered) {
			return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, j.Number, j.Status)
		}
		now := s.Now()
		j.DeliveredAt = &now
		if object != "" {
			j.ProofObject = object
		}
		s.step(j, b, model.DeliveryJobDelivered, actor, cb.Note)
		return s.propagate(ctx, tx, b, model.OrderStatusDelivered, "delivered by "+j.Number)
	})
}

// Fail counts a failed attempt. Below the limit the job is rescheduled; at the
// limit it fails for good, the order is flagged and ErrDeliveryExhausted is
// returned after the state is committed.
func (s *deliveryService) Fail(ctx context.Context, actor policy.Actor, jobID uint64, cb Callback) (*model.DeliveryJob, error) {
	exhausted := false
	j, err := s.advance(ctx, actor, jobID, policy.OpDeliveryCallback, cb, func(tx repository.OrderTx, j *model.DeliveryJob, b *outbox) error {
		if !model.CanAdvanceJob(j.Status, model.DeliveryJobFailed) {
			return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, j.Number, j.Status)
		}
		now := s.Now()
		j.Attempts++
		j.FailureReason = cb.Note
		if j.Attempts < j.MaxAttempts {
			s.step(j, b, model.DeliveryJobRescheduled, actor, cb.Note)
			return nil
		}
		exhausted = true
		j.FailedAt = &now
		s.step(j, b, model.DeliveryJobFailed, actor, cb.Note)
		o := tx.Order()
		o.DeliveryExhausted = true
		s.Logger.Warn("delivery attempts exhausted",
			zap.Uint64("order_id", o.ID),
			zap.String("order_number", o.Number),
			zap.String("job_number", j.Number),
			zap.Int("attempts", j.Attempts),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if exhausted {
		return j, ErrDeliveryExhausted
	}
	return j, nil
}

type jobStep func(tx repository.OrderTx, j *model.DeliveryJob, b *outbox) error

// advance runs fn on the job while the parent order is locked. Authorization is
// checked again on the locked job. A replayed callback id, or fn reporting the
// job already in its target state, returns the stored job unchanged.
func (s *deliveryService) advance(ctx context.Context, actor policy.Actor, jobID uint64, op policy.Operation, cb Callback, fn jobStep) (*model.DeliveryJob, error) {
	current, err := s.Jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if !policy.CanHandleJob(actor, op, current) {
		return nil, ErrUnauthorized
	}
	key := ""
	if cb.CallbackID != "" {
		key = fmt.Sprintf("%s:%s", current.Number, cb.CallbackID)
		if s.Guard.Seen(ctx, sourceDelivery, key) {
			s.Metrics.Duplicate(ctx, sourceDelivery)
			return current, nil
		}
	}

	var b outbox
	var out *model.DeliveryJob
	o, err := s.Orders.Mutate(ctx, current.OrderID, func(tx repository.OrderTx) error {
		jobs, err := tx.Jobs()
		if err != nil {
			return err
		}
		var j *model.DeliveryJob
		for _, candidate := range jobs {
			if candidate.ID == jobID {
				j = candidate
				break
			}
		}
		if j == nil {
			return ErrNotFound
		}
		if !policy.CanHandleJob(actor, op, j) {
			return ErrUnauthorized
		}
		if key != "" {
			claimed, err := tx.ClaimEvent(sourceDelivery, key)
			if err != nil {
				return err
			}
			if !claimed {
				return errDuplicate
			}
		}
		if err := fn(tx, j, &b); err != nil {
			return err
		}
		out = j.Clone()
		return nil
	})
	switch {
	case errors.Is(err, errDuplicate), errors.Is(err, gorm.ErrDuplicatedKey):
		if key != "" {
			s.Guard.Remember(ctx, sourceDelivery, key)
		}
		s.Metrics.Duplicate(ctx, sourceDelivery)
		s.Logger.Info("duplicate delivery callback ignored", zap.String("job_number", current.Number), zap.String("callback_id", cb.CallbackID))
		fresh, ferr := s.Jobs.FindByID(ctx, jobID)
		if ferr != nil {
			return current, nil
		}
		return fresh, nil
	case err != nil:
		return nil, mapRepoErr(err)
	}
	if key != "" {
		s.Guard.Remember(ctx, sourceDelivery, key)
	}
	s.flush(ctx, o.Number, &b)
	return out, nil
}

func (s *deliveryService) step(j *model.DeliveryJob, b *outbox, to model.DeliveryJobStatus, actor policy.Actor, note string) {
	j.Status = to
	j.AppendEvent(model.DeliveryJobEvent{
		Status:    to,
		ActorUID:  actor.ID,
		ActorRole: string(actor.Role),
		Note:      note,
		CreatedAt: s.Now(),
	})
	b.event(events.TypeDeliveryStatusChange, events.DeliveryPayload{
		OrderID:   j.OrderID,
		JobNumber: j.Number,
		Status:    string(to),
		Attempts:  j.Attempts,
	})
}

// propagate pushes a delivery milestone into the parent order. An order that
// already reached the milestone, for example after a rescheduled pickup, is
// left as is.
func (s *deliveryService) propagate(ctx context.Context, tx repository.OrderTx, b *outbox, to model.OrderStatus, note string) error {
	if tx.Order().Status == to {
		return nil
	}
	return s.apply(ctx, tx, b, transition{
		to:      to,
		trigger: model.TriggerDelivery,
		actor:   coordinatorActor,
		note:    note,
	})
}
