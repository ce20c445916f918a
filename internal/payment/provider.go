// Package payment talks to the external payment provider. The provider is
// opaque: initiate a checkout, receive a signed webhook, then release funds to
// the shop or refund the customer.
package payment

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Checkout struct {
	OrderNumber string
	Amount      int64
	Currency    string
}

type Session struct {
	Ref         string
	CheckoutURL string
}

type Transfer struct {
	OrderNumber string
	ShopUID     string
	Amount      int64
	Currency    string
}

type Refund struct {
	OrderNumber string
	PaymentRef  string
	Amount      int64
	Currency    string
}

type Provider interface {
	Initiate(ctx context.Context, c Checkout) (Session, error)
	Transfer(ctx context.Context, t Transfer) (string, error)
	Refund(ctx context.Context, r Refund) (string, error)
}

// SandboxProvider issues local references and a hosted checkout link. It is
// the provider used outside production and in tests.
type SandboxProvider struct {
	checkoutURL string
	logger      *zap.Logger
}

func NewSandboxProvider(checkoutURL string, logger *zap.Logger) *SandboxProvider {
	return &SandboxProvider{checkoutURL: checkoutURL, logger: logger}
}

func (p *SandboxProvider) Initiate(_ context.Context, c Checkout) (Session, error) {
	if c.Amount <= 0 {
		return Session{}, fmt.Errorf("checkout amount must be positive")
	}
	ref := "pay_" + uuid.NewString()
	u, err := url.Parse(p.checkoutURL)
	if err != nil {
		return Session{}, fmt.Errorf("checkout url: %w", err)
	}
	q := u.Query()
	q.Set("ref", ref)
	q.Set("order", c.OrderNumber)
	u.RawQuery = q.Encode()
	p.logger.Info("payment initiated", zap.String("order_number", c.OrderNumber), zap.String("payment_ref", ref), zap.Int64("amount", c.Amount))
	return Session{Ref: ref, CheckoutURL: u.String()}, nil
}

func (p *SandboxProvider) Transfer(_ context.Context, t Transfer) (string, error) {
	ref := "tr_" + uuid.NewString()
	p.logger.Info("payout transferred", zap.String("order_number", t.OrderNumber), zap.String("transfer_ref", ref), zap.Int64("amount", t.Amount))
	return ref, nil
}

func (p *SandboxProvider) Refund(_ context.Context, r Refund) (string, error) {
	ref := "rf_" + uuid.NewString()
	p.logger.Info("payment refunded", zap.String("order_number", r.OrderNumber), zap.String("refund_ref", ref), zap.Int64("amount", r.Amount))
	return ref, nil
}
