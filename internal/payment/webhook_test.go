package payment

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestVerify(t *testing.T) {
	body := []byte(`{"eventId":"evt_1","status":"completed"}`)
	sig := Sign("s3cret", body)

	tests := []struct {
		name   string
		secret string
		body   []byte
		sig    string
		want   bool
	}{
		{"valid", "s3cret", body, sig, true},
		{"prefixed", "s3cret", body, "sha256=" + sig, true},
		{"wrong secret", "other", body, sig, false},
		{"tampered body", "s3cret", []byte(`{"eventId":"evt_1","status":"failed"}`), sig, false},
		{"not hex", "s3cret", body, "zz", false},
		{"empty secret", "", body, sig, false},
		{"missing signature", "s3cret", body, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Verify(tt.secret, tt.body, tt.sig))
		})
	}
}

func TestDedupKey(t *testing.T) {
	assert.Equal(t, "evt_1", WebhookEvent{EventID: "evt_1", TransactionID: "tx_1"}.DedupKey())
	assert.Equal(t, "tx_1", WebhookEvent{TransactionID: "tx_1"}.DedupKey())
}

func TestSandboxInitiate(t *testing.T) {
	p := NewSandboxProvider("https://pay.example.com/checkout", zap.NewNop())

	s, err := p.Initiate(context.Background(), Checkout{OrderNumber: "ORD-00000001", Amount: 31763, Currency: "AED"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s.Ref, "pay_"))
	assert.Contains(t, s.CheckoutURL, "order=ORD-00000001")
	assert.Contains(t, s.CheckoutURL, "ref="+s.Ref)

	_, err = p.Initiate(context.Background(), Checkout{OrderNumber: "ORD-00000002"})
	require.Error(t, err)
}
