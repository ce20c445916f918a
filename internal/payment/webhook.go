package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const SignatureHeader = "X-Signature"

const (
	WebhookCompleted = "completed"
	WebhookFailed    = "failed"
)

type WebhookEvent struct {
	EventID       string `json:"eventId"`
	TransactionID string `json:"transactionId"`
	OrderNumber   string `json:"orderNumber"`
	PaymentRef    string `json:"paymentRef"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason,omitempty"`
}

// DedupKey prefers the provider event id and falls back to the transaction id.
func (e WebhookEvent) DedupKey() string {
	if e.EventID != "" {
		return e.EventID
	}
	return e.TransactionID
}

func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func Verify(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	want, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
