package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/santaspot/backend/internal/utils"
)

// Event types handled by the service
const (
	EventIntentSucceeded  = "payment_intent.succeeded"
	EventIntentProcessing = "payment_intent.processing"
	EventIntentFailed     = "payment_intent.payment_failed"
	EventIntentCanceled   = "payment_intent.canceled"
)

// SignatureHeader carries the webhook signature
const SignatureHeader = "Stripe-Signature"

// Signature errors
var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleSignature   = errors.New("webhook timestamp outside tolerance")
	ErrMissingSecret    = errors.New("webhook signing secret is not configured")
)

// Event is a webhook notification
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Intent decodes the event object as a payment intent
func (e *Event) Intent() (*Intent, error) {
	var intent Intent
	if err := json.Unmarshal(e.Data.Object, &intent); err != nil {
		return nil, fmt.Errorf("failed to decode %s object: %w", e.Type, err)
	}
	if intent.ID == "" {
		return nil, fmt.Errorf("%s event has no payment intent", e.Type)
	}
	return &intent, nil
}

// VerifySignature checks header "t=<unix>,v1=<hex>" against HMAC-SHA256 of "t.payload"
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if secret == "" {
		return ErrMissingSecret
	}
	if header == "" {
		return ErrMissingSignature
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	age := now.Sub(time.Unix(ts, 0))
	if tolerance > 0 && (age > tolerance || age < -tolerance) {
		return ErrStaleSignature
	}

	signed := timestamp + "." + string(payload)
	for _, sig := range signatures {
		if utils.VerifyHMAC(signed, sig, secret) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// ConstructEvent verifies the raw body and decodes it
func ConstructEvent(payload []byte, header, secret string, tolerance time.Duration) (*Event, error) {
	if err := VerifySignature(payload, header, secret, tolerance, time.Now()); err != nil {
		return nil, err
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, errors.New("event is missing id or type")
	}
	return &event, nil
}

// SignPayload builds a signature header for payload at t
func SignPayload(payload []byte, secret string, t time.Time) string {
	timestamp := strconv.FormatInt(t.Unix(), 10)
	return "t=" + timestamp + ",v1=" + utils.SignHMAC(timestamp+"."+string(payload), secret)
}
