package payment

import (
	"context"

	"nda-clarity/internal/domain"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusPending   Status = "pending"
)

// Outcome is the result of one confirmation attempt. ConfirmationID is set
// only on success; Message carries the processor's user-facing text otherwise.
type Outcome struct {
	Status         Status `json:"status"`
	ConfirmationID string `json:"confirmation_id,omitempty"`
	Message        string `json:"message,omitempty"`
}

func Succeeded(confirmationID string) Outcome {
	return Outcome{Status: StatusSucceeded, ConfirmationID: confirmationID}
}

func Failed(message string) Outcome {
	return Outcome{Status: StatusFailed, Message: message}
}

func Pending(message string) Outcome {
	return Outcome{Status: StatusPending, Message: message}
}

// MethodDetails references a payment method tokenized by the processor's own
// UI element. Raw card data never reaches this package.
type MethodDetails struct {
	PaymentMethodID string `json:"payment_method_id"`
	ReturnURL       string `json:"return_url,omitempty"`
}

func (MethodDetails) String() string {
	return "payment.MethodDetails{redacted}"
}

func (d MethodDetails) GoString() string {
	return d.String()
}

// Processor confirms a payment intent. A returned error means the outcome is
// unknown; declines and pending confirmations are reported as an Outcome.
type Processor interface {
	Confirm(ctx context.Context, intent domain.PaymentIntent, details MethodDetails) (Outcome, error)
}
