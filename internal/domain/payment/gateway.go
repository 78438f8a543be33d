package payment

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedMethod reports a payment method no gateway is registered for.
	ErrUnsupportedMethod = errors.New("payment: unsupported payment method")

	// ErrGatewayUnavailable classifies connectivity and protocol failures
	// talking to a processor. A business decline is never wrapped in it;
	// declines come back as an unapproved ChargeResult.
	ErrGatewayUnavailable = errors.New("payment: gateway unavailable")
)

type Method string

const (
	MethodStripe   Method = "stripe"
	MethodRazorpay Method = "razorpay"
	MethodCash     Method = "cash"
)

func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodStripe, MethodRazorpay, MethodCash:
		return Method(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, s)
	}
}

type ChargeRequest struct {
	OrderID  string
	Amount   int64
	Currency string
}

// ChargeResult reports the outcome of one charge attempt. TransactionRef is
// set only when the charge was approved and is safe to use as an external
// reconciliation reference.
type ChargeResult struct {
	Approved       bool
	TransactionRef string
	DeclineReason  string
}

// Gateway attempts to move Amount of Currency and reports the outcome.
// Implementations must return a decline as an unapproved result, not as an
// error; only connectivity failures (wrapped in ErrGatewayUnavailable) are
// error conditions, so callers can decide retry-versus-abort.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// Resolver picks the gateway for a payment method.
type Resolver interface {
	Resolve(m Method) (Gateway, error)
}
