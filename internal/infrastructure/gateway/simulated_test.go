package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-go/storefront/internal/domain/payment"
)

func chargeReq() payment.ChargeRequest {
	return payment.ChargeRequest{OrderID: "o1", Amount: 1500, Currency: "USD"}
}

func TestCardProcessorApproves(t *testing.T) {
	p := NewCardProcessor("stripe", 0, 0, 1)

	result, err := p.Charge(context.Background(), chargeReq())
	require.NoError(t, err)
	assert.True(t, result.Approved)
	assert.NotEmpty(t, result.TransactionRef)
	assert.Contains(t, result.TransactionRef, "stripe_")
}

func TestCardProcessorDeclineIsNotAnError(t *testing.T) {
	p := NewCardProcessor("stripe", 1, 0, 1)

	result, err := p.Charge(context.Background(), chargeReq())
	require.NoError(t, err)
	assert.False(t, result.Approved)
	assert.Equal(t, "insufficient funds", result.DeclineReason)
	assert.Empty(t, result.TransactionRef)
}

func TestCardProcessorTimeoutIsUnavailable(t *testing.T) {
	p := NewCardProcessor("stripe", 0, time.Second, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Charge(ctx, chargeReq())
	assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)
}

func TestCardProcessorCancelledContext(t *testing.T) {
	p := NewCardProcessor("stripe", 0, 0, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Charge(ctx, chargeReq())
	assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)
}

func TestCashAlwaysApproves(t *testing.T) {
	result, err := NewCash().Charge(context.Background(), chargeReq())
	require.NoError(t, err)
	assert.True(t, result.Approved)
	assert.Contains(t, result.TransactionRef, "cash_")
}

func TestSelectorResolvesRegisteredMethods(t *testing.T) {
	s := DefaultSelector(0.1, 0)

	for _, m := range []payment.Method{payment.MethodStripe, payment.MethodRazorpay, payment.MethodCash} {
		gw, err := s.Resolve(m)
		require.NoError(t, err)
		assert.NotNil(t, gw)
	}

	_, err := s.Resolve(payment.Method("barter"))
	assert.ErrorIs(t, err, payment.ErrUnsupportedMethod)
}
