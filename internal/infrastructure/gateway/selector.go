package gateway

import (
	"fmt"
	"time"

	"github.com/storefront-go/storefront/internal/domain/payment"
)

// Selector routes each payment method to its registered gateway.
type Selector struct {
	gateways map[payment.Method]payment.Gateway
}

func NewSelector() *Selector {
	return &Selector{gateways: make(map[payment.Method]payment.Gateway)}
}

func (s *Selector) Register(m payment.Method, g payment.Gateway) {
	s.gateways[m] = g
}

func (s *Selector) Resolve(m payment.Method) (payment.Gateway, error) {
	g, ok := s.gateways[m]
	if !ok {
		return nil, fmt.Errorf("%w: %q", payment.ErrUnsupportedMethod, m)
	}
	return g, nil
}

// DefaultSelector wires the simulated card processors and the cash gateway
// with a shared decline rate and latency.
func DefaultSelector(declineRate float64, latency time.Duration) *Selector {
	s := NewSelector()
	s.Register(payment.MethodStripe, NewCardProcessor("stripe", declineRate, latency, time.Now().UnixNano()))
	s.Register(payment.MethodRazorpay, NewCardProcessor("razorpay", declineRate, latency, time.Now().UnixNano()+1))
	s.Register(payment.MethodCash, NewCash())
	return s
}
