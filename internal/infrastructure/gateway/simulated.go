package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/storefront-go/storefront/internal/domain/payment"
)

const declineInsufficientFunds = "insufficient funds"

// CardProcessor simulates a card-processor-style gateway. The random source
// is injected so tests can script outcomes instead of depending on success
// rates.
type CardProcessor struct {
	name        string
	declineRate float64
	latency     time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewCardProcessor(name string, declineRate float64, latency time.Duration, seed int64) *CardProcessor {
	if declineRate < 0 {
		declineRate = 0
	}
	if declineRate > 1 {
		declineRate = 1
	}
	return &CardProcessor{
		name:        name,
		declineRate: declineRate,
		latency:     latency,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Charge simulates the processor round trip. A decline is a normal result;
// only an expired or cancelled context is a connectivity error.
func (p *CardProcessor) Charge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	if p.latency > 0 {
		timer := time.NewTimer(p.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return payment.ChargeResult{}, fmt.Errorf("%w: %s: %w", payment.ErrGatewayUnavailable, p.name, ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return payment.ChargeResult{}, fmt.Errorf("%w: %s: %w", payment.ErrGatewayUnavailable, p.name, err)
	}

	p.mu.Lock()
	declined := p.rng.Float64() < p.declineRate
	nonce := p.rng.Intn(1 << 24)
	p.mu.Unlock()

	if declined {
		return payment.ChargeResult{Approved: false, DeclineReason: declineInsufficientFunds}, nil
	}
	return payment.ChargeResult{
		Approved:       true,
		TransactionRef: fmt.Sprintf("%s_%d_%06x", p.name, time.Now().UnixMilli(), nonce),
	}, nil
}

// Cash records a manual cash payment; it always approves.
type Cash struct{}

func NewCash() Cash { return Cash{} }

func (Cash) Charge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return payment.ChargeResult{}, fmt.Errorf("%w: cash: %w", payment.ErrGatewayUnavailable, err)
	}
	return payment.ChargeResult{
		Approved:       true,
		TransactionRef: fmt.Sprintf("cash_%d", time.Now().UnixMilli()),
	}, nil
}
