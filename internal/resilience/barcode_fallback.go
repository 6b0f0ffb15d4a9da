package resilience

import (
	"context"
	"errors"

	"github.com/nutrivox/nutrivox/pkg/provider/barcode"
)

// BarcodeFallback implements [barcode.Provider] with automatic failover across
// multiple product databases. Each database has its own circuit breaker.
//
// [barcode.ErrNotFound] is an authoritative answer, not a failure: it does not
// trip the breaker and does not trigger failover, because a database that is
// up and reports "no such product" should be believed over a slower secondary.
type BarcodeFallback struct {
	group *FallbackGroup[barcode.Provider]
}

// Compile-time interface assertion.
var _ barcode.Provider = (*BarcodeFallback)(nil)

// NewBarcodeFallback creates a [BarcodeFallback] with primary as the preferred
// database.
func NewBarcodeFallback(primary barcode.Provider, primaryName string, cfg FallbackConfig) *BarcodeFallback {
	return &BarcodeFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional product database as a fallback.
func (f *BarcodeFallback) AddFallback(name string, provider barcode.Provider) {
	f.group.AddFallback(name, provider)
}

// Lookup resolves the barcode against the first healthy database.
func (f *BarcodeFallback) Lookup(ctx context.Context, code string) (*barcode.Product, error) {
	var notFound bool
	product, err := ExecuteWithResult(f.group, func(p barcode.Provider) (*barcode.Product, error) {
		prod, err := p.Lookup(ctx, code)
		if errors.Is(err, barcode.ErrNotFound) {
			notFound = true
			return nil, nil
		}
		notFound = false
		return prod, err
	})
	if err != nil {
		return nil, err
	}
	if notFound {
		return nil, barcode.ErrNotFound
	}
	return product, nil
}
