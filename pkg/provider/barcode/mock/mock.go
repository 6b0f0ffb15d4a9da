// Package mock provides test doubles for the barcode package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/nutrivox/nutrivox/pkg/provider/barcode"
)

// LookupCall records a single invocation of Provider.Lookup.
type LookupCall struct {
	// Code is the barcode passed to Lookup.
	Code string
}

// Provider is a mock implementation of barcode.Provider.
type Provider struct {
	mu sync.Mutex

	// Product is returned by Lookup when LookupErr is nil.
	Product *barcode.Product

	// LookupErr, if non-nil, is returned as the error from Lookup.
	// Set to barcode.ErrNotFound to simulate an unknown barcode.
	LookupErr error

	// LookupCalls records every call to Lookup.
	LookupCalls []LookupCall
}

// Lookup records the call and returns Product, LookupErr.
func (p *Provider) Lookup(ctx context.Context, code string) (*barcode.Product, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LookupCalls = append(p.LookupCalls, LookupCall{Code: code})
	if p.LookupErr != nil {
		return nil, p.LookupErr
	}
	return p.Product, nil
}

// LookupCallCount returns the number of Lookup calls. Thread-safe.
func (p *Provider) LookupCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.LookupCalls)
}

// Ensure Provider implements barcode.Provider at compile time.
var _ barcode.Provider = (*Provider)(nil)
