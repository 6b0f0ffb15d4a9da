// Package history defines the persistent scan history store.
//
// Every completed scan is recorded so a returning user can re-listen to a
// product without re-photographing it, and so the HTTP API can serve recent
// scans. The store keeps a compact summary per scan plus a full JSON snapshot
// of the reconciled product record.
package history

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no scan exists for the requested ID.
var ErrNotFound = errors.New("history: scan not found")

// Scan is one persisted scan result.
type Scan struct {
	// ID is the scan's unique identifier, assigned by the scan pipeline.
	ID string

	// Barcode is the scanned barcode, empty when the scan was text-only.
	Barcode string

	// ProductName is the reconciled display name, possibly the degraded-record
	// placeholder.
	ProductName string

	// DetectedAllergens lists the profile allergens found in this product.
	DetectedAllergens []string

	// Outcome records how the scan resolved: "ok", "degraded", or
	// "no_evidence".
	Outcome string

	// Record is the full reconciled product record as JSON.
	Record []byte

	// CreatedAt is when the scan completed. Zero means "set by the store".
	CreatedAt time.Time
}

// Answer is one question answered about a stored scan.
type Answer struct {
	// ID is the answer's unique identifier.
	ID string

	// ScanID references the scan the question was asked about.
	ScanID string

	// Question is the user's question as asked.
	Question string

	// Answer is the model's reply.
	Answer string

	// CreatedAt is when the question was answered. Zero means "set by the
	// store".
	CreatedAt time.Time
}

// QueryOpts filters and bounds a ListScans call. Zero values mean
// "no restriction".
type QueryOpts struct {
	// Barcode restricts results to scans of the given barcode.
	Barcode string

	// Allergen restricts results to scans whose DetectedAllergens contains
	// the given display name.
	Allergen string

	// After excludes scans created at or before this time.
	After time.Time

	// Before excludes scans created at or after this time.
	Before time.Time

	// Limit caps the number of results. Zero means no limit.
	Limit int
}

// Store is the abstraction over any scan history backend.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// SaveScan persists one scan. A zero CreatedAt is replaced with the
	// current time. Saving an existing ID overwrites the stored scan.
	SaveScan(ctx context.Context, scan Scan) error

	// GetScan returns the scan with the given ID, or ErrNotFound.
	GetScan(ctx context.Context, id string) (Scan, error)

	// ListScans returns scans matching opts, newest first.
	ListScans(ctx context.Context, opts QueryOpts) ([]Scan, error)

	// DeleteScan removes the scan with the given ID. Deleting an unknown ID
	// returns ErrNotFound. Answers recorded for the scan are removed with it.
	DeleteScan(ctx context.Context, id string) error

	// SaveAnswer persists one question/answer pair. A zero CreatedAt is
	// replaced with the current time.
	SaveAnswer(ctx context.Context, answer Answer) error

	// ListAnswers returns the answers recorded for a scan, newest first.
	ListAnswers(ctx context.Context, scanID string) ([]Answer, error)
}
