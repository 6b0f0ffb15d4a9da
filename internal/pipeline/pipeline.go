// Package pipeline orchestrates one product scan: it turns raw captured
// evidence (label text blocks and/or a barcode) into a single reconciled
// product record. Barcode lookup and text extraction run concurrently; their
// results are merged under the fixed reconciliation precedence in the product
// package.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nutrivox/nutrivox/internal/allergen"
	"github.com/nutrivox/nutrivox/internal/observe"
	"github.com/nutrivox/nutrivox/internal/product"
	"github.com/nutrivox/nutrivox/pkg/provider/barcode"
)

// maxHeuristicNameLen bounds the front-label line accepted as a product name.
// Longer lines are almost always ingredient or marketing text.
const maxHeuristicNameLen = 60

// Input is the raw evidence for one scan.
type Input struct {
	// Barcode is the recognized barcode digits, empty when none was found.
	Barcode string

	// TextBlocks holds the recognized text of each captured image, in capture
	// order. Blocks are concatenated with blank-line separators into the
	// normalized text the extractors consume.
	TextBlocks []string

	// FrontText and BackText are the first and second captured blocks kept
	// separate for the product-name heuristic. Either may be empty.
	FrontText string
	BackText  string

	// Profile is the user's allergen profile, immutable for this scan.
	Profile allergen.Profile
}

// AllText concatenates the text blocks with blank-line separators, skipping
// empty blocks.
func (in Input) AllText() string {
	var parts []string
	for _, b := range in.TextBlocks {
		b = strings.TrimSpace(b)
		if b != "" {
			parts = append(parts, b)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Pipeline runs scans. Both collaborators are optional: a nil barcode provider
// skips lookup, a nil extractor falls back to pattern extraction only.
type Pipeline struct {
	barcodes  barcode.Provider
	extractor *AIExtractor
	metrics   *observe.Metrics
	log       *slog.Logger
}

// Option is a functional option for configuring a Pipeline.
type Option func(*Pipeline)

// WithBarcodeProvider sets the barcode lookup collaborator.
func WithBarcodeProvider(p barcode.Provider) Option {
	return func(pl *Pipeline) { pl.barcodes = p }
}

// WithAIExtractor sets the AI extraction collaborator.
func WithAIExtractor(e *AIExtractor) Option {
	return func(pl *Pipeline) { pl.extractor = e }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(pl *Pipeline) { pl.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(pl *Pipeline) { pl.log = l }
}

// New creates a Pipeline.
func New(opts ...Option) *Pipeline {
	pl := &Pipeline{}
	for _, o := range opts {
		o(pl)
	}
	if pl.metrics == nil {
		pl.metrics = observe.DefaultMetrics()
	}
	if pl.log == nil {
		pl.log = slog.Default()
	}
	return pl
}

// Scan produces exactly one reconciled product record from the input, or
// product.ErrNoEvidence when neither source yielded anything and no raw text
// was present.
//
// Barcode lookup and text extraction are independent and run concurrently; a
// failure of either source alone is never surfaced — it falls through the
// reconciliation precedence silently.
func (pl *Pipeline) Scan(ctx context.Context, in Input) (*product.Record, error) {
	start := time.Now()
	allText := in.AllText()

	var (
		barcodeRec *product.Record
		textRec    *product.Record
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		barcodeRec = pl.lookupBarcode(gctx, in.Barcode, in.Profile)
		return nil
	})
	g.Go(func() error {
		textRec = pl.extractText(gctx, allText, in.Profile)
		return nil
	})

	// Both goroutines recover their own failures; the only error path here
	// is context cancellation.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		pl.metrics.RecordScan(ctx, "cancelled", time.Since(start).Seconds())
		return nil, err
	}

	rec, err := product.Reconcile(barcodeRec, textRec, allText, func(text string) []string {
		return allergen.Match(text, in.Profile)
	})
	if err != nil {
		pl.metrics.RecordScan(ctx, "no_evidence", time.Since(start).Seconds())
		return nil, err
	}

	applyNameHeuristic(rec, in.FrontText, in.BackText)

	outcome := "ok"
	if rec.Name == product.FallbackName {
		outcome = "degraded"
	}
	pl.metrics.RecordScan(ctx, outcome, time.Since(start).Seconds())
	if len(rec.DetectedAllergens) > 0 {
		pl.metrics.AllergenAlerts.Add(ctx, 1)
	}

	pl.log.Info("scan complete",
		"record_id", rec.ID,
		"name", rec.Name,
		"ingredients", len(rec.Ingredients),
		"detected_allergens", len(rec.DetectedAllergens),
		"outcome", outcome,
		"duration", time.Since(start))

	return rec, nil
}

// lookupBarcode runs the barcode source. Any failure degrades to a nil record.
func (pl *Pipeline) lookupBarcode(ctx context.Context, code string, profile allergen.Profile) *product.Record {
	if pl.barcodes == nil || code == "" {
		return nil
	}

	start := time.Now()
	bp, err := pl.barcodes.Lookup(ctx, code)
	pl.metrics.BarcodeLookupDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, barcode.ErrNotFound) {
			pl.log.Debug("barcode not found", "code", code)
		} else {
			pl.log.Warn("barcode lookup failed", "code", code, "error", err)
			pl.metrics.RecordProviderError(ctx, "barcode", "lookup")
		}
		return nil
	}
	pl.metrics.RecordProviderRequest(ctx, "barcode", "lookup", "ok")
	return BuildFromBarcode(bp, profile)
}

// extractText runs the free-text source: AI extraction when configured,
// pattern extraction otherwise. An AI transport failure falls back to pattern
// extraction rather than losing the text evidence.
func (pl *Pipeline) extractText(ctx context.Context, allText string, profile allergen.Profile) *product.Record {
	if strings.TrimSpace(allText) == "" {
		return nil
	}

	if pl.extractor != nil {
		start := time.Now()
		rec, err := pl.extractor.Extract(ctx, allText, profile)
		pl.metrics.ExtractionDuration.Record(ctx, time.Since(start).Seconds(),
			observe.HistAttr("source", "ai"))
		if err == nil {
			pl.metrics.RecordProviderRequest(ctx, "llm", "extraction", "ok")
			return rec
		}
		pl.log.Warn("ai extraction failed, falling back to pattern extraction", "error", err)
		pl.metrics.RecordProviderError(ctx, "llm", "extraction")
	}

	start := time.Now()
	rec := BuildFromExtraction(allText, profile)
	pl.metrics.ExtractionDuration.Record(ctx, time.Since(start).Seconds(),
		observe.HistAttr("source", "pattern"))
	return rec
}

// applyNameHeuristic fills in a missing product name from the front label
// text: the first short line that is not a known section header. The back
// label is tried only when the front yields nothing. The degraded-record
// placeholder name is left alone; it signals that extraction was unavailable.
func applyNameHeuristic(rec *product.Record, frontText, backText string) {
	if rec.Name != "" {
		return
	}
	for _, text := range []string{frontText, backText} {
		if name := firstNameLine(text); name != "" {
			rec.Name = name
			return
		}
	}
}

// sectionWords are label headers that disqualify a line as a product name.
var sectionWords = []string{"ingredients", "nutrition", "allergen", "warning", "contains", "best before", "use by"}

func firstNameLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || len(line) > maxHeuristicNameLen {
			continue
		}
		lower := strings.ToLower(line)
		skip := false
		for _, w := range sectionWords {
			if strings.Contains(lower, w) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		return line
	}
	return ""
}
