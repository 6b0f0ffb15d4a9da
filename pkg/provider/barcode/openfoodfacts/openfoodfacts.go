// Package openfoodfacts provides an Open Food Facts-backed barcode lookup
// provider using the public v2 product API. It implements the
// barcode.Provider interface.
package openfoodfacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/nutrivox/nutrivox/pkg/provider/barcode"
)

const (
	defaultBaseURL = "https://world.openfoodfacts.org"
	productPathFmt = "/api/v2/product/%s.json"

	defaultTimeout = 10 * time.Second
)

// Compile-time assertion that Provider implements barcode.Provider.
var _ barcode.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL. Useful for tests and for the
// staging instance.
func WithBaseURL(base string) Option {
	return func(p *Provider) { p.baseURL = base }
}

// WithHTTPClient replaces the HTTP client. The default uses a 10 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithUserAgent sets the User-Agent header. Open Food Facts asks API
// consumers to identify themselves.
func WithUserAgent(ua string) Option {
	return func(p *Provider) { p.userAgent = ua }
}

// Provider implements barcode.Provider backed by the Open Food Facts API.
type Provider struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// New creates a new Open Food Facts Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL:   defaultBaseURL,
		userAgent: "nutrivox/1.0",
		client:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// productResponse is the subset of the OFF v2 product payload we consume.
type productResponse struct {
	Status  int `json:"status"`
	Product struct {
		ProductName              string          `json:"product_name"`
		IngredientsText          string          `json:"ingredients_text"`
		AllergensTags            []string        `json:"allergens_tags"`
		AllergensFromIngredients string          `json:"allergens_from_ingredients"`
		NutrimentsRaw            json.RawMessage `json:"nutriments"`
		ServingSize              string          `json:"serving_size"`
	} `json:"product"`
}

// Lookup fetches the product for code. Returns barcode.ErrNotFound when the
// database reports status 0 (unknown product) or the server returns 404.
func (p *Provider) Lookup(ctx context.Context, code string) (*barcode.Product, error) {
	if code == "" {
		return nil, errors.New("openfoodfacts: barcode must not be empty")
	}

	u := p.baseURL + fmt.Sprintf(productPathFmt, url.PathEscape(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("openfoodfacts: build request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openfoodfacts: lookup %q: %w", code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, barcode.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openfoodfacts: lookup %q: unexpected status %d", code, resp.StatusCode)
	}

	var pr productResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("openfoodfacts: decode response: %w", err)
	}
	if pr.Status == 0 {
		return nil, barcode.ErrNotFound
	}

	return mapProduct(code, &pr), nil
}

// mapProduct converts an OFF payload into the provider-neutral Product.
// Non-numeric nutriment entries (units, labels) are skipped; only the
// "<nutrient>_100g" numeric fields are carried.
func mapProduct(code string, pr *productResponse) *barcode.Product {
	nutriments := make(map[string]float64)
	if len(pr.Product.NutrimentsRaw) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(pr.Product.NutrimentsRaw, &raw); err == nil {
			for k, v := range raw {
				if f, ok := v.(float64); ok {
					nutriments[k] = f
				}
			}
		}
	}

	return &barcode.Product{
		Code:                     code,
		Name:                     pr.Product.ProductName,
		IngredientsText:          pr.Product.IngredientsText,
		AllergenTags:             pr.Product.AllergensTags,
		AllergensFromIngredients: pr.Product.AllergensFromIngredients,
		Nutriments:               nutriments,
		ServingSize:              pr.Product.ServingSize,
	}
}
