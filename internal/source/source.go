// Package source defines the marketplace adapter boundary. Adapters own all
// knowledge of page structure; the engine only sees candidate URLs and raw
// listing fields.
package source

import (
	"context"

	"adwatcher/internal/listing"
)

// RawListing is the untyped field set an adapter extracts from one listing
// page. Price and shipping stay as free text for the money normalizer.
type RawListing struct {
	NativeID     string
	Title        string
	PriceText    string
	ShippingText string
	KindHint     listing.Kind
	ThumbURL     string
}

// Adapter is implemented once per marketplace.
type Adapter interface {
	// Tag is the stable source prefix used in listing keys.
	Tag() string

	// Discover returns candidate listing URLs from a single search page.
	Discover(ctx context.Context) ([]string, error)

	// Extract parses already-retrieved page content into raw listing fields.
	Extract(pageURL string, content []byte) (RawListing, error)
}
