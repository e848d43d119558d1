package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"adwatcher/internal/listing"
	"adwatcher/internal/transport"
)

// JSONAdapter speaks a site-neutral JSON API:
//
//	GET {base}/api/search?q=...          -> {"listings":[...]} or [...]
//	GET {base}/api/listings/{listing_id} -> {"listing":{...}} or {...}
//
// It carries no per-site HTML heuristics; marketplaces that only expose
// markup need their own Adapter implementation.
type JSONAdapter struct {
	tag       string
	baseURL   string
	query     string
	transport transport.Transport
}

// JSONOptions configure a JSONAdapter.
type JSONOptions struct {
	Tag     string
	BaseURL string
	Query   string
}

// NewJSONAdapter validates options and builds the adapter.
func NewJSONAdapter(opts JSONOptions, tr transport.Transport) (*JSONAdapter, error) {
	if opts.Tag == "" {
		return nil, errors.New("source tag is required")
	}
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		return nil, errors.New("base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if tr == nil {
		return nil, errors.New("transport is required")
	}
	return &JSONAdapter{
		tag:       opts.Tag,
		baseURL:   strings.TrimRight(base, "/"),
		query:     opts.Query,
		transport: tr,
	}, nil
}

// Tag returns the key prefix for this source.
func (a *JSONAdapter) Tag() string {
	return a.tag
}

type summaryPayload struct {
	ListingID string `json:"listing_id"`
	URL       string `json:"url"`
}

type detailPayload struct {
	ListingID    string `json:"listing_id"`
	Title        string `json:"title"`
	Price        string `json:"price"`
	Shipping     string `json:"shipping"`
	Kind         string `json:"kind"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Discover fetches the search endpoint once and returns candidate detail
// URLs in result order, de-duplicated.
func (a *JSONAdapter) Discover(ctx context.Context) ([]string, error) {
	u, err := url.Parse(a.baseURL + "/api/search")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if strings.TrimSpace(a.query) != "" {
		q.Set("q", strings.TrimSpace(a.query))
	}
	u.RawQuery = q.Encode()

	resp := a.transport.Get(ctx, u.String())
	if !resp.OK() {
		return nil, fmt.Errorf("search request failed with status %d", resp.Status)
	}

	summaries, err := decodeSummaries(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode search payload: %w", err)
	}

	seen := make(map[string]struct{}, len(summaries))
	urls := make([]string, 0, len(summaries))
	for _, s := range summaries {
		candidate := s.URL
		if candidate == "" && s.ListingID != "" {
			candidate = a.baseURL + "/api/listings/" + url.PathEscape(s.ListingID)
		}
		if candidate == "" {
			continue
		}
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}
		urls = append(urls, candidate)
	}
	return urls, nil
}

// Extract parses a detail payload into raw listing fields.
func (a *JSONAdapter) Extract(pageURL string, content []byte) (RawListing, error) {
	var wrapped struct {
		Listing *detailPayload `json:"listing"`
	}
	detail := detailPayload{}
	if err := json.Unmarshal(content, &wrapped); err == nil && wrapped.Listing != nil {
		detail = *wrapped.Listing
	} else if err := json.Unmarshal(content, &detail); err != nil {
		return RawListing{}, fmt.Errorf("decode listing payload: %w", err)
	}

	if detail.ListingID == "" && detail.Title == "" {
		return RawListing{}, fmt.Errorf("listing payload carries no identity: %s", pageURL)
	}

	return RawListing{
		NativeID:     detail.ListingID,
		Title:        detail.Title,
		PriceText:    detail.Price,
		ShippingText: detail.Shipping,
		KindHint:     kindFromHint(detail.Kind),
		ThumbURL:     detail.ThumbnailURL,
	}, nil
}

func kindFromHint(hint string) listing.Kind {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "buy_now", "buy-now", "buynow":
		return listing.KindBuyNow
	case "auction", "bidding":
		return listing.KindAuction
	default:
		return listing.KindUnknown
	}
}

func decodeSummaries(body []byte) ([]summaryPayload, error) {
	var wrapped struct {
		Listings []summaryPayload `json:"listings"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Listings != nil {
		return wrapped.Listings, nil
	}

	var bare []summaryPayload
	if err := json.Unmarshal(body, &bare); err != nil {
		return nil, err
	}
	return bare, nil
}

var _ Adapter = (*JSONAdapter)(nil)
