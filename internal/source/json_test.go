package source

import (
	"context"
	"testing"

	"adwatcher/internal/listing"
	"adwatcher/internal/transport"
)

type fakeTransport struct {
	status int
	body   string
	urls   []string
}

func (f *fakeTransport) Get(ctx context.Context, url string) transport.Response {
	f.urls = append(f.urls, url)
	return transport.Response{Status: f.status, Body: []byte(f.body)}
}

func TestJSONAdapterValidation(t *testing.T) {
	if _, err := NewJSONAdapter(JSONOptions{BaseURL: "http://x"}, &fakeTransport{}); err == nil {
		t.Fatal("missing tag must be rejected")
	}
	if _, err := NewJSONAdapter(JSONOptions{Tag: "mp"}, &fakeTransport{}); err == nil {
		t.Fatal("missing base url must be rejected")
	}
	if _, err := NewJSONAdapter(JSONOptions{Tag: "mp", BaseURL: "http://x"}, nil); err == nil {
		t.Fatal("missing transport must be rejected")
	}
}

func TestJSONAdapterDiscover(t *testing.T) {
	tr := &fakeTransport{
		status: 200,
		body: `{"listings":[
			{"listing_id":"m100","url":"http://x/api/listings/m100"},
			{"listing_id":"m200"},
			{"listing_id":"m100","url":"http://x/api/listings/m100"},
			{}
		]}`,
	}
	a, err := NewJSONAdapter(JSONOptions{Tag: "mp", BaseURL: "http://x/", Query: "zx spectrum"}, tr)
	if err != nil {
		t.Fatalf("adapter construction failed: %v", err)
	}

	urls, err := a.Discover(context.Background())
	if err != nil {
		t.Fatalf("discover failed: %v", err)
	}

	want := []string{"http://x/api/listings/m100", "http://x/api/listings/m200"}
	if len(urls) != len(want) {
		t.Fatalf("expected %d urls, got %v", len(want), urls)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Fatalf("url %d: want %s got %s", i, want[i], urls[i])
		}
	}
	if len(tr.urls) != 1 || tr.urls[0] != "http://x/api/search?q=zx+spectrum" {
		t.Fatalf("unexpected search url %v", tr.urls)
	}
}

func TestJSONAdapterDiscoverBareArray(t *testing.T) {
	tr := &fakeTransport{status: 200, body: `[{"listing_id":"e1"}]`}
	a, _ := NewJSONAdapter(JSONOptions{Tag: "ebay", BaseURL: "http://x"}, tr)

	urls, err := a.Discover(context.Background())
	if err != nil {
		t.Fatalf("discover failed: %v", err)
	}
	if len(urls) != 1 || urls[0] != "http://x/api/listings/e1" {
		t.Fatalf("unexpected urls %v", urls)
	}
}

func TestJSONAdapterDiscoverTransportFailure(t *testing.T) {
	a, _ := NewJSONAdapter(JSONOptions{Tag: "mp", BaseURL: "http://x"}, &fakeTransport{status: 0})
	if _, err := a.Discover(context.Background()); err == nil {
		t.Fatal("zero-status search response must surface an error")
	}
}

func TestJSONAdapterExtract(t *testing.T) {
	a, _ := NewJSONAdapter(JSONOptions{Tag: "mp", BaseURL: "http://x"}, &fakeTransport{})

	raw, err := a.Extract("http://x/api/listings/m100", []byte(`{
		"listing": {
			"listing_id": "m100",
			"title": "ZX Spectrum 48K",
			"price": "€ 75,00",
			"shipping": "€ 6,95",
			"kind": "buy_now",
			"thumbnail_url": "http://x/img/m100.jpg"
		}
	}`))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if raw.NativeID != "m100" || raw.Title != "ZX Spectrum 48K" {
		t.Fatalf("unexpected identity %+v", raw)
	}
	if raw.PriceText != "€ 75,00" || raw.ShippingText != "€ 6,95" {
		t.Fatalf("price text not preserved %+v", raw)
	}
	if raw.KindHint != listing.KindBuyNow {
		t.Fatalf("kind hint not mapped, got %s", raw.KindHint)
	}

	raw, err = a.Extract("http://x/api/listings/e1", []byte(`{"listing_id":"e1","title":"Spectrum +2","kind":"auction"}`))
	if err != nil {
		t.Fatalf("bare payload extract failed: %v", err)
	}
	if raw.KindHint != listing.KindAuction {
		t.Fatalf("kind hint not mapped, got %s", raw.KindHint)
	}

	if _, err = a.Extract("http://x/api/listings/bad", []byte(`not json`)); err == nil {
		t.Fatal("invalid payload must error")
	}
	if _, err = a.Extract("http://x/api/listings/empty", []byte(`{}`)); err == nil {
		t.Fatal("payload without identity must error")
	}
}
