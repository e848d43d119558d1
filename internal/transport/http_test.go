package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestHTTPGetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Fatalf("user agent not forwarded, got %q", r.Header.Get("User-Agent"))
		}
		if r.Header.Get("Accept-Language") == "" {
			t.Fatal("accept-language header missing")
		}
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	tr := NewHTTP(Options{Timeout: time.Second, UserAgent: "test-agent", AcceptLanguage: "nl-NL"}, noopLogger())
	resp := tr.Get(context.Background(), srv.URL)

	if !resp.OK() {
		t.Fatalf("expected 2xx, got %d", resp.Status)
	}
	if string(resp.Body) != "<html>ok</html>" {
		t.Fatalf("unexpected body %q", resp.Body)
	}
}

func TestHTTPGetNonOKStatusPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr := NewHTTP(Options{Timeout: time.Second}, noopLogger())
	resp := tr.Get(context.Background(), srv.URL)

	if resp.Status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Status)
	}
	if resp.OK() {
		t.Fatal("429 must not count as OK")
	}
}

func TestHTTPGetFailureIsZeroStatus(t *testing.T) {
	tr := NewHTTP(Options{Timeout: 200 * time.Millisecond}, noopLogger())

	resp := tr.Get(context.Background(), "http://127.0.0.1:1")
	if resp.Status != 0 || len(resp.Body) != 0 {
		t.Fatalf("connection failure must yield zero response, got %+v", resp)
	}

	resp = tr.Get(context.Background(), "://not-a-url")
	if resp.Status != 0 {
		t.Fatalf("bad url must yield zero status, got %d", resp.Status)
	}
}

func TestHTTPGetHonoursContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := NewHTTP(Options{Timeout: 5 * time.Second}, noopLogger())
	resp := tr.Get(ctx, srv.URL)
	if resp.Status != 0 {
		t.Fatalf("cancelled request must yield zero status, got %d", resp.Status)
	}
}
