package transport

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultTimeout = 20 * time.Second

// Options parameterise the HTTP transport.
type Options struct {
	Timeout        time.Duration
	UserAgent      string
	AcceptLanguage string
}

// HTTP is the production Transport backed by net/http.
type HTTP struct {
	client *http.Client
	opts   Options
	logger zerolog.Logger
}

// NewHTTP constructs an HTTP transport with a bounded per-request timeout.
func NewHTTP(opts Options, logger zerolog.Logger) *HTTP {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTP{
		client: &http.Client{Timeout: timeout},
		opts:   opts,
		logger: logger.With().Str("component", "transport").Logger(),
	}
}

// Get retrieves a URL. Connection errors, timeouts, and body read failures all
// collapse into a zero-status Response.
func (h *HTTP) Get(ctx context.Context, url string) Response {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		h.logger.Debug().Err(err).Str("url", url).Msg("build request failed")
		return Response{}
	}

	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if lang := strings.TrimSpace(h.opts.AcceptLanguage); lang != "" {
		req.Header.Set("Accept-Language", lang)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Debug().Err(err).Str("url", url).Msg("request failed")
		return Response{}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.logger.Debug().Err(err).Str("url", url).Msg("read body failed")
		return Response{}
	}

	return Response{Status: resp.StatusCode, Body: body}
}

var _ Transport = (*HTTP)(nil)
