// Package scan drives one scan cycle: discovery, polite per-candidate
// retrieval, normalization, classification against the store, and trend
// enrichment, all streamed to the caller as events.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"adwatcher/internal/listing"
	"adwatcher/internal/money"
	"adwatcher/internal/source"
	"adwatcher/internal/storage"
	"adwatcher/internal/transport"
	"adwatcher/internal/trend"
)

// ErrCycleRunning rejects a start request while a cycle is in flight. At most
// one cycle runs per Runner; the running cycle is unaffected.
var ErrCycleRunning = errors.New("scan: cycle already running")

// Options tune one Runner. Zero values fall back to safe defaults.
type Options struct {
	PoliteDelay  time.Duration
	RetryBackoff []time.Duration
	HistoryLimit int
	TrendWidth   int
	Reference    string
	Rates        money.RateTable
}

// Runner orchestrates scan cycles over a set of source adapters.
type Runner struct {
	adapters  []source.Adapter
	transport transport.Transport
	store     storage.ListingStore
	opts      Options
	logger    zerolog.Logger
	running   atomic.Bool
}

// New constructs a Runner.
func New(adapters []source.Adapter, tr transport.Transport, store storage.ListingStore, opts Options, logger zerolog.Logger) *Runner {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 32
	}
	if opts.TrendWidth <= 0 {
		opts.TrendWidth = trend.DefaultWidth
	}
	if len(opts.RetryBackoff) == 0 {
		opts.RetryBackoff = []time.Duration{0}
	}
	if opts.Reference == "" {
		opts.Reference = "EUR"
	}
	return &Runner{
		adapters:  adapters,
		transport: tr,
		store:     store,
		opts:      opts,
		logger:    logger.With().Str("component", "scan").Logger(),
	}
}

// Running reports whether a cycle is currently in flight.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Start launches one scan cycle and returns its event stream. The channel is
// closed after the terminal done event. Cancelling ctx aborts the cycle
// cooperatively: the candidate in flight finishes or times out, then no
// further work is scheduled and records already emitted stay valid.
func (r *Runner) Start(ctx context.Context) (<-chan Event, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrCycleRunning
	}

	events := make(chan Event, 32)
	go func() {
		defer close(events)
		defer r.running.Store(false)
		r.run(ctx, events)
	}()
	return events, nil
}

func (r *Runner) run(ctx context.Context, events chan<- Event) {
	soft := 0
	emitted := 0
	start := time.Now()

	done := func(phase Phase, err error) {
		r.logger.Info().
			Str("phase", string(phase)).
			Int("records", emitted).
			Int("soft_failures", soft).
			Dur("elapsed", time.Since(start)).
			Msg("cycle finished")
		events <- Event{Type: EventDone, Phase: phase, SoftFailures: soft, Err: err}
	}

	for _, adapter := range r.adapters {
		if ctx.Err() != nil {
			done(PhaseAborted, ctx.Err())
			return
		}

		candidates, err := adapter.Discover(ctx)
		if err != nil {
			soft++
			r.logger.Warn().Err(err).Str("source", adapter.Tag()).Msg("discovery failed")
			events <- Event{Type: EventError, Message: fmt.Sprintf("%s: discovery failed: %v", adapter.Tag(), err)}
			continue
		}

		events <- Event{
			Type:    EventStatus,
			Message: fmt.Sprintf("%s: %d candidates", adapter.Tag(), len(candidates)),
			Total:   len(candidates),
			Phase:   PhaseDiscovering,
		}

		for i, candidate := range candidates {
			if ctx.Err() != nil {
				done(PhaseAborted, ctx.Err())
				return
			}

			resp := r.fetchWithRetry(ctx, candidate)
			if !resp.OK() {
				soft++
				events <- Event{Type: EventError, Message: fmt.Sprintf("%s: fetch failed (status %d): %s", adapter.Tag(), resp.Status, candidate)}
				if !r.politePause(ctx) {
					done(PhaseAborted, ctx.Err())
					return
				}
				continue
			}

			raw, err := adapter.Extract(candidate, resp.Body)
			if err != nil {
				soft++
				events <- Event{Type: EventError, Message: fmt.Sprintf("%s: extract failed: %v", adapter.Tag(), err)}
				if !r.politePause(ctx) {
					done(PhaseAborted, ctx.Err())
					return
				}
				continue
			}

			rec := r.buildRecord(adapter.Tag(), candidate, raw)

			enriched, err := r.ingest(ctx, rec)
			if err != nil {
				// Persistence is the single source of truth; without it the
				// cycle cannot continue.
				events <- Event{Type: EventError, Message: fmt.Sprintf("persist %s: %v", rec.Key, err)}
				done(PhaseAborted, err)
				return
			}

			emitted++
			events <- Event{Type: EventRecord, Record: enriched}
			events <- Event{
				Type:    EventStatus,
				Message: fmt.Sprintf("%s %d/%d: %s", adapter.Tag(), i+1, len(candidates), rec.Title),
				Current: i + 1,
				Total:   len(candidates),
				Phase:   PhaseFetching,
			}

			if !r.politePause(ctx) {
				done(PhaseAborted, ctx.Err())
				return
			}
		}
	}

	done(PhaseCompleted, nil)
}

// ingest runs the store round-trip for one record and assembles the enriched
// output.
func (r *Runner) ingest(ctx context.Context, rec listing.Record) (*Enriched, error) {
	isNew, prior, err := r.store.Upsert(ctx, rec)
	if err != nil {
		return nil, err
	}

	verdict := listing.Classify(isNew, prior, rec.Total)

	history, err := r.store.History(ctx, rec.Key, r.opts.HistoryLimit)
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(history))
	for i, price := range history {
		values[i] = price.InexactFloat64()
	}

	return &Enriched{
		Record:  rec,
		Verdict: verdict,
		Trend:   trend.Summarize(values, r.opts.TrendWidth),
	}, nil
}

func (r *Runner) buildRecord(tag, candidateURL string, raw source.RawListing) listing.Record {
	price := normalizeOptional(raw.PriceText, r.opts.Reference, r.opts.Rates)
	shipping := normalizeOptional(raw.ShippingText, r.opts.Reference, r.opts.Rates)

	kind := raw.KindHint
	if kind == "" {
		kind = listing.KindUnknown
	}
	if kind == listing.KindUnknown && money.IsBidOnly(raw.PriceText) {
		kind = listing.KindAuction
	}

	nativeID := raw.NativeID
	if nativeID == "" {
		nativeID = listing.FallbackID(candidateURL)
	}

	return listing.Record{
		Key:      listing.MakeKey(tag, nativeID),
		Source:   tag,
		Title:    raw.Title,
		URL:      candidateURL,
		Kind:     kind,
		Price:    price,
		Shipping: shipping,
		Total:    listing.SumTotal(price, shipping),
		SeenAt:   time.Now().UTC(),
		ThumbURL: raw.ThumbURL,
	}
}

// fetchWithRetry walks the backoff schedule until a 2xx response or the
// budget is exhausted. A cancelled context short-circuits with the last
// (failed) response.
func (r *Runner) fetchWithRetry(ctx context.Context, url string) transport.Response {
	var resp transport.Response
	for _, backoff := range r.opts.RetryBackoff {
		if ctx.Err() != nil {
			return resp
		}
		if backoff > 0 && !sleepCtx(ctx, backoff) {
			return resp
		}
		resp = r.transport.Get(ctx, url)
		if resp.OK() {
			return resp
		}
	}
	return resp
}

// politePause applies the inter-candidate delay; false means ctx expired.
func (r *Runner) politePause(ctx context.Context) bool {
	if r.opts.PoliteDelay <= 0 {
		return ctx.Err() == nil
	}
	return sleepCtx(ctx, r.opts.PoliteDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func normalizeOptional(text, reference string, rates money.RateTable) *decimal.Decimal {
	amount, ok := money.Normalize(text, reference, rates)
	if !ok {
		return nil
	}
	return &amount
}
