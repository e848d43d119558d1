package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"adwatcher/internal/config"
	"adwatcher/internal/money"
	"adwatcher/internal/publish"
	"adwatcher/internal/scan"
	"adwatcher/internal/scheduler"
	"adwatcher/internal/source"
	"adwatcher/internal/storage"
	"adwatcher/internal/transport"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newTransport() transport.Transport {
	return transport.NewHTTP(transport.Options{
		Timeout:        a.Config.Fetch.RequestTimeout,
		UserAgent:      a.Config.Fetch.UserAgent,
		AcceptLanguage: a.Config.Fetch.AcceptLanguage,
	}, a.Logger)
}

func (a *App) newAdapters(tr transport.Transport) ([]source.Adapter, error) {
	adapters := make([]source.Adapter, 0, len(a.Config.Sources))
	for _, src := range a.Config.Sources {
		adapter, err := source.NewJSONAdapter(source.JSONOptions{
			Tag:     src.Tag,
			BaseURL: src.BaseURL,
			Query:   src.Query,
		}, tr)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Tag, err)
		}
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}

func (a *App) newPublisher() (*publish.RabbitMQ, error) {
	if !a.Config.Publisher.Enabled {
		return nil, nil
	}
	cfg := a.Config.Publisher
	return publish.NewRabbitMQ(publish.Config{
		URL:        cfg.URL,
		Exchange:   cfg.Exchange,
		RoutingKey: cfg.RoutingKey,
		Queue:      cfg.Queue,
	}, a.Logger)
}

func (a *App) newRunner(store *storage.Store) (*scan.Runner, error) {
	tr := a.newTransport()
	adapters, err := a.newAdapters(tr)
	if err != nil {
		return nil, err
	}
	if len(adapters) == 0 {
		return nil, errors.New("no sources configured")
	}

	return scan.New(adapters, tr, store, scan.Options{
		PoliteDelay:  a.Config.Fetch.PoliteDelay,
		RetryBackoff: a.Config.Fetch.RetryBackoff,
		HistoryLimit: a.Config.History.Limit,
		TrendWidth:   a.Config.History.TrendWidth,
		Reference:    a.Config.Currency.Reference,
		Rates:        money.NewRateTable(a.Config.Currency.Rates),
	}, a.Logger), nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) openStoreRequired(ctx context.Context) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("database.dsn not configured")
	}
	return store, closeStore, nil
}

// Run executes the long-running watch service: scheduled scan cycles guarded
// by an advisory lock so overlapping deployments do not double-scan.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStoreRequired(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Init(ctx); err != nil {
		return err
	}

	runner, err := a.newRunner(store)
	if err != nil {
		return err
	}

	publisher, err := a.newPublisher()
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToInterval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	a.Logger.Info().Msg("starting watch service")
	err = sched.Run(ctx, func(tickCtx context.Context, startedAt time.Time) error {
		unlock, acquired, lockErr := store.TryAdvisoryLock(tickCtx, a.Config.Scheduler.AdvisoryLockKey)
		if lockErr != nil {
			return lockErr
		}
		if !acquired {
			a.Logger.Info().Time("started_at", startedAt).Msg("another instance holds the scan lock; skipping")
			return nil
		}
		defer unlock()

		return a.runCycle(tickCtx, runner, publisher)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watch service terminated with error")
		return err
	}

	a.Logger.Info().Msg("watch service stopped")
	return nil
}

// Scan runs a single scan cycle in the foreground and prints what it finds.
func (a *App) Scan(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStoreRequired(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Init(ctx); err != nil {
		return err
	}

	runner, err := a.newRunner(store)
	if err != nil {
		return err
	}

	publisher, err := a.newPublisher()
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
	}

	return a.runCycle(ctx, runner, publisher)
}

func (a *App) runCycle(ctx context.Context, runner *scan.Runner, publisher *publish.RabbitMQ) error {
	events, err := runner.Start(ctx)
	if err != nil {
		return err
	}

	for ev := range events {
		switch ev.Type {
		case scan.EventStatus:
			a.Logger.Info().
				Int("current", ev.Current).
				Int("total", ev.Total).
				Msg(ev.Message)
		case scan.EventError:
			a.Logger.Warn().Msg(ev.Message)
		case scan.EventRecord:
			rec := ev.Record
			a.Logger.Info().
				Str("key", rec.Record.Key).
				Str("verdict", string(rec.Verdict)).
				Str("title", rec.Record.Title).
				Str("total", formatOptional(rec.Record.Total)).
				Str("trend", rec.Trend).
				Msg("listing observed")
			if publisher != nil {
				if pubErr := publisher.Publish(ctx, rec); pubErr != nil {
					a.Logger.Warn().Err(pubErr).Str("key", rec.Record.Key).Msg("publish failed")
				}
			}
		case scan.EventDone:
			if ev.Phase == scan.PhaseAborted {
				if ev.Err != nil {
					return fmt.Errorf("scan aborted: %w", ev.Err)
				}
				return errors.New("scan aborted")
			}
			a.Logger.Info().Int("soft_failures", ev.SoftFailures).Msg("scan completed")
		}
	}
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Key string
}

// ExportOptions hold parameters for exporting listing data.
type ExportOptions struct {
	CSVPath   string
	PNGPath   string
	Key       string
	MaxPoints int
}
