//go:build integration

package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"adwatcher/internal/listing"
)

type StoreIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	pool      *pgxpool.Pool
	store     *Store
}

func (s *StoreIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	pool, err := pgxpool.New(s.ctx, connStr)
	s.Require().NoError(err)
	s.pool = pool

	s.store = NewStore(pool)
	s.Require().NoError(s.store.Init(s.ctx))
}

func (s *StoreIntegrationSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *StoreIntegrationSuite) SetupTest() {
	_, _ = s.pool.Exec(s.ctx, "DELETE FROM price_history")
	_, _ = s.pool.Exec(s.ctx, "DELETE FROM listings")
}

func TestStoreIntegrationSuite(t *testing.T) {
	suite.Run(t, new(StoreIntegrationSuite))
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

func record(key string, total string, seenAt time.Time) listing.Record {
	t := decimal.RequireFromString(total)
	return listing.Record{
		Key:    key,
		Source: "mp",
		Title:  "ZX Spectrum 48K",
		URL:    "http://x/" + key,
		Kind:   listing.KindBuyNow,
		Price:  ptr(t),
		Total:  ptr(t),
		SeenAt: seenAt,
	}
}

func (s *StoreIntegrationSuite) TestUpsertFirstObservation() {
	now := time.Now().UTC().Truncate(time.Microsecond)

	isNew, prior, err := s.store.Upsert(s.ctx, record("mp:m1", "100.00", now))
	s.NoError(err)
	s.True(isNew)
	s.Nil(prior)

	state, found, err := s.store.GetState(s.ctx, "mp:m1")
	s.NoError(err)
	s.True(found)
	s.Equal("mp:m1", state.Key)
	s.Require().NotNil(state.LastTotal)
	s.True(state.LastTotal.Equal(decimal.RequireFromString("100.00")))
	s.WithinDuration(now, state.FirstSeen, time.Second)
	s.WithinDuration(now, state.LastSeen, time.Second)

	history, err := s.store.History(s.ctx, "mp:m1", 32)
	s.NoError(err)
	s.Require().Len(history, 1)
	s.True(history[0].Equal(decimal.RequireFromString("100.00")))
}

func (s *StoreIntegrationSuite) TestUpsertSecondObservation() {
	first := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	second := time.Now().UTC().Truncate(time.Microsecond)

	_, _, err := s.store.Upsert(s.ctx, record("mp:m1", "150.00", first))
	s.Require().NoError(err)

	isNew, prior, err := s.store.Upsert(s.ctx, record("mp:m1", "130.00", second))
	s.NoError(err)
	s.False(isNew)
	s.Require().NotNil(prior)
	s.True(prior.Equal(decimal.RequireFromString("150.00")))

	state, found, err := s.store.GetState(s.ctx, "mp:m1")
	s.NoError(err)
	s.True(found)
	s.WithinDuration(first, state.FirstSeen, time.Second)
	s.WithinDuration(second, state.LastSeen, time.Second)
	s.True(state.LastTotal.Equal(decimal.RequireFromString("130.00")))
}

func (s *StoreIntegrationSuite) TestPricelessObservationSkipsHistory() {
	now := time.Now().UTC().Truncate(time.Microsecond)

	rec := listing.Record{
		Key:    "mp:m1",
		Source: "mp",
		Title:  "Spectrum lot",
		URL:    "http://x/mp:m1",
		Kind:   listing.KindAuction,
		SeenAt: now,
	}
	isNew, prior, err := s.store.Upsert(s.ctx, rec)
	s.NoError(err)
	s.True(isNew)
	s.Nil(prior)

	history, err := s.store.History(s.ctx, "mp:m1", 32)
	s.NoError(err)
	s.Empty(history)

	state, found, err := s.store.GetState(s.ctx, "mp:m1")
	s.NoError(err)
	s.True(found)
	s.Nil(state.LastTotal)
}

func (s *StoreIntegrationSuite) TestHistoryChronologicalAndBounded() {
	base := time.Now().UTC().Add(-10 * time.Hour).Truncate(time.Microsecond)

	prices := []string{"100.00", "90.00", "95.00", "85.00", "80.00"}
	for i, p := range prices {
		_, _, err := s.store.Upsert(s.ctx, record("mp:m1", p, base.Add(time.Duration(i)*time.Hour)))
		s.Require().NoError(err)
	}

	history, err := s.store.History(s.ctx, "mp:m1", 3)
	s.NoError(err)
	s.Require().Len(history, 3)
	s.True(history[0].Equal(decimal.RequireFromString("95.00")))
	s.True(history[1].Equal(decimal.RequireFromString("85.00")))
	s.True(history[2].Equal(decimal.RequireFromString("80.00")))

	points, err := s.store.HistoryPoints(s.ctx, "mp:m1")
	s.NoError(err)
	s.Require().Len(points, len(prices))
	for i := 1; i < len(points); i++ {
		s.False(points[i].SeenAt.Before(points[i-1].SeenAt))
	}
}

func (s *StoreIntegrationSuite) TestConcurrentUpsertsSameKey() {
	base := time.Now().UTC().Truncate(time.Microsecond)

	var wg sync.WaitGroup
	const workers = 8
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := s.store.Upsert(s.ctx, record("mp:m1", "100.00", base.Add(time.Duration(i)*time.Millisecond)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	count, err := s.store.CountListings(s.ctx)
	s.NoError(err)
	s.Equal(int64(1), count)

	history, err := s.store.History(s.ctx, "mp:m1", 32)
	s.NoError(err)
	s.Len(history, workers)
}

func (s *StoreIntegrationSuite) TestConcurrentUpsertsDistinctKeys() {
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)

	keys := []string{"mp:a", "mp:b", "mp:c", "mp:d"}
	const observations = 5

	var wg sync.WaitGroup
	errs := make(chan error, len(keys)*observations)
	for w, key := range keys {
		wg.Add(1)
		go func(w int, key string) {
			defer wg.Done()
			for i := 0; i < observations; i++ {
				price := decimal.NewFromInt(int64(100*(w+1) + i)).StringFixed(2)
				_, _, err := s.store.Upsert(s.ctx, record(key, price, base.Add(time.Duration(i)*time.Minute)))
				errs <- err
			}
		}(w, key)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	for w, key := range keys {
		history, err := s.store.History(s.ctx, key, 32)
		s.NoError(err)
		s.Require().Len(history, observations, "history for %s must hold only its own entries", key)
		for i, price := range history {
			want := decimal.NewFromInt(int64(100*(w+1) + i))
			s.True(price.Equal(want), "history for %s out of order at %d: want %s got %s", key, i, want, price)
		}
	}
}

func (s *StoreIntegrationSuite) TestListRecentOrdersByLastSeen() {
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, _, err := s.store.Upsert(s.ctx, record("mp:old", "50.00", now.Add(-2*time.Hour)))
	s.Require().NoError(err)
	_, _, err = s.store.Upsert(s.ctx, record("mp:new", "60.00", now))
	s.Require().NoError(err)

	states, err := s.store.ListRecent(s.ctx, 10)
	s.NoError(err)
	s.Require().Len(states, 2)
	s.Equal("mp:new", states[0].Key)
	s.Equal("mp:old", states[1].Key)
}

func (s *StoreIntegrationSuite) TestAdvisoryLockExcludes() {
	unlock, acquired, err := s.store.TryAdvisoryLock(s.ctx, 42)
	s.NoError(err)
	s.True(acquired)

	_, again, err := s.store.TryAdvisoryLock(s.ctx, 42)
	s.NoError(err)
	s.False(again)

	unlock()

	unlock2, acquired, err := s.store.TryAdvisoryLock(s.ctx, 42)
	s.NoError(err)
	s.True(acquired)
	unlock2()
}
