package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"adwatcher/internal/listing"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createListingsSQL = `CREATE TABLE IF NOT EXISTS listings (
        key        TEXT PRIMARY KEY,
        source     TEXT NOT NULL,
        title      TEXT NOT NULL DEFAULT '',
        url        TEXT NOT NULL,
        kind       TEXT NOT NULL,
        last_price NUMERIC(12,2),
        last_ship  NUMERIC(12,2),
        last_total NUMERIC(12,2),
        first_seen TIMESTAMPTZ NOT NULL,
        last_seen  TIMESTAMPTZ NOT NULL
    );`

	createHistorySQL = `CREATE TABLE IF NOT EXISTS price_history (
        key     TEXT NOT NULL,
        seen_at TIMESTAMPTZ NOT NULL,
        price   NUMERIC(12,2) NOT NULL
    );`

	createHistoryIndexSQL = `CREATE INDEX IF NOT EXISTS idx_price_history_key_seen_at
    ON price_history (key, seen_at);`

	selectPriorSQL = `SELECT last_total FROM listings WHERE key = $1 FOR UPDATE;`

	insertListingSQL = `INSERT INTO listings (
        key, source, title, url, kind, last_price, last_ship, last_total, first_seen, last_seen
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
    ON CONFLICT (key) DO UPDATE
    SET source     = EXCLUDED.source,
        title      = EXCLUDED.title,
        url        = EXCLUDED.url,
        kind       = EXCLUDED.kind,
        last_price = EXCLUDED.last_price,
        last_ship  = EXCLUDED.last_ship,
        last_total = EXCLUDED.last_total,
        last_seen  = EXCLUDED.last_seen;`

	updateListingSQL = `UPDATE listings
    SET source     = $2,
        title      = $3,
        url        = $4,
        kind       = $5,
        last_price = $6,
        last_ship  = $7,
        last_total = $8,
        last_seen  = $9
    WHERE key = $1;`

	appendHistorySQL = `INSERT INTO price_history (key, seen_at, price) VALUES ($1,$2,$3);`

	recentHistorySQL = `SELECT price FROM price_history
    WHERE key = $1
    ORDER BY seen_at DESC
    LIMIT $2;`

	historyPointsSQL = `SELECT seen_at, price FROM price_history
    WHERE key = $1
    ORDER BY seen_at ASC;`

	listRecentListingsSQL = `SELECT
        key, source, title, url, kind,
        last_price, last_ship, last_total,
        first_seen, last_seen
    FROM listings
    ORDER BY last_seen DESC
    LIMIT $1;`

	getListingSQL = `SELECT
        key, source, title, url, kind,
        last_price, last_ship, last_total,
        first_seen, last_seen
    FROM listings
    WHERE key = $1;`

	countListingsSQL = `SELECT COUNT(*) FROM listings;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ListingStore defines the persistence operations the engine relies on.
type ListingStore interface {
	Upsert(ctx context.Context, rec listing.Record) (isNew bool, priorTotal *decimal.Decimal, err error)
	History(ctx context.Context, key string, limit int) ([]decimal.Decimal, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store persists listing state and the append-only price history.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Init creates the schema when missing. Safe to run on every start.
func (s *Store) Init(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range []string{createListingsSQL, createHistorySQL, createHistoryIndexSQL} {
		if _, execErr := pool.Exec(ctx, stmt); execErr != nil {
			return fmt.Errorf("ensure schema: %w", execErr)
		}
	}
	return nil
}

// Upsert inserts or updates the latest state for a listing and appends one
// price-history entry when the record carries a derivable price. The whole
// read-check-write-append sequence runs in a single transaction with the state
// row locked, so concurrent callers never observe an intermediate state.
func (s *Store) Upsert(ctx context.Context, rec listing.Record) (bool, *decimal.Decimal, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, nil, err
	}

	seenAt := rec.SeenAt
	if seenAt.IsZero() {
		seenAt = time.Now().UTC()
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	var priorRaw sql.NullString
	isNew := false
	scanErr := tx.QueryRow(ctx, selectPriorSQL, rec.Key).Scan(&priorRaw)
	switch {
	case errors.Is(scanErr, pgx.ErrNoRows):
		isNew = true
	case scanErr != nil:
		return false, nil, fmt.Errorf("read prior state: %w", scanErr)
	}

	var prior *decimal.Decimal
	if priorRaw.Valid {
		parsed, parseErr := decimal.NewFromString(priorRaw.String)
		if parseErr != nil {
			return false, nil, fmt.Errorf("parse prior total: %w", parseErr)
		}
		prior = &parsed
	}

	// FOR UPDATE serializes concurrent writers once the row exists; the
	// insert still races on a brand-new key, so it resolves conflicts itself.
	stmt := updateListingSQL
	if isNew {
		stmt = insertListingSQL
	}
	if _, execErr := tx.Exec(ctx, stmt,
		rec.Key,
		rec.Source,
		rec.Title,
		rec.URL,
		string(rec.Kind),
		decimalArg(rec.Price),
		decimalArg(rec.Shipping),
		decimalArg(rec.Total),
		seenAt,
	); execErr != nil {
		return false, nil, fmt.Errorf("write listing state: %w", execErr)
	}

	if price := rec.HistoryPrice(); price != nil {
		if _, execErr := tx.Exec(ctx, appendHistorySQL, rec.Key, seenAt, price.StringFixed(2)); execErr != nil {
			return false, nil, fmt.Errorf("append price history: %w", execErr)
		}
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return false, nil, fmt.Errorf("commit upsert: %w", commitErr)
	}
	return isNew, prior, nil
}

// History returns at most limit most recent prices for a key, oldest first.
func (s *Store) History(ctx context.Context, key string, limit int) ([]decimal.Decimal, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, recentHistorySQL, key, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("query price history: %w", queryErr)
	}
	defer rows.Close()

	prices := make([]decimal.Decimal, 0, limit)
	for rows.Next() {
		var raw string
		if scanErr := rows.Scan(&raw); scanErr != nil {
			return nil, scanErr
		}
		price, parseErr := decimal.NewFromString(raw)
		if parseErr != nil {
			return nil, fmt.Errorf("parse history price: %w", parseErr)
		}
		prices = append(prices, price)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	// The query walks newest-first to honour the limit; flip to chronological.
	for i, j := 0, len(prices)-1; i < j; i, j = i+1, j-1 {
		prices[i], prices[j] = prices[j], prices[i]
	}
	return prices, nil
}

// HistoryPoints returns the full timestamped history for a key, oldest first.
func (s *Store) HistoryPoints(ctx context.Context, key string) ([]listing.PricePoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, historyPointsSQL, key)
	if queryErr != nil {
		return nil, fmt.Errorf("query history points: %w", queryErr)
	}
	defer rows.Close()

	points := make([]listing.PricePoint, 0)
	for rows.Next() {
		var (
			seenAt time.Time
			raw    string
		)
		if scanErr := rows.Scan(&seenAt, &raw); scanErr != nil {
			return nil, scanErr
		}
		price, parseErr := decimal.NewFromString(raw)
		if parseErr != nil {
			return nil, fmt.Errorf("parse history price: %w", parseErr)
		}
		points = append(points, listing.PricePoint{SeenAt: seenAt, Price: price})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return points, nil
}

// ListRecent returns the latest listing states, most recently seen first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]listing.State, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentListingsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent listings: %w", queryErr)
	}
	defer rows.Close()

	states := make([]listing.State, 0, limit)
	for rows.Next() {
		state, scanErr := scanListingState(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		states = append(states, state)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return states, nil
}

// GetState fetches one listing state by key.
func (s *Store) GetState(ctx context.Context, key string) (listing.State, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return listing.State{}, false, err
	}

	rows, queryErr := pool.Query(ctx, getListingSQL, key)
	if queryErr != nil {
		return listing.State{}, false, fmt.Errorf("get listing: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		return listing.State{}, false, rows.Err()
	}
	state, scanErr := scanListingState(rows)
	if scanErr != nil {
		return listing.State{}, false, scanErr
	}
	return state, true, nil
}

// CountListings counts stored listings.
func (s *Store) CountListings(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countListingsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count listings: %w", scanErr)
	}
	return count, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Best effort; releasing the connection drops the lock anyway.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

func decimalArg(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.StringFixed(2)
}

func scanListingState(rows pgx.Rows) (listing.State, error) {
	var (
		state     listing.State
		kind      string
		price     sql.NullString
		ship      sql.NullString
		total     sql.NullString
		firstSeen time.Time
		lastSeen  time.Time
	)

	if err := rows.Scan(
		&state.Key,
		&state.Source,
		&state.Title,
		&state.URL,
		&kind,
		&price,
		&ship,
		&total,
		&firstSeen,
		&lastSeen,
	); err != nil {
		return listing.State{}, err
	}

	state.Kind = listing.Kind(kind)
	state.FirstSeen = firstSeen
	state.LastSeen = lastSeen

	var convErr error
	if state.LastPrice, convErr = nullDecimal(price); convErr != nil {
		return listing.State{}, fmt.Errorf("parse last price: %w", convErr)
	}
	if state.LastShipping, convErr = nullDecimal(ship); convErr != nil {
		return listing.State{}, fmt.Errorf("parse last ship: %w", convErr)
	}
	if state.LastTotal, convErr = nullDecimal(total); convErr != nil {
		return listing.State{}, fmt.Errorf("parse last total: %w", convErr)
	}
	return state, nil
}

func nullDecimal(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

var _ ListingStore = (*Store)(nil)
var _ AdvisoryLocker = (*Store)(nil)
