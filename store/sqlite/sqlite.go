/*
Package sqlite provides the SQLite-backed debt.TxStore.

PURPOSE:
  Durable local storage for the four debt entities. This is the store the
  server runs on; the in-memory store in debt/store is for tests and
  ephemeral runs.

KEY TABLES:
  profile:      Single row (id = 1), dates the debt is derived from
  debt_counts:  One signed counter per category, seeded at 0
  daily_status: Explicit per-day records, unique on (date, category)
  logs:         Append-only audit of every counter change

DATE ENCODING:
  Calendar dates are TEXT "YYYY-MM-DD", '' when unset. Timestamps are
  TEXT RFC3339 in UTC.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single database connection.
  WithTx holds the write lock for the whole callback, so the transactional
  view never locks again.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/obligations.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  if err := store.Initialize(ctx); err != nil {
      log.Fatal(err)
  }
  ledger := debt.NewLedger(store)

MIGRATION:
  See migrate.go. Tables are created if missing, then optional columns are
  added in place. Nothing is ever dropped or rebuilt.

SEE ALSO:
  - debt/store.go: Interface definitions
  - debt/ledger.go: The only writer of counters and logs
  - debt/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kaza-tracker/obligation-engine/debt"
)

// Store implements debt.TxStore using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per connection, and the
	// mutex already serializes writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Initialize runs the schema migration and seeds the 7 counters at 0.
// Safe to call on every startup.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return s.inTx(ctx, func(o *ops) error {
		return o.seed(ctx)
	})
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store debt.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(o *ops) error { return fn(o) })
}

// inTx assumes the caller holds the write lock.
func (s *Store) inTx(ctx context.Context, fn func(*ops) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&ops{q: sqlTx, now: s.now}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) direct() *ops {
	return &ops{q: s.db, now: s.now}
}

// =============================================================================
// LOCKED ACCESSORS (debt.Store)
// =============================================================================

func (s *Store) GetProfile(ctx context.Context) (*debt.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.direct().GetProfile(ctx)
}

func (s *Store) UpsertProfile(ctx context.Context, patch debt.ProfilePatch) (*debt.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var p *debt.Profile
	err := s.inTx(ctx, func(o *ops) error {
		var err error
		p, err = o.UpsertProfile(ctx, patch)
		return err
	})
	return p, err
}

func (s *Store) ReplaceProfile(ctx context.Context, p debt.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct().ReplaceProfile(ctx, p)
}

func (s *Store) GetDebtCounts(ctx context.Context) ([]debt.DebtCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.direct().GetDebtCounts(ctx)
}

func (s *Store) IncrementDebt(ctx context.Context, category debt.Category, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct().IncrementDebt(ctx, category, delta)
}

func (s *Store) SetDebtCount(ctx context.Context, c debt.DebtCount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct().SetDebtCount(ctx, c)
}

func (s *Store) GetDailyStatus(ctx context.Context, date debt.Date, category debt.Category) (*debt.DailyStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.direct().GetDailyStatus(ctx, date, category)
}

func (s *Store) GetDailyStatusRange(ctx context.Context, start, end debt.Date) ([]debt.DailyStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.direct().GetDailyStatusRange(ctx, start, end)
}

func (s *Store) ListDailyStatus(ctx context.Context) ([]debt.DailyStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.direct().ListDailyStatus(ctx)
}

func (s *Store) PutDailyStatus(ctx context.Context, row debt.DailyStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct().PutDailyStatus(ctx, row)
}

func (s *Store) DeleteDailyStatus(ctx context.Context, date debt.Date, category debt.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct().DeleteDailyStatus(ctx, date, category)
}

func (s *Store) AppendLog(ctx context.Context, entry debt.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct().AppendLog(ctx, entry)
}

func (s *Store) ListLogs(ctx context.Context, filter debt.LogFilter) ([]debt.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.direct().ListLogs(ctx, filter)
}

func (s *Store) LogTotals(ctx context.Context) (map[debt.Category]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.direct().LogTotals(ctx)
}

// ResetAll clears data and re-seeds in one transaction.
func (s *Store) ResetAll(ctx context.Context, includeProfile bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(o *ops) error {
		return o.ResetAll(ctx, includeProfile)
	})
}

// =============================================================================
// OPERATIONS - Shared by the locked Store and the transactional view
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ops runs statements against a *sql.DB or a *sql.Tx. Never locks.
type ops struct {
	q   querier
	now func() time.Time
}

func (o *ops) stamp() string {
	return o.now().UTC().Format(time.RFC3339)
}

func (o *ops) seed(ctx context.Context) error {
	ts := o.stamp()
	for _, c := range debt.AllCategories {
		if _, err := o.q.ExecContext(ctx,
			`INSERT OR IGNORE INTO debt_counts (category, count, updated_at) VALUES (?, 0, ?)`,
			c, ts,
		); err != nil {
			return fmt.Errorf("failed to seed debt count %s: %w", c, err)
		}
	}
	return nil
}

// --- Profile ---

const profileColumns = `gender, birth_date, majority_date, prayer_tracking_start_date,
	fasting_tracking_start_date, last_sync_date, last_processed_date, created_at, updated_at`

func (o *ops) GetProfile(ctx context.Context) (*debt.Profile, error) {
	var (
		p                                          debt.Profile
		gender                                     string
		birth, majority, prayerStart, fastingStart string
		lastSync, lastProcessed                    string
		createdAt, updatedAt                       string
	)
	err := o.q.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profile WHERE id = 1`).Scan(
		&gender, &birth, &majority, &prayerStart, &fastingStart,
		&lastSync, &lastProcessed, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	p.Gender = debt.Gender(gender)
	dates := []struct {
		raw string
		dst *debt.Date
	}{
		{birth, &p.BirthDate},
		{majority, &p.MajorityDate},
		{prayerStart, &p.PrayerTrackingStartDate},
		{fastingStart, &p.FastingTrackingStartDate},
		{lastSync, &p.LastSyncDate},
		{lastProcessed, &p.LastProcessedDate},
	}
	for _, d := range dates {
		parsed, err := debt.ParseDate(d.raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
		*d.dst = parsed
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func (o *ops) UpsertProfile(ctx context.Context, patch debt.ProfilePatch) (*debt.Profile, error) {
	p, err := o.GetProfile(ctx)
	if err != nil {
		return nil, err
	}
	now := o.now().UTC().Truncate(time.Second)
	if p == nil {
		p = &debt.Profile{CreatedAt: now}
	}
	patch.Apply(p)
	p.UpdatedAt = now

	if err := o.ReplaceProfile(ctx, *p); err != nil {
		return nil, err
	}
	return p, nil
}

func (o *ops) ReplaceProfile(ctx context.Context, p debt.Profile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = o.now()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = o.now()
	}
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO profile (id, `+profileColumns+`)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			gender = excluded.gender,
			birth_date = excluded.birth_date,
			majority_date = excluded.majority_date,
			prayer_tracking_start_date = excluded.prayer_tracking_start_date,
			fasting_tracking_start_date = excluded.fasting_tracking_start_date,
			last_sync_date = excluded.last_sync_date,
			last_processed_date = excluded.last_processed_date,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`,
		string(p.Gender),
		p.BirthDate.String(),
		p.MajorityDate.String(),
		p.PrayerTrackingStartDate.String(),
		p.FastingTrackingStartDate.String(),
		p.LastSyncDate.String(),
		p.LastProcessedDate.String(),
		p.CreatedAt.UTC().Format(time.RFC3339),
		p.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// --- Debt counts ---

func (o *ops) GetDebtCounts(ctx context.Context) ([]debt.DebtCount, error) {
	rows, err := o.q.QueryContext(ctx, `SELECT category, count, updated_at FROM debt_counts`)
	if err != nil {
		return nil, fmt.Errorf("failed to query debt counts: %w", err)
	}
	defer rows.Close()

	byCategory := make(map[debt.Category]debt.DebtCount)
	for rows.Next() {
		var (
			c         debt.DebtCount
			category  string
			updatedAt string
		)
		if err := rows.Scan(&category, &c.Count, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan debt count: %w", err)
		}
		c.Category = debt.Category(category)
		c.UpdatedAt = parseTime(updatedAt)
		byCategory[c.Category] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]debt.DebtCount, 0, len(byCategory))
	for _, c := range debt.AllCategories {
		if row, ok := byCategory[c]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (o *ops) IncrementDebt(ctx context.Context, category debt.Category, delta int) error {
	res, err := o.q.ExecContext(ctx,
		`UPDATE debt_counts SET count = count + ?, updated_at = ? WHERE category = ?`,
		delta, o.stamp(), string(category),
	)
	if err != nil {
		return fmt.Errorf("failed to increment %s: %w", category, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to increment %s: %w", category, err)
	}
	if n == 0 {
		return debt.ErrNotInitialized
	}
	return nil
}

func (o *ops) SetDebtCount(ctx context.Context, c debt.DebtCount) error {
	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = o.now()
	}
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO debt_counts (category, count, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(category) DO UPDATE SET count = excluded.count, updated_at = excluded.updated_at
	`, string(c.Category), c.Count, updated.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to set debt count %s: %w", c.Category, err)
	}
	return nil
}

// --- Daily status ---

const statusColumns = `date, category, status, note, updated_at`

func (o *ops) GetDailyStatus(ctx context.Context, date debt.Date, category debt.Category) (*debt.DailyStatus, error) {
	rows, err := o.queryStatuses(ctx,
		`SELECT `+statusColumns+` FROM daily_status WHERE date = ? AND category = ?`,
		date.String(), string(category),
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (o *ops) GetDailyStatusRange(ctx context.Context, start, end debt.Date) ([]debt.DailyStatus, error) {
	return o.queryStatuses(ctx,
		`SELECT `+statusColumns+` FROM daily_status WHERE date >= ? AND date <= ? ORDER BY date, category`,
		start.String(), end.String(),
	)
}

func (o *ops) ListDailyStatus(ctx context.Context) ([]debt.DailyStatus, error) {
	return o.queryStatuses(ctx, `SELECT `+statusColumns+` FROM daily_status ORDER BY date, category`)
}

func (o *ops) queryStatuses(ctx context.Context, query string, args ...any) ([]debt.DailyStatus, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily status: %w", err)
	}
	defer rows.Close()

	var out []debt.DailyStatus
	for rows.Next() {
		var s debt.DailyStatus
		var date, category, status, updatedAt string
		if err := rows.Scan(&date, &category, &status, &s.Note, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan daily status: %w", err)
		}
		if s.Date, err = debt.ParseDate(date); err != nil {
			return nil, fmt.Errorf("failed to decode daily status: %w", err)
		}
		s.Category = debt.Category(category)
		s.Status = debt.Status(status)
		s.UpdatedAt = parseTime(updatedAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (o *ops) PutDailyStatus(ctx context.Context, row debt.DailyStatus) error {
	updated := row.UpdatedAt
	if updated.IsZero() {
		updated = o.now()
	}
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO daily_status (`+statusColumns+`) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date, category) DO UPDATE SET
			status = excluded.status,
			note = excluded.note,
			updated_at = excluded.updated_at
	`, row.Date.String(), string(row.Category), string(row.Status), row.Note, updated.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save daily status: %w", err)
	}
	return nil
}

func (o *ops) DeleteDailyStatus(ctx context.Context, date debt.Date, category debt.Category) error {
	_, err := o.q.ExecContext(ctx,
		`DELETE FROM daily_status WHERE date = ? AND category = ?`,
		date.String(), string(category),
	)
	if err != nil {
		return fmt.Errorf("failed to delete daily status: %w", err)
	}
	return nil
}

// --- Logs ---

func (o *ops) AppendLog(ctx context.Context, entry debt.LogEntry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = o.now()
	}
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO logs (id, category, amount, reason, effective_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		string(entry.Category),
		entry.Amount,
		string(entry.Reason),
		entry.EffectiveDate.String(),
		ts.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

func (o *ops) ListLogs(ctx context.Context, filter debt.LogFilter) ([]debt.LogEntry, error) {
	query := `SELECT id, category, amount, reason, effective_date, created_at FROM logs`
	var args []any
	if filter.Category != nil {
		query += ` WHERE category = ?`
		args = append(args, string(*filter.Category))
	}
	query += ` ORDER BY rowid DESC`
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var out []debt.LogEntry
	for rows.Next() {
		var e debt.LogEntry
		var category, reason, effective, createdAt string
		if err := rows.Scan(&e.ID, &category, &e.Amount, &reason, &effective, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		e.Category = debt.Category(category)
		e.Reason = debt.LogReason(reason)
		if e.EffectiveDate, err = debt.ParseDate(effective); err != nil {
			return nil, fmt.Errorf("failed to decode log: %w", err)
		}
		e.Timestamp = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (o *ops) LogTotals(ctx context.Context) (map[debt.Category]int, error) {
	rows, err := o.q.QueryContext(ctx, `SELECT category, COALESCE(SUM(amount), 0) FROM logs GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to sum logs: %w", err)
	}
	defer rows.Close()

	out := make(map[debt.Category]int)
	for rows.Next() {
		var (
			category string
			sum      int
		)
		if err := rows.Scan(&category, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan log sum: %w", err)
		}
		out[debt.Category(category)] = sum
	}
	return out, rows.Err()
}

// --- Reset ---

func (o *ops) ResetAll(ctx context.Context, includeProfile bool) error {
	tables := []string{"logs", "daily_status", "debt_counts"}
	if includeProfile {
		tables = append(tables, "profile")
	}
	for _, table := range tables {
		if _, err := o.q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return o.seed(ctx)
}

// =============================================================================
// HELPERS
// =============================================================================

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
