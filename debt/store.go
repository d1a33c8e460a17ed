/*
store.go - Persistence contract for the four debt entities

PURPOSE:
  Defines the interface between the ledger engine and the database.
  Implementations: store/sqlite (local, durable) and debt/store (memory).

KEY INTERFACES:
  Store:   Typed CRUD-level primitives over profile, debt_counts,
           daily_status and logs
  TxStore: Store + Initialize (schema, migration, seed) + WithTx

WRITE DISCIPLINE:
  Only the ledger calls IncrementDebt and AppendLog, and always inside
  WithTx so the counter and its log row commit together. SetDebtCount and
  ReplaceProfile exist for restore, which writes snapshots, not deltas.

SEED INVARIANT:
  After Initialize (and after ResetAll) exactly one debt_counts row exists
  per category in AllCategories, seeded at 0. Seeding is atomic.

SEE ALSO:
  - ledger.go: The only writer of counters and logs
  - store/sqlite/sqlite.go: SQLite implementation
  - debt/store/memory.go: In-memory implementation
*/
package debt

import "context"

// Store exposes typed read/write primitives.
type Store interface {
	// GetProfile returns nil, nil when no profile exists.
	GetProfile(ctx context.Context) (*Profile, error)
	// UpsertProfile merges the patch, creating the profile if needed.
	UpsertProfile(ctx context.Context, patch ProfilePatch) (*Profile, error)
	// ReplaceProfile writes every field as given (restore path).
	ReplaceProfile(ctx context.Context, p Profile) error

	// GetDebtCounts returns one row per seeded category, in AllCategories order.
	GetDebtCounts(ctx context.Context) ([]DebtCount, error)
	// IncrementDebt adds delta to a category. ErrNotInitialized if the row is missing.
	IncrementDebt(ctx context.Context, category Category, delta int) error
	// SetDebtCount upserts an absolute value (restore path).
	SetDebtCount(ctx context.Context, c DebtCount) error

	// GetDailyStatus returns nil, nil when the pair has no record (pending).
	GetDailyStatus(ctx context.Context, date Date, category Category) (*DailyStatus, error)
	// GetDailyStatusRange returns records with start <= date <= end.
	GetDailyStatusRange(ctx context.Context, start, end Date) ([]DailyStatus, error)
	// ListDailyStatus returns every record (backup path).
	ListDailyStatus(ctx context.Context) ([]DailyStatus, error)
	// PutDailyStatus inserts or replaces on (date, category).
	PutDailyStatus(ctx context.Context, s DailyStatus) error
	// DeleteDailyStatus removes the record if present.
	DeleteDailyStatus(ctx context.Context, date Date, category Category) error

	// AppendLog adds an audit row. Append-only.
	AppendLog(ctx context.Context, entry LogEntry) error
	// ListLogs returns newest first.
	ListLogs(ctx context.Context, filter LogFilter) ([]LogEntry, error)
	// LogTotals sums Amount per category.
	LogTotals(ctx context.Context) (map[Category]int, error)

	// ResetAll wipes counts, statuses and logs (and the profile if asked),
	// then re-seeds the counts at 0.
	ResetAll(ctx context.Context, includeProfile bool) error
}

// TxStore wraps Store with lifecycle and transaction support.
type TxStore interface {
	Store

	// Initialize is idempotent: schema, additive column migration, and the
	// 7-category seed. Must run before any other call.
	Initialize(ctx context.Context) error

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
