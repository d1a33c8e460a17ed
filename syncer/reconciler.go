/*
Package syncer reconciles the local store with a remote backup.

PURPOSE:
  Backup pushes local profile, counters and daily statuses to a remote
  store. Restore pulls them back. Both are best effort from the caller's
  point of view: they report a Result and never return raw errors, so the
  UI decides what to surface.

ENTITY GROUPS:
  profile       -> one row per user
  debt_counts   -> one row per (user, category)
  daily_status  -> one row per (user, date, category)

  Logs are local only. Restore writes snapshots, not deltas, so it is the
  one operation allowed to break the counter/log pairing.

BACKUP:
  - No session or no remote: Result{Skipped: true}
  - The local snapshot is read inside one transaction, so the pushed
    watermark always matches the pushed counters.
  - Each group is upserted independently. A failing group stops its own
    remaining rows; the other groups still run.
  - Remote rows are never deleted.
  - Full success stamps the local lastSyncDate with today.

RESTORE:
  - Fetch all three groups first. Any fetch failure aborts before touching
    local data.
  - Apply inside one local transaction: profile replaced, counts and
    statuses upserted. Remote wins on conflict.
  - Applying the same remote state twice leaves local data unchanged.

CONFLICT POLICY:
  Last writer wins per row. No vector clocks, no merge.

SEE ALSO:
  - memory.go: In-memory Remote
  - store/postgres: Postgres Remote
*/
package syncer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kaza-tracker/obligation-engine/debt"
	"github.com/kaza-tracker/obligation-engine/logger"
)

// Group names used in results.
const (
	GroupProfile     = "profile"
	GroupDebtCounts  = "debt_counts"
	GroupDailyStatus = "daily_status"
)

// Remote is a row-oriented backup store scoped by user id.
type Remote interface {
	UpsertProfile(ctx context.Context, userID string, p debt.Profile) error
	UpsertDebtCounts(ctx context.Context, userID string, counts []debt.DebtCount) error
	UpsertDailyStatuses(ctx context.Context, userID string, rows []debt.DailyStatus) error

	// FetchProfile returns nil, nil when the user has no remote profile.
	FetchProfile(ctx context.Context, userID string) (*debt.Profile, error)
	FetchDebtCounts(ctx context.Context, userID string) ([]debt.DebtCount, error)
	FetchDailyStatuses(ctx context.Context, userID string) ([]debt.DailyStatus, error)
}

// Session is an authenticated remote session. A nil *Session means
// local-only mode.
type Session struct {
	UserID string
}

// GroupResult reports one entity group.
type GroupResult struct {
	Name  string `json:"name"`
	Rows  int    `json:"rows"`
	Error string `json:"error,omitempty"`
}

// Result is what Backup and Restore report.
type Result struct {
	Success bool          `json:"success"`
	Skipped bool          `json:"skipped,omitempty"`
	Message string        `json:"message,omitempty"`
	Groups  []GroupResult `json:"groups,omitempty"`
}

func skipped(msg string) Result {
	return Result{Skipped: true, Message: msg}
}

// =============================================================================
// RECONCILER
// =============================================================================

type Reconciler struct {
	local  debt.TxStore
	remote Remote
	clock  debt.Clock
	mu     sync.Mutex
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the wall clock.
func WithClock(c debt.Clock) Option {
	return func(r *Reconciler) { r.clock = c }
}

// NewReconciler builds a reconciler. A nil remote makes every call a skip.
func NewReconciler(local debt.TxStore, remote Remote, opts ...Option) *Reconciler {
	r := &Reconciler{local: local, remote: remote}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enabled reports whether a remote is configured.
func (r *Reconciler) Enabled() bool { return r.remote != nil }

func (r *Reconciler) precheck(session *Session) (Result, bool) {
	if r.remote == nil {
		return skipped("remote backup not configured"), false
	}
	if session == nil || session.UserID == "" {
		return skipped("no remote session"), false
	}
	return Result{}, true
}

// Backup pushes local state to the remote.
func (r *Reconciler) Backup(ctx context.Context, session *Session) Result {
	if res, ok := r.precheck(session); !ok {
		return res
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	userID := session.UserID

	// All three groups come from one transaction so a sweep or toggle cannot
	// land between the watermark read and the counter read.
	var (
		profile  *debt.Profile
		counts   []debt.DebtCount
		statuses []debt.DailyStatus
	)
	err := r.local.WithTx(ctx, func(s debt.Store) error {
		var err error
		if profile, err = s.GetProfile(ctx); err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		if counts, err = s.GetDebtCounts(ctx); err != nil {
			return fmt.Errorf("debt counts: %w", err)
		}
		if statuses, err = s.ListDailyStatus(ctx); err != nil {
			return fmt.Errorf("daily status: %w", err)
		}
		return nil
	})
	if err != nil {
		return failed("read local snapshot", err)
	}

	res := Result{Success: true}
	run := func(name string, rows int, fn func() error) {
		g := GroupResult{Name: name, Rows: rows}
		if err := fn(); err != nil {
			g.Error = err.Error()
			res.Success = false
			logger.Warn("backup group failed", "group", name, "user", userID, "error", err)
		}
		res.Groups = append(res.Groups, g)
	}

	if profile != nil {
		run(GroupProfile, 1, func() error { return r.remote.UpsertProfile(ctx, userID, *profile) })
	} else {
		res.Groups = append(res.Groups, GroupResult{Name: GroupProfile})
	}
	run(GroupDebtCounts, len(counts), func() error { return r.remote.UpsertDebtCounts(ctx, userID, counts) })
	run(GroupDailyStatus, len(statuses), func() error { return r.remote.UpsertDailyStatuses(ctx, userID, statuses) })

	if !res.Success {
		res.Message = summarize("backup", res.Groups)
		return res
	}

	if profile != nil {
		today := r.clock.Today()
		if _, err := r.local.UpsertProfile(ctx, debt.ProfilePatch{LastSyncDate: &today}); err != nil {
			// Remote data is safe; only the local stamp is missing.
			logger.Warn("backup succeeded but lastSyncDate not saved", "error", err)
		}
	}

	res.Message = "backup complete"
	logger.Info("backup complete", "user", userID, "statuses", len(statuses))
	return res
}

// Restore pulls remote state into the local store.
func (r *Reconciler) Restore(ctx context.Context, session *Session) Result {
	if res, ok := r.precheck(session); !ok {
		return res
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	userID := session.UserID
	profile, err := r.remote.FetchProfile(ctx, userID)
	if err != nil {
		return failed("fetch remote profile", err)
	}
	counts, err := r.remote.FetchDebtCounts(ctx, userID)
	if err != nil {
		return failed("fetch remote debt counts", err)
	}
	statuses, err := r.remote.FetchDailyStatuses(ctx, userID)
	if err != nil {
		return failed("fetch remote daily status", err)
	}

	now := r.clock.Now().UTC()
	err = r.local.WithTx(ctx, func(s debt.Store) error {
		if profile != nil {
			p := *profile
			if p.CreatedAt.IsZero() {
				p.CreatedAt = now
			}
			if p.UpdatedAt.IsZero() {
				p.UpdatedAt = now
			}
			if err := s.ReplaceProfile(ctx, p); err != nil {
				return err
			}
		}
		for _, c := range counts {
			if !c.Category.Valid() {
				continue
			}
			if err := s.SetDebtCount(ctx, c); err != nil {
				return err
			}
		}
		for _, row := range statuses {
			if !row.Category.Valid() || !row.Status.Valid() || row.Date.IsZero() {
				continue
			}
			if err := s.PutDailyStatus(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return failed("apply restore", err)
	}

	profileRows := 0
	if profile != nil {
		profileRows = 1
	}
	logger.Info("restore complete", "user", userID, "counts", len(counts), "statuses", len(statuses))
	return Result{
		Success: true,
		Message: "restore complete",
		Groups: []GroupResult{
			{Name: GroupProfile, Rows: profileRows},
			{Name: GroupDebtCounts, Rows: len(counts)},
			{Name: GroupDailyStatus, Rows: len(statuses)},
		},
	}
}

func failed(step string, err error) Result {
	logger.Error("sync failed", "step", step, "error", err)
	return Result{Message: fmt.Sprintf("%s: %v", step, err)}
}

func summarize(op string, groups []GroupResult) string {
	var parts []string
	for _, g := range groups {
		if g.Error != "" {
			parts = append(parts, g.Name+": "+g.Error)
		}
	}
	return fmt.Sprintf("%s failed for %d group(s): %s", op, len(parts), strings.Join(parts, "; "))
}
