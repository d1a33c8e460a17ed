/*
handlers.go - HTTP API handlers for the obligation debt tracker

PURPOSE:
  Exposes the debt ledger via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the debt and syncer packages.

ENDPOINTS:
  Profile:
    POST   /api/onboarding                      Onboard and seed initial debt
    GET    /api/profile                         Current profile
    PUT    /api/profile                         Partial profile edit

  Debt:
    GET    /api/debt                            Raw and display totals
    GET    /api/debt/counts                     Per-category counters

  Calendar:
    GET    /api/calendar?start=&end=            Recorded statuses in range
    GET    /api/calendar/{date}/{category}      One status (404 = pending)
    PUT    /api/calendar/{date}/{category}      Toggle status

  Adjustments (quick kaza entry):
    POST   /api/adjustments                     Open a session
    GET    /api/adjustments/{id}                Pending buffer
    DELETE /api/adjustments/{id}                Discard
    POST   /api/adjustments/{id}/entries        Buffer one +/- tap
    POST   /api/adjustments/{id}/commit         Apply the buffer

  Maintenance:
    POST   /api/sweep                           Catch-up sweep (app foreground)
    GET    /api/logs?category=&limit=&offset=   Audit log, newest first
    GET    /api/audit                           Counter vs. log consistency
    POST   /api/reset                           Wipe local data

  Sync:
    POST   /api/sync/backup                     Push local state to remote
    POST   /api/sync/restore                    Pull remote state

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Ledger: the only writer of counters and logs
  - Store: read-only queries that need no ledger logic
  - Reconciler: remote backup/restore (may be disabled)
  - sessions: open adjustment sessions by id

REQUEST FLOW:
  1. Parse HTTP request
  2. Call domain logic (ledger, reconciler)
  3. Auto backup after a successful mutation, when enabled
  4. Serialize response

ERROR HANDLING:
  Domain errors are mapped by writeDomainError:
  - 400: Validation errors, unknown category/status, bad dates
  - 404: No profile yet
  - 409: Already onboarded, session already committed
  - 500: Storage errors
  Sync endpoints answer 200 when the sync succeeded or was skipped, and 502
  when the remote failed. The body is always the syncer.Result.

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Bearer token -> sync session
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kaza-tracker/obligation-engine/debt"
	"github.com/kaza-tracker/obligation-engine/logger"
	"github.com/kaza-tracker/obligation-engine/syncer"
)

const (
	defaultLogLimit     = 100
	defaultCalendarSpan = 30
	sessionTTL          = 24 * time.Hour
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger     *debt.Ledger
	Store      debt.TxStore
	Reconciler *syncer.Reconciler

	// AutoBackup pushes to the remote after every successful mutation.
	AutoBackup bool

	mu       sync.Mutex
	sessions map[string]*debt.AdjustmentSession
}

// NewHandler creates a new handler around the ledger. reconciler may be nil.
func NewHandler(ledger *debt.Ledger, reconciler *syncer.Reconciler) *Handler {
	if reconciler == nil {
		reconciler = syncer.NewReconciler(ledger.Store(), nil)
	}
	return &Handler{
		Ledger:     ledger,
		Store:      ledger.Store(),
		Reconciler: reconciler,
		sessions:   make(map[string]*debt.AdjustmentSession),
	}
}

// autoBackup runs after a committed mutation. Failures are logged only.
func (h *Handler) autoBackup(r *http.Request) {
	if !h.AutoBackup || !h.Reconciler.Enabled() {
		return
	}
	session := SessionFrom(r.Context())
	if session == nil {
		return
	}
	res := h.Reconciler.Backup(context.WithoutCancel(r.Context()), session)
	if !res.Success && !res.Skipped {
		logger.Warn("auto backup failed", "path", r.URL.Path, "message", res.Message)
	}
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthDTO{Status: "ok", Time: h.Ledger.Now().UTC()})
}

// =============================================================================
// PROFILE ENDPOINTS
// =============================================================================

// Onboard saves the profile and seeds the initial debt.
// POST /api/onboarding
func (h *Handler) Onboard(w http.ResponseWriter, r *http.Request) {
	var req OnboardingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	profile, err := h.Ledger.Onboard(r.Context(), debt.OnboardingInput{
		Gender:                   req.Gender,
		BirthDate:                req.BirthDate,
		MajorityDate:             req.MajorityDate,
		PrayerTrackingStartDate:  req.PrayerTrackingStartDate,
		FastingTrackingStartDate: req.FastingTrackingStartDate,
	})
	if err != nil {
		writeDomainError(w, "Onboarding failed", err)
		return
	}

	h.autoBackup(r)
	writeJSON(w, http.StatusCreated, toProfileDTO(profile))
}

// GetProfile returns the stored profile.
// GET /api/profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.Store.GetProfile(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load profile", err)
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "Profile not found", debt.ErrProfileNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toProfileDTO(profile))
}

// UpdateProfile applies a partial edit. Counters are not recomputed.
// PUT /api/profile
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	profile, err := h.Ledger.UpdateProfile(r.Context(), req.patch())
	if err != nil {
		writeDomainError(w, "Failed to update profile", err)
		return
	}

	h.autoBackup(r)
	writeJSON(w, http.StatusOK, toProfileDTO(profile))
}

// =============================================================================
// DEBT ENDPOINTS
// =============================================================================

// GetDebt returns raw totals and the clamped display totals.
// GET /api/debt
func (h *Handler) GetDebt(w http.ResponseWriter, r *http.Request) {
	totals, err := h.Ledger.GetDebtTotals(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load debt", err)
		return
	}
	display := totals.Display()
	writeJSON(w, http.StatusOK, DebtSummaryDTO{
		Raw:     TotalsDTO{PrayerDebt: totals.PrayerDebt, FastingDebt: totals.FastingDebt},
		Display: TotalsDTO{PrayerDebt: display.PrayerDebt, FastingDebt: display.FastingDebt},
	})
}

// GetDebtCounts returns the 7 counters.
// GET /api/debt/counts
func (h *Handler) GetDebtCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Store.GetDebtCounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load debt counts", err)
		return
	}
	dtos := make([]DebtCountDTO, 0, len(counts))
	for _, c := range counts {
		dtos = append(dtos, DebtCountDTO{Category: c.Category, Count: c.Count, UpdatedAt: c.UpdatedAt})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CALENDAR ENDPOINTS
// =============================================================================

// ListCalendar returns recorded statuses in [start, end].
// Defaults to the last 30 days ending today.
// GET /api/calendar?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *Handler) ListCalendar(w http.ResponseWriter, r *http.Request) {
	end, err := debt.ParseDate(r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end date", err)
		return
	}
	if end.IsZero() {
		end = h.Ledger.Today()
	}
	start, err := debt.ParseDate(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date", err)
		return
	}
	if start.IsZero() {
		start = end.AddDays(-defaultCalendarSpan)
	}
	if start.After(end) {
		writeError(w, http.StatusBadRequest, "start must not be after end", nil)
		return
	}

	rows, err := h.Store.GetDailyStatusRange(r.Context(), start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load calendar", err)
		return
	}
	dtos := make([]DailyStatusDTO, 0, len(rows))
	for _, s := range rows {
		dtos = append(dtos, toDailyStatusDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func parseDayParams(r *http.Request) (debt.Date, debt.Category, error) {
	date, err := debt.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		return debt.Date{}, "", err
	}
	if date.IsZero() {
		return debt.Date{}, "", &debt.ValidationError{Field: "date", Reason: "is required", Err: debt.ErrInvalidDate}
	}
	category, err := debt.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		return debt.Date{}, "", err
	}
	return date, category, nil
}

// GetDayStatus returns one recorded status. No record means pending.
// GET /api/calendar/{date}/{category}
func (h *Handler) GetDayStatus(w http.ResponseWriter, r *http.Request) {
	date, category, err := parseDayParams(r)
	if err != nil {
		writeDomainError(w, "Invalid calendar entry", err)
		return
	}

	status, err := h.Store.GetDailyStatus(r.Context(), date, category)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load status", err)
		return
	}
	if status == nil {
		writeError(w, http.StatusNotFound, "No status recorded", nil)
		return
	}
	writeJSON(w, http.StatusOK, toDailyStatusDTO(*status))
}

// ToggleDayStatus sets the status of one (date, category) pair.
// PUT /api/calendar/{date}/{category}
func (h *Handler) ToggleDayStatus(w http.ResponseWriter, r *http.Request) {
	date, category, err := parseDayParams(r)
	if err != nil {
		writeDomainError(w, "Invalid calendar entry", err)
		return
	}
	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Ledger.ToggleDailyStatus(r.Context(), date, category, req.Status, req.Note)
	if err != nil {
		writeDomainError(w, "Failed to toggle status", err)
		return
	}

	h.autoBackup(r)
	writeJSON(w, http.StatusOK, ToggleDTO{
		Date:     res.Date,
		Category: res.Category,
		Status:   res.Status,
		Previous: res.Previous,
		Removed:  res.Removed,
		Delta:    res.Delta,
		Count:    res.Count,
		Swept:    res.Swept,
	})
}

// =============================================================================
// ADJUSTMENT ENDPOINTS
// =============================================================================

func toSessionDTO(s *debt.AdjustmentSession) AdjustmentSessionDTO {
	return AdjustmentSessionDTO{ID: s.ID, CreatedAt: s.CreatedAt, Pending: s.Pending()}
}

// pruneSessions drops sessions left open longer than sessionTTL.
// Caller holds h.mu.
func (h *Handler) pruneSessions() {
	cutoff := h.Ledger.Now().UTC().Add(-sessionTTL)
	for id, s := range h.sessions {
		if s.CreatedAt.Before(cutoff) {
			s.Discard()
			delete(h.sessions, id)
		}
	}
}

func (h *Handler) session(r *http.Request) (*debt.AdjustmentSession, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[chi.URLParam(r, "id")]
	return s, ok
}

// OpenAdjustment starts a quick-entry session.
// POST /api/adjustments
func (h *Handler) OpenAdjustment(w http.ResponseWriter, r *http.Request) {
	s := h.Ledger.NewAdjustmentSession()

	h.mu.Lock()
	h.pruneSessions()
	h.sessions[s.ID] = s
	h.mu.Unlock()

	writeJSON(w, http.StatusCreated, toSessionDTO(s))
}

// GetAdjustment returns a session's pending buffer.
// GET /api/adjustments/{id}
func (h *Handler) GetAdjustment(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Adjustment session not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(s))
}

// DiscardAdjustment drops a session without touching storage.
// DELETE /api/adjustments/{id}
func (h *Handler) DiscardAdjustment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Adjustment session not found", nil)
		return
	}
	s.Discard()
	w.WriteHeader(http.StatusNoContent)
}

// AddAdjustmentEntry buffers one +/- tap.
// POST /api/adjustments/{id}/entries
func (h *Handler) AddAdjustmentEntry(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Adjustment session not found", nil)
		return
	}
	var req AdjustmentEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := s.Apply(req.Category, req.Delta); err != nil {
		writeDomainError(w, "Failed to record entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(s))
}

// CommitAdjustment applies the buffer in one transaction and closes the
// session. On failure the session stays open with its buffer intact.
// POST /api/adjustments/{id}/commit
func (h *Handler) CommitAdjustment(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Adjustment session not found", nil)
		return
	}

	applied, err := s.Commit(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to commit adjustments", err)
		return
	}

	h.mu.Lock()
	delete(h.sessions, s.ID)
	h.mu.Unlock()

	h.autoBackup(r)
	writeJSON(w, http.StatusOK, CommitDTO{Applied: applied})
}

// =============================================================================
// MAINTENANCE ENDPOINTS
// =============================================================================

// RunSweep charges elapsed days. Called when the app comes to the foreground.
// POST /api/sweep
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.Ledger.RunCatchUpSweep(r.Context())
	if err != nil {
		writeDomainError(w, "Sweep failed", err)
		return
	}
	if res.Days > 0 {
		h.autoBackup(r)
	}
	writeJSON(w, http.StatusOK, toSweepDTO(res))
}

// ListLogs returns audit entries, newest first.
// GET /api/logs?category=fajr&limit=100&offset=0
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := debt.LogFilter{Limit: defaultLogLimit}

	if raw := q.Get("category"); raw != "" {
		c, err := debt.ParseCategory(raw)
		if err != nil {
			writeDomainError(w, "Invalid category", err)
			return
		}
		filter.Category = &c
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid offset", err)
			return
		}
		filter.Offset = n
	}

	entries, err := h.Store.ListLogs(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load logs", err)
		return
	}
	dtos := make([]LogEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, LogEntryDTO{
			ID:            e.ID,
			Category:      e.Category,
			Amount:        e.Amount,
			Reason:        e.Reason,
			EffectiveDate: e.EffectiveDate,
			Timestamp:     e.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Audit reports whether every counter equals the sum of its logs.
// A mismatch is a 200 with consistent=false, not an error.
// GET /api/audit
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	err := h.Ledger.Audit(r.Context())
	var mismatch *debt.ConsistencyError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, AuditDTO{Consistent: true})
	case errors.As(err, &mismatch):
		out := AuditDTO{Mismatches: make(map[debt.Category]MismatchDTO, len(mismatch.Mismatches))}
		for c, m := range mismatch.Mismatches {
			out.Mismatches[c] = MismatchDTO{Count: m.Count, LogSum: m.LogSum}
		}
		writeJSON(w, http.StatusOK, out)
	default:
		writeError(w, http.StatusInternalServerError, "Audit failed", err)
	}
}

// Reset wipes local data and closes every open adjustment session.
// Remote backups are untouched.
// POST /api/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	if err := h.Ledger.Reset(r.Context(), req.IncludeProfile); err != nil {
		writeError(w, http.StatusInternalServerError, "Reset failed", err)
		return
	}

	h.mu.Lock()
	for id, s := range h.sessions {
		s.Discard()
		delete(h.sessions, id)
	}
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SYNC ENDPOINTS
// =============================================================================

func writeSyncResult(w http.ResponseWriter, res syncer.Result) {
	status := http.StatusOK
	if !res.Success && !res.Skipped {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, res)
}

// Backup pushes local state for the request's session.
// POST /api/sync/backup
func (h *Handler) Backup(w http.ResponseWriter, r *http.Request) {
	writeSyncResult(w, h.Reconciler.Backup(r.Context(), SessionFrom(r.Context())))
}

// Restore pulls remote state for the request's session.
// POST /api/sync/restore
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	writeSyncResult(w, h.Reconciler.Restore(r.Context(), SessionFrom(r.Context())))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps ledger errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case debt.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case debt.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case debt.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		logger.Error(message, "error", err)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
