/*
scheduler.go - Periodic consistency audit

PURPOSE:
  Runs booking.Auditor on an interval and keeps the latest report for the
  admin endpoint. Drift is logged and reported, never repaired.

DESIGN:
  - One background goroutine with a ticker
  - Runs once immediately on Start
  - Audits events from today onward in the engine's time zone

USAGE:
  scheduler := NewAuditScheduler(engine.Audit, time.Hour, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - booking/audit.go: What is checked
  - handlers.go: GET/POST /api/admin/audit
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/xstejsk/bp-backup/booking"
)

// AuditScheduler runs the audit periodically.
type AuditScheduler struct {
	Auditor  *booking.Auditor
	Interval time.Duration
	// Today returns the first date to audit. Defaults to the UTC date.
	Today func() booking.Date

	log    *slog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	last   *booking.AuditReport
}

func NewAuditScheduler(auditor *booking.Auditor, interval time.Duration, logger *slog.Logger) *AuditScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditScheduler{
		Auditor:  auditor,
		Interval: interval,
		Today:    func() booking.Date { return booking.DateOf(time.Now().UTC()) },
		log:      logger.With("component", "audit"),
	}
}

// Start begins the periodic audit. A non-positive interval disables it.
func (s *AuditScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Interval <= 0 {
		s.log.Info("audit scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.log.Info("audit scheduler started", "interval", s.Interval)
}

// Stop stops the scheduler and waits for a running audit to finish.
func (s *AuditScheduler) Stop() {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.ticker = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("audit scheduler stopped")
}

func (s *AuditScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	s.RunNow(context.Background())
	for {
		select {
		case <-ticker.C:
			s.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow audits immediately and stores the report.
func (s *AuditScheduler) RunNow(ctx context.Context) (booking.AuditReport, error) {
	report, err := s.Auditor.Run(ctx, s.Today())
	if err != nil {
		s.log.Error("audit failed", "error", err)
		return booking.AuditReport{}, err
	}
	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()
	s.log.Debug("audit finished", "events", report.EventsChecked, "users", report.UsersChecked, "clean", report.Clean())
	return report, nil
}

// Last returns the latest report, if any.
func (s *AuditScheduler) Last() (booking.AuditReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return booking.AuditReport{}, false
	}
	return *s.last, true
}

// =============================================================================
// HANDLERS
// =============================================================================

// GetAudit returns the latest report, 404 before the first run.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeAudit(w, r) {
		return
	}
	report, ok := h.Audits.Last()
	if !ok {
		writeError(w, http.StatusNotFound, "No audit has run yet", nil)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTO(report))
}

// RunAudit audits now.
func (h *Handler) RunAudit(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeAudit(w, r) {
		return
	}
	report, err := h.Audits.RunNow(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTO(report))
}

func (h *Handler) authorizeAudit(w http.ResponseWriter, r *http.Request) bool {
	if err := booking.Authorize(callerFrom(r.Context()), booking.ActionManageEvents, ""); err != nil {
		h.writeDomainError(w, r, err)
		return false
	}
	if h.Audits == nil {
		writeError(w, http.StatusNotFound, "Audit is not configured", nil)
		return false
	}
	return true
}
