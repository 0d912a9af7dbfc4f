package scheduling

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// SLASweeper periodically scans for escalations past their sla_deadline
// and emits a log/metric for operator alerting. Scheduled with
// robfig/cron/v3, matching the teacher's internal/tasks scheduler.
type SLASweeper struct {
	escalations EscalationStore
	logger      *slog.Logger
	cron        *cron.Cron
	onBreach    func(*Escalation)

	mu      sync.Mutex
	started bool
}

// NewSLASweeper wires a sweeper against an EscalationStore. onBreach, if
// non-nil, is invoked for every escalation found past its SLA deadline
// (e.g. to increment a metric or notify staff).
func NewSLASweeper(escalations EscalationStore, logger *slog.Logger, onBreach func(*Escalation)) *SLASweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &SLASweeper{
		escalations: escalations,
		logger:      logger,
		cron:        cron.New(),
		onBreach:    onBreach,
	}
}

// Start schedules the sweep on the given cron spec (default every minute)
// and begins running it in the background.
func (s *SLASweeper) Start(ctx context.Context, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if spec == "" {
		spec = "@every 1m"
	}
	if _, err := s.cron.AddFunc(spec, func() { s.sweepOnce(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	s.started = true
	return nil
}

// Stop halts the background schedule.
func (s *SLASweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.cron.Stop()
	s.started = false
}

func (s *SLASweeper) sweepOnce(ctx context.Context) {
	breached, err := s.escalations.PastSLA(ctx, time.Now())
	if err != nil {
		s.logger.Error("sla sweep failed", "error", err)
		return
	}
	for _, esc := range breached {
		s.logger.Warn("escalation past sla deadline",
			"escalation_id", esc.ID,
			"clinic_id", esc.ClinicID,
			"sla_deadline", esc.SLADeadline,
		)
		if s.onBreach != nil {
			s.onBreach(esc)
		}
	}
}
