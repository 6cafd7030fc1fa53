package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionSweeper is the part of the session service the scheduler drives
type SessionSweeper interface {
	RunAutoCompleteSweep(ctx context.Context) (int, error)
	SendReminders(ctx context.Context, lead time.Duration) (int, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	sessions     SessionSweeper
	interval     time.Duration
	reminderLead time.Duration
	logger       *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewScheduler создаёт новый планировщик. reminderLead <= 0 disables reminders.
func NewScheduler(sessions SessionSweeper, interval, reminderLead time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		sessions:     sessions,
		interval:     interval,
		reminderLead: reminderLead,
		logger:       logger,
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler",
		zap.Duration("interval", s.interval),
		zap.Duration("reminder_lead", s.reminderLead))

	go s.run(ctx)
}

// Stop останавливает фоновые задачи и ждёт завершения текущего прохода
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	s.stopOnce.Do(func() { close(s.stopChan) })
	<-s.done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	// Первый проход сразу при старте
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopChan:
			s.logger.Info("Session scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Session scheduler cancelled")
			return
		}
	}
}

// tick completes elapsed sessions, then sends due reminders
func (s *Scheduler) tick(ctx context.Context) {
	completed, err := s.sessions.RunAutoCompleteSweep(ctx)
	if err != nil {
		s.logger.Error("Auto-complete sweep failed", zap.Error(err))
	} else if completed > 0 {
		s.logger.Debug("Sessions auto-completed", zap.Int("count", completed))
	}

	if s.reminderLead <= 0 {
		return
	}
	if _, err := s.sessions.SendReminders(ctx, s.reminderLead); err != nil {
		s.logger.Error("Failed to send session reminders", zap.Error(err))
	}
}
