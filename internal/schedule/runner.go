package schedule

import (
	"context"
	"time"

	"github.com/climalink/climalink-core/internal/command"
)

// SystemUser is recorded as the issuing user on scheduled commands.
const SystemUser = "system"

// CommandSender dispatches one command through the control manager.
type CommandSender interface {
	SendCommand(ctx context.Context, deviceID string, userID *string, typ command.Type, params command.Parameters) (*command.Command, error)
}

// Logger defines the logging interface used by the Runner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Runner polls for due schedules and executes them as the system user.
// Execution failures are logged and the schedule is still advanced to
// its next due time; a broken device must not make its schedule fire in
// a tight loop every poll.
type Runner struct {
	repo     Repository
	sender   CommandSender
	interval time.Duration
	logger   Logger
	now      func() time.Time
}

// NewRunner creates a schedule runner.
func NewRunner(repo Repository, sender CommandSender, interval time.Duration, logger Logger) *Runner {
	if logger == nil {
		logger = noopLogger{}
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Runner{
		repo:     repo,
		sender:   sender,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run polls until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("schedule runner started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("schedule runner stopped")
			return ctx.Err()
		case <-ticker.C:
			r.RunDue(ctx)
		}
	}
}

// RunDue executes every schedule that has come due. Each schedule gets
// its own error boundary.
func (r *Runner) RunDue(ctx context.Context) {
	now := r.now()
	due, err := r.repo.ListDue(ctx, now)
	if err != nil {
		r.logger.Error("listing due schedules failed", "error", err)
		return
	}

	for i := range due {
		if ctx.Err() != nil {
			return
		}
		r.runOne(ctx, &due[i], now)
	}
}

func (r *Runner) runOne(ctx context.Context, s *Schedule, now time.Time) {
	user := SystemUser
	_, err := r.sender.SendCommand(ctx, s.DeviceID, &user, s.CommandType, s.Params)
	if err != nil {
		r.logger.Warn("scheduled command failed",
			"schedule_id", s.ID, "device_id", s.DeviceID,
			"type", s.CommandType, "error", err)
	} else {
		r.logger.Info("scheduled command executed",
			"schedule_id", s.ID, "device_id", s.DeviceID, "type", s.CommandType)
	}

	next, err := s.NextAfter(now)
	if err != nil {
		r.logger.Error("computing next execution failed",
			"schedule_id", s.ID, "error", err)
		return
	}
	if err := r.repo.MarkExecuted(ctx, s.ID, now, next); err != nil {
		r.logger.Error("recording schedule execution failed",
			"schedule_id", s.ID, "error", err)
	}
}
