package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/climalink/climalink-core/internal/command"
)

// Schedule is a recurring command definition for one device. The cron
// expression uses the standard five fields (minute hour day-of-month
// month day-of-week).
type Schedule struct {
	ID            string             `json:"id"`
	DeviceID      string             `json:"device_id"`
	Name          string             `json:"name"`
	Enabled       bool               `json:"enabled"`
	CronExpr      string             `json:"cron_expr"`
	CommandType   command.Type       `json:"command_type"`
	Params        command.Parameters `json:"parameters"`
	LastExecuted  *time.Time         `json:"last_executed,omitempty"`
	NextExecution *time.Time         `json:"next_execution,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Sentinel errors for the schedule package.
var (
	// ErrNotFound is returned when a lookup targets a schedule that
	// does not exist.
	ErrNotFound = errors.New("schedule: not found")

	// ErrInvalidSchedule is returned when a schedule fails validation.
	ErrInvalidSchedule = errors.New("schedule: invalid schedule")

	// ErrStorage wraps database failures.
	ErrStorage = errors.New("schedule: storage failure")
)

// cronParser accepts standard five-field cron expressions.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks the schedule definition, including that the cron
// expression parses.
func (s *Schedule) Validate() error {
	if s.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidSchedule)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSchedule)
	}
	if !s.CommandType.Valid() {
		return fmt.Errorf("%w: unknown command type %q", ErrInvalidSchedule, s.CommandType)
	}
	if _, err := cronParser.Parse(s.CronExpr); err != nil {
		return fmt.Errorf("%w: cron expression %q: %v", ErrInvalidSchedule, s.CronExpr, err)
	}
	return nil
}

// NextAfter computes the next execution time strictly after t.
func (s *Schedule) NextAfter(t time.Time) (time.Time, error) {
	spec, err := cronParser.Parse(s.CronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: cron expression %q: %v", ErrInvalidSchedule, s.CronExpr, err)
	}
	return spec.Next(t), nil
}
