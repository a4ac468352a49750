// Package schedule provides recurring command execution for ClimaLink
// Core. Schedules pair a device with a command and a five-field cron
// expression; the Runner polls for due schedules and dispatches them
// through the control manager as the system user.
package schedule
