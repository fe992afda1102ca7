package remote

import (
	"context"

	"github.com/cuemby/repmgrd/pkg/log"
)

// Executor runs the configured event-notification and resync-tool
// commands, expanding their templates before handing them to
// LocalCommand. It holds no state beyond the notification template
// itself; callers supply per-call TemplateVars.
type Executor struct {
	NotificationCommand string
}

// NewExecutor builds an Executor. notificationCommand is the raw,
// unexpanded command template from event_notification_command.
func NewExecutor(notificationCommand string) *Executor {
	return &Executor{NotificationCommand: notificationCommand}
}

// Notify expands the configured notification command with ev and runs
// it. A missing command is a no-op, not an error.
func (e *Executor) Notify(ctx context.Context, ev TemplateVars) {
	if e == nil || e.NotificationCommand == "" {
		return
	}
	cmd := ExpandTemplate(e.NotificationCommand, ev)
	_, stderr, ok, err := LocalCommand(ctx, cmd)
	logger := log.WithComponent("remote")
	if err != nil {
		logger.Warn().Err(err).Str("event", ev.EventType).Msg("failed to start notification command")
		return
	}
	if !ok {
		logger.Warn().Str("event", ev.EventType).Str("stderr", stderr).Msg("notification command exited non-zero")
	}
}

// Resync runs a configured resync tool command (e.g. an rsync or
// pgBackRest wrapper invoked during node rejoin) with no templating.
func (e *Executor) Resync(ctx context.Context, cmdString string) (stdout, stderr string, ok bool, err error) {
	return LocalCommand(ctx, cmdString)
}
