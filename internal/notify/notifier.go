package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/example/repairdesk/api-go/internal/model"
)

// Notifier sends job emails and never fails the caller: render and delivery
// errors are logged and dropped.
type Notifier struct {
	Renderer Renderer
	Mailer   Mailer
	Logger   *log.Logger
}

// JobCreated sends the confirmation email when the job has an address. It
// reports whether a message was delivered.
func (n *Notifier) JobCreated(ctx context.Context, job model.Job) bool {
	if strings.TrimSpace(job.ClientEmail) == "" {
		return false
	}
	msg, err := n.Renderer.RenderConfirmation(job)
	if err != nil {
		n.logf("confirmation for %s: %v", job.JobID, err)
		return false
	}
	return n.deliver(ctx, msg)
}

// JobUpdated sends the change email when status or notes changed and the
// job has an address.
func (n *Notifier) JobUpdated(ctx context.Context, job model.Job, change model.ChangeEvent) bool {
	if !change.Any() || strings.TrimSpace(job.ClientEmail) == "" {
		return false
	}
	msg, err := n.Renderer.RenderUpdate(job, change)
	if err != nil {
		n.logf("update for %s: %v", job.JobID, err)
		return false
	}
	return n.deliver(ctx, msg)
}

func (n *Notifier) deliver(ctx context.Context, msg Message) bool {
	if n.Mailer == nil {
		n.logf("no mailer configured, dropping %q to %s", msg.Subject, msg.To)
		return false
	}
	if err := n.Mailer.Send(ctx, msg); err != nil {
		n.logf("%v", fmt.Errorf("%w: %s: %v", model.ErrNotificationDeliveryFailed, msg.To, err))
		return false
	}
	n.logf("sent %q to %s", msg.Subject, msg.To)
	return true
}

func (n *Notifier) logf(format string, args ...any) {
	logger := n.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf(format, args...)
}
