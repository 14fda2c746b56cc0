package notify_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/repairdesk/api-go/internal/blob"
	"github.com/example/repairdesk/api-go/internal/model"
	"github.com/example/repairdesk/api-go/internal/notify"
)

type recordingMailer struct {
	sent []notify.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg notify.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func sampleJob() model.Job {
	return model.Job{
		RowIndex:    2,
		JobID:       "WO-1001",
		ServiceType: "Repair",
		ClientName:  "Ada Lovelace",
		ClientEmail: "ada@example.com",
		Status:      model.StatusCheckedIn,
	}
}

func TestDiff(t *testing.T) {
	base := sampleJob()
	tests := []struct {
		name   string
		mutate func(*model.Job)
		want   model.ChangeEvent
	}{
		{"identical", func(*model.Job) {}, model.ChangeEvent{}},
		{"status only", func(j *model.Job) { j.Status = model.StatusAwaitingParts }, model.ChangeEvent{StatusChanged: true}},
		{"notes only", func(j *model.Job) { j.JobNotes = "ordered part" }, model.ChangeEvent{NotesChanged: true}},
		{"both", func(j *model.Job) {
			j.Status = model.StatusCompleted
			j.JobNotes = "done"
		}, model.ChangeEvent{StatusChanged: true, NotesChanged: true}},
		{"other fields ignored", func(j *model.Job) { j.ClientPhone = "555" }, model.ChangeEvent{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			after := base
			tt.mutate(&after)
			assert.Equal(t, tt.want, notify.Diff(base, after))
		})
	}
}

func TestRenderUpdate_NotesOnly(t *testing.T) {
	r := notify.Renderer{Shop: "Pacific NW Computers", Location: time.UTC}
	job := sampleJob()
	job.JobNotes = "ordered part"

	msg, err := r.RenderUpdate(job, model.ChangeEvent{NotesChanged: true})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", msg.To)
	assert.Equal(t, "Job Update - #WO-1001 - Pacific NW Computers", msg.Subject)
	assert.Contains(t, msg.PlainBody, "NEW NOTES:\nordered part")
	assert.NotContains(t, msg.PlainBody, "STATUS UPDATED")
	assert.Contains(t, msg.HTMLBody, "New Notes Added")
	assert.NotContains(t, msg.HTMLBody, "Status Updated")
	assert.Contains(t, msg.PlainBody, "Due Date: TBD")
}

func TestRenderUpdate_StatusOnlyAndEmptyNotes(t *testing.T) {
	r := notify.Renderer{Shop: "Shop", Location: time.UTC}
	job := sampleJob()
	job.Status = model.StatusReadyForPickup
	job.DueDate = time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	msg, err := r.RenderUpdate(job, model.ChangeEvent{StatusChanged: true, NotesChanged: true})
	require.NoError(t, err)
	assert.Contains(t, msg.PlainBody, "STATUS UPDATED: 5. Ready for Pickup/Delivery")
	assert.NotContains(t, msg.PlainBody, "NEW NOTES")
	assert.Contains(t, msg.HTMLBody, "Status Updated")
	assert.Contains(t, msg.PlainBody, "Due Date: 03/04/2026")
}

func TestRenderConfirmation_OptionalSections(t *testing.T) {
	r := notify.Renderer{Shop: "Shop", Location: time.UTC}
	job := sampleJob()

	msg, err := r.RenderConfirmation(job)
	require.NoError(t, err)
	assert.Equal(t, "Service Confirmation - Job #WO-1001 - Shop", msg.Subject)
	assert.Contains(t, msg.PlainBody, "Job ID: WO-1001")
	assert.Contains(t, msg.PlainBody, "Due Date: TBD")
	assert.Contains(t, msg.PlainBody, "Current Status: 1. Checked In: Diagnostics")
	assert.NotContains(t, msg.PlainBody, "System:")
	assert.NotContains(t, msg.PlainBody, "YOUR REQUEST")

	job.SystemMakeModel = "ThinkPad T14"
	job.InitialRequest = "<b>won't boot</b>"
	msg, err = r.RenderConfirmation(job)
	require.NoError(t, err)
	assert.Contains(t, msg.PlainBody, "System: ThinkPad T14")
	assert.Contains(t, msg.PlainBody, "YOUR REQUEST:\n<b>won't boot</b>")
	assert.Contains(t, msg.HTMLBody, "&lt;b&gt;won&#39;t boot&lt;/b&gt;")
}

func TestNotifier_Decisions(t *testing.T) {
	ctx := context.Background()
	mailer := &recordingMailer{}
	n := &notify.Notifier{
		Renderer: notify.Renderer{Shop: "Shop"},
		Mailer:   mailer,
		Logger:   log.New(io.Discard, "", 0),
	}

	job := sampleJob()
	assert.True(t, n.JobCreated(ctx, job))
	assert.False(t, n.JobUpdated(ctx, job, model.ChangeEvent{}))
	assert.True(t, n.JobUpdated(ctx, job, model.ChangeEvent{StatusChanged: true}))

	job.ClientEmail = "  "
	assert.False(t, n.JobCreated(ctx, job))
	assert.False(t, n.JobUpdated(ctx, job, model.ChangeEvent{NotesChanged: true}))

	assert.Len(t, mailer.sent, 2)
}

func TestNotifier_SwallowsDeliveryFailure(t *testing.T) {
	var logs bytes.Buffer
	n := &notify.Notifier{
		Renderer: notify.Renderer{Shop: "Shop"},
		Mailer:   &recordingMailer{err: errors.New("relay down")},
		Logger:   log.New(&logs, "", 0),
	}
	assert.False(t, n.JobCreated(context.Background(), sampleJob()))
	assert.Contains(t, logs.String(), model.ErrNotificationDeliveryFailed.Error())
	assert.Contains(t, logs.String(), "relay down")
}

func TestDropMailer_WritesEML(t *testing.T) {
	fs := blob.LocalFS{Root: t.TempDir()}
	m := notify.DropMailer{
		Blobs: fs,
		From:  "shop@example.com",
		Now:   func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
	msg, err := notify.Renderer{Shop: "Shop"}.RenderConfirmation(sampleJob())
	require.NoError(t, err)
	require.NoError(t, m.Send(context.Background(), msg))

	keys, err := fs.List("outbox")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "outbox/20260102T030405-")

	f, err := fs.Open(keys[0])
	require.NoError(t, err)
	defer f.Close()
	raw, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "ada@example.com")
	assert.Contains(t, string(raw), "Service Confirmation")
}

func TestDropMailer_RejectsBadRecipient(t *testing.T) {
	m := notify.DropMailer{Blobs: blob.LocalFS{Root: t.TempDir()}, From: "shop@example.com"}
	err := m.Send(context.Background(), notify.Message{To: "not an address", Subject: "x"})
	assert.Error(t, err)
}
