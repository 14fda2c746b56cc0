// Package notify decides when a job mutation warrants an email, renders the
// email, and hands it to a Mailer.
package notify

import "github.com/example/repairdesk/api-go/internal/model"

// Diff compares the tracked fields of a job before and after an update.
// Values are compared exactly, so empty notes replaced by empty notes are
// unchanged.
func Diff(before, after model.Job) model.ChangeEvent {
	return model.ChangeEvent{
		StatusChanged: before.Status != after.Status,
		NotesChanged:  before.JobNotes != after.JobNotes,
	}
}
