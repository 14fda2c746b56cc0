package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"github.com/example/repairdesk/api-go/internal/dates"
	"github.com/example/repairdesk/api-go/internal/model"
)

//go:embed templates/*
var templateFS embed.FS

var (
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt"))
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html"))
)

// Message is one outbound email.
type Message struct {
	To        string
	Subject   string
	PlainBody string
	HTMLBody  string
}

// Renderer turns jobs into customer-facing emails.
type Renderer struct {
	Shop     string
	Location *time.Location
}

type confirmationView struct {
	Shop        string
	ClientName  string
	JobID       string
	ServiceType string
	DueDate     string
	Status      string
	System      string
	Request     string
}

type updateView struct {
	Shop          string
	ClientName    string
	JobID         string
	ServiceType   string
	DueDate       string
	Status        string
	StatusChanged bool
	Notes         string
}

// RenderConfirmation builds the "job created" email. System and request
// sections appear only when the job carries them.
func (r Renderer) RenderConfirmation(job model.Job) (Message, error) {
	view := confirmationView{
		Shop:        r.Shop,
		ClientName:  job.ClientName,
		JobID:       job.JobID,
		ServiceType: job.ServiceType,
		DueDate:     r.dueDate(job),
		Status:      string(job.Status),
		System:      job.SystemMakeModel,
		Request:     job.InitialRequest,
	}
	subject := fmt.Sprintf("Service Confirmation - Job #%s - %s", job.JobID, r.Shop)
	return r.render(job.ClientEmail, subject, "confirmation", view)
}

// RenderUpdate builds the change email. The status block appears only when
// the status changed, the notes block only when notes changed and are not
// empty.
func (r Renderer) RenderUpdate(job model.Job, change model.ChangeEvent) (Message, error) {
	view := updateView{
		Shop:          r.Shop,
		ClientName:    job.ClientName,
		JobID:         job.JobID,
		ServiceType:   job.ServiceType,
		DueDate:       r.dueDate(job),
		Status:        string(job.Status),
		StatusChanged: change.StatusChanged,
	}
	if change.NotesChanged {
		view.Notes = job.JobNotes
	}
	subject := fmt.Sprintf("Job Update - #%s - %s", job.JobID, r.Shop)
	return r.render(job.ClientEmail, subject, "update", view)
}

func (r Renderer) dueDate(job model.Job) string {
	if job.DueDate.IsZero() {
		return "TBD"
	}
	return dates.List(job.DueDate, r.Location)
}

func (r Renderer) render(to, subject, name string, view any) (Message, error) {
	var plain, rich bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&plain, name+".txt", view); err != nil {
		return Message{}, fmt.Errorf("notify: render %s text: %w", name, err)
	}
	if err := htmlTemplates.ExecuteTemplate(&rich, name+".html", view); err != nil {
		return Message{}, fmt.Errorf("notify: render %s html: %w", name, err)
	}
	return Message{
		To:        to,
		Subject:   subject,
		PlainBody: plain.String(),
		HTMLBody:  rich.String(),
	}, nil
}
