package httpapi

import (
	"github.com/example/repairdesk/api-go/internal/dates"
	"github.com/example/repairdesk/api-go/internal/model"
)

// jobJSON is the wire shape of a job in getAllJobs and getJobByRow.
type jobJSON struct {
	RowIndex        int    `json:"rowIndex"`
	JobID           string `json:"Job_ID"`
	DateIn          string `json:"Date_In"`
	ServiceType     string `json:"Service_Type"`
	ClientName      string `json:"Client_Name"`
	ClientEmail     string `json:"Client_Email"`
	ClientPhone     string `json:"Client_Phone"`
	SystemMakeModel string `json:"System_Make_Model"`
	DueDate         string `json:"Due_Date"`
	Status          string `json:"Status"`
	Technician      string `json:"Technician"`
	InitialRequest  string `json:"Initial_Request"`
	JobNotes        string `json:"Job_Notes"`
	FinalResolution string `json:"Final_Resolution"`
	DateCompleted   string `json:"Date_Completed"`
}

// statusJobJSON is the reduced shape returned by getJobsByStatus.
type statusJobJSON struct {
	RowIndex        int    `json:"rowIndex"`
	JobID           string `json:"Job_ID"`
	ClientName      string `json:"Client_Name"`
	ClientEmail     string `json:"Client_Email"`
	ClientPhone     string `json:"Client_Phone"`
	ServiceType     string `json:"Service_Type"`
	DueDate         string `json:"Due_Date"`
	Status          string `json:"Status"`
	SystemMakeModel string `json:"System_Make_Model"`
	InitialRequest  string `json:"Initial_Request"`
}

func (s Server) baseJob(job model.Job) jobJSON {
	return jobJSON{
		RowIndex:        job.RowIndex,
		JobID:           job.JobID,
		DateIn:          dates.List(job.DateIn, s.Location),
		ServiceType:     job.ServiceType,
		ClientName:      job.ClientName,
		ClientEmail:     job.ClientEmail,
		ClientPhone:     job.ClientPhone,
		SystemMakeModel: job.SystemMakeModel,
		Status:          string(job.Status),
		Technician:      job.Technician,
		InitialRequest:  job.InitialRequest,
		JobNotes:        job.JobNotes,
		FinalResolution: job.FinalResolution,
	}
}

// listJob formats dates as MM/DD/YYYY.
func (s Server) listJob(job model.Job) jobJSON {
	out := s.baseJob(job)
	out.DueDate = dates.List(job.DueDate, s.Location)
	out.DateCompleted = dates.List(job.DateCompleted, s.Location)
	return out
}

// editJob formats the editable dates as YYYY-MM-DD for date inputs. Date In
// keeps the list format.
func (s Server) editJob(job model.Job) jobJSON {
	out := s.baseJob(job)
	out.DueDate = dates.Input(job.DueDate, s.Location)
	out.DateCompleted = dates.Input(job.DateCompleted, s.Location)
	return out
}
