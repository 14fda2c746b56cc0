package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/repairdesk/api-go/internal/dashboard"
	"github.com/example/repairdesk/api-go/internal/dates"
	"github.com/example/repairdesk/api-go/internal/jobs"
	"github.com/example/repairdesk/api-go/internal/model"
	"github.com/example/repairdesk/api-go/internal/schedule"
	"github.com/example/repairdesk/api-go/internal/views"
)

const maxBodyBytes = 1 << 20

type Server struct {
	Jobs     *jobs.Repository
	Views    *views.Projector
	Schedule schedule.Syncer // optional; syncCalendar fails without it
	Hub      *dashboard.Hub  // optional
	Location *time.Location
	Logger   *log.Logger
}

func (s Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(cors)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", s.Hub.ServeHTTP)

	r.Get("/", s.handleGet)
	r.Post("/", s.handlePost)
	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeResult(w, fmt.Errorf("%w: %v", model.ErrInvalidInput, err))
		return
	}
	switch r.Form.Get("action") {
	case "getAllJobs":
		s.handleAllJobs(w, r)
		return
	case "getJobByRow":
		s.handleJobByRow(w, r)
		return
	case "getJobsByStatus":
		s.handleJobsByStatus(w, r)
		return
	case "getFormEntries":
		s.handleFormEntries(w, r)
		return
	case "syncCalendar":
		s.handleSyncCalendar(w, r)
		return
	case "markJobCompleted":
		s.handleMarkCompleted(w, r)
		return
	}
	if r.Form.Get("sheet") == "MasterLogStatus" {
		s.handleStatusCounts(w, r)
		return
	}
	s.handleSchedule(w, r)
}

func (s Server) handlePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		s.writeResult(w, fmt.Errorf("%w: %v", model.ErrInvalidInput, err))
		return
	}
	switch r.Form.Get("action") {
	case "updateJob":
		s.handleUpdateJob(w, r)
	case "markJobCompleted":
		s.handleMarkCompleted(w, r)
	case "syncCalendar":
		s.handleSyncCalendar(w, r)
	default:
		s.handleCreateJob(w, r)
	}
}

func (s Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	raw, err := payload(r)
	if err != nil {
		s.writeResult(w, err)
		return
	}
	var in model.JobInput
	if err := json.Unmarshal(raw, &in); err != nil {
		s.writeResult(w, fmt.Errorf("%w: Invalid data format: %v", model.ErrInvalidInput, err))
		return
	}

	job, err := s.Jobs.Create(r.Context(), in)
	if err != nil {
		s.writeResult(w, err)
		return
	}
	msg := fmt.Sprintf("Job %s logged successfully!", job.JobID)
	if strings.TrimSpace(job.ClientEmail) != "" {
		msg += " Confirmation email sent."
	}
	writeJSON(w, http.StatusOK, result{Result: "success", Message: msg, RowIndex: job.RowIndex})
}

// updateRequest is the updateJob payload. Absent keys leave the stored value
// as it is.
type updateRequest struct {
	RowIndex        json.RawMessage `json:"rowIndex"`
	ClientName      *string         `json:"Client_Name"`
	ClientEmail     *string         `json:"Client_Email"`
	ClientPhone     *string         `json:"Client_Phone"`
	ServiceType     *string         `json:"Service_Type"`
	DueDate         *string         `json:"Due_Date"`
	Status          *string         `json:"Status"`
	SystemMakeModel *string         `json:"System_Make_Model"`
	InitialRequest  *string         `json:"Initial_Request"`
	JobNotes        *string         `json:"Job_Notes"`
}

func (s Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	raw := r.Form.Get("data")
	if raw == "" {
		s.writeResult(w, fmt.Errorf("%w: No data received", model.ErrInvalidInput))
		return
	}
	var req updateRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		s.writeResult(w, fmt.Errorf("%w: Invalid data format: %v", model.ErrInvalidInput, err))
		return
	}
	index, err := parseRowIndex(strings.Trim(string(req.RowIndex), `"`))
	if err != nil {
		s.writeResult(w, err)
		return
	}

	_, _, err = s.Jobs.Update(r.Context(), index, model.JobPatch{
		ClientName:      req.ClientName,
		ClientEmail:     req.ClientEmail,
		ClientPhone:     req.ClientPhone,
		ServiceType:     req.ServiceType,
		DueDate:         req.DueDate,
		Status:          req.Status,
		SystemMakeModel: req.SystemMakeModel,
		InitialRequest:  req.InitialRequest,
		JobNotes:        req.JobNotes,
	})
	if err != nil {
		s.writeResult(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result{Result: "success", Message: "Job updated successfully!"})
}

func (s Server) handleMarkCompleted(w http.ResponseWriter, r *http.Request) {
	index, err := parseRowIndex(r.Form.Get("rowIndex"))
	if err != nil {
		s.writeResult(w, err)
		return
	}
	job, err := s.Jobs.MarkCompleted(r.Context(), index, r.Form.Get("resolution"))
	if err != nil {
		s.writeResult(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result{
		Result:         "success",
		Message:        "Job marked as completed!",
		CompletionDate: dates.List(job.DateCompleted, s.Location),
	})
}

func (s Server) handleAllJobs(w http.ResponseWriter, r *http.Request) {
	all, err := s.Jobs.All(r.Context())
	if err != nil {
		s.writeResult(w, err)
		return
	}
	out := make([]jobJSON, 0, len(all))
	for _, job := range all {
		out = append(out, s.listJob(job))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s Server) handleJobByRow(w http.ResponseWriter, r *http.Request) {
	index, err := parseRowIndex(r.Form.Get("rowIndex"))
	if err != nil {
		s.writeResult(w, err)
		return
	}
	job, err := s.Jobs.ByRow(r.Context(), index)
	if err != nil {
		s.writeResult(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.editJob(job))
}

func (s Server) handleJobsByStatus(w http.ResponseWriter, r *http.Request) {
	status := r.Form.Get("status")
	if status == "" {
		writeJSON(w, http.StatusOK, []statusJobJSON{})
		return
	}
	list, err := s.Jobs.ByStatus(r.Context(), status)
	if err != nil {
		s.writeResult(w, err)
		return
	}
	out := make([]statusJobJSON, 0, len(list))
	for _, job := range list {
		out = append(out, statusJobJSON{
			RowIndex:        job.RowIndex,
			JobID:           job.JobID,
			ClientName:      job.ClientName,
			ClientEmail:     job.ClientEmail,
			ClientPhone:     job.ClientPhone,
			ServiceType:     job.ServiceType,
			DueDate:         dates.List(job.DueDate, s.Location),
			Status:          string(job.Status),
			SystemMakeModel: job.SystemMakeModel,
			InitialRequest:  job.InitialRequest,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s Server) handleFormEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Views.FormEntries(r.Context(), r.Form.Get("formType"))
	if err != nil {
		s.writeResult(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s Server) handleSyncCalendar(w http.ResponseWriter, r *http.Request) {
	if s.Schedule == nil {
		s.writeResult(w, errors.New("calendar sync is not configured"))
		return
	}
	res, err := s.Schedule.Sync(r.Context())
	if err != nil {
		s.writeResult(w, err)
		return
	}
	msg := fmt.Sprintf("Synced %d events", res.Events)
	if !res.Found {
		msg = fmt.Sprintf("Calendar not found: %s", res.Calendar)
	}
	writeJSON(w, http.StatusOK, result{Result: "success", Message: msg})
}

func (s Server) handleStatusCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.Views.StatusCounts(r.Context())
	if err != nil {
		s.writeResult(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Views.Schedule(r.Context())
	if err != nil {
		s.writeResult(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// payload returns the JSON document of a create request: the "data" form
// value when present, else the raw request body.
func payload(r *http.Request) ([]byte, error) {
	if data := r.Form.Get("data"); data != "" {
		return []byte(data), nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", model.ErrInvalidInput, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: No data received", model.ErrInvalidInput)
	}
	return body, nil
}

func parseRowIndex(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 2 {
		return 0, model.ErrInvalidRowIndex
	}
	return n, nil
}

type result struct {
	Result         string `json:"result"`
	Message        string `json:"message,omitempty"`
	RowIndex       int    `json:"rowIndex,omitempty"`
	CompletionDate string `json:"completionDate,omitempty"`
}

// writeResult reports err in the result envelope. Status is always 200;
// callers read the result field.
func (s Server) writeResult(w http.ResponseWriter, err error) {
	if s.Logger != nil {
		s.Logger.Printf("request failed: %v", err)
	}
	writeErr(w, http.StatusOK, err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, result{Result: "error", Message: errorMessage(err)})
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidRowIndex):
		return "Invalid row index"
	case errors.Is(err, model.ErrStoreNotFound):
		return "Sheet not found"
	case errors.Is(err, model.ErrInvalidInput):
		return strings.TrimPrefix(err.Error(), model.ErrInvalidInput.Error()+": ")
	}
	return err.Error()
}
