package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/credit-applier/internal/config"
	"github.com/jonathan/credit-applier/internal/status"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
	maxRequestBytes  = 1 << 20
)

// RunRequest carries the form fields of a run. Empty fields fall back to
// the server's configuration. A CSV store is only ever taken from the server's
// configuration; unknown fields are rejected.
type RunRequest struct {
	Login          string `json:"login,omitempty" validate:"omitempty,max=200"`
	Password       string `json:"password,omitempty" validate:"omitempty,max=200"`
	SpreadsheetURL string `json:"spreadsheet_url,omitempty" validate:"omitempty,url"`
	WorksheetName  string `json:"worksheet_name,omitempty" validate:"omitempty,max=100"`
	YesToken       string `json:"yes_token,omitempty" validate:"omitempty,max=20"`
	Headless       *bool  `json:"headless,omitempty"`
}

// RunResponse is returned when a run has been accepted
type RunResponse struct {
	RunID string `json:"run_id"`
	State string `json:"state"`
}

// handleStartRun starts a run in the background
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := s.validator.Struct(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, requestError(err).Error())
		return
	}

	rc, err := s.runConfig(req)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	events := status.NewBroadcaster(status.DefaultBacklog)
	run, err := s.ctrl.Start(s.runCtx, rc, events)
	if err != nil {
		if HTTPStatus(err) == http.StatusInternalServerError {
			s.logger.Error("failed to start run", zap.Error(err))
		}
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.events = events
	s.eventsRun = run.ID()
	go func() {
		<-run.Done()
		events.Close()
	}()

	s.logger.Info("run started", zap.String("run_id", run.ID().String()), zap.String("source", rc.Source()))
	s.jsonResponse(w, http.StatusAccepted, RunResponse{
		RunID: run.ID().String(),
		State: string(run.State()),
	})
}

// runConfig overlays the request on the server's base configuration
func (s *Server) runConfig(req RunRequest) (*config.RunConfig, error) {
	override := config.Config{
		Login:          strings.TrimSpace(req.Login),
		Password:       req.Password,
		SpreadsheetURL: strings.TrimSpace(req.SpreadsheetURL),
		WorksheetName:  strings.TrimSpace(req.WorksheetName),
		YesToken:       strings.TrimSpace(req.YesToken),
		Headless:       req.Headless,
	}
	merged := override.MergeWithDefaults(s.base)
	return merged.RunConfig()
}

// handleCurrentRun returns the latest run
func (s *Server) handleCurrentRun(w http.ResponseWriter, _ *http.Request) {
	run := s.ctrl.Current()
	if run == nil {
		s.errorResponse(w, HTTPStatus(&ErrNoRun{}), (&ErrNoRun{}).Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, run.Snapshot())
}

// handleCancelRun asks the live run to stop after the current record
func (s *Server) handleCancelRun(w http.ResponseWriter, _ *http.Request) {
	run := s.ctrl.Current()
	if run == nil {
		s.errorResponse(w, HTTPStatus(&ErrNoRun{}), (&ErrNoRun{}).Error())
		return
	}
	run.Cancel()
	s.logger.Info("run cancel requested", zap.String("run_id", run.ID().String()))
	s.jsonResponse(w, http.StatusAccepted, RunResponse{
		RunID: run.ID().String(),
		State: string(run.State()),
	})
}

// handleRunEvents streams the status messages of the latest run.
// The backlog is replayed first, so late subscribers see the whole run.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	run := s.ctrl.Current()
	s.mu.Lock()
	events := s.events
	if run == nil || events == nil || s.eventsRun != run.ID() {
		s.mu.Unlock()
		s.errorResponse(w, HTTPStatus(&ErrNoRun{}), (&ErrNoRun{}).Error())
		return
	}
	s.mu.Unlock()

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	ch, cancel := events.Subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				select {
				case <-run.Done():
				case <-ctx.Done():
					return
				}
				snap := run.Snapshot()
				summary := ""
				if snap.Report != nil {
					summary = snap.Report.Summary()
				}
				sse.WriteComplete(snap.ID.String(), string(snap.State), summary)
				return
			}
			if err := sse.WriteEvent("status", strconv.Itoa(ev.Seq), ev); err != nil {
				s.logger.Debug("event stream closed", zap.Error(err))
				return
			}
		}
	}
}

// handleListRuns returns journaled runs, newest first
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.errorResponse(w, http.StatusBadRequest, (&ErrValidation{Field: "limit", Message: "must be a positive integer"}).Error())
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := s.ctrl.Journal().ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleListOutcomes returns the journaled outcomes of one run
func (s *Server) handleListOutcomes(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, (&ErrValidation{Field: "id", Message: "invalid run ID"}).Error())
		return
	}

	outcomes, err := s.ctrl.Journal().ListOutcomes(r.Context(), runID)
	if err != nil {
		s.logger.Error("failed to list outcomes", zap.String("run_id", runID.String()), zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "Failed to list outcomes")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"run_id":   runID,
		"outcomes": outcomes,
		"count":    len(outcomes),
	})
}

// requestError turns validator errors into an ErrValidation for the first failing field
func requestError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ErrValidation{Message: err.Error()}
	}
	fe := verrs[0]
	msg := "is invalid"
	switch fe.Tag() {
	case "url":
		msg = "must be a URL"
	case "max":
		msg = "is too long"
	}
	return &ErrValidation{Field: jsonName(fe.Field()), Message: msg}
}

func jsonName(field string) string {
	switch field {
	case "SpreadsheetURL":
		return "spreadsheet_url"
	case "WorksheetName":
		return "worksheet_name"
	case "YesToken":
		return "yes_token"
	default:
		return strings.ToLower(field)
	}
}
