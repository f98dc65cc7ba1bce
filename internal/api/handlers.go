package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/foreman/internal/store"
	"github.com/mattjoyce/foreman/internal/supervisor"
	"github.com/mattjoyce/foreman/internal/task"
)

func (s *Server) handleInstallService(w http.ResponseWriter, r *http.Request) {
	var req installServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Name == "" || req.Command == "" {
		s.writeError(w, http.StatusBadRequest, "name and command are required")
		return
	}

	spec := supervisor.InstallSpec{
		Name:        req.Name,
		Description: req.Description,
		Version:     req.Version,
		Launch: store.LaunchSpec{
			Command:    req.Command,
			Args:       req.Args,
			WorkingDir: req.WorkingDir,
			Env:        req.Environment,
		},
	}
	if req.Capabilities != nil {
		spec.Capabilities = store.CapabilitySummary{
			Tools:     req.Capabilities.Tools,
			Resources: req.Capabilities.Resources,
		}
	}

	serviceID, err := s.orch.Install(r.Context(), spec)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeData(w, http.StatusCreated, map[string]string{"serviceId": serviceID})
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.store.ListServices(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	views := make([]serviceView, 0, len(services))
	for _, svc := range services {
		views = append(views, newServiceView(svc))
	}
	s.writeData(w, http.StatusOK, views)
}

func (s *Server) handleServiceStatus(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")

	svc, err := s.store.GetService(r.Context(), serviceID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	status := map[string]any{
		"id":        svc.ID,
		"status":    string(svc.Status),
		"isRunning": false,
	}
	if ws := s.orch.WorkerStatus(serviceID); ws != nil {
		status["isRunning"] = ws.State == supervisor.StateRunning
		status["runState"] = string(ws.State)
		status["lastHeartbeat"] = ws.LastHeartbeat.UTC().Format(time.RFC3339)
		if ws.Capabilities != nil {
			status["capabilities"] = ws.Capabilities
		}
	}
	s.writeData(w, http.StatusOK, status)
}

func (s *Server) handleServiceTasks(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")
	tasks, err := s.store.ListTasksByService(r.Context(), serviceID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, newTaskView(t))
	}
	s.writeData(w, http.StatusOK, views)
}

func (s *Server) handleStartService(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")
	if err := s.orch.Start(r.Context(), serviceID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]string{"serviceId": serviceID, "status": "running"})
}

func (s *Server) handleStopService(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")
	if err := s.orch.Stop(r.Context(), serviceID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]string{"serviceId": serviceID, "status": "stopping"})
}

func (s *Server) handleRemoveService(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceID")
	if err := s.orch.Remove(r.Context(), serviceID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]string{"serviceId": serviceID, "status": "removed"})
}

func (s *Server) handleExecuteTask(w http.ResponseWriter, r *http.Request) {
	var req executeTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.ServiceID == "" || req.Instruction == "" {
		s.writeError(w, http.StatusBadRequest, "serviceId and instruction are required")
		return
	}

	taskID, err := s.tasks.Execute(r.Context(), req.ServiceID, req.Instruction, req.Context)
	if err != nil {
		if errors.Is(err, task.ErrInstructionParse) {
			// The task record exists and is failed; report both.
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeServiceError(w, err)
		return
	}
	s.writeData(w, http.StatusAccepted, map[string]string{"taskId": taskID, "status": "pending"})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	t, err := s.store.GetTask(r.Context(), taskID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, newTaskView(t))
}

func (s *Server) handleGetTaskLogs(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	logs, err := s.store.GetTaskLogs(r.Context(), taskID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	type logView struct {
		Level     string `json:"level"`
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
	}
	views := make([]logView, 0, len(logs))
	for _, entry := range logs {
		views = append(views, logView{
			Level:     entry.Level,
			Message:   entry.Message,
			Timestamp: entry.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	s.writeData(w, http.StatusOK, views)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.tasks.Cancel(r.Context(), taskID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]string{"taskId": taskID, "status": "failed"})
}

func (s *Server) handleRetryTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	newID, err := s.tasks.Retry(r.Context(), taskID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeData(w, http.StatusAccepted, map[string]string{"taskId": newID, "status": "pending"})
}

// writeServiceError maps core errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrServiceNotFound), errors.Is(err, store.ErrTaskNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, supervisor.ErrServiceAlreadyRunning),
		errors.Is(err, supervisor.ErrServiceNotRunning),
		errors.Is(err, task.ErrTaskNotCancellable),
		errors.Is(err, task.ErrTaskNotRetryable):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}
