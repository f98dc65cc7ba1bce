package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mattjoyce/foreman/internal/store"
)

// apiResponse is the uniform response envelope.
type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// installServiceRequest is the body of POST /api/services.
type installServiceRequest struct {
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Version      string            `json:"version"`
	Command      string            `json:"command"`
	Args         []string          `json:"args"`
	WorkingDir   string            `json:"workingDirectory"`
	Environment  map[string]string `json:"environment"`
	Capabilities *capabilities     `json:"capabilities"`
}

type capabilities struct {
	Tools     []string `json:"tools"`
	Resources []string `json:"resources"`
}

// executeTaskRequest is the body of POST /api/tasks/execute.
type executeTaskRequest struct {
	ServiceID   string         `json:"serviceId"`
	Instruction string         `json:"instruction"`
	Context     map[string]any `json:"context"`
}

// serviceView is the JSON projection of a service descriptor.
type serviceView struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Version      string            `json:"version"`
	Status       string            `json:"status"`
	Capabilities capabilities      `json:"capabilities"`
	Command      string            `json:"command"`
	Args         []string          `json:"args,omitempty"`
	WorkingDir   string            `json:"workingDirectory,omitempty"`
	Environment  map[string]string `json:"environment,omitempty"`
	CreatedAt    string            `json:"createdAt"`
	UpdatedAt    string            `json:"updatedAt"`
}

func newServiceView(svc *store.Service) serviceView {
	return serviceView{
		ID:          svc.ID,
		Name:        svc.Name,
		Description: svc.Description,
		Version:     svc.Version,
		Status:      string(svc.Status),
		Capabilities: capabilities{
			Tools:     svc.Capabilities.Tools,
			Resources: svc.Capabilities.Resources,
		},
		Command:     svc.Launch.Command,
		Args:        svc.Launch.Args,
		WorkingDir:  svc.Launch.WorkingDir,
		Environment: svc.Launch.Env,
		CreatedAt:   svc.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   svc.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// taskView is the JSON projection of a task record.
type taskView struct {
	ID           string          `json:"id"`
	ServiceID    string          `json:"serviceId"`
	Instruction  string          `json:"instruction"`
	Status       string          `json:"status"`
	Context      map[string]any  `json:"context,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	Progress     int             `json:"progress"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	CreatedAt    string          `json:"createdAt"`
	CompletedAt  string          `json:"completedAt,omitempty"`
}

func newTaskView(t *store.Task) taskView {
	v := taskView{
		ID:          t.ID,
		ServiceID:   t.ServiceID,
		Instruction: t.Instruction,
		Status:      string(t.Status),
		Context:     t.Context,
		Result:      t.Result,
		Progress:    t.Progress,
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
	}
	if t.ErrorMessage != nil {
		v.ErrorMessage = *t.ErrorMessage
	}
	if t.CompletedAt != nil {
		v.CompletedAt = t.CompletedAt.UTC().Format(time.RFC3339)
	}
	return v
}

func (s *Server) writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data}); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(apiResponse{Success: false, Error: msg}); err != nil {
		s.logger.Error("failed to write error response", "error", err)
	}
}
