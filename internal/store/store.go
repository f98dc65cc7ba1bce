package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrServiceNotFound = errors.New("service not found")
	ErrTaskNotFound    = errors.New("task not found")
)

// ServiceStatus is the persisted lifecycle status of a service descriptor.
type ServiceStatus string

const (
	ServiceInactive ServiceStatus = "inactive"
	ServiceActive   ServiceStatus = "active"
	ServiceError    ServiceStatus = "error"
)

// LaunchSpec describes how to spawn a service's worker process.
type LaunchSpec struct {
	Command    string            `json:"command"`
	Args       []string          `json:"args,omitempty"`
	WorkingDir string            `json:"workingDirectory,omitempty"`
	Env        map[string]string `json:"environment,omitempty"`
}

// CapabilitySummary is the declared tool/resource summary recorded at
// install time. The negotiated capabilities live on the worker handle, not
// here.
type CapabilitySummary struct {
	Tools     []string `json:"tools"`
	Resources []string `json:"resources"`
}

// Service is a persisted service descriptor.
type Service struct {
	ID           string
	Name         string
	Description  string
	Version      string
	Status       ServiceStatus
	Capabilities CapabilitySummary
	Launch       LaunchSpec
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskStatus is the persisted lifecycle status of a task. Transitions only
// move forward: pending -> running -> completed|failed.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Task is one tracked execution of an instruction against a service.
type Task struct {
	ID           string
	ServiceID    string
	Instruction  string
	Status       TaskStatus
	Context      map[string]any
	Result       json.RawMessage
	Progress     int
	ErrorMessage *string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// TaskUpdate is a partial update applied to a task record. Nil fields are
// left untouched.
type TaskUpdate struct {
	Status       *TaskStatus
	Result       json.RawMessage
	Progress     *int
	ErrorMessage *string
	CompletedAt  *time.Time
}

// TaskLog is one append-only diagnostic entry for a task.
type TaskLog struct {
	ID        string
	TaskID    string
	Level     string
	Message   string
	Timestamp time.Time
}

// Connection is a persisted record of a subscriber connection.
type Connection struct {
	ID            string
	ClientID      string
	ClientName    string
	ClientVersion string
	Platform      string
	Status        string // connected | disconnected
	LastSeen      time.Time
	CreatedAt     time.Time
}

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/mattjoyce/foreman/internal/store Store

// Store is the persistence collaborator for service descriptors, tasks,
// task logs, and subscriber connection records.
type Store interface {
	CreateService(ctx context.Context, svc *Service) error
	GetService(ctx context.Context, id string) (*Service, error)
	ListServices(ctx context.Context) ([]*Service, error)
	UpdateServiceStatus(ctx context.Context, id string, status ServiceStatus) error
	DeleteService(ctx context.Context, id string) error

	CreateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasksByService(ctx context.Context, serviceID string) ([]*Task, error)
	UpdateTask(ctx context.Context, id string, upd TaskUpdate) error

	AppendTaskLog(ctx context.Context, taskID, level, message string) error
	GetTaskLogs(ctx context.Context, taskID string) ([]*TaskLog, error)

	UpsertConnection(ctx context.Context, conn *Connection) error
}
