package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateID creates a unique random ID.
func GenerateID() string {
	return uuid.NewString()
}

// TaskType identifies the type of background task
type TaskType string

const (
	// TaskTypePublish posts one piece of content to several platforms
	TaskTypePublish TaskType = "publish"
	// TaskTypeRefreshSweep refreshes expiring tokens of one user
	TaskTypeRefreshSweep TaskType = "refresh_sweep"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task represents a background job to be processed by workers
type Task struct {
	ID     string   `json:"id"`
	Type   TaskType `json:"type"`
	UserID string   `json:"user_id"`

	// Payload contains task-specific data
	// For publish: {"platforms": "twitter,linkedin", "request": "<json PublishRequest>"}
	// For refresh_sweep: {} (empty)
	Payload map[string]string `json:"payload"`

	Status      TaskStatus `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	Error       string     `json:"error,omitempty"`

	// Results holds the per-platform outcome of a publish task
	Results []PlatformPublishOutcome `json:"results,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ScheduledFor time.Time  `json:"scheduled_for"`
}

// NewTask creates a new task with default values
func NewTask(taskType TaskType, userID string, payload map[string]string) *Task {
	now := time.Now()
	return &Task{
		ID:           GenerateID(),
		Type:         taskType,
		UserID:       userID,
		Payload:      payload,
		Status:       TaskStatusPending,
		MaxAttempts:  3,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}
}

// NewPublishTask creates a task to publish req to the given platforms.
func NewPublishTask(userID string, platforms []Platform, req *PublishRequest) (*Task, error) {
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: at least one platform is required", ErrInvalidInput)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal publish request: %w", err)
	}
	names := make([]string, len(platforms))
	for i, p := range platforms {
		names[i] = string(p)
	}
	t := NewTask(TaskTypePublish, userID, map[string]string{
		"platforms": strings.Join(names, ","),
		"request":   string(body),
	})
	// Publishing is not idempotent; retries happen per platform inside the job.
	t.MaxAttempts = 1
	return t, nil
}

// NewRefreshSweepTask creates a task to refresh a user's expiring tokens.
func NewRefreshSweepTask(userID string) *Task {
	return NewTask(TaskTypeRefreshSweep, userID, nil)
}

// Platforms decodes the platform list of a publish task.
func (t *Task) Platforms() ([]Platform, error) {
	raw := t.Payload["platforms"]
	if raw == "" {
		return nil, fmt.Errorf("%w: platforms not found in task payload", ErrInvalidInput)
	}
	var out []Platform
	for _, name := range strings.Split(raw, ",") {
		p, err := ParsePlatform(name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// PublishRequest decodes the publish request of a publish task.
func (t *Task) PublishRequest() (*PublishRequest, error) {
	raw := t.Payload["request"]
	if raw == "" {
		return nil, fmt.Errorf("%w: request not found in task payload", ErrInvalidInput)
	}
	var req PublishRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return nil, fmt.Errorf("decode publish request: %w", err)
	}
	return &req, nil
}

// MarkProcessing updates the task to processing state
func (t *Task) MarkProcessing() {
	now := time.Now()
	t.Status = TaskStatusProcessing
	t.StartedAt = &now
	t.UpdatedAt = now
	t.Attempts++
}

// MarkCompleted updates the task to completed state
func (t *Task) MarkCompleted() {
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	t.Error = ""
}

// MarkFailed updates the task to failed state
func (t *Task) MarkFailed(err string) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.Error = err
	t.UpdatedAt = now
	if !t.CanRetry() {
		t.CompletedAt = &now
	}
}

// CanRetry checks if the task can be retried
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}

// ResetForRetry puts a failed task back into the pending state.
func (t *Task) ResetForRetry() {
	t.Status = TaskStatusPending
	t.StartedAt = nil
	t.UpdatedAt = time.Now()
}
