package mocks

import (
	"context"
	"sync"

	"github.com/clickstudio/connect-core/internal/core/domain"
	"github.com/clickstudio/connect-core/internal/core/ports/driven"
)

var _ driven.TaskQueue = (*MockTaskQueue)(nil)

// MockTaskQueue records tasks in memory. Dequeue hands them out in
// enqueue order, ignoring ScheduledFor.
type MockTaskQueue struct {
	mu      sync.Mutex
	tasks   map[string]*domain.Task
	order   []string
	pending []string
	acked   []string
	nacked  map[string]string

	EnqueueFn func(task *domain.Task) error
	GetTaskFn func(taskID string) (*domain.Task, error)
}

// NewMockTaskQueue creates an empty queue.
func NewMockTaskQueue() *MockTaskQueue {
	return &MockTaskQueue{
		tasks:  make(map[string]*domain.Task),
		nacked: make(map[string]string),
	}
}

func (m *MockTaskQueue) Enqueue(ctx context.Context, task *domain.Task) error {
	if m.EnqueueFn != nil {
		if err := m.EnqueueFn(task); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
	m.order = append(m.order, task.ID)
	m.pending = append(m.pending, task.ID)
	return nil
}

func (m *MockTaskQueue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return nil, nil
	}
	id := m.pending[0]
	m.pending = m.pending[1:]
	task := m.tasks[id]
	task.MarkProcessing()
	return task, nil
}

func (m *MockTaskQueue) Ack(ctx context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
	m.acked = append(m.acked, task.ID)
	return nil
}

func (m *MockTaskQueue) Nack(ctx context.Context, taskID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nacked[taskID] = reason
	if task, ok := m.tasks[taskID]; ok {
		task.MarkFailed(reason)
	}
	return nil
}

func (m *MockTaskQueue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	if m.GetTaskFn != nil {
		return m.GetTaskFn(taskID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[taskID], nil
}

func (m *MockTaskQueue) Ping(ctx context.Context) error { return nil }

func (m *MockTaskQueue) Close() error { return nil }

// Tasks returns every enqueued task in enqueue order.
func (m *MockTaskQueue) Tasks() []*domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Task, len(m.order))
	for i, id := range m.order {
		out[i] = m.tasks[id]
	}
	return out
}

// Acked returns the IDs passed to Ack.
func (m *MockTaskQueue) Acked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acked...)
}

// NackReason returns the reason a task was nacked with.
func (m *MockTaskQueue) NackReason(taskID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.nacked[taskID]
	return r, ok
}
