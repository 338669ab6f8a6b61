package domain

import "time"

// TaskStatus enumerates task lifecycle states.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "TODO"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskDone       TaskStatus = "DONE"
	TaskBlocked    TaskStatus = "BLOCKED"
)

// TaskPriority enumerates task priorities.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
	PriorityUrgent TaskPriority = "URGENT"
)

// CanTransition reports whether a status change is allowed. The normal
// path is TODO -> IN_PROGRESS -> DONE. BLOCKED is reachable from any
// non-DONE state and clears back to IN_PROGRESS. DONE only reopens to
// IN_PROGRESS.
func (s TaskStatus) CanTransition(to TaskStatus) bool {
	if s == to {
		return true
	}
	switch s {
	case TaskTodo:
		return to == TaskInProgress || to == TaskBlocked
	case TaskInProgress:
		return to == TaskDone || to == TaskBlocked
	case TaskBlocked:
		return to == TaskInProgress
	case TaskDone:
		return to == TaskInProgress
	}
	return false
}

// MaterialLine is one required or used material on a task.
type MaterialLine struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// Comment is an append-only note on a task. Never mutated once created.
type Comment struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	MemberID    string    `json:"member_id"`
	DisplayName string    `json:"display_name"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
}

// WorkLog is a timed interval spent by one member on one task. It is
// written twice at most: once on start, once on stop.
type WorkLog struct {
	ID        string     `json:"id"`
	TaskID    string     `json:"task_id"`
	MemberID  string     `json:"member_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Note      string     `json:"note,omitempty"`
}

// Open reports whether the interval is still running.
func (w WorkLog) Open() bool { return w.EndedAt == nil }

// Hours returns the closed interval length in hours, zero while open.
func (w WorkLog) Hours() float64 {
	if w.EndedAt == nil {
		return 0
	}
	return w.EndedAt.Sub(w.StartedAt).Hours()
}

// Task is a unit of work inside a project, carried with its nested
// comments and work logs.
type Task struct {
	ID                string         `json:"id"`
	ProjectID         string         `json:"project_id"`
	TeamID            string         `json:"team_id"`
	Title             string         `json:"title"`
	Description       string         `json:"description,omitempty"`
	AssigneeIDs       []string       `json:"assignee_ids"`
	Status            TaskStatus     `json:"status"`
	Priority          TaskPriority   `json:"priority"`
	DueDate           time.Time      `json:"due_date"`
	EstimatedHours    *float64       `json:"estimated_hours,omitempty"`
	RequiredTools     []string       `json:"required_tools,omitempty"`
	RequiredMaterials []MaterialLine `json:"required_materials,omitempty"`
	UsedMaterials     []MaterialLine `json:"used_materials,omitempty"`
	Comments          []Comment      `json:"comments,omitempty"`
	Photos            []string       `json:"photos,omitempty"`
	WorkLogs          []WorkLog      `json:"work_logs,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// ActualHours is the derived total of all closed work logs, in hours.
// It is recomputed on every read and never stored.
func (t Task) ActualHours() float64 {
	var total float64
	for _, w := range t.WorkLogs {
		total += w.Hours()
	}
	return total
}

// OpenWorkLog returns the member's running work log, or nil.
func (t Task) OpenWorkLog(memberID string) *WorkLog {
	for i := range t.WorkLogs {
		if t.WorkLogs[i].MemberID == memberID && t.WorkLogs[i].Open() {
			return &t.WorkLogs[i]
		}
	}
	return nil
}

// AssignedTo reports whether the member is in the assignee set.
func (t Task) AssignedTo(memberID string) bool {
	for _, id := range t.AssigneeIDs {
		if id == memberID {
			return true
		}
	}
	return false
}
