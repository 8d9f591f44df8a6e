package models

import "time"

type Queue struct {
	QueueID        string    `json:"queue_id"`
	Name           string    `json:"name"`
	DepartmentID   string    `json:"department_id"`
	DepartmentName string    `json:"department_name"`
	GroupID        string    `json:"group_id,omitempty"`
	GroupName      string    `json:"group_name,omitempty"`
	CurrentNumber  int       `json:"current_number"`
	WaitingCount   int       `json:"waiting_count"`
	EstimatedTime  string    `json:"estimated_time"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	Items          []Ticket  `json:"items,omitempty"`
}

const (
	QueueActive = "active"
	QueuePaused = "paused"
	QueueClosed = "closed"
)

// Department is the registry view of a department's queue configuration.
// The registry is read-only from the engine's perspective.
type Department struct {
	DepartmentID           string `json:"department_id"`
	Name                   string `json:"name"`
	GroupID                string `json:"group_id,omitempty"`
	GroupName              string `json:"group_name,omitempty"`
	AvgConsultationMinutes int    `json:"avg_consultation_minutes"`
	Capacity               int    `json:"capacity"`
}

// Statistics is an on-demand cross-queue tally recomputed by full scan. It is
// deliberately not maintained incrementally; see Manager.Stats.
type Statistics struct {
	TotalQueues        int `json:"total_queues"`
	Total              int `json:"total"`
	Waiting            int `json:"waiting"`
	InProgress         int `json:"in_progress"`
	Paused             int `json:"paused"`
	Completed          int `json:"completed"`
	Cancelled          int `json:"cancelled"`
	UrgentPriority     int `json:"urgent_priority"`
	HighPriority       int `json:"high_priority"`
	AverageWaitMinutes int `json:"average_wait_minutes"`
}
