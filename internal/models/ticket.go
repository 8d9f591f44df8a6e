package models

import "time"

type Ticket struct {
	TicketID     string       `json:"ticket_id"`
	PatientID    string       `json:"patient_id"`
	PatientName  string       `json:"patient_name"`
	Number       int          `json:"number"`
	Status       string       `json:"status"`
	Priority     string       `json:"priority"`
	QueueID      string       `json:"queue_id"`
	DepartmentID string       `json:"department_id"`
	GroupID      string       `json:"group_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	ExpectedTime *time.Time   `json:"expected_time,omitempty"`
	History      []Transition `json:"transition_history"`
}

// Transition is one entry in a ticket's append-only audit trail. Records are
// hash-chained: Hash covers the record fields plus the previous record's Hash.
type Transition struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Operator  string    `json:"operator"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

const (
	StatusWaiting     = "waiting"
	StatusInProgress  = "in_progress"
	StatusPaused      = "paused"
	StatusCompleted   = "completed"
	StatusCancelled   = "cancelled"
	StatusTransferred = "transferred"
	StatusMissed      = "missed"
)

const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusWaiting, StatusInProgress, StatusPaused, StatusCompleted, StatusCancelled, StatusTransferred, StatusMissed:
		return true
	}
	return false
}

func ValidPriority(priority string) bool {
	switch priority {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

func TerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusTransferred, StatusMissed:
		return true
	}
	return false
}
