package queue

import (
	"time"

	"hospitalops/queue-service/internal/models"
)

type JoinInput struct {
	QueueID     string
	PatientID   string
	PatientName string
	Priority    string
}

type TransitionInput struct {
	TicketID         string
	ToStatus         string
	Operator         string
	Reason           string
	CallerRole       string
	CallerDepartment string
}

type ListFilter struct {
	DepartmentID string
	GroupID      string
}

// Engine is the queue engine surface consumed by the HTTP layer.
type Engine interface {
	JoinQueue(input JoinInput) (models.Ticket, error)
	Transition(input TransitionInput) (models.Ticket, error)
	SetPriority(ticketID, priority string) (models.Ticket, error)
	GetTicket(ticketID string) (models.Ticket, error)
	GetQueue(queueID string) (models.Queue, error)
	ListQueues(filter ListFilter) ([]models.Queue, error)
	Stats(filter ListFilter) (models.Statistics, error)
}

// Registry supplies department configuration lookups. Implementations must
// answer from an in-memory snapshot; lookups sit on the queue provisioning
// path and must not reach out to a database.
type Registry interface {
	Department(departmentID string) (models.Department, bool)
	ListDepartments() []models.Department
}

// TransitionEvent describes one committed status change, emitted after the
// owning queue's lock is released.
type TransitionEvent struct {
	TicketID     string    `json:"ticket_id"`
	QueueID      string    `json:"queue_id"`
	DepartmentID string    `json:"department_id"`
	Number       int       `json:"number"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Operator     string    `json:"operator"`
	Reason       string    `json:"reason"`
	Timestamp    time.Time `json:"timestamp"`
	PrevHash     string    `json:"prev_hash"`
	Hash         string    `json:"hash"`
}

// Recorder receives committed transition events. Record must not block; the
// engine calls it synchronously on the request path.
type Recorder interface {
	Record(event TransitionEvent)
}
