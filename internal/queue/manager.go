package queue

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"hospitalops/queue-service/internal/models"

	"github.com/google/uuid"
)

// Manager owns all queue state. Every mutation happens under the owning
// queue's lock; the outer RWMutex only guards the queue and ticket indexes.
// No I/O happens while any lock is held: audit events are handed to the
// recorder after the mutation commits.
type Manager struct {
	mu      sync.RWMutex
	queues  map[string]*queueState
	tickets map[string]*queueState

	registry    Registry
	recorder    Recorder
	autoAdvance bool
	now         func() time.Time
}

type queueState struct {
	mu         sync.Mutex
	meta       models.Queue
	dept       models.Department
	nextNumber int
	items      []*models.Ticket
	byID       map[string]*models.Ticket
}

type Options struct {
	Recorder    Recorder
	AutoAdvance bool
	Now         func() time.Time
}

func NewManager(registry Registry, options Options) *Manager {
	now := options.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Manager{
		queues:      make(map[string]*queueState),
		tickets:     make(map[string]*queueState),
		registry:    registry,
		recorder:    options.Recorder,
		autoAdvance: options.AutoAdvance,
		now:         now,
	}
}

// RegisterQueue provisions a queue bound to a registry department. Queue
// provisioning is an operator concern; it is not exposed on the HTTP surface.
func (m *Manager) RegisterQueue(q models.Queue) (models.Queue, error) {
	dept, ok := m.registry.Department(q.DepartmentID)
	if !ok {
		return models.Queue{}, fmt.Errorf("%w: unknown department %q", ErrValidation, q.DepartmentID)
	}
	if q.QueueID == "" {
		q.QueueID = uuid.NewString()
	}
	if q.Name == "" {
		q.Name = dept.Name
	}
	if q.Status == "" {
		q.Status = models.QueueActive
	}
	switch q.Status {
	case models.QueueActive, models.QueuePaused, models.QueueClosed:
	default:
		return models.Queue{}, fmt.Errorf("%w: unknown queue status %q", ErrValidation, q.Status)
	}
	q.DepartmentName = dept.Name
	if q.GroupID == "" {
		q.GroupID = dept.GroupID
	}
	if q.GroupName == "" {
		q.GroupName = dept.GroupName
	}
	q.CreatedAt = m.now()
	q.CurrentNumber = 0
	q.WaitingCount = 0
	q.EstimatedTime = estimatedTime(0, dept.AvgConsultationMinutes)
	q.Items = nil

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.queues[q.QueueID]; exists {
		return models.Queue{}, fmt.Errorf("%w: queue %q already registered", ErrValidation, q.QueueID)
	}
	m.queues[q.QueueID] = &queueState{
		meta: q,
		dept: dept,
		byID: make(map[string]*models.Ticket),
	}
	return q, nil
}

// SetQueueStatus changes the queue-level status (active, paused, closed).
// Individual ticket statuses are unaffected.
func (m *Manager) SetQueueStatus(queueID, status string) (models.Queue, error) {
	switch status {
	case models.QueueActive, models.QueuePaused, models.QueueClosed:
	default:
		return models.Queue{}, fmt.Errorf("%w: unknown queue status %q", ErrValidation, status)
	}
	qs := m.findQueue(queueID)
	if qs == nil {
		return models.Queue{}, ErrQueueNotFound
	}
	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.meta.Status = status
	return qs.meta, nil
}

func (m *Manager) JoinQueue(input JoinInput) (models.Ticket, error) {
	if input.PatientID == "" {
		return models.Ticket{}, fmt.Errorf("%w: patient_id is required", ErrValidation)
	}
	priority := input.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	if !models.ValidPriority(priority) {
		return models.Ticket{}, fmt.Errorf("%w: unknown priority %q", ErrValidation, priority)
	}

	m.mu.Lock()
	qs, ok := m.queues[input.QueueID]
	if !ok {
		m.mu.Unlock()
		return models.Ticket{}, ErrQueueNotFound
	}

	qs.mu.Lock()
	if qs.meta.Status == models.QueueClosed {
		qs.mu.Unlock()
		m.mu.Unlock()
		return models.Ticket{}, ErrQueueNotFound
	}

	now := m.now()
	qs.nextNumber++
	waitingBefore := qs.meta.WaitingCount
	expected := now.Add(time.Duration(waitingBefore*qs.dept.AvgConsultationMinutes) * time.Minute)
	ticket := &models.Ticket{
		TicketID:     uuid.NewString(),
		PatientID:    input.PatientID,
		PatientName:  input.PatientName,
		Number:       qs.nextNumber,
		Status:       models.StatusWaiting,
		Priority:     priority,
		QueueID:      qs.meta.QueueID,
		DepartmentID: qs.meta.DepartmentID,
		GroupID:      qs.meta.GroupID,
		CreatedAt:    now,
		ExpectedTime: &expected,
	}
	appendTransition(ticket, "", models.StatusWaiting, "system", "joined", now)
	qs.items = append(qs.items, ticket)
	qs.byID[ticket.TicketID] = ticket
	qs.meta.WaitingCount++
	qs.meta.EstimatedTime = estimatedTime(qs.meta.WaitingCount, qs.dept.AvgConsultationMinutes)
	result := copyTicket(ticket)
	event := transitionEvent(qs.meta, ticket, ticket.History[len(ticket.History)-1])
	qs.mu.Unlock()

	m.tickets[ticket.TicketID] = qs
	m.mu.Unlock()

	m.record(event)
	return result, nil
}

func (m *Manager) Transition(input TransitionInput) (models.Ticket, error) {
	if !models.ValidStatus(input.ToStatus) {
		return models.Ticket{}, fmt.Errorf("%w: unknown status %q", ErrValidation, input.ToStatus)
	}
	qs := m.findTicketQueue(input.TicketID)
	if qs == nil {
		return models.Ticket{}, ErrTicketNotFound
	}

	qs.mu.Lock()
	ticket, ok := qs.byID[input.TicketID]
	if !ok {
		qs.mu.Unlock()
		return models.Ticket{}, ErrTicketNotFound
	}
	from := ticket.Status
	if !ValidTransition(from, input.ToStatus) {
		qs.mu.Unlock()
		return models.Ticket{}, &InvalidTransitionError{From: from, To: input.ToStatus}
	}
	if RequiresElevation(from, input.ToStatus) && !Authorized(input.CallerRole, input.CallerDepartment, ticket.DepartmentID) {
		qs.mu.Unlock()
		return models.Ticket{}, ErrPermissionDenied
	}

	now := m.now()
	events := make([]TransitionEvent, 0, 2)
	m.applyTransition(qs, ticket, input.ToStatus, input.Operator, input.Reason, now)
	events = append(events, transitionEvent(qs.meta, ticket, ticket.History[len(ticket.History)-1]))

	if m.autoAdvance && input.ToStatus == models.StatusCompleted {
		if next := firstWaiting(qs); next != nil {
			m.applyTransition(qs, next, models.StatusInProgress, "system", "auto advance", now)
			events = append(events, transitionEvent(qs.meta, next, next.History[len(next.History)-1]))
		}
	}

	result := copyTicket(ticket)
	qs.mu.Unlock()

	for _, event := range events {
		m.record(event)
	}
	return result, nil
}

// applyTransition mutates ticket state, audit trail, and queue counters as
// one step. Caller must hold qs.mu and have validated the edge.
func (m *Manager) applyTransition(qs *queueState, ticket *models.Ticket, to, operator, reason string, now time.Time) {
	from := ticket.Status
	if reason == "" {
		reason = "status update"
	}
	ticket.Status = to
	if to == models.StatusInProgress && ticket.StartedAt == nil {
		started := now
		ticket.StartedAt = &started
	}
	if models.TerminalStatus(to) {
		completed := now
		ticket.CompletedAt = &completed
	}
	appendTransition(ticket, from, to, operator, reason, now)

	if to == models.StatusInProgress && ticket.Number > qs.meta.CurrentNumber {
		qs.meta.CurrentNumber = ticket.Number
	}
	if from == models.StatusWaiting && to != models.StatusWaiting {
		if qs.meta.WaitingCount > 0 {
			qs.meta.WaitingCount--
		}
	}
	if to == models.StatusWaiting && from != models.StatusWaiting {
		qs.meta.WaitingCount++
	}
	qs.meta.EstimatedTime = estimatedTime(qs.meta.WaitingCount, qs.dept.AvgConsultationMinutes)
}

func (m *Manager) SetPriority(ticketID, priority string) (models.Ticket, error) {
	if !models.ValidPriority(priority) {
		return models.Ticket{}, fmt.Errorf("%w: unknown priority %q", ErrValidation, priority)
	}
	qs := m.findTicketQueue(ticketID)
	if qs == nil {
		return models.Ticket{}, ErrTicketNotFound
	}
	qs.mu.Lock()
	defer qs.mu.Unlock()
	ticket, ok := qs.byID[ticketID]
	if !ok {
		return models.Ticket{}, ErrTicketNotFound
	}
	// Priority is not a status: no state-machine check, no audit entry.
	ticket.Priority = priority
	return copyTicket(ticket), nil
}

func (m *Manager) GetTicket(ticketID string) (models.Ticket, error) {
	qs := m.findTicketQueue(ticketID)
	if qs == nil {
		return models.Ticket{}, ErrTicketNotFound
	}
	qs.mu.Lock()
	defer qs.mu.Unlock()
	ticket, ok := qs.byID[ticketID]
	if !ok {
		return models.Ticket{}, ErrTicketNotFound
	}
	return copyTicket(ticket), nil
}

func (m *Manager) GetQueue(queueID string) (models.Queue, error) {
	qs := m.findQueue(queueID)
	if qs == nil {
		return models.Queue{}, ErrQueueNotFound
	}
	qs.mu.Lock()
	defer qs.mu.Unlock()
	view := qs.meta
	view.Items = make([]models.Ticket, 0, len(qs.items))
	for _, ticket := range qs.items {
		view.Items = append(view.Items, copyTicket(ticket))
	}
	return view, nil
}

func (m *Manager) ListQueues(filter ListFilter) ([]models.Queue, error) {
	result := make([]models.Queue, 0)
	for _, qs := range m.matchingQueues(filter) {
		qs.mu.Lock()
		result = append(result, qs.meta)
		qs.mu.Unlock()
	}
	sort.Slice(result, func(i, j int) bool { return result[i].QueueID < result[j].QueueID })
	return result, nil
}

// Stats recomputes cross-queue aggregates by full scan. It takes each queue
// lock briefly, so a concurrent transition is reflected either fully or not
// at all, never partially.
func (m *Manager) Stats(filter ListFilter) (models.Statistics, error) {
	var stats models.Statistics
	for _, qs := range m.matchingQueues(filter) {
		qs.mu.Lock()
		stats.TotalQueues++
		for _, ticket := range qs.items {
			stats.Total++
			switch ticket.Status {
			case models.StatusWaiting:
				stats.Waiting++
				stats.AverageWaitMinutes += qs.dept.AvgConsultationMinutes
			case models.StatusInProgress:
				stats.InProgress++
			case models.StatusPaused:
				stats.Paused++
			case models.StatusCompleted:
				stats.Completed++
			case models.StatusCancelled:
				stats.Cancelled++
			}
			switch ticket.Priority {
			case models.PriorityUrgent:
				stats.UrgentPriority++
			case models.PriorityHigh:
				stats.HighPriority++
			}
		}
		qs.mu.Unlock()
	}
	return stats, nil
}

func (m *Manager) findQueue(queueID string) *queueState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queues[queueID]
}

func (m *Manager) findTicketQueue(ticketID string) *queueState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tickets[ticketID]
}

func (m *Manager) matchingQueues(filter ListFilter) []*queueState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]*queueState, 0, len(m.queues))
	for _, qs := range m.queues {
		if filter.DepartmentID != "" && qs.meta.DepartmentID != filter.DepartmentID {
			continue
		}
		if filter.GroupID != "" && qs.meta.GroupID != filter.GroupID {
			continue
		}
		matched = append(matched, qs)
	}
	return matched
}

func (m *Manager) record(event TransitionEvent) {
	if m.recorder == nil {
		return
	}
	m.recorder.Record(event)
}

func appendTransition(ticket *models.Ticket, from, to, operator, reason string, now time.Time) {
	prevHash := ""
	if len(ticket.History) > 0 {
		prevHash = ticket.History[len(ticket.History)-1].Hash
	}
	ticket.History = append(ticket.History, models.Transition{
		From:      from,
		To:        to,
		Operator:  operator,
		Timestamp: now,
		Reason:    reason,
		PrevHash:  prevHash,
		Hash:      ComputeTransitionHash(prevHash, ticket.TicketID, from, to, operator, reason, now),
	})
}

func firstWaiting(qs *queueState) *models.Ticket {
	for _, ticket := range qs.items {
		if ticket.Status == models.StatusWaiting {
			return ticket
		}
	}
	return nil
}

func transitionEvent(meta models.Queue, ticket *models.Ticket, record models.Transition) TransitionEvent {
	return TransitionEvent{
		TicketID:     ticket.TicketID,
		QueueID:      meta.QueueID,
		DepartmentID: meta.DepartmentID,
		Number:       ticket.Number,
		From:         record.From,
		To:           record.To,
		Operator:     record.Operator,
		Reason:       record.Reason,
		Timestamp:    record.Timestamp,
		PrevHash:     record.PrevHash,
		Hash:         record.Hash,
	}
}

func copyTicket(ticket *models.Ticket) models.Ticket {
	result := *ticket
	result.History = append([]models.Transition(nil), ticket.History...)
	if ticket.StartedAt != nil {
		started := *ticket.StartedAt
		result.StartedAt = &started
	}
	if ticket.CompletedAt != nil {
		completed := *ticket.CompletedAt
		result.CompletedAt = &completed
	}
	if ticket.ExpectedTime != nil {
		expected := *ticket.ExpectedTime
		result.ExpectedTime = &expected
	}
	return result
}

func estimatedTime(waiting, avgMinutes int) string {
	return fmt.Sprintf("%d min", waiting*avgMinutes)
}
