package queue

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"hospitalops/queue-service/internal/models"
	"hospitalops/queue-service/internal/registry"
)

func testManager(t *testing.T, options Options) *Manager {
	t.Helper()
	reg := registry.NewMemory([]models.Department{
		{DepartmentID: "d1", Name: "Cardiology", GroupID: "g1", GroupName: "Cardiology Group", AvgConsultationMinutes: 15, Capacity: 50},
		{DepartmentID: "d2", Name: "Neurology", GroupID: "g2", GroupName: "Neurology Group", AvgConsultationMinutes: 20, Capacity: 40},
	})
	m := NewManager(reg, options)
	for _, dept := range reg.ListDepartments() {
		if _, err := m.RegisterQueue(models.Queue{QueueID: dept.DepartmentID, DepartmentID: dept.DepartmentID}); err != nil {
			t.Fatalf("register queue %s: %v", dept.DepartmentID, err)
		}
	}
	return m
}

func joinTicket(t *testing.T, m *Manager, queueID string) models.Ticket {
	t.Helper()
	ticket, err := m.JoinQueue(JoinInput{QueueID: queueID, PatientID: "p-" + queueID, PatientName: "Patient"})
	if err != nil {
		t.Fatalf("join queue %s: %v", queueID, err)
	}
	return ticket
}

func mustTransition(t *testing.T, m *Manager, ticketID, to string) models.Ticket {
	t.Helper()
	ticket, err := m.Transition(TransitionInput{
		TicketID:   ticketID,
		ToStatus:   to,
		Operator:   "sys",
		Reason:     "test",
		CallerRole: models.RoleSuper,
	})
	if err != nil {
		t.Fatalf("transition to %s: %v", to, err)
	}
	return ticket
}

// driveTo moves a fresh waiting ticket into the requested state.
func driveTo(t *testing.T, m *Manager, ticketID, state string) {
	t.Helper()
	switch state {
	case models.StatusWaiting:
	case models.StatusInProgress, models.StatusPaused, models.StatusCancelled, models.StatusTransferred, models.StatusMissed:
		mustTransition(t, m, ticketID, state)
	case models.StatusCompleted:
		mustTransition(t, m, ticketID, models.StatusInProgress)
		mustTransition(t, m, ticketID, models.StatusCompleted)
	default:
		t.Fatalf("cannot drive ticket to %q", state)
	}
}

func TestJoinQueueMonotonicNumbersUnderConcurrency(t *testing.T) {
	m := testManager(t, Options{})

	const joins = 50
	var wg sync.WaitGroup
	numbers := make(chan int, joins)
	for i := 0; i < joins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket, err := m.JoinQueue(JoinInput{QueueID: "d1", PatientID: fmt.Sprintf("p%d", i)})
			if err != nil {
				t.Errorf("join: %v", err)
				return
			}
			numbers <- ticket.Number
		}(i)
	}
	wg.Wait()
	close(numbers)

	seen := make(map[int]bool)
	for n := range numbers {
		if seen[n] {
			t.Fatalf("duplicate ticket number %d", n)
		}
		seen[n] = true
	}
	for n := 1; n <= joins; n++ {
		if !seen[n] {
			t.Fatalf("number sequence has a gap at %d", n)
		}
	}

	q, err := m.GetQueue("d1")
	if err != nil {
		t.Fatalf("get queue: %v", err)
	}
	if q.WaitingCount != joins {
		t.Fatalf("waiting count %d, want %d", q.WaitingCount, joins)
	}
}

func TestJoinQueueUnknownAndClosed(t *testing.T) {
	m := testManager(t, Options{})

	if _, err := m.JoinQueue(JoinInput{QueueID: "nope", PatientID: "p1"}); !errors.Is(err, ErrQueueNotFound) {
		t.Fatalf("unknown queue: got %v, want ErrQueueNotFound", err)
	}

	if _, err := m.SetQueueStatus("d1", models.QueueClosed); err != nil {
		t.Fatalf("close queue: %v", err)
	}
	if _, err := m.JoinQueue(JoinInput{QueueID: "d1", PatientID: "p1"}); !errors.Is(err, ErrQueueNotFound) {
		t.Fatalf("closed queue: got %v, want ErrQueueNotFound", err)
	}

	if _, err := m.SetQueueStatus("d1", models.QueuePaused); err != nil {
		t.Fatalf("pause queue: %v", err)
	}
	if _, err := m.JoinQueue(JoinInput{QueueID: "d1", PatientID: "p1"}); err != nil {
		t.Fatalf("paused queue must still accept joins: %v", err)
	}
}

func TestJoinQueueValidation(t *testing.T) {
	m := testManager(t, Options{})

	if _, err := m.JoinQueue(JoinInput{QueueID: "d1"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing patient: got %v, want ErrValidation", err)
	}
	if _, err := m.JoinQueue(JoinInput{QueueID: "d1", PatientID: "p1", Priority: "critical"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown priority: got %v, want ErrValidation", err)
	}

	ticket, err := m.JoinQueue(JoinInput{QueueID: "d1", PatientID: "p1"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if ticket.Priority != models.PriorityNormal {
		t.Fatalf("default priority %q, want normal", ticket.Priority)
	}
	if len(ticket.History) != 1 || ticket.History[0].From != "" || ticket.History[0].To != models.StatusWaiting {
		t.Fatalf("unexpected initial audit entry: %+v", ticket.History)
	}
	if ticket.History[0].Operator != "system" || ticket.History[0].Reason != "joined" {
		t.Fatalf("unexpected initial audit entry: %+v", ticket.History[0])
	}
}

func TestTransitionStateGraphClosure(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			m := testManager(t, Options{})
			ticket := joinTicket(t, m, "d1")
			driveTo(t, m, ticket.TicketID, from)

			_, err := m.Transition(TransitionInput{
				TicketID:   ticket.TicketID,
				ToStatus:   to,
				Operator:   "sys",
				Reason:     "closure",
				CallerRole: models.RoleSuper,
			})
			if ValidTransition(from, to) {
				if err != nil {
					t.Fatalf("(%s -> %s) should succeed, got %v", from, to, err)
				}
			} else {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("(%s -> %s) should fail ErrInvalidTransition, got %v", from, to, err)
				}
			}
		}
	}
}

func TestTerminalImmutability(t *testing.T) {
	terminals := []string{models.StatusCompleted, models.StatusCancelled, models.StatusTransferred, models.StatusMissed}
	for _, terminal := range terminals {
		m := testManager(t, Options{})
		ticket := joinTicket(t, m, "d1")
		driveTo(t, m, ticket.TicketID, terminal)

		for _, to := range allStatuses {
			_, err := m.Transition(TransitionInput{
				TicketID:   ticket.TicketID,
				ToStatus:   to,
				Operator:   "sys",
				CallerRole: models.RoleSuper,
			})
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("terminal %s -> %s: got %v, want ErrInvalidTransition", terminal, to, err)
			}
		}

		got, err := m.GetTicket(ticket.TicketID)
		if err != nil {
			t.Fatalf("get ticket: %v", err)
		}
		if got.CompletedAt == nil {
			t.Fatalf("terminal ticket %s has no completed_at", terminal)
		}
	}
}

func TestElevatedCancelGate(t *testing.T) {
	cases := []struct {
		name       string
		role       string
		callerDept string
		wantDenied bool
	}{
		{"core wrong department", models.RoleCore, "d2", true},
		{"core bound department", models.RoleCore, "d1", false},
		{"super unbound", models.RoleSuper, "", false},
		{"super other department", models.RoleSuper, "d2", false},
		{"admin same department", models.RoleAdmin, "d1", true},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			m := testManager(t, Options{})
			ticket := joinTicket(t, m, "d1")
			mustTransition(t, m, ticket.TicketID, models.StatusInProgress)

			_, err := m.Transition(TransitionInput{
				TicketID:         ticket.TicketID,
				ToStatus:         models.StatusCancelled,
				Operator:         "op",
				Reason:           "emergency",
				CallerRole:       tt.role,
				CallerDepartment: tt.callerDept,
			})
			if tt.wantDenied {
				if !errors.Is(err, ErrPermissionDenied) {
					t.Fatalf("got %v, want ErrPermissionDenied", err)
				}
				got, _ := m.GetTicket(ticket.TicketID)
				if got.Status != models.StatusInProgress {
					t.Fatalf("denied transition must not mutate: status %s", got.Status)
				}
			} else if err != nil {
				t.Fatalf("expected success, got %v", err)
			}
		})
	}
}

func TestCounterConsistency(t *testing.T) {
	m := testManager(t, Options{})

	tickets := make([]models.Ticket, 0, 6)
	for i := 0; i < 6; i++ {
		tickets = append(tickets, joinTicket(t, m, "d1"))
	}

	mustTransition(t, m, tickets[0].TicketID, models.StatusInProgress)
	mustTransition(t, m, tickets[0].TicketID, models.StatusCompleted)
	mustTransition(t, m, tickets[1].TicketID, models.StatusPaused)
	mustTransition(t, m, tickets[1].TicketID, models.StatusWaiting)
	mustTransition(t, m, tickets[2].TicketID, models.StatusCancelled)
	mustTransition(t, m, tickets[3].TicketID, models.StatusMissed)
	mustTransition(t, m, tickets[4].TicketID, models.StatusPaused)

	q, err := m.GetQueue("d1")
	if err != nil {
		t.Fatalf("get queue: %v", err)
	}
	waiting := 0
	for _, item := range q.Items {
		if item.Status == models.StatusWaiting {
			waiting++
		}
	}
	if q.WaitingCount != waiting {
		t.Fatalf("waiting count %d, actual waiting items %d", q.WaitingCount, waiting)
	}
	if q.CurrentNumber != tickets[0].Number {
		t.Fatalf("current number %d, want %d", q.CurrentNumber, tickets[0].Number)
	}
	if len(q.Items) != 6 {
		t.Fatalf("terminal tickets must stay in items, got %d", len(q.Items))
	}
}

func TestCurrentNumberNeverRegresses(t *testing.T) {
	m := testManager(t, Options{})
	first := joinTicket(t, m, "d1")
	second := joinTicket(t, m, "d1")

	mustTransition(t, m, second.TicketID, models.StatusInProgress)
	mustTransition(t, m, first.TicketID, models.StatusInProgress)

	q, _ := m.GetQueue("d1")
	if q.CurrentNumber != second.Number {
		t.Fatalf("current number regressed to %d, want %d", q.CurrentNumber, second.Number)
	}
}

func TestAuditAppendOnlyAndHashChain(t *testing.T) {
	m := testManager(t, Options{})
	ticket := joinTicket(t, m, "d1")

	updated := mustTransition(t, m, ticket.TicketID, models.StatusInProgress)
	if len(updated.History) != 2 {
		t.Fatalf("history length %d, want 2", len(updated.History))
	}

	// A failed transition appends nothing.
	if _, err := m.Transition(TransitionInput{
		TicketID:   ticket.TicketID,
		ToStatus:   models.StatusMissed,
		Operator:   "sys",
		CallerRole: models.RoleSuper,
	}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
	got, _ := m.GetTicket(ticket.TicketID)
	if len(got.History) != 2 {
		t.Fatalf("failed transition must not append, history length %d", len(got.History))
	}

	final := mustTransition(t, m, ticket.TicketID, models.StatusCompleted)
	if len(final.History) != 3 {
		t.Fatalf("history length %d, want 3", len(final.History))
	}
	if last := final.History[len(final.History)-1]; last.To != final.Status {
		t.Fatalf("last audit entry to=%s, ticket status %s", last.To, final.Status)
	}
	if !VerifyHistory(final.TicketID, final.History) {
		t.Fatal("hash chain verification failed")
	}

	// Tampering breaks the chain.
	tampered := append([]models.Transition(nil), final.History...)
	tampered[1].Reason = "edited"
	if VerifyHistory(final.TicketID, tampered) {
		t.Fatal("tampered history must not verify")
	}
}

func TestSetPriority(t *testing.T) {
	m := testManager(t, Options{})
	ticket := joinTicket(t, m, "d1")

	updated, err := m.SetPriority(ticket.TicketID, models.PriorityUrgent)
	if err != nil {
		t.Fatalf("set priority: %v", err)
	}
	if updated.Priority != models.PriorityUrgent {
		t.Fatalf("priority %q, want urgent", updated.Priority)
	}
	if len(updated.History) != 1 {
		t.Fatalf("priority change must not append audit entries, history length %d", len(updated.History))
	}

	if _, err := m.SetPriority(ticket.TicketID, "asap"); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown priority: got %v, want ErrValidation", err)
	}
	if _, err := m.SetPriority("missing", models.PriorityHigh); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("unknown ticket: got %v, want ErrTicketNotFound", err)
	}
}

func TestEndToEndScenario(t *testing.T) {
	m := testManager(t, Options{})
	ticket := joinTicket(t, m, "d1")
	if ticket.Number != 1 || ticket.Status != models.StatusWaiting {
		t.Fatalf("unexpected fresh ticket: %+v", ticket)
	}

	started, err := m.Transition(TransitionInput{
		TicketID: ticket.TicketID, ToStatus: models.StatusInProgress,
		Operator: "sys", Reason: "start", CallerRole: models.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.StartedAt == nil {
		t.Fatal("started_at not set")
	}
	q, _ := m.GetQueue("d1")
	if q.CurrentNumber != 1 || q.WaitingCount != 0 {
		t.Fatalf("queue counters current=%d waiting=%d, want 1/0", q.CurrentNumber, q.WaitingCount)
	}

	done, err := m.Transition(TransitionInput{
		TicketID: ticket.TicketID, ToStatus: models.StatusCompleted,
		Operator: "sys", Reason: "done", CallerRole: models.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
	if len(done.History) != 3 {
		t.Fatalf("history length %d, want 3 (join, start, done)", len(done.History))
	}

	if _, err := m.Transition(TransitionInput{
		TicketID: ticket.TicketID, ToStatus: models.StatusWaiting,
		Operator: "sys", CallerRole: models.RoleAdmin,
	}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
}

func TestStats(t *testing.T) {
	m := testManager(t, Options{})

	d1a := joinTicket(t, m, "d1")
	d1b := joinTicket(t, m, "d1")
	joinTicket(t, m, "d1")
	d2a := joinTicket(t, m, "d2")

	mustTransition(t, m, d1a.TicketID, models.StatusInProgress)
	mustTransition(t, m, d1b.TicketID, models.StatusCancelled)
	if _, err := m.SetPriority(d2a.TicketID, models.PriorityUrgent); err != nil {
		t.Fatalf("set priority: %v", err)
	}

	stats, err := m.Stats(ListFilter{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalQueues != 2 || stats.Total != 4 {
		t.Fatalf("totals queues=%d tickets=%d, want 2/4", stats.TotalQueues, stats.Total)
	}
	if stats.Waiting != 2 || stats.InProgress != 1 || stats.Cancelled != 1 {
		t.Fatalf("status tallies waiting=%d in_progress=%d cancelled=%d", stats.Waiting, stats.InProgress, stats.Cancelled)
	}
	if stats.UrgentPriority != 1 {
		t.Fatalf("urgent tally %d, want 1", stats.UrgentPriority)
	}
	// One waiting ticket in d1 (avg 15) and one in d2 (avg 20).
	if stats.AverageWaitMinutes != 35 {
		t.Fatalf("average wait %d, want 35", stats.AverageWaitMinutes)
	}

	d1Stats, err := m.Stats(ListFilter{DepartmentID: "d1"})
	if err != nil {
		t.Fatalf("filtered stats: %v", err)
	}
	if d1Stats.TotalQueues != 1 || d1Stats.Total != 3 || d1Stats.AverageWaitMinutes != 15 {
		t.Fatalf("filtered stats %+v", d1Stats)
	}
}

func TestStatsConcurrentWithTransitions(t *testing.T) {
	m := testManager(t, Options{})
	tickets := make([]models.Ticket, 0, 20)
	for i := 0; i < 20; i++ {
		tickets = append(tickets, joinTicket(t, m, "d1"))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, ticket := range tickets {
			for _, to := range []string{models.StatusInProgress, models.StatusCompleted} {
				if _, err := m.Transition(TransitionInput{
					TicketID:   ticket.TicketID,
					ToStatus:   to,
					Operator:   "sys",
					CallerRole: models.RoleAdmin,
				}); err != nil {
					t.Errorf("transition to %s: %v", to, err)
					return
				}
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			if _, err := m.Stats(ListFilter{}); err != nil {
				t.Errorf("stats: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	stats, err := m.Stats(ListFilter{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Completed != 20 || stats.Waiting != 0 {
		t.Fatalf("final stats completed=%d waiting=%d, want 20/0", stats.Completed, stats.Waiting)
	}
}

func TestConcurrentTransitionsSameTicket(t *testing.T) {
	m := testManager(t, Options{})
	ticket := joinTicket(t, m, "d1")

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Transition(TransitionInput{
				TicketID:   ticket.TicketID,
				ToStatus:   models.StatusInProgress,
				Operator:   "sys",
				CallerRole: models.RoleAdmin,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("%d concurrent identical transitions succeeded, want exactly 1", succeeded)
	}

	got, _ := m.GetTicket(ticket.TicketID)
	if len(got.History) != 2 {
		t.Fatalf("history length %d, want 2 (no duplicate audit entries)", len(got.History))
	}
}

func TestAutoAdvance(t *testing.T) {
	m := testManager(t, Options{AutoAdvance: true})
	first := joinTicket(t, m, "d1")
	second := joinTicket(t, m, "d1")

	mustTransition(t, m, first.TicketID, models.StatusInProgress)
	mustTransition(t, m, first.TicketID, models.StatusCompleted)

	got, err := m.GetTicket(second.TicketID)
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if got.Status != models.StatusInProgress {
		t.Fatalf("next ticket status %s, want in_progress", got.Status)
	}
	last := got.History[len(got.History)-1]
	if last.Operator != "system" || last.Reason != "auto advance" {
		t.Fatalf("unexpected auto-advance audit entry: %+v", last)
	}

	q, _ := m.GetQueue("d1")
	if q.CurrentNumber != second.Number || q.WaitingCount != 0 {
		t.Fatalf("queue counters current=%d waiting=%d after auto-advance", q.CurrentNumber, q.WaitingCount)
	}
}

type captureRecorder struct {
	mu     sync.Mutex
	events []TransitionEvent
}

func (r *captureRecorder) Record(event TransitionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *captureRecorder) all() []TransitionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TransitionEvent(nil), r.events...)
}

func TestRecorderReceivesCommittedEvents(t *testing.T) {
	recorder := &captureRecorder{}
	m := testManager(t, Options{Recorder: recorder})

	ticket := joinTicket(t, m, "d1")
	mustTransition(t, m, ticket.TicketID, models.StatusInProgress)

	// A failed transition emits nothing.
	if _, err := m.Transition(TransitionInput{
		TicketID:   ticket.TicketID,
		ToStatus:   models.StatusMissed,
		Operator:   "sys",
		CallerRole: models.RoleAdmin,
	}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}

	events := recorder.all()
	if len(events) != 2 {
		t.Fatalf("recorded %d events, want 2", len(events))
	}
	if events[0].From != "" || events[0].To != models.StatusWaiting {
		t.Fatalf("join event %+v", events[0])
	}
	if events[1].From != models.StatusWaiting || events[1].To != models.StatusInProgress {
		t.Fatalf("transition event %+v", events[1])
	}
	if events[1].QueueID != "d1" || events[1].TicketID != ticket.TicketID {
		t.Fatalf("transition event scope %+v", events[1])
	}
	if events[1].PrevHash != events[0].Hash {
		t.Fatal("event hash chain broken")
	}
}

func TestInvalidTransitionMessageNamesBothStates(t *testing.T) {
	m := testManager(t, Options{})
	ticket := joinTicket(t, m, "d1")
	mustTransition(t, m, ticket.TicketID, models.StatusInProgress)

	_, err := m.Transition(TransitionInput{
		TicketID:   ticket.TicketID,
		ToStatus:   models.StatusWaiting,
		Operator:   "sys",
		CallerRole: models.RoleAdmin,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if msg != "invalid transition from in_progress to waiting" {
		t.Fatalf("message %q must name both states", msg)
	}
}

func TestTransitionValidation(t *testing.T) {
	m := testManager(t, Options{})
	ticket := joinTicket(t, m, "d1")

	if _, err := m.Transition(TransitionInput{
		TicketID:   ticket.TicketID,
		ToStatus:   "vanished",
		Operator:   "sys",
		CallerRole: models.RoleAdmin,
	}); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown status: got %v, want ErrValidation", err)
	}

	if _, err := m.Transition(TransitionInput{
		TicketID:   "missing",
		ToStatus:   models.StatusInProgress,
		Operator:   "sys",
		CallerRole: models.RoleAdmin,
	}); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("unknown ticket: got %v, want ErrTicketNotFound", err)
	}
}

func TestListQueuesFilter(t *testing.T) {
	m := testManager(t, Options{})

	all, err := m.ListQueues(ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("listed %d queues, want 2", len(all))
	}

	byGroup, err := m.ListQueues(ListFilter{GroupID: "g2"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(byGroup) != 1 || byGroup[0].DepartmentID != "d2" {
		t.Fatalf("group filter returned %+v", byGroup)
	}

	joinTicket(t, m, "d1")
	byDept, err := m.ListQueues(ListFilter{DepartmentID: "d1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(byDept) != 1 || byDept[0].WaitingCount != 1 {
		t.Fatalf("department filter returned %+v", byDept)
	}
	if byDept[0].EstimatedTime != "15 min" {
		t.Fatalf("estimated time %q, want \"15 min\"", byDept[0].EstimatedTime)
	}
}
