package queue

import "hospitalops/queue-service/internal/models"

// transitionMap holds the outgoing edges of the ticket state graph. Terminal
// states have no entry and therefore no outgoing edges.
var transitionMap = map[string][]string{
	models.StatusWaiting: {
		models.StatusInProgress,
		models.StatusPaused,
		models.StatusCancelled,
		models.StatusTransferred,
		models.StatusMissed,
	},
	models.StatusInProgress: {
		models.StatusCompleted,
		models.StatusPaused,
		models.StatusCancelled,
	},
	models.StatusPaused: {
		models.StatusWaiting,
		models.StatusInProgress,
		models.StatusCancelled,
	},
}

func ValidTransition(from, to string) bool {
	allowed, ok := transitionMap[from]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == to {
			return true
		}
	}
	return false
}

// RequiresElevation flags structurally valid edges that need more than
// ordinary staff authentication. Cancelling a consultation that is already
// underway is the only such edge.
func RequiresElevation(from, to string) bool {
	return from == models.StatusInProgress && to == models.StatusCancelled
}

// Authorized decides an elevated transition given the caller's role and
// department binding. Super acts anywhere; core only within the department
// it is bound to.
func Authorized(role, callerDepartment, ticketDepartment string) bool {
	switch role {
	case models.RoleSuper:
		return true
	case models.RoleCore:
		return callerDepartment != "" && callerDepartment == ticketDepartment
	default:
		return false
	}
}
