package queue

import (
	"crypto/sha256"
	"fmt"
	"time"

	"hospitalops/queue-service/internal/models"
)

// ComputeTransitionHash chains an audit record to its predecessor. The chain
// makes silent truncation or reordering of a ticket's history detectable.
func ComputeTransitionHash(prevHash, ticketID, from, to, operator, reason string, timestamp time.Time) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s", prevHash, ticketID, from, to, operator, reason, timestamp.UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyHistory recomputes the hash chain over a ticket's transition history
// and reports whether it is intact and ordered.
func VerifyHistory(ticketID string, history []models.Transition) bool {
	prevHash := ""
	var prevTime time.Time
	for _, record := range history {
		if record.PrevHash != prevHash {
			return false
		}
		if record.Timestamp.Before(prevTime) {
			return false
		}
		expected := ComputeTransitionHash(prevHash, ticketID, record.From, record.To, record.Operator, record.Reason, record.Timestamp)
		if record.Hash != expected {
			return false
		}
		prevHash = record.Hash
		prevTime = record.Timestamp
	}
	return true
}
