package events

import (
	"context"

	"hospitalops/queue-service/internal/queue"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Archive appends transition events to the ticket_transitions table. The
// table is append-only; the hash chain carried on each row lets auditors
// verify a ticket's history independently of the process that wrote it.
type Archive struct {
	pool *pgxpool.Pool
}

func NewArchive(pool *pgxpool.Pool) *Archive {
	return &Archive{pool: pool}
}

func (a *Archive) Handle(ctx context.Context, event queue.TransitionEvent) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO ticket_transitions (
			ticket_id, queue_id, department_id, ticket_number,
			from_status, to_status, operator, reason, occurred_at, prev_hash, hash
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (hash) DO NOTHING
	`, event.TicketID, event.QueueID, event.DepartmentID, event.Number,
		nullIfEmpty(event.From), event.To, event.Operator, event.Reason,
		event.Timestamp, nullIfEmpty(event.PrevHash), event.Hash)
	return err
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
