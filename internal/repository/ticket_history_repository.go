package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propagentic/maintenance-service/internal/domain"
)

// TicketHistoryRepository stores lifecycle audit entries and the
// per-ticket escalation log.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error)
	CreateEscalationEntry(ctx context.Context, entry *domain.EscalationLogEntry) error
	ListEscalations(ctx context.Context, ticketID string) ([]domain.EscalationLogEntry, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

func (r *ticketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	const query = `
        INSERT INTO ticket_history (ticket_id, actor_id, actor_role, change_type, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		history.TicketID,
		history.ActorID,
		history.ActorRole,
		history.ChangeType,
		history.OldValue,
		history.NewValue,
	).Scan(&history.ID, &history.CreatedAt)
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	const query = `
        SELECT id, ticket_id, actor_id, actor_role, change_type, old_value, new_value, created_at
        FROM ticket_history WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var history domain.TicketHistory
		if err := rows.Scan(
			&history.ID,
			&history.TicketID,
			&history.ActorID,
			&history.ActorRole,
			&history.ChangeType,
			&history.OldValue,
			&history.NewValue,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}

func (r *ticketHistoryRepository) CreateEscalationEntry(ctx context.Context, entry *domain.EscalationLogEntry) error {
	const query = `
        INSERT INTO escalation_log (ticket_id, reason, urgency, elapsed_minutes, manual)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.TicketID,
		entry.Reason,
		entry.Urgency,
		entry.ElapsedMinutes,
		entry.Manual,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *ticketHistoryRepository) ListEscalations(ctx context.Context, ticketID string) ([]domain.EscalationLogEntry, error) {
	const query = `
        SELECT id, ticket_id, reason, urgency, elapsed_minutes, manual, created_at
        FROM escalation_log WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EscalationLogEntry
	for rows.Next() {
		var entry domain.EscalationLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.Reason,
			&entry.Urgency,
			&entry.ElapsedMinutes,
			&entry.Manual,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
