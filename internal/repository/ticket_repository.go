package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propagentic/maintenance-service/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	SubmittedBy *string
	AssignedTo  *string
	LandlordID  *string
	PropertyID  *string
	Statuses    []domain.TicketStatus
	Limit       int
	Offset      int
}

// ExpectedTicketState describes the prior state a conditional update is
// keyed on. A zero CheckAssignee leaves the assignee unverified.
type ExpectedTicketState struct {
	Status         domain.TicketStatus
	AssignedTo     *string
	CheckAssignee  bool
	RejectionCount *int
}

// EscalationUpdate flags one ticket during a sweep commit.
type EscalationUpdate struct {
	TicketID string
	Reason   string
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// UpdateConditional persists the ticket only when the stored row still
	// matches the expected prior state; pgx.ErrNoRows signals a lost race.
	UpdateConditional(ctx context.Context, ticket *domain.Ticket, expect ExpectedTicketState) error
	ListEscalationCandidates(ctx context.Context, statuses []domain.TicketStatus, minUrgency int) ([]domain.Ticket, error)
	// CommitEscalations flags the given tickets in one batch, returning how
	// many rows were actually flagged (already-escalated rows are untouched).
	CommitEscalations(ctx context.Context, updates []EscalationUpdate) (int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, description, category, urgency, status, property_id, submitted_by,
           assigned_to, recommended_contractors, escalated, rejection_count, previously_rejected_by,
           last_rejected_by, last_rejection_reason, escalation_reason, escalated_at,
           fallback_assigned_at, manual_assignment_needed_at,
           created_at, updated_at, classified_at, assigned_at, accepted_at, completed_at`

const ticketColumnsAliased = `t.id, t.description, t.category, t.urgency, t.status, t.property_id, t.submitted_by,
           t.assigned_to, t.recommended_contractors, t.escalated, t.rejection_count, t.previously_rejected_by,
           t.last_rejected_by, t.last_rejection_reason, t.escalation_reason, t.escalated_at,
           t.fallback_assigned_at, t.manual_assignment_needed_at,
           t.created_at, t.updated_at, t.classified_at, t.assigned_at, t.accepted_at, t.completed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (description, status, property_id, submitted_by)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Description,
		ticket.Status,
		ticket.PropertyID,
		ticket.SubmittedBy,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	row := r.pool.QueryRow(ctx, query, id)
	return scanTicketRow(row)
}

func (r *ticketRepository) UpdateConditional(ctx context.Context, ticket *domain.Ticket, expect ExpectedTicketState) error {
	query := `
        UPDATE tickets SET category=$1, urgency=$2, status=$3, assigned_to=$4,
            recommended_contractors=$5, escalated=$6, rejection_count=$7,
            previously_rejected_by=$8, last_rejected_by=$9, last_rejection_reason=$10,
            escalation_reason=$11, escalated_at=$12, fallback_assigned_at=$13,
            manual_assignment_needed_at=$14, classified_at=$15, assigned_at=$16,
            accepted_at=$17, completed_at=$18, updated_at=NOW()
        WHERE id=$19 AND status=$20`
	args := []any{
		ticket.Category,
		ticket.Urgency,
		ticket.Status,
		ticket.AssignedTo,
		ticket.RecommendedContractors,
		ticket.Escalated,
		ticket.Meta.RejectionCount,
		ticket.Meta.PreviouslyRejectedBy,
		ticket.Meta.LastRejectedBy,
		ticket.Meta.LastRejectionReason,
		ticket.Meta.EscalationReason,
		ticket.Meta.EscalatedAt,
		ticket.Meta.FallbackAssignedAt,
		ticket.Meta.ManualAssignmentNeededAt,
		ticket.ClassifiedAt,
		ticket.AssignedAt,
		ticket.AcceptedAt,
		ticket.CompletedAt,
		ticket.ID,
		expect.Status,
	}
	if expect.CheckAssignee {
		args = append(args, expect.AssignedTo)
		query += fmt.Sprintf(" AND assigned_to IS NOT DISTINCT FROM $%d", len(args))
	}
	if expect.RejectionCount != nil {
		args = append(args, *expect.RejectionCount)
		query += fmt.Sprintf(" AND rejection_count=$%d", len(args))
	}

	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := fmt.Sprintf(`SELECT %s FROM tickets t`, ticketColumnsAliased)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.LandlordID != nil {
		base += " JOIN properties p ON p.id = t.property_id"
		args = append(args, *filter.LandlordID)
		clauses = append(clauses, fmt.Sprintf("p.landlord_id=$%d", len(args)))
	}
	if filter.SubmittedBy != nil {
		args = append(args, *filter.SubmittedBy)
		clauses = append(clauses, fmt.Sprintf("t.submitted_by=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("t.assigned_to=$%d", len(args)))
	}
	if filter.PropertyID != nil {
		args = append(args, *filter.PropertyID)
		clauses = append(clauses, fmt.Sprintf("t.property_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY t.updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListEscalationCandidates(ctx context.Context, statuses []domain.TicketStatus, minUrgency int) ([]domain.Ticket, error) {
	placeholders := make([]string, len(statuses))
	args := []any{}
	for i, status := range statuses {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	args = append(args, minUrgency)
	query := fmt.Sprintf(`SELECT %s FROM tickets
        WHERE status IN (%s) AND urgency >= $%d AND escalated = FALSE`,
		ticketColumns, strings.Join(placeholders, ","), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) CommitEscalations(ctx context.Context, updates []EscalationUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	const query = `
        UPDATE tickets SET escalated=TRUE, escalation_reason=$2, escalated_at=NOW(), updated_at=NOW()
        WHERE id=$1 AND escalated=FALSE`

	batch := &pgx.Batch{}
	for _, update := range updates {
		batch.Queue(query, update.TicketID, update.Reason)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	flagged := 0
	for range updates {
		cmd, err := results.Exec()
		if err != nil {
			return flagged, err
		}
		flagged += int(cmd.RowsAffected())
	}
	return flagged, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicketRow(row rowScanner) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Description,
		&ticket.Category,
		&ticket.Urgency,
		&ticket.Status,
		&ticket.PropertyID,
		&ticket.SubmittedBy,
		&ticket.AssignedTo,
		&ticket.RecommendedContractors,
		&ticket.Escalated,
		&ticket.Meta.RejectionCount,
		&ticket.Meta.PreviouslyRejectedBy,
		&ticket.Meta.LastRejectedBy,
		&ticket.Meta.LastRejectionReason,
		&ticket.Meta.EscalationReason,
		&ticket.Meta.EscalatedAt,
		&ticket.Meta.FallbackAssignedAt,
		&ticket.Meta.ManualAssignmentNeededAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClassifiedAt,
		&ticket.AssignedAt,
		&ticket.AcceptedAt,
		&ticket.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicketRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
