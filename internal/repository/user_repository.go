package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propagentic/maintenance-service/internal/domain"
)

// UserRepository defines persistence access for all workflow parties,
// including the contractor matching view and landlord rolodex.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListAdmins(ctx context.Context) ([]domain.User, error)
	// FindContractors returns available contractors covering the category,
	// excluding the given IDs, ordered by rating descending then ID ascending.
	FindContractors(ctx context.Context, category domain.TicketCategory, excluding []string, availableOnly bool, limit int) ([]domain.Contractor, error)
	// ListRolodex returns the landlord's preferred contractor IDs.
	ListRolodex(ctx context.Context, landlordID string) ([]string, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, name, email, phone, password_hash, role,
           pref_email, pref_sms, pref_push, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (name, email, phone, password_hash, role, pref_email, pref_sms, pref_push)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		user.Name,
		user.Email,
		user.Phone,
		user.PasswordHash,
		user.Role,
		user.Preferences.Email,
		user.Preferences.SMS,
		user.Preferences.Push,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE users SET name=$1, email=$2, phone=$3, password_hash=$4,
            pref_email=$5, pref_sms=$6, pref_push=$7, updated_at=NOW()
        WHERE id=$8`

	cmd, err := r.pool.Exec(ctx, query,
		user.Name,
		user.Email,
		user.Phone,
		user.PasswordHash,
		user.Preferences.Email,
		user.Preferences.SMS,
		user.Preferences.Push,
		user.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id=$1`, userColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email=$1`, userColumns)
	return r.fetchSingle(ctx, query, email)
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Phone,
		&user.PasswordHash,
		&user.Role,
		&user.Preferences.Email,
		&user.Preferences.SMS,
		&user.Preferences.Push,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) ListAdmins(ctx context.Context) ([]domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE role=$1 ORDER BY created_at ASC`, userColumns)
	rows, err := r.pool.Query(ctx, query, domain.UserRoleAdmin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(
			&user.ID,
			&user.Name,
			&user.Email,
			&user.Phone,
			&user.PasswordHash,
			&user.Role,
			&user.Preferences.Email,
			&user.Preferences.SMS,
			&user.Preferences.Push,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

func (r *userRepository) FindContractors(ctx context.Context, category domain.TicketCategory, excluding []string, availableOnly bool, limit int) ([]domain.Contractor, error) {
	clauses := []string{"role=$1", "$2 = ANY(skills)"}
	args := []any{domain.UserRoleContractor, string(category)}

	if availableOnly {
		clauses = append(clauses, "available = TRUE")
	}
	if len(excluding) > 0 {
		args = append(args, excluding)
		clauses = append(clauses, fmt.Sprintf("NOT (id::text = ANY($%d))", len(args)))
	}
	if limit <= 0 {
		limit = 5
	}

	query := fmt.Sprintf(`
        SELECT id, name, skills, available, rating
        FROM users WHERE %s
        ORDER BY rating DESC, id ASC
        LIMIT %d`, strings.Join(clauses, " AND "), limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Contractor
	for rows.Next() {
		var contractor domain.Contractor
		var skills []string
		if err := rows.Scan(
			&contractor.ID,
			&contractor.Name,
			&skills,
			&contractor.Available,
			&contractor.Rating,
		); err != nil {
			return nil, err
		}
		for _, skill := range skills {
			contractor.Skills = append(contractor.Skills, domain.TicketCategory(skill))
		}
		result = append(result, contractor)
	}
	return result, rows.Err()
}

func (r *userRepository) ListRolodex(ctx context.Context, landlordID string) ([]string, error) {
	const query = `SELECT contractor_id FROM landlord_rolodex WHERE landlord_id=$1`
	rows, err := r.pool.Query(ctx, query, landlordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	return result, rows.Err()
}
