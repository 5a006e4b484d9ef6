package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propagentic/maintenance-service/internal/domain"
)

// PropertyRepository resolves properties and their owning landlords.
type PropertyRepository interface {
	Create(ctx context.Context, property *domain.Property) error
	GetByID(ctx context.Context, id string) (*domain.Property, error)
	ResolveLandlord(ctx context.Context, propertyID string) (string, error)
}

type propertyRepository struct {
	pool *pgxpool.Pool
}

// NewPropertyRepository builds repository.
func NewPropertyRepository(pool *pgxpool.Pool) PropertyRepository {
	return &propertyRepository{pool: pool}
}

func (r *propertyRepository) Create(ctx context.Context, property *domain.Property) error {
	const query = `
        INSERT INTO properties (landlord_id, address)
        VALUES ($1,$2)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		property.LandlordID,
		property.Address,
	).Scan(&property.ID, &property.CreatedAt, &property.UpdatedAt)
}

func (r *propertyRepository) GetByID(ctx context.Context, id string) (*domain.Property, error) {
	const query = `
        SELECT id, landlord_id, address, created_at, updated_at
        FROM properties WHERE id=$1`
	var property domain.Property
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&property.ID,
		&property.LandlordID,
		&property.Address,
		&property.CreatedAt,
		&property.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &property, nil
}

func (r *propertyRepository) ResolveLandlord(ctx context.Context, propertyID string) (string, error) {
	const query = `SELECT landlord_id FROM properties WHERE id=$1`
	var landlordID string
	if err := r.pool.QueryRow(ctx, query, propertyID).Scan(&landlordID); err != nil {
		return "", err
	}
	return landlordID, nil
}
