package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engify/obo-gateway/internal/domain"
)

// ClientRepository manages registered service-client persistence.
type ClientRepository interface {
	Create(ctx context.Context, client *domain.ServiceClient) error
	GetByClientID(ctx context.Context, clientID string) (*domain.ServiceClient, error)
}

type clientRepository struct {
	pool *pgxpool.Pool
}

// NewClientRepository constructs repository.
func NewClientRepository(pool *pgxpool.Pool) ClientRepository {
	return &clientRepository{pool: pool}
}

func (r *clientRepository) Create(ctx context.Context, client *domain.ServiceClient) error {
	const query = `
        INSERT INTO service_clients (client_id, name, secret_hash, active)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		client.ClientID,
		client.Name,
		client.SecretHash,
		client.Active,
	).Scan(&client.ID, &client.CreatedAt)
}

func (r *clientRepository) GetByClientID(ctx context.Context, clientID string) (*domain.ServiceClient, error) {
	const query = `
        SELECT id, client_id, name, secret_hash, active, created_at
        FROM service_clients WHERE client_id=$1`
	var client domain.ServiceClient
	if err := r.pool.QueryRow(ctx, query, clientID).Scan(
		&client.ID,
		&client.ClientID,
		&client.Name,
		&client.SecretHash,
		&client.Active,
		&client.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &client, nil
}
