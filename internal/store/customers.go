package store

import (
	"context"
	"database/sql"
	"fmt"

	"fulfillment-service/internal/fulfillment"
	"fulfillment-service/internal/models"
)

// GetCustomerByID retrieves a customer by ID
func (s *Store) GetCustomerByID(ctx context.Context, id string) (*models.Customer, error) {
	var customer models.Customer
	err := s.db.GetContext(ctx, &customer, "SELECT * FROM customers WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("customer %s: %w", id, fulfillment.ErrCustomerNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// SaveExternalCredentials persists merchant-site credentials on the
// customer record after provisioning
func (s *Store) SaveExternalCredentials(ctx context.Context, customerID, externalID, login, password string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET external_id = $1, external_login = $2, external_password = $3
		WHERE id = $4`,
		externalID, login, password, customerID)
	return err
}
