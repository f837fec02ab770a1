// Package postgres implements the order/customer repositories and the audit
// event sink against PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/techaura/outreach-engine/internal/domain"
)

// activeOrderStatuses is the status set that counts as "active or
// confirmed" for gating: anything not cancelled, refunded, or failed.
var activeOrderStatuses = []string{
	"pending", "confirmed", "processing", "ready", "shipped", "delivered", "completed", "paid",
}

// OrderRepo implements gating.OrderRepository and gating.OrderOracle
// against PostgreSQL.
type OrderRepo struct{ db *sql.DB }

// NewOrderRepo creates a Postgres-backed order repository.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// FindOrdersByPhone returns all orders for a customer phone, newest first.
func (r *OrderRepo) FindOrdersByPhone(ctx context.Context, phone string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_number, customer_name, customer_phone, product_type,
		       capacity, genres, artists, status,
		       COALESCE(shipping_name, ''), COALESCE(shipping_address, ''), COALESCE(shipping_city, ''),
		       confirmed_at, created_at
		FROM orders
		WHERE customer_phone = $1
		ORDER BY created_at DESC
	`, phone)
	if err != nil {
		return nil, fmt.Errorf("find orders by phone: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		var genres, artists pq.StringArray
		var confirmedAt sql.NullTime
		if err := rows.Scan(
			&o.ID, &o.OrderNumber, &o.CustomerName, &o.CustomerPhone, &o.ProductType,
			&o.Capacity, &genres, &artists, &o.Status,
			&o.Shipping.Name, &o.Shipping.Address, &o.Shipping.City,
			&confirmedAt, &o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Genres = genres
		o.Artists = artists
		if confirmedAt.Valid {
			t := confirmedAt.Time
			o.ConfirmedAt = &t
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// HasConfirmedOrActiveOrder answers the active-order gate without loading rows.
func (r *OrderRepo) HasConfirmedOrActiveOrder(ctx context.Context, phone string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM orders
			WHERE customer_phone = $1 AND LOWER(status) = ANY($2)
		)
	`, phone, pq.Array(activeOrderStatuses)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("active order check: %w", err)
	}
	return exists, nil
}

// CustomerRepo implements gating.CustomerRepository against PostgreSQL.
type CustomerRepo struct{ db *sql.DB }

// NewCustomerRepo creates a Postgres-backed customer repository.
func NewCustomerRepo(db *sql.DB) *CustomerRepo { return &CustomerRepo{db: db} }

// FindCustomerByPhone returns the customer record for a phone, or (nil, nil)
// when no record exists.
func (r *CustomerRepo) FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	var c domain.Customer
	err := r.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(name, ''), phone, COALESCE(address, ''), COALESCE(city, '')
		FROM customers
		WHERE phone = $1
		LIMIT 1
	`, phone).Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.City)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find customer by phone: %w", err)
	}
	return &c, nil
}
