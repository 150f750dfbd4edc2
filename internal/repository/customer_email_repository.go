package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopfront/accounts/internal/database"
	"github.com/shopfront/accounts/internal/model"
)

// CustomerEmailRepository keeps the history of emails sent to customers
type CustomerEmailRepository struct {
	db *database.Postgres
}

// NewCustomerEmailRepository creates a new CustomerEmailRepository
func NewCustomerEmailRepository(db *database.Postgres) *CustomerEmailRepository {
	return &CustomerEmailRepository{db: db}
}

// Create records a sent email
func (r *CustomerEmailRepository) Create(ctx context.Context, e *model.CustomerEmail) error {
	query := `
		INSERT INTO customer_emails (id, user_id, code, recipient, subject, body_text, body_html, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := r.db.ExecContext(ctx, query,
		e.ID, e.UserID, e.Code, e.Recipient, e.Subject, e.BodyText, e.BodyHTML, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to record customer email: %w", err)
	}
	return nil
}

// ListByUser returns a user's emails, newest first
func (r *CustomerEmailRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.CustomerEmail, error) {
	query := `
		SELECT id, user_id, code, recipient, subject, body_text, body_html, created_at
		FROM customer_emails
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list customer emails: %w", err)
	}
	defer rows.Close()

	var emails []*model.CustomerEmail
	for rows.Next() {
		var e model.CustomerEmail
		if err := rows.Scan(&e.ID, &e.UserID, &e.Code, &e.Recipient, &e.Subject, &e.BodyText, &e.BodyHTML, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan customer email: %w", err)
		}
		emails = append(emails, &e)
	}
	return emails, rows.Err()
}

// GetForUser returns one email, only if it belongs to userID
func (r *CustomerEmailRepository) GetForUser(ctx context.Context, userID, id string) (*model.CustomerEmail, error) {
	query := `
		SELECT id, user_id, code, recipient, subject, body_text, body_html, created_at
		FROM customer_emails
		WHERE id = $1 AND user_id = $2
	`
	var e model.CustomerEmail
	err := r.db.QueryRowContext(ctx, query, id, userID).
		Scan(&e.ID, &e.UserID, &e.Code, &e.Recipient, &e.Subject, &e.BodyText, &e.BodyHTML, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer email: %w", err)
	}
	return &e, nil
}
