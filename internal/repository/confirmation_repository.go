package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kerane/projectdesk-api/internal/models"
)

// ConfirmationRepository persists confirmation tokens.
type ConfirmationRepository struct {
	db *sqlx.DB
}

// NewConfirmationRepository constructs the repository.
func NewConfirmationRepository(db *sqlx.DB) *ConfirmationRepository {
	return &ConfirmationRepository{db: db}
}

// Create inserts a new token row.
func (r *ConfirmationRepository) Create(ctx context.Context, token *models.ConfirmationToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	token.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO confirmation_tokens (id, token, type, user_id, entity_type, entity_id, metadata, confirmed, confirmed_at, expires_at, created_at)
	VALUES (:id, :token, :type, :user_id, :entity_type, :entity_id, :metadata, :confirmed, :confirmed_at, :expires_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create confirmation token: %w", err)
	}
	return nil
}

// GetByToken fetches a token row by its opaque token value.
func (r *ConfirmationRepository) GetByToken(ctx context.Context, token string) (*models.ConfirmationToken, error) {
	const query = `SELECT id, token, type, user_id, entity_type, entity_id, metadata, confirmed, confirmed_at, expires_at, created_at
	FROM confirmation_tokens WHERE token = $1`
	var row models.ConfirmationToken
	if err := r.db.GetContext(ctx, &row, query, token); err != nil {
		return nil, err
	}
	return &row, nil
}

// MarkConfirmed flips the token to confirmed only if it is still unused and
// unexpired. Returns false when the conditional update matched no row, which
// means a concurrent consumer won or the token lapsed in between.
func (r *ConfirmationRepository) MarkConfirmed(ctx context.Context, token string, now time.Time) (bool, error) {
	const query = `UPDATE confirmation_tokens SET confirmed = TRUE, confirmed_at = $2
	WHERE token = $1 AND confirmed = FALSE AND expires_at > $2`
	result, err := r.db.ExecContext(ctx, query, token, now)
	if err != nil {
		return false, fmt.Errorf("mark token confirmed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check token update rows: %w", err)
	}
	return rows == 1, nil
}
