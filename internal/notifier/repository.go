package notifier

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/marx5/storefront/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SaveNotification(ctx context.Context, event domain.NotificationEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, type, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)`,
		uuid.New().String(), event.UserID, event.Title, event.Message, event.Type, event.Timestamp,
	)
	return err
}
