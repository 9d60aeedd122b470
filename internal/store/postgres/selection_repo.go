package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chatsync/internal/domain"
)

// SelectionRepo is the shared-database variant of the selection pointer.
type SelectionRepo struct {
	db *sql.DB
}

func NewSelectionRepo(db *sql.DB) *SelectionRepo {
	return &SelectionRepo{db: db}
}

var _ domain.SelectionRepository = (*SelectionRepo)(nil)

func (r *SelectionRepo) GetLastSelected(ctx context.Context, accountID string) (string, error) {
	var convID string
	err := r.db.QueryRowContext(ctx, `SELECT conv_id FROM chatsync_selections WHERE account_id = $1`, accountID).Scan(&convID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get selection: %w", err)
	}
	return convID, nil
}

func (r *SelectionRepo) SetLastSelected(ctx context.Context, accountID, convID string) error {
	query := `
		INSERT INTO chatsync_selections (account_id, conv_id, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account_id) DO UPDATE SET conv_id = EXCLUDED.conv_id, updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, accountID, convID); err != nil {
		return fmt.Errorf("set selection: %w", err)
	}
	return nil
}

func (r *SelectionRepo) ClearLastSelected(ctx context.Context, accountID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM chatsync_selections WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("clear selection: %w", err)
	}
	return nil
}
