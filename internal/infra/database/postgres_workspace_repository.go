package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq" // For pq.Array

	"lesson_planner_bot/internal/domain/workspace"
)

var ErrWorkspaceNotFound = errors.New("workspace not found")

type PostgresWorkspaceRepository struct {
	db *sql.DB
}

func NewPostgresWorkspaceRepository(db *sql.DB) *PostgresWorkspaceRepository {
	return &PostgresWorkspaceRepository{db: db}
}

func (r *PostgresWorkspaceRepository) Get(ctx context.Context, telegramID int64) (*workspace.State, error) {
	query := `SELECT telegram_id, selected_class_id, selected_chat_id, open_class_ids, updated_at
               FROM workspaces WHERE telegram_id = $1`
	st := &workspace.State{}
	err := r.db.QueryRowContext(ctx, query, telegramID).Scan(
		&st.TelegramID, &st.SelectedClassID, &st.SelectedChatID, pq.Array(&st.OpenClassIDs), &st.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("error getting workspace: %w", err)
	}
	return st, nil
}

func (r *PostgresWorkspaceRepository) Save(ctx context.Context, st *workspace.State) error {
	open := st.OpenClassIDs
	if open == nil {
		open = []string{}
	}
	query := `INSERT INTO workspaces (telegram_id, selected_class_id, selected_chat_id, open_class_ids, updated_at)
               VALUES ($1, $2, $3, $4, NOW())
               ON CONFLICT (telegram_id) DO UPDATE
               SET selected_class_id = EXCLUDED.selected_class_id,
                   selected_chat_id = EXCLUDED.selected_chat_id,
                   open_class_ids = EXCLUDED.open_class_ids,
                   updated_at = NOW()
               RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query, st.TelegramID, st.SelectedClassID, st.SelectedChatID, pq.Array(open)).Scan(&st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error saving workspace: %w", err)
	}
	return nil
}

func (r *PostgresWorkspaceRepository) Delete(ctx context.Context, telegramID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM workspaces WHERE telegram_id = $1`, telegramID); err != nil {
		return fmt.Errorf("error deleting workspace: %w", err)
	}
	return nil
}
