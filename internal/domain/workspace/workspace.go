// internal/domain/workspace/workspace.go
package workspace

import (
	"context"
	"time"
)

// State is the persisted part of a teacher's lesson-planning workspace:
// which classroom and chat are selected and which classrooms are expanded.
// Corresponds to the 'workspaces' table.
type State struct {
	TelegramID      int64
	SelectedClassID string
	SelectedChatID  string
	OpenClassIDs    []string
	UpdatedAt       time.Time
}

// Repository persists workspace state keyed by Telegram user ID.
type Repository interface {
	Get(ctx context.Context, telegramID int64) (*State, error)
	Save(ctx context.Context, state *State) error // upsert
	Delete(ctx context.Context, telegramID int64) error
}
