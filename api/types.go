package api

import (
	"context"

	"boardsync/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	FetchItems(ctx context.Context, boardID string) ([]domain.Item, error)
	MoveItem(ctx context.Context, req domain.MoveRequest) (domain.MoveResult, error)
}

// Notifier lets the stream handler wake up when a board changes. Updates
// returns a channel that receives a signal per change; Release must be
// called when the stream ends.
type Notifier interface {
	Updates(boardID string) <-chan struct{}
	Release(boardID string, ch <-chan struct{})
}

// Deduper remembers the canonical result of confirmed moves by their token
// so a retried request replays the stored placement instead of failing the
// version check against its own committed move.
type Deduper interface {
	// Lookup returns the stored result for a token, if any.
	Lookup(ctx context.Context, boardID, token string) (domain.MoveResult, bool, error)
	// Record stores a confirmed move's result under its token.
	Record(ctx context.Context, boardID, token string, res domain.MoveResult) error
}

const moveRequestMaxSize = 64 * 1024 // 64 KiB

// POST /api/boards/:boardId/moves response body
type moveResponse struct {
	LaneID  string `json:"laneId,omitempty"`
	Rank    string `json:"rank,omitempty"`
	Version int64  `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

type itemsResponse struct {
	Items []domain.Item `json:"items"`
}
