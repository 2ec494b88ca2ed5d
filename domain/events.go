package domain

import "encoding/json"

const (
	ItemCreated = "item-created"
	ItemUpdated = "item-updated"
	ItemDeleted = "item-deleted"
	ItemMoved   = "item-moved"
)

// RemoteEvent represents a change to a board observed through the realtime
// channel. Actor carries the identifier of the client that originated the
// change so local echoes can be suppressed.
type RemoteEvent struct {
	ID      string          `json:"id"`
	BoardID string          `json:"boardId"`
	ItemID  string          `json:"itemId"`
	Type    string          `json:"type"`
	LaneID  string          `json:"laneId,omitempty"`
	Rank    string          `json:"rank,omitempty"`
	Version int64           `json:"version,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Actor   string          `json:"actor"`
	Time    int64           `json:"time"`
}
