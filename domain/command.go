package domain

// MoveRequest is the write request issued to the persistence gateway when a
// drop is confirmed. Rank is the client's optimistic guess; BeforeID and
// AfterID are the neighbor hints the guess was derived from, letting the
// server re-derive a canonical rank when siblings moved concurrently.
// Version must match the server's current version or the move is rejected.
type MoveRequest struct {
	// Token correlates the request with the pending move that issued it.
	Token    string `json:"token,omitempty"`
	BoardID  string `json:"boardId"`
	ItemID   string `json:"itemId"`
	LaneID   string `json:"laneId"`
	Rank     string `json:"rank"`
	BeforeID string `json:"beforeId,omitempty"`
	AfterID  string `json:"afterId,omitempty"`
	Version  int64  `json:"version"`
}

// MoveResult carries the server's canonical placement after a confirmed move.
type MoveResult struct {
	LaneID  string `json:"laneId"`
	Rank    string `json:"rank"`
	Version int64  `json:"version"`
}
