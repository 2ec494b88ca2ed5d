package domain

import "encoding/json"

// Item represents a single board card in the local read model. Rank is a
// base-36 string key; lexicographic comparison of ranks equals board order
// within a lane. Version increases monotonically on every server-confirmed
// change and drives the optimistic concurrency checks.
type Item struct {
	ID      string          `json:"id"`
	LaneID  string          `json:"laneId"`
	Rank    string          `json:"rank"`
	Version int64           `json:"version"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Lane is a named bucket of items rendered as one ordered column. Lanes are
// configured externally; the engine never creates or deletes them.
type Lane struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}
