package board

import (
	"fmt"
	"sort"

	"boardsync/domain"
)

// ItemState is the rollback snapshot of a single item's placement taken
// before an optimistic move.
type ItemState struct {
	ItemID  string
	LaneID  string
	Rank    string
	Version int64
}

// Collection owns the local copy of a board's items partitioned by lane.
// Each lane keeps a cached sequence sorted by (rank, id); position lookups
// binary-search that sequence. Collection is not safe for concurrent use;
// the Engine serializes access to it.
type Collection struct {
	items map[string]*domain.Item
	lanes map[string][]*domain.Item
}

func NewCollection() *Collection {
	return &Collection{
		items: map[string]*domain.Item{},
		lanes: map[string][]*domain.Item{},
	}
}

// Load replaces the collection contents with the given items.
func (c *Collection) Load(items []domain.Item) {
	c.items = make(map[string]*domain.Item, len(items))
	c.lanes = map[string][]*domain.Item{}
	for i := range items {
		it := items[i]
		c.insert(&it)
	}
}

// Get returns a copy of the item with the given id.
func (c *Collection) Get(id string) (domain.Item, bool) {
	it, ok := c.items[id]
	if !ok {
		return domain.Item{}, false
	}
	return *it, true
}

// Len reports the total number of items across all lanes.
func (c *Collection) Len() int {
	return len(c.items)
}

// Snapshot returns the lane's items in rank order. The returned slice is a
// copy; callers may retain it across later mutations.
func (c *Collection) Snapshot(laneID string) []domain.Item {
	lane := c.lanes[laneID]
	out := make([]domain.Item, len(lane))
	for i, it := range lane {
		out[i] = *it
	}
	return out
}

// MoveLocal applies an optimistic move and returns the item's prior
// placement for rollback. The version is left untouched: only the server
// advances versions.
func (c *Collection) MoveLocal(itemID, laneID, rank string) (ItemState, error) {
	it, ok := c.items[itemID]
	if !ok {
		return ItemState{}, fmt.Errorf("move %s: %w", itemID, domain.ErrItemNotFound)
	}
	prior := ItemState{ItemID: itemID, LaneID: it.LaneID, Rank: it.Rank, Version: it.Version}
	c.place(it, laneID, rank)
	return prior, nil
}

// Restore puts an item back to a previously captured placement. Restoring
// an item that was removed in the meantime is a no-op.
func (c *Collection) Restore(st ItemState) {
	it, ok := c.items[st.ItemID]
	if !ok {
		return
	}
	c.place(it, st.LaneID, st.Rank)
	it.Version = st.Version
}

// Commit overwrites an item's placement with the server's canonical
// lane, rank and version after a confirmed move.
func (c *Collection) Commit(itemID string, res domain.MoveResult) {
	it, ok := c.items[itemID]
	if !ok {
		return
	}
	c.place(it, res.LaneID, res.Rank)
	it.Version = res.Version
}

// ApplyRemote merges a remote event into the collection and reports whether
// it changed anything. Updated, Moved and Deleted events carrying a version
// at or below the item's current version are skipped: this is the guard that
// keeps a slow echo from undoing fresher state.
func (c *Collection) ApplyRemote(ev domain.RemoteEvent) bool {
	switch ev.Type {
	case domain.ItemCreated:
		if cur, ok := c.items[ev.ItemID]; ok {
			if ev.Version <= cur.Version {
				return false
			}
			c.place(cur, ev.LaneID, ev.Rank)
			cur.Version = ev.Version
			if len(ev.Payload) > 0 {
				cur.Payload = ev.Payload
			}
			return true
		}
		c.insert(&domain.Item{
			ID:      ev.ItemID,
			LaneID:  ev.LaneID,
			Rank:    ev.Rank,
			Version: ev.Version,
			Payload: ev.Payload,
		})
		return true
	case domain.ItemDeleted:
		cur, ok := c.items[ev.ItemID]
		if !ok {
			return false
		}
		if ev.Version != 0 && ev.Version <= cur.Version {
			return false
		}
		c.detach(cur)
		delete(c.items, ev.ItemID)
		return true
	case domain.ItemUpdated, domain.ItemMoved:
		cur, ok := c.items[ev.ItemID]
		if !ok {
			return false
		}
		if ev.Version <= cur.Version {
			return false
		}
		lane, rk := cur.LaneID, cur.Rank
		if ev.LaneID != "" {
			lane = ev.LaneID
		}
		if ev.Rank != "" {
			rk = ev.Rank
		}
		c.place(cur, lane, rk)
		cur.Version = ev.Version
		if len(ev.Payload) > 0 {
			cur.Payload = ev.Payload
		}
		return true
	default:
		return false
	}
}

// Neighbors returns the ranks bounding the slot described by beforeID and
// afterID in the lane, ignoring excludeID so an item being moved does not
// bound its own target slot.
func (c *Collection) Neighbors(laneID, beforeID, afterID, excludeID string) (low, high string) {
	if beforeID != "" && beforeID != excludeID {
		if it, ok := c.items[beforeID]; ok && it.LaneID == laneID {
			low = it.Rank
		}
	}
	if afterID != "" && afterID != excludeID {
		if it, ok := c.items[afterID]; ok && it.LaneID == laneID {
			high = it.Rank
		}
	}
	return low, high
}

func (c *Collection) insert(it *domain.Item) {
	c.items[it.ID] = it
	lane := c.lanes[it.LaneID]
	pos := searchLane(lane, it.Rank, it.ID)
	lane = append(lane, nil)
	copy(lane[pos+1:], lane[pos:])
	lane[pos] = it
	c.lanes[it.LaneID] = lane
}

func (c *Collection) detach(it *domain.Item) {
	lane := c.lanes[it.LaneID]
	pos := searchLane(lane, it.Rank, it.ID)
	if pos < len(lane) && lane[pos] == it {
		c.lanes[it.LaneID] = append(lane[:pos], lane[pos+1:]...)
		return
	}
	// Rank cache out of step with the item; fall back to a scan.
	for i, cur := range lane {
		if cur == it {
			c.lanes[it.LaneID] = append(lane[:i], lane[i+1:]...)
			return
		}
	}
}

func (c *Collection) place(it *domain.Item, laneID, rank string) {
	c.detach(it)
	it.LaneID = laneID
	it.Rank = rank
	lane := c.lanes[laneID]
	pos := searchLane(lane, rank, it.ID)
	lane = append(lane, nil)
	copy(lane[pos+1:], lane[pos:])
	lane[pos] = it
	c.lanes[laneID] = lane
}

// searchLane returns the insertion position for (rank, id) in a lane sorted
// by rank with the item id as a stable tie-break.
func searchLane(lane []*domain.Item, rank, id string) int {
	return sort.Search(len(lane), func(i int) bool {
		if lane[i].Rank != rank {
			return lane[i].Rank > rank
		}
		return lane[i].ID >= id
	})
}
