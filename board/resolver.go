package board

// Point is a pointer position in board coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned bounding box.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

func (r Rect) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// LaneGeometry is the rendered bounding region of a whole lane, including
// its header and any empty space below the last card.
type LaneGeometry struct {
	LaneID string
	Bounds Rect
}

// ItemGeometry is the rendered rectangle of a single card.
type ItemGeometry struct {
	ItemID string
	LaneID string
	Bounds Rect
}

// DropTarget names the slot a drag would land in: the lane plus the
// neighboring item ids around the insertion point. An empty BeforeID means
// the slot is at the head of the lane, an empty AfterID the tail.
type DropTarget struct {
	LaneID   string
	BeforeID string
	AfterID  string
}

// Resolver translates pointer positions into drop targets against the
// collection's current order. It holds no per-drag state.
type Resolver struct {
	col *Collection
}

func NewResolver(col *Collection) *Resolver {
	return &Resolver{col: col}
}

// Resolve determines the target slot for a pointer position, trying in
// order: the lane's empty/header region (whole-lane drop), direct item
// containment (insert above the hovered card), and nearest card center
// across all lanes. Containment alone misses drops over gaps in sparse
// lanes, and nearest-center alone steals whole-lane drops for a stray card,
// so lane regions are checked first. Returns false when the pointer is
// outside every known region.
func (r *Resolver) Resolve(p Point, lanes []LaneGeometry, items []ItemGeometry, draggedID string) (DropTarget, bool) {
	var hovered *ItemGeometry
	hoverCount := 0
	for i := range items {
		if items[i].ItemID == draggedID {
			continue
		}
		if items[i].Bounds.Contains(p) {
			hovered = &items[i]
			hoverCount++
		}
	}

	for i := range lanes {
		lg := &lanes[i]
		if !lg.Bounds.Contains(p) {
			continue
		}
		if hovered != nil && hovered.LaneID == lg.LaneID {
			break
		}
		// Empty or header region of the lane: whole-lane drop. The upper
		// half prepends, the lower half appends.
		if p.Y < lg.Bounds.Y+lg.Bounds.H/2 {
			return r.prepend(lg.LaneID), true
		}
		return r.append(lg.LaneID), true
	}

	if hoverCount == 1 {
		return r.insertAbove(hovered), true
	}

	if nearest := nearestItem(p, items, draggedID); nearest != nil {
		if p.Y > nearest.Bounds.Center().Y {
			return r.insertBelow(nearest), true
		}
		return r.insertAbove(nearest), true
	}

	return DropTarget{}, false
}

func (r *Resolver) prepend(laneID string) DropTarget {
	t := DropTarget{LaneID: laneID}
	if lane := r.col.Snapshot(laneID); len(lane) > 0 {
		t.AfterID = lane[0].ID
	}
	return t
}

func (r *Resolver) append(laneID string) DropTarget {
	t := DropTarget{LaneID: laneID}
	if lane := r.col.Snapshot(laneID); len(lane) > 0 {
		t.BeforeID = lane[len(lane)-1].ID
	}
	return t
}

// insertAbove targets the slot directly above the given card.
func (r *Resolver) insertAbove(g *ItemGeometry) DropTarget {
	t := DropTarget{LaneID: g.LaneID, AfterID: g.ItemID}
	lane := r.col.Snapshot(g.LaneID)
	for i := range lane {
		if lane[i].ID == g.ItemID {
			if i > 0 {
				t.BeforeID = lane[i-1].ID
			}
			break
		}
	}
	return t
}

// insertBelow targets the slot directly below the given card.
func (r *Resolver) insertBelow(g *ItemGeometry) DropTarget {
	t := DropTarget{LaneID: g.LaneID, BeforeID: g.ItemID}
	lane := r.col.Snapshot(g.LaneID)
	for i := range lane {
		if lane[i].ID == g.ItemID {
			if i+1 < len(lane) {
				t.AfterID = lane[i+1].ID
			}
			break
		}
	}
	return t
}

func nearestItem(p Point, items []ItemGeometry, draggedID string) *ItemGeometry {
	var best *ItemGeometry
	bestDist := 0.0
	for i := range items {
		if items[i].ItemID == draggedID {
			continue
		}
		c := items[i].Bounds.Center()
		dx, dy := c.X-p.X, c.Y-p.Y
		d := dx*dx + dy*dy
		if best == nil || d < bestDist {
			best = &items[i]
			bestDist = d
		}
	}
	return best
}
