// Package board implements the ordering and synchronization core behind the
// kanban views: the in-memory item collection, drop resolution for drag
// gestures, optimistic move coordination against a persistence gateway, and
// reconciliation of remote change events.
package board

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
	"boardsync/rank"
)

// Gateway persists confirmed moves. Implementations must enforce optimistic
// concurrency: a request whose Version does not match the stored item fails
// with domain.ErrVersionConflict instead of overwriting.
type Gateway interface {
	MoveItem(ctx context.Context, req domain.MoveRequest) (domain.MoveResult, error)
}

// MoveStatus describes how a drag resolved.
type MoveStatus int

const (
	// MoveNone means the drag ended without a target; nothing changed.
	MoveNone MoveStatus = iota
	// MoveNoop means the drop landed back on the item's current slot.
	MoveNoop
	// MoveCommitted means the gateway confirmed the move and the collection
	// holds the server's canonical placement.
	MoveCommitted
	// MoveRolledBack means the gateway rejected or failed the move and the
	// collection was restored to its pre-move state.
	MoveRolledBack
)

// MoveOutcome reports the result of EndDrag.
type MoveOutcome struct {
	Status  MoveStatus
	ItemID  string
	LaneID  string
	Rank    string
	Version int64
}

// pendingMove tracks a single in-flight move. At most one exists per item.
type pendingMove struct {
	token  string
	prior  ItemState
	target domain.MoveRequest
}

// Config carries the collaborators an Engine needs.
type Config struct {
	BoardID string
	// Actor identifies this client on the realtime channel; events tagged
	// with it are treated as echoes.
	Actor   string
	Gateway Gateway
	Logger  *log.Logger
}

// Engine is the single entry point presentation code talks to. All public
// methods serialize on one mutex, which is the single-writer funnel the
// collection relies on; the gateway round-trip itself runs outside the lock
// so remote events keep flowing while a move is awaited.
type Engine struct {
	boardID  string
	actor    string
	gw       Gateway
	logger   *log.Logger
	resolver *Resolver

	mu       sync.Mutex
	col      *Collection
	pending  map[string]*pendingMove
	buffered map[string]domain.RemoteEvent
	drag     *dragState
	lanes    []LaneGeometry
	geometry []ItemGeometry
	subs     []func()
}

type dragState struct {
	itemID    string
	target    DropTarget
	hasTarget bool
}

func NewEngine(cfg Config) *Engine {
	if cfg.Gateway == nil {
		panic("board.NewEngine: gateway is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New()
	}
	col := NewCollection()
	return &Engine{
		boardID:  cfg.BoardID,
		actor:    cfg.Actor,
		gw:       cfg.Gateway,
		logger:   cfg.Logger,
		col:      col,
		resolver: NewResolver(col),
		pending:  map[string]*pendingMove{},
		buffered: map[string]domain.RemoteEvent{},
	}
}

// Load replaces the board contents, typically from an initial fetch.
func (e *Engine) Load(items []domain.Item) {
	e.mu.Lock()
	e.col.Load(items)
	e.mu.Unlock()
	e.notify()
}

// OrderedItems returns the lane's items in rank order.
func (e *Engine) OrderedItems(laneID string) []domain.Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.col.Snapshot(laneID)
}

// Item returns a copy of a single item.
func (e *Engine) Item(id string) (domain.Item, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.col.Get(id)
}

// SetGeometry supplies the rendered lane and card rectangles used to resolve
// drops. The presentation adapter refreshes these on layout changes.
func (e *Engine) SetGeometry(lanes []LaneGeometry, items []ItemGeometry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lanes = lanes
	e.geometry = items
}

// Subscribe registers a callback invoked after every change to the
// collection. Callbacks run outside the engine lock.
func (e *Engine) Subscribe(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, fn)
}

// BeginDrag starts a drag for an item. It fails when the item is unknown or
// already has a move in flight; the UI disables drag affordances in that
// case, but the engine defends the invariant regardless.
func (e *Engine) BeginDrag(itemID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.col.Get(itemID); !ok {
		return fmt.Errorf("begin drag %s: %w", itemID, domain.ErrItemNotFound)
	}
	if _, inFlight := e.pending[itemID]; inFlight {
		return fmt.Errorf("begin drag %s: %w", itemID, domain.ErrConcurrentMove)
	}
	e.drag = &dragState{itemID: itemID}
	return nil
}

// UpdateDragPosition re-resolves the drop target for the current pointer
// position. It is a no-op without an active drag.
func (e *Engine) UpdateDragPosition(p Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drag == nil {
		return
	}
	target, ok := e.resolver.Resolve(p, e.lanes, e.geometry, e.drag.itemID)
	e.drag.target = target
	e.drag.hasTarget = ok
}

// DropTarget exposes the currently resolved slot so the adapter can render
// an insertion indicator.
func (e *Engine) DropTarget() (DropTarget, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drag == nil || !e.drag.hasTarget {
		return DropTarget{}, false
	}
	return e.drag.target, true
}

// EndDrag finishes the active drag. When a target slot was resolved it
// applies the move optimistically, persists it through the gateway and
// either commits the server's canonical placement or restores the snapshot
// taken before the move. The optimistic placement is visible to snapshots
// and subscribers before the gateway call starts. The context bounds the
// gateway round-trip; expiry is treated like any transport failure.
func (e *Engine) EndDrag(ctx context.Context) (MoveOutcome, error) {
	e.mu.Lock()
	drag := e.drag
	e.drag = nil
	if drag == nil {
		e.mu.Unlock()
		return MoveOutcome{}, domain.ErrNoActiveDrag
	}
	if !drag.hasTarget {
		e.mu.Unlock()
		return MoveOutcome{Status: MoveNone, ItemID: drag.itemID}, nil
	}

	item, ok := e.col.Get(drag.itemID)
	if !ok {
		e.mu.Unlock()
		return MoveOutcome{}, fmt.Errorf("end drag %s: %w", drag.itemID, domain.ErrItemNotFound)
	}
	if _, inFlight := e.pending[item.ID]; inFlight {
		e.mu.Unlock()
		return MoveOutcome{}, fmt.Errorf("end drag %s: %w", item.ID, domain.ErrConcurrentMove)
	}

	target := drag.target
	low, high := e.col.Neighbors(target.LaneID, target.BeforeID, target.AfterID, item.ID)
	if target.LaneID == item.LaneID && bracketsRank(low, high, item.Rank) {
		// Dropped back onto its own slot; skip the whole pipeline.
		e.mu.Unlock()
		return MoveOutcome{Status: MoveNoop, ItemID: item.ID, LaneID: item.LaneID, Rank: item.Rank, Version: item.Version}, nil
	}

	req := domain.MoveRequest{
		Token:    uuid.NewString(),
		BoardID:  e.boardID,
		ItemID:   item.ID,
		LaneID:   target.LaneID,
		Rank:     rank.Between(low, high),
		BeforeID: target.BeforeID,
		AfterID:  target.AfterID,
		Version:  item.Version,
	}

	prior, err := e.col.MoveLocal(item.ID, req.LaneID, req.Rank)
	if err != nil {
		e.mu.Unlock()
		return MoveOutcome{}, err
	}
	e.pending[item.ID] = &pendingMove{token: req.Token, prior: prior, target: req}
	e.mu.Unlock()
	e.notify()

	res, gwErr := e.gw.MoveItem(ctx, req)
	return e.finishMove(item.ID, req.Token, res, gwErr)
}

// finishMove resolves a pending move to Committed or RolledBack and replays
// any remote event buffered for the item while it was in flight. Resolving
// a move that is no longer pending is a safe no-op, so duplicate completion
// callbacks cannot corrupt state.
func (e *Engine) finishMove(itemID, token string, res domain.MoveResult, gwErr error) (MoveOutcome, error) {
	e.mu.Lock()
	pm, ok := e.pending[itemID]
	if !ok || pm.token != token {
		e.mu.Unlock()
		return MoveOutcome{Status: MoveNone, ItemID: itemID}, nil
	}
	delete(e.pending, itemID)

	var out MoveOutcome
	var err error
	if gwErr != nil {
		e.col.Restore(pm.prior)
		out = MoveOutcome{Status: MoveRolledBack, ItemID: itemID, LaneID: pm.prior.LaneID, Rank: pm.prior.Rank, Version: pm.prior.Version}
		err = fmt.Errorf("move %s: %w", itemID, gwErr)
		e.logger.WithFields(log.Fields{
			"board": e.boardID,
			"item":  itemID,
			"token": token,
		}).Warnf("move rolled back: %v", gwErr)
	} else {
		e.col.Commit(itemID, res)
		out = MoveOutcome{Status: MoveCommitted, ItemID: itemID, LaneID: res.LaneID, Rank: res.Rank, Version: res.Version}
	}

	if ev, buffered := e.buffered[itemID]; buffered {
		delete(e.buffered, itemID)
		if e.col.ApplyRemote(ev) {
			e.logger.WithField("item", itemID).Debug("replayed buffered remote event")
		}
	}
	e.mu.Unlock()
	e.notify()
	return out, err
}

// HandleRemoteEvent merges a realtime event into local state. Echoes of this
// client's own changes are dropped: the optimistic path already applied them
// and the gateway response carries the canonical result. Events for an item
// with a move in flight are buffered (latest only) and replayed once the
// move resolves, so a remote view can neither race the optimistic mutation
// nor be lost.
func (e *Engine) HandleRemoteEvent(ev domain.RemoteEvent) {
	if ev.Actor == e.actor && e.actor != "" {
		e.logger.WithFields(log.Fields{"item": ev.ItemID, "type": ev.Type}).Debug("suppressed self echo")
		return
	}
	e.mu.Lock()
	if _, inFlight := e.pending[ev.ItemID]; inFlight {
		e.buffered[ev.ItemID] = ev
		e.mu.Unlock()
		return
	}
	applied := e.col.ApplyRemote(ev)
	e.mu.Unlock()
	if applied {
		e.notify()
	} else {
		e.logger.WithFields(log.Fields{"item": ev.ItemID, "type": ev.Type, "version": ev.Version}).Debug("stale remote event ignored")
	}
}

// PendingMoves reports how many moves are currently awaiting confirmation.
func (e *Engine) PendingMoves() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

func (e *Engine) notify() {
	e.mu.Lock()
	subs := append([]func(){}, e.subs...)
	e.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// bracketsRank reports whether a rank already sits inside the (low, high)
// slot, meaning an insertion there would not change the order.
func bracketsRank(low, high, r string) bool {
	if low != "" && r <= low {
		return false
	}
	if high != "" && r >= high {
		return false
	}
	return true
}
