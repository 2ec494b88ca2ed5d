package board

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"boardsync/domain"
)

type fakeGateway struct {
	mu       sync.Mutex
	requests []domain.MoveRequest
	respond  func(req domain.MoveRequest) (domain.MoveResult, error)
	// release, when set, blocks MoveItem until the channel is closed so
	// tests can observe the Pending state.
	release chan struct{}
}

func (g *fakeGateway) MoveItem(ctx context.Context, req domain.MoveRequest) (domain.MoveResult, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return domain.MoveResult{}, ctx.Err()
		}
	}
	if g.respond == nil {
		return domain.MoveResult{LaneID: req.LaneID, Rank: req.Rank, Version: req.Version + 1}, nil
	}
	return g.respond(req)
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func waitPending(t *testing.T, e *Engine) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for e.PendingMoves() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("move never became pending")
		}
		time.Sleep(time.Millisecond)
	}
}

func newTestEngine(t *testing.T, gw *fakeGateway) *Engine {
	t.Helper()
	logger, _ := test.NewNullLogger()
	e := NewEngine(Config{BoardID: "b1", Actor: "local", Gateway: gw, Logger: logger})
	e.Load(testItems())
	e.SetGeometry(testGeometry())
	return e
}

func dragTo(t *testing.T, e *Engine, itemID string, p Point) (MoveOutcome, error) {
	t.Helper()
	if err := e.BeginDrag(itemID); err != nil {
		t.Fatalf("BeginDrag(%s): %v", itemID, err)
	}
	e.UpdateDragPosition(p)
	return e.EndDrag(context.Background())
}

func TestEndToEndMoveCommitsServerPlacement(t *testing.T) {
	// Lane todo holds ranks a0, a5, b0. Dragging t1 between t2 and t3 must
	// produce a rank strictly inside (a5, b0), send it to the gateway, and
	// end with the server's canonical rank in the snapshot.
	gw := &fakeGateway{respond: func(req domain.MoveRequest) (domain.MoveResult, error) {
		return domain.MoveResult{LaneID: "todo", Rank: "a7", Version: 2}, nil
	}}
	e := newTestEngine(t, gw)

	// Pointer over t3's rectangle: insert above t3, i.e. between t2 and t3.
	out, err := dragTo(t, e, "t1", Point{X: 50, Y: 150})
	if err != nil {
		t.Fatalf("EndDrag: %v", err)
	}
	if out.Status != MoveCommitted {
		t.Fatalf("status = %v, want MoveCommitted", out.Status)
	}

	if len(gw.requests) != 1 {
		t.Fatalf("gateway calls = %d, want 1", len(gw.requests))
	}
	req := gw.requests[0]
	if req.ItemID != "t1" || req.LaneID != "todo" || req.Version != 1 {
		t.Fatalf("request = %+v", req)
	}
	if req.Rank <= "a5" || req.Rank >= "b0" {
		t.Fatalf("optimistic rank %q not inside (a5, b0)", req.Rank)
	}
	if req.BeforeID != "t2" || req.AfterID != "t3" {
		t.Fatalf("neighbor hints = %q,%q", req.BeforeID, req.AfterID)
	}

	got := laneOrder(t, e.col, "todo")
	if !reflect.DeepEqual(got, []string{"t2", "t1", "t3"}) {
		t.Fatalf("final order = %v", got)
	}
	it, _ := e.Item("t1")
	if it.Rank != "a7" || it.Version != 2 {
		t.Fatalf("canonical placement not applied: %+v", it)
	}
}

func TestMoveRollbackRestoresExactSnapshot(t *testing.T) {
	gw := &fakeGateway{respond: func(domain.MoveRequest) (domain.MoveResult, error) {
		return domain.MoveResult{}, errors.New("boom")
	}}
	e := newTestEngine(t, gw)
	before := e.OrderedItems("todo")

	out, err := dragTo(t, e, "t1", Point{X: 50, Y: 150})
	if err == nil {
		t.Fatal("expected error from failed move")
	}
	if out.Status != MoveRolledBack {
		t.Fatalf("status = %v, want MoveRolledBack", out.Status)
	}
	if got := e.OrderedItems("todo"); !reflect.DeepEqual(got, before) {
		t.Fatalf("snapshot after rollback = %+v, want %+v", got, before)
	}
	if e.PendingMoves() != 0 {
		t.Fatal("pending move leaked after rollback")
	}
}

func TestVersionConflictRollsBackSecondMove(t *testing.T) {
	gw := &fakeGateway{respond: func(domain.MoveRequest) (domain.MoveResult, error) {
		return domain.MoveResult{}, domain.ErrVersionConflict
	}}
	e := newTestEngine(t, gw)
	before := e.OrderedItems("todo")

	_, err := dragTo(t, e, "t1", Point{X: 50, Y: 150})
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}
	if got := e.OrderedItems("todo"); !reflect.DeepEqual(got, before) {
		t.Fatalf("conflicting move not rolled back: %+v", got)
	}
}

func TestAtMostOnePendingMovePerItem(t *testing.T) {
	gw := &fakeGateway{release: make(chan struct{})}
	e := newTestEngine(t, gw)

	done := make(chan MoveOutcome, 1)
	if err := e.BeginDrag("t1"); err != nil {
		t.Fatalf("BeginDrag: %v", err)
	}
	e.UpdateDragPosition(Point{X: 50, Y: 150})
	go func() {
		out, _ := e.EndDrag(context.Background())
		done <- out
	}()

	// Wait until the first move is in flight.
	waitPending(t, e)

	if err := e.BeginDrag("t1"); !errors.Is(err, domain.ErrConcurrentMove) {
		t.Fatalf("second BeginDrag err = %v, want ErrConcurrentMove", err)
	}
	if gw.calls() != 1 {
		t.Fatalf("gateway calls = %d, want 1", gw.calls())
	}

	close(gw.release)
	if out := <-done; out.Status != MoveCommitted {
		t.Fatalf("first move status = %v, want MoveCommitted", out.Status)
	}
	if err := e.BeginDrag("t1"); err != nil {
		t.Fatalf("BeginDrag after resolve: %v", err)
	}
}

func TestDropOnOwnSlotSkipsPipeline(t *testing.T) {
	gw := &fakeGateway{}
	e := newTestEngine(t, gw)

	// Pointer over t2 while dragging t1: insert above t2 is t1's own slot.
	out, err := dragTo(t, e, "t1", Point{X: 50, Y: 100})
	if err != nil {
		t.Fatalf("EndDrag: %v", err)
	}
	if out.Status != MoveNoop {
		t.Fatalf("status = %v, want MoveNoop", out.Status)
	}
	if len(gw.requests) != 0 {
		t.Fatal("gateway called for a no-op drop")
	}
}

func TestEndDragWithoutTargetIsNoOp(t *testing.T) {
	gw := &fakeGateway{}
	e := newTestEngine(t, gw)

	out, err := dragTo(t, e, "t1", Point{X: 900, Y: 900})
	if err != nil {
		t.Fatalf("EndDrag: %v", err)
	}
	if out.Status != MoveNone || len(gw.requests) != 0 {
		t.Fatalf("outcome = %+v, gateway calls = %d", out, len(gw.requests))
	}
}

func TestSelfEchoSuppressed(t *testing.T) {
	gw := &fakeGateway{}
	e := newTestEngine(t, gw)

	notified := 0
	e.Subscribe(func() { notified++ })

	e.HandleRemoteEvent(domain.RemoteEvent{
		Type: domain.ItemMoved, ItemID: "t1", LaneID: "done", Rank: "z", Version: 9, Actor: "local",
	})
	if notified != 0 {
		t.Fatal("self echo triggered a change notification")
	}
	it, _ := e.Item("t1")
	if it.LaneID != "todo" {
		t.Fatalf("self echo mutated state: %+v", it)
	}
}

func TestRemoteEventBufferedDuringPendingMove(t *testing.T) {
	gw := &fakeGateway{release: make(chan struct{})}
	e := newTestEngine(t, gw)

	if err := e.BeginDrag("t1"); err != nil {
		t.Fatalf("BeginDrag: %v", err)
	}
	e.UpdateDragPosition(Point{X: 50, Y: 150})
	done := make(chan MoveOutcome, 1)
	go func() {
		out, _ := e.EndDrag(context.Background())
		done <- out
	}()
	waitPending(t, e)

	// Two remote events for the in-flight item: only the latest survives,
	// and neither applies before the move resolves.
	e.HandleRemoteEvent(domain.RemoteEvent{Type: domain.ItemUpdated, ItemID: "t1", Version: 5, Actor: "other", Payload: []byte(`{"v":1}`)})
	e.HandleRemoteEvent(domain.RemoteEvent{Type: domain.ItemUpdated, ItemID: "t1", Version: 6, Actor: "other", Payload: []byte(`{"v":2}`)})
	it, _ := e.Item("t1")
	if it.Version >= 5 {
		t.Fatal("remote event applied while move was pending")
	}

	close(gw.release)
	<-done

	it, _ = e.Item("t1")
	if it.Version != 6 || string(it.Payload) != `{"v":2}` {
		t.Fatalf("buffered event not replayed: %+v", it)
	}
}

func TestRemoteEventForIdleItemAppliesImmediately(t *testing.T) {
	gw := &fakeGateway{}
	e := newTestEngine(t, gw)

	notified := 0
	e.Subscribe(func() { notified++ })

	e.HandleRemoteEvent(domain.RemoteEvent{Type: domain.ItemMoved, ItemID: "t3", LaneID: "done", Rank: "z", Version: 2, Actor: "other"})
	if notified != 1 {
		t.Fatalf("notifications = %d, want 1", notified)
	}
	if got := laneOrder(t, e.col, "done"); !reflect.DeepEqual(got, []string{"d1", "t3"}) {
		t.Fatalf("done order = %v", got)
	}

	// Stale copy of the same event: no change, no notification.
	e.HandleRemoteEvent(domain.RemoteEvent{Type: domain.ItemMoved, ItemID: "t3", LaneID: "done", Rank: "z", Version: 2, Actor: "other"})
	if notified != 1 {
		t.Fatal("stale event triggered a notification")
	}
}

func TestBeginDragUnknownItem(t *testing.T) {
	e := newTestEngine(t, &fakeGateway{})
	if err := e.BeginDrag("ghost"); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("err = %v, want ErrItemNotFound", err)
	}
}

func TestEndDragWithoutBegin(t *testing.T) {
	e := newTestEngine(t, &fakeGateway{})
	if _, err := e.EndDrag(context.Background()); !errors.Is(err, domain.ErrNoActiveDrag) {
		t.Fatalf("err = %v, want ErrNoActiveDrag", err)
	}
}
