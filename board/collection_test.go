package board

import (
	"reflect"
	"testing"

	"boardsync/domain"
)

func testItems() []domain.Item {
	return []domain.Item{
		{ID: "t1", LaneID: "todo", Rank: "a0", Version: 1},
		{ID: "t2", LaneID: "todo", Rank: "a5", Version: 1},
		{ID: "t3", LaneID: "todo", Rank: "b0", Version: 1},
		{ID: "d1", LaneID: "done", Rank: "i", Version: 4},
	}
}

func laneOrder(t *testing.T, c *Collection, laneID string) []string {
	t.Helper()
	snap := c.Snapshot(laneID)
	ids := make([]string, len(snap))
	for i, it := range snap {
		ids[i] = it.ID
	}
	return ids
}

func TestSnapshotSortsByRankWithIDTieBreak(t *testing.T) {
	c := NewCollection()
	c.Load([]domain.Item{
		{ID: "b", LaneID: "todo", Rank: "a5", Version: 1},
		{ID: "a", LaneID: "todo", Rank: "a5", Version: 1},
		{ID: "c", LaneID: "todo", Rank: "a1", Version: 1},
	})
	got := laneOrder(t, c, "todo")
	want := []string{"c", "a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestMoveLocalReturnsPriorStateAndRestoreIsExact(t *testing.T) {
	c := NewCollection()
	c.Load(testItems())
	before := c.Snapshot("todo")

	prior, err := c.MoveLocal("t1", "done", "m")
	if err != nil {
		t.Fatalf("MoveLocal: %v", err)
	}
	want := ItemState{ItemID: "t1", LaneID: "todo", Rank: "a0", Version: 1}
	if prior != want {
		t.Fatalf("prior = %+v, want %+v", prior, want)
	}
	if got := laneOrder(t, c, "done"); !reflect.DeepEqual(got, []string{"d1", "t1"}) {
		t.Fatalf("done order after move = %v", got)
	}

	c.Restore(prior)
	if got := c.Snapshot("todo"); !reflect.DeepEqual(got, before) {
		t.Fatalf("todo after restore = %+v, want %+v", got, before)
	}
	if got := laneOrder(t, c, "done"); !reflect.DeepEqual(got, []string{"d1"}) {
		t.Fatalf("done after restore = %v", got)
	}
}

func TestMoveLocalUnknownItem(t *testing.T) {
	c := NewCollection()
	c.Load(testItems())
	if _, err := c.MoveLocal("nope", "todo", "m"); err == nil {
		t.Fatal("expected error for unknown item")
	}
}

func TestApplyRemoteVersionGuard(t *testing.T) {
	c := NewCollection()
	c.Load(testItems())

	stale := domain.RemoteEvent{Type: domain.ItemMoved, ItemID: "t2", LaneID: "done", Rank: "z", Version: 1}
	if c.ApplyRemote(stale) {
		t.Fatal("event with version == current must be skipped")
	}
	older := stale
	older.Version = 0
	if c.ApplyRemote(older) {
		t.Fatal("event with version < current must be skipped")
	}

	fresh := domain.RemoteEvent{Type: domain.ItemMoved, ItemID: "t2", LaneID: "done", Rank: "z", Version: 2}
	if !c.ApplyRemote(fresh) {
		t.Fatal("fresh event must apply")
	}
	it, _ := c.Get("t2")
	if it.LaneID != "done" || it.Rank != "z" || it.Version != 2 {
		t.Fatalf("item after move event = %+v", it)
	}

	// At-least-once delivery: the same event again is a no-op.
	if c.ApplyRemote(fresh) {
		t.Fatal("duplicate event must be skipped")
	}
}

func TestApplyRemoteCreateAndDelete(t *testing.T) {
	c := NewCollection()
	c.Load(testItems())

	created := domain.RemoteEvent{Type: domain.ItemCreated, ItemID: "t4", LaneID: "todo", Rank: "a2", Version: 1}
	if !c.ApplyRemote(created) {
		t.Fatal("create must apply")
	}
	if got := laneOrder(t, c, "todo"); !reflect.DeepEqual(got, []string{"t1", "t4", "t2", "t3"}) {
		t.Fatalf("order after create = %v", got)
	}
	if c.ApplyRemote(created) {
		t.Fatal("duplicate create must be skipped")
	}

	deleted := domain.RemoteEvent{Type: domain.ItemDeleted, ItemID: "t4", Version: 2}
	if !c.ApplyRemote(deleted) {
		t.Fatal("delete must apply")
	}
	if _, ok := c.Get("t4"); ok {
		t.Fatal("item still present after delete")
	}
	if c.ApplyRemote(deleted) {
		t.Fatal("delete of absent item must be a no-op")
	}
}

func TestApplyRemoteUpdatePreservesPlacementFields(t *testing.T) {
	c := NewCollection()
	c.Load(testItems())

	upd := domain.RemoteEvent{Type: domain.ItemUpdated, ItemID: "t2", Version: 2, Payload: []byte(`{"title":"x"}`)}
	if !c.ApplyRemote(upd) {
		t.Fatal("update must apply")
	}
	it, _ := c.Get("t2")
	if it.LaneID != "todo" || it.Rank != "a5" {
		t.Fatalf("update without lane/rank moved the item: %+v", it)
	}
	if string(it.Payload) != `{"title":"x"}` {
		t.Fatalf("payload = %s", it.Payload)
	}
}

func TestNeighborsExcludesMovedItem(t *testing.T) {
	c := NewCollection()
	c.Load(testItems())

	low, high := c.Neighbors("todo", "t2", "t3", "t1")
	if low != "a5" || high != "b0" {
		t.Fatalf("neighbors = %q,%q", low, high)
	}
	low, high = c.Neighbors("todo", "t1", "t2", "t1")
	if low != "" || high != "a5" {
		t.Fatalf("neighbors excluding dragged = %q,%q", low, high)
	}
}
