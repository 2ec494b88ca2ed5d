// Package storage implements the persistence gateway on Azure Table Storage
// with optimistic concurrency, and feeds confirmed changes to an Azure queue
// for downstream consumers.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/google/uuid"

	"boardsync/domain"
	"boardsync/rank"
)

// Store provides access to the items table and the board events queue.
// Items are partitioned by board id with the item id as row key.
type Store struct {
	itemTable  *aztables.Client
	eventQueue *azqueue.QueueClient
	// fetch loads a single entity; it points at the table-backed getter and
	// exists so tests can substitute stored state.
	fetch func(ctx context.Context, boardID, itemID string) (*itemEntity, error)
}

// New creates a Store from the given connection string.
func New(connStr, itemsTable, eventsQueue string) (*Store, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	s := &Store{itemTable: svc.NewClient(itemsTable), eventQueue: eq}
	s.fetch = s.getItem
	return s, nil
}

type itemEntity struct {
	aztables.Entity
	ETag    string `json:"odata.etag,omitempty"`
	LaneID  string `json:"LaneId"`
	Rank    string `json:"Rank"`
	Version int64  `json:"Version,string"`
	// Table storage needs the explicit EDM annotation to keep Version an
	// int64 rather than a string.
	VersionType string `json:"Version@odata.type,omitempty"`
	Payload     string `json:"Payload,omitempty"`
}

const edmInt64 = "Edm.Int64"

// FetchItems retrieves all items of a board.
func (s *Store) FetchItems(ctx context.Context, boardID string) ([]domain.Item, error) {
	filter := "PartitionKey eq '" + boardID + "'"
	pager := s.itemTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	items := []domain.Item{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent itemEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			items = append(items, entityToItem(ent))
		}
	}
	return items, nil
}

// MoveItem persists a confirmed move. The stored version must match the
// request's version or the move fails with domain.ErrVersionConflict. When
// neighbor hints are present the canonical rank is re-derived against the
// neighbors' current ranks, so a client guess made against a stale order is
// corrected rather than rejected. On success the canonical placement is
// written, the version advanced, and an item-moved event enqueued.
func (s *Store) MoveItem(ctx context.Context, req domain.MoveRequest) (domain.MoveResult, error) {
	ent, err := s.fetch(ctx, req.BoardID, req.ItemID)
	if err != nil {
		return domain.MoveResult{}, err
	}
	if ent == nil {
		return domain.MoveResult{}, fmt.Errorf("move %s: %w", req.ItemID, domain.ErrItemNotFound)
	}
	if ent.Version != req.Version {
		return domain.MoveResult{}, fmt.Errorf("move %s: stored version %d, request version %d: %w",
			req.ItemID, ent.Version, req.Version, domain.ErrVersionConflict)
	}

	canonical, err := s.canonicalRank(ctx, req)
	if err != nil {
		return domain.MoveResult{}, err
	}

	upd := itemEntity{
		Entity:      aztables.Entity{PartitionKey: req.BoardID, RowKey: req.ItemID},
		LaneID:      req.LaneID,
		Rank:        canonical,
		Version:     req.Version + 1,
		VersionType: edmInt64,
		Payload:     ent.Payload,
	}
	payload, err := json.Marshal(upd)
	if err != nil {
		return domain.MoveResult{}, err
	}
	etag := azcore.ETag(ent.ETag)
	if etag == "" {
		etag = azcore.ETagAny
	}
	_, err = s.itemTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &etag,
		UpdateMode: aztables.UpdateModeMerge,
	})
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && (respErr.StatusCode == 412 || respErr.StatusCode == 409) {
			return domain.MoveResult{}, fmt.Errorf("move %s: %w", req.ItemID, domain.ErrVersionConflict)
		}
		return domain.MoveResult{}, err
	}

	res := domain.MoveResult{LaneID: req.LaneID, Rank: canonical, Version: req.Version + 1}
	s.enqueueEvent(ctx, domain.RemoteEvent{
		ID:      uuid.NewString(),
		BoardID: req.BoardID,
		ItemID:  req.ItemID,
		Type:    domain.ItemMoved,
		LaneID:  res.LaneID,
		Rank:    res.Rank,
		Version: res.Version,
		Time:    time.Now().UnixNano(),
	})
	return res, nil
}

// canonicalRank derives the rank to persist. Neighbor hints win over the
// client's precomputed rank when they disagree with it.
func (s *Store) canonicalRank(ctx context.Context, req domain.MoveRequest) (string, error) {
	if req.BeforeID == "" && req.AfterID == "" {
		return req.Rank, nil
	}
	var low, high string
	if req.BeforeID != "" && req.BeforeID != req.ItemID {
		ent, err := s.fetch(ctx, req.BoardID, req.BeforeID)
		if err != nil {
			return "", err
		}
		if ent != nil && ent.LaneID == req.LaneID {
			low = ent.Rank
		}
	}
	if req.AfterID != "" && req.AfterID != req.ItemID {
		ent, err := s.fetch(ctx, req.BoardID, req.AfterID)
		if err != nil {
			return "", err
		}
		if ent != nil && ent.LaneID == req.LaneID {
			high = ent.Rank
		}
	}
	if low != "" && high != "" && low >= high {
		// Neighbors moved apart since the client resolved the drop; the
		// requested rank is the only usable placement left.
		return req.Rank, nil
	}
	if req.Rank != "" && (low == "" || req.Rank > low) && (high == "" || req.Rank < high) {
		return req.Rank, nil
	}
	return rank.Between(low, high), nil
}

func (s *Store) getItem(ctx context.Context, boardID, itemID string) (*itemEntity, error) {
	resp, err := s.itemTable.GetEntity(ctx, boardID, itemID, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil, nil
		}
		return nil, err
	}
	var ent itemEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	return &ent, nil
}

// enqueueEvent feeds the board events queue. Delivery is best effort: the
// move is already durable, and live clients also hear about it through the
// realtime channel.
func (s *Store) enqueueEvent(ctx context.Context, ev domain.RemoteEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = s.eventQueue.EnqueueMessage(ctx, string(data), nil)
}

// InsertItem creates a new item entity at version 1.
func (s *Store) InsertItem(ctx context.Context, boardID string, it domain.Item) error {
	ent := itemEntity{
		Entity:      aztables.Entity{PartitionKey: boardID, RowKey: it.ID},
		LaneID:      it.LaneID,
		Rank:        it.Rank,
		Version:     1,
		VersionType: edmInt64,
		Payload:     string(it.Payload),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.itemTable.AddEntity(ctx, payload, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 409 {
			return fmt.Errorf("insert %s: %w", it.ID, domain.ErrVersionConflict)
		}
		return err
	}
	s.enqueueEvent(ctx, domain.RemoteEvent{
		ID:      uuid.NewString(),
		BoardID: boardID,
		ItemID:  it.ID,
		Type:    domain.ItemCreated,
		LaneID:  it.LaneID,
		Rank:    it.Rank,
		Version: 1,
		Payload: it.Payload,
		Time:    time.Now().UnixNano(),
	})
	return nil
}

// DeleteItem removes an item entity.
func (s *Store) DeleteItem(ctx context.Context, boardID, itemID string) error {
	if _, err := s.itemTable.DeleteEntity(ctx, boardID, itemID, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil
		}
		return err
	}
	s.enqueueEvent(ctx, domain.RemoteEvent{
		ID:      uuid.NewString(),
		BoardID: boardID,
		ItemID:  itemID,
		Type:    domain.ItemDeleted,
		Time:    time.Now().UnixNano(),
	})
	return nil
}

func entityToItem(ent itemEntity) domain.Item {
	it := domain.Item{
		ID:      ent.RowKey,
		LaneID:  ent.LaneID,
		Rank:    ent.Rank,
		Version: ent.Version,
	}
	if ent.Payload != "" {
		it.Payload = json.RawMessage(ent.Payload)
	}
	return it
}
