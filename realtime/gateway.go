package realtime

import (
	"context"

	"boardsync/domain"
)

// Store is the slice of the persistence layer the publishing decorator
// wraps.
type Store interface {
	FetchItems(ctx context.Context, boardID string) ([]domain.Item, error)
	MoveItem(ctx context.Context, req domain.MoveRequest) (domain.MoveResult, error)
}

// PublishingStore decorates a Store so every confirmed move is announced on
// the board channel. Publication is best effort: the move is already
// durable, and stream consumers also refresh periodically.
type PublishingStore struct {
	Store
	pub *Publisher
}

func NewPublishingStore(s Store, pub *Publisher) *PublishingStore {
	return &PublishingStore{Store: s, pub: pub}
}

func (p *PublishingStore) MoveItem(ctx context.Context, req domain.MoveRequest) (domain.MoveResult, error) {
	res, err := p.Store.MoveItem(ctx, req)
	if err != nil {
		return res, err
	}
	_ = p.pub.Publish(ctx, domain.RemoteEvent{
		BoardID: req.BoardID,
		ItemID:  req.ItemID,
		Type:    domain.ItemMoved,
		LaneID:  res.LaneID,
		Rank:    res.Rank,
		Version: res.Version,
	})
	return res, nil
}
