package friends

import (
	"context"
	"fmt"

	"github.com/findfriends/backend/internal/models"
)

// RequestView pairs a friend request with the public profile of the user on
// the other side of it.
type RequestView struct {
	Request     models.FriendRequest
	Counterpart models.UserSnapshot
}

// ListIncoming returns the requests targeting the receiver, newest first,
// with each applicant's profile.
func (c *Coordinator) ListIncoming(ctx context.Context, receiverID string) ([]RequestView, error) {
	records, err := c.requests.ListForReceiver(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("list requests for receiver: %w", err)
	}
	return c.toViews(ctx, records, func(r models.FriendRequest) string { return r.FromID })
}

// ListOutgoing returns the requests the user submitted, newest first, with
// each target's profile.
func (c *Coordinator) ListOutgoing(ctx context.Context, requesterID string) ([]RequestView, error) {
	records, err := c.requests.ListForRequester(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("list requests for requester: %w", err)
	}
	return c.toViews(ctx, records, func(r models.FriendRequest) string { return r.ReceiveID })
}

func (c *Coordinator) toViews(ctx context.Context, records []models.FriendRequest, counterpart func(models.FriendRequest) string) ([]RequestView, error) {
	snapshots := make(map[string]models.UserSnapshot)

	views := make([]RequestView, 0, len(records))
	for _, record := range records {
		id := counterpart(record)
		snap, ok := snapshots[id]
		if !ok {
			user, err := c.users.GetByID(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("load user %s: %w", id, err)
			}
			snap = user.Snapshot()
			snapshots[id] = snap
		}
		views = append(views, RequestView{Request: record, Counterpart: snap})
	}

	return views, nil
}
