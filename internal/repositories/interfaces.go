package repositories

import (
	"context"

	"github.com/findfriends/backend/internal/models"
)

// UserRepository defines the data access contract for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (models.User, error)
	Create(ctx context.Context, user models.User) error
	Update(ctx context.Context, user models.User) error
	// ListIDs streams every user id, used to warm the existence guard.
	ListIDs(ctx context.Context) ([]string, error)
}

// TeamRepository defines data access for teams.
type TeamRepository interface {
	GetByID(ctx context.Context, id string) (models.Team, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// FriendRequestRepository defines data access for friend requests.
type FriendRequestRepository interface {
	GetByID(ctx context.Context, id string) (models.FriendRequest, error)
	// FindByPair returns every request for the ordered (fromID, receiveID) pair,
	// regardless of status.
	FindByPair(ctx context.Context, fromID, receiveID string) ([]models.FriendRequest, error)
	ListForReceiver(ctx context.Context, receiveID string) ([]models.FriendRequest, error)
	ListForRequester(ctx context.Context, fromID string) ([]models.FriendRequest, error)
	Create(ctx context.Context, request models.FriendRequest) error
	Update(ctx context.Context, request models.FriendRequest) error
}

// ChatMessageRepository defines read access to conversation history.
type ChatMessageRepository interface {
	// FindDirect returns direct messages exchanged between the two users in
	// either direction, oldest first.
	FindDirect(ctx context.Context, userID, peerID string) ([]models.ChatMessage, error)
	FindByTeam(ctx context.Context, teamID string) ([]models.ChatMessage, error)
	FindBroadcast(ctx context.Context) ([]models.ChatMessage, error)
}
