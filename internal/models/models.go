package models

import (
	"encoding/json"
	"sort"
	"time"
)

// User represents an account within the FindFriends platform.
type User struct {
	ID        string
	Username  string
	AvatarURL string
	Role      string
	// FriendIDs holds the user's accepted friends as a JSON array blob,
	// e.g. `["a","b"]`. Mutated only by the friend-request accept path.
	FriendIDs string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Team represents a group whose members share a conversation.
type Team struct {
	ID        string
	Name      string
	OwnerID   string
	CreatedAt time.Time
}

// FriendRequest represents the invitation workflow between two users.
type FriendRequest struct {
	ID        string
	FromID    string
	ReceiveID string
	Status    string
	IsRead    bool
	Remark    string
	CreatedAt time.Time
}

const (
	RequestStatusPending = "pending"
	RequestStatusAgreed  = "agreed"
	RequestStatusRevoked = "revoked"
	RequestStatusExpired = "expired"
)

// ChatMessage is the authoritative record of a single conversation message.
type ChatMessage struct {
	ID        string
	FromID    string
	ToID      *string
	TeamID    *string
	ChatType  string
	Text      string
	CreatedAt time.Time
}

const (
	ChatTypeDirect    = "direct"
	ChatTypeGroup     = "group"
	ChatTypeBroadcast = "broadcast"
)

// UserSnapshot is the public projection of a user embedded in views.
type UserSnapshot struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// Snapshot returns the public projection of the user.
func (u User) Snapshot() UserSnapshot {
	return UserSnapshot{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
}

// DecodeFriendIDs parses a friend-id blob into a set. An empty blob yields an
// empty set; a malformed blob is reported to the caller rather than silently
// dropped, since the blob is rewritten wholesale on acceptance.
func DecodeFriendIDs(blob string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	if blob == "" {
		return set, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(blob), &ids); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set, nil
}

// EncodeFriendIDs serializes a friend-id set back into the blob form. Output
// is sorted so repeated encodes of the same set produce identical blobs.
func EncodeFriendIDs(set map[string]struct{}) string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	encoded, err := json.Marshal(ids)
	if err != nil {
		// A []string cannot fail to marshal.
		return "[]"
	}
	return string(encoded)
}
