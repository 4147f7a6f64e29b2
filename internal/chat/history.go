package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"time"

	"github.com/findfriends/backend/internal/cache"
	"github.com/findfriends/backend/internal/metrics"
	"github.com/findfriends/backend/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

const (
	directKeyPrefix = "chat:records:direct:"
	groupKeyPrefix  = "chat:records:group:"
	broadcastKey    = "chat:records:broadcast"
)

// Message is the view projection of a chat record, annotated for one viewer.
type Message struct {
	FromUser  models.UserSnapshot  `json:"fromUser"`
	ToUser    *models.UserSnapshot `json:"toUser,omitempty"`
	ChatType  string               `json:"chatType"`
	Text      string               `json:"text"`
	IsMine    bool                 `json:"isMine"`
	IsAdmin   bool                 `json:"isAdmin"`
	CreatedAt string               `json:"createdAt"`
}

// MessageStore is the authoritative source of conversation history.
type MessageStore interface {
	FindDirect(ctx context.Context, userID, peerID string) ([]models.ChatMessage, error)
	FindByTeam(ctx context.Context, teamID string) ([]models.ChatMessage, error)
	FindBroadcast(ctx context.Context) ([]models.ChatMessage, error)
}

// UserStore resolves profile snapshots for message authors.
type UserStore interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

// TeamStore resolves the team for captain flagging in group conversations.
type TeamStore interface {
	GetByID(ctx context.Context, id string) (models.Team, error)
}

// Config tunes the jittered cache TTL. Entries live for BaseMinutes plus a
// uniform draw from [MinJitter, MaxJitter] divided by JitterOffset, in
// minutes, so entries created under the same burst do not expire together.
type Config struct {
	BaseMinutes  int
	MinJitter    int
	MaxJitter    int
	JitterOffset int
}

// History serves conversation reads cache-aside: cache hit wins, a miss falls
// through to the message store and repopulates the cache. Entries may be up
// to one TTL stale; writers call Invalidate to cut that short.
type History struct {
	messages MessageStore
	users    UserStore
	teams    TeamStore
	cache    cache.Cache
	cfg      Config
	logger   *slog.Logger
	randInt  func(min, max int) int
}

// NewHistory wires the conversation read path.
func NewHistory(messages MessageStore, users UserStore, teams TeamStore, kv cache.Cache, cfg Config, logger *slog.Logger) *History {
	if cfg.BaseMinutes <= 0 {
		cfg.BaseMinutes = 2
	}
	if cfg.MaxJitter < cfg.MinJitter {
		cfg.MaxJitter = cfg.MinJitter
	}
	if cfg.JitterOffset <= 0 {
		cfg.JitterOffset = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &History{
		messages: messages,
		users:    users,
		teams:    teams,
		cache:    kv,
		cfg:      cfg,
		logger:   logger,
		randInt: func(min, max int) int {
			if max <= min {
				return min
			}
			return min + rand.Intn(max-min+1)
		},
	}
}

// DirectKey computes the cache key for a direct conversation as seen by one
// viewer. The key is deliberately not order-normalized: each participant owns
// an independent entry, which is why cached messages carry per-viewer flags
// that are recomputed on every hit.
func DirectKey(viewerID, peerID string) string {
	return directKeyPrefix + viewerID + peerID
}

// GroupKey computes the cache key for a team conversation.
func GroupKey(teamID string) string {
	return groupKeyPrefix + teamID
}

// BroadcastKey returns the single key shared by all broadcast readers.
func BroadcastKey() string {
	return broadcastKey
}

// GetDirect returns the direct conversation between viewer and peer, oldest
// first, annotated for the viewer.
func (h *History) GetDirect(ctx context.Context, viewerID, peerID string) ([]Message, error) {
	if viewerID == "" {
		return nil, ErrMissingViewer
	}
	if peerID == "" {
		return nil, ErrMissingPeer
	}

	key := DirectKey(viewerID, peerID)
	if cached, ok := h.fromCache(ctx, key, viewerID, "direct"); ok {
		return cached, nil
	}

	records, err := h.messages.FindDirect(ctx, viewerID, peerID)
	if err != nil {
		return nil, err
	}

	result, err := h.project(ctx, records, viewerID, nil)
	if err != nil {
		return nil, err
	}

	h.save(ctx, key, result)
	return result, nil
}

// GetGroup returns the team conversation annotated for the viewer. The team
// captain and platform admins are flagged as admin authors.
func (h *History) GetGroup(ctx context.Context, viewerID, teamID string) ([]Message, error) {
	if viewerID == "" {
		return nil, ErrMissingViewer
	}
	if teamID == "" {
		return nil, ErrMissingTeam
	}

	key := GroupKey(teamID)
	if cached, ok := h.fromCache(ctx, key, viewerID, "group"); ok {
		return cached, nil
	}

	team, err := h.teams.GetByID(ctx, teamID)
	if err != nil {
		return nil, err
	}

	records, err := h.messages.FindByTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	captainID := team.OwnerID
	result, err := h.project(ctx, records, viewerID, &captainID)
	if err != nil {
		return nil, err
	}

	h.save(ctx, key, result)
	return result, nil
}

// GetBroadcast returns the broadcast conversation annotated for the viewer.
func (h *History) GetBroadcast(ctx context.Context, viewerID string) ([]Message, error) {
	if viewerID == "" {
		return nil, ErrMissingViewer
	}

	key := BroadcastKey()
	if cached, ok := h.fromCache(ctx, key, viewerID, "broadcast"); ok {
		return cached, nil
	}

	records, err := h.messages.FindBroadcast(ctx)
	if err != nil {
		return nil, err
	}

	empty := ""
	result, err := h.project(ctx, records, viewerID, &empty)
	if err != nil {
		return nil, err
	}

	h.save(ctx, key, result)
	return result, nil
}

// Invalidate drops a cached scope. Failures are logged and swallowed; the
// entry will age out on its TTL regardless.
func (h *History) Invalidate(ctx context.Context, scopeKey string) {
	if err := h.cache.Delete(ctx, scopeKey); err != nil {
		h.logger.Warn("conversation cache delete failed", "key", scopeKey, "error", err)
	}
}

// fromCache returns the cached sequence with IsMine recomputed for the
// requesting viewer, re-saving so the entry's flags match its last reader.
func (h *History) fromCache(ctx context.Context, key, viewerID, scope string) ([]Message, bool) {
	raw, err := h.cache.Get(ctx, key)
	if err != nil {
		if err != cache.ErrMiss {
			h.logger.Warn("conversation cache read failed", "key", key, "error", err)
		}
		metrics.ChatCacheMisses.WithLabelValues(scope).Inc()
		return nil, false
	}

	var cached []Message
	if err := json.Unmarshal(raw, &cached); err != nil {
		h.logger.Warn("conversation cache entry corrupt", "key", key, "error", err)
		metrics.ChatCacheMisses.WithLabelValues(scope).Inc()
		return nil, false
	}

	for i := range cached {
		cached[i].IsMine = cached[i].FromUser.ID == viewerID
	}

	metrics.ChatCacheHits.WithLabelValues(scope).Inc()
	h.save(ctx, key, cached)
	return cached, true
}

func (h *History) project(ctx context.Context, records []models.ChatMessage, viewerID string, captainID *string) ([]Message, error) {
	snapshots := make(map[string]models.UserSnapshot)
	roles := make(map[string]string)

	resolve := func(id string) (models.UserSnapshot, error) {
		if snap, ok := snapshots[id]; ok {
			return snap, nil
		}
		user, err := h.users.GetByID(ctx, id)
		if err != nil {
			return models.UserSnapshot{}, err
		}
		snapshots[id] = user.Snapshot()
		roles[id] = user.Role
		return snapshots[id], nil
	}

	result := make([]Message, 0, len(records))
	for _, record := range records {
		from, err := resolve(record.FromID)
		if err != nil {
			return nil, err
		}

		message := Message{
			FromUser:  from,
			ChatType:  record.ChatType,
			Text:      record.Text,
			IsMine:    record.FromID == viewerID,
			CreatedAt: record.CreatedAt.Format(timeLayout),
		}

		if record.ToID != nil {
			to, err := resolve(*record.ToID)
			if err != nil {
				return nil, err
			}
			message.ToUser = &to
		}

		if captainID != nil {
			isCaptain := *captainID != "" && record.FromID == *captainID
			if isCaptain || roles[record.FromID] == models.RoleAdmin {
				message.IsAdmin = true
			}
		}

		result = append(result, message)
	}

	return result, nil
}

// save writes the projected sequence back with a jittered TTL. A failed cache
// write never fails the read; the data was already served from the store.
func (h *History) save(ctx context.Context, key string, messages []Message) {
	raw, err := json.Marshal(messages)
	if err != nil {
		h.logger.Warn("conversation cache encode failed", "key", key, "error", err)
		return
	}
	if err := h.cache.Set(ctx, key, raw, h.jitterTTL()); err != nil {
		h.logger.Warn("conversation cache write failed", "key", key, "error", err)
	}
}

func (h *History) jitterTTL() time.Duration {
	jitter := h.randInt(h.cfg.MinJitter, h.cfg.MaxJitter)
	base := time.Duration(h.cfg.BaseMinutes) * time.Minute
	return base + time.Duration(jitter)*time.Minute/time.Duration(h.cfg.JitterOffset)
}
