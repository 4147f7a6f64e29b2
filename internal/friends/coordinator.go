package friends

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/findfriends/backend/internal/lock"
	"github.com/findfriends/backend/internal/metrics"
	"github.com/findfriends/backend/internal/models"
	"github.com/findfriends/backend/internal/repositories"
)

// MaxRemarkLength bounds the request remark, counted in code points.
const MaxRemarkLength = 120

const lockKeyPrefix = "friends:apply:"

// UserStore captures the user persistence required by the coordinator.
type UserStore interface {
	GetByID(ctx context.Context, id string) (models.User, error)
	Update(ctx context.Context, user models.User) error
}

// RequestStore captures friend-request persistence.
type RequestStore interface {
	GetByID(ctx context.Context, id string) (models.FriendRequest, error)
	FindByPair(ctx context.Context, fromID, receiveID string) ([]models.FriendRequest, error)
	ListForReceiver(ctx context.Context, receiveID string) ([]models.FriendRequest, error)
	ListForRequester(ctx context.Context, fromID string) ([]models.FriendRequest, error)
	Create(ctx context.Context, request models.FriendRequest) error
	Update(ctx context.Context, request models.FriendRequest) error
}

// AcceptStore commits the three writes of an acceptance atomically. Optional:
// without it the coordinator falls back to sequential writes, and a failure
// partway through is reported but not rolled back.
type AcceptStore interface {
	ApplyAccept(ctx context.Context, requester, receiver models.User, request models.FriendRequest) error
}

// Config tunes the coordinator.
type Config struct {
	// LockWait bounds how long Submit waits for the per-requester lock.
	LockWait time.Duration
	// LockLease bounds how long the lock survives a crashed holder.
	LockLease time.Duration
	// MaxPendingAge is the lifetime after which a pending request can no
	// longer be accepted.
	MaxPendingAge time.Duration
}

// Coordinator owns the friend-request state machine. Submissions are
// serialized per requester through a distributed lock; acceptance mutates the
// request and both users' friend lists.
type Coordinator struct {
	users    UserStore
	requests RequestStore
	locks    lock.Locker
	atomic   AcceptStore
	cfg      Config
	logger   *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewCoordinator wires the friend-request workflow. atomic may be nil.
func NewCoordinator(users UserStore, requests RequestStore, locks lock.Locker, atomic AcceptStore, cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.LockWait <= 0 {
		cfg.LockWait = 3 * time.Second
	}
	if cfg.LockLease <= 0 {
		cfg.LockLease = 30 * time.Second
	}
	if cfg.MaxPendingAge <= 0 {
		cfg.MaxPendingAge = 3 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		users:    users,
		requests: requests,
		locks:    locks,
		atomic:   atomic,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Submit creates a pending friend request from requester to target. At most
// one pending request may exist per ordered pair; the per-requester lock
// closes the race between concurrent submissions by the same actor. Two
// users requesting each other produce two independent records.
func (c *Coordinator) Submit(ctx context.Context, requesterID, targetID, remark string) (models.FriendRequest, error) {
	if utf8.RuneCountInString(remark) > MaxRemarkLength {
		return models.FriendRequest{}, ErrRemarkTooLong
	}
	if requesterID == "" || targetID == "" {
		return models.FriendRequest{}, fmt.Errorf("%w: requester and target required", ErrInvalidRequest)
	}
	if requesterID == targetID {
		return models.FriendRequest{}, ErrSelfReference
	}

	lease, err := c.locks.Acquire(ctx, lockKeyPrefix+requesterID, c.cfg.LockWait, c.cfg.LockLease)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			metrics.LockTimeouts.Inc()
			return models.FriendRequest{}, ErrLockBusy
		}
		return models.FriendRequest{}, fmt.Errorf("acquire submission lock: %w", err)
	}
	defer func() {
		if err := lease.Release(ctx); err != nil && !errors.Is(err, lock.ErrNotHeld) {
			c.logger.Warn("submission lock release failed", "requester", requesterID, "error", err)
		}
	}()

	existing, err := c.requests.FindByPair(ctx, requesterID, targetID)
	if err != nil {
		return models.FriendRequest{}, fmt.Errorf("check pending requests: %w", err)
	}
	for _, record := range existing {
		if record.Status == models.RequestStatusPending {
			return models.FriendRequest{}, ErrDuplicateRequest
		}
	}

	if remark == "" {
		requester, err := c.users.GetByID(ctx, requesterID)
		if err != nil {
			return models.FriendRequest{}, fmt.Errorf("load requester: %w", err)
		}
		remark = "I am " + requester.Username
	}

	request := models.FriendRequest{
		ID:        c.newID(),
		FromID:    requesterID,
		ReceiveID: targetID,
		Status:    models.RequestStatusPending,
		IsRead:    false,
		Remark:    remark,
		CreatedAt: c.now(),
	}
	if err := c.requests.Create(ctx, request); err != nil {
		return models.FriendRequest{}, fmt.Errorf("create friend request: %w", err)
	}

	return request, nil
}

// Accept agrees to the pending request from requester to receiver, adding
// each user to the other's friend list. Expiry is detected here, lazily: an
// overdue request fails with ErrRequestExpired and is left untouched.
func (c *Coordinator) Accept(ctx context.Context, receiverID, requesterID string) error {
	if receiverID == "" || requesterID == "" {
		return fmt.Errorf("%w: receiver and requester required", ErrInvalidRequest)
	}

	records, err := c.requests.FindByPair(ctx, requesterID, receiverID)
	if err != nil {
		return fmt.Errorf("find request for pair: %w", err)
	}

	var pending []models.FriendRequest
	for _, record := range records {
		if record.Status == models.RequestStatusPending {
			pending = append(pending, record)
		}
	}
	if len(pending) == 0 {
		return repositories.ErrNotFound
	}
	if len(pending) > 1 {
		c.logger.Error("multiple pending requests for one pair",
			"requester", requesterID, "receiver", receiverID, "count", len(pending))
		return ErrInconsistentState
	}

	request := pending[0]
	if c.now().Sub(request.CreatedAt) >= c.cfg.MaxPendingAge {
		return ErrRequestExpired
	}

	requester, err := c.users.GetByID(ctx, requesterID)
	if err != nil {
		return fmt.Errorf("load requester: %w", err)
	}
	receiver, err := c.users.GetByID(ctx, receiverID)
	if err != nil {
		return fmt.Errorf("load receiver: %w", err)
	}

	requesterFriends, err := models.DecodeFriendIDs(requester.FriendIDs)
	if err != nil {
		return fmt.Errorf("decode requester friend ids: %w", err)
	}
	receiverFriends, err := models.DecodeFriendIDs(receiver.FriendIDs)
	if err != nil {
		return fmt.Errorf("decode receiver friend ids: %w", err)
	}

	requesterFriends[receiverID] = struct{}{}
	receiverFriends[requesterID] = struct{}{}

	now := c.now()
	requester.FriendIDs = models.EncodeFriendIDs(requesterFriends)
	requester.UpdatedAt = now
	receiver.FriendIDs = models.EncodeFriendIDs(receiverFriends)
	receiver.UpdatedAt = now
	request.Status = models.RequestStatusAgreed

	if err := c.applyAccept(ctx, requester, receiver, request); err != nil {
		return err
	}

	metrics.FriendshipsAccepted.Inc()
	return nil
}

func (c *Coordinator) applyAccept(ctx context.Context, requester, receiver models.User, request models.FriendRequest) error {
	if c.atomic != nil {
		if err := c.atomic.ApplyAccept(ctx, requester, receiver, request); err != nil {
			return fmt.Errorf("apply acceptance: %w", err)
		}
		return nil
	}

	// Sequential fallback: a failure leaves earlier writes in place. The
	// operation is reported failed, but one or two records may already be
	// durable.
	if err := c.users.Update(ctx, requester); err != nil {
		return fmt.Errorf("update requester friend ids: %w", err)
	}
	if err := c.users.Update(ctx, receiver); err != nil {
		return fmt.Errorf("update receiver friend ids (requester already written): %w", err)
	}
	if err := c.requests.Update(ctx, request); err != nil {
		return fmt.Errorf("update request status (friend ids already written): %w", err)
	}
	return nil
}

// Cancel revokes a pending request. Only the requester may revoke, and only
// while the request is still pending.
func (c *Coordinator) Cancel(ctx context.Context, requesterID, requestID string) error {
	request, err := c.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if request.FromID != requesterID {
		return repositories.ErrNotFound
	}
	if request.Status != models.RequestStatusPending {
		return ErrInvalidState
	}

	request.Status = models.RequestStatusRevoked
	if err := c.requests.Update(ctx, request); err != nil {
		return fmt.Errorf("revoke friend request: %w", err)
	}
	return nil
}

// CountUnread returns how many pending requests the receiver has not read yet.
func (c *Coordinator) CountUnread(ctx context.Context, receiverID string) (int, error) {
	records, err := c.requests.ListForReceiver(ctx, receiverID)
	if err != nil {
		return 0, fmt.Errorf("list requests for receiver: %w", err)
	}

	count := 0
	for _, record := range records {
		if record.Status == models.RequestStatusPending && !record.IsRead {
			count++
		}
	}
	return count, nil
}

// ReadReceipt reports the outcome of marking a single request read.
type ReadReceipt struct {
	ID      string
	Updated bool
	Err     error
}

// MarkRead marks each listed request read if it is still pending and unread.
// Results are reported per id so a partial failure is visible to the caller.
func (c *Coordinator) MarkRead(ctx context.Context, receiverID string, ids []string) []ReadReceipt {
	receipts := make([]ReadReceipt, 0, len(ids))
	for _, id := range ids {
		receipts = append(receipts, c.markOneRead(ctx, receiverID, id))
	}
	return receipts
}

func (c *Coordinator) markOneRead(ctx context.Context, receiverID, id string) ReadReceipt {
	request, err := c.requests.GetByID(ctx, id)
	if err != nil {
		return ReadReceipt{ID: id, Err: err}
	}
	if request.ReceiveID != receiverID {
		return ReadReceipt{ID: id, Err: repositories.ErrNotFound}
	}
	if request.Status != models.RequestStatusPending || request.IsRead {
		return ReadReceipt{ID: id}
	}

	request.IsRead = true
	if err := c.requests.Update(ctx, request); err != nil {
		return ReadReceipt{ID: id, Err: fmt.Errorf("mark read: %w", err)}
	}
	return ReadReceipt{ID: id, Updated: true}
}
