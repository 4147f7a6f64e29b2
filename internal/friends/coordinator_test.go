package friends

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/findfriends/backend/internal/lock"
	"github.com/findfriends/backend/internal/models"
	"github.com/findfriends/backend/internal/repositories"
)

type memUsers struct {
	users      map[string]models.User
	failUpdate map[string]error
	updates    []string
}

func newMemUsers(users ...models.User) *memUsers {
	m := &memUsers{users: make(map[string]models.User), failUpdate: make(map[string]error)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUsers) GetByID(_ context.Context, id string) (models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (m *memUsers) Update(_ context.Context, user models.User) error {
	if err, ok := m.failUpdate[user.ID]; ok {
		return err
	}
	if _, ok := m.users[user.ID]; !ok {
		return repositories.ErrNotFound
	}
	m.users[user.ID] = user
	m.updates = append(m.updates, user.ID)
	return nil
}

type memRequests struct {
	order []string
	byID  map[string]models.FriendRequest
}

func newMemRequests() *memRequests {
	return &memRequests{byID: make(map[string]models.FriendRequest)}
}

func (m *memRequests) GetByID(_ context.Context, id string) (models.FriendRequest, error) {
	request, ok := m.byID[id]
	if !ok {
		return models.FriendRequest{}, repositories.ErrNotFound
	}
	return request, nil
}

func (m *memRequests) FindByPair(_ context.Context, fromID, receiveID string) ([]models.FriendRequest, error) {
	var out []models.FriendRequest
	for _, id := range m.order {
		r := m.byID[id]
		if r.FromID == fromID && r.ReceiveID == receiveID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRequests) ListForReceiver(_ context.Context, receiveID string) ([]models.FriendRequest, error) {
	var out []models.FriendRequest
	for i := len(m.order) - 1; i >= 0; i-- {
		r := m.byID[m.order[i]]
		if r.ReceiveID == receiveID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRequests) ListForRequester(_ context.Context, fromID string) ([]models.FriendRequest, error) {
	var out []models.FriendRequest
	for i := len(m.order) - 1; i >= 0; i-- {
		r := m.byID[m.order[i]]
		if r.FromID == fromID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRequests) Create(_ context.Context, request models.FriendRequest) error {
	if _, ok := m.byID[request.ID]; ok {
		return repositories.ErrConflict
	}
	m.byID[request.ID] = request
	m.order = append(m.order, request.ID)
	return nil
}

func (m *memRequests) Update(_ context.Context, request models.FriendRequest) error {
	if _, ok := m.byID[request.ID]; !ok {
		return repositories.ErrNotFound
	}
	m.byID[request.ID] = request
	return nil
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string, time.Duration, time.Duration) (lock.Lease, error) {
	return nil, lock.ErrNotAcquired
}

type recordingAccept struct {
	calls int
	err   error
}

func (a *recordingAccept) ApplyAccept(context.Context, models.User, models.User, models.FriendRequest) error {
	a.calls++
	return a.err
}

func testCoordinator(users *memUsers, requests *memRequests) *Coordinator {
	return NewCoordinator(users, requests, lock.NewMemoryLocker(), nil, Config{
		LockWait:      100 * time.Millisecond,
		LockLease:     time.Second,
		MaxPendingAge: 3 * 24 * time.Hour,
	}, nil)
}

func seedUsers() *memUsers {
	return newMemUsers(
		models.User{ID: "user-a", Username: "alice"},
		models.User{ID: "user-b", Username: "bob"},
	)
}

func TestSubmitThenDuplicate(t *testing.T) {
	c := testCoordinator(seedUsers(), newMemRequests())
	ctx := context.Background()

	request, err := c.Submit(ctx, "user-a", "user-b", "hello")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if request.Status != models.RequestStatusPending {
		t.Fatalf("expected pending got %q", request.Status)
	}
	if request.IsRead {
		t.Fatalf("new request must be unread")
	}

	if _, err := c.Submit(ctx, "user-a", "user-b", "again"); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest got %v", err)
	}
}

func TestSubmitOppositeDirectionsIndependent(t *testing.T) {
	c := testCoordinator(seedUsers(), newMemRequests())
	ctx := context.Background()

	if _, err := c.Submit(ctx, "user-a", "user-b", ""); err != nil {
		t.Fatalf("a to b: %v", err)
	}
	if _, err := c.Submit(ctx, "user-b", "user-a", ""); err != nil {
		t.Fatalf("b to a must be an independent record: %v", err)
	}
}

func TestSubmitBlankRemarkDefaults(t *testing.T) {
	c := testCoordinator(seedUsers(), newMemRequests())

	request, err := c.Submit(context.Background(), "user-a", "user-b", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if request.Remark != "I am alice" {
		t.Fatalf("expected generated remark got %q", request.Remark)
	}
}

func TestSubmitValidation(t *testing.T) {
	c := testCoordinator(seedUsers(), newMemRequests())
	ctx := context.Background()

	if _, err := c.Submit(ctx, "user-a", "user-b", strings.Repeat("x", 121)); !errors.Is(err, ErrRemarkTooLong) {
		t.Fatalf("expected ErrRemarkTooLong got %v", err)
	}
	// 120 multi-byte code points are within the limit.
	if _, err := c.Submit(ctx, "user-a", "user-b", strings.Repeat("好", 120)); err != nil {
		t.Fatalf("120 code points must pass: %v", err)
	}
	if _, err := c.Submit(ctx, "user-a", "user-a", ""); !errors.Is(err, ErrSelfReference) {
		t.Fatalf("expected ErrSelfReference got %v", err)
	}
	if _, err := c.Submit(ctx, "", "user-b", ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest got %v", err)
	}
}

func TestSubmitLockBusy(t *testing.T) {
	c := NewCoordinator(seedUsers(), newMemRequests(), busyLocker{}, nil, Config{}, nil)

	if _, err := c.Submit(context.Background(), "user-a", "user-b", ""); !errors.Is(err, ErrLockBusy) {
		t.Fatalf("expected ErrLockBusy got %v", err)
	}
}

func TestSubmitReleasesLock(t *testing.T) {
	locker := lock.NewMemoryLocker()
	c := NewCoordinator(seedUsers(), newMemRequests(), locker, nil, Config{
		LockWait: 50 * time.Millisecond, LockLease: time.Minute, MaxPendingAge: time.Hour,
	}, nil)
	ctx := context.Background()

	if _, err := c.Submit(ctx, "user-a", "user-b", ""); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	// A duplicate fails on the pending check, not on the lock, proving the
	// first call released it.
	if _, err := c.Submit(ctx, "user-a", "user-b", ""); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest got %v", err)
	}
}

func TestAcceptHappyPath(t *testing.T) {
	users := seedUsers()
	requests := newMemRequests()
	c := testCoordinator(users, requests)
	ctx := context.Background()

	if _, err := c.Submit(ctx, "user-a", "user-b", ""); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := c.Accept(ctx, "user-b", "user-a"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	alice, _ := users.GetByID(ctx, "user-a")
	bob, _ := users.GetByID(ctx, "user-b")

	aliceFriends, err := models.DecodeFriendIDs(alice.FriendIDs)
	if err != nil {
		t.Fatalf("decode alice friends: %v", err)
	}
	bobFriends, err := models.DecodeFriendIDs(bob.FriendIDs)
	if err != nil {
		t.Fatalf("decode bob friends: %v", err)
	}
	if _, ok := aliceFriends["user-b"]; !ok {
		t.Fatalf("alice should have bob as friend, got %q", alice.FriendIDs)
	}
	if _, ok := bobFriends["user-a"]; !ok {
		t.Fatalf("bob should have alice as friend, got %q", bob.FriendIDs)
	}

	stored := requests.byID[requests.order[0]]
	if stored.Status != models.RequestStatusAgreed {
		t.Fatalf("expected agreed got %q", stored.Status)
	}

	// No pending record remains, so a second accept finds nothing.
	if err := c.Accept(ctx, "user-b", "user-a"); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on re-accept got %v", err)
	}
}

func TestAcceptExpired(t *testing.T) {
	users := seedUsers()
	requests := newMemRequests()
	c := testCoordinator(users, requests)
	ctx := context.Background()

	if _, err := c.Submit(ctx, "user-a", "user-b", ""); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Move the clock past the maximum pending age.
	c.now = func() time.Time { return time.Now().Add(4 * 24 * time.Hour) }

	if err := c.Accept(ctx, "user-b", "user-a"); !errors.Is(err, ErrRequestExpired) {
		t.Fatalf("expected ErrRequestExpired got %v", err)
	}

	alice, _ := users.GetByID(ctx, "user-a")
	bob, _ := users.GetByID(ctx, "user-b")
	if alice.FriendIDs != "" || bob.FriendIDs != "" {
		t.Fatalf("expired accept must not touch friend lists: %q %q", alice.FriendIDs, bob.FriendIDs)
	}

	// Expiry is detected lazily and not persisted: the record stays pending.
	stored := requests.byID[requests.order[0]]
	if stored.Status != models.RequestStatusPending {
		t.Fatalf("expected record left pending got %q", stored.Status)
	}
}

func TestAcceptNotFound(t *testing.T) {
	c := testCoordinator(seedUsers(), newMemRequests())

	if err := c.Accept(context.Background(), "user-b", "user-a"); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestAcceptInconsistentState(t *testing.T) {
	users := seedUsers()
	requests := newMemRequests()
	ctx := context.Background()

	// Two pending records for the same ordered pair: the submit invariant
	// was violated upstream.
	for _, id := range []string{"req-1", "req-2"} {
		if err := requests.Create(ctx, models.FriendRequest{
			ID: id, FromID: "user-a", ReceiveID: "user-b",
			Status: models.RequestStatusPending, CreatedAt: time.Now(),
		}); err != nil {
			t.Fatalf("seed request: %v", err)
		}
	}

	c := testCoordinator(users, requests)
	if err := c.Accept(ctx, "user-b", "user-a"); !errors.Is(err, ErrInconsistentState) {
		t.Fatalf("expected ErrInconsistentState got %v", err)
	}
}

func TestAcceptSequentialPartialFailure(t *testing.T) {
	users := seedUsers()
	users.failUpdate["user-b"] = errors.New("store down")
	requests := newMemRequests()
	c := testCoordinator(users, requests)
	ctx := context.Background()

	if _, err := c.Submit(ctx, "user-a", "user-b", ""); err != nil {
		t.Fatalf("submit: %v", err)
	}

	err := c.Accept(ctx, "user-b", "user-a")
	if err == nil {
		t.Fatalf("expected accept to report failure")
	}

	// Without a transactional store the first write survives: requester has
	// the new friend, receiver does not, and the request is still pending.
	alice, _ := users.GetByID(ctx, "user-a")
	if alice.FriendIDs == "" {
		t.Fatalf("expected requester write to have been applied before the failure")
	}
	stored := requests.byID[requests.order[0]]
	if stored.Status != models.RequestStatusPending {
		t.Fatalf("request must remain pending after failed accept, got %q", stored.Status)
	}
}

func TestAcceptUsesAtomicStore(t *testing.T) {
	users := seedUsers()
	requests := newMemRequests()
	atomic := &recordingAccept{}
	c := NewCoordinator(users, requests, lock.NewMemoryLocker(), atomic, Config{
		LockWait: 50 * time.Millisecond, LockLease: time.Minute, MaxPendingAge: time.Hour,
	}, nil)
	ctx := context.Background()

	if _, err := c.Submit(ctx, "user-a", "user-b", ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := c.Accept(ctx, "user-b", "user-a"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if atomic.calls != 1 {
		t.Fatalf("expected atomic store to commit the writes, got %d calls", atomic.calls)
	}
	if len(users.updates) != 0 {
		t.Fatalf("sequential path must not run when atomic store is present: %v", users.updates)
	}
}

func TestCancel(t *testing.T) {
	users := seedUsers()
	requests := newMemRequests()
	c := testCoordinator(users, requests)
	ctx := context.Background()

	request, err := c.Submit(ctx, "user-a", "user-b", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := c.Cancel(ctx, "user-b", request.ID); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("non-owner cancel must fail with ErrNotFound, got %v", err)
	}

	if err := c.Cancel(ctx, "user-a", request.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := requests.byID[request.ID].Status; got != models.RequestStatusRevoked {
		t.Fatalf("expected revoked got %q", got)
	}

	if err := c.Cancel(ctx, "user-a", request.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("cancel of revoked request must fail with ErrInvalidState, got %v", err)
	}

	// A revoked request is no longer acceptable.
	if err := c.Accept(ctx, "user-b", "user-a"); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after revoke got %v", err)
	}
}

func TestCountUnreadAndMarkRead(t *testing.T) {
	users := newMemUsers(
		models.User{ID: "user-a", Username: "alice"},
		models.User{ID: "user-b", Username: "bob"},
		models.User{ID: "user-c", Username: "carol"},
	)
	requests := newMemRequests()
	c := testCoordinator(users, requests)
	ctx := context.Background()

	first, err := c.Submit(ctx, "user-a", "user-b", "")
	if err != nil {
		t.Fatalf("submit a: %v", err)
	}
	second, err := c.Submit(ctx, "user-c", "user-b", "")
	if err != nil {
		t.Fatalf("submit c: %v", err)
	}

	count, err := c.CountUnread(ctx, "user-b")
	if err != nil {
		t.Fatalf("count unread: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 unread got %d", count)
	}

	receipts := c.MarkRead(ctx, "user-b", []string{first.ID, "missing", second.ID})
	if len(receipts) != 3 {
		t.Fatalf("expected receipt per id got %d", len(receipts))
	}
	if !receipts[0].Updated || receipts[0].Err != nil {
		t.Fatalf("first receipt: %+v", receipts[0])
	}
	if receipts[1].Err == nil {
		t.Fatalf("missing id must surface an error")
	}
	if !receipts[2].Updated {
		t.Fatalf("third receipt: %+v", receipts[2])
	}

	count, err = c.CountUnread(ctx, "user-b")
	if err != nil {
		t.Fatalf("count unread after mark: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 unread got %d", count)
	}

	// Marking an already-read request is a no-op, not an error.
	again := c.MarkRead(ctx, "user-b", []string{first.ID})
	if again[0].Updated || again[0].Err != nil {
		t.Fatalf("re-mark receipt: %+v", again[0])
	}
}

func TestListIncomingOutgoing(t *testing.T) {
	users := newMemUsers(
		models.User{ID: "user-a", Username: "alice"},
		models.User{ID: "user-b", Username: "bob"},
		models.User{ID: "user-c", Username: "carol"},
	)
	requests := newMemRequests()
	c := testCoordinator(users, requests)
	ctx := context.Background()

	if _, err := c.Submit(ctx, "user-a", "user-b", ""); err != nil {
		t.Fatalf("submit a: %v", err)
	}
	if _, err := c.Submit(ctx, "user-c", "user-b", ""); err != nil {
		t.Fatalf("submit c: %v", err)
	}

	incoming, err := c.ListIncoming(ctx, "user-b")
	if err != nil {
		t.Fatalf("list incoming: %v", err)
	}
	if len(incoming) != 2 {
		t.Fatalf("expected 2 incoming got %d", len(incoming))
	}
	// Newest first.
	if incoming[0].Counterpart.Username != "carol" || incoming[1].Counterpart.Username != "alice" {
		t.Fatalf("unexpected order: %+v", incoming)
	}

	outgoing, err := c.ListOutgoing(ctx, "user-a")
	if err != nil {
		t.Fatalf("list outgoing: %v", err)
	}
	if len(outgoing) != 1 || outgoing[0].Counterpart.Username != "bob" {
		t.Fatalf("unexpected outgoing: %+v", outgoing)
	}
}
