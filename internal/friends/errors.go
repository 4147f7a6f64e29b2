package friends

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest indicates malformed input, rejected before any side effect.
	ErrInvalidRequest = errors.New("invalid friend request")
	// ErrSelfReference indicates a user tried to befriend themselves.
	ErrSelfReference = fmt.Errorf("%w: cannot befriend yourself", ErrInvalidRequest)
	// ErrRemarkTooLong indicates the remark exceeds the maximum length.
	ErrRemarkTooLong = fmt.Errorf("%w: remark too long", ErrInvalidRequest)
	// ErrDuplicateRequest indicates a pending request already exists for the pair.
	ErrDuplicateRequest = errors.New("request already pending")
	// ErrRequestExpired indicates the pending request outlived the maximum age
	// before it was accepted.
	ErrRequestExpired = errors.New("request expired")
	// ErrInvalidState indicates an operation on a request that already left
	// the pending state.
	ErrInvalidState = errors.New("request not pending")
	// ErrInconsistentState indicates more than one pending request exists for
	// an ordered pair. The submit invariant was violated upstream; this is a
	// data-integrity alarm, never resolved silently.
	ErrInconsistentState = errors.New("conflicting pending requests")
	// ErrLockBusy indicates the submission lock could not be taken within the
	// wait window. A soft failure: the caller may simply retry.
	ErrLockBusy = errors.New("submission lock busy")
)
