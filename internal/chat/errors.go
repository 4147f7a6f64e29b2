package chat

import "errors"

var (
	// ErrMissingViewer indicates the caller did not identify themselves.
	ErrMissingViewer = errors.New("viewer id required")
	// ErrMissingPeer indicates a direct-conversation read without a peer.
	ErrMissingPeer = errors.New("peer id required")
	// ErrMissingTeam indicates a group-conversation read without a team.
	ErrMissingTeam = errors.New("team id required")
)
