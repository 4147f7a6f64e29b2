package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/findfriends/backend/internal/db"
	"github.com/findfriends/backend/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// GetByID fetches a user by identifier.
func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, username, avatar_url, role, friend_ids, created_at, updated_at
        FROM users
        WHERE id = $1
    `, id)

	var user models.User
	if err := row.Scan(&user.ID, &user.Username, &user.AvatarURL, &user.Role, &user.FriendIDs, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by id: %w", err)
	}

	return user, nil
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, username, avatar_url, role, friend_ids, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, user.ID, user.Username, user.AvatarURL, user.Role, user.FriendIDs, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// Update modifies an existing user record.
func (r *PostgresUserRepository) Update(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET username = $2, avatar_url = $3, role = $4, friend_ids = $5, updated_at = $6
        WHERE id = $1
    `, user.ID, user.Username, user.AvatarURL, user.Role, user.FriendIDs, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ListIDs returns every user identifier, used to warm the existence guard.
func (r *PostgresUserRepository) ListIDs(ctx context.Context) ([]string, error) {
	return listIDs(ctx, r.pool, `SELECT id FROM users`)
}

// PostgresTeamRepository provides PostgreSQL-backed persistence for teams.
type PostgresTeamRepository struct {
	pool db.Pool
}

// NewPostgresTeamRepository constructs a team repository backed by PostgreSQL.
func NewPostgresTeamRepository(pool db.Pool) *PostgresTeamRepository {
	return &PostgresTeamRepository{pool: pool}
}

// GetByID fetches a team by identifier.
func (r *PostgresTeamRepository) GetByID(ctx context.Context, id string) (models.Team, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Team{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, name, owner_id, created_at
        FROM teams
        WHERE id = $1
    `, id)

	var team models.Team
	if err := row.Scan(&team.ID, &team.Name, &team.OwnerID, &team.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Team{}, ErrNotFound
		}
		return models.Team{}, fmt.Errorf("select team by id: %w", err)
	}

	return team, nil
}

// ListIDs returns every team identifier.
func (r *PostgresTeamRepository) ListIDs(ctx context.Context) ([]string, error) {
	return listIDs(ctx, r.pool, `SELECT id FROM teams`)
}

// PostgresFriendRequestRepository provides PostgreSQL-backed persistence for friend requests.
type PostgresFriendRequestRepository struct {
	pool db.Pool
}

// NewPostgresFriendRequestRepository constructs a friend request repository backed by PostgreSQL.
func NewPostgresFriendRequestRepository(pool db.Pool) *PostgresFriendRequestRepository {
	return &PostgresFriendRequestRepository{pool: pool}
}

// GetByID fetches a friend request by identifier.
func (r *PostgresFriendRequestRepository) GetByID(ctx context.Context, id string) (models.FriendRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.FriendRequest{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, from_id, receive_id, status, is_read, remark, created_at
        FROM friend_requests
        WHERE id = $1
    `, id)

	var request models.FriendRequest
	if err := row.Scan(&request.ID, &request.FromID, &request.ReceiveID, &request.Status, &request.IsRead, &request.Remark, &request.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.FriendRequest{}, ErrNotFound
		}
		return models.FriendRequest{}, fmt.Errorf("select friend request by id: %w", err)
	}

	return request, nil
}

// FindByPair returns every request for the ordered (fromID, receiveID) pair.
func (r *PostgresFriendRequestRepository) FindByPair(ctx context.Context, fromID, receiveID string) ([]models.FriendRequest, error) {
	return r.query(ctx, `
        SELECT id, from_id, receive_id, status, is_read, remark, created_at
        FROM friend_requests
        WHERE from_id = $1 AND receive_id = $2
        ORDER BY created_at ASC
    `, fromID, receiveID)
}

// ListForReceiver returns all requests targeting the given user, newest first.
func (r *PostgresFriendRequestRepository) ListForReceiver(ctx context.Context, receiveID string) ([]models.FriendRequest, error) {
	return r.query(ctx, `
        SELECT id, from_id, receive_id, status, is_read, remark, created_at
        FROM friend_requests
        WHERE receive_id = $1
        ORDER BY created_at DESC
    `, receiveID)
}

// ListForRequester returns all requests submitted by the given user, newest first.
func (r *PostgresFriendRequestRepository) ListForRequester(ctx context.Context, fromID string) ([]models.FriendRequest, error) {
	return r.query(ctx, `
        SELECT id, from_id, receive_id, status, is_read, remark, created_at
        FROM friend_requests
        WHERE from_id = $1
        ORDER BY created_at DESC
    `, fromID)
}

// Create persists a new friend request.
func (r *PostgresFriendRequestRepository) Create(ctx context.Context, request models.FriendRequest) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO friend_requests (id, from_id, receive_id, status, is_read, remark, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, request.ID, request.FromID, request.ReceiveID, request.Status, request.IsRead, request.Remark, request.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrConflict
			case "23503":
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert friend request: %w", err)
	}

	return nil
}

// Update modifies the status, read flag, and remark of a friend request.
func (r *PostgresFriendRequestRepository) Update(ctx context.Context, request models.FriendRequest) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE friend_requests
        SET status = $2, is_read = $3, remark = $4
        WHERE id = $1
    `, request.ID, request.Status, request.IsRead, request.Remark)
	if err != nil {
		return fmt.Errorf("update friend request: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *PostgresFriendRequestRepository) query(ctx context.Context, sql string, args ...any) ([]models.FriendRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query friend requests: %w", err)
	}
	defer rows.Close()

	var requests []models.FriendRequest
	for rows.Next() {
		var request models.FriendRequest
		if err := rows.Scan(&request.ID, &request.FromID, &request.ReceiveID, &request.Status, &request.IsRead, &request.Remark, &request.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan friend request: %w", err)
		}
		requests = append(requests, request)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friend requests: %w", err)
	}

	return requests, nil
}

// PostgresChatMessageRepository provides PostgreSQL-backed reads of conversation history.
type PostgresChatMessageRepository struct {
	pool db.Pool
}

// NewPostgresChatMessageRepository constructs a chat message repository backed by PostgreSQL.
func NewPostgresChatMessageRepository(pool db.Pool) *PostgresChatMessageRepository {
	return &PostgresChatMessageRepository{pool: pool}
}

// FindDirect returns direct messages exchanged between the two users in either
// direction, oldest first.
func (r *PostgresChatMessageRepository) FindDirect(ctx context.Context, userID, peerID string) ([]models.ChatMessage, error) {
	return r.query(ctx, `
        SELECT id, from_id, to_id, team_id, chat_type, text, created_at
        FROM chat_messages
        WHERE chat_type = $1
          AND ((from_id = $2 AND to_id = $3) OR (from_id = $3 AND to_id = $2))
        ORDER BY created_at ASC
    `, models.ChatTypeDirect, userID, peerID)
}

// FindByTeam returns the group conversation for a team, oldest first.
func (r *PostgresChatMessageRepository) FindByTeam(ctx context.Context, teamID string) ([]models.ChatMessage, error) {
	return r.query(ctx, `
        SELECT id, from_id, to_id, team_id, chat_type, text, created_at
        FROM chat_messages
        WHERE chat_type = $1 AND team_id = $2
        ORDER BY created_at ASC
    `, models.ChatTypeGroup, teamID)
}

// FindBroadcast returns the broadcast conversation, oldest first.
func (r *PostgresChatMessageRepository) FindBroadcast(ctx context.Context) ([]models.ChatMessage, error) {
	return r.query(ctx, `
        SELECT id, from_id, to_id, team_id, chat_type, text, created_at
        FROM chat_messages
        WHERE chat_type = $1
        ORDER BY created_at ASC
    `, models.ChatTypeBroadcast)
}

func (r *PostgresChatMessageRepository) query(ctx context.Context, sql string, args ...any) ([]models.ChatMessage, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var message models.ChatMessage
		if err := rows.Scan(&message.ID, &message.FromID, &message.ToID, &message.TeamID, &message.ChatType, &message.Text, &message.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}

	return messages, nil
}

func listIDs(ctx context.Context, pool db.Pool, sql string) ([]string, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}

	return ids, nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ TeamRepository = (*PostgresTeamRepository)(nil)
var _ FriendRequestRepository = (*PostgresFriendRequestRepository)(nil)
var _ ChatMessageRepository = (*PostgresChatMessageRepository)(nil)
