package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/findfriends/backend/internal/cache"
	"github.com/findfriends/backend/internal/chat"
	"github.com/findfriends/backend/internal/config"
	"github.com/findfriends/backend/internal/db"
	"github.com/findfriends/backend/internal/friends"
	"github.com/findfriends/backend/internal/guard"
	"github.com/findfriends/backend/internal/lock"
	"github.com/findfriends/backend/internal/repositories"
	"github.com/findfriends/backend/internal/storage"
)

// Dependencies bundles the concrete implementations behind the service's
// domain entry points.
type Dependencies struct {
	Users    *repositories.PostgresUserRepository
	Teams    *repositories.PostgresTeamRepository
	Requests *repositories.PostgresFriendRequestRepository
	Messages *repositories.PostgresChatMessageRepository

	Friends   *friends.Coordinator
	History   *chat.History
	Guard     *guard.Guard
	Populator *guard.Populator
}

// buildDependencies wires together the concrete implementations used by the
// service.
func buildDependencies(ctx context.Context, pool db.Pool, rdb *redis.Client, cfg config.Config, logger *slog.Logger) (Dependencies, error) {
	users := repositories.NewPostgresUserRepository(pool)
	teams := repositories.NewPostgresTeamRepository(pool)
	requests := repositories.NewPostgresFriendRequestRepository(pool)
	messages := repositories.NewPostgresChatMessageRepository(pool)

	kv := cache.NewRedisCache(rdb)
	locker := lock.NewRedsyncLocker(rdb)

	coordinator := friends.NewCoordinator(users, requests, locker,
		repositories.NewPostgresAcceptStore(pool),
		friends.Config{
			LockWait:      cfg.Lock.Wait,
			LockLease:     cfg.Lock.Lease,
			MaxPendingAge: cfg.Chat.MaxPendingAge,
		}, logger)

	history := chat.NewHistory(messages, users, teams, kv, chat.Config{
		BaseMinutes:  cfg.Chat.BaseMinutes,
		MinJitter:    cfg.Chat.MinJitter,
		MaxJitter:    cfg.Chat.MaxJitter,
		JitterOffset: cfg.Chat.JitterOffset,
	}, logger)

	g := guard.New(cfg.Guard.Enabled, logger)

	// Snapshots skip the full id scan on restart; without a bucket every
	// startup scans.
	var snapshots guard.SnapshotStore
	if cfg.Snapshots.Bucket != "" {
		s3, err := storage.NewS3Storage(ctx, cfg.Snapshots)
		if err != nil {
			return Dependencies{}, err
		}
		snapshots = s3
	}

	// Blog lookups have no backing table in this service yet, so that
	// namespace stays unregistered and its probes fail open.
	populator := guard.NewPopulator(g, map[guard.Namespace]guard.IDSource{
		guard.NamespaceUser: users,
		guard.NamespaceTeam: teams,
	}, snapshots, guard.PopulatorConfig{
		ExpectedPerSet:    cfg.Guard.ExpectedPerSet,
		FalsePositiveRate: cfg.Guard.FalsePositiveRate,
		ScanRatePerSecond: cfg.Guard.ScanRatePerSecond,
	}, logger)

	return Dependencies{
		Users:     users,
		Teams:     teams,
		Requests:  requests,
		Messages:  messages,
		Friends:   coordinator,
		History:   history,
		Guard:     g,
		Populator: populator,
	}, nil
}

func registerOpsRoutes(mux *http.ServeMux, pool db.Pool) {
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		status := "ok"
		code := http.StatusOK
		conn, err := pool.Acquire(r.Context())
		if err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		} else {
			if err := conn.Ping(r.Context()); err != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
			conn.Release()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	})
}
