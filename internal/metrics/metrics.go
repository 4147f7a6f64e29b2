package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	GuardRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "findfriends_guard_rejections_total",
		Help: "Lookups short-circuited by the existence guard, per namespace.",
	}, []string{"namespace"})

	ChatCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "findfriends_chat_cache_hits_total",
		Help: "Conversation reads served from the cache, per scope.",
	}, []string{"scope"})
	ChatCacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "findfriends_chat_cache_misses_total",
		Help: "Conversation reads that fell through to the store, per scope.",
	}, []string{"scope"})

	LockTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "findfriends_friend_lock_timeouts_total",
		Help: "Friend-request submissions rejected because the lock wait expired.",
	})
	FriendshipsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "findfriends_friendships_accepted_total",
		Help: "Friend requests successfully transitioned to agreed.",
	})
)

// Register installs all collectors on the default registry.
func Register() {
	prometheus.MustRegister(
		GuardRejections,
		ChatCacheHits, ChatCacheMisses,
		LockTimeouts, FriendshipsAccepted,
	)
}
