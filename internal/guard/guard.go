package guard

import (
	"log/slog"
	"sync"

	"github.com/findfriends/backend/internal/metrics"
	"github.com/findfriends/backend/internal/repositories"
)

// Namespace identifies an entity class protected by the guard.
type Namespace string

const (
	NamespaceUser Namespace = "user"
	NamespaceTeam Namespace = "team"
	NamespaceBlog Namespace = "blog"
)

// Membership is a probabilistic set: never a false negative, small configured
// chance of a false positive.
type Membership interface {
	Contains(id string) (bool, error)
}

// Guard gates entity-by-id lookups behind a membership probe so identifiers
// that never existed are rejected before they reach the store. The guard is
// an optimization, not a source of truth: when disabled, unpopulated, or
// failing internally it passes every probe.
type Guard struct {
	enabled bool
	logger  *slog.Logger

	mu   sync.RWMutex
	sets map[Namespace]Membership
}

// New constructs a guard. Sets are attached later by the populator.
func New(enabled bool, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		enabled: enabled,
		logger:  logger,
		sets:    make(map[Namespace]Membership),
	}
}

// Register attaches a populated membership set for the namespace, replacing
// any previous one.
func (g *Guard) Register(ns Namespace, set Membership) {
	g.mu.Lock()
	g.sets[ns] = set
	g.mu.Unlock()
}

// Probe reports whether the identifier may exist. A true result only licenses
// the authoritative lookup; a false result means the identifier was not part
// of the set at build time.
func (g *Guard) Probe(ns Namespace, id string) bool {
	if !g.enabled {
		return true
	}

	g.mu.RLock()
	set, ok := g.sets[ns]
	g.mu.RUnlock()
	if !ok || set == nil {
		g.logger.Warn("guard probe without membership set", "namespace", string(ns))
		return true
	}

	contains, err := set.Contains(id)
	if err != nil {
		g.logger.Warn("guard membership check failed", "namespace", string(ns), "error", err)
		return true
	}
	if !contains {
		metrics.GuardRejections.WithLabelValues(string(ns)).Inc()
	}
	return contains
}

// Check is Probe for callers that gate reads with an error: a negative probe
// becomes repositories.ErrNotFound without touching the store.
func (g *Guard) Check(ns Namespace, id string) error {
	if !g.Probe(ns, id) {
		return repositories.ErrNotFound
	}
	return nil
}
