package guard

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"
)

// IDSource streams the identifiers of one entity class out of the store.
type IDSource interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// SnapshotStore persists serialized membership sets between restarts.
type SnapshotStore interface {
	Save(ctx context.Context, name string, content []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
}

// PopulatorConfig sizes the filters and bounds the scan rate.
type PopulatorConfig struct {
	ExpectedPerSet    uint
	FalsePositiveRate float64
	ScanRatePerSecond int
}

// Populator fills the guard's membership sets at startup, either from a
// stored snapshot or from a rate-limited full scan of the entity store.
type Populator struct {
	guard     *Guard
	sources   map[Namespace]IDSource
	snapshots SnapshotStore
	cfg       PopulatorConfig
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewPopulator wires a populator. snapshots may be nil, in which case every
// startup performs the full scan.
func NewPopulator(g *Guard, sources map[Namespace]IDSource, snapshots SnapshotStore, cfg PopulatorConfig, logger *slog.Logger) *Populator {
	if cfg.ScanRatePerSecond <= 0 {
		cfg.ScanRatePerSecond = 5000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Populator{
		guard:     g,
		sources:   sources,
		snapshots: snapshots,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.ScanRatePerSecond), cfg.ScanRatePerSecond),
		logger:    logger,
	}
}

// Warm populates every namespace. Snapshot failures fall back to scanning;
// scan failures abort, since serving probes from an empty set would reject
// identifiers that exist.
func (p *Populator) Warm(ctx context.Context) error {
	for ns, source := range p.sources {
		if set := p.restore(ctx, ns); set != nil {
			p.guard.Register(ns, set)
			continue
		}

		set, err := p.scan(ctx, ns, source)
		if err != nil {
			return fmt.Errorf("populate guard namespace %s: %w", ns, err)
		}
		p.guard.Register(ns, set)
		p.snapshot(ctx, ns, set)
	}
	return nil
}

func (p *Populator) restore(ctx context.Context, ns Namespace) *BloomSet {
	if p.snapshots == nil {
		return nil
	}

	data, err := p.snapshots.Load(ctx, snapshotKey(ns))
	if err != nil {
		p.logger.Info("guard snapshot unavailable, scanning", "namespace", string(ns), "error", err)
		return nil
	}

	set, err := RestoreBloomSet(data)
	if err != nil {
		p.logger.Warn("guard snapshot corrupt, scanning", "namespace", string(ns), "error", err)
		return nil
	}

	p.logger.Info("guard restored from snapshot", "namespace", string(ns))
	return set
}

func (p *Populator) scan(ctx context.Context, ns Namespace, source IDSource) (*BloomSet, error) {
	ids, err := source.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}

	set := NewBloomSet(p.cfg.ExpectedPerSet, p.cfg.FalsePositiveRate)
	for _, id := range ids {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		set.Add(id)
	}

	p.logger.Info("guard populated from scan", "namespace", string(ns), "ids", len(ids))
	return set, nil
}

func (p *Populator) snapshot(ctx context.Context, ns Namespace, set *BloomSet) {
	if p.snapshots == nil {
		return
	}

	data, err := set.Snapshot()
	if err != nil {
		p.logger.Warn("guard snapshot serialize failed", "namespace", string(ns), "error", err)
		return
	}
	if err := p.snapshots.Save(ctx, snapshotKey(ns), data); err != nil {
		p.logger.Warn("guard snapshot upload failed", "namespace", string(ns), "error", err)
	}
}

func snapshotKey(ns Namespace) string {
	return fmt.Sprintf("guard/%s.bloom", ns)
}
