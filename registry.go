package grant

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Role names a connection's position in a primary/replica topology.
type Role string

const (
	RolePrimary Role = "primary"
	RoleReplica Role = "replica"
)

// connKey identifies one entry in the Registry: a logical database name, a
// role, and an optional shard name (empty for unsharded databases).
type connKey struct {
	database string
	role     Role
	shard    string
}

func (k connKey) String() string {
	if k.shard == "" {
		return fmt.Sprintf("%s:%s", k.database, k.role)
	}
	return fmt.Sprintf("%s:%s:%s", k.database, k.role, k.shard)
}

type registryEntry struct {
	db      *sql.DB
	dialect Dialect
	healthy bool
}

// replicaPoolKey identifies the pool of interchangeable replicas for one
// (database, shard) pair. Uses a NUL separator since database/shard names
// are operator-chosen and could otherwise collide on a printable one.
func replicaPoolKey(database, shard string) string {
	return database + "\x00" + shard
}

// Runtime is the single injected value that owns every piece of shared,
// mutable state the package would otherwise keep as a singleton: the
// connection registry, health monitor, replica load balancer, polymorphic
// type table, and shard manager. One Runtime is all a process normally
// needs; tests construct their own via NewRuntime so they don't contend on
// or leak state between each other.
type Runtime struct {
	mu    sync.RWMutex
	conns map[connKey]*registryEntry

	// replicas holds every reading connection registered for a given
	// (database, shard) pair, keyed by replicaPoolKey. Unlike conns (one
	// slot per key, last Register wins), registering a second replica for
	// the same key appends to this pool instead of overwriting the first,
	// so GetAdapter's reading path has more than one candidate to balance
	// across.
	replicas map[string][]*registryEntry

	lb LoadBalancer

	healthInterval time.Duration
	healthDisabled bool
	stopHealth     chan struct{}
	healthOnce     sync.Once

	polymorphic map[string]func() any
	shards      *ShardManager
	encryption  *EncryptionRegistry
}

var defaultRuntime = NewRuntime()

// DefaultRuntime returns the process-wide Runtime used by package-level
// convenience functions (New, SetGlobalDB, Configure, and friends), giving
// callers package-level ergonomics without requiring per-test isolation.
func DefaultRuntime() *Runtime { return defaultRuntime }

// NewRuntime builds an isolated Runtime with its own connection registry and
// health monitor, independent of DefaultRuntime. Intended for tests and for
// hosting multiple independently-configured ORM instances in one process.
func NewRuntime() *Runtime {
	r := &Runtime{
		conns:          make(map[connKey]*registryEntry),
		replicas:       make(map[string][]*registryEntry),
		lb:             &RoundRobinLoadBalancer{},
		healthInterval: 30 * time.Second,
		polymorphic:    make(map[string]func() any),
	}
	r.shards = newShardManager(r)
	r.encryption = NewEncryptionRegistry()
	return r
}

// EstablishConnection registers db under (database, role, shard) and
// resolves its Dialect from the driver name reported by sql.Open. The
// connection starts out marked healthy; the background health monitor (once
// started) will flip it on ping failure.
func (r *Runtime) EstablishConnection(database string, role Role, shard string, db *sql.DB, driverName string) error {
	dialect, err := DialectByDriver(driverName)
	if err != nil {
		return err
	}
	r.Register(database, role, shard, db, dialect)
	return nil
}

// Register is EstablishConnection for callers that already know the Dialect
// and don't have a database/sql driver name to resolve it from (the
// package-level GlobalDB compatibility shim, mainly). Registering a replica
// for a (database, shard) pair that already has one adds it to that pair's
// pool rather than replacing the existing entry, so GetAdapter's reading
// path has every registered replica to balance across.
func (r *Runtime) Register(database string, role Role, shard string, db *sql.DB, dialect Dialect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := &registryEntry{db: db, dialect: dialect, healthy: true}
	r.conns[connKey{database, role, shard}] = entry
	if role == RoleReplica {
		key := replicaPoolKey(database, shard)
		r.replicas[key] = append(r.replicas[key], entry)
	}
}

// SetLoadBalancer replaces the strategy GetAdapter uses to pick among
// multiple healthy replicas registered for the same (database, shard) pair.
// Defaults to round-robin.
func (r *Runtime) SetLoadBalancer(lb LoadBalancer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lb = lb
}

// GetAdapter resolves a connection for (database, role, shard). For
// role == RoleReplica it balances across every healthy replica registered
// for (database, shard) via the Runtime's LoadBalancer (falling back to the
// unsharded replica pool, then to the primary); for any other role it
// resolves the exact entry, falling back to an unsharded entry for the same
// role, then to the primary. It returns ErrNoAdapter only once every
// fallback is exhausted.
func (r *Runtime) GetAdapter(database string, role Role, shard string) (*sql.DB, Dialect, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if role == RoleReplica {
		if db, dialect, ok := r.pickReplica(database, shard); ok {
			return db, dialect, nil
		}
		if shard != "" {
			if db, dialect, ok := r.pickReplica(database, ""); ok {
				return db, dialect, nil
			}
		}
	} else {
		if e, ok := r.conns[connKey{database, role, shard}]; ok && e.healthy {
			return e.db, e.dialect, nil
		}
		if shard != "" {
			if e, ok := r.conns[connKey{database, role, ""}]; ok && e.healthy {
				return e.db, e.dialect, nil
			}
		}
	}

	if role != RolePrimary {
		if e, ok := r.conns[connKey{database, RolePrimary, shard}]; ok && e.healthy {
			return e.db, e.dialect, nil
		}
		if e, ok := r.conns[connKey{database, RolePrimary, ""}]; ok && e.healthy {
			return e.db, e.dialect, nil
		}
	}

	return nil, nil, fmt.Errorf("%w: database %q role %q shard %q", ErrNoAdapter, database, role, shard)
}

// pickReplica balances across every healthy replica registered for
// (database, shard) using the Runtime's LoadBalancer. Caller must hold at
// least r.mu.RLock.
func (r *Runtime) pickReplica(database, shard string) (*sql.DB, Dialect, bool) {
	entries := r.replicas[replicaPoolKey(database, shard)]
	if len(entries) == 0 {
		return nil, "", false
	}

	healthy := make([]*registryEntry, 0, len(entries))
	dbs := make([]*sql.DB, 0, len(entries))
	for _, e := range entries {
		if e.healthy {
			healthy = append(healthy, e)
			dbs = append(dbs, e.db)
		}
	}
	if len(dbs) == 0 {
		return nil, "", false
	}

	lb := r.lb
	if lb == nil {
		lb = &RoundRobinLoadBalancer{}
	}
	chosen := lb.Next(dbs)
	if chosen == nil {
		return nil, "", false
	}
	for _, e := range healthy {
		if e.db == chosen {
			return e.db, e.dialect, true
		}
	}
	return nil, "", false
}

// Replicas returns every healthy replica registered for database, across
// every shard, for use by a LoadBalancer.
func (r *Runtime) Replicas(database string) []*sql.DB {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefix := database + "\x00"
	var out []*sql.DB
	for key, entries := range r.replicas {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		for _, e := range entries {
			if e.healthy {
				out = append(out, e.db)
			}
		}
	}
	return out
}

// ClearAll closes every registered connection (primaries and every pooled
// replica) and empties the registry. Intended for test teardown.
func (r *Runtime) ClearAll() error {
	r.StopHealthMonitor()

	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	closed := make(map[*sql.DB]bool)
	for k, e := range r.conns {
		if !closed[e.db] {
			if err := e.db.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			closed[e.db] = true
		}
		delete(r.conns, k)
	}
	for key, entries := range r.replicas {
		for _, e := range entries {
			if !closed[e.db] {
				if err := e.db.Close(); err != nil && firstErr == nil {
					firstErr = err
				}
				closed[e.db] = true
			}
		}
		delete(r.replicas, key)
	}
	return firstErr
}

// DisableHealthMonitor prevents StartHealthMonitor from spawning a
// background goroutine; every connection is always reported healthy. Tests
// that never run against a live database call this so GetAdapter doesn't
// depend on a reachable network.
func (r *Runtime) DisableHealthMonitor() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.healthDisabled = true
}

// StartHealthMonitor launches a background goroutine that pings every
// registered connection on the given interval (errgroup fans the probes out
// concurrently each tick) and marks unreachable connections unhealthy so
// GetAdapter and the replica load balancer skip them. Calling it twice, or
// after DisableHealthMonitor, is a no-op.
func (r *Runtime) StartHealthMonitor(ctx context.Context, interval time.Duration) {
	r.mu.Lock()
	if r.healthDisabled {
		r.mu.Unlock()
		return
	}
	if interval > 0 {
		r.healthInterval = interval
	}
	r.mu.Unlock()

	r.healthOnce.Do(func() {
		r.stopHealth = make(chan struct{})
		go r.healthLoop(ctx)
	})
}

// StopHealthMonitor stops a running health-monitor goroutine, if any.
func (r *Runtime) StopHealthMonitor() {
	r.mu.Lock()
	stop := r.stopHealth
	r.stopHealth = nil
	r.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

func (r *Runtime) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(r.healthInterval)
	defer ticker.Stop()

	r.mu.RLock()
	stop := r.stopHealth
	r.mu.RUnlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			r.probeAll(ctx)
		}
	}
}

// probeAll pings every distinct registered connection, including every
// replica in every pool, and writes the result back to its healthy flag. A
// replica's *registryEntry is shared between r.conns and its pool, so
// probing it once here updates both r.conns and r.replicas.
func (r *Runtime) probeAll(ctx context.Context) {
	r.mu.RLock()
	seen := make(map[*registryEntry]bool)
	entries := make([]*registryEntry, 0, len(r.conns))
	for _, e := range r.conns {
		if !seen[e] {
			seen[e] = true
			entries = append(entries, e)
		}
	}
	for _, pool := range r.replicas {
		for _, e := range pool {
			if !seen[e] {
				seen[e] = true
				entries = append(entries, e)
			}
		}
	}
	r.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	results := make([]bool, len(entries))
	for i := range entries {
		i := i
		g.Go(func() error {
			pingCtx, cancel := context.WithTimeout(gctx, 5*time.Second)
			defer cancel()
			results[i] = entries[i].db.PingContext(pingCtx) == nil
			return nil
		})
	}
	_ = g.Wait()

	r.mu.Lock()
	for i, e := range entries {
		e.healthy = results[i]
	}
	r.mu.Unlock()
}

// RegisterPolymorphicType associates name (the value stored in a
// polymorphic `<assoc>_type` column) with a zero-value constructor, so
// MorphTo can resolve a concrete type without relying on reflection over a
// Go type name that may not match what was persisted.
func (r *Runtime) RegisterPolymorphicType(name string, zero func() any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polymorphic[name] = zero
}

// PolymorphicType looks up a type registered via RegisterPolymorphicType.
func (r *Runtime) PolymorphicType(name string) (func() any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.polymorphic[name]
	return fn, ok
}

// Shards returns this Runtime's ShardManager.
func (r *Runtime) Shards() *ShardManager { return r.shards }

// Encryption returns this Runtime's EncryptionRegistry.
func (r *Runtime) Encryption() *EncryptionRegistry { return r.encryption }
