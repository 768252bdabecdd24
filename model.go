package grant

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mitchellh/mapstructure"
)

// modelPools stores sync.Pool instances for each model type.
// Key is the reflect.Type of the model struct.
var modelPools sync.Map

// defaultDatabase is the logical database name the package-level GlobalDB
// compatibility shim registers under in DefaultRuntime's connection registry.
const defaultDatabase = "default"

// globalDB is the atomic pointer to the global database connection pool.
// Use GetGlobalDB() and SetGlobalDB() for thread-safe access.
var globalDB atomic.Pointer[sql.DB]

// GlobalDB is the global database connection pool.
// For thread-safe access in concurrent code, prefer SetGlobalDB() for writes.
// Reads via GetGlobalDB() will check both this variable and the atomic pointer
// for backwards compatibility with code that directly assigns to GlobalDB.
var GlobalDB *sql.DB

// GetGlobalDB returns the global database connection in a thread-safe manner.
// For backwards compatibility, it checks both the atomic pointer and the
// deprecated GlobalDB variable, preferring the atomic if set.
//
// This is a thin shim over DefaultRuntime's connection registry: reads and
// writes to GlobalDB stay in sync with the (defaultDatabase, RolePrimary, "")
// entry in DefaultRuntime(), so code resolving connections through the
// Runtime (sharding, the health monitor, replica routing) sees the same
// connection as code still using the package-level variable directly.
func GetGlobalDB() *sql.DB {
	// First check atomic pointer (thread-safe path)
	if db := globalDB.Load(); db != nil {
		return db
	}
	// Fall back to the deprecated variable for backwards compatibility with
	// code that does "GlobalDB = db" directly instead of calling SetGlobalDB.
	if GlobalDB != nil {
		return GlobalDB
	}
	// Finally, fall back to whatever a caller registered directly with the
	// Runtime (e.g. via DefaultRuntime().EstablishConnection(...)) without
	// going through this compatibility shim at all.
	if db, _, err := DefaultRuntime().GetAdapter(defaultDatabase, RolePrimary, ""); err == nil {
		return db
	}
	return nil
}

// SetGlobalDB sets the global database connection in a thread-safe manner.
// This also updates the GlobalDB variable for backwards compatibility and
// registers db as the primary, unsharded connection in DefaultRuntime so
// Runtime-aware code (sharding, scatter-gather, the health monitor) resolves
// the same connection. The dialect defaults to Postgres, matching rebind's
// existing default; callers on another dialect should register explicitly
// via DefaultRuntime().EstablishConnection instead.
func SetGlobalDB(db *sql.DB) {
	globalDB.Store(db)
	GlobalDB = db // Keep in sync for backwards compatibility
	DefaultRuntime().Register(defaultDatabase, RolePrimary, "", db, Postgres)
}

// globalResolver is the atomic pointer to the database resolver for primary/replica setup.
// Using atomic.Pointer ensures thread-safe read/write access.
var globalResolver atomic.Pointer[DBResolver]

// GetGlobalResolver returns the current global database resolver.
// Returns nil if no resolver is configured.
func GetGlobalResolver() *DBResolver {
	return globalResolver.Load()
}

// Model provides a strongly typed ORM interface for working with the entity
// type T. It stores the active query state—including selected columns, filters,
// ordering, grouping, relation loading rules, and raw SQL segments—allowing the
// builder to compose complex queries in a structured and chainable manner.
//
// The Model also tracks the execution context, database handle or transaction,
// and metadata derived from T that is used for mapping database rows into
// entities.
//
// Thread Safety: Model instances are NOT safe for concurrent modification.
// Query builder methods (Where, Select, OrderBy, etc.) mutate internal state
// without locking and must not be called concurrently on the same Model instance.
//
// Safe patterns for concurrent use:
//  1. Clone before branching: Call Clone() to create independent copies before
//     modifying in different goroutines. Clone() uses RWMutex internally.
//  2. Create per goroutine: Create new Model instances via New[T]() in each goroutine.
//
// Example:
//
//	base := New[User]().Where("active", true)
//	// SAFE: Clone before concurrent use
//	go func() { base.Clone().Where("role", "admin").Get(ctx) }()
//	go func() { base.Clone().Where("role", "user").Get(ctx) }()
//
//	// UNSAFE: Concurrent mutation of same Model
//	go func() { base.Where("role", "admin").Get(ctx) }() // DATA RACE
//	go func() { base.Where("role", "user").Get(ctx) }()  // DATA RACE
type Model[T any] struct {
	mu sync.RWMutex // Protects query state for Clone() operations

	ctx       context.Context
	db        *sql.DB
	tx        *sql.Tx
	modelInfo *ModelInfo

	// Custom Table Name
	tableName string

	// Query Builder State
	columns           []string
	wheres            []string
	args              []any
	orderBys          []string
	groupBys          []string
	havings           []string
	distinct          bool
	distinctOn        []string
	limit             int
	offset            int
	relations         []string
	relationCallbacks map[string]any                 // Map of relation name to callback function
	morphRelations    map[string]map[string][]string // Map of relation -> type -> []relations
	lockMode          string                         // Lock mode for SELECT ... FOR UPDATE/SHARE

	// Resolver State (for primary/replica routing)
	forcePrimary bool // Force use of primary database
	forceReplica int  // Force specific replica (-1 = auto, 0+ = replica index)

	// Raw Query State
	rawQuery string
	rawArgs  []any

	// CTE State
	ctes []CTE

	// Statement Cache (optional)
	stmtCache *StmtCache

	// Omit columns for Update/Save operations
	omitColumns map[string]bool

	// Tracking scope for batch operations with automatic cleanup
	trackingScope *TrackingScope

	// shardName is set by OnShard; empty means unsharded / whatever m.db
	// already points at.
	shardName string

	// Lifecycle hooks and validators. Both nil by default so models
	// that never call WithCallbacks/WithValidators pay no extra cost.
	callbacks  *Callbacks
	validators []*Validator

	// commitQueue is the enclosing transaction's CommitQueue, set by
	// WithTx. Nil outside an explicit Transaction, in which case
	// after_commit/after_*_commit hooks run immediately instead of being
	// deferred (a standalone statement commits as soon as it succeeds).
	commitQueue *CommitQueue
}

// CTE represents a Common Table Expression.
type CTE struct {
	Name  string
	Query any // string or *Model[T]
	Args  []any
}

// New creates a new Model instance for type T.
func New[T any]() *Model[T] {
	return &Model[T]{
		ctx:               context.Background(),
		db:                GetGlobalDB(),
		modelInfo:         ParseModel[T](),
		relationCallbacks: make(map[string]any),
		morphRelations:    make(map[string]map[string][]string),
		forceReplica:      -1, // -1 means auto-select
		wheres:            make([]string, 0, 4),
		args:              make([]any, 0, 4),
	}
}

// getModelPool returns the sync.Pool for the given model type T.
func getModelPool[T any]() *sync.Pool {
	var t T
	typ := reflect.TypeOf(t)

	if pool, ok := modelPools.Load(typ); ok {
		return pool.(*sync.Pool)
	}

	// Parse model info once for this type - will be reused by all pooled instances
	modelInfo := ParseModel[T]()

	// Create new pool
	pool := &sync.Pool{
		New: func() any {
			return &Model[T]{
				modelInfo:         modelInfo,
				relationCallbacks: make(map[string]any),
				morphRelations:    make(map[string]map[string][]string),
				wheres:            make([]string, 0, 4),
				args:              make([]any, 0, 4),
			}
		},
	}
	actual, _ := modelPools.LoadOrStore(typ, pool)
	return actual.(*sync.Pool)
}

// Acquire retrieves a Model[T] from the pool for high-throughput scenarios.
// The returned model is pre-configured with default values and ready for use.
// Call Release() when done to return the model to the pool.
//
// Example:
//
//	m := Acquire[User]()
//	defer m.Release()
//	users, err := m.Where("active", true).Get(ctx)
func Acquire[T any]() *Model[T] {
	pool := getModelPool[T]()
	m := pool.Get().(*Model[T])
	// Save modelInfo before reset since it's set by pool.New and should be reused
	modelInfo := m.modelInfo
	m.reset()
	m.ctx = context.Background()
	m.db = GetGlobalDB()
	m.modelInfo = modelInfo
	m.forceReplica = -1
	return m
}

// Release returns the Model to the pool for reuse.
// After calling Release, the Model should not be used again.
func (m *Model[T]) Release() {
	m.reset()
	pool := getModelPool[T]()
	pool.Put(m)
}

// maxPooledSliceCap is the maximum capacity for slices retained in pooled models.
// Slices larger than this will be replaced to prevent memory bloat.
const maxPooledSliceCap = 64

// reset clears all query state from the model for reuse.
// It carefully balances memory reuse (keeping small allocations) with
// preventing memory bloat (replacing overly large allocations).
func (m *Model[T]) reset() {
	m.ctx = nil
	m.db = nil
	m.tx = nil
	m.tableName = ""

	// Reuse slices if they have reasonable capacity, otherwise replace
	// This prevents memory bloat from queries with many conditions
	if cap(m.columns) <= maxPooledSliceCap {
		m.columns = m.columns[:0]
	} else {
		m.columns = nil
	}
	if cap(m.wheres) <= maxPooledSliceCap {
		m.wheres = m.wheres[:0]
	} else {
		m.wheres = nil
	}
	if cap(m.args) <= maxPooledSliceCap {
		m.args = m.args[:0]
	} else {
		m.args = nil
	}

	m.orderBys = nil
	m.groupBys = nil
	m.havings = nil
	m.distinct = false
	m.distinctOn = nil
	m.limit = 0
	m.offset = 0
	m.relations = nil
	m.lockMode = ""
	m.forcePrimary = false
	m.forceReplica = -1
	m.rawQuery = ""
	m.rawArgs = nil
	m.ctes = nil
	m.stmtCache = nil

	// Clear maps by deleting keys to reuse capacity, or recreate if too large
	// This provides better pooling efficiency than always recreating
	if m.relationCallbacks != nil && len(m.relationCallbacks) <= maxPooledSliceCap {
		clear(m.relationCallbacks)
	} else {
		m.relationCallbacks = make(map[string]any)
	}
	if m.morphRelations != nil && len(m.morphRelations) <= maxPooledSliceCap {
		clear(m.morphRelations)
	} else {
		m.morphRelations = make(map[string]map[string][]string)
	}

	m.omitColumns = nil
	m.trackingScope = nil
}

// Clone creates a deep copy of the Model.
// This is useful for creating new queries based on an existing one without modifying it.
//
// Thread Safety: Clone() acquires a read lock to safely copy state. Multiple goroutines
// can call Clone() concurrently on the same model. However, calling Clone() while another
// goroutine is modifying the model (via Where, Select, etc.) requires the modification
// methods to also acquire locks, which they do not for performance reasons.
//
// Recommended usage patterns:
//
//	// Pattern 1: Create base query once, then clone for each request
//	base := New[User]().Where("active", true)  // Setup phase, single goroutine
//	// ... later, in request handlers (multiple goroutines)
//	handler1 := base.Clone().Where("age >", 18).Get(ctx)
//	handler2 := base.Clone().Where("verified", true).Get(ctx)
//
//	// Pattern 2: Create new model per goroutine
//	go func() {
//	    m := New[User]().Where("active", true).Get(ctx)
//	}()
func (m *Model[T]) Clone() *Model[T] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	newModel := &Model[T]{
		ctx:          m.ctx,
		db:           m.db,
		tx:           m.tx,
		modelInfo:    m.modelInfo,
		tableName:    m.tableName,
		distinct:     m.distinct,
		limit:        m.limit,
		offset:       m.offset,
		rawQuery:     m.rawQuery,
		stmtCache:    m.stmtCache, // Preserve statement cache reference
		lockMode:     m.lockMode,
		forcePrimary: m.forcePrimary,
		forceReplica: m.forceReplica,
	}

	// Copy slices
	if len(m.columns) > 0 {
		newModel.columns = make([]string, len(m.columns))
		copy(newModel.columns, m.columns)
	}
	if len(m.wheres) > 0 {
		newModel.wheres = make([]string, len(m.wheres))
		copy(newModel.wheres, m.wheres)
	}
	if len(m.args) > 0 {
		newModel.args = make([]any, len(m.args))
		copy(newModel.args, m.args)
	}
	if len(m.orderBys) > 0 {
		newModel.orderBys = make([]string, len(m.orderBys))
		copy(newModel.orderBys, m.orderBys)
	}
	if len(m.groupBys) > 0 {
		newModel.groupBys = make([]string, len(m.groupBys))
		copy(newModel.groupBys, m.groupBys)
	}
	if len(m.havings) > 0 {
		newModel.havings = make([]string, len(m.havings))
		copy(newModel.havings, m.havings)
	}
	if len(m.distinctOn) > 0 {
		newModel.distinctOn = make([]string, len(m.distinctOn))
		copy(newModel.distinctOn, m.distinctOn)
	}
	if len(m.relations) > 0 {
		newModel.relations = make([]string, len(m.relations))
		copy(newModel.relations, m.relations)
	}
	if len(m.rawArgs) > 0 {
		newModel.rawArgs = make([]any, len(m.rawArgs))
		copy(newModel.rawArgs, m.rawArgs)
	}
	if len(m.ctes) > 0 {
		newModel.ctes = make([]CTE, len(m.ctes))
		copy(newModel.ctes, m.ctes)
	}

	// Copy maps - only allocate if source has content
	if len(m.relationCallbacks) > 0 {
		newModel.relationCallbacks = make(map[string]any, len(m.relationCallbacks))
		maps.Copy(newModel.relationCallbacks, m.relationCallbacks)
	}

	if len(m.morphRelations) > 0 {
		newModel.morphRelations = make(map[string]map[string][]string, len(m.morphRelations))
		for k, v := range m.morphRelations {
			newMap := make(map[string][]string, len(v))
			for mk, mv := range v {
				// Deep copy the slice
				newSlice := make([]string, len(mv))
				copy(newSlice, mv)
				newMap[mk] = newSlice
			}
			newModel.morphRelations[k] = newMap
		}
	}

	// Copy omitColumns - only allocate if source has content
	if len(m.omitColumns) > 0 {
		newModel.omitColumns = make(map[string]bool, len(m.omitColumns))
		maps.Copy(newModel.omitColumns, m.omitColumns)
	}

	// Copy tracking scope reference (scopes can be shared)
	newModel.trackingScope = m.trackingScope

	return newModel
}

// WithContext sets the context for the query.
func (m *Model[T]) WithContext(ctx context.Context) *Model[T] {
	m.ctx = ctx
	return m
}

// Table sets a custom table name for the query.
// This overrides the table name derived from the struct type.
func (m *Model[T]) Table(name string) *Model[T] {
	m.tableName = name
	return m
}

// TableName returns the table name for the model.
// If a custom table name is set via Table(), it returns that.
// Otherwise, it returns the table name from the model info.
func (m *Model[T]) TableName() string {
	if m.tableName != "" {
		return m.tableName
	}

	return m.modelInfo.TableName
}

// SetDB sets a custom database connection for this model instance.
func (m *Model[T]) SetDB(db *sql.DB) *Model[T] {
	m.db = db
	return m
}

// OnShard routes this model's queries to the named shard, resolved through
// DefaultRuntime's Connection Registry rather than resolveDB/GetGlobalDB.
// The role follows the model's existing forcePrimary/forceReplica state, so
// OnShard composes with ForcePrimary/ForceReplica the same way SetDB does.
// It panics on an unregistered shard rather than silently falling back to
// GlobalDB, since a shard-routed write landing on the wrong shard is a data
// integrity bug, not a degraded-mode condition.
func (m *Model[T]) OnShard(shard string) *Model[T] {
	role := RolePrimary
	if m.forceReplica >= 0 {
		role = RoleReplica
	}
	db, _, err := DefaultRuntime().GetAdapter(defaultDatabase, role, shard)
	if err != nil {
		panic(fmt.Sprintf("grant: OnShard(%q): %v", shard, err))
	}
	m.db = db
	m.shardName = shard
	return m
}

// Shard returns the shard this model is currently routed to, or "" if
// OnShard was never called.
func (m *Model[T]) Shard() string {
	return m.shardName
}

// WithCallbacks attaches a lifecycle callback registry; Create/Update/Delete
// run their matching before_*/around_*/after_* hooks through it.
func (m *Model[T]) WithCallbacks(cb *Callbacks) *Model[T] {
	m.callbacks = cb
	return m
}

// WithValidators attaches validators that Create/Update run before writing,
// in the matching ValidationContext. A non-empty Errors result aborts the
// write and is returned as a *ValidationError (use errors.As to detect it).
func (m *Model[T]) WithValidators(vs ...*Validator) *Model[T] {
	m.validators = append(m.validators, vs...)
	return m
}

// attributesOf reflects entity's fields into a map[string]any keyed by
// column name, the shape Validate and callback records operate on.
func (m *Model[T]) attributesOf(entity *T) map[string]any {
	val := reflect.ValueOf(entity).Elem()
	attrs := make(map[string]any, len(m.modelInfo.Fields))
	for _, field := range m.modelInfo.Fields {
		attrs[field.Column] = val.FieldByIndex(field.Index).Interface()
	}
	return attrs
}

// AssignAttributes populates entity's fields from attrs, an untyped bag
// keyed by column name (the shape an already-decoded JSON/form payload
// naturally takes). Unlike fillStruct's DB-row scanning path, a value
// mapstructure can't convert is a caller error, not a driver-type quirk to
// tolerate, so it's returned directly rather than suppressed.
func (m *Model[T]) AssignAttributes(entity *T, attrs map[string]any) error {
	named := make(map[string]any, len(attrs))
	for col, v := range attrs {
		field, ok := m.modelInfo.Columns[col]
		if !ok {
			continue
		}
		named[field.Name] = v
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           entity,
	})
	if err != nil {
		return fmt.Errorf("grant: build attribute decoder: %w", err)
	}
	if err := decoder.Decode(named); err != nil {
		return fmt.Errorf("grant: assign attributes: %w", err)
	}
	return nil
}

// runCallbacks invokes m.callbacks.Run for hook if callbacks are attached,
// otherwise just runs op directly.
func (m *Model[T]) runCallbacks(ctx context.Context, hook Hook, entity *T, op func() error) error {
	if m.callbacks == nil {
		return op()
	}
	return m.callbacks.Run(ctx, hook, entity, op)
}

// runSaveCallbacks nests opHook (before_create/before_update and its
// around_*/after_* siblings) inside the before_save/around_save/after_save
// bucket, so Create/Update run the full
// before_save → around_save(before_<op> → around_<op>(op) → after_<op>) → after_save
// chain. Destroy has no save-level wrapper in this vocabulary (a destroy
// isn't a save), so it calls runCallbacks with HookBeforeDestroy directly
// instead of going through this helper.
func (m *Model[T]) runSaveCallbacks(ctx context.Context, opHook Hook, entity *T, op func() error) error {
	if m.callbacks == nil {
		return op()
	}
	inner := func() error {
		return m.callbacks.Run(ctx, opHook, entity, op)
	}
	return m.callbacks.Run(ctx, HookBeforeSave, entity, inner)
}

// runCommitHooks fires the generic after_commit hook and the
// operation-specific one (after_create_commit/after_update_commit/
// after_destroy_commit) once the enclosing transaction actually commits.
// Inside an explicit Transaction (m.commitQueue set via WithTx) both run
// deferred, queued onto the transaction's CommitQueue alongside an
// after_rollback hook that fires instead if the transaction rolls back.
// Outside a transaction the write already committed by the time the caller
// gets here (autocommit), so both run immediately.
func (m *Model[T]) runCommitHooks(ctx context.Context, commitHook Hook, entity *T) error {
	if m.callbacks == nil {
		return nil
	}

	// entity, not the record argument the queue flush passes (generic
	// Transaction/transaction() callers flush with a nil record since they
	// have no single entity in scope), is what these hooks run against.
	fireCommit := func(c context.Context, _ any) error {
		if err := m.callbacks.Run(c, HookAfterCommit, entity, noopCallback); err != nil {
			return err
		}
		return m.callbacks.Run(c, commitHook, entity, noopCallback)
	}

	if m.commitQueue != nil {
		m.commitQueue.QueueCommit(fireCommit)
		m.commitQueue.QueueRollback(func(c context.Context, _ any) error {
			return m.callbacks.Run(c, HookAfterRollback, entity, noopCallback)
		})
		return nil
	}

	return fireCommit(ctx, entity)
}

func noopCallback() error { return nil }

// runValidation runs m.validators (if any) against entity in ctx and returns
// a ValidationError wrapping the collected Errors if any fail.
func (m *Model[T]) runValidation(entity *T, ctx ValidationContext) error {
	if len(m.validators) == 0 {
		return nil
	}
	errs := Validate(m.validators, m.attributesOf(entity), ctx)
	if !errs.Empty() {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ValidationError wraps a failed Validate() result so callers can
// errors.As it apart from a database error; Error() renders FullMessages.
type ValidationError struct {
	Errors *Errors
}

func (e *ValidationError) Error() string {
	return "grant: validation failed: " + strings.Join(e.Errors.FullMessages(), "; ")
}

// cipherFor returns the Cipher registered for column on this model's table,
// if an encrypts() declaration registered one (via EntityConfigurator).
func (m *Model[T]) cipherFor(column string) (*Cipher, bool) {
	return DefaultRuntime().Encryption().Cipher(m.modelInfo.TableName, column)
}

// encryptedValue returns the value to actually write for column: its
// ciphertext if column is an encrypted attribute, otherwise value unchanged.
// Model[T]'s wiring assumes the struct field's column tag already names the
// storage column directly (EncryptedAttribute.Name == that column) — it
// does not remap SELECT/INSERT column lists to a differently-named
// StorageColumn, so encrypts() declarations used through EntityConfigurator
// should register Name as the literal DB column the struct field maps to.
func (m *Model[T]) encryptedValue(column string, value any) (any, error) {
	cipher, ok := m.cipherFor(column)
	if !ok {
		return value, nil
	}
	plaintext, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("grant: encrypted column %q must hold a string, got %T", column, value)
	}
	encoded, err := cipher.Encrypt(plaintext)
	if err != nil {
		return nil, fmt.Errorf("grant: encrypt %s.%s: %w", m.modelInfo.TableName, column, err)
	}
	return encoded, nil
}

// Decrypt returns the plaintext for an encrypted column, reading the
// ciphertext currently held in entity's field (as scanned back from
// storage). Returns an error if column has no registered cipher.
func (m *Model[T]) Decrypt(entity *T, column string) (string, error) {
	cipher, ok := m.cipherFor(column)
	if !ok {
		return "", fmt.Errorf("grant: no cipher registered for %s.%s", m.modelInfo.TableName, column)
	}
	field, ok := m.modelInfo.Columns[column]
	if !ok {
		return "", fmt.Errorf("grant: column %q not found on %s", column, m.modelInfo.TableName)
	}
	val := reflect.ValueOf(entity).Elem().FieldByIndex(field.Index)
	encoded, ok := val.Interface().(string)
	if !ok {
		return "", fmt.Errorf("grant: encrypted column %q must be a string field", column)
	}
	if encoded == "" {
		return "", nil
	}
	return cipher.Decrypt(encoded)
}

// WithStmtCache enables statement caching for this model instance.
// The cache will be used to store and reuse prepared statements,
// improving performance by avoiding re-preparation of frequently used queries.
//
// Example:
//
//	cache := NewStmtCache(100)
//	defer cache.Close()
//	model := New[User]().WithStmtCache(cache)
func (m *Model[T]) WithStmtCache(cache *StmtCache) *Model[T] {
	m.stmtCache = cache
	return m
}

// WithTrackingScope sets a tracking scope for this model instance.
// All entities loaded through this model will be registered with the scope,
// and their tracking data will be automatically cleared when the scope is closed.
//
// This is useful for batch operations where you want automatic cleanup
// of tracking data without memory leaks.
//
// Example:
//
//	scope := grant.NewTrackingScope()
//	defer scope.Close()
//	model := grant.New[User]().WithTrackingScope(scope)
//	users, _ := model.Get(ctx) // All users are tracked in scope
//	// When scope.Close() is called, all tracking data is cleared
func (m *Model[T]) WithTrackingScope(scope *TrackingScope) *Model[T] {
	m.trackingScope = scope
	return m
}

// ConfigureConnectionPool configures the database connection pool.
func ConfigureConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime, idleTimeout time.Duration) {
	if db == nil {
		return
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle >= 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime > 0 {
		db.SetConnMaxLifetime(maxLifetime)
	}
	if idleTimeout > 0 {
		db.SetConnMaxIdleTime(idleTimeout)
	}
}

// ConfigureDBResolver configures the global database resolver for primary/replica setup.
// This function is thread-safe and can be called at any time.
// Example:
//
//	ConfigureDBResolver(
//	    WithPrimary(primaryDB),
//	    WithReplicas(replica1, replica2),
//	    WithLoadBalancer(RoundRobinLB),
//	)
func ConfigureDBResolver(opts ...ResolverOption) {
	resolver := &DBResolver{
		lb: &RoundRobinLoadBalancer{}, // Default load balancer
	}
	for _, opt := range opts {
		opt(resolver)
	}
	globalResolver.Store(resolver)
}

// ClearDBResolver removes the global database resolver.
// This function is thread-safe.
func ClearDBResolver() {
	globalResolver.Store(nil)
}
