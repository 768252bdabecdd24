package grant

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
)

// ShardStrategy resolves a shard name from a set of key column values.
// Implementations are the concrete form of shards_by's strategy argument.
type ShardStrategy interface {
	// Resolve returns the shard name for the given key values, in the same
	// order the keys were declared in.
	Resolve(keys []any) (string, error)
	// Shards returns every shard name the strategy can resolve to, for
	// scatter-gather fan-out when a query doesn't constrain all keys.
	Shards() []string
}

// HashShardStrategy assigns a shard by hashing the concatenated key values
// modulo the shard count. For identical key values this is always constant.
type HashShardStrategy struct {
	count   int
	nameFmt string // e.g. "shard_%d"; "%d" is replaced with the bucket index
}

// NewHashShardStrategy builds a HashShardStrategy with count buckets, named
// via nameFmt (a fmt template taking one %d), e.g. NewHashShardStrategy(4, "shard_%d").
func NewHashShardStrategy(count int, nameFmt string) *HashShardStrategy {
	if nameFmt == "" {
		nameFmt = "shard_%d"
	}
	return &HashShardStrategy{count: count, nameFmt: nameFmt}
}

func (h *HashShardStrategy) Resolve(keys []any) (string, error) {
	if h.count <= 0 {
		return "", fmt.Errorf("grant: hash shard strategy has no shards configured")
	}
	hasher := fnv.New64a()
	for _, k := range keys {
		hasher.Write([]byte(fmt.Sprint(k)))
	}
	bucket := int(hasher.Sum64() % uint64(h.count))
	return fmt.Sprintf(h.nameFmt, bucket), nil
}

func (h *HashShardStrategy) Shards() []string {
	out := make([]string, h.count)
	for i := range out {
		out[i] = fmt.Sprintf(h.nameFmt, i)
	}
	return out
}

// ShardRange is one bucket of a RangeShardStrategy: values in [Min, Max)
// (Max exclusive) route to Shard.
type ShardRange struct {
	Shard    string
	Min, Max int64
}

// RangeShardStrategy assigns a shard by which half-open numeric range a
// single integer key value falls into. Overlapping ranges are rejected at
// construction time rather than deferred to lookup.
type RangeShardStrategy struct {
	ranges []ShardRange
}

// NewRangeShardStrategy validates ranges for overlap (sorted by Min) and
// returns an error instead of a usable strategy if any overlap.
func NewRangeShardStrategy(ranges []ShardRange) (*RangeShardStrategy, error) {
	sorted := append([]ShardRange(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Min < sorted[i-1].Max {
			return nil, fmt.Errorf("grant: shard ranges %q and %q overlap", sorted[i-1].Shard, sorted[i].Shard)
		}
	}
	return &RangeShardStrategy{ranges: sorted}, nil
}

func (r *RangeShardStrategy) Resolve(keys []any) (string, error) {
	if len(keys) != 1 {
		return "", fmt.Errorf("grant: range shard strategy takes exactly one key, got %d", len(keys))
	}
	v, err := toInt64(keys[0])
	if err != nil {
		return "", err
	}
	for _, rg := range r.ranges {
		if v >= rg.Min && v < rg.Max {
			return rg.Shard, nil
		}
	}
	return "", fmt.Errorf("grant: value %d matches no configured shard range", v)
}

func (r *RangeShardStrategy) Shards() []string {
	out := make([]string, len(r.ranges))
	for i, rg := range r.ranges {
		out[i] = rg.Shard
	}
	return out
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("grant: range shard key must be an integer, got %T", v)
	}
}

// GeoRegion is one entry of a GeoShardStrategy's ordered region list. The
// first region whose Countries/States/Cities contains the key wins.
type GeoRegion struct {
	Shard     string
	Countries []string
	States    []string
	Cities    []string
}

// GeoShardStrategy resolves a shard from a location key (country, and
// optionally state/city) against an ordered list of regions, falling back
// to DefaultShard if none match. Comparisons are case-insensitive.
type GeoShardStrategy struct {
	regions      []GeoRegion
	defaultShard string
	caser        cases.Caser
}

// NewGeoShardStrategy builds a GeoShardStrategy. regions are matched in
// order; defaultShard is used when no region matches.
func NewGeoShardStrategy(regions []GeoRegion, defaultShard string) *GeoShardStrategy {
	return &GeoShardStrategy{
		regions:      regions,
		defaultShard: defaultShard,
		caser:        cases.Fold(),
	}
}

// Resolve expects keys as [country] or [country, state] or [country, state, city].
func (g *GeoShardStrategy) Resolve(keys []any) (string, error) {
	var country, state, city string
	if len(keys) > 0 {
		country = fmt.Sprint(keys[0])
	}
	if len(keys) > 1 {
		state = fmt.Sprint(keys[1])
	}
	if len(keys) > 2 {
		city = fmt.Sprint(keys[2])
	}

	for _, r := range g.regions {
		if g.matches(r.Countries, country) && g.matches(r.States, state) && g.matches(r.Cities, city) {
			return r.Shard, nil
		}
	}
	if g.defaultShard != "" {
		return g.defaultShard, nil
	}
	return "", fmt.Errorf("grant: location %v matches no geo shard region", keys)
}

// matches reports whether candidate is in list, case-insensitively. An
// empty list is a wildcard (matches anything, including an empty candidate),
// so a region that only constrains Countries still matches any state/city.
func (g *GeoShardStrategy) matches(list []string, candidate string) bool {
	if len(list) == 0 {
		return true
	}
	folded := g.caser.String(candidate)
	for _, item := range list {
		if g.caser.String(item) == folded {
			return true
		}
	}
	return false
}

func (g *GeoShardStrategy) Shards() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range g.regions {
		if !seen[r.Shard] {
			seen[r.Shard] = true
			out = append(out, r.Shard)
		}
	}
	if g.defaultShard != "" && !seen[g.defaultShard] {
		out = append(out, g.defaultShard)
	}
	return out
}

// ShardConfig is one model's shards_by declaration: which key columns drive
// shard resolution and the strategy that resolves them.
type ShardConfig struct {
	KeyColumns []string
	Strategy   ShardStrategy
}

// ShardManager tracks per-model ShardConfig and resolves the adapter for a
// given shard through the owning Runtime's Connection Registry.
type ShardManager struct {
	runtime *Runtime
	configs map[string]*ShardConfig // keyed by model table name
}

func newShardManager(r *Runtime) *ShardManager {
	return &ShardManager{runtime: r, configs: make(map[string]*ShardConfig)}
}

// Configure registers table's shards_by declaration.
func (s *ShardManager) Configure(table string, cfg *ShardConfig) {
	s.configs[table] = cfg
}

// ConfigFor returns the ShardConfig registered for table, if any.
func (s *ShardManager) ConfigFor(table string) (*ShardConfig, bool) {
	cfg, ok := s.configs[table]
	return cfg, ok
}

type shardContextKey struct{}

// WithShard stacks name as the current shard for the duration of fn, then
// restores whatever shard (if any) was current before, RAII-style.
func WithShard(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return fn(context.WithValue(ctx, shardContextKey{}, name))
}

// CurrentShard returns the shard name stacked by the innermost enclosing
// WithShard call, or "" if none is active.
func CurrentShard(ctx context.Context) string {
	name, _ := ctx.Value(shardContextKey{}).(string)
	return name
}

// AggregateKind names the reduction scatter-gather applies across shard
// results for a given aggregate.
type AggregateKind int

const (
	AggregateCount AggregateKind = iota
	AggregateSum
	AggregateAvg
	AggregateMin
	AggregateMax
)

// ShardResult is one shard's contribution to a scatter-gather aggregate:
// Value is the per-shard aggregate, Count is the row count it was computed
// over (required to weight AggregateAvg correctly).
type ShardResult struct {
	Shard string
	Value float64
	Count int64
}

// ReduceAggregate combines per-shard results: count/sum sum across shards,
// avg is count-weighted (never an average-of-averages), and
// min/max take the extremum.
func ReduceAggregate(kind AggregateKind, results []ShardResult) float64 {
	if len(results) == 0 {
		return 0
	}
	switch kind {
	case AggregateCount, AggregateSum:
		var total float64
		for _, r := range results {
			total += r.Value
		}
		return total
	case AggregateAvg:
		var weightedSum float64
		var totalCount int64
		for _, r := range results {
			weightedSum += r.Value * float64(r.Count)
			totalCount += r.Count
		}
		if totalCount == 0 {
			return 0
		}
		return weightedSum / float64(totalCount)
	case AggregateMin:
		min := results[0].Value
		for _, r := range results[1:] {
			if r.Value < min {
				min = r.Value
			}
		}
		return min
	case AggregateMax:
		max := results[0].Value
		for _, r := range results[1:] {
			if r.Value > max {
				max = r.Value
			}
		}
		return max
	default:
		return 0
	}
}

// Scatter runs fn once per shard name concurrently (one goroutine per
// shard, waiting for all to finish), collecting results in shard order.
// Any fn error aborts the remaining
// in-flight calls (errgroup's first-error-cancels-context semantics) and is
// returned.
func Scatter[R any](ctx context.Context, shards []string, fn func(ctx context.Context, shard string) (R, error)) ([]R, error) {
	results := make([]R, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		i, shard := i, shard
		g.Go(func() error {
			r, err := fn(gctx, shard)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// AllShardKeysConstrained reports whether every column in keyColumns
// appears in constrainedColumns (case-insensitive), meaning a query can be
// routed to a single shard instead of scattered to all of them.
func AllShardKeysConstrained(keyColumns, constrainedColumns []string) bool {
	have := make(map[string]bool, len(constrainedColumns))
	for _, c := range constrainedColumns {
		have[strings.ToLower(c)] = true
	}
	for _, k := range keyColumns {
		if !have[strings.ToLower(k)] {
			return false
		}
	}
	return true
}
