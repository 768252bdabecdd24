package grant

import (
	"database/sql"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// RuntimeConfig is the process-configuration shape ApplyConfig decodes into:
// one connection per (database, role, shard) plus the encryption keys to
// register. Callers parse their own config format (YAML, TOML, JSON, ...)
// into a map[string]any and hand it to DecodeRuntimeConfig; grant itself
// never reads a config file or environment variable directly.
type RuntimeConfig struct {
	Connections []ConnectionConfig `mapstructure:"connections"`
	Encryption  EncryptionKeys     `mapstructure:"encryption"`
}

// ConnectionConfig describes one entry in the Connection Registry: which
// driver/DSN to open and which (database, role, shard) slot to register it
// under.
type ConnectionConfig struct {
	Database string `mapstructure:"database"`
	Role     string `mapstructure:"role"`
	Shard    string `mapstructure:"shard"`
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
}

// DecodeRuntimeConfig decodes raw into a RuntimeConfig. raw is normally the
// result of unmarshaling a config file into a map[string]any with whatever
// format library the caller already uses.
func DecodeRuntimeConfig(raw map[string]any) (*RuntimeConfig, error) {
	var cfg RuntimeConfig
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return nil, fmt.Errorf("grant: decode runtime config: %w", err)
	}
	return &cfg, nil
}

// ApplyConfig opens every connection in cfg and registers it with runtime.
// It does not read cfg.Encryption; EntityConfigurator.Encrypts always takes
// its keys as an argument.
func ApplyConfig(runtime *Runtime, cfg *RuntimeConfig) error {
	for _, c := range cfg.Connections {
		db, err := sql.Open(c.Driver, c.DSN)
		if err != nil {
			return fmt.Errorf("grant: open connection %s/%s/%s: %w", c.Database, c.Role, c.Shard, err)
		}
		if err := runtime.EstablishConnection(c.Database, Role(c.Role), c.Shard, db, c.Driver); err != nil {
			return fmt.Errorf("grant: register connection %s/%s/%s: %w", c.Database, c.Role, c.Shard, err)
		}
	}
	return nil
}

// EntityConfigurator declares cross-cutting behavior for one model's table:
// which logical database it connects to, how it shards, and which columns
// are encrypted at rest. Unlike column/relation metadata (derived from
// struct tags by ParseModel, see schema.go), these are operational concerns
// that vary by deployment, so they're registered imperatively against a
// Runtime rather than read off the struct.
//
// Example:
//
//	grant.Configure("orders").
//		On(rt).
//		ConnectsTo("orders_db").
//		ShardsBy(grant.NewHashShardStrategy(8), "customer_id")
type EntityConfigurator struct {
	runtime  *Runtime
	table    string
	database string
}

// Configure starts a declaration for table against DefaultRuntime. Chain
// On(runtime) before any other call to target a different Runtime (tests
// normally do this with their own NewRuntime()).
func Configure(table string) *EntityConfigurator {
	return &EntityConfigurator{runtime: DefaultRuntime(), table: table, database: defaultDatabase}
}

// On retargets this declaration at runtime instead of DefaultRuntime.
func (ec *EntityConfigurator) On(runtime *Runtime) *EntityConfigurator {
	ec.runtime = runtime
	return ec
}

// ConnectsTo declares which logical database name this table's connections
// are registered under in the Connection Registry (registry.go). Queries
// issued through Model[T].OnShard resolve against this name via
// Runtime.GetAdapter.
func (ec *EntityConfigurator) ConnectsTo(database string) *EntityConfigurator {
	ec.database = database
	return ec
}

// Database returns the database name this table connects to.
func (ec *EntityConfigurator) Database() string {
	return ec.database
}

// ShardsBy registers strategy as this table's shard resolution rule, keyed
// on keyColumns — the column values a caller must supply to strategy.Resolve
// to pick a shard for a given row. Delegates to the Runtime's ShardManager.
func (ec *EntityConfigurator) ShardsBy(strategy ShardStrategy, keyColumns ...string) *EntityConfigurator {
	ec.runtime.Shards().Configure(ec.table, &ShardConfig{
		KeyColumns: keyColumns,
		Strategy:   strategy,
	})
	return ec
}

// Encrypts registers attrs as encrypted columns for this table, deriving a
// Cipher for each from keys and storing it in the Runtime's
// EncryptionRegistry under "table.attribute".
func (ec *EntityConfigurator) Encrypts(keys EncryptionKeys, attrs ...EncryptedAttribute) error {
	for _, attr := range attrs {
		if err := ec.runtime.Encryption().Register(ec.table, attr, keys); err != nil {
			return err
		}
	}
	return nil
}
