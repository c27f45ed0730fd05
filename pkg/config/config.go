package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/goran-ethernal/GovIndexor/internal/common"
	"github.com/goran-ethernal/GovIndexor/internal/logger"
	"github.com/goran-ethernal/GovIndexor/pkg/chain"
	"github.com/goran-ethernal/GovIndexor/pkg/manifest"
)

const (
	// DefaultRetryDelay is the fixed wait between attempts to fetch an unavailable block.
	DefaultRetryDelay = 12 * time.Second

	StorageDriverSQLite   = "sqlite"
	StorageDriverPostgres = "postgres"
)

// Config represents the complete configuration for the GovIndexor.
type Config struct {
	// Storage selects and configures the storage backend shared by all namespaces
	Storage StorageConfig `yaml:"storage" json:"storage" toml:"storage"`

	// Networks contains one entry per indexed namespace
	Networks []NetworkConfig `yaml:"networks" json:"networks" toml:"networks"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`

	// API contains the operator API configuration
	API *APIConfig `yaml:"api,omitempty" json:"api,omitempty" toml:"api,omitempty"`

	// Notifier contains the block notification configuration
	Notifier *NotifierConfig `yaml:"notifier,omitempty" json:"notifier,omitempty" toml:"notifier,omitempty"`
}

// NetworkConfig configures the indexing of one namespace.
type NetworkConfig struct {
	// Namespace partitions checkpoints and entities; usually the network name
	Namespace string `yaml:"namespace" json:"namespace" toml:"namespace"`

	// RPCURL is the Ethereum RPC endpoint URL
	RPCURL string `yaml:"rpc_url" json:"rpc_url" toml:"rpc_url"`

	// Finality specifies the finality mode: "finalized", "safe", or "latest"
	Finality string `yaml:"finality" json:"finality" toml:"finality"`

	// FinalizedLag is the number of blocks behind head to consider final
	// Only used when Finality is set to "latest"
	FinalizedLag uint64 `yaml:"finalized_lag" json:"finalized_lag" toml:"finalized_lag"`

	// StartBlock overrides the lowest source start height when set
	StartBlock uint64 `yaml:"start_block,omitempty" json:"start_block,omitempty" toml:"start_block,omitempty"`

	// EndBlock stops indexing after this height when set
	EndBlock uint64 `yaml:"end_block,omitempty" json:"end_block,omitempty" toml:"end_block,omitempty"`

	// RetryDelay is the fixed wait before fetching an unavailable block again
	RetryDelay common.Duration `yaml:"retry_delay" json:"retry_delay" toml:"retry_delay"`

	// StartupDelay postpones the first fetch, giving a replaced process time to exit
	StartupDelay common.Duration `yaml:"startup_delay" json:"startup_delay" toml:"startup_delay"`

	// AtomicBlocks commits the writes of a block together with its checkpoint
	AtomicBlocks *bool `yaml:"atomic_blocks,omitempty" json:"atomic_blocks,omitempty" toml:"atomic_blocks,omitempty"`

	// Retry contains RPC retry configuration with exponential backoff
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`

	// Protocols lists the enabled protocol modules, merged in this order
	Protocols []ProtocolConfig `yaml:"protocols" json:"protocols" toml:"protocols"`
}

// ApplyDefaults sets default values for optional network configuration fields.
func (n *NetworkConfig) ApplyDefaults() {
	if n.Finality == "" {
		n.Finality = string(chain.FinalityFinalized)
	}
	if n.RetryDelay.Duration == 0 {
		n.RetryDelay = common.NewDuration(DefaultRetryDelay)
	}
	if n.AtomicBlocks == nil {
		atomic := true
		n.AtomicBlocks = &atomic
	}
	if n.Retry != nil {
		n.Retry.ApplyDefaults()
	}
}

// IsAtomic reports whether blocks are committed atomically with their checkpoint.
func (n *NetworkConfig) IsAtomic() bool {
	return n.AtomicBlocks == nil || *n.AtomicBlocks
}

// Validate checks if the network configuration is valid.
func (n *NetworkConfig) Validate() error {
	if n.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if n.RPCURL == "" {
		return fmt.Errorf("rpc_url is required")
	}
	if _, err := chain.ParseFinality(n.Finality); err != nil {
		return err
	}
	if n.EndBlock != 0 && n.EndBlock < n.StartBlock {
		return fmt.Errorf("end_block %d is below start_block %d", n.EndBlock, n.StartBlock)
	}
	if len(n.Protocols) == 0 {
		return fmt.Errorf("at least one protocol must be enabled")
	}

	prefixes := make(map[string]struct{}, len(n.Protocols))
	for i, p := range n.Protocols {
		if p.Type == "" {
			return fmt.Errorf("protocols[%d]: type is required", i)
		}
		if _, dup := prefixes[p.Prefix]; dup {
			return fmt.Errorf("protocols[%d] (%s): prefix %q already used", i, p.Type, p.Prefix)
		}
		prefixes[p.Prefix] = struct{}{}
	}

	return nil
}

// ProtocolConfig enables one protocol module on a network.
type ProtocolConfig struct {
	// Type is the registered protocol name
	Type string `yaml:"type" json:"type" toml:"type"`

	// Prefix namespaces the handlers, templates and ABIs of this protocol
	Prefix string `yaml:"prefix" json:"prefix" toml:"prefix"`

	// Sources lists the deployed contracts of the protocol on this network
	Sources []manifest.Source `yaml:"sources,omitempty" json:"sources,omitempty" toml:"sources,omitempty"`

	// Params holds protocol specific settings
	Params map[string]string `yaml:"params,omitempty" json:"params,omitempty" toml:"params,omitempty"`
}

// RetryConfig represents RPC retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	// Driver is "sqlite" or "postgres"
	Driver string `yaml:"driver" json:"driver" toml:"driver"`

	// SQLite configures the sqlite backend
	SQLite DatabaseConfig `yaml:"sqlite" json:"sqlite" toml:"sqlite"`

	// Postgres configures the postgres backend
	Postgres *PostgresConfig `yaml:"postgres,omitempty" json:"postgres,omitempty" toml:"postgres,omitempty"`
}

// ApplyDefaults sets default values for optional storage configuration fields.
func (s *StorageConfig) ApplyDefaults() {
	if s.Driver == "" {
		s.Driver = StorageDriverSQLite
	}

	s.SQLite.ApplyDefaults()

	if s.Postgres != nil {
		s.Postgres.ApplyDefaults()
	}
}

// Validate checks if the storage configuration is valid.
func (s *StorageConfig) Validate() error {
	switch s.Driver {
	case StorageDriverSQLite:
		return s.SQLite.Validate()
	case StorageDriverPostgres:
		if s.Postgres == nil || s.Postgres.URL == "" {
			return fmt.Errorf("postgres.url is required for the postgres driver")
		}
		return nil
	default:
		return fmt.Errorf("driver must be one of: %s, %s", StorageDriverSQLite, StorageDriverPostgres)
	}
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	// WAL mode is recommended for better concurrency
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	// NORMAL provides a good balance between safety and performance
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`

	// EnableForeignKeys enables foreign key constraint enforcement
	EnableForeignKeys bool `yaml:"enable_foreign_keys" json:"enable_foreign_keys" toml:"enable_foreign_keys"`

	// Maintenance contains optional database maintenance settings
	Maintenance *MaintenanceConfig `yaml:"maintenance,omitempty" json:"maintenance,omitempty" toml:"maintenance,omitempty"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
	// EnableForeignKeys defaults to false (zero value)

	if d.Maintenance != nil {
		d.Maintenance.ApplyDefaults()
	}
}

// Validate checks if the database configuration is valid.
func (d *DatabaseConfig) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("sqlite.path is required")
	}

	if !slices.Contains([]string{"WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY"}, d.JournalMode) {
		return fmt.Errorf("sqlite.journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}

	if !slices.Contains([]string{"FULL", "NORMAL", "OFF"}, d.Synchronous) {
		return fmt.Errorf("sqlite.synchronous must be one of: FULL, NORMAL, OFF")
	}

	if d.Maintenance != nil {
		if err := d.Maintenance.Validate(); err != nil {
			return fmt.Errorf("sqlite.maintenance: %w", err)
		}
	}

	return nil
}

// MaintenanceConfig configures database maintenance behavior.
type MaintenanceConfig struct {
	// Enabled controls whether background maintenance runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// CheckInterval is how often to run maintenance (e.g., "30m", "1h")
	CheckInterval common.Duration `yaml:"check_interval" json:"check_interval" toml:"check_interval"`

	// VacuumOnStartup runs maintenance immediately on startup
	VacuumOnStartup bool `yaml:"vacuum_on_startup" json:"vacuum_on_startup" toml:"vacuum_on_startup"`

	// WALCheckpointMode controls the WAL checkpoint aggressiveness
	// Options: PASSIVE, FULL, RESTART, TRUNCATE
	WALCheckpointMode string `yaml:"wal_checkpoint_mode" json:"wal_checkpoint_mode" toml:"wal_checkpoint_mode"`
}

// ApplyDefaults sets default values for optional maintenance configuration fields.
func (m *MaintenanceConfig) ApplyDefaults() {
	if m.CheckInterval.Duration == 0 {
		m.CheckInterval = common.NewDuration(30 * time.Minute) //nolint:mnd
	}
	if m.WALCheckpointMode == "" {
		m.WALCheckpointMode = "TRUNCATE"
	}
}

// Validate checks if the maintenance configuration is valid.
func (m *MaintenanceConfig) Validate() error {
	if m.WALCheckpointMode != "" {
		validModes := []string{"PASSIVE", "FULL", "RESTART", "TRUNCATE"}
		if !slices.Contains(validModes, m.WALCheckpointMode) {
			return fmt.Errorf("wal_checkpoint_mode: must be one of: PASSIVE, FULL, RESTART, TRUNCATE")
		}
	}

	return nil
}

// PostgresConfig configures the postgres backend.
type PostgresConfig struct {
	// URL is a libpq style connection string or postgres:// URL
	URL string `yaml:"url" json:"url" toml:"url"`

	// MinConns is the minimum number of pooled connections
	MinConns int32 `yaml:"min_conns" json:"min_conns" toml:"min_conns"`

	// MaxConns is the maximum number of pooled connections
	MaxConns int32 `yaml:"max_conns" json:"max_conns" toml:"max_conns"`
}

// ApplyDefaults sets default values for optional postgres configuration fields.
func (p *PostgresConfig) ApplyDefaults() {
	if p.MaxConns == 0 {
		p.MaxConns = 10
	}
	if p.MinConns == 0 {
		p.MinConns = 1
	}
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components:
	//   - indexer: per namespace indexing loop
	//   - dispatcher: event dispatch to writers
	//   - registry: source and template registry
	//   - checkpoint: checkpoint store
	//   - rpc-client: chain reader
	//   - storage: storage backend
	//   - notifier: block notifications
	//   - api: operator API
	//   - protocol: protocol writers
	//   - metrics: metrics server
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	// Development defaults to false (zero value)
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := common.AllComponents[common.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return common.ToLowerWithTrim(level)
	}
	return l.GetDefaultLevel()
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	if l.DefaultLevel == "" {
		return "info"
	}
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
	// Enabled defaults to false (zero value)
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" {
			return fmt.Errorf("path is required when metrics are enabled")
		}
		if m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// APIConfig configures the operator HTTP API.
type APIConfig struct {
	// Enabled controls whether the API server is started
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the API server to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request
	ReadTimeout common.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout common.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request with keep-alives
	IdleTimeout common.Duration `yaml:"idle_timeout" json:"idle_timeout" toml:"idle_timeout"`

	// CORS configures cross origin requests
	CORS *CORSConfig `yaml:"cors,omitempty" json:"cors,omitempty" toml:"cors,omitempty"`
}

// CORSConfig configures cross origin resource sharing.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers" toml:"allowed_headers"`
}

// ApplyDefaults sets default values for optional API configuration fields.
func (a *APIConfig) ApplyDefaults() {
	if a.ListenAddress == "" {
		a.ListenAddress = ":8080"
	}
	if a.ReadTimeout.Duration == 0 {
		a.ReadTimeout = common.NewDuration(15 * time.Second) //nolint:mnd
	}
	if a.WriteTimeout.Duration == 0 {
		a.WriteTimeout = common.NewDuration(15 * time.Second) //nolint:mnd
	}
	if a.IdleTimeout.Duration == 0 {
		a.IdleTimeout = common.NewDuration(60 * time.Second) //nolint:mnd
	}
	if a.CORS != nil {
		if len(a.CORS.AllowedOrigins) == 0 {
			a.CORS.AllowedOrigins = []string{"*"}
		}
		if len(a.CORS.AllowedMethods) == 0 {
			a.CORS.AllowedMethods = []string{"GET", "OPTIONS"}
		}
		if len(a.CORS.AllowedHeaders) == 0 {
			a.CORS.AllowedHeaders = []string{"Content-Type"}
		}
	}
}

// NotifierConfig configures "block indexed" notifications.
type NotifierConfig struct {
	// Enabled turns notifications on
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// RedisURL is a redis:// URL of the Redis server
	RedisURL string `yaml:"redis_url" json:"redis_url" toml:"redis_url"`

	// Stream is the Redis stream notifications are appended to
	Stream string `yaml:"stream" json:"stream" toml:"stream"`

	// MaxLen caps the stream length (approximately); 0 keeps every entry
	MaxLen int64 `yaml:"max_len" json:"max_len" toml:"max_len"`
}

// ApplyDefaults sets default values for optional notifier configuration fields.
func (n *NotifierConfig) ApplyDefaults() {
	if n.Stream == "" {
		n.Stream = "govindexor:blocks"
	}
}

// Validate checks if the notifier configuration is valid.
func (n *NotifierConfig) Validate() error {
	if n.Enabled && n.RedisURL == "" {
		return fmt.Errorf("redis_url is required when the notifier is enabled")
	}
	return nil
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.Storage.ApplyDefaults()

	for i := range c.Networks {
		c.Networks[i].ApplyDefaults()
	}

	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}

	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}

	if c.API != nil {
		c.API.ApplyDefaults()
	}

	if c.Notifier != nil {
		c.Notifier.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	if c.Notifier != nil {
		if err := c.Notifier.Validate(); err != nil {
			return fmt.Errorf("notifier: %w", err)
		}
	}

	if len(c.Networks) == 0 {
		return fmt.Errorf("at least one network must be configured")
	}

	namespaces := make(map[string]bool)
	for i := range c.Networks {
		network := &c.Networks[i]
		if err := network.Validate(); err != nil {
			return fmt.Errorf("networks[%d] (%s): %w", i, network.Namespace, err)
		}

		if namespaces[network.Namespace] {
			return fmt.Errorf("networks[%d]: duplicate namespace '%s'", i, network.Namespace)
		}
		namespaces[network.Namespace] = true
	}

	return nil
}

// Network returns the configuration of namespace.
func (c *Config) Network(namespace string) (NetworkConfig, bool) {
	for _, n := range c.Networks {
		if n.Namespace == namespace {
			return n, true
		}
	}

	return NetworkConfig{}, false
}
