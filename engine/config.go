package engine

import (
	"time"

	"github.com/kbukum/flowcore/cache"
	gkconfig "github.com/kbukum/flowcore/config"
	"github.com/kbukum/flowcore/dag"
	"github.com/kbukum/flowcore/usage"
)

// EngineConfig is the set of engine-wide tunables an embedding application
// loads the same way the teacher loads any service's configuration:
// defaults applied by ApplyDefaults, optionally overridden by a config
// file/environment variables via config.LoadConfig. It embeds
// config.ServiceConfig and so carries its Name/Environment/Version/
// Debug/Logging fields and promoted ApplyDefaults/Validate methods.
//
// EngineConfig does not itself build a dag.DAG — the DAG/node graph stays
// the embedding application's responsibility (spec.md's explicit
// Non-goal: no owned pipeline-definition format). DefaultNodeTimeout and
// DefaultFailureStrategy are knobs the application may consult while
// constructing its own dag.Node values; the engine does not mutate nodes
// to apply them.
type EngineConfig struct {
	gkconfig.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	// MaxParallel caps concurrent node execution across a run. Zero means
	// unbounded.
	MaxParallel int `yaml:"max_parallel" mapstructure:"max_parallel"`
	// DefaultNodeTimeout is the timeout an embedding application should
	// fall back to for a dag.Node that doesn't set its own. Zero means no
	// default (nodes without an explicit timeout run unbounded).
	DefaultNodeTimeout time.Duration `yaml:"default_node_timeout" mapstructure:"default_node_timeout"`
	// DefaultFailureStrategy is the dag.FailureStrategy an embedding
	// application should fall back to. The zero value already is
	// dag.FailureSkipDownstream, matching spec.md's default.
	DefaultFailureStrategy dag.FailureStrategy `yaml:"default_failure_strategy" mapstructure:"default_failure_strategy"`
	// CacheMaxSize and CacheTTL configure the process-wide ResultCache
	// this config builds via BuildCache. CacheMaxSize<=0 disables the LRU
	// bound; CacheTTL<=0 disables expiry.
	CacheMaxSize int           `yaml:"cache_max_size" mapstructure:"cache_max_size"`
	CacheTTL     time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	// UsageMaxRecords bounds the UsageTracker's retained ring.
	UsageMaxRecords int `yaml:"usage_max_records" mapstructure:"usage_max_records"`
}

// ApplyDefaults fills in zero-value fields with this module's defaults,
// after delegating to the embedded ServiceConfig's own ApplyDefaults
// (matching the teacher's "call the embedded ApplyDefaults first" pattern
// seen throughout its config structs).
func (c *EngineConfig) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	if c.Name == "" {
		c.Name = "flowcore"
	}
	if c.CacheMaxSize == 0 {
		c.CacheMaxSize = 1000
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 10 * time.Minute
	}
	if c.UsageMaxRecords == 0 {
		c.UsageMaxRecords = 10000
	}
}

// LoadEngineConfig loads an EngineConfig the way the teacher loads any
// service config: config.LoadConfig binds a config file plus environment
// variables (via viper) onto cfg, then ApplyDefaults fills in the rest.
func LoadEngineConfig(serviceName string, opts ...gkconfig.LoaderOption) (*EngineConfig, error) {
	cfg := &EngineConfig{}
	if err := gkconfig.LoadConfig(serviceName, cfg, opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// BuildCache constructs the ResultCache this config describes.
func (c *EngineConfig) BuildCache() *cache.ResultCache {
	return cache.New(c.CacheTTL, c.CacheMaxSize)
}

// BuildUsageTracker constructs the UsageTracker this config describes.
func (c *EngineConfig) BuildUsageTracker() *usage.Tracker {
	return usage.NewTracker(c.UsageMaxRecords)
}

// ToEngineConfig builds an engine Config from this EngineConfig, wiring a
// fresh ResultCache and UsageTracker per its own fields. Events and Logger
// are left for the caller to set on the returned Config since they are not
// the kind of value a config file meaningfully serializes.
func (c *EngineConfig) ToEngineConfig() Config {
	return Config{
		MaxParallel:  c.MaxParallel,
		Cache:        c.BuildCache(),
		UsageTracker: c.BuildUsageTracker(),
	}
}
