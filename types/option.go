package types

import (
	"context"
	"time"

	env "github.com/caarlos0/env/v10"
	"github.com/juju/errors"
	"github.com/mcuadros/go-defaults"
	"github.com/prometheus/client_golang/prometheus"
)

func NewOptions() *Options {
	opts := &Options{Ctx: context.Background()}
	defaults.SetDefaults(opts)
	return opts
}

type Options struct {
	/**
	 * Ctx is handed to the task executor and predicate calls. Cancelling an
	 * instance never cancels it: in-flight dispatches run to completion.
	 */
	Ctx context.Context
	/**
	 * default: 1, the frontier snapshot of an instance is dispatched one node
	 * at a time. Greater values dispatch up to this many nodes of the snapshot
	 * concurrently on a shared worker pool; results are still committed in
	 * snapshot order.
	 */
	FanOutConcurrency int `default:"1"`
	/**
	 * default: true, RegisterDefinition rejects definitions with dangling
	 * edges, unknown start/end nodes or cycles.
	 */
	StrictDefinitions bool `default:"true"`
	/**
	 * default: false, a join node only runs once none of its parents can
	 * still complete: each parent completed, or is no longer reachable from
	 * the frontier because a branch leading to it was not taken.
	 * When false join/fork/merge nodes are pass-through markers.
	 */
	JoinBarrier bool `default:"false"`
	/**
	 * default: 10s, how long Close waits for running instances to pause.
	 */
	ShutdownTimeout time.Duration `default:"10s"`
	/**
	 * default: false, only set it to true when doing testing or developing.
	 */
	MemStore bool `default:"false"`

	// Store precedence: PostgresConfig, RedisConfig, then the memory store.
	PostgresConfig *PostgresConfig
	RedisConfig    *RedisConfig

	// MetricsRegisterer enables the prometheus collector when set.
	MetricsRegisterer prometheus.Registerer
}

type PostgresConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD"`
	Database string `env:"DB" envDefault:"workflow"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"` // disable, require, verify-ca, verify-full
}

type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	// KeyPrefix namespaces every key written by the store.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"dagflow"`
}

type Option func(*Options)

func WithContext(ctx context.Context) Option {
	return func(opts *Options) {
		opts.Ctx = ctx
	}
}

func SetFanOutConcurrency(concurrency int) Option {
	return func(opts *Options) {
		opts.FanOutConcurrency = concurrency
	}
}

func EnableJoinBarrier() Option {
	return func(opts *Options) {
		opts.JoinBarrier = true
	}
}

func DisableStrictDefinitions() Option {
	return func(opts *Options) {
		opts.StrictDefinitions = false
	}
}

func SetShutdownTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.ShutdownTimeout = timeout
	}
}

func EnableMemStore() Option {
	return func(opts *Options) {
		opts.MemStore = true
	}
}

func WithPostgresConfig(config *PostgresConfig) Option {
	return func(opts *Options) {
		opts.PostgresConfig = config
	}
}

func WithRedisConfig(config *RedisConfig) Option {
	return func(opts *Options) {
		opts.RedisConfig = config
	}
}

func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(opts *Options) {
		opts.MetricsRegisterer = reg
	}
}

// EnvConfig mirrors Options for configuration through the environment.
type EnvConfig struct {
	// Store selects the archive backend: mem, postgres or redis.
	Store             string         `env:"STORE" envDefault:"mem"`
	FanOutConcurrency int            `env:"FAN_OUT_CONCURRENCY" envDefault:"1"`
	StrictDefinitions bool           `env:"STRICT_DEFINITIONS" envDefault:"true"`
	JoinBarrier       bool           `env:"JOIN_BARRIER" envDefault:"false"`
	ShutdownTimeout   time.Duration  `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	Postgres          PostgresConfig `envPrefix:"POSTGRES_"`
	Redis             RedisConfig    `envPrefix:"REDIS_"`
}

/**
 * LoadEnvOptions reads an EnvConfig from the environment, every variable
 * being looked up with the given prefix (e.g. "DAGFLOW_" reads
 * DAGFLOW_STORE, DAGFLOW_POSTGRES_HOST ...), and turns it into options.
 */
func LoadEnvOptions(prefix string) ([]Option, error) {
	cfg := &EnvConfig{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: prefix}); err != nil {
		return nil, errors.Annotatef(err, "parse %s environment", prefix)
	}
	return cfg.Options()
}

func (c *EnvConfig) Options() ([]Option, error) {
	if c.FanOutConcurrency < 1 {
		return nil, errors.NotValidf("fan out concurrency %d", c.FanOutConcurrency)
	}

	opts := []Option{
		SetFanOutConcurrency(c.FanOutConcurrency),
		SetShutdownTimeout(c.ShutdownTimeout),
	}
	if !c.StrictDefinitions {
		opts = append(opts, DisableStrictDefinitions())
	}
	if c.JoinBarrier {
		opts = append(opts, EnableJoinBarrier())
	}

	switch c.Store {
	case "", "mem":
		opts = append(opts, EnableMemStore())
	case "postgres":
		pg := c.Postgres
		opts = append(opts, WithPostgresConfig(&pg))
	case "redis":
		rc := c.Redis
		opts = append(opts, WithRedisConfig(&rc))
	default:
		return nil, errors.NotSupportedf("store %q", c.Store)
	}
	return opts, nil
}
