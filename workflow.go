package dagflow

import (
	"context"
	"io"

	"github.com/juju/errors"

	"github.com/warriorguo/dagflow/metrics"
	"github.com/warriorguo/dagflow/runtime"
	"github.com/warriorguo/dagflow/store"
	"github.com/warriorguo/dagflow/store/mem"
	"github.com/warriorguo/dagflow/store/postgres"
	"github.com/warriorguo/dagflow/store/redis"
	"github.com/warriorguo/dagflow/types"
)

// NewOrchestrator creates an orchestrator running task nodes on executor.
func NewOrchestrator(executor types.TaskExecutor, opts ...types.Option) (types.Orchestrator, error) {
	if executor == nil {
		return nil, errors.BadRequestf("task executor is nil")
	}

	options := types.NewOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.FanOutConcurrency < 1 {
		return nil, errors.NotValidf("fan out concurrency %d", options.FanOutConcurrency)
	}

	s, err := newStore(options)
	if err != nil {
		return nil, errors.Trace(err)
	}

	var recorder metrics.Recorder = metrics.Nop{}
	if options.MetricsRegisterer != nil {
		recorder = metrics.NewCollector(options.MetricsRegisterer)
	}

	o := runtime.NewOrchestrator(executor, s, recorder, options)
	if closer, ok := s.(io.Closer); ok {
		return &storeClosingOrchestrator{Orchestrator: o, closer: closer}, nil
	}
	return o, nil
}

// NewOrchestratorFromEnv reads the options from the environment, see
// types.LoadEnvOptions, then applies opts on top of them.
func NewOrchestratorFromEnv(executor types.TaskExecutor, prefix string, opts ...types.Option) (types.Orchestrator, error) {
	envOpts, err := types.LoadEnvOptions(prefix)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return NewOrchestrator(executor, append(envOpts, opts...)...)
}

// newStore picks the archive backend: MemStore forces the memory store,
// otherwise PostgresConfig takes precedence over RedisConfig.
func newStore(options *types.Options) (store.Store, error) {
	switch {
	case options.MemStore:
		return mem.NewMemStore(), nil

	case options.PostgresConfig != nil:
		s, err := postgres.NewPostgresStore(postgres.ConfigFrom(options.PostgresConfig))
		if err != nil {
			return nil, errors.Annotatef(err, "failed to create PostgreSQL store")
		}
		return s, nil

	case options.RedisConfig != nil:
		s, err := redis.NewRedisStore(options.Ctx, options.RedisConfig)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to create redis store")
		}
		return s, nil

	default:
		return mem.NewMemStore(), nil
	}
}

type storeClosingOrchestrator struct {
	types.Orchestrator
	closer io.Closer
}

func (s *storeClosingOrchestrator) Close(ctx context.Context) error {
	if err := s.Orchestrator.Close(ctx); err != nil {
		// running instances are still writing to the store
		return errors.Trace(err)
	}
	return errors.Annotatef(s.closer.Close(), "failed to close store")
}
