package runtime

import (
	"context"
	"sort"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/dagflow/metrics"
	"github.com/warriorguo/dagflow/store"
	"github.com/warriorguo/dagflow/types"
)

var (
	_ types.Orchestrator = &orchestrator{}
)

type orchestrator struct {
	opts     *types.Options
	executor types.TaskExecutor
	store    store.Store
	metrics  metrics.Recorder

	// nil unless FanOutConcurrency > 1
	pool *workerpool.WorkerPool

	definitions *definitionRegistry
	instances   *instanceRegistry

	closeMu sync.RWMutex
	closed  bool
}

// NewOrchestrator builds the engine on top of s. A nil recorder disables metrics.
func NewOrchestrator(executor types.TaskExecutor, s store.Store, recorder metrics.Recorder, opts *types.Options) types.Orchestrator {
	if opts == nil {
		opts = types.NewOptions()
	}
	if opts.Ctx == nil {
		opts.Ctx = context.Background()
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}

	o := &orchestrator{
		opts:        opts,
		executor:    executor,
		store:       s,
		metrics:     recorder,
		definitions: newDefinitionRegistry(),
		instances:   newInstanceRegistry(),
	}
	if opts.FanOutConcurrency > 1 {
		o.pool = workerpool.New(opts.FanOutConcurrency)
	}
	return o
}

func (o *orchestrator) checkOpen() error {
	o.closeMu.RLock()
	defer o.closeMu.RUnlock()

	if o.closed {
		return errors.MethodNotAllowedf("orchestrator closed")
	}
	return nil
}

func (o *orchestrator) RegisterDefinition(def *types.Definition) error {
	if def == nil {
		return errors.BadRequestf("definition is nil")
	}
	if o.opts.StrictDefinitions {
		if err := def.Validate(); err != nil {
			return errors.Trace(err)
		}
	}
	if err := o.definitions.add(def); err != nil {
		return errors.Trace(err)
	}
	def.Publish()

	log.Infof("registered workflow definition %s (%d nodes)", def.ID, len(def.Nodes()))
	return nil
}

func (o *orchestrator) GetDefinition(definitionID string) (*types.Definition, bool) {
	return o.definitions.get(definitionID)
}

func (o *orchestrator) ListDefinitionIDs() []string {
	return o.definitions.ids()
}

func (o *orchestrator) RenderDefinition(definitionID string) (string, error) {
	def, exists := o.definitions.get(definitionID)
	if !exists {
		return "", types.NewDefinitionNotFound(definitionID)
	}
	return renderDOT(def, nil, nil)
}

func (o *orchestrator) CreateInstance(ctx context.Context, definitionID string, initial types.Data,
	opts ...types.InstanceOption) (string, error) {
	if err := o.checkOpen(); err != nil {
		return "", err
	}
	def, exists := o.definitions.get(definitionID)
	if !exists {
		return "", types.NewDefinitionNotFound(definitionID)
	}

	instanceOpts := &types.InstanceOptions{}
	for _, opt := range opts {
		opt(instanceOpts)
	}

	r := newInstanceRunner(uuid.NewString(), def, initial, instanceOpts.Metadata)
	o.instances.add(r)

	log.WithFields(log.Fields{
		"instance":   r.id,
		"definition": def.ID,
	}).Info("created workflow instance")
	return r.id, nil
}

func (o *orchestrator) getRunner(instanceID string) (*instanceRunner, error) {
	r, exists := o.instances.get(instanceID)
	if !exists {
		return nil, types.NewInstanceNotFound(instanceID)
	}
	return r, nil
}

func (o *orchestrator) StartInstance(ctx context.Context, instanceID string) error {
	if err := o.checkOpen(); err != nil {
		return err
	}
	r, err := o.getRunner(instanceID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.state != types.Created {
		from := r.state
		r.mu.Unlock()
		return types.NewInvalidStateTransition(instanceID, from, types.Running)
	}
	if err := r.transitLocked(types.Running); err != nil {
		r.mu.Unlock()
		return errors.Trace(err)
	}
	o.launchLocked(r)
	r.mu.Unlock()

	o.metrics.InstanceStarted(r.def.ID)
	log.Infof("started workflow instance %s", instanceID)
	return nil
}

// launchLocked starts a new execution loop for r. The loop waits for the
// previous one, if any, to exit first. Callers hold r.mu.
func (o *orchestrator) launchLocked(r *instanceRunner) {
	prev := r.loop
	lc := newLoopControl()
	r.loop = lc
	go o.runLoop(r, lc, prev)
}

func (o *orchestrator) GetInstanceStatus(ctx context.Context, instanceID string) (*types.InstanceSnapshot, error) {
	if r, exists := o.instances.get(instanceID); exists {
		return r.snapshot(), nil
	}

	snapshot, err := o.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if snapshot == nil {
		return nil, types.NewInstanceNotFound(instanceID)
	}
	return snapshot, nil
}

func (o *orchestrator) ListInstanceIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, r := range o.instances.all() {
		seen[r.id] = true
	}
	err := o.store.List(ctx, InstancePath, func(key string) bool {
		seen[key] = true
		return true
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (o *orchestrator) RenderInstance(ctx context.Context, instanceID string) (string, error) {
	snapshot, err := o.GetInstanceStatus(ctx, instanceID)
	if err != nil {
		return "", err
	}
	def, exists := o.definitions.get(snapshot.DefinitionID)
	if !exists {
		return "", types.NewDefinitionNotFound(snapshot.DefinitionID)
	}
	records, err := o.loadRecords(ctx, instanceID)
	if err != nil {
		return "", errors.Trace(err)
	}
	return renderDOT(def, snapshot, records)
}

func (o *orchestrator) WaitInstance(ctx context.Context, instanceID string) (*types.InstanceSnapshot, error) {
	r, exists := o.instances.get(instanceID)
	if !exists {
		return o.GetInstanceStatus(ctx, instanceID)
	}

	select {
	case <-r.finished:
		return r.snapshot(), nil
	case <-ctx.Done():
		return nil, errors.Trace(ctx.Err())
	}
}

func (o *orchestrator) UpdateContext(ctx context.Context, instanceID string, values types.Data) error {
	r, err := o.getRunner(instanceID)
	if err != nil {
		return err
	}
	if err := r.mergeContext(values); err != nil {
		return errors.Trace(err)
	}
	r.notify()
	return nil
}

func (o *orchestrator) PauseInstance(ctx context.Context, instanceID string) error {
	r, err := o.getRunner(instanceID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if err := r.transitLocked(types.Paused); err != nil {
		r.mu.Unlock()
		return errors.Trace(err)
	}
	lc := r.loop
	r.mu.Unlock()

	log.Infof("pausing workflow instance %s", instanceID)
	return errors.Trace(waitLoop(ctx, lc))
}

func (o *orchestrator) ResumeInstance(ctx context.Context, instanceID string) error {
	if err := o.checkOpen(); err != nil {
		return err
	}
	r, err := o.getRunner(instanceID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != types.Paused {
		return types.NewInvalidStateTransition(instanceID, r.state, types.Running)
	}
	if err := r.transitLocked(types.Running); err != nil {
		return errors.Trace(err)
	}
	o.launchLocked(r)

	log.Infof("resumed workflow instance %s", instanceID)
	return nil
}

func (o *orchestrator) CancelInstance(ctx context.Context, instanceID string) error {
	r, exists := o.instances.get(instanceID)
	if !exists {
		snapshot, err := o.loadInstance(ctx, instanceID)
		if err != nil {
			return errors.Trace(err)
		}
		if snapshot == nil {
			return types.NewInstanceNotFound(instanceID)
		}
		// archived instances are terminal
		return nil
	}

	for {
		r.mu.RLock()
		state, lc := r.state, r.loop
		r.mu.RUnlock()

		if state.IsTerminal() {
			return nil
		}
		if err := waitLoop(ctx, lc); err != nil {
			return errors.Annotatef(err, "cancel workflow instance %s", instanceID)
		}

		committed, current := r.finishStopped(lc, types.Cancelled)
		if !current {
			// resumed while stopping, stop the new loop too
			continue
		}
		if committed {
			o.finalize(r, types.Cancelled)
			log.Infof("cancelled workflow instance %s", instanceID)
		}
		return nil
	}
}

// waitLoop stops lc and waits for its goroutine to exit.
func waitLoop(ctx context.Context, lc *loopControl) error {
	if lc == nil {
		return nil
	}
	lc.signalStop()

	select {
	case <-lc.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish commits a terminal state, archives the instance and reports the
// metrics. It returns false when another terminal state won.
func (o *orchestrator) finish(r *instanceRunner, state types.State, errMsg, failedNode string) bool {
	if !r.finish(state, errMsg, failedNode) {
		return false
	}
	o.finalize(r, state)
	return true
}

// finalize reports the metrics and archives r once it committed state. The
// finished channel is closed last so waiters see both.
func (o *orchestrator) finalize(r *instanceRunner, state types.State) {
	snapshot := r.snapshot()
	if !snapshot.StartedAt.IsZero() {
		o.metrics.InstanceFinished(snapshot.DefinitionID, state, snapshot.CompletedAt.Sub(snapshot.StartedAt))
	}
	o.archiveInstance(o.opts.Ctx, snapshot)
	r.markFinished()
}

func (o *orchestrator) Close(ctx context.Context) error {
	o.closeMu.Lock()
	if o.closed {
		o.closeMu.Unlock()
		return nil
	}
	o.closed = true
	o.closeMu.Unlock()

	if o.opts.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.ShutdownTimeout)
		defer cancel()
	}

	var retErr error
	for _, r := range o.instances.all() {
		if r.getState() != types.Running {
			continue
		}
		if err := o.PauseInstance(ctx, r.id); err != nil && !errors.Is(err, types.ErrInvalidStateTransition) {
			retErr = errors.Wrapf(retErr, err, "failed to pause %s", r.id)
		}
	}

	// a loop that did not exit in time may still submit to the pool
	if o.pool != nil && retErr == nil {
		o.pool.StopWait()
	}
	return retErr
}
