package types

import "context"

type Orchestrator interface {
	/**
	 * RegisterDefinition validates (unless strict definitions are disabled)
	 * and publishes def. A published definition can not be modified anymore.
	 */
	RegisterDefinition(def *Definition) error
	GetDefinition(definitionID string) (*Definition, bool)
	ListDefinitionIDs() []string
	/**
	 * RenderDefinition returns the DOT string of the registered definition.
	 */
	RenderDefinition(definitionID string) (string, error)

	CreateInstance(ctx context.Context, definitionID string, initial Data, opts ...InstanceOption) (string, error)
	StartInstance(ctx context.Context, instanceID string) error
	/**
	 * GetInstanceStatus returns a snapshot of the instance. It is safe to call
	 * while the instance is executing. Instances no longer held in memory are
	 * looked up in the archive store.
	 */
	GetInstanceStatus(ctx context.Context, instanceID string) (*InstanceSnapshot, error)
	ListInstanceIDs(ctx context.Context) ([]string, error)
	RenderInstance(ctx context.Context, instanceID string) (string, error)
	/**
	 * WaitInstance blocks until the instance reaches a terminal state or ctx is done.
	 */
	WaitInstance(ctx context.Context, instanceID string) (*InstanceSnapshot, error)

	/**
	 * UpdateContext merges values into the shared context and wakes the
	 * execution loop of the instance.
	 */
	UpdateContext(ctx context.Context, instanceID string, values Data) error
	PauseInstance(ctx context.Context, instanceID string) error
	ResumeInstance(ctx context.Context, instanceID string) error
	/**
	 * CancelInstance is a no-op for terminal instances. Otherwise it stops the
	 * execution loop, waits for it to exit and marks the instance CANCELLED,
	 * unless the loop committed a terminal state first.
	 */
	CancelInstance(ctx context.Context, instanceID string) error

	/**
	 * Close pauses all running instances and releases the worker pool.
	 */
	Close(ctx context.Context) error
}

type InstanceOptions struct {
	Metadata Data
}

type InstanceOption func(*InstanceOptions)

func WithMetadata(metadata Data) InstanceOption {
	return func(opts *InstanceOptions) {
		opts.Metadata = metadata.Clone()
	}
}
