package store

import "context"

// Store is the key/value archive behind the orchestrator. Keys are grouped
// by prefix: terminal instance snapshots live under one prefix and the node
// trace records of an instance under a prefix of their own.
type Store interface {
	/**
	 * Get returns nil without error for a missing prefix + key
	 */
	Get(ctx context.Context, prefix, key string) ([]byte, error)
	Set(ctx context.Context, prefix, key string, value []byte) error
	/**
	 * Remove a prefix and key
	 * remove an unexists prefix + key would NOT return error
	 */
	Remove(ctx context.Context, prefix, key string) error
	/**
	 * List calls iterator with every key under prefix in ascending order
	 * until iterator returns false.
	 */
	List(ctx context.Context, prefix string, iterator func(key string) bool) error
}
