package runtime

import (
	"sort"
	"sync"

	"github.com/warriorguo/dagflow/types"
)

type definitionRegistry struct {
	mu          sync.RWMutex
	definitions map[string]*types.Definition
}

func newDefinitionRegistry() *definitionRegistry {
	return &definitionRegistry{definitions: make(map[string]*types.Definition)}
}

func (d *definitionRegistry) add(def *types.Definition) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.definitions[def.ID]; exists {
		return types.NewDuplicateDefinitionID(def.ID)
	}
	d.definitions[def.ID] = def
	return nil
}

func (d *definitionRegistry) get(id string) (*types.Definition, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	def, exists := d.definitions[id]
	return def, exists
}

func (d *definitionRegistry) ids() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.definitions))
	for id := range d.definitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type instanceRegistry struct {
	mu        sync.RWMutex
	instances map[string]*instanceRunner
}

func newInstanceRegistry() *instanceRegistry {
	return &instanceRegistry{instances: make(map[string]*instanceRunner)}
}

func (r *instanceRegistry) add(ir *instanceRunner) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.instances[ir.id] = ir
}

func (r *instanceRegistry) get(id string) (*instanceRunner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ir, exists := r.instances[id]
	return ir, exists
}

func (r *instanceRegistry) all() []*instanceRunner {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runners := make([]*instanceRunner, 0, len(r.instances))
	for _, ir := range r.instances {
		runners = append(runners, ir)
	}
	return runners
}
