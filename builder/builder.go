// Package builder assembles a types.Definition fluently:
//
//	def, err := builder.New("order", "Order fulfilment", "").
//		AddTask("charge", "Charge card", "payments", types.Data{"currency": "EUR"}).
//		AddDecision("in-stock", "In stock?", predicate.ContextKey("in_stock")).
//		AddTask("ship", "Ship", "logistics", nil).
//		Connect("charge", "in-stock").
//		ConnectIf("in-stock", "ship", predicate.Truthy(), "yes").
//		SetEndNodes("ship").
//		Build()
package builder

import (
	"github.com/juju/errors"

	"github.com/warriorguo/dagflow/types"
)

// Builder keeps the first error it meets; later calls are no-ops and Build
// returns that error.
type Builder struct {
	def *types.Definition
	err error
}

func New(id, name, description string) *Builder {
	return &Builder{def: types.NewDefinition(id, name, description)}
}

func (b *Builder) addNode(n *types.Node) *Builder {
	if b.err == nil {
		b.err = errors.Trace(b.def.AddNode(n))
	}
	return b
}

// AddTask adds a task node run by the executor for domain. The first node
// added is the start node.
func (b *Builder) AddTask(id, name, domain string, input types.Data) *Builder {
	return b.addNode(&types.Node{ID: id, Kind: types.Task, Name: name, Domain: domain, Input: input})
}

// AddDecision adds a decision node evaluating p over the instance context.
// A nil p always evaluates to true.
func (b *Builder) AddDecision(id, name string, p types.Predicate) *Builder {
	return b.addNode(&types.Node{ID: id, Kind: types.Decision, Name: name, Predicate: p})
}

func (b *Builder) AddControlFlow(id, name string, kind types.NodeKind) *Builder {
	if b.err == nil && !kind.IsControlFlow() {
		b.err = types.NewValidationErrorf("node %s: %v is not a control flow kind", id, kind)
	}
	return b.addNode(&types.Node{ID: id, Kind: kind, Name: name})
}

func (b *Builder) Connect(source, target string) *Builder {
	return b.ConnectIf(source, target, nil, "")
}

// ConnectIf adds an edge that fires when p accepts the result of source.
func (b *Builder) ConnectIf(source, target string, p types.Predicate, label string) *Builder {
	if b.err == nil {
		b.err = errors.Trace(b.def.AddEdge(&types.Edge{Source: source, Target: target, Predicate: p, Label: label}))
	}
	return b
}

func (b *Builder) SetStartNode(id string) *Builder {
	if b.err == nil {
		b.err = errors.Trace(b.def.SetStartNode(id))
	}
	return b
}

func (b *Builder) SetEndNodes(ids ...string) *Builder {
	if b.err == nil {
		b.err = errors.Trace(b.def.SetEndNodes(ids...))
	}
	return b
}

// Build returns the definition, unpublished, or the first error met.
func (b *Builder) Build() (*types.Definition, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.def, nil
}
