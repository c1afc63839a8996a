package types

import (
	"time"

	"github.com/juju/errors"
)

// Node is a unit of work or a control-flow point of a Definition.
// Children and parents are derived from the edges and maintained by the
// owning Definition, never edited directly.
type Node struct {
	ID   string
	Kind NodeKind
	Name string

	// Task nodes
	Domain string
	Input  Data

	// Decision nodes
	Predicate Predicate

	children []string
	parents  []string
}

func (n *Node) Children() []string {
	return append([]string(nil), n.children...)
}

func (n *Node) Parents() []string {
	return append([]string(nil), n.parents...)
}

// Edge connects Source to Target. A nil Predicate always fires.
type Edge struct {
	Source    string
	Target    string
	Predicate Predicate
	Label     string
}

/**
 * Definition is the immutable template of a workflow once published.
 * Before publishing it is built through AddNode / AddEdge / SetEndNodes,
 * which are not safe for concurrent use. After Publish every mutator fails
 * and the definition is shared read-only by all of its instances.
 */
type Definition struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time

	nodes     map[string]*Node
	nodeOrder []string
	edges     []*Edge
	startNode string
	endNodes  []string
	published bool
}

func NewDefinition(id, name, description string) *Definition {
	return &Definition{
		ID:          id,
		Name:        name,
		Description: description,
		CreatedAt:   time.Now(),
		nodes:       make(map[string]*Node),
	}
}

func (d *Definition) checkMutable() error {
	if d.published {
		return errors.Forbiddenf("definition %s is published", d.ID)
	}
	return nil
}

// AddNode adds n; the first node added becomes the start node.
func (d *Definition) AddNode(n *Node) error {
	if err := d.checkMutable(); err != nil {
		return err
	}
	if n == nil {
		return errors.BadRequestf("node is nil")
	}
	if _, exists := d.nodes[n.ID]; exists {
		return NewDuplicateNodeID(n.ID)
	}
	n.children = nil
	n.parents = nil
	d.nodes[n.ID] = n
	d.nodeOrder = append(d.nodeOrder, n.ID)
	if len(d.nodeOrder) == 1 {
		d.startNode = n.ID
	}
	d.relinkNode(n.ID)
	return nil
}

// relinkNode attaches edges recorded before id existed, so the derived
// lists do not depend on the order nodes and edges were added.
func (d *Definition) relinkNode(id string) {
	for _, e := range d.edges {
		if e.Source == id || e.Target == id {
			d.link(e)
		}
	}
}

func (d *Definition) link(e *Edge) {
	src, srcExists := d.nodes[e.Source]
	dst, dstExists := d.nodes[e.Target]
	if !srcExists || !dstExists {
		return
	}
	if !contains(src.children, e.Target) {
		src.children = append(src.children, e.Target)
	}
	if !contains(dst.parents, e.Source) {
		dst.parents = append(dst.parents, e.Source)
	}
}

// AddEdge stores e even when an endpoint is unknown; relationship lists are
// only updated once both endpoints exist. Validate reports dangling edges.
func (d *Definition) AddEdge(e *Edge) error {
	if err := d.checkMutable(); err != nil {
		return err
	}
	if e == nil {
		return errors.BadRequestf("edge is nil")
	}
	d.edges = append(d.edges, e)
	d.link(e)
	return nil
}

// SetEndNodes replaces the end node set. Ids are not checked here.
func (d *Definition) SetEndNodes(ids ...string) error {
	if err := d.checkMutable(); err != nil {
		return err
	}
	d.endNodes = append([]string(nil), ids...)
	return nil
}

func (d *Definition) SetStartNode(id string) error {
	if err := d.checkMutable(); err != nil {
		return err
	}
	d.startNode = id
	return nil
}

// Publish freezes the definition. It is idempotent.
func (d *Definition) Publish() {
	d.published = true
}

func (d *Definition) Published() bool {
	return d.published
}

func (d *Definition) Node(id string) (*Node, bool) {
	n, exists := d.nodes[id]
	return n, exists
}

// Nodes returns the nodes in insertion order.
func (d *Definition) Nodes() []*Node {
	nodes := make([]*Node, 0, len(d.nodeOrder))
	for _, id := range d.nodeOrder {
		nodes = append(nodes, d.nodes[id])
	}
	return nodes
}

func (d *Definition) Edges() []*Edge {
	return append([]*Edge(nil), d.edges...)
}

// OutEdges returns the edges leaving id in definition order.
func (d *Definition) OutEdges(id string) []*Edge {
	out := make([]*Edge, 0)
	for _, e := range d.edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

func (d *Definition) StartNode() string {
	return d.startNode
}

func (d *Definition) EndNodes() []string {
	return append([]string(nil), d.endNodes...)
}

func (d *Definition) IsEndNode(id string) bool {
	return contains(d.endNodes, id)
}

// Validate checks the structure that AddEdge and SetEndNodes accept leniently:
// dangling edges, unknown start/end nodes, invalid kinds and cycles.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return NewValidationErrorf("definition id is empty")
	}
	for _, id := range d.nodeOrder {
		if n := d.nodes[id]; !n.Kind.Valid() {
			return NewValidationErrorf("node %s has unknown kind %v", id, n.Kind)
		}
	}
	if len(d.nodes) > 0 {
		if _, exists := d.nodes[d.startNode]; !exists {
			return NewValidationErrorf("start node %q does not exist", d.startNode)
		}
	}
	for _, e := range d.edges {
		if _, exists := d.nodes[e.Source]; !exists {
			return NewValidationErrorf("edge %s -> %s: unknown source", e.Source, e.Target)
		}
		if _, exists := d.nodes[e.Target]; !exists {
			return NewValidationErrorf("edge %s -> %s: unknown target", e.Source, e.Target)
		}
	}
	for _, id := range d.endNodes {
		if _, exists := d.nodes[id]; !exists {
			return NewValidationErrorf("end node %q does not exist", id)
		}
	}
	if cycle := d.findCycleNode(); cycle != "" {
		return NewValidationErrorf("graph has a cycle through node %s", cycle)
	}
	return nil
}

// findCycleNode runs Kahn's algorithm and returns a node left with incoming
// edges, or "" for an acyclic graph.
func (d *Definition) findCycleNode() string {
	indeg := make(map[string]int, len(d.nodes))
	for _, id := range d.nodeOrder {
		indeg[id] = len(d.nodes[id].parents)
	}
	queue := make([]string, 0, len(d.nodes))
	for _, id := range d.nodeOrder {
		if indeg[id] == 0 {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range d.nodes[id].children {
			if indeg[child]--; indeg[child] == 0 {
				queue = append(queue, child)
			}
		}
	}
	for _, id := range d.nodeOrder {
		if indeg[id] > 0 {
			return id
		}
	}
	return ""
}

func contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}
