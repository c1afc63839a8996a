package runtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/warriorguo/dagflow/types"
)

var nodeShapes = map[types.NodeKind]string{
	types.Task:     "record",
	types.Decision: "diamond",
	types.Join:     "invtriangle",
	types.Fork:     "triangle",
	types.Merge:    "invhouse",
}

// renderDOT renders def as a graphviz digraph. With a snapshot the nodes are
// colored by their progress and carry their trace record as comment.
func renderDOT(def *types.Definition, snapshot *types.InstanceSnapshot, records map[string]*types.NodeTraceRecord) (string, error) {
	renderer := newDAGRenderer(snapshot, records)
	return renderer.generateDOT(def), nil
}

func newDAGRenderer(snapshot *types.InstanceSnapshot, records map[string]*types.NodeTraceRecord) *dagRenderer {
	if records == nil {
		records = make(map[string]*types.NodeTraceRecord)
	}
	return &dagRenderer{snapshot, records, &strings.Builder{}}
}

type dagRenderer struct {
	snapshot *types.InstanceSnapshot
	records  map[string]*types.NodeTraceRecord
	sb       *strings.Builder
}

func (d *dagRenderer) generateDOT(def *types.Definition) string {
	d.write("digraph D {")
	for _, node := range def.Nodes() {
		d.drawNode(def, node)
	}
	for _, e := range def.Edges() {
		d.drawEdge(e)
	}
	d.write("label=%s", quoteString(def.Name))
	d.write("}")
	return d.sb.String()
}

// packToComment quotes the JSON form of r. json.Marshal already escapes
// control characters, and DOT only needs the quotes escaped.
func packToComment(r *types.NodeTraceRecord) string {
	s, _ := json.Marshal(r)
	return quoteString(string(s))
}

func (d *dagRenderer) calcColor(nodeID string) string {
	switch {
	case d.snapshot.FailedNode == nodeID:
		return "red"
	case d.snapshot.IsCompleted(nodeID):
		return "green"
	case d.snapshot.InFrontier(nodeID):
		return "yellow"
	default:
		return "white"
	}
}

func (d *dagRenderer) calcAttr(def *types.Definition, node *types.Node) string {
	attr := ""
	if def.IsEndNode(node.ID) {
		attr += " peripheries=2"
	}
	if d.snapshot == nil {
		return attr
	}

	attr += fmt.Sprintf(" style=\"filled\" color=\"%s\"", d.calcColor(node.ID))
	if record, exists := d.records[node.ID]; exists {
		attr += " comment=" + packToComment(record)
	}
	return attr
}

func (d *dagRenderer) drawNode(def *types.Definition, node *types.Node) {
	label := node.Name
	if label == "" {
		label = node.ID
	}
	d.write("%s [label=%s shape=\"%s\"%s]", idString(node.ID), quoteString(label),
		nodeShapes[node.Kind], d.calcAttr(def, node))
}

func (d *dagRenderer) drawEdge(e *types.Edge) {
	if e.Label != "" {
		d.write("%s -> %s [label=%s]", idString(e.Source), idString(e.Target), quoteString(e.Label))
		return
	}
	d.write("%s -> %s", idString(e.Source), idString(e.Target))
}

func (d *dagRenderer) write(format string, s ...any) {
	d.sb.WriteString(fmt.Sprintf(format+"\n", s...))
}

func quoteString(s string) string {
	return "\"" + strings.ReplaceAll(s, "\"", "\\\"") + "\""
}

var idleChars = []string{" ", "'", "\"", "(", ")", "*", "&", "^", "%", "$", "#", "@", "!", "?", "<", ">", "[", "]", "{", "}", ".", "-", "/", ":"}

func idString(s string) string {
	for _, ch := range idleChars {
		s = strings.ReplaceAll(s, ch, "_")
	}
	return s
}
