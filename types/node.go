package types

import "time"

// NodeTraceRecord is written for every node dispatch of an instance.
type NodeTraceRecord struct {
	InstanceID string
	NodeID     string
	Kind       NodeKind
	StartTime  time.Time
	EndTime    time.Time
	Error      string `json:",omitempty"`
	Input      Data   `json:",omitempty"`
	Output     any    `json:",omitempty"`
}

// InstanceSnapshot is a point-in-time copy of an instance. Zero times mean
// the corresponding event has not happened.
type InstanceSnapshot struct {
	ID           string
	DefinitionID string
	State        State

	CreatedAt   time.Time
	StartedAt   time.Time `json:",omitempty"`
	CompletedAt time.Time `json:",omitempty"`

	// Frontier holds the node ids pending execution, in insertion order.
	Frontier []string
	// CompletedNodes holds the executed node ids in completion order.
	CompletedNodes []string
	Outputs        map[string]any
	Context        Data

	Error      string `json:",omitempty"`
	FailedNode string `json:",omitempty"`
	Metadata   Data   `json:",omitempty"`
}

func (s *InstanceSnapshot) IsCompleted(nodeID string) bool {
	return contains(s.CompletedNodes, nodeID)
}

func (s *InstanceSnapshot) InFrontier(nodeID string) bool {
	return contains(s.Frontier, nodeID)
}
