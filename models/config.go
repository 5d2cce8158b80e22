package models

import "fmt"

// NodeType identifies a processor kind.
type NodeType string

const (
	NodeImageSource          NodeType = "image_source"
	NodePreprocess           NodeType = "preprocess"
	NodeObjectDetection      NodeType = "object_detection"
	NodeInstanceSegmentation NodeType = "instance_segmentation"
	NodeSemanticSegmentation NodeType = "semantic_segmentation"
	NodeClassification       NodeType = "classification"
)

// StageOriginal is the processing stage of source images.
const StageOriginal = "original"

// NodeTypes lists every supported node type in declaration order.
func NodeTypes() []NodeType {
	return []NodeType{
		NodeImageSource,
		NodePreprocess,
		NodeObjectDetection,
		NodeInstanceSegmentation,
		NodeSemanticSegmentation,
		NodeClassification,
	}
}

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	for _, known := range NodeTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// NodeStatus is the lifecycle status shared by executions and node executions.
type NodeStatus string

const (
	StatusPending    NodeStatus = "pending"
	StatusProcessing NodeStatus = "processing"
	StatusCompleted  NodeStatus = "completed"
	StatusFailed     NodeStatus = "failed"
	StatusSkipped    NodeStatus = "skipped"
)

// Terminal reports whether no further transition is expected without a retry.
func (s NodeStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// ExecutionMode distinguishes full graph runs from single-node runs.
type ExecutionMode string

const (
	ModeGraph      ExecutionMode = "graph"
	ModeSingleNode ExecutionMode = "single_node"
)

// NodeConfig is one node of a workflow graph.
type NodeConfig struct {
	ID     string         `json:"id" yaml:"id"`
	Type   NodeType       `json:"type" yaml:"type"`
	Name   string         `json:"name,omitempty" yaml:"name,omitempty"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// EdgeConfig is a directed dependency from Source to Target.
type EdgeConfig struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// UpstreamNode describes a predecessor that lives outside a single-node snapshot.
type UpstreamNode struct {
	ID   string   `json:"id" yaml:"id"`
	Type NodeType `json:"type" yaml:"type"`
}

// WorkflowConfig is the serialized graph of a workflow.
type WorkflowConfig struct {
	Nodes    []NodeConfig   `json:"nodes" yaml:"nodes"`
	Edges    []EdgeConfig   `json:"edges" yaml:"edges"`
	Upstream []UpstreamNode `json:"upstream,omitempty" yaml:"upstream,omitempty"`
}

// Node returns the node with the given id.
func (c WorkflowConfig) Node(id string) (NodeConfig, bool) {
	for _, n := range c.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeConfig{}, false
}

// UpstreamNode returns the external predecessor with the given id.
func (c WorkflowConfig) UpstreamNode(id string) (UpstreamNode, bool) {
	for _, u := range c.Upstream {
		if u.ID == id {
			return u, true
		}
	}
	return UpstreamNode{}, false
}

// SingleNodeSnapshot builds the snapshot used to run nodeID in isolation:
// the node itself, every edge targeting it, and descriptors of its sources.
func (c WorkflowConfig) SingleNodeSnapshot(nodeID string) (WorkflowConfig, error) {
	node, ok := c.Node(nodeID)
	if !ok {
		return WorkflowConfig{}, fmt.Errorf("node %q not found in workflow", nodeID)
	}
	snap := WorkflowConfig{Nodes: []NodeConfig{node}}
	for _, e := range c.Edges {
		if e.Target != nodeID {
			continue
		}
		snap.Edges = append(snap.Edges, e)
		if src, ok := c.Node(e.Source); ok {
			snap.Upstream = append(snap.Upstream, UpstreamNode{ID: src.ID, Type: src.Type})
		} else if up, ok := c.UpstreamNode(e.Source); ok {
			snap.Upstream = append(snap.Upstream, up)
		}
	}
	return snap, nil
}

// OutputKey is the state key under which a node publishes its output ids.
func OutputKey(nodeID string) string {
	return "output_data_ids_" + nodeID
}
