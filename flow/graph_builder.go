package flow

// GraphBuilder provides a fluent API for constructing workflow graphs in
// tests and embedding code. The canvas UI produces the same Graph shape
// through serialization instead.
type GraphBuilder struct {
	graph Graph
}

// NewGraphBuilder creates a builder for a named workflow graph.
func NewGraphBuilder(id, name string) *GraphBuilder {
	return &GraphBuilder{graph: Graph{ID: id, Name: name}}
}

// AddNode appends a node with its type-specific configuration.
func (b *GraphBuilder) AddNode(id, nodeType string, config map[string]any) *GraphBuilder {
	b.graph.Nodes = append(b.graph.Nodes, GraphNode{
		ID:     id,
		Type:   nodeType,
		Config: config,
	})
	return b
}

// Connect adds a main-port edge from source to target.
func (b *GraphBuilder) Connect(source, target string) *GraphBuilder {
	return b.ConnectPorts(source, PortMain, target, PortMain)
}

// ConnectPorts adds an edge between explicit output and input ports.
func (b *GraphBuilder) ConnectPorts(source, sourcePort, target, targetPort string) *GraphBuilder {
	b.graph.Edges = append(b.graph.Edges, GraphEdge{
		Source:       source,
		SourceHandle: sourcePort,
		Target:       target,
		TargetHandle: targetPort,
	})
	return b
}

// SetEntry designates the entry node explicitly.
func (b *GraphBuilder) SetEntry(nodeID string) *GraphBuilder {
	b.graph.Entry = nodeID
	return b
}

// Build returns the constructed graph. Validation happens against a registry
// at run time (or explicitly via Graph.Validate).
func (b *GraphBuilder) Build() *Graph {
	graph := b.graph
	return &graph
}
