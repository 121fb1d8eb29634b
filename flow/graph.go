package flow

import (
	"fmt"

	"github.com/BaSui01/flowgrid/types"
)

// Well-known port names shared by the built-in node types.
const (
	// PortMain is the default input and output port.
	PortMain = "main"
	// PortError receives a node's error envelope when wired.
	PortError = "error"
	// PortTrue and PortFalse are the decision node branches.
	PortTrue  = "true"
	PortFalse = "false"
)

// PortSpec describes one named input port of a node type.
type PortSpec struct {
	Name string `json:"name" yaml:"name"`
	// Required ports must receive at least one fired upstream envelope
	// before the node becomes ready.
	Required bool `json:"required" yaml:"required"`
}

// NodeDefinition is the static, node-type-level metadata. Immutable after
// registration.
type NodeDefinition struct {
	Type     string         `json:"type" yaml:"type"`
	Label    string         `json:"label,omitempty" yaml:"label,omitempty"`
	Inputs   []PortSpec     `json:"inputs" yaml:"inputs"`
	Outputs  []string       `json:"outputs" yaml:"outputs"`
	Defaults map[string]any `json:"defaults,omitempty" yaml:"defaults,omitempty"`
}

// HasOutput reports whether the definition declares the named output port.
func (d NodeDefinition) HasOutput(port string) bool {
	for _, out := range d.Outputs {
		if out == port {
			return true
		}
	}
	return false
}

// Position is the node's location on the visual canvas. The engine carries it
// through serialization untouched.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// GraphNode is one placed node in a workflow graph.
type GraphNode struct {
	ID       string         `json:"id" yaml:"id"`
	Type     string         `json:"type" yaml:"type"`
	Label    string         `json:"label,omitempty" yaml:"label,omitempty"`
	Position Position       `json:"position,omitempty" yaml:"position,omitempty"`
	Config   map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// GraphEdge connects a source node's output port to a target node's input
// port. Empty handles default to PortMain.
type GraphEdge struct {
	Source       string `json:"source" yaml:"source"`
	SourceHandle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
	Target       string `json:"target" yaml:"target"`
	TargetHandle string `json:"targetHandle,omitempty" yaml:"targetHandle,omitempty"`
}

// SourcePort returns the edge's output port, defaulting to PortMain.
func (e GraphEdge) SourcePort() string {
	if e.SourceHandle == "" {
		return PortMain
	}
	return e.SourceHandle
}

// TargetPort returns the edge's input port, defaulting to PortMain.
func (e GraphEdge) TargetPort() string {
	if e.TargetHandle == "" {
		return PortMain
	}
	return e.TargetHandle
}

// Graph is a workflow graph as supplied by the canvas: nodes plus labeled
// edges. It is read-only to the engine; a fresh graph is supplied per run.
type Graph struct {
	ID    string      `json:"id,omitempty" yaml:"id,omitempty"`
	Name  string      `json:"name,omitempty" yaml:"name,omitempty"`
	Entry string      `json:"entry,omitempty" yaml:"entry,omitempty"`
	Nodes []GraphNode `json:"nodes" yaml:"nodes"`
	Edges []GraphEdge `json:"edges" yaml:"edges"`
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (*GraphNode, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// EntryNode resolves the designated entry node. When Entry is unset, a single
// node without incoming edges is accepted as the implicit trigger.
func (g *Graph) EntryNode() (*GraphNode, error) {
	if g.Entry != "" {
		node, ok := g.Node(g.Entry)
		if !ok {
			return nil, types.NewErrorf(types.ErrValidation, "entry node %q not found", g.Entry)
		}
		return node, nil
	}

	hasIncoming := make(map[string]bool, len(g.Nodes))
	for _, edge := range g.Edges {
		hasIncoming[edge.Target] = true
	}
	var roots []*GraphNode
	for i := range g.Nodes {
		if !hasIncoming[g.Nodes[i].ID] {
			roots = append(roots, &g.Nodes[i])
		}
	}
	if len(roots) != 1 {
		return nil, types.NewErrorf(types.ErrValidation,
			"graph must have exactly one entry node, found %d roots", len(roots))
	}
	return roots[0], nil
}

// Validate checks static graph invariants against the registry: unique node
// IDs, every node type registered, edges referencing known nodes and declared
// ports, exactly one entry, no required input port left unwired (entry node
// excepted), and no cycles.
func (g *Graph) Validate(registry *Registry) error {
	if len(g.Nodes) == 0 {
		return types.NewError(types.ErrValidation, "graph has no nodes")
	}

	seen := make(map[string]bool, len(g.Nodes))
	for _, node := range g.Nodes {
		if node.ID == "" {
			return types.NewError(types.ErrValidation, "node with empty id")
		}
		if seen[node.ID] {
			return types.NewErrorf(types.ErrValidation, "duplicate node id %q", node.ID)
		}
		seen[node.ID] = true
		exec, ok := registry.Executor(node.Type)
		if !ok {
			return types.NewErrorf(types.ErrValidation, "node %q has unregistered type %q", node.ID, node.Type)
		}
		if validator, ok := exec.(ConfigValidator); ok {
			if err := validator.ValidateConfig(effectiveConfig(exec.Definition(), node.Config)); err != nil {
				return types.NewErrorf(types.ErrConfiguration, "node %q: invalid configuration", node.ID).WithCause(err).WithNodeID(node.ID)
			}
		}
	}

	entry, err := g.EntryNode()
	if err != nil {
		return err
	}

	wiredInputs := make(map[string]map[string]bool)
	for _, edge := range g.Edges {
		src, ok := g.Node(edge.Source)
		if !ok {
			return types.NewErrorf(types.ErrValidation, "edge references unknown source %q", edge.Source)
		}
		tgt, ok := g.Node(edge.Target)
		if !ok {
			return types.NewErrorf(types.ErrValidation, "edge references unknown target %q", edge.Target)
		}
		srcDef, _ := registry.Definition(src.Type)
		if !srcDef.HasOutput(edge.SourcePort()) {
			return types.NewErrorf(types.ErrValidation,
				"edge %s -> %s uses undeclared output port %q on type %q",
				edge.Source, edge.Target, edge.SourcePort(), src.Type)
		}
		tgtDef, _ := registry.Definition(tgt.Type)
		if !hasInput(tgtDef, edge.TargetPort()) {
			return types.NewErrorf(types.ErrValidation,
				"edge %s -> %s uses undeclared input port %q on type %q",
				edge.Source, edge.Target, edge.TargetPort(), tgt.Type)
		}
		if wiredInputs[edge.Target] == nil {
			wiredInputs[edge.Target] = make(map[string]bool)
		}
		wiredInputs[edge.Target][edge.TargetPort()] = true
	}

	// Required input ports must be wired, except on the entry node which
	// consumes the initial input directly.
	for _, node := range g.Nodes {
		if node.ID == entry.ID {
			continue
		}
		def, _ := registry.Definition(node.Type)
		for _, port := range def.Inputs {
			if port.Required && !wiredInputs[node.ID][port.Name] {
				return types.NewErrorf(types.ErrValidation,
					"node %q required input port %q has no incoming edge", node.ID, port.Name)
			}
		}
	}

	return g.detectCycle()
}

func hasInput(def NodeDefinition, port string) bool {
	for _, in := range def.Inputs {
		if in.Name == port {
			return true
		}
	}
	return false
}

// detectCycle rejects static cycles with a GRAPH_CYCLE error via Kahn's
// algorithm over node adjacency (port labels are irrelevant here).
func (g *Graph) detectCycle() error {
	indegree := make(map[string]int, len(g.Nodes))
	adjacent := make(map[string][]string, len(g.Nodes))
	for _, node := range g.Nodes {
		indegree[node.ID] = 0
	}
	for _, edge := range g.Edges {
		adjacent[edge.Source] = append(adjacent[edge.Source], edge.Target)
		indegree[edge.Target]++
	}

	queue := make([]string, 0, len(g.Nodes))
	for _, node := range g.Nodes {
		if indegree[node.ID] == 0 {
			queue = append(queue, node.ID)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range adjacent[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(g.Nodes) {
		var stuck []string
		for id, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		return types.NewErrorf(types.ErrGraphCycle,
			"graph contains a cycle involving %s", fmt.Sprint(stuck))
	}
	return nil
}
