package flow

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/flowgrid/types"
)

// Graph serialization is the wire contract with the canvas editor: the UI
// exports nodes (id/type/label/position/config) and labeled edges, the
// engine imports them verbatim. Envelope serialization is covered by the
// struct tags in envelope.go.

// ExportJSON renders the graph as indented JSON.
func (g *Graph) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(g, "", "  ")
}

// ImportJSON parses a graph from canvas JSON.
func ImportJSON(data []byte) (*Graph, error) {
	var graph Graph
	if err := json.Unmarshal(data, &graph); err != nil {
		return nil, types.NewError(types.ErrValidation, "invalid graph JSON").WithCause(err)
	}
	return &graph, nil
}

// ExportYAML renders the graph as YAML.
func (g *Graph) ExportYAML() ([]byte, error) {
	return yaml.Marshal(g)
}

// ImportYAML parses a graph from YAML.
func ImportYAML(data []byte) (*Graph, error) {
	var graph Graph
	if err := yaml.Unmarshal(data, &graph); err != nil {
		return nil, types.NewError(types.ErrValidation, "invalid graph YAML").WithCause(err)
	}
	return &graph, nil
}
