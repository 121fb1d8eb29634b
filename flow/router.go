package flow

// Router decides which output port an envelope leaves a node on, and
// therefore which downstream edges fire. Exactly one declared port is
// selected per execution, never zero, never two.
type Router struct{}

// NewRouter creates a branch router.
func NewRouter() *Router {
	return &Router{}
}

// Select resolves the output port for a node result against the node's
// declared outputs:
//
//   - an error envelope always takes the error port;
//   - an explicit Meta.OutputPort wins when the definition declares it;
//   - otherwise the definition's first non-error output is the default.
func (r *Router) Select(def NodeDefinition, env *Envelope) string {
	if env.IsError() {
		return PortError
	}
	if port := env.Meta.OutputPort; port != "" && def.HasOutput(port) {
		return port
	}
	for _, out := range def.Outputs {
		if out != PortError {
			return out
		}
	}
	return PortMain
}

// Route partitions a node's outgoing edges into fired and dead sets for the
// selected port. Edges keep their declaration order.
func (r *Router) Route(def NodeDefinition, env *Envelope, outgoing []GraphEdge) (fired, dead []GraphEdge) {
	selected := r.Select(def, env)
	for _, edge := range outgoing {
		if edge.SourcePort() == selected {
			fired = append(fired, edge)
		} else {
			dead = append(dead, edge)
		}
	}
	return fired, dead
}
