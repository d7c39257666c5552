// Package kinetic implements the kinetic state machine (spec §4.D): a
// fixed DAG of movement nodes with energy gates, minimum-dwell locks,
// and probabilistic transitions, plus the frame-selection rules that
// run on every detected beat.
package kinetic

// NodeID names one of the 14 fixed movement nodes.
type NodeID string

const (
	NodeIdle         NodeID = "idle"
	NodeGrooveLeft   NodeID = "groove_left"
	NodeGrooveRight  NodeID = "groove_right"
	NodeGrooveCenter NodeID = "groove_center"
	NodeCrouch       NodeID = "crouch"
	NodeJump         NodeID = "jump"
	NodeVogueLeft    NodeID = "vogue_left"
	NodeVogueRight   NodeID = "vogue_right"
	NodeCloseup      NodeID = "closeup"
	NodeHands        NodeID = "hands"
	NodeFeet         NodeID = "feet"
	NodeMandala      NodeID = "mandala"
	NodeImpact       NodeID = "impact"
	NodeAcrobatic    NodeID = "acrobatic"
)

// Node is one vertex of the kinetic graph (spec §3).
type Node struct {
	ID             NodeID
	EnergyRequired float64
	ExitThreshold  float64
	MinDurationMs  float64
	Neighbors      []NodeID
	MechanicalFx   []string
}

// Graph is the fixed movement-node DAG. It is built once and treated as
// read-only thereafter.
type Graph struct {
	nodes map[NodeID]*Node
	order []NodeID
}

// NewGraph builds the default 14-node graph described in spec §3.
// Every outgoing neighbor exists in the graph, and exit_threshold never
// falls below energy_required, per the graph's stability invariant: a
// node always needs at least as much energy to leave as it needed to
// enter, so a dancer can't be pushed back out the moment they arrive.
func NewGraph() *Graph {
	defs := []*Node{
		{ID: NodeIdle, EnergyRequired: 0.0, ExitThreshold: 0.2, MinDurationMs: 0,
			Neighbors: []NodeID{NodeGrooveCenter, NodeGrooveLeft, NodeGrooveRight}},
		{ID: NodeGrooveCenter, EnergyRequired: 0.15, ExitThreshold: 0.3, MinDurationMs: 0,
			Neighbors: []NodeID{NodeGrooveLeft, NodeGrooveRight, NodeIdle, NodeCrouch}},
		{ID: NodeGrooveLeft, EnergyRequired: 0.15, ExitThreshold: 0.3, MinDurationMs: 0,
			Neighbors: []NodeID{NodeGrooveCenter, NodeGrooveRight, NodeVogueLeft}},
		{ID: NodeGrooveRight, EnergyRequired: 0.15, ExitThreshold: 0.3, MinDurationMs: 0,
			Neighbors: []NodeID{NodeGrooveCenter, NodeGrooveLeft, NodeVogueRight}},
		{ID: NodeCrouch, EnergyRequired: 0.25, ExitThreshold: 0.4, MinDurationMs: 300,
			Neighbors: []NodeID{NodeJump, NodeGrooveCenter}},
		{ID: NodeJump, EnergyRequired: 0.55, ExitThreshold: 0.7, MinDurationMs: 500,
			Neighbors: []NodeID{NodeImpact, NodeGrooveCenter}, MechanicalFx: []string{"bounce"}},
		{ID: NodeVogueLeft, EnergyRequired: 0.3, ExitThreshold: 0.45, MinDurationMs: 600,
			Neighbors: []NodeID{NodeCloseup, NodeGrooveLeft}},
		{ID: NodeVogueRight, EnergyRequired: 0.3, ExitThreshold: 0.45, MinDurationMs: 600,
			Neighbors: []NodeID{NodeCloseup, NodeGrooveRight}},
		{ID: NodeCloseup, EnergyRequired: 0.2, ExitThreshold: 0.35, MinDurationMs: 600,
			Neighbors: []NodeID{NodeGrooveCenter, NodeHands}},
		{ID: NodeHands, EnergyRequired: 0.4, ExitThreshold: 0.55, MinDurationMs: 500,
			Neighbors: []NodeID{NodeMandala, NodeGrooveCenter}},
		{ID: NodeFeet, EnergyRequired: 0.45, ExitThreshold: 0.6, MinDurationMs: 500,
			Neighbors: []NodeID{NodeGrooveLeft, NodeGrooveRight}},
		{ID: NodeMandala, EnergyRequired: 0.5, ExitThreshold: 0.65, MinDurationMs: 800,
			Neighbors: []NodeID{NodeHands, NodeImpact}},
		{ID: NodeImpact, EnergyRequired: 0.7, ExitThreshold: 0.85, MinDurationMs: 500,
			Neighbors: []NodeID{NodeAcrobatic, NodeGrooveCenter}, MechanicalFx: []string{"flash"}},
		{ID: NodeAcrobatic, EnergyRequired: 0.8, ExitThreshold: 0.9, MinDurationMs: 800,
			Neighbors: []NodeID{NodeGrooveCenter, NodeJump}, MechanicalFx: []string{"flash", "bounce"}},
	}

	g := &Graph{nodes: make(map[NodeID]*Node, len(defs))}
	for _, n := range defs {
		g.nodes[n.ID] = n
		g.order = append(g.order, n.ID)
	}
	return g
}

// NewGraphFromNodes builds a graph from a caller-supplied node set (an
// operator override loaded from YAML, typically) instead of the
// built-in 14-node default. It validates the result before returning
// it so a malformed override file fails at load time, not mid-show.
func NewGraphFromNodes(defs []*Node) (*Graph, error) {
	g := &Graph{nodes: make(map[NodeID]*Node, len(defs))}
	for _, n := range defs {
		g.nodes[n.ID] = n
		g.order = append(g.order, n.ID)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Validate checks the graph's structural invariants: every outgoing
// neighbor must exist, and exit_threshold must never fall below
// energy_required (spec §3).
func (g *Graph) Validate() error {
	for _, id := range g.order {
		n := g.nodes[id]
		if n.ExitThreshold < n.EnergyRequired {
			return &InvariantError{Node: n.ID, Reason: "exit_threshold below energy_required"}
		}
		for _, nb := range n.Neighbors {
			if _, ok := g.nodes[nb]; !ok {
				return &InvariantError{Node: n.ID, Reason: "neighbor " + string(nb) + " not in graph"}
			}
		}
	}
	return nil
}

// InvariantError reports a violated structural invariant of the graph.
type InvariantError struct {
	Node   NodeID
	Reason string
}

func (e *InvariantError) Error() string {
	return "kinetic: node " + string(e.Node) + ": " + e.Reason
}
