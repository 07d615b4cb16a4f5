package ir

import (
	"errors"
	"fmt"
)

// NodeType selects what kind of thing a graph Node is.
type NodeType int

const (
	NodeMaster NodeType = iota
	NodeTrackerChannel
	NodeMachine
	NodePassthrough
)

// GainUnity is the fixed-point value a Connection's Gain uses to mean
// "unchanged" (1.0 in 16.16). BMX's wire format uses 0x4000 for unity
// (14.2 fixed point); we normalize every format's gain into this 16.16
// scale at load time so the graph mixer has one representation.
const GainUnity int32 = 1 << 16

// Node is one vertex in the AudioGraph.
type Node struct {
	Type NodeType

	// TrackerChannelIndex is valid when Type == NodeTrackerChannel.
	TrackerChannelIndex int
	// MachineName is valid when Type == NodeMachine or NodePassthrough; it
	// selects which machine.Machine implementation renders this node
	// (unrecognized names fall back to a passthrough at load time).
	MachineName string

	Params  map[string]int32
	Bypass  bool
	NumIns  int
	NumOuts int
}

// Connection is a directed, gain-weighted edge between two graph nodes.
type Connection struct {
	From, To         NodeKey
	FromChannel      int
	ToChannel        int
	Gain             int32 // 16.16 fixed-point linear multiplier; GainUnity = unchanged
}

// AudioGraph is the node graph that produces the engine's stereo output.
// Exactly one node has Type == NodeMaster; the graph must be acyclic and
// every node must reach Master.
type AudioGraph struct {
	nodes       *SlotMap[Node]
	Connections []Connection
	Master      NodeKey
}

// NewAudioGraph returns an empty graph (no nodes, no Master yet).
func NewAudioGraph() *AudioGraph {
	return &AudioGraph{nodes: NewSlotMap[Node]()}
}

// AddNode inserts a node and returns its key. If n.Type == NodeMaster and a
// Master already exists, AddNode returns an error (spec.md §3: exactly one
// Master node).
func (g *AudioGraph) AddNode(n Node) (NodeKey, error) {
	if n.Type == NodeMaster && g.Master.Valid() {
		return NodeKey{}, errors.New("ir: audio graph already has a Master node")
	}
	k := g.nodes.Insert(n)
	if n.Type == NodeMaster {
		g.Master = k
	}
	return k, nil
}

// Node returns the node for k, or nil if k does not resolve.
func (g *AudioGraph) Node(k NodeKey) *Node { return g.nodes.GetPtr(k) }

// Connect adds a directed edge; it validates that both endpoints resolve.
func (g *AudioGraph) Connect(c Connection) error {
	if g.nodes.GetPtr(c.From) == nil {
		return fmt.Errorf("ir: connection source node does not resolve")
	}
	if g.nodes.GetPtr(c.To) == nil {
		return fmt.Errorf("ir: connection destination node does not resolve")
	}
	g.Connections = append(g.Connections, c)
	return nil
}

// NodeKeys returns every node key currently in the graph, in SlotMap
// slot-index order (a reused slot keeps its original position).
func (g *AudioGraph) NodeKeys() []NodeKey {
	keys := make([]NodeKey, 0, g.nodes.Len())
	for i := range g.nodes.slots {
		if g.nodes.slots[i].occupied {
			keys = append(keys, Key{index: i, generation: g.nodes.slots[i].generation})
		}
	}
	return keys
}

// Validate checks the graph invariants from spec.md §3: Master exists,
// every connection endpoint resolves, the graph is acyclic, and every node
// is able to reach Master. Returns the first violation found.
func (g *AudioGraph) Validate() error {
	if !g.Master.Valid() || g.nodes.GetPtr(g.Master) == nil {
		return errors.New("ir: audio graph has no Master node")
	}
	for _, c := range g.Connections {
		if g.nodes.GetPtr(c.From) == nil || g.nodes.GetPtr(c.To) == nil {
			return errors.New("ir: audio graph connection references a missing node")
		}
	}
	if _, err := TopoOrder(g); err != nil {
		return err
	}
	reached := map[NodeKey]bool{g.Master: true}
	for changed := true; changed; {
		changed = false
		for _, c := range g.Connections {
			if reached[c.To] && !reached[c.From] {
				reached[c.From] = true
				changed = true
			}
		}
	}
	if len(reached) != g.nodes.Len() {
		return errors.New("ir: audio graph has a node that cannot reach Master")
	}
	return nil
}

// TopoOrder returns the graph's nodes in a topological order where every
// connection's source precedes its destination and Master appears last.
// Returns an error if the graph contains a cycle.
func TopoOrder(g *AudioGraph) ([]NodeKey, error) {
	keys := g.NodeKeys()
	indexOf := make(map[NodeKey]int, len(keys))
	for i, k := range keys {
		indexOf[k] = i
	}
	adjacency := make([][]int, len(keys))
	inDegree := make([]int, len(keys))
	for _, c := range g.Connections {
		fi, ok1 := indexOf[c.From]
		ti, ok2 := indexOf[c.To]
		if !ok1 || !ok2 {
			continue
		}
		adjacency[fi] = append(adjacency[fi], ti)
		inDegree[ti]++
	}

	// Kahn's algorithm, seeded deterministically by node insertion order
	// (SlotMap slot index) rather than map iteration, so scheduling ties are
	// resolved consistently across runs (spec.md's determinism requirement).
	queue := make([]int, 0, len(keys))
	for i, d := range inDegree {
		if d == 0 && keys[i] != g.Master {
			queue = append(queue, i)
		}
	}
	order := make([]NodeKey, 0, len(keys))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		order = append(order, keys[i])
		for _, j := range adjacency[i] {
			inDegree[j]--
			if inDegree[j] == 0 && keys[j] != g.Master {
				queue = append(queue, j)
			}
		}
	}
	if len(order)+1 != len(keys) {
		return nil, errors.New("ir: audio graph contains a cycle or cannot all reach Master")
	}
	order = append(order, g.Master)
	return order, nil
}
