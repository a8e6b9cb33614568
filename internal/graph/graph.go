package graph

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/psp-engine/psp/internal/domain"
)

// PathStep is one hop of a discovered path: source node, the edge type
// traversed, and target node.
type PathStep struct {
	Source string
	Type   EdgeType
	Target string
}

// PathQueryResult is the result of FindPaths.
type PathQueryResult struct {
	Paths         [][]PathStep
	MinHops       int
	MaxWeightPath []PathStep
}

// WeightedNode pairs a node with an accumulated causal weight, as returned
// by GetUpstreamCauses.
type WeightedNode struct {
	Node   *Node
	Weight float64
}

// SimilarityResult is the result of ComputePatientSimilarity.
type SimilarityResult struct {
	Score           float64
	SharedPathways  []string
	UniqueToQuery   []string
}

type neighborEdge struct {
	edge *Edge
	node *Node
}

// Graph is an in-memory typed directed graph of biological entities. It is
// written once during initialization (seed pathway loads) and then read
// many times concurrently; the mutex exists to support late dynamic loads
// without breaking that documented lock-free read intent.
type Graph struct {
	mu             sync.RWMutex
	nodes          map[string]*Node
	edges          []*Edge
	adj            map[string][]neighborEdge // outgoing: source -> (edge, target node)
	rev            map[string][]neighborEdge // incoming: target -> (edge, source node)
	byType         map[NodeType][]string
	pathwayMembers map[string]map[string]bool // pathway node id -> member node ids (via ParticipatesIn)
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:          make(map[string]*Node),
		adj:            make(map[string][]neighborEdge),
		rev:            make(map[string][]neighborEdge),
		byType:         make(map[NodeType][]string),
		pathwayMembers: make(map[string]map[string]bool),
	}
}

// AddNode adds a node, idempotent by id: re-adding the same id is a no-op.
func (g *Graph) AddNode(n Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNodeLocked(n)
}

func (g *Graph) addNodeLocked(n Node) *Node {
	if existing, ok := g.nodes[n.ID]; ok {
		return existing
	}
	cp := n
	deriveReferenceRanges(&cp)
	g.nodes[n.ID] = &cp
	g.byType[n.Type] = append(g.byType[n.Type], n.ID)
	return &cp
}

// AddEdge adds a directed edge. Returns ErrUnknownNode if either endpoint
// is missing.
func (g *Graph) AddEdge(e Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addEdgeLocked(e)
}

func (g *Graph) addEdgeLocked(e Edge) error {
	src, ok := g.nodes[e.Source]
	if !ok {
		return fmt.Errorf("edge source %q: %w", e.Source, domain.ErrUnknownNode)
	}
	tgt, ok := g.nodes[e.Target]
	if !ok {
		return fmt.Errorf("edge target %q: %w", e.Target, domain.ErrUnknownNode)
	}
	cp := e
	g.edges = append(g.edges, &cp)
	g.adj[e.Source] = append(g.adj[e.Source], neighborEdge{edge: &cp, node: tgt})
	g.rev[e.Target] = append(g.rev[e.Target], neighborEdge{edge: &cp, node: src})

	if e.Type == EdgeParticipatesIn {
		if g.pathwayMembers[e.Target] == nil {
			g.pathwayMembers[e.Target] = make(map[string]bool)
		}
		g.pathwayMembers[e.Target][e.Source] = true
	}
	return nil
}

// LoadPathway adds a pathway's nodes then edges. An edge whose endpoint is
// still missing after all nodes are added is skipped (MissingPathwayNode),
// not fatal. Returns the number of edges actually added.
func (g *Graph) LoadPathway(p PathwayDefinition) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, n := range p.Nodes {
		g.addNodeLocked(n)
	}

	added := 0
	for _, e := range p.Edges {
		if err := g.addEdgeLocked(e); err != nil {
			continue // MissingPathwayNode: logged by caller via Summary diffing if desired
		}
		added++
	}
	return added
}

// GetNode returns the node with the given id, if present.
func (g *Graph) GetNode(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// GetNodesByType returns all nodes of the given type.
func (g *Graph) GetNodesByType(t NodeType) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := g.byType[t]
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.nodes[id])
	}
	return out
}

// Direction selects which adjacency to walk in GetNeighbors.
type Direction string

const (
	DirOut  Direction = "out"
	DirIn   Direction = "in"
	DirBoth Direction = "both"
)

// NeighborResult pairs the traversed edge with the neighbor node.
type NeighborResult struct {
	Edge   *Edge
	Node   *Node
}

// GetNeighbors returns neighbors of id, optionally restricted to the given
// edge types, in the requested direction. Unknown ids return an empty
// slice rather than an error.
func (g *Graph) GetNeighbors(id string, edgeTypes map[EdgeType]bool, direction Direction) []NeighborResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []NeighborResult
	match := func(ne neighborEdge) {
		if edgeTypes != nil && !edgeTypes[ne.edge.Type] {
			return
		}
		out = append(out, NeighborResult{Edge: ne.edge, Node: ne.node})
	}

	if direction == DirOut || direction == DirBoth {
		for _, ne := range g.adj[id] {
			match(ne)
		}
	}
	if direction == DirIn || direction == DirBoth {
		for _, ne := range g.rev[id] {
			match(ne)
		}
	}
	return out
}

// FindPaths performs a BFS over simple paths (no repeated node) from src to
// dst of length at most maxHops edges, optionally restricted to edgeTypes.
// MaxWeightPath is the path maximizing the sum of edge weights, ties broken
// by lexicographically smallest sequence of node ids.
func (g *Graph) FindPaths(src, dst string, maxHops int, edgeTypes map[EdgeType]bool) PathQueryResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[src]; !ok {
		return PathQueryResult{}
	}
	if _, ok := g.nodes[dst]; !ok {
		return PathQueryResult{}
	}

	type frame struct {
		node    string
		path    []PathStep
		visited map[string]bool
	}

	var results [][]PathStep
	queue := []frame{{node: src, path: nil, visited: map[string]bool{src: true}}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.node == dst && len(cur.path) > 0 {
			results = append(results, cur.path)
			continue
		}
		if len(cur.path) >= maxHops {
			continue
		}
		for _, ne := range g.adj[cur.node] {
			if edgeTypes != nil && !edgeTypes[ne.edge.Type] {
				continue
			}
			if cur.visited[ne.node.ID] {
				continue
			}
			nextVisited := make(map[string]bool, len(cur.visited)+1)
			for k := range cur.visited {
				nextVisited[k] = true
			}
			nextVisited[ne.node.ID] = true
			nextPath := make([]PathStep, len(cur.path), len(cur.path)+1)
			copy(nextPath, cur.path)
			nextPath = append(nextPath, PathStep{Source: cur.node, Type: ne.edge.Type, Target: ne.node.ID})
			queue = append(queue, frame{node: ne.node.ID, path: nextPath, visited: nextVisited})
		}
	}

	if len(results) == 0 {
		return PathQueryResult{}
	}

	minHops := len(results[0])
	for _, p := range results[1:] {
		if len(p) < minHops {
			minHops = len(p)
		}
	}

	best := results[0]
	bestWeight := g.pathWeightLocked(best)
	for _, p := range results[1:] {
		w := g.pathWeightLocked(p)
		if w > bestWeight || (w == bestWeight && lexLess(nodeSeq(p), nodeSeq(best))) {
			best = p
			bestWeight = w
		}
	}

	return PathQueryResult{Paths: results, MinHops: minHops, MaxWeightPath: best}
}

func (g *Graph) pathWeightLocked(path []PathStep) float64 {
	var total float64
	for _, step := range path {
		for _, ne := range g.adj[step.Source] {
			if ne.node.ID == step.Target && ne.edge.Type == step.Type {
				total += ne.edge.Weight
				break
			}
		}
	}
	return total
}

func nodeSeq(path []PathStep) []string {
	seq := make([]string, 0, len(path)+1)
	if len(path) > 0 {
		seq = append(seq, path[0].Source)
	}
	for _, s := range path {
		seq = append(seq, s.Target)
	}
	return seq
}

func lexLess(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// GetUpstreamCauses walks reverse adjacency restricted to CausalEdgeTypes
// from ae, accumulating the maximum multiplicative edge-weight product
// along any discovered path to each upstream node. Cycles are broken by
// first-visit. Results are sorted by weight descending.
func (g *Graph) GetUpstreamCauses(ae string, maxDepth int) []WeightedNode {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[ae]; !ok {
		return nil
	}

	type item struct {
		id     string
		weight float64
		depth  int
	}

	best := make(map[string]float64)
	visited := make(map[string]bool)
	queue := []item{{id: ae, weight: 1.0, depth: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= maxDepth {
			continue
		}
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true

		for _, ne := range g.rev[cur.id] {
			if !CausalEdgeTypes[ne.edge.Type] {
				continue
			}
			sourceID := ne.edge.Source
			newWeight := cur.weight * ne.edge.Weight
			if newWeight > best[sourceID] {
				best[sourceID] = newWeight
			}
			queue = append(queue, item{id: sourceID, weight: newWeight, depth: cur.depth + 1})
		}
	}

	out := make([]WeightedNode, 0, len(best))
	for id, w := range best {
		if n, ok := g.nodes[id]; ok {
			out = append(out, WeightedNode{Node: n, Weight: w})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Node.ID < out[j].Node.ID
	})
	return out
}

// ValidateMechanism reports whether a mechanistic path exists from cause to
// effect. When requiredIntermediates is non-empty, at least one discovered
// path must contain every listed node id.
func (g *Graph) ValidateMechanism(cause, effect string, requiredIntermediates []string) (bool, string) {
	result := g.FindPaths(cause, effect, 6, nil)
	if len(result.Paths) == 0 {
		return false, fmt.Sprintf("no mechanistic path found from %s to %s", cause, effect)
	}
	if len(requiredIntermediates) == 0 {
		return true, fmt.Sprintf("found %d path(s) from %s to %s", len(result.Paths), cause, effect)
	}
	for _, path := range result.Paths {
		members := make(map[string]bool, len(path)+1)
		if len(path) > 0 {
			members[path[0].Source] = true
		}
		for _, s := range path {
			members[s.Target] = true
		}
		allPresent := true
		for _, req := range requiredIntermediates {
			if !members[req] {
				allPresent = false
				break
			}
		}
		if allPresent {
			return true, fmt.Sprintf("found path through required intermediates %v", requiredIntermediates)
		}
	}
	return false, fmt.Sprintf("no path from %s to %s passes through all required intermediates", cause, effect)
}

// ComputePatientSimilarity maps each patient's elevated cytokine/biomarker
// nodes (value above thresholdMult times the upper reference bound) to
// pathways via the ParticipatesIn relation, then computes Jaccard
// similarity over the two pathway sets.
func (g *Graph) ComputePatientSimilarity(a, b map[string]float64, thresholdMult float64) SimilarityResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	pathwaysFor := func(values map[string]float64) map[string]bool {
		out := make(map[string]bool)
		for id, value := range values {
			n, ok := g.nodes[id]
			if !ok {
				continue
			}
			_, high, _, ok := n.PropertyRange()
			if !ok || high <= 0 || value <= high*thresholdMult {
				continue
			}
			for pathwayID, members := range g.pathwayMembers {
				if members[id] {
					out[pathwayID] = true
				}
			}
		}
		return out
	}

	pa := pathwaysFor(a)
	pb := pathwaysFor(b)

	union := make(map[string]bool)
	intersection := make(map[string]bool)
	for p := range pa {
		union[p] = true
		if pb[p] {
			intersection[p] = true
		}
	}
	for p := range pb {
		union[p] = true
	}

	var score float64
	if len(union) > 0 {
		score = float64(len(intersection)) / float64(len(union))
	}

	shared := make([]string, 0, len(intersection))
	for p := range intersection {
		shared = append(shared, p)
	}
	sort.Strings(shared)

	unique := make([]string, 0)
	for p := range pa {
		if !pb[p] {
			unique = append(unique, p)
		}
	}
	sort.Strings(unique)

	return SimilarityResult{Score: score, SharedPathways: shared, UniqueToQuery: unique}
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// Summary returns node counts by type, for startup diagnostics/health.
func (g *Graph) Summary() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]int, len(g.byType))
	for t, ids := range g.byType {
		out[string(t)] = len(ids)
	}
	return out
}

// FoldChange returns value / upper bound of the node's reference range,
// probing the given allowed units in order (nil means all units). ok is
// false if the node or a usable range is not found, or the upper bound is
// non-positive.
func FoldChange(n *Node, value float64, allowed ...string) (fold float64, ok bool) {
	if n == nil {
		return 0, false
	}
	_, high, _, found := n.PropertyRange(allowed...)
	if !found || high <= 0 {
		return 0, false
	}
	return value / high, true
}

// Log2FoldContribution is the pathway-domain contribution helper from
// SPEC_FULL.md §4.7: weight * min(1, log2(max(1, fold))/5).
func Log2FoldContribution(weight, fold float64) float64 {
	if fold < 1 {
		fold = 1
	}
	return weight * math.Min(1, math.Log2(fold)/5.0)
}
