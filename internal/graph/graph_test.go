package graph

import (
	"errors"
	"testing"

	"github.com/psp-engine/psp/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSmallGraph() *Graph {
	g := New()
	g.AddNode(Node{ID: "il6", Type: NodeCytokine, Name: "IL-6", Properties: map[string]any{
		"normal_range_pg_ml": []float64{0, 7},
	}})
	g.AddNode(Node{ID: "il6r", Type: NodeReceptor, Name: "IL-6 Receptor"})
	g.AddNode(Node{ID: "jak_stat", Type: NodePathway, Name: "JAK-STAT"})
	g.AddNode(Node{ID: "crs", Type: NodeAdverseEvent, Name: "CRS"})
	g.AddNode(Node{ID: "fever", Type: NodeClinicalSign, Name: "Fever"})

	_ = g.AddEdge(Edge{Source: "il6", Target: "il6r", Type: EdgeBinds, Weight: 0.9})
	_ = g.AddEdge(Edge{Source: "il6r", Target: "jak_stat", Type: EdgeActivates, Weight: 0.8})
	_ = g.AddEdge(Edge{Source: "jak_stat", Target: "crs", Type: EdgeTriggers, Weight: 0.7})
	_ = g.AddEdge(Edge{Source: "crs", Target: "fever", Type: EdgeManifestsAs, Weight: 1.0})
	_ = g.AddEdge(Edge{Source: "il6", Target: "jak_stat", Type: EdgeParticipatesIn, Weight: 1.0})
	return g
}

func TestAddNodeIdempotent(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "a", Type: NodeGene, Name: "first"})
	g.AddNode(Node{ID: "a", Type: NodeGene, Name: "second"})
	assert.Equal(t, 1, g.NodeCount())
	n, ok := g.GetNode("a")
	require.True(t, ok)
	assert.Equal(t, "first", n.Name)
}

func TestAddEdgeUnknownNode(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "a", Type: NodeGene})
	err := g.AddEdge(Edge{Source: "a", Target: "missing", Type: EdgeActivates, Weight: 1.0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnknownNode))
}

func TestFindPathsMinHopsAndMaxWeight(t *testing.T) {
	g := buildSmallGraph()
	result := g.FindPaths("il6", "crs", 5, nil)
	require.NotEmpty(t, result.Paths)
	assert.Equal(t, 2, result.MinHops)
	require.Len(t, result.MaxWeightPath, 3)
	assert.Equal(t, "il6", result.MaxWeightPath[0].Source)
	assert.Equal(t, "crs", result.MaxWeightPath[len(result.MaxWeightPath)-1].Target)
}

func TestFindPathsRestrictedByEdgeType(t *testing.T) {
	g := buildSmallGraph()
	result := g.FindPaths("il6", "jak_stat", 3, map[EdgeType]bool{EdgeParticipatesIn: true})
	require.Len(t, result.Paths, 1)
	assert.Equal(t, EdgeParticipatesIn, result.Paths[0][0].Type)
}

func TestFindPathsUnknownEndpoint(t *testing.T) {
	g := buildSmallGraph()
	result := g.FindPaths("il6", "nonexistent", 5, nil)
	assert.Empty(t, result.Paths)
}

func TestGetUpstreamCauses(t *testing.T) {
	g := buildSmallGraph()
	upstream := g.GetUpstreamCauses("crs", 5)
	ids := make(map[string]float64)
	for _, w := range upstream {
		ids[w.Node.ID] = w.Weight
	}
	assert.Contains(t, ids, "jak_stat")
	assert.InDelta(t, 0.7, ids["jak_stat"], 1e-9)
	assert.Contains(t, ids, "il6r", "il6r activates jak_stat, and Activates is a causal edge type")
	assert.InDelta(t, 0.56, ids["il6r"], 1e-9)
	assert.NotContains(t, ids, "il6", "il6 reaches the chain only via Binds and ParticipatesIn, neither of which is a causal edge type")
}

func TestGetUpstreamCausesRespectsCausalEdgeTypesOnly(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "a", Type: NodeGene})
	g.AddNode(Node{ID: "b", Type: NodeProtein})
	_ = g.AddEdge(Edge{Source: "a", Target: "b", Type: EdgeEncodes, Weight: 1.0})
	upstream := g.GetUpstreamCauses("b", 5)
	assert.Empty(t, upstream, "Encodes is not a causal edge type")
}

func TestValidateMechanismFound(t *testing.T) {
	g := buildSmallGraph()
	ok, reason := g.ValidateMechanism("il6", "crs", nil)
	assert.True(t, ok)
	assert.NotEmpty(t, reason)
}

func TestValidateMechanismRequiredIntermediate(t *testing.T) {
	g := buildSmallGraph()
	ok, _ := g.ValidateMechanism("il6", "crs", []string{"jak_stat"})
	assert.True(t, ok)

	ok, _ = g.ValidateMechanism("il6", "crs", []string{"nonexistent_node"})
	assert.False(t, ok)
}

func TestValidateMechanismNotFound(t *testing.T) {
	g := buildSmallGraph()
	ok, reason := g.ValidateMechanism("fever", "il6", nil)
	assert.False(t, ok)
	assert.NotEmpty(t, reason)
}

func TestLoadPathwaySkipsBadEdges(t *testing.T) {
	g := New()
	p := PathwayDefinition{
		PathwayID: "test_pathway",
		Nodes: []Node{
			{ID: "x", Type: NodeGene},
			{ID: "y", Type: NodeProtein},
		},
		Edges: []Edge{
			{Source: "x", Target: "y", Type: EdgeEncodes, Weight: 1.0},
			{Source: "x", Target: "missing", Type: EdgeEncodes, Weight: 1.0},
		},
	}
	added := g.LoadPathway(p)
	assert.Equal(t, 1, added)
	assert.Equal(t, 2, g.NodeCount())
}

func TestComputePatientSimilarity(t *testing.T) {
	g := buildSmallGraph()
	a := map[string]float64{"il6": 50.0}
	b := map[string]float64{"il6": 60.0}
	result := g.ComputePatientSimilarity(a, b, 1.5)
	assert.Equal(t, 1.0, result.Score)
	assert.Contains(t, result.SharedPathways, "jak_stat")
}

func TestComputePatientSimilarityNoOverlap(t *testing.T) {
	g := buildSmallGraph()
	a := map[string]float64{"il6": 50.0}
	b := map[string]float64{"il6": 3.0} // below threshold, not elevated
	result := g.ComputePatientSimilarity(a, b, 1.5)
	assert.Equal(t, 0.0, result.Score)
}

func TestGetNeighborsDirection(t *testing.T) {
	g := buildSmallGraph()
	out := g.GetNeighbors("jak_stat", nil, DirOut)
	in := g.GetNeighbors("jak_stat", nil, DirIn)
	assert.Len(t, out, 1)
	assert.Len(t, in, 2) // il6r activates it, il6 participates in it
}

func TestFoldChange(t *testing.T) {
	g := buildSmallGraph()
	n, _ := g.GetNode("il6")
	fold, ok := FoldChange(n, 70.0)
	require.True(t, ok)
	assert.InDelta(t, 10.0, fold, 1e-9)
}

func TestFoldChangeNoRange(t *testing.T) {
	g := buildSmallGraph()
	n, _ := g.GetNode("il6r")
	_, ok := FoldChange(n, 10.0)
	assert.False(t, ok)
}

func TestSummary(t *testing.T) {
	g := buildSmallGraph()
	s := g.Summary()
	assert.Equal(t, 1, s[string(NodeCytokine)])
	assert.Equal(t, 1, s[string(NodeAdverseEvent)])
}
