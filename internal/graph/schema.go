// Package graph implements the in-memory biological knowledge graph: typed
// nodes and edges, adjacency indexes, BFS path search, upstream-cause walks,
// mechanism validation, and pathway-based patient similarity.
package graph

// NodeType is a biological entity type represented as a graph node.
type NodeType string

const (
	NodeGene         NodeType = "Gene"
	NodeProtein      NodeType = "Protein"
	NodeCytokine     NodeType = "Cytokine"
	NodeReceptor     NodeType = "Receptor"
	NodeCellType     NodeType = "CellType"
	NodePathway      NodeType = "Pathway"
	NodeAdverseEvent NodeType = "AdverseEvent"
	NodeDrug         NodeType = "Drug"
	NodeBiomarker    NodeType = "Biomarker"
	NodeOrgan        NodeType = "Organ"
	NodeClinicalSign NodeType = "ClinicalSign"
)

// EdgeType is a relationship type between biological entities.
type EdgeType string

const (
	EdgeEncodes        EdgeType = "Encodes"
	EdgeTranscribes    EdgeType = "Transcribes"
	EdgeRegulates      EdgeType = "Regulates"
	EdgeActivates      EdgeType = "Activates"
	EdgeInhibits       EdgeType = "Inhibits"
	EdgeBinds          EdgeType = "Binds"
	EdgeSecretes       EdgeType = "Secretes"
	EdgeExpresses      EdgeType = "Expresses"
	EdgeParticipatesIn EdgeType = "ParticipatesIn"
	EdgeTriggers       EdgeType = "Triggers"
	EdgeUpstreamOf     EdgeType = "UpstreamOf"
	EdgeDownstreamOf   EdgeType = "DownstreamOf"
	EdgeIndicates      EdgeType = "Indicates"
	EdgeTreats         EdgeType = "Treats"
	EdgeTargets        EdgeType = "Targets"
	EdgeAffects        EdgeType = "Affects"
	EdgeManifestsAs    EdgeType = "ManifestsAs"
	EdgeCauses         EdgeType = "Causes"
	EdgeAmplifies      EdgeType = "Amplifies"
	EdgeProduces       EdgeType = "Produces"
)

// CausalEdgeTypes is the restricted set of edge types walked by
// GetUpstreamCauses.
var CausalEdgeTypes = map[EdgeType]bool{
	EdgeTriggers:   true,
	EdgeCauses:     true,
	EdgeActivates:  true,
	EdgeUpstreamOf: true,
	EdgeAmplifies:  true,
}

// TemporalPhase is the temporal phase of a cell-therapy adverse event.
type TemporalPhase string

const (
	PhasePreInfusion TemporalPhase = "pre_infusion"
	PhaseEarlyOnset  TemporalPhase = "early_onset"
	PhasePeak        TemporalPhase = "peak_phase"
	PhaseResolution  TemporalPhase = "resolution"
	PhaseLateOnset   TemporalPhase = "late_onset"
)

// SeverityGrade is the ASTCT consensus grading for CRS and ICANS
// (Lee et al., 2019). Carried as optional annotation on threshold tables;
// not required by any Graph invariant.
type SeverityGrade int

const (
	Grade0 SeverityGrade = iota
	Grade1
	Grade2
	Grade3
	Grade4
	Grade5 // fatal
)

// ReferenceRange is a typed normal-range annotation on a node, per
// SPEC_FULL.md's recommendation to supersede string-prefix property
// probing with a typed field. Populated from legacy normal_range_<unit>
// property keys at node-add time; the probe-order helpers below still
// exist for call sites that only have the property map.
type ReferenceRange struct {
	Low, High float64
	Unit      string
}

// unitProbeOrder is the fixed order in which normal_range_<unit> property
// keys are probed by the validator and scorer (§6 of SPEC_FULL.md).
var unitProbeOrder = []string{"pg_ml", "ng_ml", "mg_l", "mg_dl", "u_l", "percent"}

// Node is a node in the biological knowledge graph.
type Node struct {
	ID              string
	Type            NodeType
	Name            string
	Properties      map[string]any
	ReferenceRanges map[string]ReferenceRange
}

// PropertyRange returns the (low, high) pair stored under
// normal_range_<unit>, probing units in the fixed order defined by
// SPEC_FULL.md §6, restricted to the given allowed unit list (nil means
// all units). It favors the typed ReferenceRanges map when populated.
func (n *Node) PropertyRange(allowed ...string) (low, high float64, unit string, ok bool) {
	probe := unitProbeOrder
	if len(allowed) > 0 {
		probe = allowed
	}
	for _, u := range probe {
		if rr, found := n.ReferenceRanges[u]; found {
			return rr.Low, rr.High, u, true
		}
		if raw, found := n.Properties["normal_range_"+u]; found {
			if pair, ok := asPair(raw); ok {
				return pair[0], pair[1], u, true
			}
		}
	}
	return 0, 0, "", false
}

func asPair(v any) ([2]float64, bool) {
	switch t := v.(type) {
	case [2]float64:
		return t, true
	case []float64:
		if len(t) == 2 {
			return [2]float64{t[0], t[1]}, true
		}
	}
	return [2]float64{}, false
}

// deriveReferenceRanges scans Properties for normal_range_<unit> keys and
// populates the typed ReferenceRanges map, leaving Properties untouched.
func deriveReferenceRanges(n *Node) {
	if n.Properties == nil {
		return
	}
	if n.ReferenceRanges == nil {
		n.ReferenceRanges = make(map[string]ReferenceRange)
	}
	for _, unit := range unitProbeOrder {
		raw, ok := n.Properties["normal_range_"+unit]
		if !ok {
			continue
		}
		if pair, ok := asPair(raw); ok {
			n.ReferenceRanges[unit] = ReferenceRange{Low: pair[0], High: pair[1], Unit: unit}
		}
	}
}

// Edge is a directed edge in the biological knowledge graph.
type Edge struct {
	Source     string
	Target     string
	Type       EdgeType
	Weight     float64
	Properties map[string]any
}

// PathwayDefinition is a named biological pathway with its constituent
// nodes and edges, ingestible via Graph.LoadPathway.
type PathwayDefinition struct {
	PathwayID      string
	Name           string
	Description    string
	Nodes          []Node
	Edges          []Edge
	TemporalPhase  TemporalPhase
	AdverseEvents  []string
}
