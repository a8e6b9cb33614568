// Package hypothesis generates mechanistic safety hypotheses from the
// knowledge graph and foundation model predictions, identifying the
// specific biological mechanisms (signaling cascades, cytokine
// amplification loops, pathway cross-talk) that plausibly drive a
// predicted adverse event.
package hypothesis

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/psp-engine/psp/internal/graph"
)

// EvidenceLevel is the strength classification for a hypothesis.
type EvidenceLevel string

const (
	Strong      EvidenceLevel = "strong"      // KG pathway + biomarker + model support
	Moderate    EvidenceLevel = "moderate"    // KG pathway + one of biomarker/model support
	Weak        EvidenceLevel = "weak"        // KG pathway alone
	Speculative EvidenceLevel = "speculative" // neither biomarker nor model support
)

var evidenceMultiplier = map[EvidenceLevel]float64{
	Strong:      1.0,
	Moderate:    0.7,
	Weak:        0.4,
	Speculative: 0.2,
}

// MechanisticHypothesis explains a predicted adverse event with a specific
// biological pathway or mechanism believed to contribute to a patient's
// risk.
type MechanisticHypothesis struct {
	HypothesisID            string        `json:"hypothesis_id"`
	PatientID               string        `json:"patient_id"`
	AdverseEvent            string        `json:"adverse_event"`
	Title                   string        `json:"title"`
	MechanismChain          []string      `json:"mechanism_chain"`
	MechanismDescription    string        `json:"mechanism_description"`
	SupportingEvidence      []string      `json:"supporting_evidence"`
	EvidenceLevel           EvidenceLevel `json:"evidence_level"`
	Confidence              float64       `json:"confidence"`
	TestablePredictions     []string      `json:"testable_predictions"`
	SuggestedBiomarkers     []string      `json:"suggested_biomarkers"`
	TherapeuticImplications []string      `json:"therapeutic_implications"`
	Timestamp               time.Time     `json:"timestamp"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ModelSignal is the minimal shape the generator needs from an external
// model prediction for evidence assessment.
type ModelSignal struct {
	ModelID   string
	RiskScore float64
}

// Options configures a Generator.
type Options struct {
	MaxHops        int
	MaxHypotheses  int
	MinConfidence  float64
	UpstreamDepth  int
}

func (o Options) withDefaults() Options {
	if o.MaxHops == 0 {
		o.MaxHops = 4
	}
	if o.MaxHypotheses == 0 {
		o.MaxHypotheses = 5
	}
	if o.MinConfidence == 0 {
		o.MinConfidence = 0.2
	}
	if o.UpstreamDepth == 0 {
		o.UpstreamDepth = 5
	}
	return o
}

// Generator builds mechanistic hypotheses from the knowledge graph plus
// patient biomarkers and, optionally, model predictions.
type Generator struct {
	kg      *graph.Graph
	opts    Options
	counter int
}

// New creates a Generator backed by the given knowledge graph.
func New(kg *graph.Graph, opts Options) *Generator {
	return &Generator{kg: kg, opts: opts.withDefaults()}
}

type activatedEntity struct {
	node       *graph.Node
	weight     float64
	foldChange float64
}

// Generate produces a ranked, confidence-filtered list of mechanistic
// hypotheses for a patient's adverse event risk.
func (g *Generator) Generate(patientID, adverseEvent string, biomarkers map[string]float64, models []ModelSignal) []MechanisticHypothesis {
	aeNodeID := "AE:" + adverseEvent

	upstream := g.kg.GetUpstreamCauses(aeNodeID, g.opts.UpstreamDepth)
	activated := g.findActivatedEntities(upstream, biomarkers)

	var hyps []MechanisticHypothesis
	hyps = append(hyps, g.pathwayHypotheses(patientID, adverseEvent, aeNodeID, activated, biomarkers, models)...)
	hyps = append(hyps, g.amplificationLoopHypotheses(patientID, adverseEvent, activated)...)
	hyps = append(hyps, g.escalationHypotheses(patientID, adverseEvent, activated)...)

	filtered := make([]MechanisticHypothesis, 0, len(hyps))
	for _, h := range hyps {
		if h.Confidence >= g.opts.MinConfidence {
			filtered = append(filtered, h)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Confidence > filtered[j].Confidence
	})
	if len(filtered) > g.opts.MaxHypotheses {
		filtered = filtered[:g.opts.MaxHypotheses]
	}
	return filtered
}

func (g *Generator) findActivatedEntities(upstream []graph.WeightedNode, biomarkers map[string]float64) []activatedEntity {
	var out []activatedEntity
	for _, wn := range upstream {
		value, ok := biomarkers[wn.Node.ID]
		if !ok {
			continue
		}
		fold, foundRange := graph.FoldChange(wn.Node, value)
		switch {
		case foundRange && fold > 1.5:
			out = append(out, activatedEntity{node: wn.Node, weight: wn.Weight, foldChange: fold})
		case !foundRange && value > 0:
			out = append(out, activatedEntity{node: wn.Node, weight: wn.Weight, foldChange: 1.0})
		}
	}
	return out
}

func (g *Generator) nextID() string {
	g.counter++
	return fmt.Sprintf("HYP-%06d", g.counter)
}

func (g *Generator) pathwayHypotheses(patientID, adverseEvent, aeNodeID string, activated []activatedEntity, biomarkers map[string]float64, models []ModelSignal) []MechanisticHypothesis {
	var out []MechanisticHypothesis

	for _, ent := range activated {
		result := g.kg.FindPaths(ent.node.ID, aeNodeID, g.opts.MaxHops, nil)
		if len(result.Paths) == 0 {
			continue
		}
		best := result.MaxWeightPath
		chain := chainFromPath(best)

		level := g.assessEvidenceLevel(ent.foldChange, models)

		evidence := []string{
			fmt.Sprintf("%s is %.1fx above normal range", ent.node.Name, ent.foldChange),
			fmt.Sprintf("KG path to %s: %d hops (causal weight: %.2f)", adverseEvent, len(best), ent.weight),
		}
		if len(models) > 0 {
			agreeing := 0
			for _, m := range models {
				if m.RiskScore > 0.5 {
					agreeing++
				}
			}
			evidence = append(evidence, fmt.Sprintf("%d/%d models predict elevated risk", agreeing, len(models)))
		}

		confidence := computeConfidence(ent.weight, ent.foldChange, level)

		out = append(out, MechanisticHypothesis{
			HypothesisID:             g.nextID(),
			PatientID:                patientID,
			AdverseEvent:             adverseEvent,
			Title:                    fmt.Sprintf("%s-driven %s via %d-step cascade", ent.node.Name, adverseEvent, len(best)),
			MechanismChain:           chain,
			MechanismDescription:     g.describeMechanism(best),
			SupportingEvidence:       evidence,
			EvidenceLevel:            level,
			Confidence:               confidence,
			TherapeuticImplications:  g.findTherapeuticTargets(chain),
			TestablePredictions:      g.buildTestablePredictions(ent.node, chain),
			SuggestedBiomarkers:      g.suggestMonitoringBiomarkers(chain, biomarkers),
			Timestamp:                time.Now().UTC(),
		})
	}
	return out
}

func chainFromPath(path []graph.PathStep) []string {
	if len(path) == 0 {
		return nil
	}
	chain := make([]string, 0, len(path)+1)
	for _, step := range path {
		chain = append(chain, step.Source)
	}
	chain = append(chain, path[len(path)-1].Target)
	return chain
}

func (g *Generator) amplificationLoopHypotheses(patientID, adverseEvent string, activated []activatedEntity) []MechanisticHypothesis {
	var out []MechanisticHypothesis

	activatedIDs := make(map[string]bool, len(activated))
	for _, ent := range activated {
		activatedIDs[ent.node.ID] = true
	}

	loopEdges := map[graph.EdgeType]bool{graph.EdgeAmplifies: true, graph.EdgeCauses: true}
	seen := make(map[string]bool)

	for _, ent := range activated {
		neighbors := g.kg.GetNeighbors(ent.node.ID, loopEdges, graph.DirOut)
		for _, nb := range neighbors {
			if nb.Node.ID == ent.node.ID || !activatedIDs[nb.Node.ID] {
				continue
			}
			back := g.kg.GetNeighbors(nb.Node.ID, loopEdges, graph.DirOut)
			for _, revNb := range back {
				if revNb.Node.ID != ent.node.ID {
					continue
				}
				pairKey := loopKey(ent.node.ID, nb.Node.ID)
				if seen[pairKey] {
					continue
				}
				seen[pairKey] = true

				out = append(out, MechanisticHypothesis{
					HypothesisID: g.nextID(),
					PatientID:    patientID,
					AdverseEvent: adverseEvent,
					Title:        fmt.Sprintf("Positive feedback loop: %s <-> %s", ent.node.Name, nb.Node.Name),
					MechanismChain: []string{ent.node.ID, nb.Node.ID, ent.node.ID},
					MechanismDescription: fmt.Sprintf(
						"%s and %s form a positive feedback loop that may sustain and amplify the inflammatory response. Both are currently elevated above normal, suggesting active loop engagement.",
						ent.node.Name, nb.Node.Name,
					),
					SupportingEvidence: []string{
						fmt.Sprintf("%s is %.1fx above normal", ent.node.Name, ent.foldChange),
						"bidirectional amplification edges in knowledge graph",
					},
					EvidenceLevel: Moderate,
					Confidence:    math.Min(0.8, ent.foldChange/20.0+0.3),
					TestablePredictions: []string{
						fmt.Sprintf("blocking %s should reduce %s", ent.node.Name, nb.Node.Name),
						"both markers should rise in parallel if loop is active",
					},
					Timestamp: time.Now().UTC(),
				})
			}
		}
	}
	return out
}

func loopKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

func (g *Generator) escalationHypotheses(patientID, adverseEvent string, activated []activatedEntity) []MechanisticHypothesis {
	var out []MechanisticHypothesis

	severeEdges := map[graph.EdgeType]bool{graph.EdgeCauses: true, graph.EdgeTriggers: true, graph.EdgeActivates: true}

	for _, ent := range activated {
		if !(ent.foldChange > 2.0 && ent.foldChange < 10.0) {
			continue
		}
		neighbors := g.kg.GetNeighbors(ent.node.ID, severeEdges, graph.DirOut)
		var severeTargets []*graph.Node
		for _, nb := range neighbors {
			if nb.Node.Type == graph.NodeAdverseEvent || nb.Node.Type == graph.NodeClinicalSign {
				severeTargets = append(severeTargets, nb.Node)
			}
		}
		if len(severeTargets) == 0 {
			continue
		}

		capped := severeTargets
		if len(capped) > 3 {
			capped = capped[:3]
		}
		names := make([]string, 0, len(capped))
		chain := []string{ent.node.ID}
		for _, n := range capped {
			names = append(names, n.Name)
			chain = append(chain, n.ID)
		}

		out = append(out, MechanisticHypothesis{
			HypothesisID:   g.nextID(),
			PatientID:      patientID,
			AdverseEvent:   adverseEvent,
			Title:          fmt.Sprintf("Escalation risk: rising %s (%.1fx)", ent.node.Name, ent.foldChange),
			MechanismChain: chain,
			MechanismDescription: fmt.Sprintf(
				"%s is currently %.1fx above normal. If it continues to rise, KG paths indicate it could trigger: %s. Close monitoring recommended.",
				ent.node.Name, ent.foldChange, strings.Join(names, ", "),
			),
			SupportingEvidence: []string{
				fmt.Sprintf("%s at %.1fx normal", ent.node.Name, ent.foldChange),
				fmt.Sprintf("direct pathway connections to %d severe outcomes", len(severeTargets)),
			},
			EvidenceLevel: Moderate,
			Confidence:    math.Min(0.6, ent.foldChange/15.0+0.2),
			TestablePredictions: []string{
				fmt.Sprintf("if %s exceeds 10x normal, expect clinical deterioration", ent.node.Name),
			},
			SuggestedBiomarkers: []string{ent.node.ID},
			Timestamp:           time.Now().UTC(),
		})
	}
	return out
}

func (g *Generator) assessEvidenceLevel(foldChange float64, models []ModelSignal) EvidenceLevel {
	hasBiomarker := foldChange > 2.0
	hasModelSupport := false
	if len(models) > 0 {
		highRisk := 0
		for _, m := range models {
			if m.RiskScore > 0.5 {
				highRisk++
			}
		}
		hasModelSupport = float64(highRisk) > float64(len(models))/2.0
	}

	switch {
	case hasBiomarker && hasModelSupport:
		return Strong
	case hasBiomarker || hasModelSupport:
		return Moderate
	default:
		return Weak
	}
}

func computeConfidence(causalWeight, foldChange float64, level EvidenceLevel) float64 {
	multiplier := evidenceMultiplier[level]
	base := math.Min(1.0, causalWeight*0.5+math.Min(foldChange/20.0, 0.5))
	return clamp01(math.Min(1.0, base*multiplier+0.1))
}

func (g *Generator) describeMechanism(path []graph.PathStep) string {
	if len(path) == 0 {
		return "unknown mechanism"
	}
	parts := make([]string, 0, len(path))
	for _, step := range path {
		sourceName := step.Source
		if n, ok := g.kg.GetNode(step.Source); ok {
			sourceName = n.Name
		}
		targetName := step.Target
		if n, ok := g.kg.GetNode(step.Target); ok {
			targetName = n.Name
		}
		verb := strings.ToLower(strings.ReplaceAll(string(step.Type), "_", " "))
		parts = append(parts, fmt.Sprintf("%s %s %s", sourceName, verb, targetName))
	}
	return strings.Join(parts, " -> ")
}

func (g *Generator) findTherapeuticTargets(chain []string) []string {
	inChain := make(map[string]bool, len(chain))
	for _, id := range chain {
		inChain[id] = true
	}

	targetEdges := map[graph.EdgeType]bool{graph.EdgeTargets: true, graph.EdgeInhibits: true, graph.EdgeTreats: true}

	var out []string
	for _, drug := range g.kg.GetNodesByType(graph.NodeDrug) {
		targets := g.kg.GetNeighbors(drug.ID, targetEdges, graph.DirOut)
		for _, t := range targets {
			if !inChain[t.Node.ID] {
				continue
			}
			mechanism := "unknown mechanism"
			if m, ok := drug.Properties["mechanism"].(string); ok && m != "" {
				mechanism = m
			}
			out = append(out, fmt.Sprintf("%s (%s) targets %s", drug.Name, mechanism, t.Node.Name))
			break
		}
	}
	return out
}

func (g *Generator) buildTestablePredictions(trigger *graph.Node, chain []string) []string {
	predictions := []string{
		fmt.Sprintf("if %s continues to rise, downstream markers in the cascade should follow within 6-12 hours", trigger.Name),
	}
	for _, id := range chain {
		n, ok := g.kg.GetNode(id)
		if !ok || n.Type != graph.NodeCytokine {
			continue
		}
		predictions = append(predictions, fmt.Sprintf("monitor %s for secondary elevation", n.Name))
	}
	if len(predictions) > 4 {
		predictions = predictions[:4]
	}
	return predictions
}

func (g *Generator) suggestMonitoringBiomarkers(chain []string, currentBiomarkers map[string]float64) []string {
	var out []string
	for _, id := range chain {
		if _, measured := currentBiomarkers[id]; measured {
			continue
		}
		n, ok := g.kg.GetNode(id)
		if !ok {
			continue
		}
		if n.Type == graph.NodeCytokine || n.Type == graph.NodeBiomarker || n.Type == graph.NodeProtein {
			out = append(out, id)
		}
	}
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}
