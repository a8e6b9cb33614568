// Package validator implements the mechanistic validator: five
// independent checks that cross-reference a candidate risk assessment
// against the biological knowledge graph, temporal windows, and
// biomarker history, then aggregate them into an overall verdict.
package validator

import (
	"math"
	"sort"

	"github.com/psp-engine/psp/internal/graph"
)

// Result is a check's verdict.
type Result string

const (
	Valid           Result = "Valid"
	Plausible       Result = "Plausible"
	Implausible     Result = "Implausible"
	InsufficientData Result = "InsufficientData"
)

// CheckOutcome is the result of one of the five checks.
type CheckOutcome struct {
	Name       string  `json:"name"`
	Result     Result  `json:"result"`
	Details    string  `json:"details"`
	Confidence float64 `json:"confidence"`
}

// Report is the aggregated outcome of all five checks.
type Report struct {
	Checks           []CheckOutcome `json:"checks"`
	Overall          Result         `json:"overall"`
	Confidence       float64        `json:"confidence"`
	ScoreAdjustment  float64        `json:"score_adjustment"`  // multiplicative adjustment to the candidate risk score
	ConfidenceFactor float64        `json:"confidence_factor"` // multiplicative adjustment to the candidate confidence
}

// BiomarkerObservation is a single biomarker's current value and,
// optionally, its elevation history for cascade-ordering checks.
type BiomarkerObservation struct {
	NodeID      string
	Value       float64
	Unit        string
	HistoryHrs  []float64 // sample times in hours on a forward clock (a smaller value is an earlier sample), any order
	HistoryVals []float64 // values parallel to HistoryHrs
}

// Input bundles everything a validation run needs about one candidate
// adverse-event risk assessment.
type Input struct {
	AdverseEvent       string
	RiskScore          float64
	HoursSinceInfusion float64
	Biomarkers         []BiomarkerObservation
	RequiredPatterns   [][]string // disjunction of conjunctions of node IDs
	CascadeOrder       []string   // expected elevation order, e.g. CRS: IFN-γ, TNF-α, IL-6, CRP, Ferritin
	StrictMode         bool
}

// temporalWindow is the plausible [low, high) hours-since-infusion window
// for an adverse event's onset.
var temporalWindows = map[string][2]float64{
	"CRS":   {6, 336},
	"ICANS": {24, 504},
	"HLH":   {48, 504},
}

// Validator cross-references candidate assessments against the
// knowledge graph.
type Validator struct {
	g *graph.Graph
}

// New creates a Validator backed by the given graph.
func New(g *graph.Graph) *Validator {
	return &Validator{g: g}
}

// Validate runs all five checks and aggregates them into a Report.
func (v *Validator) Validate(in Input) Report {
	checks := []CheckOutcome{
		v.checkPathwayExistence(in),
		v.checkTemporalPlausibility(in),
		v.checkBiomarkerConsistency(in),
		v.checkCascadeOrdering(in),
		v.checkMagnitudePlausibility(in),
	}
	return aggregate(checks, in.StrictMode)
}

func (v *Validator) checkPathwayExistence(in Input) CheckOutcome {
	name := "pathway_existence"
	if len(in.Biomarkers) == 0 {
		return CheckOutcome{Name: name, Result: InsufficientData, Details: "no biomarkers present", Confidence: 0.5}
	}

	target := "AE:" + in.AdverseEvent
	haveAny := 0
	for _, b := range in.Biomarkers {
		res := v.g.FindPaths(b.NodeID, target, 6, nil)
		if len(res.Paths) > 0 {
			haveAny++
		}
	}
	fraction := float64(haveAny) / float64(len(in.Biomarkers))

	switch {
	case fraction >= 0.5:
		return CheckOutcome{Name: name, Result: Valid, Details: "majority of biomarkers have a graph path to the adverse event", Confidence: fraction}
	case fraction > 0:
		return CheckOutcome{Name: name, Result: Plausible, Details: "some biomarkers have a graph path to the adverse event", Confidence: fraction}
	default:
		return CheckOutcome{Name: name, Result: Implausible, Details: "no biomarker has a graph path to the adverse event", Confidence: 1 - fraction}
	}
}

func (v *Validator) checkTemporalPlausibility(in Input) CheckOutcome {
	name := "temporal_plausibility"
	window, ok := temporalWindows[in.AdverseEvent]
	if !ok {
		return CheckOutcome{Name: name, Result: InsufficientData, Details: "no temporal window defined for this adverse event", Confidence: 0.5}
	}
	low, high := window[0], window[1]
	h := in.HoursSinceInfusion

	switch {
	case h >= low && h < high:
		return CheckOutcome{Name: name, Result: Valid, Details: "onset within expected window", Confidence: 0.9}
	case h < low && h <= 0 && in.RiskScore > 0.5:
		return CheckOutcome{Name: name, Result: Implausible, Details: "pre-infusion onset with elevated risk", Confidence: 0.8}
	case h < low && in.RiskScore > 0.7:
		return CheckOutcome{Name: name, Result: Plausible, Details: "onset before expected window but high risk", Confidence: 0.6}
	case h >= high && in.RiskScore > 0.5:
		return CheckOutcome{Name: name, Result: Plausible, Details: "onset after expected window but elevated risk", Confidence: 0.6}
	default:
		return CheckOutcome{Name: name, Result: Valid, Details: "no strong temporal conflict", Confidence: 0.7}
	}
}

func (v *Validator) checkBiomarkerConsistency(in Input) CheckOutcome {
	name := "biomarker_consistency"

	elevated := make(map[string]bool)
	anyElevated := false
	for _, b := range in.Biomarkers {
		node, ok := v.g.GetNode(b.NodeID)
		if !ok {
			continue
		}
		fold, ok := graph.FoldChange(node, b.Value, b.Unit)
		if ok && fold > 1.5 {
			elevated[b.NodeID] = true
			anyElevated = true
		}
	}

	for _, conjunction := range in.RequiredPatterns {
		matched := true
		for _, id := range conjunction {
			if !elevated[id] {
				matched = false
				break
			}
		}
		if matched {
			return CheckOutcome{Name: name, Result: Valid, Details: "required elevation pattern matched", Confidence: 0.9}
		}
	}

	switch {
	case anyElevated && in.RiskScore > 0.3:
		return CheckOutcome{Name: name, Result: Plausible, Details: "some elevation present but no required pattern matched", Confidence: 0.5}
	case !anyElevated && in.RiskScore > 0.5:
		return CheckOutcome{Name: name, Result: Implausible, Details: "no biomarker elevation despite elevated risk", Confidence: 0.7}
	default:
		return CheckOutcome{Name: name, Result: Plausible, Details: "insufficient elevation to confirm or refute", Confidence: 0.4}
	}
}

func (v *Validator) checkCascadeOrdering(in Input) CheckOutcome {
	name := "cascade_ordering"
	if len(in.CascadeOrder) == 0 {
		return CheckOutcome{Name: name, Result: InsufficientData, Details: "no expected cascade order configured", Confidence: 0.5}
	}

	elevationTime := make(map[string]float64)
	count := 0
	for _, b := range in.Biomarkers {
		node, ok := v.g.GetNode(b.NodeID)
		if !ok || len(b.HistoryHrs) == 0 {
			continue
		}
		earliest, found := earliestElevationTime(node, b)
		if found {
			elevationTime[b.NodeID] = earliest
			count++
		}
	}

	if count < 2 {
		return CheckOutcome{Name: name, Result: InsufficientData, Details: "fewer than two biomarkers have elevation history", Confidence: 0.5}
	}

	present := make([]string, 0, len(in.CascadeOrder))
	for _, id := range in.CascadeOrder {
		if _, ok := elevationTime[id]; ok {
			present = append(present, id)
		}
	}

	totalPairs, orderedPairs := 0, 0
	for i := 0; i < len(present); i++ {
		for j := i + 1; j < len(present); j++ {
			totalPairs++
			if elevationTime[present[i]] <= elevationTime[present[j]] {
				orderedPairs++
			}
		}
	}

	if totalPairs == 0 {
		return CheckOutcome{Name: name, Result: InsufficientData, Details: "no comparable pairs in cascade order", Confidence: 0.5}
	}

	consistency := float64(orderedPairs) / float64(totalPairs)
	switch {
	case consistency >= 0.8:
		return CheckOutcome{Name: name, Result: Valid, Details: "elevation order matches expected cascade", Confidence: consistency}
	case consistency >= 0.5:
		return CheckOutcome{Name: name, Result: Plausible, Details: "elevation order partially matches expected cascade", Confidence: consistency}
	default:
		return CheckOutcome{Name: name, Result: Implausible, Details: "elevation order conflicts with expected cascade", Confidence: 1 - consistency}
	}
}

func earliestElevationTime(node *graph.Node, b BiomarkerObservation) (float64, bool) {
	low, high, _, ok := node.PropertyRange()
	if !ok {
		return 0, false
	}
	_ = low
	earliest := math.Inf(1)
	found := false
	for i, val := range b.HistoryVals {
		if val > 1.5*high {
			if b.HistoryHrs[i] < earliest {
				earliest = b.HistoryHrs[i]
				found = true
			}
		}
	}
	return earliest, found
}

func (v *Validator) checkMagnitudePlausibility(in Input) CheckOutcome {
	name := "magnitude_plausibility"
	maxFold := 0.0
	any := false
	for _, b := range in.Biomarkers {
		node, ok := v.g.GetNode(b.NodeID)
		if !ok {
			continue
		}
		fold, ok := graph.FoldChange(node, b.Value, b.Unit)
		if !ok {
			continue
		}
		any = true
		if fold > maxFold {
			maxFold = fold
		}
	}
	if !any {
		return CheckOutcome{Name: name, Result: InsufficientData, Details: "no biomarker fold-change could be computed", Confidence: 0.5}
	}

	switch {
	case in.RiskScore >= 0.8 && maxFold < 3:
		return CheckOutcome{Name: name, Result: Implausible, Details: "high risk score with low biomarker magnitude", Confidence: 0.7}
	case in.RiskScore < 0.3 && maxFold > 50:
		return CheckOutcome{Name: name, Result: Implausible, Details: "low risk score with extreme biomarker magnitude", Confidence: 0.7}
	default:
		return CheckOutcome{Name: name, Result: Valid, Details: "risk score consistent with biomarker magnitude", Confidence: 0.7}
	}
}

func aggregate(checks []CheckOutcome, strict bool) Report {
	counts := map[Result]int{}
	confSum := 0.0
	for _, c := range checks {
		counts[c.Result]++
		confSum += c.Confidence
	}
	n := len(checks)

	implausible := counts[Implausible]
	if strict && implausible == 1 {
		implausible = 2
	}

	var overall Result
	switch {
	case implausible >= 2:
		overall = Implausible
	case counts[Valid] > n/2:
		overall = Valid
	case counts[Valid]+counts[Plausible] > n/2:
		overall = Plausible
	case counts[InsufficientData] > n/2:
		overall = InsufficientData
	default:
		overall = Plausible
	}

	report := Report{
		Checks:           sortResultsByConfidence(checks),
		Overall:          overall,
		Confidence:       confSum / float64(n),
		ScoreAdjustment:  1.0,
		ConfidenceFactor: 1.0,
	}

	switch overall {
	case Implausible:
		report.ScoreAdjustment = 0.5
	case Plausible:
		report.ConfidenceFactor = 0.8
	}

	return report
}

// sortResultsByConfidence orders checks by descending confidence so
// Report.Checks presents its most confident findings first rather than in
// fixed check-execution order.
func sortResultsByConfidence(checks []CheckOutcome) []CheckOutcome {
	out := make([]CheckOutcome, len(checks))
	copy(out, checks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}
