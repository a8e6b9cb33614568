// Package router implements the prompt routing layer: given a safety
// query, it assesses complexity and clinical domain, filters the model
// registry to eligible candidates, ranks them, and selects either a
// single model or an ensemble.
package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/psp-engine/psp/internal/domain"
	"github.com/psp-engine/psp/internal/platform/cache"
)

// Complexity is an ordered query-difficulty tier.
type Complexity int

const (
	Simple Complexity = iota
	Moderate
	Complex
	Expert
)

func (c Complexity) String() string {
	switch c {
	case Simple:
		return "simple"
	case Moderate:
		return "moderate"
	case Complex:
		return "complex"
	case Expert:
		return "expert"
	default:
		return "unknown"
	}
}

// ClinicalDomain is the coarse clinical area a query is assessed to be
// about, used for domain_match scoring against a model's declared
// domains.
type ClinicalDomain string

const (
	DomainICANS        ClinicalDomain = "ICANS"
	DomainHLH          ClinicalDomain = "HLH"
	DomainCoagulopathy ClinicalDomain = "coagulopathy"
	DomainCRS          ClinicalDomain = "CRS"
	DomainGeneral      ClinicalDomain = "general"
)

// Query is a routing request for a single adverse-event assessment.
type Query struct {
	PatientID                   string
	QueryText                   string
	BiomarkerCount              int
	HoursSinceInfusion          float64
	RequiresMechanisticReasoning bool
	LatencyBudgetMS             float64
	AdverseEvents               []string
	Context                     map[string]any
}

// AssessComplexity applies the first-match-wins complexity rules.
func AssessComplexity(q Query) Complexity {
	text := strings.ToLower(q.QueryText)
	if q.RequiresMechanisticReasoning && (strings.Contains(text, "hypothesis") || strings.Contains(text, "novel")) {
		return Expert
	}
	if q.RequiresMechanisticReasoning {
		return Complex
	}
	if q.BiomarkerCount >= 5 && q.HoursSinceInfusion > 0 {
		return Moderate
	}
	if q.BiomarkerCount <= 2 {
		return Simple
	}
	return Moderate
}

// AssessDomain classifies the query's clinical domain by substring/set
// match over its adverse events and query text.
func AssessDomain(q Query) ClinicalDomain {
	haystack := strings.ToLower(q.QueryText + " " + strings.Join(q.AdverseEvents, " "))
	switch {
	case strings.Contains(haystack, "icans"):
		return DomainICANS
	case strings.Contains(haystack, "hlh"):
		return DomainHLH
	case strings.Contains(haystack, "coagulopathy"), strings.Contains(haystack, "dic"):
		return DomainCoagulopathy
	case strings.Contains(haystack, "crs"), strings.Contains(haystack, "cytokine"):
		return DomainCRS
	default:
		return DomainGeneral
	}
}

// ModelCapability describes one registered model's routing-relevant
// attributes, as maintained by the gateway's endpoint registry plus
// operational metadata tracked by the router itself.
type ModelCapability struct {
	Model              string
	Provider           string
	Healthy            bool
	MaxComplexity      Complexity
	Domains            map[ClinicalDomain]float64 // domain_match score per domain, [0,1]
	Reliability        float64                    // [0,1], historical success rate
	Cost               float64                    // cost per call, arbitrary unit
	AvgLatencyMS       float64
	HasStructuredOutput bool
}

// RoutingDecision is the router's output for a single query.
type RoutingDecision struct {
	Primary          ModelCapability
	Ensemble         []ModelCapability
	Complexity       Complexity
	Domain           ClinicalDomain
	EstimatedLatency float64
	Scores           map[string]float64
}

// Options tunes ensemble behavior; zero values fall back to the spec's
// defaults (EnsembleThreshold=Complex, MaxEnsembleSize=3, MaxCost=1.0).
type Options struct {
	EnsembleThreshold Complexity
	MaxEnsembleSize   int
	MaxCost           float64
}

func (o Options) withDefaults() Options {
	if o.MaxEnsembleSize <= 0 {
		o.MaxEnsembleSize = 3
	}
	if o.MaxCost <= 0 {
		o.MaxCost = 1.0
	}
	// Simple (0) is never a meaningful default threshold; Complex is.
	if o.EnsembleThreshold == Simple {
		o.EnsembleThreshold = Complex
	}
	return o
}

// Router selects a model or ensemble of models for a safety query from a
// registered capability pool.
type Router struct {
	registry  []ModelCapability
	opts      Options
	rankCache *cache.RankCache
}

// New creates a Router over the given model capability pool.
func New(registry []ModelCapability, opts Options) *Router {
	return &Router{registry: registry, opts: opts.withDefaults()}
}

// SetRankCache attaches an in-process cache for ranking results,
// memoizing repeated query signatures against an unchanged registry.
func (r *Router) SetRankCache(rc *cache.RankCache) {
	r.rankCache = rc
}

// RegisterModel adds a capability to the registry, or replaces the entry
// with a matching Model id. Purges the rank cache, since either change
// invalidates any ranking computed against the old registry.
func (r *Router) RegisterModel(m ModelCapability) {
	defer func() {
		if r.rankCache != nil {
			r.rankCache.Purge()
		}
	}()

	for i, existing := range r.registry {
		if existing.Model == m.Model {
			r.registry[i] = m
			return
		}
	}
	r.registry = append(r.registry, m)
}

// Route assesses complexity and domain, filters to eligible models,
// ranks them, and returns a RoutingDecision. Returns ErrNoRoutingCandidate
// if no model is eligible.
func (r *Router) Route(q Query) (RoutingDecision, error) {
	complexity := AssessComplexity(q)
	clinDomain := AssessDomain(q)

	cacheKey := rankCacheKey(q, complexity, clinDomain)
	if r.rankCache != nil {
		if cached, ok := r.rankCache.Get(cacheKey); ok {
			return cached.(RoutingDecision), nil
		}
	}

	eligible := r.filterEligible(complexity, q.LatencyBudgetMS)
	if len(eligible) == 0 {
		return RoutingDecision{}, domain.ErrNoRoutingCandidate
	}

	scores := make(map[string]float64, len(eligible))
	for _, m := range eligible {
		scores[m.Model] = rankScore(m, clinDomain, complexity, q.LatencyBudgetMS, r.opts.MaxCost)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return scores[eligible[i].Model] > scores[eligible[j].Model]
	})

	decision := RoutingDecision{
		Primary:    eligible[0],
		Complexity: complexity,
		Domain:     clinDomain,
		Scores:     scores,
	}

	if complexity >= r.opts.EnsembleThreshold && len(eligible) >= 2 {
		decision.Ensemble = selectEnsemble(eligible, r.opts.MaxEnsembleSize)
	} else {
		decision.Ensemble = []ModelCapability{decision.Primary}
	}

	maxLatency := 0.0
	for _, m := range decision.Ensemble {
		if m.AvgLatencyMS > maxLatency {
			maxLatency = m.AvgLatencyMS
		}
	}
	decision.EstimatedLatency = maxLatency

	if r.rankCache != nil {
		r.rankCache.Put(cacheKey, decision)
	}

	return decision, nil
}

// rankCacheKey derives a signature for the inputs that determine a
// routing decision against a stable registry: adverse events, complexity,
// domain, latency budget, biomarker count, and whether mechanistic
// reasoning was required.
func rankCacheKey(q Query, c Complexity, d ClinicalDomain) string {
	return fmt.Sprintf("%s|%d|%s|%.1f|%d|%t",
		strings.Join(q.AdverseEvents, ","), c, d, q.LatencyBudgetMS, q.BiomarkerCount, q.RequiresMechanisticReasoning)
}

func (r *Router) filterEligible(complexity Complexity, latencyBudget float64) []ModelCapability {
	var out []ModelCapability
	for _, m := range r.registry {
		if !m.Healthy {
			continue
		}
		if m.MaxComplexity < complexity {
			continue
		}
		if latencyBudget > 0 && m.AvgLatencyMS > 1.2*latencyBudget {
			continue
		}
		out = append(out, m)
	}
	return out
}

func rankScore(m ModelCapability, d ClinicalDomain, complexity Complexity, latencyBudget, maxCost float64) float64 {
	domainMatch := m.Domains[d]

	costTerm := 0.0
	if maxCost > 0 {
		costTerm = 1 - m.Cost/maxCost
		if costTerm < 0 {
			costTerm = 0
		}
	}

	latencyTerm := 0.0
	if latencyBudget > 0 {
		latencyTerm = 1 - m.AvgLatencyMS/latencyBudget
		if latencyTerm < 0 {
			latencyTerm = 0
		}
	}

	structuredWeight := 0.10
	if complexity >= Complex {
		structuredWeight = 0.20
	}
	structuredTerm := 0.0
	if m.HasStructuredOutput {
		structuredTerm = 1.0
	}

	return 0.30*domainMatch + 0.25*m.Reliability + 0.15*costTerm + 0.10*latencyTerm + structuredWeight*structuredTerm
}

// selectEnsemble picks the top-ranked model as primary, then adds up to
// maxSize-1 further candidates from the ranked list, preferring
// candidates from providers not yet represented in the ensemble.
func selectEnsemble(ranked []ModelCapability, maxSize int) []ModelCapability {
	ensemble := []ModelCapability{ranked[0]}
	seenProviders := map[string]bool{ranked[0].Provider: true}

	for _, m := range ranked[1:] {
		if len(ensemble) >= maxSize {
			break
		}
		if !seenProviders[m.Provider] {
			ensemble = append(ensemble, m)
			seenProviders[m.Provider] = true
		}
	}
	for _, m := range ranked[1:] {
		if len(ensemble) >= maxSize {
			break
		}
		already := false
		for _, e := range ensemble {
			if e.Model == m.Model {
				already = true
				break
			}
		}
		if !already {
			ensemble = append(ensemble, m)
		}
	}

	return ensemble
}
