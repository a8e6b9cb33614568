// Package normalizer converts heterogeneous foundation-model responses
// into a single canonical Prediction shape that the rest of the pipeline
// (router, ensemble, alerting, audit) can consume uniformly.
package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/psp-engine/psp/internal/platform/cache"
)

// Prediction is the canonical normalized output of a single model call.
type Prediction struct {
	ModelID       string         `json:"model_id"`
	PatientID     string         `json:"patient_id"`
	AdverseEvent  string         `json:"adverse_event"`
	RiskScore     float64        `json:"risk_score"`
	Confidence    float64        `json:"confidence"`
	Reasoning     string         `json:"reasoning"`
	KeyDrivers    []string       `json:"key_drivers"`
	RawResponse   map[string]any `json:"raw_response"`
	LatencyMS     int            `json:"latency_ms"`
	TokensUsed    int            `json:"tokens_used"`
	Timestamp     time.Time      `json:"timestamp"`
	Metadata      map[string]any `json:"metadata"`
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

// newPrediction builds a Prediction with risk_score and confidence clamped
// to [0, 1], mirroring SafetyPrediction.__post_init__.
func newPrediction(modelID, patientID, adverseEvent string, riskScore, confidence float64) Prediction {
	return Prediction{
		ModelID:      modelID,
		PatientID:    patientID,
		AdverseEvent: adverseEvent,
		RiskScore:    clamp01(riskScore),
		Confidence:   clamp01(confidence),
		Timestamp:    time.Now().UTC(),
	}
}

// ToModelPredictionDict converts the prediction into the (score,
// confidence, model_name) triple the scorer's model domain expects.
func (p Prediction) ToModelPredictionDict() map[string]any {
	return map[string]any{
		"score":      p.RiskScore,
		"confidence": p.Confidence,
		"model_name": p.ModelID,
	}
}

var (
	jsonBlockPattern = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*(\{.*?\})\s*` + "```")

	scorePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)risk[_ ]?score[:\s]*([0-9]*\.?[0-9]+)`),
		regexp.MustCompile(`(?i)score[:\s]*([0-9]*\.?[0-9]+)`),
		regexp.MustCompile(`(?i)risk[:\s]*([0-9]*\.?[0-9]+)`),
		regexp.MustCompile(`(?i)probability[:\s]*([0-9]*\.?[0-9]+)`),
	}
	confidencePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)confidence[:\s]*([0-9]*\.?[0-9]+)`),
		regexp.MustCompile(`(?i)certainty[:\s]*([0-9]*\.?[0-9]+)`),
	}
)

// Normalizer converts raw model output (a JSON-decoded map, or a raw
// string) into a Prediction. It tries structured JSON first, then JSON
// embedded in text (code fence or bare balanced braces), then free-text
// heuristic extraction, in that order - the first strategy to succeed
// wins.
type Normalizer struct {
	log        *logrus.Logger
	parseCache *cache.ParseCache
}

// New creates a Normalizer logging through the given logger (nil uses
// logrus's standard logger).
func New(log *logrus.Logger) *Normalizer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Normalizer{log: log}
}

// SetParseCache attaches an in-process cache memoizing the parsed fields
// (risk score, confidence, reasoning, key drivers) derived purely from a
// raw vendor payload, keyed independently of call-specific metadata
// (patient id, latency, tokens used) so those fields are always
// refreshed on a cache hit.
func (n *Normalizer) SetParseCache(pc *cache.ParseCache) {
	n.parseCache = pc
}

// Normalize converts rawResponse (map[string]any or string) into a
// Prediction for the given model/patient/adverse-event context.
func (n *Normalizer) Normalize(rawResponse any, modelID, patientID, adverseEvent string, latencyMS, tokensUsed int) Prediction {
	if n.parseCache != nil {
		if key, ok := parseCacheKey(rawResponse, modelID, adverseEvent); ok {
			if cached, hit := n.parseCache.Get(key); hit {
				p := cached.(Prediction)
				p.PatientID = patientID
				p.LatencyMS = latencyMS
				p.TokensUsed = tokensUsed
				p.Timestamp = time.Now().UTC()
				return p
			}
			p := n.normalize(rawResponse, modelID, patientID, adverseEvent, latencyMS, tokensUsed)
			n.parseCache.Put(key, p)
			return p
		}
	}
	return n.normalize(rawResponse, modelID, patientID, adverseEvent, latencyMS, tokensUsed)
}

// parseCacheKey hashes the inputs that determine the parsed fields of a
// Prediction: the raw payload, model id, and adverse event. Returns
// ok=false if rawResponse can't be marshaled (never cached in that case).
func parseCacheKey(rawResponse any, modelID, adverseEvent string) (string, bool) {
	raw, err := json.Marshal(rawResponse)
	if err != nil {
		return "", false
	}
	h := sha256.Sum256(append([]byte(modelID+"|"+adverseEvent+"|"), raw...))
	return hex.EncodeToString(h[:]), true
}

func (n *Normalizer) normalize(rawResponse any, modelID, patientID, adverseEvent string, latencyMS, tokensUsed int) Prediction {
	switch v := rawResponse.(type) {
	case string:
		if parsed, ok := tryParseJSON(v); ok {
			return n.fromStructured(parsed, map[string]any{"text": v}, modelID, patientID, adverseEvent, latencyMS, tokensUsed)
		}
		return n.fromFreeText(v, nil, modelID, patientID, adverseEvent, latencyMS, tokensUsed)

	case map[string]any:
		if textContent, ok := extractTextFromAPIResponse(v); ok {
			if parsed, ok := tryParseJSON(textContent); ok {
				return n.fromStructured(parsed, v, modelID, patientID, adverseEvent, latencyMS, tokensUsed)
			}
			return n.fromFreeText(textContent, v, modelID, patientID, adverseEvent, latencyMS, tokensUsed)
		}
		return n.fromStructured(v, v, modelID, patientID, adverseEvent, latencyMS, tokensUsed)

	default:
		typeName := fmt.Sprintf("%T", rawResponse)
		n.log.WithFields(logrus.Fields{"model_id": modelID, "type": typeName}).
			Warn("unexpected response type from model; returning zero prediction")
		p := newPrediction(modelID, patientID, adverseEvent, 0.0, 0.0)
		p.Reasoning = "Failed to parse model response"
		p.RawResponse = map[string]any{"error": "unparseable", "type": typeName}
		p.LatencyMS = latencyMS
		p.TokensUsed = tokensUsed
		return p
	}
}

func (n *Normalizer) fromStructured(data map[string]any, raw map[string]any, modelID, patientID, adverseEvent string, latencyMS, tokensUsed int) Prediction {
	riskScore := extractFloat(data, []string{"risk_score", "riskScore", "score", "risk", "probability"}, 0.0)
	confidence := extractFloat(data, []string{"confidence", "certainty", "conf"}, 0.5)

	reasoning := firstNonEmptyString(data, "reasoning", "explanation", "rationale")
	if reasoning == "" {
		// General fallback per the field-mapping contract: when no recognized
		// reasoning key is present, fall back to the full response truncated.
		reasoning = truncate(stringifyForFallback(data), 2000)
	}

	ae := adverseEvent
	if v, ok := data["adverse_event"].(string); ok && v != "" {
		ae = v
	}

	p := newPrediction(modelID, patientID, ae, riskScore, confidence)
	p.Reasoning = reasoning
	p.KeyDrivers = extractKeyDrivers(data)
	p.RawResponse = raw
	p.LatencyMS = latencyMS
	p.TokensUsed = tokensUsed
	return p
}

func (n *Normalizer) fromFreeText(text string, rawDict map[string]any, modelID, patientID, adverseEvent string, latencyMS, tokensUsed int) Prediction {
	riskScore := extractScoreFromText(text, scorePatterns, 0.0)
	confidence := extractScoreFromText(text, confidencePatterns, 0.3)

	if riskScore > 1.0 {
		riskScore /= 100.0
	}
	if confidence > 1.0 {
		confidence /= 100.0
	}

	reasoning := truncate(text, 2000)

	n.log.WithFields(logrus.Fields{
		"model_id":   modelID,
		"risk_score": riskScore,
		"confidence": confidence,
	}).Info("free-text extraction")

	raw := rawDict
	if raw == nil {
		raw = map[string]any{"text": text}
	}

	p := newPrediction(modelID, patientID, adverseEvent, riskScore, confidence)
	p.Reasoning = reasoning
	p.RawResponse = raw
	p.LatencyMS = latencyMS
	p.TokensUsed = tokensUsed
	p.Metadata = map[string]any{"parse_method": "free_text"}
	return p
}

// tryParseJSON attempts, in order: direct parse of a brace-leading
// string; JSON inside a ```json fenced code block; the first balanced
// {...} object found anywhere in the text. Unlike the non-nested regex
// this strategy is ported from, the balanced-brace scan below correctly
// finds the outer object even when a field's value is itself a nested
// JSON object (e.g. key_drivers represented as an object).
func tryParseJSON(text string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		var m map[string]any
		if err := json.Unmarshal([]byte(trimmed), &m); err == nil {
			return m, true
		}
	}

	if match := jsonBlockPattern.FindStringSubmatch(text); match != nil {
		var m map[string]any
		if err := json.Unmarshal([]byte(match[1]), &m); err == nil {
			return m, true
		}
	}

	if block, ok := firstBalancedBraceBlock(text); ok {
		var m map[string]any
		if err := json.Unmarshal([]byte(block), &m); err == nil {
			return m, true
		}
	}

	return nil, false
}

// firstBalancedBraceBlock scans text for the first top-level {...} block,
// tracking nesting depth and skipping over quoted string contents so that
// braces inside string values don't perturb the count.
func firstBalancedBraceBlock(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}

func extractTextFromAPIResponse(response map[string]any) (string, bool) {
	// OpenAI-style choices[0].message.content
	if choices, ok := response["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if message, ok := choice["message"].(map[string]any); ok {
				if content, ok := message["content"]; ok {
					if s, ok := content.(string); ok && s != "" {
						return s, true
					}
				}
			}
		}
	}

	// Anthropic-style content[0].text
	if content, ok := response["content"].([]any); ok && len(content) > 0 {
		if first, ok := content[0].(map[string]any); ok {
			if text, ok := first["text"].(string); ok {
				return text, true
			}
		}
	}

	for _, key := range []string{"text", "output", "response", "result"} {
		if v, ok := response[key]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}

	return "", false
}

func extractFloat(data map[string]any, keys []string, def float64) float64 {
	for _, key := range keys {
		v, ok := data[key]
		if !ok || v == nil {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	return def
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func firstNonEmptyString(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := data[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func extractKeyDrivers(data map[string]any) []string {
	var raw any
	for _, key := range []string{"key_drivers", "drivers", "factors"} {
		if v, ok := data[key]; ok && v != nil {
			raw = v
			break
		}
	}
	switch t := raw.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.TrimSpace(p))
		}
		return out
	default:
		return nil
	}
}

func extractScoreFromText(text string, patterns []*regexp.Regexp, def float64) float64 {
	for _, pattern := range patterns {
		if match := pattern.FindStringSubmatch(text); match != nil {
			if f, err := strconv.ParseFloat(match[1], 64); err == nil {
				return f
			}
		}
	}
	return def
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func stringifyForFallback(data map[string]any) string {
	b, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(b)
}
