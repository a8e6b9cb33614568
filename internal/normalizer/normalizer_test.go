package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psp-engine/psp/internal/platform/cache"
)

func TestNormalizeStructuredDict(t *testing.T) {
	n := New(nil)
	raw := map[string]any{
		"risk_score": 0.72,
		"confidence": 0.81,
		"reasoning":  "elevated IL-6 and CRP",
		"key_drivers": []any{"IL-6 elevation", "fever"},
	}
	p := n.Normalize(raw, "gpt-safety-1", "PAT-1", "CRS", 1200, 500)

	assert.Equal(t, "gpt-safety-1", p.ModelID)
	assert.InDelta(t, 0.72, p.RiskScore, 1e-9)
	assert.InDelta(t, 0.81, p.Confidence, 1e-9)
	assert.Equal(t, "elevated IL-6 and CRP", p.Reasoning)
	assert.Equal(t, []string{"IL-6 elevation", "fever"}, p.KeyDrivers)
}

func TestNormalizeClampsOutOfRangeScores(t *testing.T) {
	n := New(nil)
	raw := map[string]any{"risk_score": 1.5, "confidence": -0.2}
	p := n.Normalize(raw, "m1", "PAT-1", "CRS", 0, 0)
	assert.Equal(t, 1.0, p.RiskScore)
	assert.Equal(t, 0.0, p.Confidence)
}

func TestNormalizeDirectJSONString(t *testing.T) {
	n := New(nil)
	text := `{"risk_score": 0.4, "confidence": 0.6, "reasoning": "moderate risk"}`
	p := n.Normalize(text, "m1", "PAT-1", "CRS", 100, 50)
	assert.InDelta(t, 0.4, p.RiskScore, 1e-9)
	assert.Equal(t, "moderate risk", p.Reasoning)
}

func TestNormalizeFencedJSONBlock(t *testing.T) {
	n := New(nil)
	text := "Here is my assessment:\n```json\n{\"risk_score\": 0.6, \"confidence\": 0.7}\n```\nEnd."
	p := n.Normalize(text, "m1", "PAT-1", "CRS", 0, 0)
	assert.InDelta(t, 0.6, p.RiskScore, 1e-9)
}

func TestNormalizeBareNestedJSONObject(t *testing.T) {
	n := New(nil)
	text := `The model says {"risk_score": 0.55, "confidence": 0.65, "key_drivers": {"top": "IL-6"}} as its output.`
	p := n.Normalize(text, "m1", "PAT-1", "CRS", 0, 0)
	assert.InDelta(t, 0.55, p.RiskScore, 1e-9, "balanced-brace scan must find the outer object even with a nested object value")
}

func TestNormalizeFreeText(t *testing.T) {
	n := New(nil)
	text := "Based on the labs, I estimate risk_score: 0.85 with confidence: 0.9 given the cytokine profile."
	p := n.Normalize(text, "m1", "PAT-1", "CRS", 0, 0)
	assert.InDelta(t, 0.85, p.RiskScore, 1e-9)
	assert.InDelta(t, 0.9, p.Confidence, 1e-9)
	assert.Equal(t, "free_text", p.Metadata["parse_method"])
}

func TestNormalizeFreeTextPercentage(t *testing.T) {
	n := New(nil)
	text := "risk_score: 85 confidence: 90"
	p := n.Normalize(text, "m1", "PAT-1", "CRS", 0, 0)
	assert.InDelta(t, 0.85, p.RiskScore, 1e-9)
	assert.InDelta(t, 0.9, p.Confidence, 1e-9)
}

func TestNormalizeFreeTextTruncatesReasoning(t *testing.T) {
	n := New(nil)
	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'a'
	}
	p := n.Normalize(string(long), "m1", "PAT-1", "CRS", 0, 0)
	assert.Len(t, p.Reasoning, 2000)
}

func TestNormalizeOpenAIStyleWrapper(t *testing.T) {
	n := New(nil)
	raw := map[string]any{
		"choices": []any{
			map[string]any{
				"message": map[string]any{
					"content": `{"risk_score": 0.3, "confidence": 0.4}`,
				},
			},
		},
	}
	p := n.Normalize(raw, "gpt-4", "PAT-1", "CRS", 0, 0)
	assert.InDelta(t, 0.3, p.RiskScore, 1e-9)
}

func TestNormalizeAnthropicStyleWrapper(t *testing.T) {
	n := New(nil)
	raw := map[string]any{
		"content": []any{
			map[string]any{"text": `{"risk_score": 0.2, "confidence": 0.5}`},
		},
	}
	p := n.Normalize(raw, "claude", "PAT-1", "CRS", 0, 0)
	assert.InDelta(t, 0.2, p.RiskScore, 1e-9)
}

func TestNormalizeReasoningFallbackToTruncatedTextGeneral(t *testing.T) {
	// Reasoning fallback to truncated raw text must apply in structured
	// mode too, not just free-text mode.
	n := New(nil)
	raw := map[string]any{"risk_score": 0.5, "confidence": 0.5}
	p := n.Normalize(raw, "m1", "PAT-1", "CRS", 0, 0)
	assert.NotEmpty(t, p.Reasoning)
}

func TestNormalizeUnparseableType(t *testing.T) {
	n := New(nil)
	p := n.Normalize(42, "m1", "PAT-1", "CRS", 0, 0)
	assert.Equal(t, 0.0, p.RiskScore)
	assert.Equal(t, 0.0, p.Confidence)
	assert.Equal(t, "Failed to parse model response", p.Reasoning)
}

func TestNormalizeReusesParseCacheButRefreshesCallSpecificFields(t *testing.T) {
	n := New(nil)
	pc, err := cache.NewParseCache(8)
	require.NoError(t, err)
	n.SetParseCache(pc)

	raw := map[string]any{"risk_score": 0.72, "confidence": 0.81, "reasoning": "elevated IL-6"}

	first := n.Normalize(raw, "gpt-safety-1", "PAT-1", "CRS", 1200, 500)
	second := n.Normalize(raw, "gpt-safety-1", "PAT-2", "CRS", 900, 300)

	assert.InDelta(t, first.RiskScore, second.RiskScore, 1e-9)
	assert.InDelta(t, first.Confidence, second.Confidence, 1e-9)
	assert.Equal(t, first.Reasoning, second.Reasoning)

	// Call-specific fields must reflect the second call, not the cached first one.
	assert.Equal(t, "PAT-2", second.PatientID)
	assert.Equal(t, 900, second.LatencyMS)
	assert.Equal(t, 300, second.TokensUsed)
}

func TestToModelPredictionDict(t *testing.T) {
	n := New(nil)
	p := n.Normalize(map[string]any{"risk_score": 0.6, "confidence": 0.7}, "m1", "PAT-1", "CRS", 0, 0)
	d := p.ToModelPredictionDict()
	require.Equal(t, "m1", d["model_name"])
	assert.InDelta(t, 0.6, d["score"], 1e-9)
	assert.InDelta(t, 0.7, d["confidence"], 1e-9)
}
