package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvaluation_StrictJSON(t *testing.T) {
	raw := `{"overall_score": 85, "summary": "Good consult.", "checklist": [{"category": "history", "item": "onset", "passed": true, "rationale": "asked"}], "strengths": ["rapport"], "improvements": []}`

	eval, err := ParseEvaluation(raw)
	require.NoError(t, err)
	assert.Equal(t, 85, eval.OverallScore)
	assert.Equal(t, "Good consult.", eval.Summary)
	require.Len(t, eval.Checklist, 1)
	assert.True(t, eval.Checklist[0].Passed)
}

func TestParseEvaluation_FencedPayload(t *testing.T) {
	raw := "Here is the grade:\n```json\n{\"overall_score\": 60, \"summary\": \"Missed red flags.\"}\n```\nHope that helps!"

	eval, err := ParseEvaluation(raw)
	require.NoError(t, err)
	assert.Equal(t, 60, eval.OverallScore)
	assert.Equal(t, "Missed red flags.", eval.Summary)
}

func TestParseEvaluation_ClampsScore(t *testing.T) {
	low, err := ParseEvaluation(`{"overall_score": -5, "summary": "s"}`)
	require.NoError(t, err)
	assert.Equal(t, 0, low.OverallScore)

	high, err := ParseEvaluation(`{"overall_score": 140, "summary": "s"}`)
	require.NoError(t, err)
	assert.Equal(t, 100, high.OverallScore)
}

func TestParseEvaluation_Malformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"prose only", "I cannot grade this transcript."},
		{"empty object", "{}"},
		{"broken json", `{"overall_score": `},
		{"empty string", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseEvaluation(tc.raw)
			assert.ErrorIs(t, err, ErrMalformedEvaluation)
		})
	}
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, ExtractJSON("noise {\"a\": 1} trailing"))
	assert.Equal(t, "", ExtractJSON("no braces here"))
	assert.Equal(t, "", ExtractJSON("} reversed {"))
}

func TestFormatTranscript(t *testing.T) {
	got := FormatTranscript([]Message{
		{Role: RoleAgent, Content: "My head hurts."},
		{Role: RoleUser, Content: "Since when?"},
	})
	assert.Equal(t, "Patient: My head hurts.\nClinician: Since when?\n", got)
}

func TestComposeScript(t *testing.T) {
	script := ComposeScript("case rules here", "persona voice here")
	assert.Contains(t, script, "case rules here")
	assert.Contains(t, script, "persona voice here")
	assert.Contains(t, script, "Stay in character")
}
