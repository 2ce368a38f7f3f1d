package ai

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrMalformedEvaluation means the engine's grading output could not be
// parsed even after fallback extraction.
var ErrMalformedEvaluation = errors.New("malformed evaluation payload")

// ParseEvaluation decodes an evaluation payload. The output contract is
// strict JSON, but engines wrap it in code fences or prose often enough
// that one extraction fallback is applied: the outermost {...} block.
// Anything still unparseable is a failure.
func ParseEvaluation(raw string) (*Evaluation, error) {
	var eval Evaluation
	if err := json.Unmarshal([]byte(raw), &eval); err == nil {
		return normalize(&eval)
	}

	extracted := ExtractJSON(raw)
	if extracted == "" {
		return nil, ErrMalformedEvaluation
	}
	if err := json.Unmarshal([]byte(extracted), &eval); err != nil {
		return nil, ErrMalformedEvaluation
	}
	return normalize(&eval)
}

func normalize(eval *Evaluation) (*Evaluation, error) {
	if eval.Summary == "" && len(eval.Checklist) == 0 {
		// An empty object parses fine but grades nothing.
		return nil, ErrMalformedEvaluation
	}
	if eval.OverallScore < 0 {
		eval.OverallScore = 0
	}
	if eval.OverallScore > 100 {
		eval.OverallScore = 100
	}
	return eval, nil
}

// ExtractJSON returns the outermost JSON object embedded in content,
// or "" if none is found.
func ExtractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return content[start : end+1]
}
