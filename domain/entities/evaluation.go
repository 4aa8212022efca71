package entities

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// GrammarCorrection pairs an erroneous phrase with its corrected form
type GrammarCorrection struct {
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
}

// EvaluationResult is the structured speaking assessment of one utterance
type EvaluationResult struct {
	BandScore          float64             `json:"band_score"`
	Feedback           string              `json:"feedback"`
	GrammarCorrections []GrammarCorrection `json:"grammar_corrections"`
	Tips               []string            `json:"tips"`
}

// ParseEvaluationResult decodes the JSON text returned by the generation
// service. Only the structure is checked; the schema itself is enforced by
// the service.
func ParseEvaluationResult(text string) (*EvaluationResult, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty evaluation payload")
	}

	var result EvaluationResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("parsing evaluation JSON: %w", err)
	}
	if result.GrammarCorrections == nil {
		result.GrammarCorrections = []GrammarCorrection{}
	}
	if result.Tips == nil {
		result.Tips = []string{}
	}
	return &result, nil
}
