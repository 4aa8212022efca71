package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/satriahrh/speakup/domain/entities"
	"github.com/satriahrh/speakup/domain/repositories"
)

// MockClient is an offline stand-in for the generation service, used for
// local development without API keys
type MockClient struct{}

// NewMockClient creates a new mock client
func NewMockClient() repositories.LargeLanguageModel {
	return &MockClient{}
}

// SendTurn implements repositories.ConversationClient
func (m *MockClient) SendTurn(ctx context.Context, history []entities.Message) (string, error) {
	var last string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == entities.MessageRoleUser {
			last = history[i].Content
			break
		}
	}

	switch {
	case last == "":
		return "Hello! What would you like to talk about today?", nil
	default:
		return fmt.Sprintf("That sounds interesting! You said: %q. Can you tell me a bit more about it?", last), nil
	}
}

// Evaluate implements repositories.EvaluationClient
func (m *MockClient) Evaluate(ctx context.Context, utterance string) (*entities.EvaluationResult, error) {
	words := len(strings.Fields(utterance))

	var score float64
	switch {
	case words >= 30:
		score = 7.0
	case words >= 15:
		score = 6.0
	case words >= 5:
		score = 5.0
	default:
		score = 4.0
	}

	return &entities.EvaluationResult{
		BandScore:          score,
		Feedback:           fmt.Sprintf("Your answer had %d words. Longer answers with linking words show more fluency.", words),
		GrammarCorrections: []entities.GrammarCorrection{},
		Tips: []string{
			"Extend your answers with a reason and an example.",
			"Use linking words such as however, because and for instance.",
			"Vary your tenses when you talk about past and future plans.",
		},
	}, nil
}
