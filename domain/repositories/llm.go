package repositories

import (
	"context"
	"errors"

	"github.com/satriahrh/speakup/domain/entities"
)

var (
	// ErrServiceUnreachable is returned when a conversation turn fails in transport or parsing
	ErrServiceUnreachable = errors.New("conversation service unreachable")
	// ErrEvaluationFailed is returned when an assessment cannot be produced
	ErrEvaluationFailed = errors.New("evaluation failed")
)

// ConversationClient produces the assistant reply for a conversation.
// The full history is sent on every call; the service keeps no state.
type ConversationClient interface {
	SendTurn(ctx context.Context, history []entities.Message) (string, error)
}

// EvaluationClient produces a structured speaking assessment of one utterance
type EvaluationClient interface {
	Evaluate(ctx context.Context, utterance string) (*entities.EvaluationResult, error)
}

// LargeLanguageModel abstracts any chat/LLM provider able to serve both
// conversation turns and assessments
type LargeLanguageModel interface {
	ConversationClient
	EvaluationClient
}
