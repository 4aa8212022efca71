package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/speakup/domain/entities"
	"github.com/satriahrh/speakup/domain/repositories"
)

const (
	defaultModel          = "gemini-2.0-flash"
	defaultTimeoutSeconds = 30
)

// GeminiConfig holds configuration for the Gemini adapter
type GeminiConfig struct {
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}

	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}

	return nil
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient implements the LargeLanguageModel interface using Google's Gemini API
type GeminiClient struct {
	models  contentGenerator
	logger  *zap.Logger
	model   string
	timeout time.Duration
}

var _ repositories.LargeLanguageModel = (*GeminiClient)(nil)

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiClient, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newGeminiClient(client.Models, config, logger), nil
}

func newGeminiClient(models contentGenerator, config GeminiConfig, logger *zap.Logger) *GeminiClient {
	model := config.Model
	if model == "" {
		model = defaultModel
		logger.Info("Using default model", zap.String("model", model))
	}

	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	return &GeminiClient{
		models:  models,
		logger:  logger,
		model:   model,
		timeout: time.Duration(timeoutSeconds) * time.Second,
	}
}

// SendTurn sends the whole history and returns the model's reply
func (g *GeminiClient) SendTurn(ctx context.Context, history []entities.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemInstruction, genai.RoleUser),
		Temperature:       genai.Ptr[float32](Temperature),
		TopP:              genai.Ptr[float32](TopP),
		TopK:              genai.Ptr[float32](TopK),
		MaxOutputTokens:   MaxOutputTokens,
	}

	response, err := g.models.GenerateContent(ctx, g.model, convertHistoryToGeminiFormat(history), config)
	if err != nil {
		g.logger.Error("Failed to generate conversation reply", zap.Error(err))
		return "", fmt.Errorf("%w: %w", repositories.ErrServiceUnreachable, err)
	}

	reply := strings.TrimSpace(responseText(response))
	if reply == "" {
		g.logger.Warn("Empty conversation reply, using fallback")
		return FallbackReply, nil
	}

	g.logger.Info("Conversation turn processed",
		zap.Int("history_length", len(history)),
		zap.String("response_preview", preview(reply)))

	return reply, nil
}

// Evaluate asks the model for a schema-constrained assessment of the utterance
func (g *GeminiClient) Evaluate(ctx context.Context, utterance string) (*entities.EvaluationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromText(EvaluationPrompt(utterance), genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   evaluationSchema(),
	}

	response, err := g.models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		g.logger.Error("Failed to generate evaluation", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", repositories.ErrEvaluationFailed, err)
	}

	result, err := entities.ParseEvaluationResult(responseText(response))
	if err != nil {
		g.logger.Warn("Failed to parse evaluation", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", repositories.ErrEvaluationFailed, err)
	}

	g.logger.Info("Evaluation generated",
		zap.Float64("band_score", result.BandScore),
		zap.Int("corrections", len(result.GrammarCorrections)))

	return result, nil
}

// evaluationSchema describes the assessment object enforced by the service
func evaluationSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"band_score": {Type: genai.TypeNumber},
			"feedback":   {Type: genai.TypeString},
			"grammar_corrections": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"original":  {Type: genai.TypeString},
						"corrected": {Type: genai.TypeString},
					},
					Required: []string{"original", "corrected"},
				},
			},
			"tips": {
				Type:     genai.TypeArray,
				Items:    &genai.Schema{Type: genai.TypeString},
				MinItems: genai.Ptr[int64](EvaluationTips),
				MaxItems: genai.Ptr[int64](EvaluationTips),
			},
		},
		Required:         []string{"band_score", "feedback", "grammar_corrections", "tips"},
		PropertyOrdering: []string{"band_score", "feedback", "grammar_corrections", "tips"},
	}
}

// convertHistoryToGeminiFormat maps conversation messages onto Gemini roles
func convertHistoryToGeminiFormat(messages []entities.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		var role genai.Role = genai.RoleUser
		if msg.Role == entities.MessageRoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	return contents
}

func responseText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}

	var text strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	return text.String()
}
