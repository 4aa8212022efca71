package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"

	"github.com/satriahrh/speakup/domain/entities"
	"github.com/satriahrh/speakup/domain/repositories"
)

const defaultOpenAIModel = openai.GPT4oMini

// OpenAIConfig holds configuration for OpenAI-compatible chat completion services
type OpenAIConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	TimeoutSeconds int
}

// OpenAIClient implements the LargeLanguageModel interface on the chat
// completions API. Top-k sampling is not offered by this API and is omitted.
type OpenAIClient struct {
	client  *openai.Client
	logger  *zap.Logger
	model   string
	timeout time.Duration
}

var _ repositories.LargeLanguageModel = (*OpenAIClient)(nil)

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(config OpenAIConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	model := config.Model
	if model == "" {
		model = defaultOpenAIModel
		logger.Info("Using default model", zap.String("model", model))
	}

	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	return &OpenAIClient{
		client:  openai.NewClientWithConfig(clientConfig),
		logger:  logger,
		model:   model,
		timeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// SendTurn sends the whole history and returns the assistant reply
func (o *OpenAIClient) SendTurn(ctx context.Context, history []entities.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: SystemInstruction,
	})
	for _, msg := range history {
		role := openai.ChatMessageRoleUser
		if msg.Role == entities.MessageRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: Temperature,
		TopP:        TopP,
		MaxTokens:   MaxOutputTokens,
	})
	if err != nil {
		o.logger.Error("Failed to create chat completion", zap.Error(err))
		return "", fmt.Errorf("%w: %w", repositories.ErrServiceUnreachable, err)
	}

	var reply string
	if len(resp.Choices) > 0 {
		reply = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	if reply == "" {
		o.logger.Warn("Empty conversation reply, using fallback")
		return FallbackReply, nil
	}

	o.logger.Info("Conversation turn processed",
		zap.Int("history_length", len(history)),
		zap.String("response_preview", preview(reply)))

	return reply, nil
}

// Evaluate asks for a strict JSON-schema assessment of the utterance
func (o *OpenAIClient) Evaluate(ctx context.Context, utterance string) (*entities.EvaluationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	schema := evaluationSchemaJSON{evaluationJSONSchema()}
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: EvaluationPrompt(utterance)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "speaking_assessment",
				Schema: &schema,
				Strict: true,
			},
		},
	})
	if err != nil {
		o.logger.Error("Failed to create evaluation completion", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", repositories.ErrEvaluationFailed, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", repositories.ErrEvaluationFailed)
	}

	result, err := entities.ParseEvaluationResult(resp.Choices[0].Message.Content)
	if err != nil {
		o.logger.Warn("Failed to parse evaluation", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", repositories.ErrEvaluationFailed, err)
	}

	return result, nil
}

func evaluationJSONSchema() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"band_score": {Type: jsonschema.Number},
			"feedback":   {Type: jsonschema.String},
			"grammar_corrections": {
				Type: jsonschema.Array,
				Items: &jsonschema.Definition{
					Type: jsonschema.Object,
					Properties: map[string]jsonschema.Definition{
						"original":  {Type: jsonschema.String},
						"corrected": {Type: jsonschema.String},
					},
					Required:             []string{"original", "corrected"},
					AdditionalProperties: false,
				},
			},
			"tips": {
				Type:        jsonschema.Array,
				Description: fmt.Sprintf("exactly %d improvement tips", EvaluationTips),
				Items:       &jsonschema.Definition{Type: jsonschema.String},
			},
		},
		Required:             []string{"band_score", "feedback", "grammar_corrections", "tips"},
		AdditionalProperties: false,
	}
}

// evaluationSchemaJSON adds the tip count bounds that jsonschema.Definition
// cannot express.
type evaluationSchemaJSON struct {
	jsonschema.Definition
}

func (s evaluationSchemaJSON) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(&s.Definition)
	if err != nil {
		return nil, err
	}

	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	properties, _ := schema["properties"].(map[string]any)
	tips, ok := properties["tips"].(map[string]any)
	if !ok {
		return nil, errors.New("evaluation schema has no tips property")
	}
	tips["minItems"] = EvaluationTips
	tips["maxItems"] = EvaluationTips

	return json.Marshal(schema)
}
