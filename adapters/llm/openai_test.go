package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/speakup/domain/repositories"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	ResponseFormat *struct {
		Type       string `json:"type"`
		JSONSchema struct {
			Strict bool `json:"strict"`
			Schema struct {
				Properties struct {
					Tips struct {
						Type     string `json:"type"`
						MinItems int    `json:"minItems"`
						MaxItems int    `json:"maxItems"`
					} `json:"tips"`
				} `json:"properties"`
			} `json:"schema"`
		} `json:"json_schema"`
	} `json:"response_format"`
}

func newOpenAITestServer(t *testing.T, status int, content string, captured *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if captured != nil {
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				t.Errorf("Failed to decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
			return
		}
		body, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-test",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
		w.Write(body)
	}))
}

func newTestOpenAIClient(t *testing.T, serverURL string) *OpenAIClient {
	t.Helper()
	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: serverURL + "/v1"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	return client
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIClient(OpenAIConfig{}, zaptest.NewLogger(t)); err == nil {
		t.Error("Expected error when API key is missing")
	}
}

func TestOpenAIClient_SendTurn(t *testing.T) {
	var captured chatRequest
	server := newOpenAITestServer(t, http.StatusOK, "Nice! What else?", &captured)
	defer server.Close()

	client := newTestOpenAIClient(t, server.URL)
	history := testHistory()

	reply, err := client.SendTurn(context.Background(), history)
	if err != nil {
		t.Fatalf("SendTurn() error = %v", err)
	}
	if reply != "Nice! What else?" {
		t.Errorf("Unexpected reply %q", reply)
	}

	if len(captured.Messages) != len(history)+1 {
		t.Fatalf("Expected system + %d turns, got %d messages", len(history), len(captured.Messages))
	}
	wantRoles := []string{"system", "assistant", "user", "assistant", "user"}
	for i, msg := range captured.Messages {
		if msg.Role != wantRoles[i] {
			t.Errorf("Message %d: expected role %s, got %s", i, wantRoles[i], msg.Role)
		}
	}
	if captured.Model != defaultOpenAIModel {
		t.Errorf("Expected model %s, got %s", defaultOpenAIModel, captured.Model)
	}
}

func TestOpenAIClient_SendTurn_Fallback(t *testing.T) {
	server := newOpenAITestServer(t, http.StatusOK, "   ", nil)
	defer server.Close()

	reply, err := newTestOpenAIClient(t, server.URL).SendTurn(context.Background(), testHistory())
	if err != nil {
		t.Fatalf("SendTurn() error = %v", err)
	}
	if reply != FallbackReply {
		t.Errorf("Expected fallback reply, got %q", reply)
	}
}

func TestOpenAIClient_SendTurn_ServerError(t *testing.T) {
	server := newOpenAITestServer(t, http.StatusInternalServerError, "", nil)
	defer server.Close()

	_, err := newTestOpenAIClient(t, server.URL).SendTurn(context.Background(), testHistory())
	if !errors.Is(err, repositories.ErrServiceUnreachable) {
		t.Errorf("Expected ErrServiceUnreachable, got %v", err)
	}
}

func TestOpenAIClient_Evaluate(t *testing.T) {
	var captured chatRequest
	payload := `{"band_score":6.5,"feedback":"Clear.","grammar_corrections":[],"tips":["a","b","c"]}`
	server := newOpenAITestServer(t, http.StatusOK, payload, &captured)
	defer server.Close()

	result, err := newTestOpenAIClient(t, server.URL).Evaluate(context.Background(), "I like reading books")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.BandScore != 6.5 || len(result.Tips) != 3 {
		t.Errorf("Unexpected result %+v", result)
	}
	if captured.ResponseFormat == nil || captured.ResponseFormat.Type != "json_schema" {
		t.Fatal("Expected a json_schema response format")
	}
	tips := captured.ResponseFormat.JSONSchema.Schema.Properties.Tips
	if tips.Type != "array" || tips.MinItems != EvaluationTips || tips.MaxItems != EvaluationTips {
		t.Errorf("Expected tips bounded to %d items, got %+v", EvaluationTips, tips)
	}
	if !captured.ResponseFormat.JSONSchema.Strict {
		t.Error("Expected a strict schema")
	}
}

func TestOpenAIClient_Evaluate_BadPayload(t *testing.T) {
	server := newOpenAITestServer(t, http.StatusOK, "not json", nil)
	defer server.Close()

	_, err := newTestOpenAIClient(t, server.URL).Evaluate(context.Background(), "hello")
	if !errors.Is(err, repositories.ErrEvaluationFailed) {
		t.Errorf("Expected ErrEvaluationFailed, got %v", err)
	}
}
