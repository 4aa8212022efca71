package llm

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPreview(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "Hello there", "Hello there"},
		{"ascii truncated", strings.Repeat("a", 60), strings.Repeat("a", 50)},
		{"multibyte kept whole", strings.Repeat("é", 60), strings.Repeat("é", 50)},
		{"emoji at the boundary", strings.Repeat("a", 49) + "🙂🙂", strings.Repeat("a", 49) + "🙂"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preview(tt.in)
			if got != tt.want {
				t.Errorf("preview() = %q, want %q", got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("preview() returned invalid UTF-8 %q", got)
			}
		})
	}
}

func TestEvaluationPrompt_TipCount(t *testing.T) {
	prompt := EvaluationPrompt("I goes to school")
	if !strings.Contains(prompt, "exactly 3 short") {
		t.Errorf("expected the prompt to ask for %d tips: %s", EvaluationTips, prompt)
	}
	if !strings.Contains(prompt, `"I goes to school"`) {
		t.Error("expected the utterance quoted in the prompt")
	}
}
