package llm

import (
	"fmt"
	"unicode/utf8"
)

// Sampling parameters shared by every provider. They favour varied but
// coherent short replies.
const (
	Temperature     = 0.7
	TopP            = 0.95
	TopK            = 40
	MaxOutputTokens = 256
)

// EvaluationTips is the number of improvement tips an assessment carries
const EvaluationTips = 3

// FallbackReply is returned when the service answers with an empty body
const FallbackReply = "Sorry, I didn't quite get that. Could you say it again in a different way?"

// SystemInstruction constrains the assistant to short, corrective replies
const SystemInstruction = `You are a friendly English conversation partner helping a learner practise speaking for the IELTS exam.
Rules:
- Reply in 1 to 3 short sentences, like natural spoken conversation.
- If the learner made a grammar or vocabulary mistake, gently give the corrected version first, then continue the conversation.
- End with a simple follow-up question that keeps the learner talking.
- Never use lists, markdown or emojis; your reply will be read aloud.`

// EvaluationPrompt builds the single-turn examiner prompt for one utterance
func EvaluationPrompt(utterance string) string {
	return fmt.Sprintf(`Act as a certified IELTS speaking examiner. Assess the following spoken answer from a learner.

Answer: %q

Return a JSON object with:
- band_score: the IELTS speaking band from 0 to 9 in steps of 0.5
- feedback: two or three sentences on fluency, vocabulary, grammar and pronunciation cues visible in the text
- grammar_corrections: every grammatical error as {"original": ..., "corrected": ...}, empty if none
- tips: exactly %d short, concrete tips to reach the next band`, utterance, EvaluationTips)
}

// preview keeps the first 50 characters for logging
func preview(s string) string {
	const limit = 50
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
