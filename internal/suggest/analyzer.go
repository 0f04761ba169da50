package suggest

import (
	"context"
	"time"

	"inkwell/api/internal/llm"
)

const analysisSystemPrompt = `You are an expert writing assistant that analyzes text for spelling, grammar, and style improvements.

For each piece of text, identify specific issues and provide suggestions. Return your response as a JSON array where each suggestion object has these exact fields:

{
    "rule_id": "category:specific_rule_name",
    "category": "spelling|grammar|style",
    "original_text": "exact text that needs changing",
    "suggestion_text": "replacement text",
    "message": "clear explanation of the issue"
}

Rules:
- rule_id format: "category:specific_rule" (e.g., "grammar:subject_verb_agreement", "spelling:misspelled_word", "style:passive_voice")
- original_text must be the EXACT text from the input that needs changing (case-sensitive, including punctuation)
- Only suggest changes that genuinely improve the text
- Focus on clear, actionable improvements
- Return empty array [] if no suggestions are needed

Example response:
[
    {
        "rule_id": "grammar:its_vs_its",
        "category": "grammar",
        "original_text": "Its",
        "suggestion_text": "It's",
        "message": "Use 'It's' (contraction) instead of 'Its' (possessive) here"
    }
]`

const (
	analysisMaxTokens   = 1000
	analysisTemperature = 0.1
	analysisTimeout     = 10 * time.Second
)

// Analyzer asks the model for candidate edits on a single paragraph.
type Analyzer struct {
	client llm.Client
	model  string
}

// NewAnalyzer creates an analyzer using the given client and model ID.
func NewAnalyzer(client llm.Client, model string) *Analyzer {
	return &Analyzer{client: client, model: model}
}

// AnalyzeParagraph returns the candidate edits the model proposes for
// the paragraph text. A transport failure or an unparseable response is
// returned as an error for the caller to isolate per paragraph.
func (a *Analyzer) AnalyzeParagraph(ctx context.Context, text string) ([]Candidate, error) {
	resp, err := a.client.CreateMessage(ctx, llm.MessageRequest{
		Model:       a.model,
		MaxTokens:   analysisMaxTokens,
		System:      analysisSystemPrompt,
		Temperature: llm.Temp(analysisTemperature),
		Timeout:     analysisTimeout,
		Messages: []llm.Message{
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return nil, err
	}
	return ParseCandidates(resp.Text())
}
