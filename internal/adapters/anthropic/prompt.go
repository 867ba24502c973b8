package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/insightlab/insightd/internal/domain/model"
)

// systemPrompt instructs the model to answer with a single JSON object so the
// response can be decoded without free-text scraping.
const systemPrompt = `You are a business analyst. Analyze the data and return JSON only:

{
  "summary": "2-3 sentence summary",
  "insights": [{"title": "brief", "description": "concise", "category": "type", "priority": "high|medium|low"}],
  "next_actions": [{"action": "brief action", "priority": "high|medium|low", "rationale": "short reason"}],
  "confidence_score": 0.0-1.0
}

Be concise and actionable. Prioritize by importance.`

// promptTokenBudget caps the user prompt size; overlong prompts are truncated
// from the middle so both the data head and the trailing notes survive.
const promptTokenBudget = 6000

// buildUserPrompt renders the record's structured data and notes into the
// prompt body sent to the model.
func buildUserPrompt(req model.AnalyzeRequest) string {
	var parts []string

	if data, ok := req.StructuredData["data"]; ok && data != nil {
		raw, err := json.MarshalIndent(data, "", "  ")
		if err == nil {
			parts = append(parts, "## Data", string(raw))
		}
	}

	if len(req.Notes) > 0 {
		parts = append(parts, "## Notes")
		for _, note := range req.Notes {
			parts = append(parts, fmt.Sprintf("- %s", strings.TrimSpace(note)))
		}
	}

	parts = append(parts, "\nAnalyze and return JSON only.")
	return truncateIfNeeded(strings.Join(parts, "\n"), promptTokenBudget)
}

// estimateTokens approximates token count at 4 characters per token, which is
// close enough for budget enforcement on English text.
func estimateTokens(text string) int {
	return len(text) / 4
}

// truncateIfNeeded trims oversized prompts from the middle, preserving the
// beginning and end of the content.
func truncateIfNeeded(text string, maxTokens int) string {
	if estimateTokens(text) <= maxTokens {
		return text
	}

	maxChars := maxTokens * 4
	half := maxChars / 2
	return text[:half] + "\n\n[... content truncated for length ...]\n\n" + text[len(text)-half:]
}
