package suggest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Candidate is an unverified edit returned by the analysis provider. All
// five keys must be present in the payload; a candidate omitting any of
// them is rejected at the boundary rather than trusted downstream.
// Present-but-empty values are kept as the provider sent them.
type Candidate struct {
	RuleID         string `json:"rule_id"`
	Category       string `json:"category"`
	OriginalText   string `json:"original_text"`
	SuggestionText string `json:"suggestion_text"`
	Message        string `json:"message"`

	absent []string
}

// MissingFields lists the required keys the provider's payload omitted.
func (c Candidate) MissingFields() []string {
	return c.absent
}

// UnmarshalJSON records which required keys the payload omitted, so an
// absent key is distinguishable from an empty string value.
func (c *Candidate) UnmarshalJSON(data []byte) error {
	var wire struct {
		RuleID         *string `json:"rule_id"`
		Category       *string `json:"category"`
		OriginalText   *string `json:"original_text"`
		SuggestionText *string `json:"suggestion_text"`
		Message        *string `json:"message"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	c.absent = nil
	take := func(key string, v *string) string {
		if v == nil {
			c.absent = append(c.absent, key)
			return ""
		}
		return *v
	}
	c.RuleID = take("rule_id", wire.RuleID)
	c.Category = take("category", wire.Category)
	c.OriginalText = take("original_text", wire.OriginalText)
	c.SuggestionText = take("suggestion_text", wire.SuggestionText)
	c.Message = take("message", wire.Message)
	return nil
}

// ParseCandidates decodes the provider's response text into candidates.
// The model is prompted for a bare JSON array but sometimes wraps it in
// a markdown code fence or surrounds it with prose, so both are
// tolerated. A payload with no parseable JSON array is an error; field
// validation is left to the caller so it can report per-candidate.
func ParseCandidates(raw string) ([]Candidate, error) {
	cleaned := extractJSONArray(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("no JSON array in provider response")
	}

	var candidates []Candidate
	if err := json.Unmarshal([]byte(cleaned), &candidates); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}
	return candidates, nil
}

// extractJSONArray strips markdown fences and surrounding prose,
// returning the outermost bracketed array or "" if none exists.
func extractJSONArray(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
