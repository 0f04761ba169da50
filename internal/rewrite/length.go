// Package rewrite adjusts document text toward a target length by
// rewriting paragraphs with a language model.
package rewrite

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Measurement units accepted by the rewriter.
const (
	UnitWords      = "words"
	UnitCharacters = "characters"
)

// Rewrite modes.
const (
	ModeShorten  = "shorten"
	ModeLengthen = "lengthen"
)

// ValidationError reports a request-level problem with user-facing text.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var maxReasonableLength = map[string]int{
	UnitWords:      50000,
	UnitCharacters: 300000,
}

var minReasonableLength = map[string]int{
	UnitWords:      5,
	UnitCharacters: 20,
}

// CountWords counts whitespace-separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// CountCharacters counts characters over whitespace-normalized text,
// matching how the editor's page counter measures length.
func CountCharacters(text string) int {
	normalized := strings.Join(strings.Fields(text), " ")
	return utf8.RuneCountInString(normalized)
}

// TextLength measures text in the given unit.
func TextLength(text, unit string) (int, error) {
	switch strings.ToLower(unit) {
	case UnitWords:
		return CountWords(text), nil
	case UnitCharacters:
		return CountCharacters(text), nil
	default:
		return 0, fmt.Errorf("invalid unit %q: must be 'words' or 'characters'", unit)
	}
}

// DetermineMode picks the rewrite direction from current versus target
// length. Equal lengths default to shorten so the request still runs.
func DetermineMode(currentLength, targetLength int) string {
	if currentLength < targetLength {
		return ModeLengthen
	}
	return ModeShorten
}

// ValidateTargetLength checks the target and the text it applies to,
// returning a ValidationError describing the first problem found.
func ValidateTargetLength(targetLength int, unit, text string) error {
	if targetLength <= 0 {
		return &ValidationError{Message: "Target length must be greater than 0"}
	}

	u := strings.ToLower(unit)
	if targetLength > maxReasonableLength[u] {
		return &ValidationError{Message: fmt.Sprintf("Target length too large. Maximum is %d %s", maxReasonableLength[u], unit)}
	}
	if targetLength < minReasonableLength[u] {
		return &ValidationError{Message: fmt.Sprintf("Target length too small. Minimum is %d %s", minReasonableLength[u], unit)}
	}

	if strings.TrimSpace(text) == "" {
		return &ValidationError{Message: "Please write some content before using length tools"}
	}

	currentLength, err := TextLength(text, unit)
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}
	if currentLength < minReasonableLength[u] {
		return &ValidationError{Message: fmt.Sprintf("Document too short to rewrite. Write at least %d %s first", minReasonableLength[u], unit)}
	}

	return nil
}

// SplitParagraphs splits text on blank lines, dropping empty segments.
func SplitParagraphs(text string) []string {
	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		if t := strings.TrimSpace(p); t != "" {
			paragraphs = append(paragraphs, t)
		}
	}
	return paragraphs
}

// ParagraphTarget distributes the document-level target across a
// paragraph in proportion to its share of the original document,
// floored so no paragraph is asked to shrink below a viable size.
func ParagraphTarget(paragraph string, originalDocLength, targetDocLength int, unit string) int {
	paragraphLength, err := TextLength(paragraph, unit)
	if err != nil {
		paragraphLength = 0
	}

	proportion := 0.0
	if originalDocLength > 0 {
		proportion = float64(paragraphLength) / float64(originalDocLength)
	}
	target := int(float64(targetDocLength) * proportion)

	minLength := minReasonableLength[strings.ToLower(unit)]
	if target < minLength {
		return minLength
	}
	return target
}
