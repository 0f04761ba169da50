package suggest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

// ErrDocumentNotFound is returned when the document does not exist or
// belongs to another profile. The two cases are indistinguishable so
// non-owners cannot probe for existence.
var ErrDocumentNotFound = errors.New("document not found or access denied")

// ValidationError reports a request-level limit violation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Paragraph is one unit of text submitted for analysis. BaseOffset is
// the character position where the paragraph begins within the full
// document; it is caller-supplied and trusted as-is.
type Paragraph struct {
	ID         string `json:"paragraph_id"`
	Text       string `json:"text_content"`
	BaseOffset int    `json:"base_offset"`
}

// Suggestion is a verified edit anchored to document-wide offsets.
type Suggestion struct {
	ID                  string `json:"suggestion_id"`
	RuleID              string `json:"rule_id"`
	Category            string `json:"category"`
	OriginalText        string `json:"original_text"`
	SuggestionText      string `json:"suggestion_text"`
	Message             string `json:"message"`
	GlobalStart         int    `json:"global_start"`
	GlobalEnd           int    `json:"global_end"`
	DismissalIdentifier string `json:"dismissal_identifier"`
}

// Result is the outcome of one analyze call. Errors holds per-paragraph
// and per-candidate problems that did not abort the request.
type Result struct {
	Suggestions    []Suggestion `json:"suggestions"`
	ProcessedCount int          `json:"total_paragraphs_processed"`
	Errors         []string     `json:"errors"`
}

// ParagraphAnalyzer produces candidate edits for one paragraph.
type ParagraphAnalyzer interface {
	AnalyzeParagraph(ctx context.Context, text string) ([]Candidate, error)
}

// DocumentStore is the ownership-check surface the pipeline needs.
type DocumentStore interface {
	GetDocument(ctx context.Context, profileID, documentID string) (store.Document, error)
}

// Pipeline orchestrates paragraph analysis, span assignment, and
// dismissal filtering for one document.
type Pipeline struct {
	documents DocumentStore
	registry  *Registry
	analyzer  ParagraphAnalyzer

	maxParagraphs     int
	maxParagraphChars int
}

// NewPipeline wires a pipeline from its collaborators.
func NewPipeline(documents DocumentStore, registry *Registry, analyzer ParagraphAnalyzer, maxParagraphs, maxParagraphChars int) *Pipeline {
	return &Pipeline{
		documents:         documents,
		registry:          registry,
		analyzer:          analyzer,
		maxParagraphs:     maxParagraphs,
		maxParagraphChars: maxParagraphChars,
	}
}

// Analyze runs the suggestion pipeline over the given paragraphs.
//
// Request-level validation failures and a missing document are hard
// errors. Everything below that level is isolated: a failing analysis
// call or an invalid candidate contributes to Result.Errors and costs
// only its own suggestions, never its siblings'.
func (p *Pipeline) Analyze(ctx context.Context, profileID, documentID string, paragraphs []Paragraph) (*Result, error) {
	if len(paragraphs) > p.maxParagraphs {
		return nil, &ValidationError{Message: fmt.Sprintf("Too many paragraphs. Maximum %d allowed.", p.maxParagraphs)}
	}
	for _, para := range paragraphs {
		if utf8.RuneCountInString(para.Text) > p.maxParagraphChars {
			return nil, &ValidationError{Message: fmt.Sprintf("Paragraph too long. Maximum %d characters allowed.", p.maxParagraphChars)}
		}
	}

	if _, err := p.documents.GetDocument(ctx, profileID, documentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("load document: %w", err)
	}

	dismissed, err := p.registry.Dismissed(ctx, profileID, documentID)
	if err != nil {
		return nil, err
	}

	// Empty paragraphs are skipped silently, not analyzed and not errored
	nonEmpty := make([]Paragraph, 0, len(paragraphs))
	for _, para := range paragraphs {
		if strings.TrimSpace(para.Text) != "" {
			nonEmpty = append(nonEmpty, para)
		}
	}

	type paragraphOutcome struct {
		candidates []Candidate
		err        error
	}
	outcomes := make([]paragraphOutcome, len(nonEmpty))

	// Fan out one analysis call per paragraph. Failures are recorded
	// per index instead of returned so one paragraph cannot cancel the
	// others through the group.
	var g errgroup.Group
	for i, para := range nonEmpty {
		g.Go(func() error {
			candidates, err := p.analyzer.AnalyzeParagraph(ctx, para.Text)
			outcomes[i] = paragraphOutcome{candidates: candidates, err: err}
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{
		Suggestions:    []Suggestion{},
		ProcessedCount: len(nonEmpty),
		Errors:         []string{},
	}

	for i, para := range nonEmpty {
		outcome := outcomes[i]
		if outcome.err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to analyze paragraph %s: %v", para.ID, outcome.err))
			continue
		}

		// Span claims reset per paragraph, not shared document-wide
		var used []Span

		for _, candidate := range outcome.candidates {
			if missing := candidate.MissingFields(); len(missing) > 0 {
				result.Errors = append(result.Errors, fmt.Sprintf("Missing fields %v in suggestion for paragraph %s", missing, para.ID))
				continue
			}

			positions := FindPositions(para.Text, candidate.OriginalText)
			if len(positions) == 0 {
				// The model's text need not match verbatim; benign
				continue
			}

			span, ok := SelectBestPosition(positions, used)
			if !ok {
				// All occurrences claimed by earlier candidates; benign
				continue
			}
			used = append(used, span)

			identifier := DismissalIdentifier(candidate.OriginalText, candidate.RuleID)
			if _, suppressed := dismissed[identifier]; suppressed {
				continue
			}

			result.Suggestions = append(result.Suggestions, Suggestion{
				ID:                  util.NewID("sug"),
				RuleID:              candidate.RuleID,
				Category:            candidate.Category,
				OriginalText:        candidate.OriginalText,
				SuggestionText:      candidate.SuggestionText,
				Message:             candidate.Message,
				GlobalStart:         para.BaseOffset + span.Start,
				GlobalEnd:           para.BaseOffset + span.End,
				DismissalIdentifier: identifier,
			})
		}
	}

	return result, nil
}
