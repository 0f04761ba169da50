package rewrite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"inkwell/api/internal/llm"
	"inkwell/api/internal/store"
)

// ErrDocumentNotFound is returned when the document does not exist or
// belongs to another profile.
var ErrDocumentNotFound = errors.New("document not found or access denied")

const (
	// Raw character bounds on a single paragraph eligible for rewriting.
	minParagraphChars = 10
	maxParagraphChars = 5000

	rewriteMaxTokens   = 2000
	rewriteTemperature = 0.3
	retryTemperature   = 0.5

	// Rewrite calls send full paragraphs and run longer than analysis.
	rewriteTimeout = 15 * time.Second
)

// LengthRequest asks for a whole document to be rewritten toward a
// target length.
type LengthRequest struct {
	DocumentID   string `json:"document_id"`
	FullText     string `json:"full_text"`
	TargetLength int    `json:"target_length"`
	Unit         string `json:"unit"`
	Mode         string `json:"mode,omitempty"`
}

// ParagraphRewrite is the outcome for one paragraph.
type ParagraphRewrite struct {
	ParagraphID     int    `json:"paragraph_id"`
	OriginalText    string `json:"original_text"`
	RewrittenText   string `json:"rewritten_text"`
	OriginalLength  int    `json:"original_length"`
	RewrittenLength int    `json:"rewritten_length"`
}

// LengthResult is the outcome of a document-level rewrite.
type LengthResult struct {
	DocumentID        string             `json:"document_id"`
	OriginalLength    int                `json:"original_length"`
	TargetLength      int                `json:"target_length"`
	Unit              string             `json:"unit"`
	Mode              string             `json:"mode"`
	ParagraphRewrites []ParagraphRewrite `json:"paragraph_rewrites"`
	TotalParagraphs   int                `json:"total_paragraphs"`
}

// RetryRequest asks for one paragraph to be rewritten again, avoiding
// the previous attempt's approach.
type RetryRequest struct {
	OriginalParagraph  string `json:"original_paragraph"`
	PreviousSuggestion string `json:"previous_suggestion"`
	TargetLength       int    `json:"target_length"`
	Unit               string `json:"unit"`
	Mode               string `json:"mode,omitempty"`
}

// RetryResult is the outcome of a retry.
type RetryResult struct {
	RewrittenText   string `json:"rewritten_text"`
	OriginalLength  int    `json:"original_length"`
	RewrittenLength int    `json:"rewritten_length"`
}

// DocumentStore is the ownership-check surface the rewriter needs.
type DocumentStore interface {
	GetDocument(ctx context.Context, profileID, documentID string) (store.Document, error)
}

// Service rewrites paragraphs to meet target lengths.
type Service struct {
	documents DocumentStore
	client    llm.Client
	model     string
}

// NewService wires a rewrite service from its collaborators.
func NewService(documents DocumentStore, client llm.Client, model string) *Service {
	return &Service{documents: documents, client: client, model: model}
}

// RewriteForLength rewrites every processable paragraph of the document
// toward a proportional share of the target length. Paragraph rewrites
// run concurrently; a failed model call falls back to the original
// paragraph text rather than failing the request.
func (s *Service) RewriteForLength(ctx context.Context, profileID string, req LengthRequest) (*LengthResult, error) {
	unit := strings.ToLower(req.Unit)
	if unit != UnitWords && unit != UnitCharacters {
		return nil, &ValidationError{Message: "Unit must be 'words' or 'characters'"}
	}

	if err := ValidateTargetLength(req.TargetLength, unit, req.FullText); err != nil {
		return nil, err
	}

	if _, err := s.documents.GetDocument(ctx, profileID, req.DocumentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("load document: %w", err)
	}

	originalLength, err := TextLength(req.FullText, unit)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	mode := strings.ToLower(req.Mode)
	if mode == "" {
		mode = DetermineMode(originalLength, req.TargetLength)
	}

	paragraphs := SplitParagraphs(req.FullText)
	if len(paragraphs) == 0 {
		return nil, &ValidationError{Message: "No paragraphs found in document"}
	}

	type indexed struct {
		index int
		text  string
	}
	var processable []indexed
	for i, p := range paragraphs {
		if n := len(p); n >= minParagraphChars && n <= maxParagraphChars {
			processable = append(processable, indexed{index: i, text: p})
		}
	}
	if len(processable) == 0 {
		return nil, &ValidationError{Message: "No paragraphs suitable for rewriting found"}
	}

	rewrites := make([]ParagraphRewrite, len(processable))
	var g errgroup.Group
	for i, para := range processable {
		g.Go(func() error {
			target := ParagraphTarget(para.text, originalLength, req.TargetLength, unit)
			rewritten := s.rewriteParagraph(ctx, para.text, target, unit, mode)

			origLen, _ := TextLength(para.text, unit)
			newLen, _ := TextLength(rewritten, unit)
			rewrites[i] = ParagraphRewrite{
				ParagraphID:     para.index,
				OriginalText:    para.text,
				RewrittenText:   rewritten,
				OriginalLength:  origLen,
				RewrittenLength: newLen,
			}
			return nil
		})
	}
	_ = g.Wait()

	return &LengthResult{
		DocumentID:        req.DocumentID,
		OriginalLength:    originalLength,
		TargetLength:      req.TargetLength,
		Unit:              unit,
		Mode:              mode,
		ParagraphRewrites: rewrites,
		TotalParagraphs:   len(paragraphs),
	}, nil
}

// RetryRewrite produces an alternative rewrite for a single paragraph.
// Retries are not tied to a stored document, so no ownership check.
func (s *Service) RetryRewrite(ctx context.Context, req RetryRequest) (*RetryResult, error) {
	unit := strings.ToLower(req.Unit)
	if unit != UnitWords && unit != UnitCharacters {
		return nil, &ValidationError{Message: "Unit must be 'words' or 'characters'"}
	}

	if len(req.OriginalParagraph) > maxParagraphChars {
		return nil, &ValidationError{Message: fmt.Sprintf("Paragraph too long (max %d characters)", maxParagraphChars)}
	}
	if len(req.OriginalParagraph) < minParagraphChars {
		return nil, &ValidationError{Message: fmt.Sprintf("Paragraph too short (min %d characters)", minParagraphChars)}
	}

	currentLength, err := TextLength(req.OriginalParagraph, unit)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	mode := strings.ToLower(req.Mode)
	if mode == "" {
		mode = DetermineMode(currentLength, req.TargetLength)
	}

	prompt := retryPrompt(req.OriginalParagraph, req.PreviousSuggestion, currentLength, req.TargetLength, unit, mode)
	rewritten := s.complete(ctx, prompt, retryTemperature, req.OriginalParagraph)

	newLen, _ := TextLength(rewritten, unit)
	return &RetryResult{
		RewrittenText:   rewritten,
		OriginalLength:  currentLength,
		RewrittenLength: newLen,
	}, nil
}

func (s *Service) rewriteParagraph(ctx context.Context, paragraph string, targetLength int, unit, mode string) string {
	currentLength, err := TextLength(paragraph, unit)
	if err != nil {
		return paragraph
	}
	prompt := rewritePrompt(paragraph, currentLength, targetLength, unit, mode)
	return s.complete(ctx, prompt, rewriteTemperature, paragraph)
}

// complete runs one model call and falls back to the given text when
// the call fails or returns nothing.
func (s *Service) complete(ctx context.Context, prompt string, temperature float64, fallback string) string {
	resp, err := s.client.CreateMessage(ctx, llm.MessageRequest{
		Model:       s.model,
		MaxTokens:   rewriteMaxTokens,
		Temperature: llm.Temp(temperature),
		Timeout:     rewriteTimeout,
		Messages: []llm.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return fallback
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return fallback
	}
	return text
}
