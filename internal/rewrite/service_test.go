package rewrite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"inkwell/api/internal/llm"
	"inkwell/api/internal/store"
)

type fakeDocumentStore struct {
	getFn func(ctx context.Context, profileID, documentID string) (store.Document, error)
}

func (f *fakeDocumentStore) GetDocument(ctx context.Context, profileID, documentID string) (store.Document, error) {
	return f.getFn(ctx, profileID, documentID)
}

type fakeLLM struct {
	createFn func(ctx context.Context, req llm.MessageRequest) (*llm.MessageResponse, error)
}

func (f *fakeLLM) CreateMessage(ctx context.Context, req llm.MessageRequest) (*llm.MessageResponse, error) {
	return f.createFn(ctx, req)
}

func textResponse(text string) *llm.MessageResponse {
	return &llm.MessageResponse{Content: []llm.ContentBlock{{Type: "text", Text: text}}}
}

func ownedDocument() *fakeDocumentStore {
	return &fakeDocumentStore{
		getFn: func(ctx context.Context, profileID, documentID string) (store.Document, error) {
			return store.Document{ID: documentID, ProfileID: profileID}, nil
		},
	}
}

const testDoc = "The quick brown fox jumps over the lazy dog every single morning.\n\nMeanwhile the cat watches quietly from the windowsill, unimpressed by all of it."

func TestRewriteForLength(t *testing.T) {
	client := &fakeLLM{
		createFn: func(ctx context.Context, req llm.MessageRequest) (*llm.MessageResponse, error) {
			return textResponse("Rewritten paragraph text here."), nil
		},
	}
	svc := NewService(ownedDocument(), client, "test-model")

	result, err := svc.RewriteForLength(context.Background(), "prof-1", LengthRequest{
		DocumentID:   "doc-1",
		FullText:     testDoc,
		TargetLength: 15,
		Unit:         UnitWords,
	})
	if err != nil {
		t.Fatalf("RewriteForLength() error = %v", err)
	}

	if result.Mode != ModeShorten {
		t.Errorf("mode = %q, want shorten", result.Mode)
	}
	if result.TotalParagraphs != 2 {
		t.Errorf("total paragraphs = %d, want 2", result.TotalParagraphs)
	}
	if len(result.ParagraphRewrites) != 2 {
		t.Fatalf("expected 2 rewrites, got %d", len(result.ParagraphRewrites))
	}
	for i, pr := range result.ParagraphRewrites {
		if pr.ParagraphID != i {
			t.Errorf("rewrite %d has paragraph id %d", i, pr.ParagraphID)
		}
		if pr.RewrittenText != "Rewritten paragraph text here." {
			t.Errorf("rewritten text = %q", pr.RewrittenText)
		}
		if pr.RewrittenLength != 4 {
			t.Errorf("rewritten length = %d, want 4", pr.RewrittenLength)
		}
	}
}

func TestRewriteForLengthProviderFailureFallsBack(t *testing.T) {
	client := &fakeLLM{
		createFn: func(ctx context.Context, req llm.MessageRequest) (*llm.MessageResponse, error) {
			return nil, errors.New("provider unavailable")
		},
	}
	svc := NewService(ownedDocument(), client, "test-model")

	result, err := svc.RewriteForLength(context.Background(), "prof-1", LengthRequest{
		DocumentID:   "doc-1",
		FullText:     testDoc,
		TargetLength: 15,
		Unit:         UnitWords,
	})
	if err != nil {
		t.Fatalf("RewriteForLength() error = %v", err)
	}
	for _, pr := range result.ParagraphRewrites {
		if pr.RewrittenText != pr.OriginalText {
			t.Errorf("failed rewrite should return original text, got %q", pr.RewrittenText)
		}
	}
}

func TestRewriteForLengthEmptyResponseFallsBack(t *testing.T) {
	client := &fakeLLM{
		createFn: func(ctx context.Context, req llm.MessageRequest) (*llm.MessageResponse, error) {
			return textResponse("   "), nil
		},
	}
	svc := NewService(ownedDocument(), client, "test-model")

	result, err := svc.RewriteForLength(context.Background(), "prof-1", LengthRequest{
		DocumentID:   "doc-1",
		FullText:     testDoc,
		TargetLength: 15,
		Unit:         UnitWords,
	})
	if err != nil {
		t.Fatalf("RewriteForLength() error = %v", err)
	}
	if result.ParagraphRewrites[0].RewrittenText != result.ParagraphRewrites[0].OriginalText {
		t.Error("blank model output should fall back to the original paragraph")
	}
}

func TestRewriteForLengthValidation(t *testing.T) {
	svc := NewService(ownedDocument(), &fakeLLM{}, "test-model")

	tests := []struct {
		name string
		req  LengthRequest
	}{
		{"bad unit", LengthRequest{DocumentID: "doc-1", FullText: testDoc, TargetLength: 15, Unit: "pages"}},
		{"zero target", LengthRequest{DocumentID: "doc-1", FullText: testDoc, TargetLength: 0, Unit: UnitWords}},
		{"empty text", LengthRequest{DocumentID: "doc-1", FullText: "", TargetLength: 15, Unit: UnitWords}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RewriteForLength(context.Background(), "prof-1", tt.req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestRewriteForLengthDocumentNotFound(t *testing.T) {
	documents := &fakeDocumentStore{
		getFn: func(ctx context.Context, profileID, documentID string) (store.Document, error) {
			return store.Document{}, sql.ErrNoRows
		},
	}
	svc := NewService(documents, &fakeLLM{}, "test-model")

	_, err := svc.RewriteForLength(context.Background(), "prof-1", LengthRequest{
		DocumentID:   "doc-other",
		FullText:     testDoc,
		TargetLength: 15,
		Unit:         UnitWords,
	})
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestRewriteForLengthSkipsShortParagraphs(t *testing.T) {
	var prompts []string
	client := &fakeLLM{
		createFn: func(ctx context.Context, req llm.MessageRequest) (*llm.MessageResponse, error) {
			prompts = append(prompts, req.Messages[0].Content)
			return textResponse("Rewritten."), nil
		},
	}
	svc := NewService(ownedDocument(), client, "test-model")

	// "Hi." is under the ten-character floor and must not be dispatched.
	text := "Hi.\n\nThis paragraph is comfortably long enough to be rewritten by the model."
	result, err := svc.RewriteForLength(context.Background(), "prof-1", LengthRequest{
		DocumentID:   "doc-1",
		FullText:     text,
		TargetLength: 8,
		Unit:         UnitWords,
	})
	if err != nil {
		t.Fatalf("RewriteForLength() error = %v", err)
	}
	if result.TotalParagraphs != 2 {
		t.Errorf("total paragraphs = %d, want 2", result.TotalParagraphs)
	}
	if len(result.ParagraphRewrites) != 1 {
		t.Fatalf("expected 1 rewrite, got %d", len(result.ParagraphRewrites))
	}
	if result.ParagraphRewrites[0].ParagraphID != 1 {
		t.Errorf("rewritten paragraph id = %d, want 1", result.ParagraphRewrites[0].ParagraphID)
	}
}

func TestRetryRewrite(t *testing.T) {
	var gotPrompt string
	var gotTemp float64
	client := &fakeLLM{
		createFn: func(ctx context.Context, req llm.MessageRequest) (*llm.MessageResponse, error) {
			gotPrompt = req.Messages[0].Content
			if req.Temperature != nil {
				gotTemp = *req.Temperature
			}
			return textResponse("A completely different phrasing of the idea."), nil
		},
	}
	svc := NewService(ownedDocument(), client, "test-model")

	result, err := svc.RetryRewrite(context.Background(), RetryRequest{
		OriginalParagraph:  "The meeting was attended by all of the team members without exception.",
		PreviousSuggestion: "Everyone on the team attended the meeting.",
		TargetLength:       8,
		Unit:               UnitWords,
	})
	if err != nil {
		t.Fatalf("RetryRewrite() error = %v", err)
	}
	if result.RewrittenText != "A completely different phrasing of the idea." {
		t.Errorf("rewritten text = %q", result.RewrittenText)
	}
	if gotTemp != retryTemperature {
		t.Errorf("temperature = %v, want %v", gotTemp, retryTemperature)
	}
	if !strings.Contains(gotPrompt, "avoid this approach") {
		t.Error("retry prompt should reference the previous suggestion")
	}
}

func TestRetryRewriteValidation(t *testing.T) {
	svc := NewService(ownedDocument(), &fakeLLM{}, "test-model")

	t.Run("paragraph too short", func(t *testing.T) {
		_, err := svc.RetryRewrite(context.Background(), RetryRequest{
			OriginalParagraph: "tiny",
			TargetLength:      8,
			Unit:              UnitWords,
		})
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("expected ValidationError, got %v", err)
		}
	})

	t.Run("paragraph too long", func(t *testing.T) {
		_, err := svc.RetryRewrite(context.Background(), RetryRequest{
			OriginalParagraph: strings.Repeat("x", 5001),
			TargetLength:      8,
			Unit:              UnitWords,
		})
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("expected ValidationError, got %v", err)
		}
	})

	t.Run("bad unit", func(t *testing.T) {
		_, err := svc.RetryRewrite(context.Background(), RetryRequest{
			OriginalParagraph: "a perfectly ordinary paragraph of text",
			TargetLength:      8,
			Unit:              "sentences",
		})
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("expected ValidationError, got %v", err)
		}
	})
}

func TestRewriteCallsAreTimeBounded(t *testing.T) {
	var captured llm.MessageRequest
	client := &fakeLLM{
		createFn: func(ctx context.Context, req llm.MessageRequest) (*llm.MessageResponse, error) {
			captured = req
			return textResponse("The fox jumps over the dog each morning."), nil
		},
	}
	svc := NewService(ownedDocument(), client, "test-model")

	_, err := svc.RewriteForLength(context.Background(), "prof-1", LengthRequest{
		DocumentID:   "doc-1",
		FullText:     "The quick brown fox jumps over the lazy dog every single morning.",
		TargetLength: 8,
		Unit:         UnitWords,
	})
	if err != nil {
		t.Fatalf("RewriteForLength() error = %v", err)
	}
	if captured.Timeout != rewriteTimeout {
		t.Errorf("request timeout = %v, want %v", captured.Timeout, rewriteTimeout)
	}
}
