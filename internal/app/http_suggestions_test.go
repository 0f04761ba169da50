package app

import (
	"context"
	"net/http"
	"testing"

	"inkwell/api/internal/config"
	"inkwell/api/internal/suggest"
)

func analyzeBody(documentID string) map[string]any {
	return map[string]any{
		"document_id": documentID,
		"paragraphs": []map[string]any{
			{"paragraph_id": "p1", "text_content": "teh cat sat", "base_offset": 0},
		},
	}
}

func stubTypoCandidate(env *testEnv) {
	env.analyzer.fn = func(_ context.Context, text string) ([]suggest.Candidate, error) {
		return []suggest.Candidate{{
			RuleID:         "SPELL_1",
			Category:       "spelling",
			OriginalText:   "teh",
			SuggestionText: "the",
			Message:        "Possible typo",
		}}, nil
	}
}

func TestAnalyzeSuggestions(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.signUpVerified(t, "analyze@example.com")
	documentID := env.createDocument(t, token, "Draft", "<p>teh cat sat</p>")
	stubTypoCandidate(env)

	rec := env.do(t, http.MethodPost, "/api/suggestions/analyze", token, analyzeBody(documentID))
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze status = %d, body %s", rec.Code, rec.Body.String())
	}
	payload := decodeResponse(t, rec)
	suggestions, _ := payload["suggestions"].([]any)
	if len(suggestions) != 1 {
		t.Fatalf("suggestions = %v", payload)
	}
	first, _ := suggestions[0].(map[string]any)
	if first["original_text"] != "teh" || first["suggestion_text"] != "the" {
		t.Fatalf("suggestion = %v", first)
	}
	if first["global_start"] != float64(0) || first["global_end"] != float64(3) {
		t.Fatalf("span = %v..%v", first["global_start"], first["global_end"])
	}
	if payload["total_paragraphs_processed"] != float64(1) {
		t.Fatalf("processed = %v", payload["total_paragraphs_processed"])
	}
}

func TestAnalyzeUnknownDocument(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.signUpVerified(t, "missing@example.com")
	stubTypoCandidate(env)

	rec := env.do(t, http.MethodPost, "/api/suggestions/analyze", token, analyzeBody("doc_nope"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("analyze status = %d, want 404", rec.Code)
	}
}

func TestAnalyzeTooManyParagraphs(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.MaxParagraphs = 2 })
	token := env.signUpVerified(t, "caps@example.com")
	documentID := env.createDocument(t, token, "Draft", "<p>x</p>")

	paragraphs := make([]map[string]any, 3)
	for i := range paragraphs {
		paragraphs[i] = map[string]any{"paragraph_id": "p", "text_content": "some text", "base_offset": 0}
	}
	rec := env.do(t, http.MethodPost, "/api/suggestions/analyze", token, map[string]any{
		"document_id": documentID,
		"paragraphs":  paragraphs,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("analyze status = %d, want 400", rec.Code)
	}
}

func TestDismissSuppressesSuggestion(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.signUpVerified(t, "dismiss@example.com")
	documentID := env.createDocument(t, token, "Draft", "<p>teh cat sat</p>")
	stubTypoCandidate(env)

	rec := env.do(t, http.MethodPost, "/api/suggestions/dismiss", token, map[string]string{
		"document_id":   documentID,
		"original_text": "teh",
		"rule_id":       "SPELL_1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("dismiss status = %d, body %s", rec.Code, rec.Body.String())
	}
	payload := decodeResponse(t, rec)
	if payload["dismissal_identifier"] != "teh|SPELL_1" {
		t.Fatalf("identifier = %v", payload["dismissal_identifier"])
	}

	rec = env.do(t, http.MethodPost, "/api/suggestions/analyze", token, analyzeBody(documentID))
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze status = %d", rec.Code)
	}
	suggestions, _ := decodeResponse(t, rec)["suggestions"].([]any)
	if len(suggestions) != 0 {
		t.Fatalf("dismissed suggestion resurfaced: %v", suggestions)
	}
}

func TestClearDismissals(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.signUpVerified(t, "clear@example.com")
	documentID := env.createDocument(t, token, "Draft", "<p>teh cat sat</p>")
	stubTypoCandidate(env)

	env.do(t, http.MethodPost, "/api/suggestions/dismiss", token, map[string]string{
		"document_id":   documentID,
		"original_text": "teh",
		"rule_id":       "SPELL_1",
	})

	rec := env.do(t, http.MethodDelete, "/api/suggestions/dismissed/"+documentID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d, body %s", rec.Code, rec.Body.String())
	}
	payload := decodeResponse(t, rec)
	if payload["cleared_count"] != float64(1) {
		t.Fatalf("cleared_count = %v", payload["cleared_count"])
	}

	rec = env.do(t, http.MethodPost, "/api/suggestions/analyze", token, analyzeBody(documentID))
	suggestions, _ := decodeResponse(t, rec)["suggestions"].([]any)
	if len(suggestions) != 1 {
		t.Fatalf("suggestion should return after clearing, got %v", suggestions)
	}
}

func TestAnalyzeRateLimited(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.SuggestionLimitPerHour = 1 })
	token := env.signUpVerified(t, "limited@example.com")
	documentID := env.createDocument(t, token, "Draft", "<p>teh cat sat</p>")
	stubTypoCandidate(env)

	rec := env.do(t, http.MethodPost, "/api/suggestions/analyze", token, analyzeBody(documentID))
	if rec.Code != http.StatusOK {
		t.Fatalf("first analyze status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/suggestions/analyze", token, analyzeBody(documentID))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second analyze status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("429 response missing Retry-After header")
	}
	payload := decodeResponse(t, rec)
	if payload["error"] != "rate_limit_exceeded" {
		t.Fatalf("error = %v", payload["error"])
	}
	if payload["current_usage"] != float64(1) || payload["limit"] != float64(1) {
		t.Fatalf("usage = %v/%v", payload["current_usage"], payload["limit"])
	}
	if payload["retry_after_seconds"] == nil {
		t.Fatal("missing retry_after_seconds")
	}
}
