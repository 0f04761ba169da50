package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/authpw"
	"inkwell/api/internal/export"
	"inkwell/api/internal/importer"
	"inkwell/api/internal/ratelimit"
	"inkwell/api/internal/rewrite"
	"inkwell/api/internal/suggest"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/verify-email" {
		s.handleAuthVerifyEmail(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password/request" {
		s.handleAuthRequestReset(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password" {
		s.handleAuthResetPassword(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"profileId":     session.ProfileID,
			"email":         session.Email,
			"displayName":   session.DisplayName,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"accessToken":  session.Token,
			"refreshToken": session.RefreshToken,
			"expiresAt":    session.ExpiresAt.Unix(),
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		session := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				session = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	// Everything below requires an authenticated session.
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/profile" {
		payload, err := s.service.Profile(r.Context(), session.ProfileID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.URL.Path == "/api/documents" {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListDocuments(r.Context(), session.ProfileID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list documents", nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"documents": items})
		case http.MethodPost:
			var body struct {
				Title   string `json:"title"`
				Content string `json:"content"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateDocument(r.Context(), session.ProfileID, body.Title, body.Content)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	parts := splitPath(r.URL.Path)

	// /api/documents/{id}[/versions[/{hash}] | /export]
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "documents" {
		documentID := parts[2]
		s.handleDocument(w, r, session, documentID, parts[3:])
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/suggestions/analyze" {
		s.handleAnalyze(w, r, session)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/suggestions/dismiss" {
		s.handleDismiss(w, r, session)
		return
	}

	if r.Method == http.MethodDelete && len(parts) == 4 && parts[0] == "api" && parts[1] == "suggestions" && parts[2] == "dismissed" {
		s.handleClearDismissals(w, r, session, parts[3])
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/rewrite/length" {
		s.handleRewriteLength(w, r, session)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/rewrite/retry" {
		s.handleRewriteRetry(w, r, session)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/import" {
		s.handleImport(w, r, session)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r, session)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleDocument(w http.ResponseWriter, r *http.Request, session Session, documentID string, rest []string) {
	switch {
	case len(rest) == 0:
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetDocument(r.Context(), session.ProfileID, documentID)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodPut:
			var body struct {
				Title   string `json:"title"`
				Content string `json:"content"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateDocument(r.Context(), session.ProfileID, documentID, body.Title, body.Content)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, payload)
		case http.MethodDelete:
			if err := s.service.DeleteDocument(r.Context(), session.ProfileID, documentID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}

	case len(rest) == 1 && rest[0] == "versions" && r.Method == http.MethodGet:
		payload, err := s.service.ListVersions(r.Context(), session.ProfileID, documentID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, payload)

	case len(rest) == 2 && rest[0] == "versions" && r.Method == http.MethodGet:
		payload, err := s.service.GetVersion(r.Context(), session.ProfileID, documentID, rest[1])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, payload)

	case len(rest) == 1 && rest[0] == "export" && r.Method == http.MethodPost:
		s.handleExport(w, r, session, documentID)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, session Session, documentID string) {
	var body struct {
		Format string `json:"format"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	result, err := s.service.ExportDocument(r.Context(), session.ProfileID, documentID, export.Format(strings.ToLower(body.Format)))
	if err != nil {
		switch {
		case errors.Is(err, export.ErrUnsupportedFormat):
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be one of txt, docx, pdf", nil)
		case errors.Is(err, export.ErrContentTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "CONTENT_TOO_LARGE", "Document is too large to export", nil)
		case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
			writeError(w, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export format is not available on this server", nil)
		default:
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
		}
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleAnalyze(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		DocumentID string              `json:"document_id"`
		Paragraphs []suggest.Paragraph `json:"paragraphs"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	result, err := s.service.AnalyzeSuggestions(r.Context(), session.ProfileID, body.DocumentID, body.Paragraphs)
	if err != nil {
		if writeRateLimited(w, err) {
			return
		}
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleDismiss(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		DocumentID   string `json:"document_id"`
		OriginalText string `json:"original_text"`
		RuleID       string `json:"rule_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.DocumentID == "" || body.OriginalText == "" || body.RuleID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "document_id, original_text and rule_id are required", nil)
		return
	}

	identifier, err := s.service.DismissSuggestion(r.Context(), session.ProfileID, body.DocumentID, body.OriginalText, body.RuleID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":              true,
		"dismissal_identifier": identifier,
	})
}

func (s *HTTPServer) handleClearDismissals(w http.ResponseWriter, r *http.Request, session Session, documentID string) {
	count, err := s.service.ClearDismissals(r.Context(), session.ProfileID, documentID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"cleared_count": count,
		"message":       fmt.Sprintf("Cleared %d dismissed suggestions", count),
	})
}

func (s *HTTPServer) handleRewriteLength(w http.ResponseWriter, r *http.Request, session Session) {
	var body rewrite.LengthRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	result, err := s.service.RewriteForLength(r.Context(), session.ProfileID, body)
	if err != nil {
		if writeRateLimited(w, err) {
			return
		}
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleRewriteRetry(w http.ResponseWriter, r *http.Request, session Session) {
	var body rewrite.RetryRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	result, err := s.service.RetryRewrite(r.Context(), session.ProfileID, body)
	if err != nil {
		if writeRateLimited(w, err) {
			return
		}
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleImport(w http.ResponseWriter, r *http.Request, session Session) {
	r.Body = http.MaxBytesReader(w, r.Body, importer.MaxFileSize+1024)
	if err := r.ParseMultipartForm(importer.MaxFileSize); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "Upload exceeds the 30MB limit", nil)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart field 'file' is required", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read uploaded file", nil)
		return
	}

	payload, err := s.service.ImportDocument(r.Context(), session.ProfileID, header.Filename, data)
	if err != nil {
		switch {
		case errors.Is(err, importer.ErrFileTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "Upload exceeds the 30MB limit", nil)
		case errors.Is(err, importer.ErrUnsupportedType):
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Only .txt, .pdf and .docx files are supported", nil)
		case errors.Is(err, importer.ErrEmptyDocument):
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "No text content found in file", nil)
		case errors.Is(err, importer.ErrDOCXDependencyMissing), errors.Is(err, importer.ErrPDFDependencyMissing):
			writeError(w, http.StatusServiceUnavailable, "IMPORT_UNAVAILABLE", "Import format is not available on this server", nil)
		default:
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
		}
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := 0
	offset := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		limit = parsed
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
			return
		}
		offset = parsed
	}

	writeJSON(w, http.StatusOK, s.service.SearchDocuments(session.ProfileID, query, limit, offset))
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// writeRateLimited renders a budget rejection with retry guidance.
// Returns false when err is not a rate-limit error.
func writeRateLimited(w http.ResponseWriter, err error) bool {
	var exceeded *ratelimit.ExceededError
	if !errors.As(err, &exceeded) {
		return false
	}
	w.Header().Set("Retry-After", strconv.Itoa(exceeded.RetryAfterSeconds))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":               "rate_limit_exceeded",
		"message":             fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", exceeded.RetryAfterSeconds),
		"current_usage":       exceeded.CurrentUsage,
		"limit":               exceeded.Limit,
		"retry_after_seconds": exceeded.RetryAfterSeconds,
	})
	return true
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var suggestValidation *suggest.ValidationError
	if errors.As(err, &suggestValidation) {
		return http.StatusBadRequest, "VALIDATION_ERROR", suggestValidation.Message, nil
	}
	var rewriteValidation *rewrite.ValidationError
	if errors.As(err, &rewriteValidation) {
		return http.StatusBadRequest, "VALIDATION_ERROR", rewriteValidation.Message, nil
	}
	if errors.Is(err, suggest.ErrDocumentNotFound) || errors.Is(err, rewrite.ErrDocumentNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Document not found", nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// Auth handlers for email/password authentication

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	resp, err := s.service.AuthPasswordService().SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		if err.Error() == "email already registered" {
			writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
		return
	}

	s.service.SendVerificationEmail(body.Email, body.DisplayName, resp.VerificationToken)

	response := map[string]any{
		"profileId": resp.ProfileID,
		"message":   "Please check your email to verify your account",
	}
	// Dev bypass: include verification token in response when email not configured
	if !s.service.SMTPConfigured() {
		response["devVerificationToken"] = resp.VerificationToken
		response["message"] = "Account created. Verify your email to continue."
	}

	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	resp, err := s.service.AuthPasswordService().SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		return
	}

	if resp.RequiresVerify {
		writeError(w, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Please verify your email before signing in", nil)
		return
	}

	session, err := s.service.CreateSession(r.Context(), resp.Profile.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SESSION_FAILED", "Failed to create session", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"profileId":    session.ProfileID,
		"email":        session.Email,
		"displayName":  session.DisplayName,
		"expiresAt":    session.ExpiresAt.Unix(),
	})
}

func (s *HTTPServer) handleAuthVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	if err := s.service.AuthPasswordService().VerifyEmail(r.Context(), body.Token); err != nil {
		writeError(w, http.StatusBadRequest, "VERIFICATION_FAILED", err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Email verified successfully",
	})
}

func (s *HTTPServer) handleAuthRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	token, _ := s.service.AuthPasswordService().RequestPasswordReset(r.Context(), body.Email)
	if token != "" {
		s.service.SendPasswordResetEmail(body.Email, "", token)
	}

	response := map[string]any{
		"message": "If an account exists, a reset email has been sent",
	}
	// Dev bypass: include reset token in response when email not configured and token was created
	if !s.service.SMTPConfigured() && token != "" {
		response["devResetToken"] = token
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	if err := s.service.AuthPasswordService().ResetPassword(r.Context(), authpw.ResetPasswordRequest{
		Token:       body.Token,
		NewPassword: body.NewPassword,
	}); err != nil {
		writeError(w, http.StatusBadRequest, "RESET_FAILED", err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password reset successfully",
	})
}
