package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/authpw"
	"inkwell/api/internal/config"
	"inkwell/api/internal/email"
	"inkwell/api/internal/export"
	"inkwell/api/internal/gitrepo"
	"inkwell/api/internal/importer"
	"inkwell/api/internal/ratelimit"
	"inkwell/api/internal/rewrite"
	"inkwell/api/internal/search"
	"inkwell/api/internal/store"
	"inkwell/api/internal/suggest"
	"inkwell/api/internal/util"
)

// Session is an authenticated caller, resolved from an access token.
type Session struct {
	Token        string
	RefreshToken string
	ProfileID    string
	Email        string
	DisplayName  string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	Ping(ctx context.Context) error
	GetProfile(ctx context.Context, profileID string) (store.Profile, error)
	ListDocuments(ctx context.Context, profileID string) ([]store.Document, error)
	GetDocument(ctx context.Context, profileID, documentID string) (store.Document, error)
	InsertDocument(ctx context.Context, item store.Document) error
	UpdateDocument(ctx context.Context, profileID, documentID, title, content string) (store.Document, error)
	DeleteDocument(ctx context.Context, profileID, documentID string) (bool, error)
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// sessionStore holds refresh sessions. Redis when configured, Postgres
// otherwise; the redis lookup returns only the profile ID.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, profileID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.Profile, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type versioner interface {
	EnsureDocumentRepo(documentID string, initial gitrepo.Snapshot, author string) error
	CommitSnapshot(documentID string, snapshot gitrepo.Snapshot, author, message string) (gitrepo.VersionInfo, error)
	History(documentID string, limit int) ([]gitrepo.VersionInfo, error)
	GetSnapshot(documentID, hash string) (gitrepo.Snapshot, error)
	DeleteDocumentRepo(documentID string) error
}

// Deps bundles the collaborating services the app layer orchestrates.
type Deps struct {
	Store    *store.PostgresStore
	Sessions sessionStore
	Git      *gitrepo.Service
	Auth     *authpw.Service
	Email    *email.Service
	Pipeline *suggest.Pipeline
	Registry *suggest.Registry
	Rewriter *rewrite.Service
	Gate     *ratelimit.Gate
	Exporter *export.Service
	Importer *importer.Service
	Search   *search.Service
}

// Service implements the application use cases behind the HTTP layer.
type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	git      versioner
	authpw   *authpw.Service
	email    *email.Service
	pipeline *suggest.Pipeline
	registry *suggest.Registry
	rewriter *rewrite.Service
	gate     *ratelimit.Gate
	exporter *export.Service
	importer *importer.Service
	search   *search.Service
}

func New(cfg config.Config, deps Deps) *Service {
	sessions := deps.Sessions
	if sessions == nil {
		sessions = deps.Store
	}
	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		sessions: sessions,
		git:      deps.Git,
		authpw:   deps.Auth,
		email:    deps.Email,
		pipeline: deps.Pipeline,
		registry: deps.Registry,
		rewriter: deps.Rewriter,
		gate:     deps.Gate,
		exporter: deps.Exporter,
		importer: deps.Importer,
		search:   deps.Search,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// AuthPasswordService exposes the email-password auth flows.
func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

// SMTPConfigured reports whether outbound email is available. When it
// is not, verification and reset tokens are returned in API responses
// as a development bypass.
func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

// SendVerificationEmail delivers the sign-up verification link.
// Failures are logged, not surfaced; the token stays valid either way.
func (s *Service) SendVerificationEmail(to, displayName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := fmt.Sprintf("%s/verify-email?token=%s", strings.TrimRight(s.cfg.AppBaseURL, "/"), token)
	if err := s.email.SendVerificationEmail(to, displayName, url); err != nil {
		log.Printf("email: send verification to %s: %v", to, err)
	}
}

// SendPasswordResetEmail delivers the password reset link.
func (s *Service) SendPasswordResetEmail(to, displayName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(s.cfg.AppBaseURL, "/"), token)
	if err := s.email.SendPasswordResetEmail(to, displayName, url); err != nil {
		log.Printf("email: send password reset to %s: %v", to, err)
	}
}

// CreateSession issues an access token and a refresh token for the profile.
func (s *Service) CreateSession(ctx context.Context, profileID string) (Session, error) {
	profile, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, profile)
}

func (s *Service) issueSession(ctx context.Context, profile store.Profile) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   profile.ID,
		Email: profile.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), profile.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		ProfileID:    profile.ID,
		Email:        profile.Email,
		DisplayName:  profile.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// Refresh rotates a refresh token and issues a new session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	found, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	// The redis session store carries only the profile ID.
	profile, err := s.store.GetProfile(ctx, found.ID)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, profile)
}

// SessionFromToken validates an access token and loads its profile.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	profile, err := s.store.GetProfile(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:       token,
		ProfileID:   profile.ID,
		Email:       profile.Email,
		DisplayName: profile.DisplayName,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes the access token and, when present, the refresh token.
func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// Profile returns the caller's profile fields.
func (s *Service) Profile(ctx context.Context, profileID string) (map[string]any, error) {
	profile, err := s.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":          profile.ID,
		"email":       profile.Email,
		"displayName": profile.DisplayName,
		"createdAt":   profile.CreatedAt.Format(time.RFC3339),
	}, nil
}

func documentPayload(doc store.Document) map[string]any {
	return map[string]any{
		"id":        doc.ID,
		"title":     doc.Title,
		"content":   doc.Content,
		"createdAt": doc.CreatedAt.Format(time.RFC3339),
		"updatedAt": doc.UpdatedAt.Format(time.RFC3339),
	}
}

// ListDocuments returns the profile's documents, most recently updated first.
func (s *Service) ListDocuments(ctx context.Context, profileID string) ([]map[string]any, error) {
	documents, err := s.store.ListDocuments(ctx, profileID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(documents))
	for _, doc := range documents {
		summary := documentPayload(doc)
		delete(summary, "content")
		items = append(items, summary)
	}
	return items, nil
}

// CreateDocument stores a new document, initializes its version
// repository, and indexes it for search.
func (s *Service) CreateDocument(ctx context.Context, profileID, title, content string) (map[string]any, error) {
	documentTitle := strings.TrimSpace(title)
	if documentTitle == "" {
		documentTitle = "Untitled Document"
	}

	doc := store.Document{
		ID:        util.NewID("doc"),
		ProfileID: profileID,
		Title:     documentTitle,
		Content:   content,
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.git.EnsureDocumentRepo(doc.ID, gitrepo.Snapshot{Title: doc.Title, Content: doc.Content}, profileID); err != nil {
		return nil, err
	}
	s.indexDocument(doc)

	created, err := s.store.GetDocument(ctx, profileID, doc.ID)
	if err != nil {
		return nil, err
	}
	return documentPayload(created), nil
}

// GetDocument returns a single owned document.
func (s *Service) GetDocument(ctx context.Context, profileID, documentID string) (map[string]any, error) {
	doc, err := s.store.GetDocument(ctx, profileID, documentID)
	if err != nil {
		return nil, err
	}
	return documentPayload(doc), nil
}

// UpdateDocument saves new content, commits a version snapshot, and
// refreshes the search index.
func (s *Service) UpdateDocument(ctx context.Context, profileID, documentID, title, content string) (map[string]any, error) {
	documentTitle := strings.TrimSpace(title)
	if documentTitle == "" {
		documentTitle = "Untitled Document"
	}

	doc, err := s.store.UpdateDocument(ctx, profileID, documentID, documentTitle, content)
	if err != nil {
		return nil, err
	}
	if err := s.git.EnsureDocumentRepo(doc.ID, gitrepo.Snapshot{Title: doc.Title, Content: doc.Content}, profileID); err != nil {
		return nil, err
	}
	if _, err := s.git.CommitSnapshot(doc.ID, gitrepo.Snapshot{Title: doc.Title, Content: doc.Content}, profileID, "Update document"); err != nil {
		return nil, err
	}
	s.indexDocument(doc)
	return documentPayload(doc), nil
}

// DeleteDocument removes the document, its version history, and its
// search index entry.
func (s *Service) DeleteDocument(ctx context.Context, profileID, documentID string) error {
	deleted, err := s.store.DeleteDocument(ctx, profileID, documentID)
	if err != nil {
		return err
	}
	if !deleted {
		return sql.ErrNoRows
	}
	if err := s.git.DeleteDocumentRepo(documentID); err != nil {
		log.Printf("gitrepo: delete repo for %s: %v", documentID, err)
	}
	if s.search != nil {
		s.search.DeleteDocument(documentID)
	}
	return nil
}

// ListVersions returns the document's snapshot history, newest first.
func (s *Service) ListVersions(ctx context.Context, profileID, documentID string) (map[string]any, error) {
	if _, err := s.store.GetDocument(ctx, profileID, documentID); err != nil {
		return nil, err
	}
	versions, err := s.git.History(documentID, 50)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(versions))
	for _, version := range versions {
		items = append(items, map[string]any{
			"hash":      version.Hash,
			"message":   version.Message,
			"author":    version.Author,
			"createdAt": version.CreatedAt.Format(time.RFC3339),
		})
	}
	return map[string]any{
		"documentId": documentID,
		"versions":   items,
	}, nil
}

// GetVersion returns the document content recorded at one version.
func (s *Service) GetVersion(ctx context.Context, profileID, documentID, hash string) (map[string]any, error) {
	if _, err := s.store.GetDocument(ctx, profileID, documentID); err != nil {
		return nil, err
	}
	snapshot, err := s.git.GetSnapshot(documentID, hash)
	if err != nil {
		return nil, sql.ErrNoRows
	}
	return map[string]any{
		"documentId": documentID,
		"hash":       hash,
		"title":      snapshot.Title,
		"content":    snapshot.Content,
	}, nil
}

// AnalyzeSuggestions runs the suggestion pipeline under the suggestion
// rate budget.
func (s *Service) AnalyzeSuggestions(ctx context.Context, profileID, documentID string, paragraphs []suggest.Paragraph) (*suggest.Result, error) {
	if _, err := s.gate.Admit(ctx, profileID, s.cfg.SuggestionLimitPerHour); err != nil {
		return nil, err
	}
	return s.pipeline.Analyze(ctx, profileID, documentID, paragraphs)
}

// DismissSuggestion records a dismissal for the document.
func (s *Service) DismissSuggestion(ctx context.Context, profileID, documentID, originalText, ruleID string) (string, error) {
	if _, err := s.store.GetDocument(ctx, profileID, documentID); err != nil {
		return "", err
	}
	return s.registry.Dismiss(ctx, profileID, documentID, originalText, ruleID)
}

// ClearDismissals removes every dismissal for the document.
func (s *Service) ClearDismissals(ctx context.Context, profileID, documentID string) (int64, error) {
	if _, err := s.store.GetDocument(ctx, profileID, documentID); err != nil {
		return 0, err
	}
	return s.registry.Clear(ctx, profileID, documentID)
}

// RewriteForLength rewrites the document text toward a target length
// under the rewrite rate budget.
func (s *Service) RewriteForLength(ctx context.Context, profileID string, req rewrite.LengthRequest) (*rewrite.LengthResult, error) {
	if _, err := s.gate.Admit(ctx, profileID, s.cfg.RewriteLimitPerHour); err != nil {
		return nil, err
	}
	return s.rewriter.RewriteForLength(ctx, profileID, req)
}

// RetryRewrite rewrites one paragraph again under the retry rate budget.
func (s *Service) RetryRewrite(ctx context.Context, profileID string, req rewrite.RetryRequest) (*rewrite.RetryResult, error) {
	if _, err := s.gate.Admit(ctx, profileID, s.cfg.RetryLimitPerHour); err != nil {
		return nil, err
	}
	return s.rewriter.RetryRewrite(ctx, req)
}

// ExportDocument renders an owned document in the requested format.
func (s *Service) ExportDocument(ctx context.Context, profileID, documentID string, format export.Format) (*export.Result, error) {
	doc, err := s.store.GetDocument(ctx, profileID, documentID)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(export.Request{
		Title:   doc.Title,
		Content: doc.Content,
		Format:  format,
	})
}

// ImportDocument extracts text from an upload and creates a document
// from it.
func (s *Service) ImportDocument(ctx context.Context, profileID, filename string, data []byte) (map[string]any, error) {
	result, err := s.importer.Import(filename, data)
	if err != nil {
		return nil, err
	}
	return s.CreateDocument(ctx, profileID, result.Title, result.Content)
}

// SearchDocuments runs a full-text search over the profile's documents.
func (s *Service) SearchDocuments(profileID, query string, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: query}
	}
	return s.search.Search(search.Query{
		Text:      query,
		ProfileID: profileID,
		Limit:     limit,
		Offset:    offset,
	})
}

func (s *Service) indexDocument(doc store.Document) {
	if s.search == nil {
		return
	}
	s.search.IndexDocument(search.DocumentRecord{
		ID:        doc.ID,
		ProfileID: doc.ProfileID,
		Title:     doc.Title,
		Content:   export.HTMLToPlainText(doc.Content),
	})
}
