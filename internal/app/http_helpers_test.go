package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"inkwell/api/internal/authpw"
	"inkwell/api/internal/config"
	"inkwell/api/internal/export"
	"inkwell/api/internal/gitrepo"
	"inkwell/api/internal/importer"
	"inkwell/api/internal/llm"
	"inkwell/api/internal/ratelimit"
	"inkwell/api/internal/rewrite"
	"inkwell/api/internal/store"
	"inkwell/api/internal/suggest"
)

type fakeStore struct {
	mu         sync.Mutex
	profiles   map[string]store.Profile
	emailIndex map[string]string
	resets     map[string]string
	resetUsed  map[string]bool
	docs       map[string]store.Document
	dismissals map[string][]string
	sessions   map[string]string
	revoked    map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles:   make(map[string]store.Profile),
		emailIndex: make(map[string]string),
		resets:     make(map[string]string),
		resetUsed:  make(map[string]bool),
		docs:       make(map[string]store.Document),
		dismissals: make(map[string][]string),
		sessions:   make(map[string]string),
		revoked:    make(map[string]bool),
	}
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) GetProfile(_ context.Context, profileID string) (store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[profileID]
	if !ok {
		return store.Profile{}, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) GetProfileByEmail(_ context.Context, email string) (store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.emailIndex[email]
	if !ok {
		return store.Profile{}, sql.ErrNoRows
	}
	return f.profiles[id], nil
}

func (f *fakeStore) CreateProfile(_ context.Context, p store.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	f.profiles[p.ID] = p
	f.emailIndex[p.Email] = p.ID
	return nil
}

func (f *fakeStore) UpdateVerificationToken(_ context.Context, profileID, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.profiles[profileID]
	p.VerificationToken = token
	p.VerificationExpiresAt = &expiresAt
	f.profiles[profileID] = p
	return nil
}

func (f *fakeStore) VerifyEmail(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, p := range f.profiles {
		if p.VerificationToken == token && token != "" {
			p.IsEmailVerified = true
			p.VerificationToken = ""
			f.profiles[id] = p
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) UpdatePassword(_ context.Context, profileID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[profileID]
	if !ok {
		return sql.ErrNoRows
	}
	p.PasswordHash = passwordHash
	f.profiles[profileID] = p
	return nil
}

func (f *fakeStore) CreatePasswordReset(_ context.Context, profileID, token string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets[token] = profileID
	return nil
}

func (f *fakeStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	profileID, ok := f.resets[token]
	if !ok || f.resetUsed[token] {
		return "", sql.ErrNoRows
	}
	return profileID, nil
}

func (f *fakeStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetUsed[token] = true
	return nil
}

func (f *fakeStore) ListDocuments(_ context.Context, profileID string) ([]store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var docs []store.Document
	for _, d := range f.docs {
		if d.ProfileID == profileID {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

func (f *fakeStore) GetDocument(_ context.Context, profileID, documentID string) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[documentID]
	if !ok || d.ProfileID != profileID {
		return store.Document{}, sql.ErrNoRows
	}
	return d, nil
}

func (f *fakeStore) InsertDocument(_ context.Context, item store.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	f.docs[item.ID] = item
	return nil
}

func (f *fakeStore) UpdateDocument(_ context.Context, profileID, documentID, title, content string) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[documentID]
	if !ok || d.ProfileID != profileID {
		return store.Document{}, sql.ErrNoRows
	}
	d.Title = title
	d.Content = content
	d.UpdatedAt = time.Now()
	f.docs[documentID] = d
	return d, nil
}

func (f *fakeStore) DeleteDocument(_ context.Context, profileID, documentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[documentID]
	if !ok || d.ProfileID != profileID {
		return false, nil
	}
	delete(f.docs, documentID)
	return true, nil
}

func dismissalKey(profileID, documentID string) string {
	return profileID + "|" + documentID
}

func (f *fakeStore) ListDismissalIdentifiers(_ context.Context, profileID, documentID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dismissals[dismissalKey(profileID, documentID)]...), nil
}

func (f *fakeStore) InsertDismissal(_ context.Context, d store.Dismissal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := dismissalKey(d.ProfileID, d.DocumentID)
	for _, existing := range f.dismissals[key] {
		if existing == d.Identifier {
			return store.ErrDuplicateDismissal
		}
	}
	f.dismissals[key] = append(f.dismissals[key], d.Identifier)
	return nil
}

func (f *fakeStore) DeleteDismissals(_ context.Context, profileID, documentID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := dismissalKey(profileID, documentID)
	count := int64(len(f.dismissals[key]))
	delete(f.dismissals, key)
	return count, nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, profileID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[tokenHash] = profileID
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	profileID, ok := f.sessions[tokenHash]
	if !ok {
		return store.Profile{}, sql.ErrNoRows
	}
	return store.Profile{ID: profileID}, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, tokenHash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

func (f *fakeStore) ResetRateLimitWindow(_ context.Context, profileID string, now, resetAt time.Time) (store.Profile, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[profileID]
	if !ok {
		return store.Profile{}, false, sql.ErrNoRows
	}
	if p.RateLimitResetAt != nil && p.RateLimitResetAt.After(now) {
		return store.Profile{}, false, nil
	}
	p.APICallCount = 1
	p.RateLimitResetAt = &resetAt
	f.profiles[profileID] = p
	return p, true, nil
}

func (f *fakeStore) IncrementAPICallCount(_ context.Context, profileID string, limit int, now time.Time) (store.Profile, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[profileID]
	if !ok {
		return store.Profile{}, false, sql.ErrNoRows
	}
	if p.APICallCount >= limit || p.RateLimitResetAt == nil || !p.RateLimitResetAt.After(now) {
		return store.Profile{}, false, nil
	}
	p.APICallCount++
	f.profiles[profileID] = p
	return p, true, nil
}

// fakeGit records version snapshots in memory.
type fakeGit struct {
	mu       sync.Mutex
	versions map[string][]gitrepo.VersionInfo
	snaps    map[string]gitrepo.Snapshot
	counter  int
}

func newFakeGit() *fakeGit {
	return &fakeGit{
		versions: make(map[string][]gitrepo.VersionInfo),
		snaps:    make(map[string]gitrepo.Snapshot),
	}
}

func (g *fakeGit) commit(documentID string, snapshot gitrepo.Snapshot, author, message string) gitrepo.VersionInfo {
	g.counter++
	info := gitrepo.VersionInfo{
		Hash:      fmt.Sprintf("hash%03d", g.counter),
		Message:   message,
		Author:    author,
		CreatedAt: time.Now(),
	}
	g.versions[documentID] = append([]gitrepo.VersionInfo{info}, g.versions[documentID]...)
	g.snaps[documentID+"@"+info.Hash] = snapshot
	return info
}

func (g *fakeGit) EnsureDocumentRepo(documentID string, initial gitrepo.Snapshot, author string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.versions[documentID]) > 0 {
		return nil
	}
	g.commit(documentID, initial, author, "Create document")
	return nil
}

func (g *fakeGit) CommitSnapshot(documentID string, snapshot gitrepo.Snapshot, author, message string) (gitrepo.VersionInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.commit(documentID, snapshot, author, message), nil
}

func (g *fakeGit) History(documentID string, limit int) ([]gitrepo.VersionInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	versions := g.versions[documentID]
	if limit > 0 && len(versions) > limit {
		versions = versions[:limit]
	}
	return append([]gitrepo.VersionInfo(nil), versions...), nil
}

func (g *fakeGit) GetSnapshot(documentID, hash string) (gitrepo.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	snap, ok := g.snaps[documentID+"@"+hash]
	if !ok {
		return gitrepo.Snapshot{}, fmt.Errorf("unknown version %s", hash)
	}
	return snap, nil
}

func (g *fakeGit) DeleteDocumentRepo(documentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.versions, documentID)
	return nil
}

// fakeAnalyzer returns canned candidates per paragraph text.
type fakeAnalyzer struct {
	fn func(ctx context.Context, text string) ([]suggest.Candidate, error)
}

func (a *fakeAnalyzer) AnalyzeParagraph(ctx context.Context, text string) ([]suggest.Candidate, error) {
	if a.fn == nil {
		return nil, nil
	}
	return a.fn(ctx, text)
}

// fakeLLM serves the rewrite service.
type fakeLLM struct {
	fn func(ctx context.Context, req llm.MessageRequest) (*llm.MessageResponse, error)
}

func (c *fakeLLM) CreateMessage(ctx context.Context, req llm.MessageRequest) (*llm.MessageResponse, error) {
	if c.fn == nil {
		return textResponse(""), nil
	}
	return c.fn(ctx, req)
}

func textResponse(text string) *llm.MessageResponse {
	return &llm.MessageResponse{
		Content: []llm.ContentBlock{{Type: "text", Text: text}},
	}
}

type testEnv struct {
	server   *HTTPServer
	store    *fakeStore
	git      *fakeGit
	analyzer *fakeAnalyzer
	llm      *fakeLLM
	cfg      config.Config
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Config{
		JWTSecret:              "test-secret",
		AccessTTL:              15 * time.Minute,
		RefreshTTL:             time.Hour,
		MaxParagraphs:          10,
		MaxParagraphChars:      2000,
		SuggestionLimitPerHour: 300,
		RewriteLimitPerHour:    100,
		RetryLimitPerHour:      200,
		AppBaseURL:             "http://localhost:3000",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	fs := newFakeStore()
	git := newFakeGit()
	analyzer := &fakeAnalyzer{}
	model := &fakeLLM{}
	registry := suggest.NewRegistry(fs)

	svc := &Service{
		cfg:      cfg,
		store:    fs,
		sessions: fs,
		git:      git,
		authpw:   authpw.NewService(fs),
		pipeline: suggest.NewPipeline(fs, registry, analyzer, cfg.MaxParagraphs, cfg.MaxParagraphChars),
		registry: registry,
		rewriter: rewrite.NewService(fs, model, "test-model"),
		gate:     ratelimit.NewGate(fs),
		exporter: export.NewService(),
		importer: importer.NewService(),
	}

	return &testEnv{
		server:   NewHTTPServer(svc, "*"),
		store:    fs,
		git:      git,
		analyzer: analyzer,
		llm:      model,
		cfg:      cfg,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return payload
}

// signUpVerified walks the full signup flow and returns an access token.
func (e *testEnv) signUpVerified(t *testing.T, email string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":       email,
		"password":    "hunter2hunter2",
		"displayName": "Test Writer",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body %s", rec.Code, rec.Body.String())
	}
	verificationToken, _ := decodeResponse(t, rec)["devVerificationToken"].(string)
	if verificationToken == "" {
		t.Fatal("expected devVerificationToken when SMTP is not configured")
	}

	rec = e.do(t, http.MethodPost, "/api/auth/verify-email", "", map[string]string{"token": verificationToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify-email status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email":    email,
		"password": "hunter2hunter2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("signin status = %d, body %s", rec.Code, rec.Body.String())
	}
	token, _ := decodeResponse(t, rec)["accessToken"].(string)
	if token == "" {
		t.Fatal("signin returned no access token")
	}
	return token
}

// createDocument makes a document through the API and returns its id.
func (e *testEnv) createDocument(t *testing.T, token, title, content string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/documents", token, map[string]string{
		"title":   title,
		"content": content,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create document status = %d, body %s", rec.Code, rec.Body.String())
	}
	id, _ := decodeResponse(t, rec)["id"].(string)
	if id == "" {
		t.Fatal("create document returned no id")
	}
	return id
}
