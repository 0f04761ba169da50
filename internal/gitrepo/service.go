// Package gitrepo keeps a per-document git repository of content
// snapshots, giving every document a browsable version history.
package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Snapshot is the document state stored at each version.
type Snapshot struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// VersionInfo describes one commit in a document's history.
type VersionInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Service owns the on-disk repositories. Access to each document's repo
// is serialized by a per-document mutex; go-git worktrees are not safe
// for concurrent mutation.
type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a service rooted at baseDir.
func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsureDocumentRepo initializes the repository for a document with its
// first snapshot. Calling it for an existing repository is a no-op.
func (s *Service) EnsureDocumentRepo(documentID string, initial Snapshot, author string) error {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(documentID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}

	hash, err := s.writeSnapshot(repo, initial, author, "Create document")
	if err != nil {
		return err
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// CommitSnapshot records a new version of the document.
func (s *Service) CommitSnapshot(documentID string, snapshot Snapshot, author, message string) (VersionInfo, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(documentID))
	if err != nil {
		return VersionInfo{}, fmt.Errorf("open repo: %w", err)
	}

	hash, err := s.writeSnapshot(repo, snapshot, author, message)
	if err != nil {
		return VersionInfo{}, err
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return VersionInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toVersionInfo(commitObj), nil
}

// History lists versions newest-first, up to limit (0 means all).
func (s *Service) History(documentID string, limit int) ([]VersionInfo, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(documentID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main branch: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]VersionInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toVersionInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// GetSnapshot returns the document state recorded at the given version.
func (s *Service) GetSnapshot(documentID, hash string) (Snapshot, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(documentID))
	if err != nil {
		return Snapshot{}, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return Snapshot{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readSnapshotFromCommit(commitObj)
}

// DeleteDocumentRepo removes the repository after its document is gone.
func (s *Service) DeleteDocumentRepo(documentID string) error {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(s.repoPath(documentID)); err != nil {
		return fmt.Errorf("remove repo dir: %w", err)
	}
	return nil
}

func (s *Service) repoPath(documentID string) string {
	return filepath.Join(s.baseDir, documentID)
}

func (s *Service) documentLock(documentID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[documentID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[documentID] = lock
	return lock
}

func (s *Service) writeSnapshot(repo *git.Repository, snapshot Snapshot, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("marshal snapshot: %w", err)
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, "snapshot.json"), append(payload, '\n'), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write snapshot.json: %w", err)
	}

	if _, err := worktree.Add("snapshot.json"); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add snapshot: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.inkwell.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit snapshot: %w", err)
	}
	return hash, nil
}

func readSnapshotFromCommit(commitObj *object.Commit) (Snapshot, error) {
	file, err := commitObj.File("snapshot.json")
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot.json from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Snapshot{}, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot bytes: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode commit snapshot: %w", err)
	}
	return snapshot, nil
}

func toVersionInfo(commitObj *object.Commit) VersionInfo {
	return VersionInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
