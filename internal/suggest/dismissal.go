package suggest

import (
	"context"
	"errors"
	"fmt"

	"inkwell/api/internal/store"
)

// DismissalIdentifier derives the stable identity under which a
// suggestion is suppressed. It is content-addressed: the same text and
// rule produce the same identifier in every paragraph of the document,
// so one dismissal generalizes across recurrences.
func DismissalIdentifier(originalText, ruleID string) string {
	return originalText + "|" + ruleID
}

// DismissalStore is the persistence surface the registry needs.
type DismissalStore interface {
	ListDismissalIdentifiers(ctx context.Context, profileID, documentID string) ([]string, error)
	InsertDismissal(ctx context.Context, d store.Dismissal) error
	DeleteDismissals(ctx context.Context, profileID, documentID string) (int64, error)
}

// Registry checks and records suggestion dismissals per profile and
// document.
type Registry struct {
	store DismissalStore
}

// NewRegistry creates a dismissal registry backed by the given store.
func NewRegistry(s DismissalStore) *Registry {
	return &Registry{store: s}
}

// Dismissed returns the set of identifiers currently suppressing
// suggestions for the document.
func (r *Registry) Dismissed(ctx context.Context, profileID, documentID string) (map[string]struct{}, error) {
	ids, err := r.store.ListDismissalIdentifiers(ctx, profileID, documentID)
	if err != nil {
		return nil, fmt.Errorf("list dismissals: %w", err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// Dismiss records a dismissal and returns its identifier. A duplicate
// insert is treated as success: the unique-constraint signal from the
// store resolves the race between two concurrent dismiss calls, so no
// pre-check is made.
func (r *Registry) Dismiss(ctx context.Context, profileID, documentID, originalText, ruleID string) (string, error) {
	identifier := DismissalIdentifier(originalText, ruleID)

	err := r.store.InsertDismissal(ctx, store.Dismissal{
		ProfileID:  profileID,
		DocumentID: documentID,
		Identifier: identifier,
	})
	if err != nil && !errors.Is(err, store.ErrDuplicateDismissal) {
		return "", fmt.Errorf("record dismissal: %w", err)
	}
	return identifier, nil
}

// Clear removes every dismissal for the document and returns how many
// rows were deleted. Zero is a valid result.
func (r *Registry) Clear(ctx context.Context, profileID, documentID string) (int64, error) {
	count, err := r.store.DeleteDismissals(ctx, profileID, documentID)
	if err != nil {
		return 0, fmt.Errorf("clear dismissals: %w", err)
	}
	return count, nil
}
