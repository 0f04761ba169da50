package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateDismissal reports a dismissal insert that hit the unique
// constraint on (profile_id, document_id, dismissal_identifier). Callers
// treat it as success: the dismissal is already recorded.
var ErrDuplicateDismissal = errors.New("dismissal already recorded")

const uniqueViolationCode = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Profiles

const profileColumns = `id, email, display_name, password_hash, is_email_verified,
	verification_token, verification_expires_at, api_call_count, rate_limit_reset_at,
	created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (Profile, error) {
	var p Profile
	var displayName, verificationToken sql.NullString
	err := row.Scan(&p.ID, &p.Email, &displayName, &p.PasswordHash, &p.IsEmailVerified,
		&verificationToken, &p.VerificationExpiresAt, &p.APICallCount, &p.RateLimitResetAt,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Profile{}, err
	}
	p.DisplayName = displayName.String
	p.VerificationToken = verificationToken.String
	return p, nil
}

func (s *PostgresStore) CreateProfile(ctx context.Context, p Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, display_name, password_hash, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.Email, p.DisplayName, p.PasswordHash, p.IsEmailVerified, p.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, profileID string) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=$1`, profileID)
	return scanProfile(row)
}

func (s *PostgresStore) GetProfileByEmail(ctx context.Context, email string) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE email=LOWER($1)`, email)
	return scanProfile(row)
}

func (s *PostgresStore) UpdateVerificationToken(ctx context.Context, profileID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, profileID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdatePassword(ctx context.Context, profileID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, profileID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, profileID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, profile_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO NOTHING
	`, token, profileID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var profileID string
	err := s.db.QueryRowContext(ctx, `
		SELECT profile_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&profileID)
	if err != nil {
		return "", err
	}
	return profileID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// Rate limiting
//
// Both mutations are single conditional UPDATEs so that two requests racing on
// the same profile cannot both be admitted past the window boundary: exactly
// one statement matches, the other observes no row and re-reads.

// ResetRateLimitWindow starts a new one-hour window with the current call
// counted as its first. It matches only when the stored window is unset or
// already expired relative to now. The bool reports whether a row matched.
func (s *PostgresStore) ResetRateLimitWindow(ctx context.Context, profileID string, now, resetAt time.Time) (Profile, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE profiles
		SET api_call_count=1, rate_limit_reset_at=$3, updated_at=NOW()
		WHERE id=$1 AND (rate_limit_reset_at IS NULL OR rate_limit_reset_at <= $2)
		RETURNING `+profileColumns+`
	`, profileID, now, resetAt)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, fmt.Errorf("reset rate limit window: %w", err)
	}
	return p, true, nil
}

// IncrementAPICallCount bumps the counter inside an active window, bounded by
// limit. The bool reports whether the increment was admitted.
func (s *PostgresStore) IncrementAPICallCount(ctx context.Context, profileID string, limit int, now time.Time) (Profile, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE profiles
		SET api_call_count=api_call_count+1, updated_at=NOW()
		WHERE id=$1 AND api_call_count < $2 AND rate_limit_reset_at > $3
		RETURNING `+profileColumns+`
	`, profileID, limit, now)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, fmt.Errorf("increment api call count: %w", err)
	}
	return p, true, nil
}

// Documents
//
// Every document read is scoped by profile_id so that a missing document and a
// document owned by someone else are indistinguishable to the caller.

func (s *PostgresStore) ListDocuments(ctx context.Context, profileID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile_id, title, content, created_at, updated_at
		FROM documents
		WHERE profile_id=$1
		ORDER BY updated_at DESC
	`, profileID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var item Document
		if err := rows.Scan(&item.ID, &item.ProfileID, &item.Title, &item.Content, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, profileID, documentID string) (Document, error) {
	var item Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, profile_id, title, content, created_at, updated_at
		FROM documents
		WHERE id=$1 AND profile_id=$2
	`, documentID, profileID).Scan(&item.ID, &item.ProfileID, &item.Title, &item.Content, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, item Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, profile_id, title, content)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.ProfileID, item.Title, item.Content)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, profileID, documentID, title, content string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE documents
		SET title=$3, content=$4, updated_at=NOW()
		WHERE id=$1 AND profile_id=$2
		RETURNING id, profile_id, title, content, created_at, updated_at
	`, documentID, profileID, title, content)
	var item Document
	if err := row.Scan(&item.ID, &item.ProfileID, &item.Title, &item.Content, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return Document{}, err
	}
	return item, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, profileID, documentID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM documents WHERE id=$1 AND profile_id=$2
	`, documentID, profileID)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete document rows: %w", err)
	}
	return affected > 0, nil
}

// Dismissals

func (s *PostgresStore) ListDismissalIdentifiers(ctx context.Context, profileID, documentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dismissal_identifier
		FROM dismissed_suggestions
		WHERE profile_id=$1 AND document_id=$2
	`, profileID, documentID)
	if err != nil {
		return nil, fmt.Errorf("list dismissals: %w", err)
	}
	defer rows.Close()

	identifiers := make([]string, 0)
	for rows.Next() {
		var identifier string
		if err := rows.Scan(&identifier); err != nil {
			return nil, fmt.Errorf("scan dismissal: %w", err)
		}
		identifiers = append(identifiers, identifier)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dismissals: %w", err)
	}
	return identifiers, nil
}

// InsertDismissal records a dismissal. A duplicate of the unique triple is
// reported as ErrDuplicateDismissal by inspecting the constraint-violation
// signal, not by a pre-check, so there is no window between check and insert.
func (s *PostgresStore) InsertDismissal(ctx context.Context, d Dismissal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dismissed_suggestions (profile_id, document_id, dismissal_identifier)
		VALUES ($1, $2, $3)
	`, d.ProfileID, d.DocumentID, d.Identifier)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrDuplicateDismissal
		}
		return fmt.Errorf("insert dismissal: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteDismissals(ctx context.Context, profileID, documentID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM dismissed_suggestions WHERE profile_id=$1 AND document_id=$2
	`, profileID, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete dismissals: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete dismissals rows: %w", err)
	}
	return affected, nil
}

// Refresh sessions and access-token revocation (postgres fallback when Redis
// is not configured).

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, profileID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, profile_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET profile_id=EXCLUDED.profile_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, profileID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+prefixedProfileColumns+`
		FROM refresh_sessions rs
		JOIN profiles p ON p.id = rs.profile_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash)
	return scanProfile(row)
}

const prefixedProfileColumns = `p.id, p.email, p.display_name, p.password_hash, p.is_email_verified,
	p.verification_token, p.verification_expires_at, p.api_call_count, p.rate_limit_reset_at,
	p.created_at, p.updated_at`

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}
