// Package authpw provides email/password authentication with verification.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"inkwell/api/internal/store"
	"inkwell/api/internal/util"

	"golang.org/x/crypto/bcrypt"
)

// Service provides email/password authentication over profiles.
type Service struct {
	store ProfileStore
}

// ProfileStore defines the storage interface for auth.
type ProfileStore interface {
	GetProfileByEmail(ctx context.Context, email string) (store.Profile, error)
	GetProfile(ctx context.Context, id string) (store.Profile, error)
	CreateProfile(ctx context.Context, profile store.Profile) error
	UpdateVerificationToken(ctx context.Context, profileID, token string, expiresAt time.Time) error
	VerifyEmail(ctx context.Context, token string) error
	UpdatePassword(ctx context.Context, profileID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, profileID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error
}

// NewService creates a new auth service
func NewService(profileStore ProfileStore) *Service {
	return &Service{store: profileStore}
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// SignUpResponse contains sign-up result
type SignUpResponse struct {
	ProfileID           string
	VerificationToken   string
	RequiresEmailVerify bool
}

// SignUp creates a new profile
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, errors.New("email and password are required")
	}

	if len(req.Password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}

	// Check if email already exists
	if _, err := s.store.GetProfileByEmail(ctx, email); err == nil {
		return nil, errors.New("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	verificationToken, err := util.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}

	profile := store.Profile{
		ID:                util.NewID("prof"),
		Email:             email,
		DisplayName:       strings.TrimSpace(req.DisplayName),
		PasswordHash:      string(hash),
		IsEmailVerified:   false,
		VerificationToken: verificationToken,
	}

	if err := s.store.CreateProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	// Verification window is 24 hours
	expiresAt := time.Now().Add(24 * time.Hour)
	if err := s.store.UpdateVerificationToken(ctx, profile.ID, verificationToken, expiresAt); err != nil {
		return nil, fmt.Errorf("set verification expiry: %w", err)
	}

	return &SignUpResponse{
		ProfileID:           profile.ID,
		VerificationToken:   verificationToken,
		RequiresEmailVerify: true,
	}, nil
}

// SignInRequest contains sign-in parameters
type SignInRequest struct {
	Email    string
	Password string
}

// SignInResponse contains sign-in result
type SignInResponse struct {
	Profile        store.Profile
	RequiresVerify bool
}

// SignIn authenticates a profile
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*SignInResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, errors.New("email and password are required")
	}

	profile, err := s.store.GetProfileByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, errors.New("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errors.New("invalid email or password")
	}

	if !profile.IsEmailVerified {
		return &SignInResponse{
			Profile:        profile,
			RequiresVerify: true,
		}, nil
	}

	return &SignInResponse{
		Profile:        profile,
		RequiresVerify: false,
	}, nil
}

// VerifyEmail verifies an email address using a token
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("verification token required")
	}

	if err := s.store.VerifyEmail(ctx, token); err != nil {
		return errors.New("invalid or expired verification token")
	}

	return nil
}

// RequestPasswordReset creates a password reset token
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	profile, err := s.store.GetProfileByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		// Don't reveal if email exists
		return "", nil
	}

	token, err := util.NewSecret()
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().Add(1 * time.Hour)
	if err := s.store.CreatePasswordReset(ctx, profile.ID, token, expiresAt); err != nil {
		return "", err
	}

	return token, nil
}

// ResetPasswordRequest contains password reset parameters
type ResetPasswordRequest struct {
	Token       string
	NewPassword string
}

// ResetPassword resets a profile's password using a reset token
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if req.Token == "" || req.NewPassword == "" {
		return errors.New("token and new password are required")
	}

	if len(req.NewPassword) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	profileID, err := s.store.GetPasswordReset(ctx, req.Token)
	if err != nil {
		return errors.New("invalid or expired reset token")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.store.UpdatePassword(ctx, profileID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	// Best effort; the password was already reset
	_ = s.store.MarkPasswordResetUsed(ctx, req.Token)

	return nil
}

