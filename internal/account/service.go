// Package account registers establishments and exchanges their password
// for a bearer token.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fast-queue/internal/apperr"
	"fast-queue/internal/auth"
	"fast-queue/internal/logger"
	"fast-queue/internal/models"

	"github.com/google/uuid"
)

type Store interface {
	CreateEstablishment(ctx context.Context, e *models.Establishment) error
	FindEstablishmentByEmail(ctx context.Context, email string) (*models.Establishment, error)
	FindEstablishmentBySlug(ctx context.Context, slug string) (*models.Establishment, error)
}

type Service struct {
	Store  Store
	Tokens *auth.TokenIssuer
	Logger *logger.Logger
}

func NewService(store Store, tokens *auth.TokenIssuer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{Store: store, Tokens: tokens, Logger: log}
}

type CreateAccountInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

func (s *Service) CreateAccount(ctx context.Context, in CreateAccountInput) (*models.Establishment, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if _, err := s.Store.FindEstablishmentByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("CreateAccount", nil, "establishment with this email already exists")
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Store("CreateAccount", err)
	}

	slug := GenerateSlug(in.Name)
	if slug == "" {
		return nil, apperr.InvalidState("CreateAccount", "name must contain letters or digits")
	}
	if _, err := s.Store.FindEstablishmentBySlug(ctx, slug); err == nil {
		return nil, apperr.Conflict("CreateAccount", nil, "establishment with this slug already exists")
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Store("CreateAccount", err)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Store("CreateAccount", fmt.Errorf("hash password: %w", err))
	}

	e := &models.Establishment{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		Slug:         slug,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	// The unique constraints still catch a racing registration.
	if err := s.Store.CreateEstablishment(ctx, e); err != nil {
		return nil, apperr.Store("CreateAccount", err)
	}
	s.Logger.Info("AUTH", fmt.Sprintf("Establishment %s registered (%s)", e.ID, e.Slug))
	return e, nil
}

type AuthenticateInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Authenticate returns a signed token for valid credentials.
func (s *Service) Authenticate(ctx context.Context, in AuthenticateInput) (*models.TokenResponse, error) {
	e, err := s.Store.FindEstablishmentByEmail(ctx, strings.ToLower(strings.TrimSpace(in.Email)))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Unauthorized("Authenticate", "invalid credentials")
	}
	if err != nil {
		return nil, apperr.Store("Authenticate", err)
	}
	if !auth.CheckPassword(e.PasswordHash, in.Password) {
		s.Logger.LogSecurity("LOGIN_FAILED", e.ID)
		return nil, apperr.Unauthorized("Authenticate", "invalid credentials")
	}

	token, expires, err := s.Tokens.Issue(e.ID)
	if err != nil {
		return nil, apperr.Store("Authenticate", err)
	}
	return &models.TokenResponse{
		AccessToken: token,
		ExpiresIn:   int(time.Until(expires).Seconds()),
		TokenType:   "Bearer",
	}, nil
}
