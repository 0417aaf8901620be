// Package auth registers accounts and issues the bearer tokens that chat
// connections present.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"groupchat/pkg/interfaces"
	"groupchat/pkg/types"
)

// Credentials is the body of register and login requests.
type Credentials struct {
	Username string `json:"username" validate:"required,username"`
	Password string `json:"password" validate:"required,max=72"`
}

// Service implements account registration and login.
type Service struct {
	users    interfaces.UserStore
	hasher   PasswordHasher
	tokens   *TokenIssuer
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewService creates an auth service over users.
func NewService(users interfaces.UserStore, hasher PasswordHasher, tokens *TokenIssuer, logger zerolog.Logger) *Service {
	validate := validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return types.IsValidUsername(fl.Field().String())
	})

	return &Service{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		validate: validate,
		logger:   logger.With().Str("component", "auth").Logger(),
	}
}

// Validate checks the shape of creds.
func (s *Service) Validate(creds Credentials) error {
	if err := s.validate.Struct(creds); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ValidationError{Field: verrs[0].Field(), Tag: verrs[0].Tag()}
		}
		return err
	}
	return nil
}

// Register creates an account. Duplicate names yield interfaces.ErrUsernameTaken.
func (s *Service) Register(ctx context.Context, creds Credentials) error {
	if err := s.Validate(creds); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(creds.Password)
	if err != nil {
		return err
	}

	if _, err := s.users.CreateUser(ctx, creds.Username, hash); err != nil {
		return err
	}
	s.logger.Info().Str("username", creds.Username).Msg("user registered")
	return nil
}

// Login checks creds and returns a signed access token.
func (s *Service) Login(ctx context.Context, creds Credentials) (string, error) {
	if creds.Username == "" || creds.Password == "" {
		return "", ErrInvalidCredentials
	}

	user, err := s.users.GetUserByUsername(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if !s.hasher.Compare(user.PasswordHash, creds.Password) {
		s.logger.Info().Str("username", creds.Username).Msg("login failed")
		return "", ErrInvalidCredentials
	}

	return s.tokens.Issue(user.Username)
}

// Verify delegates to the token issuer so the service can authenticate
// chat connections.
func (s *Service) Verify(ctx context.Context, token string) (string, error) {
	return s.tokens.Verify(ctx, token)
}

// ValidationError names the first field that failed validation.
type ValidationError struct {
	Field string
	Tag   string
}

func (e *ValidationError) Error() string {
	switch e.Tag {
	case "required":
		return fmt.Sprintf("%s is required", e.Field)
	case "username":
		return types.ErrInvalidUsername.Error()
	case "max":
		return fmt.Sprintf("%s is too long", e.Field)
	default:
		return fmt.Sprintf("%s is invalid", e.Field)
	}
}
