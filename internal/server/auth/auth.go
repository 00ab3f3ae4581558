package auth

import (
	"context"
	"errors"
	"fmt"
)

var ErrAuthDisabled = errors.New("auth is disabled")

// AuthService issues and validates the bearer tokens guarding the repository API
type AuthService struct {
	config *Config
}

func NewAuthService(config *Config) *AuthService {
	return &AuthService{config: config}
}

func (s *AuthService) IsEnabled() bool {
	return s.config.Enabled
}

// IssueToken returns a signed access token for the subject
func (s *AuthService) IssueToken(subject string) (string, error) {
	if !s.IsEnabled() {
		return "", ErrAuthDisabled
	}
	if subject == "" {
		return "", fmt.Errorf("token subject is required")
	}

	token, err := NewToken(subject, s.config.TokenIssuer, s.config.TokenSecret, s.config.TokenExpiry)
	if err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return token, nil
}

func (s *AuthService) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("invalid access token")
	}

	claims, err := ParseClaims(token, s.config.TokenSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	if claims.Type != AccessToken {
		return nil, fmt.Errorf("invalid access token: wrong token type got %q", claims.Type)
	}

	if claims.Issuer != s.config.TokenIssuer {
		return nil, fmt.Errorf("invalid access token: unknown issuer %q", claims.Issuer)
	}

	return claims, nil
}
