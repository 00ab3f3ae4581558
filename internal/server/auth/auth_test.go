package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Enabled:     true,
		TokenIssuer: "vcscompare-test",
		TokenSecret: "secret",
		TokenExpiry: time.Hour,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "disabled", config: Config{}},
		{name: "valid", config: *testConfig()},
		{name: "missing issuer", config: Config{Enabled: true, TokenSecret: "s"}, wantErr: "token_issuer"},
		{name: "missing secret", config: Config{Enabled: true, TokenIssuer: "i"}, wantErr: "token_secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestAuthService_IssueAndValidate(t *testing.T) {
	svc := NewAuthService(testConfig())

	token, err := svc.IssueToken("alice")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
}

func TestAuthService_RejectsForeignIssuer(t *testing.T) {
	svc := NewAuthService(testConfig())

	token, err := NewToken("alice", "someone-else", "secret", time.Hour)
	require.NoError(t, err)

	_, err = svc.ValidateToken(context.Background(), token)
	assert.ErrorContains(t, err, "unknown issuer")
}

func TestAuthService_RejectsEmpty(t *testing.T) {
	svc := NewAuthService(testConfig())
	_, err := svc.ValidateToken(context.Background(), "")
	assert.Error(t, err)
}

func TestAuthService_Disabled(t *testing.T) {
	svc := NewAuthService(&Config{})
	assert.False(t, svc.IsEnabled())

	_, err := svc.IssueToken("alice")
	assert.ErrorIs(t, err, ErrAuthDisabled)
}
