package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"scingest/internal/config"
	"scingest/internal/services"
)

// TokenSource supplies the bearer token for a run. A token read from file or
// obtained by a successful login is cached; failures are not, so the next
// call logs in again.
type TokenSource struct {
	client         *Client
	username       string
	credentialFile string
	tokenFile      string

	mu    sync.Mutex
	token string
}

// NewTokenSource builds a source. When tokenFile is set no login is attempted.
func NewTokenSource(client *Client, username, credentialFile, tokenFile string) *TokenSource {
	return &TokenSource{
		client:         client,
		username:       username,
		credentialFile: credentialFile,
		tokenFile:      tokenFile,
	}
}

// TokenSourceFromConfig uses the [catalog] credentials.
func TokenSourceFromConfig(client *Client, cfg *config.Config) *TokenSource {
	return NewTokenSource(client, cfg.Catalog.Username, cfg.Catalog.CredentialFile, cfg.Catalog.TokenFile)
}

// Token returns the cached token or acquires one.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" {
		return s.token, nil
	}

	if s.tokenFile != "" {
		token, err := readSecret(s.tokenFile)
		if err != nil {
			return "", services.Wrap(services.ErrAuthentication, component, "token", "read token file", err)
		}
		s.token = token
		return token, nil
	}

	if s.credentialFile == "" {
		return "", services.Wrap(services.ErrAuthentication, component, "token", "neither token_file nor credential_file is configured", nil)
	}
	password, err := readSecret(s.credentialFile)
	if err != nil {
		return "", services.Wrap(services.ErrAuthentication, component, "token", "read credential file", err)
	}
	token, err := s.client.AcquireToken(ctx, s.username, password)
	if err != nil {
		return "", err
	}
	s.token = token
	return token, nil
}

// Reset drops the cached token.
func (s *TokenSource) Reset() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

func readSecret(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("%s is empty", path)
	}
	return secret, nil
}

// WriteToken stores token at path with owner-only permissions.
func WriteToken(path, token string) error {
	if err := os.WriteFile(path, []byte(strings.TrimSpace(token)+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}
