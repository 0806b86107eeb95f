package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultLeeway is subtracted from a token's lifetime so it is not used
	// right before it expires
	DefaultLeeway = 30 * time.Second
)

// TokenFileOption configures a token file checker
type TokenFileOption func(*tokenFileChecker)

// WithLeeway sets how long before expiry a token is already considered invalid
func WithLeeway(leeway time.Duration) TokenFileOption {
	return func(c *tokenFileChecker) {
		c.leeway = leeway
	}
}

// WithClock overrides the time source (used in tests)
func WithClock(now func() time.Time) TokenFileOption {
	return func(c *tokenFileChecker) {
		c.now = now
	}
}

type tokenFileChecker struct {
	path   string
	leeway time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenFileChecker returns a checker that looks for a JWT session token at path.
// The token is written by the verification flow once a user completes it.
// Signatures are not verified here, only presence and expiry, since the token
// is only ever presented to its issuer.
func NewTokenFileChecker(path string, opts ...TokenFileOption) CredentialChecker {
	c := &tokenFileChecker{
		path:   filepath.Clean(path),
		leeway: DefaultLeeway,
		now:    time.Now,
		parser: jwt.NewParser(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *tokenFileChecker) HasValidCredential(_ context.Context) (bool, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read token file: %w", err)
	}

	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return false, nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := c.parser.ParseUnverified(raw, claims); err != nil {
		slog.Debug("Stored token is not a parseable JWT", "path", c.path, "error", err)
		return false, nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		slog.Debug("Stored token has malformed expiry", "path", c.path, "error", err)
		return false, nil
	}
	if exp == nil {
		// Tokens without expiry are valid until replaced
		return true, nil
	}

	return c.now().Add(c.leeway).Before(exp.Time), nil
}
