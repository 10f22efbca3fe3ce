package backend

import (
	"context"
	"os"
	"strings"
)

// AuthTokenProvider supplies the bearer token for each request. An empty
// token means the caller is not signed in.
type AuthTokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to AuthTokenProvider.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements AuthTokenProvider.
func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken always returns the same token.
type StaticToken string

// Token implements AuthTokenProvider.
func (s StaticToken) Token(context.Context) (string, error) {
	return strings.TrimSpace(string(s)), nil
}

// EnvToken reads the token from an environment variable on every call.
type EnvToken string

// Token implements AuthTokenProvider.
func (e EnvToken) Token(context.Context) (string, error) {
	return strings.TrimSpace(os.Getenv(string(e))), nil
}
