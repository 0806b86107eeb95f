// Package auth answers whether a currently valid credential exists for the
// external source. Obtaining credentials is done out of band.
package auth

import "context"

//go:generate mockgen -destination=mocks/mock_credential_checker.go -package=mocks -source=credential.go CredentialChecker

// CredentialChecker reports whether a usable credential is available
type CredentialChecker interface {
	// HasValidCredential returns true when a credential exists and has not expired
	HasValidCredential(ctx context.Context) (bool, error)
}

// CredentialCheckerFunc adapts a function to CredentialChecker
type CredentialCheckerFunc func(ctx context.Context) (bool, error)

// HasValidCredential calls f(ctx)
func (f CredentialCheckerFunc) HasValidCredential(ctx context.Context) (bool, error) {
	return f(ctx)
}
