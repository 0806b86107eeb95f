package scheduler

import (
	"context"
	"log/slog"

	"github.com/stacklok/toolhive-sync-scheduler/internal/auth"
	"github.com/stacklok/toolhive-sync-scheduler/internal/settings"
)

// ReadinessGate keeps syncs from running while two-step verification is
// required and no valid credential is available. It is consulted on every
// iteration because the credential can appear at any time.
type ReadinessGate struct {
	checker auth.CredentialChecker
}

// NewReadinessGate creates a gate backed by checker. A nil checker never
// reports a valid credential.
func NewReadinessGate(checker auth.CredentialChecker) *ReadinessGate {
	return &ReadinessGate{checker: checker}
}

// IsBlocked reports whether a sync must not run for the given settings
func (g *ReadinessGate) IsBlocked(ctx context.Context, snap settings.Snapshot) bool {
	if !snap.TwoFactorAuthEnabled {
		return false
	}
	if g.checker == nil {
		return true
	}

	valid, err := g.checker.HasValidCredential(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to check credential, treating as missing", "error", err)
		return true
	}
	return !valid
}
