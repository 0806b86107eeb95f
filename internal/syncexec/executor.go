// Package syncexec is the boundary to the sync execution engine. It turns
// every way an attempt can end into a tagged Outcome so callers never deal
// with panics or raw errors from the engine.
package syncexec

import (
	"context"
	"fmt"
	"runtime/debug"
)

//go:generate mockgen -destination=mocks/mock_executor.go -package=mocks -source=executor.go Executor

// Result is what the sync engine reports for a completed attempt
type Result struct {
	// Success is false when the engine ran but the sync did not succeed
	Success bool `json:"success"`
	// Message is an optional human readable explanation
	Message string `json:"message,omitempty"`
}

// Executor runs a single sync attempt
type Executor interface {
	// Sync syncs up to itemCount items. forceReclassify asks the engine to
	// reclassify items it has already seen.
	Sync(ctx context.Context, itemCount int, forceReclassify bool) (*Result, error)
}

// OutcomeKind tags how a sync attempt ended
type OutcomeKind string

const (
	// OutcomeOK means the engine reported success
	OutcomeOK OutcomeKind = "ok"
	// OutcomeFailed means the engine reported an explicit failure
	OutcomeFailed OutcomeKind = "failed"
	// OutcomeFaulted means the engine call errored or panicked
	OutcomeFaulted OutcomeKind = "faulted"
)

// Outcome is the tagged result of one sync attempt
type Outcome struct {
	Kind OutcomeKind
	// Message is the engine's message for OK and Failed outcomes
	Message string
	// Detail holds the fault for Faulted outcomes
	Detail error
}

// Succeeded reports whether the attempt ended OK
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeOK
}

// PanicError wraps a value recovered from a panicking executor
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("sync engine panicked: %v", e.Value)
}

// Invoke calls the executor once and classifies the result.
// It never panics and never returns an error.
func Invoke(ctx context.Context, exec Executor, itemCount int, forceReclassify bool) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = Outcome{
				Kind:   OutcomeFaulted,
				Detail: &PanicError{Value: r, Stack: debug.Stack()},
			}
		}
	}()

	if exec == nil {
		return Outcome{Kind: OutcomeFaulted, Detail: fmt.Errorf("no sync executor configured")}
	}

	result, err := exec.Sync(ctx, itemCount, forceReclassify)
	switch {
	case err != nil:
		return Outcome{Kind: OutcomeFaulted, Detail: err}
	case result == nil:
		return Outcome{Kind: OutcomeFaulted, Detail: fmt.Errorf("sync engine returned no result")}
	case result.Success:
		return Outcome{Kind: OutcomeOK, Message: result.Message}
	default:
		return Outcome{Kind: OutcomeFailed, Message: result.Message}
	}
}
