package flow

import (
	"context"
	"strings"
)

// CallStack is the ordered list of workflow identifiers accumulated across
// nested sub-workflow invocations within one top-level run. It is append-only:
// every nested call receives a copy with itself appended, so sibling branches
// can never corrupt each other's view of the stack.
type CallStack []string

// Contains reports whether the workflow identifier is already on the stack.
func (s CallStack) Contains(workflowID string) bool {
	for _, id := range s {
		if id == workflowID {
			return true
		}
	}
	return false
}

// Push returns a new stack with workflowID appended. The receiver is never
// mutated; the copy has exclusive backing storage.
func (s CallStack) Push(workflowID string) CallStack {
	next := make(CallStack, len(s), len(s)+1)
	copy(next, s)
	return append(next, workflowID)
}

// Describe renders the cycle path for error messages, e.g. "W1 -> W2 -> W1".
func (s CallStack) Describe(workflowID string) string {
	parts := make([]string, 0, len(s)+1)
	parts = append(parts, s...)
	parts = append(parts, workflowID)
	return strings.Join(parts, " -> ")
}

type callStackKey struct{}

// WithCallStack stores the call stack in the context for the duration of one
// run. The scheduler sets it at run start; the sub-workflow executor reads
// and extends it.
func WithCallStack(ctx context.Context, stack CallStack) context.Context {
	return context.WithValue(ctx, callStackKey{}, stack)
}

// CallStackFromContext retrieves the current call stack, or an empty one.
func CallStackFromContext(ctx context.Context) CallStack {
	if ctx == nil {
		return nil
	}
	if stack, ok := ctx.Value(callStackKey{}).(CallStack); ok {
		return stack
	}
	return nil
}
