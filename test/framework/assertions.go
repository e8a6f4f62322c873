package framework

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Assertions provides test assertions that narrate e2e progress.
type Assertions struct {
	t TestingT
}

// NewAssertions creates an assertion helper for t.
func NewAssertions(t TestingT) *Assertions {
	return &Assertions{t: t}
}

// Step logs a test step.
func (a *Assertions) Step(format string, args ...interface{}) {
	a.t.Helper()
	a.t.Logf("  → "+format, args...)
}

// Success logs a completed step.
func (a *Assertions) Success(format string, args ...interface{}) {
	a.t.Helper()
	a.t.Logf("  ✓ "+format, args...)
}

// NoError fails the test immediately when err is non-nil.
func (a *Assertions) NoError(err error, msgAndArgs ...interface{}) {
	a.t.Helper()
	if err != nil {
		a.t.Fatalf("%s: unexpected error: %v", formatMsg(msgAndArgs), err)
	}
}

// Error fails the test immediately when err is nil.
func (a *Assertions) Error(err error, msgAndArgs ...interface{}) {
	a.t.Helper()
	if err == nil {
		a.t.Fatalf("%s: expected an error, got none", formatMsg(msgAndArgs))
	}
}

// Equal fails the test when expected != actual.
func (a *Assertions) Equal(expected, actual interface{}, msgAndArgs ...interface{}) {
	a.t.Helper()
	if fmt.Sprintf("%v", expected) != fmt.Sprintf("%v", actual) {
		a.t.Fatalf("%s: expected %v, got %v", formatMsg(msgAndArgs), expected, actual)
	}
}

// True fails the test when condition is false.
func (a *Assertions) True(condition bool, msgAndArgs ...interface{}) {
	a.t.Helper()
	if !condition {
		a.t.Fatalf("%s: expected condition to be true", formatMsg(msgAndArgs))
	}
}

// Contains fails the test when s does not contain substr.
func (a *Assertions) Contains(s, substr string, msgAndArgs ...interface{}) {
	a.t.Helper()
	if !strings.Contains(s, substr) {
		a.t.Fatalf("%s: expected %q to contain %q", formatMsg(msgAndArgs), s, substr)
	}
}

// Eventually fails the test when condition does not become true within
// timeout.
func (a *Assertions) Eventually(condition func() bool, timeout time.Duration, msgAndArgs ...interface{}) {
	a.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := PollUntil(ctx, 200*time.Millisecond, condition); err != nil {
		a.t.Fatalf("%s: condition not met within %v", formatMsg(msgAndArgs), timeout)
	}
}

func formatMsg(msgAndArgs []interface{}) string {
	if len(msgAndArgs) == 0 {
		return "assertion failed"
	}
	if format, ok := msgAndArgs[0].(string); ok && len(msgAndArgs) > 1 {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprintf("%v", msgAndArgs[0])
}
