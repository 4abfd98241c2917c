package interpreter

import (
	"fmt"
	"sort"
)

// FailureKind taxonomizes why an Execute call did not produce a result.
type FailureKind string

const (
	FailureExecution        FailureKind = "execution_error"
	FailureTimeout          FailureKind = "timeout"
	FailureSecurityViolation FailureKind = "security_violation"
	FailureResourceExceeded FailureKind = "resource_exceeded"
)

// Failure is returned (wrapped in an error) whenever a snippet does not run
// to completion within its sandbox. Module and Allowed are populated only
// for FailureSecurityViolation raised by an import-allowlist check: Module
// names the package the snippet tried to reach, Allowed lists every package
// the sandbox does expose, so the caller can relay both back to the LLM.
type Failure struct {
	Kind    FailureKind
	Message string
	Module  string
	Allowed []string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("interpreter: %s: %s", f.Kind, f.Message)
}

func securityViolation(format string, args ...any) error {
	return &Failure{Kind: FailureSecurityViolation, Message: fmt.Sprintf(format, args...)}
}

// blockedImport reports a disallowed package reference, carrying the
// offending module name and the full allowlist so the caller can surface
// both without re-deriving them from the message string.
func blockedImport(module string) error {
	allowed := allowedPackageNames()
	return &Failure{
		Kind:    FailureSecurityViolation,
		Message: fmt.Sprintf("package %q is not in the allowlist %v", module, allowed),
		Module:  module,
		Allowed: allowed,
	}
}

func allowedPackageNames() []string {
	names := make([]string, 0, len(allowedPackages))
	for name := range allowedPackages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func executionError(format string, args ...any) error {
	return &Failure{Kind: FailureExecution, Message: fmt.Sprintf(format, args...)}
}

func resourceExceeded(format string, args ...any) error {
	return &Failure{Kind: FailureResourceExceeded, Message: fmt.Sprintf(format, args...)}
}

func timeoutFailure(format string, args ...any) error {
	return &Failure{Kind: FailureTimeout, Message: fmt.Sprintf(format, args...)}
}
