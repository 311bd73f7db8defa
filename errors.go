package keel

import (
	"fmt"
	"strings"
)

// =============================================================================
// ERROR CODES
// =============================================================================

const (
	// CodeFeatureUndefined indicates no loader was found for a feature
	// anywhere up the ancestor chain.
	CodeFeatureUndefined = "FEATURE_UNDEFINED"

	// CodeScopeUndefined indicates a branch was requested for a scope
	// that was never declared on the root.
	CodeScopeUndefined = "SCOPE_UNDEFINED"

	// CodeScopeContextUnavailable indicates ContextFor walked to the root
	// without finding the scope.
	CodeScopeContextUnavailable = "SCOPE_CONTEXT_UNAVAILABLE"

	// CodeLoadingFailed indicates a loader's load or completion hook
	// returned an error.
	CodeLoadingFailed = "FEATURE_LOADING_FAILED"

	// CodeInternalInconsistency indicates a type-identity mismatch between
	// the expected and actual feature type. Always a programming bug.
	CodeInternalInconsistency = "INTERNAL_INCONSISTENCY"

	// CodeContainerClosed indicates an operation on a torn-down node.
	CodeContainerClosed = "CONTAINER_CLOSED"

	// CodeInvalidRegistration indicates a nil load function or otherwise
	// unusable loader was handed to the registry builder.
	CodeInvalidRegistration = "INVALID_REGISTRATION"
)

// =============================================================================
// ERROR TYPE
// =============================================================================

// Error is the typed error returned by all container operations.
// It carries a stable code for matching, an optional cause, and
// structured context for diagnostics.
type Error struct {
	Code    string
	Message string
	Cause   error
	Fields  map[string]any
}

// NewError creates a typed container error.
func NewError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code, so sentinel comparisons via errors.Is work
// regardless of the message and context attached by constructors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)

	return ok && t.Code == e.Code
}

// WithContext attaches a structured diagnostic field.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}

	e.Fields[key] = value

	return e
}

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

// ErrFeatureUndefined is the sentinel for errors.Is checks against
// CodeFeatureUndefined. This is the one error class a caller may treat
// as "maybe legitimate" (an intentionally unavailable optional feature).
var ErrFeatureUndefined = NewError(CodeFeatureUndefined, "feature undefined", nil)

// ErrScopeUndefined is the sentinel for branch requests against
// undeclared scopes.
var ErrScopeUndefined = NewError(CodeScopeUndefined, "scope undefined", nil)

// ErrScopeContextUnavailable is the sentinel for ContextFor misses.
var ErrScopeContextUnavailable = NewError(CodeScopeContextUnavailable, "scope context unavailable", nil)

// ErrLoadingFailed is the sentinel for loader failures.
var ErrLoadingFailed = NewError(CodeLoadingFailed, "feature loading failed", nil)

// ErrInternalInconsistency is the sentinel for type-identity mismatches.
var ErrInternalInconsistency = NewError(CodeInternalInconsistency, "internal inconsistency", nil)

// ErrContainerClosed is the sentinel for operations on torn-down nodes.
var ErrContainerClosed = NewError(CodeContainerClosed, "container closed", nil)

// ErrInvalidRegistration is the sentinel for unusable registrations
// reported by NewRoot.
var ErrInvalidRegistration = NewError(CodeInvalidRegistration, "invalid registration", nil)

// =============================================================================
// ERROR CONSTRUCTORS
// =============================================================================

// errFeatureUndefined creates the terminal error for a resolution that
// fell through the whole ancestor chain.
func errFeatureUndefined(feature FeatureID, chain []ScopeID) *Error {
	return NewError(
		CodeFeatureUndefined,
		fmt.Sprintf("no loader for feature %s in scope chain %s", feature, formatChain(chain)),
		nil,
	).WithContext("feature", feature.String()).
		WithContext("scopes", formatChain(chain))
}

// errScopeUndefined creates an error for branching into an undeclared scope.
func errScopeUndefined(scope ScopeID) *Error {
	return NewError(
		CodeScopeUndefined,
		fmt.Sprintf("scope %q was never declared on the root", scope),
		nil,
	).WithContext("scope", scope.String())
}

// errScopeContextUnavailable creates an error for a ContextFor walk that
// reached the root.
func errScopeContextUnavailable(scope ScopeID, chain []ScopeID) *Error {
	return NewError(
		CodeScopeContextUnavailable,
		fmt.Sprintf("no ancestor in chain %s carries context for scope %q", formatChain(chain), scope),
		nil,
	).WithContext("scope", scope.String()).
		WithContext("scopes", formatChain(chain))
}

// errLoadingFailed wraps a loader failure, preserving the cause and the
// scope chain at the point of failure.
func errLoadingFailed(feature FeatureID, chain []ScopeID, cause error) *Error {
	return NewError(
		CodeLoadingFailed,
		fmt.Sprintf("loading feature %s in scope chain %s", feature, formatChain(chain)),
		cause,
	).WithContext("feature", feature.String()).
		WithContext("scopes", formatChain(chain))
}

// errTypeMismatch creates an internal-inconsistency error for a value
// that does not have the requested feature type.
func errTypeMismatch(feature FeatureID, actual any) *Error {
	return NewError(
		CodeInternalInconsistency,
		fmt.Sprintf("feature %s resolved to incompatible value of type %T", feature, actual),
		nil,
	).WithContext("feature", feature.String()).
		WithContext("actual_type", fmt.Sprintf("%T", actual))
}

// errContainerClosed creates an error for an operation on a closed node.
func errContainerClosed(scope ScopeID) *Error {
	return NewError(
		CodeContainerClosed,
		fmt.Sprintf("scope %q has been torn down", scope),
		nil,
	).WithContext("scope", scope.String())
}

// errInvalidRegistration creates an error for unusable registrations
// collected by the registry builder.
func errInvalidRegistration(feature FeatureID, reason string) *Error {
	return NewError(
		CodeInvalidRegistration,
		fmt.Sprintf("registration of feature %s: %s", feature, reason),
		nil,
	).WithContext("feature", feature.String())
}

// formatChain renders a scope chain from the requesting node upward.
func formatChain(chain []ScopeID) string {
	if len(chain) == 0 {
		return "<empty>"
	}

	parts := make([]string, len(chain))
	for i, scope := range chain {
		parts[i] = string(scope)
	}

	return strings.Join(parts, " -> ")
}
