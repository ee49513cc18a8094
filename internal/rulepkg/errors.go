package rulepkg

import (
	"errors"
	"fmt"
)

// ErrEmptyName is returned when constructing a package without a name.
var ErrEmptyName = errors.New("rulepkg: package name must not be empty")

// defaultErrorSummary keeps "invalid implies summary present" true when
// SetError is called with an empty summary.
const defaultErrorSummary = "package marked invalid without a summary"

// InvalidRulePackageError is returned by CheckValidity on a package that
// was marked invalid with SetError.
type InvalidRulePackageError struct {
	Package string
	Summary string
}

func (e *InvalidRulePackageError) Error() string {
	return fmt.Sprintf("invalid rule package %q: %s", e.Package, e.Summary)
}

// UnknownRuleFlowError is returned by RemoveRuleFlow for an absent id.
type UnknownRuleFlowError struct {
	ID string
}

func (e *UnknownRuleFlowError) Error() string {
	return fmt.Sprintf("the rule flow with id [%s] is not part of this package", e.ID)
}

// IOError wraps a failure of the underlying stream during WriteExternal or
// ReadExternal.
type IOError struct {
	Op  string // "write" or "read"
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("rulepkg: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// InvalidValueError is returned by WriteExternal when a rule attribute or
// declaration metadata holds a value outside the constrained family.
// Nothing is written to the stream.
type InvalidValueError struct {
	Owner string // e.g. "rule cleanup" or "type declaration org.acme.Tick"
	Err   error
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("rulepkg: %s: %v", e.Owner, e.Err)
}

func (e *InvalidValueError) Unwrap() error {
	return e.Err
}

// DeserializationError is returned by ReadExternal when decoded data cannot
// be bound: a class referenced by a rule does not resolve against the
// restored dialect data, or the dialect blob itself is corrupt.
type DeserializationError struct {
	Rule  string // Empty when the failure is not tied to a rule
	Class string // Empty when the failure is not tied to a class
	Err   error
}

func (e *DeserializationError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("rulepkg: rule %q: cannot resolve class %s: %v", e.Rule, e.Class, e.Err)
	}
	return fmt.Sprintf("rulepkg: deserialize: %v", e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// IsInvalidPackage reports whether err is an InvalidRulePackageError.
// Uses errors.As to handle wrapped errors.
func IsInvalidPackage(err error) bool {
	var ie *InvalidRulePackageError
	return errors.As(err, &ie)
}

// IsUnknownRuleFlow reports whether err is an UnknownRuleFlowError.
func IsUnknownRuleFlow(err error) bool {
	var ue *UnknownRuleFlowError
	return errors.As(err, &ue)
}

// IsDeserialization reports whether err is a DeserializationError.
func IsDeserialization(err error) bool {
	var de *DeserializationError
	return errors.As(err, &de)
}
