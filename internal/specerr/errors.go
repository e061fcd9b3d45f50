// Package specerr holds the typed error values raised while parsing,
// validating and planning an mnb spec. Each mirrors one of the
// SpecSemanticError subclasses in the Python predecessor's errors.py:
// it carries enough of the offending action/value to render a precise
// message, and callers can recover the concrete type with errors.As.
package specerr

import "fmt"

// ParseError is raised by the codec for any malformed JSON, schema
// mismatch, or unknown tag.
type ParseError struct {
	Msg      string
	Fragment string
}

func (e *ParseError) Error() string {
	if e.Fragment == "" {
		return fmt.Sprintf("parse error: %s", e.Msg)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Msg, e.Fragment)
}

// UnsupportedSpecVersion is raised when a document's spec_version
// exceeds what this implementation supports.
type UnsupportedSpecVersion struct {
	Major, Minor int
}

func (e *UnsupportedSpecVersion) Error() string {
	return fmt.Sprintf("unsupported spec_version %d.%d", e.Major, e.Minor)
}

// ImageSpecConflict is raised when an image_name has more than one
// producer action (PullImage or BuildImage).
type ImageSpecConflict struct {
	ImageName string
}

func (e *ImageSpecConflict) Error() string {
	return fmt.Sprintf("conflicting definitions for image name %s", e.ImageName)
}

// MissingImageSpec is raised when an Exec names an image with no
// producer action anywhere in the spec.
type MissingImageSpec struct {
	ImageName string
}

func (e *MissingImageSpec) Error() string {
	return fmt.Sprintf("missing image definition for image name %s", e.ImageName)
}

// ProducerConflict is raised when an output value (kind+path) has more
// than one producer action.
type ProducerConflict struct {
	ValueDescription string
}

func (e *ProducerConflict) Error() string {
	return fmt.Sprintf("conflicting producers for %s", e.ValueDescription)
}

// IncompatibleValueAndThrough is raised when a value's kind does not
// match its through's kind (e.g. a Dir value bound ThroughFile).
type IncompatibleValueAndThrough struct {
	Detail string
}

func (e *IncompatibleValueAndThrough) Error() string {
	return fmt.Sprintf("value incompatible with through: %s", e.Detail)
}

// ConflictingMounts is raised when two file/dir inputs of the same Exec
// bind the same through.path.
type ConflictingMounts struct {
	Path string
}

func (e *ConflictingMounts) Error() string {
	return fmt.Sprintf("conflicting mounts on path %s", e.Path)
}

// ConflictingEnvironmentAssignments is raised when two inputs of the
// same Exec assign the same environment variable name.
type ConflictingEnvironmentAssignments struct {
	Name string
}

func (e *ConflictingEnvironmentAssignments) Error() string {
	return fmt.Sprintf("conflicting environment assignments for variable %s", e.Name)
}

// CycleDetected is raised if the planner's topological sort cannot make
// progress, e.g. when two Execs each consume a file the other produces,
// or an Exec consumes a value it also lists as an output.
type CycleDetected struct {
	Remaining []string
}

func (e *CycleDetected) Error() string {
	return fmt.Sprintf("cycle detected among actions: %v", e.Remaining)
}

// UnsupportedOutputThrough is raised at parse time for output throughs
// the executor cannot realize, namely ThroughDir on an output: directory
// outputs are rejected up front rather than propagated to the executor.
type UnsupportedOutputThrough struct {
	Detail string
}

func (e *UnsupportedOutputThrough) Error() string {
	return fmt.Sprintf("unsupported output through: %s", e.Detail)
}

// RuntimeError wraps a failure surfaced by the container runtime, git
// client, or filesystem while executing an action. It carries the name
// of the action for context.
type RuntimeError struct {
	ActionDescription string
	Cause             error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %v", e.ActionDescription, e.Cause)
}

func (e *RuntimeError) Unwrap() error { return e.Cause }

// NonZeroExit is raised when an Exec's container exits with a non-zero
// code; outputs are not written in this case.
type NonZeroExit struct {
	ImageName string
	ExitCode  int64
	Stderr    string
}

func (e *NonZeroExit) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: exit code %d", e.ImageName, e.ExitCode)
	}
	return fmt.Sprintf("%s: exit code %d\nstderr:\n%s", e.ImageName, e.ExitCode, e.Stderr)
}
