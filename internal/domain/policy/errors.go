package policy

import "fmt"

// ValidationIssue is one validation failure, tagged with the file and
// JSON-path-like location of the offending node.
type ValidationIssue struct {
	File    string
	Path    string
	Message string
}

func (i ValidationIssue) String() string {
	if i.Path == "" {
		return fmt.Sprintf("%s: %s", i.File, i.Message)
	}
	return fmt.Sprintf("%s: %s: %s", i.File, i.Path, i.Message)
}

// ValidationError aggregates the issues found while validating one or
// more rule documents. A non-empty ValidationError means the
// associated documents must not be installed.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "policy validation failed"
	}
	if len(e.Issues) == 1 {
		return e.Issues[0].String()
	}
	return fmt.Sprintf("%s (and %d more)", e.Issues[0].String(), len(e.Issues)-1)
}

// Add appends an issue to the error, returning the receiver for chaining.
func (e *ValidationError) Add(file, path, message string) *ValidationError {
	e.Issues = append(e.Issues, ValidationIssue{File: file, Path: path, Message: message})
	return e
}

// HasIssues reports whether any issue was recorded.
func (e *ValidationError) HasIssues() bool {
	return e != nil && len(e.Issues) > 0
}
