// Package policyfile loads and validates Warden's YAML policy corpus
// from a directory on disk.
package policyfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/internal/domain/policy"
)

// unknownFieldPattern extracts the line and field name from one of
// yaml.v3's strict-decode error lines, e.g. "line 4: field max_ammount
// not found in type policy.AllowRule".
var unknownFieldPattern = regexp.MustCompile(`^line (\d+): field (\S+) not found in type`)

// maxFileSize bounds a single policy file, guarding against an
// operator accidentally pointing the watcher at something enormous.
const maxFileSize = 1 << 20 // 1 MiB

// allowedExtensions lists the file suffixes treated as policy files;
// everything else in the directory is ignored.
var allowedExtensions = []string{".yaml", ".yml"}

// LoadError describes a failure to read or parse one file. It is
// distinct from policy.ValidationError, which describes a file that
// was read and parsed but rejected on its merits.
type LoadError struct {
	FilePath string
	Message  string
	Cause    error
}

func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.FilePath, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.FilePath, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Cause }

// Loader reads policy files from a directory and parses them into
// domain RuleDocuments, independently per file.
type Loader struct{}

// NewLoader returns a ready-to-use Loader.
func NewLoader() *Loader { return &Loader{} }

// Result is the outcome of loading one directory: the documents that
// parsed and validated cleanly, plus every error encountered across
// every file (one file's failure never suppresses another's success,
// so directory loads stay order-independent).
type Result struct {
	Docs   []policy.RuleDocument
	Errors []error
}

// LoadDirectory loads every policy file in dir, independently
// validating each one. A file that fails to read, fails to parse, or
// fails ValidateDocument is recorded in Result.Errors and excluded
// from Result.Docs; it never blocks the other files in the
// directory. After collecting per-file documents, LoadDirectory runs
// the cross-file global validation phase: if that fails, every
// document is dropped (the whole installable set is invalid) and the
// global error is appended to Result.Errors.
func (l *Loader) LoadDirectory(dir string) (Result, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, &LoadError{FilePath: dir, Message: "directory not found", Cause: err}
		}
		return Result{}, &LoadError{FilePath: dir, Message: "failed to access directory", Cause: err}
	}
	if !info.IsDir() {
		return Result{}, &LoadError{FilePath: dir, Message: "not a directory"}
	}

	files, err := l.collectPolicyFiles(dir)
	if err != nil {
		return Result{}, err
	}

	var result Result
	docPtrs := make([]*policy.RuleDocument, 0, len(files))
	for _, path := range files {
		doc, err := l.loadFile(path)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		docPtrs = append(docPtrs, doc)
		result.Docs = append(result.Docs, *doc)
	}

	if len(docPtrs) == 0 {
		return result, nil
	}
	if gerr := policy.ValidateGlobal(docPtrs); gerr != nil {
		result.Docs = nil
		result.Errors = append(result.Errors, gerr)
	}
	return result, nil
}

// loadFile reads, size/UTF-8-checks, parses and shape/business-
// validates a single policy file.
func (l *Loader) loadFile(path string) (*policy.RuleDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "failed to access file", Cause: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &LoadError{FilePath: path, Message: "not a regular file"}
	}
	if info.Size() > maxFileSize {
		return nil, &LoadError{FilePath: path, Message: fmt.Sprintf("file size %d bytes exceeds maximum %d bytes", info.Size(), maxFileSize)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "failed to read file", Cause: err}
	}
	if !utf8.Valid(data) {
		return nil, &LoadError{FilePath: path, Message: "file contains invalid UTF-8 encoding"}
	}

	var doc policy.RuleDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		if verr := unknownFieldIssues(filepath.Base(path), err); verr != nil {
			return nil, verr
		}
		return nil, &LoadError{FilePath: path, Message: "YAML parsing failed", Cause: err}
	}
	doc.FileName = filepath.Base(path)

	if verr := policy.ValidateDocument(&doc); verr != nil {
		return nil, verr
	}
	return &doc, nil
}

// collectPolicyFiles lists dir's immediate entries (non-recursively),
// collecting every .yaml/.yml file as a policy file. Hidden entries and
// subdirectories are skipped; a symlink is resolved and only followed
// once, rather than trusted blindly.
func (l *Loader) collectPolicyFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{FilePath: dir, Message: "failed to read directory", Cause: err}
	}

	var files []string
	visited := make(map[string]bool)

	for _, d := range entries {
		if strings.HasPrefix(d.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, d.Name())

		if d.Type()&fs.ModeSymlink != 0 {
			real, err := filepath.EvalSymlinks(path)
			if err != nil {
				return nil, &LoadError{FilePath: path, Message: "failed to resolve symlink", Cause: err}
			}
			if visited[real] {
				return nil, &LoadError{FilePath: path, Message: "symlink loop detected"}
			}
			visited[real] = true
			if hasValidExtension(real) {
				files = append(files, path)
			}
			continue
		}

		if d.IsDir() {
			continue
		}
		if hasValidExtension(path) {
			files = append(files, path)
		}
	}

	sort.Strings(files)
	return files, nil
}

// unknownFieldIssues converts a yaml.v3 strict-decode error into a
// shape-phase ValidationError when it reports unknown keys, so a
// misspelled field (e.g. max_ammount, condtions) is rejected instead of
// silently dropped along with the constraint it was meant to carry.
// Other *yaml.TypeError lines (e.g. a type mismatch) are added to the
// same ValidationError verbatim. A failure that is not a
// *yaml.TypeError (e.g. malformed YAML) returns nil and is reported as
// a plain LoadError instead.
func unknownFieldIssues(fileName string, err error) *policy.ValidationError {
	var terr *yaml.TypeError
	if !errors.As(err, &terr) {
		return nil
	}
	verr := &policy.ValidationError{}
	for _, line := range terr.Errors {
		if m := unknownFieldPattern.FindStringSubmatch(line); m != nil {
			verr.Add(fileName, fmt.Sprintf("$ (line %s)", m[1]), fmt.Sprintf("unknown field %q is not part of the policy schema", m[2]))
			continue
		}
		verr.Add(fileName, "$", line)
	}
	if !verr.HasIssues() {
		return nil
	}
	return verr
}

func hasValidExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, valid := range allowedExtensions {
		if ext == valid {
			return true
		}
	}
	return false
}
