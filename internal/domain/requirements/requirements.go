package requirements

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// EntryKind discriminates manifest line types.
type EntryKind int

const (
	// EntryRequirement is a package constraint line.
	EntryRequirement EntryKind = iota
	// EntryComment is a full-line comment.
	EntryComment
	// EntryBlank is an empty or whitespace-only line.
	EntryBlank
)

// Specifier is a single version constraint, e.g. ">=1.4.0".
type Specifier struct {
	// Op is the comparison operator.
	Op string
	// Version is the constrained version, possibly with wildcards.
	Version string
}

// String renders the specifier in installer syntax.
func (s Specifier) String() string {
	return s.Op + s.Version
}

// Requirement is one parsed package constraint.
type Requirement struct {
	// Name is the package name as written.
	Name string
	// Extras are the optional feature names requested in brackets.
	Extras []string
	// Specifiers are the version constraints in declaration order.
	Specifiers []Specifier
	// Marker is the raw environment marker after ";", if any.
	Marker string
	// License is the trailing comment text, conventionally a license identifier.
	License string
	// Raw is the original line.
	Raw string
	// Line is the 1-based line number in the manifest.
	Line int
}

// Key returns the name normalized for duplicate detection:
// installer package names compare case-insensitively and treat "-", "_"
// and "." as equivalent.
func (r *Requirement) Key() string {
	normalized := strings.ToLower(r.Name)
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, ".", "-")

	return normalized
}

// Entry is one manifest line.
type Entry struct {
	// Kind tells which line type this is.
	Kind EntryKind
	// Requirement is set for EntryRequirement lines.
	Requirement *Requirement
	// Raw is the original line.
	Raw string
	// Line is the 1-based line number.
	Line int
}

// File is a parsed dependency manifest with entry order preserved.
type File struct {
	// Source is the file the manifest was read from.
	Source string
	// Entries are all lines in original order.
	Entries []Entry
}

// Requirements returns only the package constraint entries, in order.
func (f *File) Requirements() []*Requirement {
	result := make([]*Requirement, 0, len(f.Entries))

	for _, entry := range f.Entries {
		if entry.Kind == EntryRequirement {
			result = append(result, entry.Requirement)
		}
	}

	return result
}

// ParseError describes a malformed manifest line.
type ParseError struct {
	// Source is the manifest file.
	Source string
	// Line is the 1-based line number.
	Line int
	// Reason describes what failed to parse.
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Source, e.Line, e.Reason)
}

var (
	// namePattern matches an installer package name: alphanumeric with
	// inner dots, hyphens and underscores.
	namePattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)
	// specifierPattern matches one version constraint. Operator alternatives
	// are ordered so that longer operators win.
	specifierPattern = regexp.MustCompile(`^(===|==|~=|!=|>=|<=|>|<)\s*([A-Za-z0-9!+*_.-]+)$`)
)

// Parse decodes a dependency manifest. Malformed lines are reported
// individually so one bad line does not hide the rest of the file.
func Parse(data []byte, source string) (*File, []*ParseError) {
	file := &File{
		Source: source,
	}

	var parseErrors []*ParseError

	scanner := bufio.NewScanner(bytes.NewReader(data))

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++

		raw := scanner.Text()
		trimmed := strings.TrimSpace(raw)

		switch {
		case trimmed == "":
			file.Entries = append(file.Entries, Entry{
				Kind: EntryBlank,
				Raw:  raw,
				Line: lineNumber,
			})
		case strings.HasPrefix(trimmed, "#"):
			file.Entries = append(file.Entries, Entry{
				Kind: EntryComment,
				Raw:  raw,
				Line: lineNumber,
			})
		default:
			req, err := parseRequirement(trimmed, source, lineNumber)
			if err != nil {
				parseErrors = append(parseErrors, err)
				continue
			}

			req.Raw = raw
			file.Entries = append(file.Entries, Entry{
				Kind:        EntryRequirement,
				Requirement: req,
				Raw:         raw,
				Line:        lineNumber,
			})
		}
	}

	// Scanner errors cannot occur on an in-memory reader unless a line
	// exceeds the buffer; report it against the last seen line.
	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, &ParseError{
			Source: source,
			Line:   lineNumber,
			Reason: err.Error(),
		})
	}

	return file, parseErrors
}

// parseRequirement decodes a single non-empty constraint line without its
// original indentation.
func parseRequirement(line, source string, lineNumber int) (*Requirement, *ParseError) {
	fail := func(format string, args ...any) *ParseError {
		return &ParseError{
			Source: source,
			Line:   lineNumber,
			Reason: fmt.Sprintf(format, args...),
		}
	}

	spec, comment := splitComment(line)

	req := &Requirement{
		License: strings.TrimSpace(strings.TrimPrefix(comment, "#")),
		Line:    lineNumber,
	}

	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fail("constraint expected before comment")
	}

	// Environment marker, e.g. `;python_version>='3.6'`.
	if idx := strings.Index(spec, ";"); idx >= 0 {
		req.Marker = strings.TrimSpace(spec[idx+1:])
		spec = strings.TrimSpace(spec[:idx])

		if req.Marker == "" {
			return nil, fail("empty environment marker")
		}
	}

	// Package name runs up to the first character that cannot be part of it.
	nameEnd := len(spec)
	for i, r := range spec {
		if r == '[' || r == '(' || r == '<' || r == '>' || r == '=' || r == '!' || r == '~' || unicode.IsSpace(r) {
			nameEnd = i
			break
		}
	}

	req.Name = spec[:nameEnd]
	if !namePattern.MatchString(req.Name) {
		return nil, fail("invalid package name %q", req.Name)
	}

	rest := strings.TrimSpace(spec[nameEnd:])

	// Extras, e.g. `[keystone,swift]`.
	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return nil, fail("unterminated extras list")
		}

		for _, extra := range strings.Split(rest[1:end], ",") {
			extra = strings.TrimSpace(extra)
			if !namePattern.MatchString(extra) {
				return nil, fail("invalid extra %q", extra)
			}

			req.Extras = append(req.Extras, extra)
		}

		rest = strings.TrimSpace(rest[end+1:])
	}

	if rest == "" {
		return req, nil
	}

	// Installer syntax also allows parenthesized specifier lists.
	if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
		rest = strings.TrimSpace(rest[1 : len(rest)-1])
	}

	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)

		match := specifierPattern.FindStringSubmatch(part)
		if match == nil {
			return nil, fail("invalid version specifier %q", part)
		}

		req.Specifiers = append(req.Specifiers, Specifier{
			Op:      match[1],
			Version: match[2],
		})
	}

	return req, nil
}

// splitComment cuts a trailing comment off the line. A "#" starts a comment
// only at the beginning of the line or after whitespace.
func splitComment(line string) (spec, comment string) {
	for i, r := range line {
		if r != '#' {
			continue
		}

		if i == 0 || unicode.IsSpace(rune(line[i-1])) {
			return line[:i], line[i:]
		}
	}

	return line, ""
}
