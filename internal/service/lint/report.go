package lint

import (
	"fmt"
	"sort"
	"sync"
)

// Severity classifies a finding.
type Severity int

const (
	// SeverityWarning reports a problem that does not fail the run.
	SeverityWarning Severity = iota
	// SeverityError reports a problem that fails the run.
	SeverityError
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}

	return "warning"
}

// Finding is one validation result tied to a manifest location.
type Finding struct {
	// File is the manifest the finding refers to.
	File string
	// Line is the 1-based line number, 0 when unknown.
	Line int
	// Severity classifies the finding.
	Severity Severity
	// Message describes the problem.
	Message string
}

// String renders the finding in file:line: severity: message form.
func (f Finding) String() string {
	if f.Line > 0 {
		return fmt.Sprintf("%s:%d: %s: %s", f.File, f.Line, f.Severity, f.Message)
	}

	return fmt.Sprintf("%s: %s: %s", f.File, f.Severity, f.Message)
}

// Report accumulates findings from concurrently validated files.
type Report struct {
	// mu protects findings.
	mu sync.Mutex
	// findings holds everything collected so far.
	findings []Finding
}

// Add appends findings to the report.
func (r *Report) Add(findings ...Finding) {
	if len(findings) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.findings = append(r.findings, findings...)
}

// Findings returns the collected findings sorted by file, line and message.
func (r *Report) Findings() []Finding {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]Finding, len(r.findings))
	copy(result, r.findings)

	sort.Slice(result, func(i, j int) bool {
		if result[i].File != result[j].File {
			return result[i].File < result[j].File
		}

		if result[i].Line != result[j].Line {
			return result[i].Line < result[j].Line
		}

		return result[i].Message < result[j].Message
	})

	return result
}

// HasErrors reports whether any error-severity finding was collected.
func (r *Report) HasErrors() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, finding := range r.findings {
		if finding.Severity == SeverityError {
			return true
		}
	}

	return false
}
