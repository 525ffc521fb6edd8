package lint

import (
	"fmt"

	"github.com/baremetal-lab/metalboot/internal/domain/requirements"
)

// CheckRequirements validates one parsed dependency manifest.
// Parse errors become error findings; duplicate constraints for the same
// package under the same environment marker are errors; constraints without
// a license annotation are warnings.
func CheckRequirements(file *requirements.File, parseErrors []*requirements.ParseError) []Finding {
	var findings []Finding

	for _, parseError := range parseErrors {
		findings = append(findings, Finding{
			File:     file.Source,
			Line:     parseError.Line,
			Severity: SeverityError,
			Message:  parseError.Reason,
		})
	}

	// The same package may legitimately appear once per environment marker.
	type constraintKey struct {
		name   string
		marker string
	}

	seen := make(map[constraintKey]int)

	for _, req := range file.Requirements() {
		key := constraintKey{
			name:   req.Key(),
			marker: req.Marker,
		}

		if firstLine, ok := seen[key]; ok {
			findings = append(findings, Finding{
				File:     file.Source,
				Line:     req.Line,
				Severity: SeverityError,
				Message:  fmt.Sprintf("duplicate constraint for %q (first at line %d)", req.Name, firstLine),
			})
		} else {
			seen[key] = req.Line
		}

		if req.License == "" {
			findings = append(findings, Finding{
				File:     file.Source,
				Line:     req.Line,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("%q has no license annotation", req.Name),
			})
		}
	}

	return findings
}
