package lint

import (
	"fmt"

	"github.com/baremetal-lab/metalboot/internal/domain/ci"
)

// registryFindings converts registry issues into findings.
func registryFindings(issues []ci.Issue) []Finding {
	findings := make([]Finding, 0, len(issues))

	for _, issue := range issues {
		severity := SeverityError
		if issue.Warning {
			severity = SeverityWarning
		}

		findings = append(findings, Finding{
			File:     issue.Source,
			Line:     issue.Line,
			Severity: severity,
			Message:  issue.Message,
		})
	}

	return findings
}

// CheckProject validates one project declaration against the registry.
func CheckProject(project *ci.Project, registry *ci.Registry, source string) []Finding {
	var findings []Finding

	// Referenced templates must be known; known ones contribute job names
	// to the resolution set.
	contributed := make(map[string]struct{})

	for _, name := range project.Templates {
		tpl, ok := registry.Template(name)
		if !ok {
			findings = append(findings, Finding{
				File:     source,
				Severity: SeverityError,
				Message:  fmt.Sprintf("template %q is not defined", name),
			})

			continue
		}

		for _, np := range tpl.Pipelines() {
			for i := range np.Pipeline.Jobs {
				contributed[np.Pipeline.Jobs[i].Name] = struct{}{}
			}
		}
	}

	for _, np := range project.Pipelines() {
		findings = append(findings, checkPipeline(np, registry, contributed, source)...)
	}

	return findings
}

// checkPipeline validates job references and gate-specific rules of one stage.
func checkPipeline(np ci.NamedPipeline, registry *ci.Registry, contributed map[string]struct{}, source string) []Finding {
	var findings []Finding

	if np.Name == ci.PipelineGate && np.Pipeline.Queue == "" {
		findings = append(findings, Finding{
			File:     source,
			Severity: SeverityError,
			Message:  "gate pipeline must name a queue",
		})
	}

	seen := make(map[string]int, len(np.Pipeline.Jobs))

	for i := range np.Pipeline.Jobs {
		job := &np.Pipeline.Jobs[i]

		if firstLine, ok := seen[job.Name]; ok {
			findings = append(findings, Finding{
				File:     source,
				Line:     job.Line,
				Severity: SeverityError,
				Message: fmt.Sprintf("job %q is listed more than once in %s (first at line %d)",
					job.Name, np.Name, firstLine),
			})
		} else {
			seen[job.Name] = job.Line
		}

		if _, ok := registry.Job(job.Name); !ok {
			if _, ok = contributed[job.Name]; !ok {
				findings = append(findings, Finding{
					File:     source,
					Line:     job.Line,
					Severity: SeverityError,
					Message:  fmt.Sprintf("job %q is not defined", job.Name),
				})
			}
		}

		// A job that cannot block the merge has no place in gate.
		if np.Name == ci.PipelineGate && !job.IsVoting() {
			findings = append(findings, Finding{
				File:     source,
				Line:     job.Line,
				Severity: SeverityError,
				Message:  fmt.Sprintf("job %q is non-voting and cannot gate", job.Name),
			})
		}
	}

	return findings
}

// CheckTemplates validates that template-declared job references themselves
// resolve against the registry. Unresolved ones are warnings: templates are
// often shared across repositories with jobs defined elsewhere.
func CheckTemplates(cfg *ci.Config, registry *ci.Registry) []Finding {
	var findings []Finding

	for _, tpl := range cfg.Templates {
		for _, np := range tpl.Pipelines() {
			for i := range np.Pipeline.Jobs {
				job := &np.Pipeline.Jobs[i]

				if _, ok := registry.Job(job.Name); !ok {
					findings = append(findings, Finding{
						File:     cfg.Source,
						Line:     job.Line,
						Severity: SeverityWarning,
						Message: fmt.Sprintf("template %q references job %q which is not defined locally",
							tpl.Name, job.Name),
					})
				}
			}
		}
	}

	return findings
}
