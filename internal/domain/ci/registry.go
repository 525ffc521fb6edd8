package ci

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dominikbraun/graph"
)

// Issue describes a structural problem found while building or
// validating a registry.
type Issue struct {
	// Source is the file the offending definition came from.
	Source string
	// Line is the source line of the offending definition, when known.
	Line int
	// Message describes the problem.
	Message string
	// Warning marks issues that do not invalidate the registry.
	Warning bool
}

// Registry is the set of job and template definitions known to the CI system.
// It stands in for the server-side configuration so manifests can be
// validated statically.
type Registry struct {
	// jobs maps job name to its definition.
	jobs map[string]*JobDef
	// jobSource maps job name to its defining file, for diagnostics.
	jobSource map[string]string
	// templates maps template name to its definition.
	templates map[string]*Template
}

// BuildRegistry collects job and template definitions from the provided
// configurations. Duplicate definitions are reported as issues; the first
// definition wins.
func BuildRegistry(cfgs ...*Config) (*Registry, []Issue) {
	r := &Registry{
		jobs:      make(map[string]*JobDef),
		jobSource: make(map[string]string),
		templates: make(map[string]*Template),
	}

	var issues []Issue

	for _, cfg := range cfgs {
		for _, job := range cfg.Jobs {
			if job.Name == "" {
				issues = append(issues, Issue{
					Source:  cfg.Source,
					Line:    job.Line,
					Message: "job definition without a name",
				})

				continue
			}

			if _, ok := r.jobs[job.Name]; ok {
				issues = append(issues, Issue{
					Source:  cfg.Source,
					Line:    job.Line,
					Message: fmt.Sprintf("job %q is defined more than once", job.Name),
				})

				continue
			}

			r.jobs[job.Name] = job
			r.jobSource[job.Name] = cfg.Source
		}

		for _, tpl := range cfg.Templates {
			if tpl.Name == "" {
				issues = append(issues, Issue{
					Source:  cfg.Source,
					Line:    tpl.Line,
					Message: "project-template definition without a name",
				})

				continue
			}

			if _, ok := r.templates[tpl.Name]; ok {
				issues = append(issues, Issue{
					Source:  cfg.Source,
					Line:    tpl.Line,
					Message: fmt.Sprintf("project-template %q is defined more than once", tpl.Name),
				})

				continue
			}

			r.templates[tpl.Name] = tpl
		}
	}

	return r, issues
}

// Job returns the definition for the provided job name.
func (r *Registry) Job(name string) (*JobDef, bool) {
	job, ok := r.jobs[name]
	return job, ok
}

// Template returns the definition for the provided template name.
func (r *Registry) Template(name string) (*Template, bool) {
	tpl, ok := r.templates[name]
	return tpl, ok
}

// Len returns the number of known job definitions.
func (r *Registry) Len() int {
	return len(r.jobs)
}

// ValidateParents checks that job parent chains resolve within the registry
// and do not form inheritance cycles. Unresolved parents are warnings since
// shared configuration repositories may define them; cycles are errors.
func (r *Registry) ValidateParents() []Issue {
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())

	for name := range r.jobs {
		// Names are unique by construction, the error can only be ErrVertexAlreadyExists.
		_ = g.AddVertex(name)
	}

	var issues []Issue

	for _, job := range sortedJobs(r.jobs) {
		if job.Parent == "" {
			continue
		}

		if _, ok := r.jobs[job.Parent]; !ok {
			issues = append(issues, Issue{
				Source:  r.jobSource[job.Name],
				Line:    job.Line,
				Message: fmt.Sprintf("parent %q of job %q is not defined locally", job.Parent, job.Name),
				Warning: true,
			})

			continue
		}

		err := g.AddEdge(job.Parent, job.Name)
		if errors.Is(err, graph.ErrEdgeCreatesCycle) {
			issues = append(issues, Issue{
				Source:  r.jobSource[job.Name],
				Line:    job.Line,
				Message: fmt.Sprintf("job %q creates an inheritance cycle through parent %q", job.Name, job.Parent),
			})
		}
	}

	return issues
}

// ValidateArtifacts checks that every artifact name a job requires is
// provided by some known job. Unresolved names are warnings since the
// producing job may live in another repository.
func (r *Registry) ValidateArtifacts() []Issue {
	provided := make(map[string]struct{})

	for _, job := range r.jobs {
		for _, name := range job.Provides {
			provided[name] = struct{}{}
		}
	}

	var issues []Issue

	for _, job := range sortedJobs(r.jobs) {
		for _, name := range job.Requires {
			if _, ok := provided[name]; !ok {
				issues = append(issues, Issue{
					Source:  r.jobSource[job.Name],
					Line:    job.Line,
					Message: fmt.Sprintf("artifact %q required by job %q is not provided by any known job", name, job.Name),
					Warning: true,
				})
			}
		}
	}

	return issues
}

// sortedJobs returns the definitions ordered by name for stable diagnostics.
func sortedJobs(jobs map[string]*JobDef) []*JobDef {
	names := make([]string, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}

	sort.Strings(names)

	result := make([]*JobDef, 0, len(names))
	for _, name := range names {
		result = append(result, jobs[name])
	}

	return result
}
