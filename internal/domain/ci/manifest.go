package ci

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Pipeline names used in project and template definitions.
const (
	PipelineCheck = "check"
	PipelineGate  = "gate"
	PipelinePost  = "post"
)

var (
	// errJobEntryShape is returned when a job entry is neither a scalar nor a single-key mapping.
	errJobEntryShape = errors.New("job entry must be a name or a single-key mapping")
	// errUnknownDocument is returned when a top-level entry declares none of the known kinds.
	errUnknownDocument = errors.New("entry must declare a project, job or project-template")
)

// JobRef is a reference to a job inside a pipeline.
// In YAML it is either a bare scalar name or a single-key mapping
// whose value holds attributes such as the voting flag.
type JobRef struct {
	// Name is the referenced job name.
	Name string
	// Voting overrides the voting behavior; nil means unannotated.
	Voting *bool
	// Attrs preserves attribute keys this tool does not interpret.
	Attrs map[string]any
	// Line is the source line of the entry, for diagnostics.
	Line int
}

// IsVoting reports whether a failure of this job blocks merge.
// Unannotated entries vote.
func (j *JobRef) IsVoting() bool {
	return j.Voting == nil || *j.Voting
}

// UnmarshalYAML decodes the scalar and single-key mapping forms of a job entry.
func (j *JobRef) UnmarshalYAML(node *yaml.Node) error {
	j.Line = node.Line

	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&j.Name)
	case yaml.MappingNode:
		const mappingEntrySize = 2
		if len(node.Content) != mappingEntrySize {
			return fmt.Errorf("line %d: %w", node.Line, errJobEntryShape)
		}

		if err := node.Content[0].Decode(&j.Name); err != nil {
			return fmt.Errorf("line %d: job name: %w", node.Line, err)
		}

		body := node.Content[1]

		var attrs struct {
			Voting *bool `yaml:"voting"`
		}

		if err := body.Decode(&attrs); err != nil {
			return fmt.Errorf("line %d: job %q attributes: %w", node.Line, j.Name, err)
		}

		j.Voting = attrs.Voting

		// Keep the attributes we do not interpret so callers can report on them.
		var raw map[string]any
		if err := body.Decode(&raw); err == nil {
			delete(raw, "voting")

			if len(raw) > 0 {
				j.Attrs = raw
			}
		}

		return nil
	default:
		return fmt.Errorf("line %d: %w", node.Line, errJobEntryShape)
	}
}

// Pipeline is an ordered list of job references within one CI stage.
// Queue is only meaningful for the gate pipeline.
type Pipeline struct {
	// Queue names the shared gate queue for serialized merges.
	Queue string `yaml:"queue"`
	// Jobs are the referenced jobs in declaration order.
	Jobs []JobRef `yaml:"jobs"`
}

// Project declares which pipelines run for a repository and with which jobs.
type Project struct {
	// Templates are named template references applied to this project.
	Templates []string `yaml:"templates"`
	// Check runs against proposed changes; failures report but gating is separate.
	Check *Pipeline `yaml:"check"`
	// Gate runs before merge; failures block.
	Gate *Pipeline `yaml:"gate"`
	// Post runs after merge.
	Post *Pipeline `yaml:"post"`
}

// Pipelines returns the project's non-nil pipelines keyed by name, in fixed order.
func (p *Project) Pipelines() []NamedPipeline {
	return namedPipelines(p.Check, p.Gate, p.Post)
}

// JobDef is a job definition known to the CI system.
type JobDef struct {
	// Name uniquely identifies the job.
	Name string `yaml:"name"`
	// Parent is the job this one inherits from; empty means a root job.
	Parent string `yaml:"parent"`
	// Description is free-form documentation.
	Description string `yaml:"description"`
	// Provides names the artifacts this job publishes for dependent jobs.
	Provides []string `yaml:"provides"`
	// Requires names the artifacts this job consumes from other jobs.
	Requires []string `yaml:"requires"`
	// Line is the source line of the definition.
	Line int `yaml:"-"`
}

// UnmarshalYAML records the source line alongside the declared fields.
func (d *JobDef) UnmarshalYAML(node *yaml.Node) error {
	type plain JobDef

	if err := node.Decode((*plain)(d)); err != nil {
		return err
	}

	d.Line = node.Line

	return nil
}

// Template is a named, reusable set of pipeline job lists.
type Template struct {
	// Name uniquely identifies the template.
	Name string `yaml:"name"`
	// Check, Gate and Post mirror the project pipelines.
	Check *Pipeline `yaml:"check"`
	Gate  *Pipeline `yaml:"gate"`
	Post  *Pipeline `yaml:"post"`
	// Line is the source line of the definition.
	Line int `yaml:"-"`
}

// UnmarshalYAML records the source line alongside the declared fields.
func (t *Template) UnmarshalYAML(node *yaml.Node) error {
	type plain Template

	if err := node.Decode((*plain)(t)); err != nil {
		return err
	}

	t.Line = node.Line

	return nil
}

// Pipelines returns the template's non-nil pipelines keyed by name, in fixed order.
func (t *Template) Pipelines() []NamedPipeline {
	return namedPipelines(t.Check, t.Gate, t.Post)
}

// NamedPipeline pairs a pipeline with its stage name.
type NamedPipeline struct {
	// Name is the stage name: check, gate or post.
	Name string
	// Pipeline is the stage content.
	Pipeline *Pipeline
}

// namedPipelines filters out absent stages while keeping the fixed stage order.
func namedPipelines(check, gate, post *Pipeline) []NamedPipeline {
	all := []NamedPipeline{
		{Name: PipelineCheck, Pipeline: check},
		{Name: PipelineGate, Pipeline: gate},
		{Name: PipelinePost, Pipeline: post},
	}

	result := make([]NamedPipeline, 0, len(all))

	for _, np := range all {
		if np.Pipeline != nil {
			result = append(result, np)
		}
	}

	return result
}

// document is one top-level entry of a configuration file.
// Exactly one of the fields is set per entry.
type document struct {
	Project         *Project  `yaml:"project"`
	Job             *JobDef   `yaml:"job"`
	ProjectTemplate *Template `yaml:"project-template"`
}

// Config is the decoded content of one CI configuration file.
type Config struct {
	// Source is the file the configuration was read from.
	Source string
	// Projects, Jobs and Templates appear in declaration order.
	Projects  []*Project
	Jobs      []*JobDef
	Templates []*Template
}

// Parse decodes a CI configuration file: a YAML list whose entries each
// declare a project, a job or a project-template.
func Parse(data []byte, source string) (*Config, error) {
	var docs []document
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	cfg := &Config{
		Source: source,
	}

	for i, doc := range docs {
		switch {
		case doc.Project != nil:
			cfg.Projects = append(cfg.Projects, doc.Project)
		case doc.Job != nil:
			cfg.Jobs = append(cfg.Jobs, doc.Job)
		case doc.ProjectTemplate != nil:
			cfg.Templates = append(cfg.Templates, doc.ProjectTemplate)
		default:
			return nil, fmt.Errorf("%s: entry %d: %w", source, i+1, errUnknownDocument)
		}
	}

	return cfg, nil
}
