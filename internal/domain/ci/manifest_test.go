package ci

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleProject = `
- project:
    templates:
      - openstack-python3-jobs
      - publish-to-pypi
    check:
      jobs:
        - metalboot-tox-unit
        - metalboot-dib-image-build:
            voting: false
        - metalboot-standalone:
            voting: false
            timeout: 5400
    gate:
      queue: metalboot
      jobs:
        - metalboot-tox-unit
    post:
      jobs:
        - metalboot-publish-docs
`

// TestParseProject verifies decoding of templates, pipelines and both job entry forms.
func TestParseProject(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(sampleProject), "zuul.d/project.yaml")
	require.NoError(t, err)
	require.Len(t, cfg.Projects, 1)
	require.Empty(t, cfg.Jobs)
	require.Empty(t, cfg.Templates)

	project := cfg.Projects[0]
	require.Equal(t, []string{"openstack-python3-jobs", "publish-to-pypi"}, project.Templates)

	require.NotNil(t, project.Check)
	require.Len(t, project.Check.Jobs, 3)

	// Bare scalar entry votes by default.
	unit := project.Check.Jobs[0]
	require.Equal(t, "metalboot-tox-unit", unit.Name)
	require.Nil(t, unit.Voting)
	require.True(t, unit.IsVoting())
	require.Positive(t, unit.Line)

	// Mapping entry with an explicit voting flag.
	dib := project.Check.Jobs[1]
	require.Equal(t, "metalboot-dib-image-build", dib.Name)
	require.NotNil(t, dib.Voting)
	require.False(t, dib.IsVoting())

	// Unknown attributes are preserved, not interpreted.
	standalone := project.Check.Jobs[2]
	require.False(t, standalone.IsVoting())
	require.Contains(t, standalone.Attrs, "timeout")
	require.NotContains(t, standalone.Attrs, "voting")

	require.NotNil(t, project.Gate)
	require.Equal(t, "metalboot", project.Gate.Queue)
	require.Len(t, project.Gate.Jobs, 1)

	require.NotNil(t, project.Post)
	require.Equal(t, "metalboot-publish-docs", project.Post.Jobs[0].Name)
}

// TestParseJobsAndTemplates verifies decoding of job and project-template documents.
func TestParseJobsAndTemplates(t *testing.T) {
	t.Parallel()

	data := `
- job:
    name: metalboot-base
    description: Base job for all metalboot tests.
- job:
    name: metalboot-tox-unit
    parent: metalboot-base
    provides:
      - metalboot-coverage-report
    requires:
      - metalboot-dib-image
- project-template:
    name: publish-to-pypi
    post:
      jobs:
        - release-python
`

	cfg, err := Parse([]byte(data), "zuul.d/jobs.yaml")
	require.NoError(t, err)
	require.Len(t, cfg.Jobs, 2)
	require.Len(t, cfg.Templates, 1)

	require.Equal(t, "metalboot-base", cfg.Jobs[0].Name)
	require.Empty(t, cfg.Jobs[0].Parent)
	require.Equal(t, "metalboot-base", cfg.Jobs[1].Parent)
	require.Equal(t, []string{"metalboot-coverage-report"}, cfg.Jobs[1].Provides)
	require.Equal(t, []string{"metalboot-dib-image"}, cfg.Jobs[1].Requires)

	tpl := cfg.Templates[0]
	require.Equal(t, "publish-to-pypi", tpl.Name)

	pipelines := tpl.Pipelines()
	require.Len(t, pipelines, 1)
	require.Equal(t, PipelinePost, pipelines[0].Name)
}

// TestProjectPipelines verifies that absent stages are skipped while order is kept.
func TestProjectPipelines(t *testing.T) {
	t.Parallel()

	project := &Project{
		Check: &Pipeline{},
		Post:  &Pipeline{},
	}

	pipelines := project.Pipelines()
	require.Len(t, pipelines, 2)
	require.Equal(t, PipelineCheck, pipelines[0].Name)
	require.Equal(t, PipelinePost, pipelines[1].Name)
}

// TestParseRejectsMalformedEntries covers unknown documents and bad job entries.
func TestParseRejectsMalformedEntries(t *testing.T) {
	t.Parallel()

	// Entry that is none of the known kinds.
	_, err := Parse([]byte("- pragma:\n    implied-branch-matchers: true\n"), "zuul.d/other.yaml")
	require.Error(t, err)
	require.ErrorIs(t, err, errUnknownDocument)

	// Job entry with more than one key.
	data := `
- project:
    check:
      jobs:
        - one-job: {voting: false}
          another-job: {voting: false}
`
	_, err = Parse([]byte(data), "zuul.d/project.yaml")
	require.Error(t, err)
}
