package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ciq/pipeline-engine/pkg/types"
)

const integrationPipeline = `
name: integration-tests
on:
  push:
    branches: [main]
  pull_request:
    paths_ignore:
      - "README.md"
      - "docs/**"
  schedule:
    - cron: "30 5 * * *"
  dispatch: {}
concurrency:
  group: "${{ pipeline.name }}-${{ event.branch }}"
  cancel_in_progress: true
env:
  CLOUD_HOST: gateway.internal
jobs:
  integration:
    timeout_minutes: 60
    secrets: [CLOUD_KEY_ID, CLOUD_KEY_SECRET]
    strategy:
      fail_fast: false
      matrix:
        dep: [pinned, latest]
        python: ["3.10", "3.11"]
    steps:
      - name: install
        run: pip install -e .
      - name: test
        run: pytest -n 4 tests/integration
`

func TestParseIntegrationPipeline(t *testing.T) {
	p := NewYAMLParser()

	pipeline, err := p.Parse([]byte(integrationPipeline))
	require.NoError(t, err)

	assert.Equal(t, "integration-tests", pipeline.Name)

	// Triggers
	require.NotNil(t, pipeline.On.Push)
	assert.Equal(t, []string{"main"}, pipeline.On.Push.Branches)
	require.NotNil(t, pipeline.On.PullRequest)
	assert.Equal(t, []string{"README.md", "docs/**"}, pipeline.On.PullRequest.PathsIgnore)
	require.Len(t, pipeline.On.Schedule, 1)
	assert.Equal(t, "30 5 * * *", pipeline.On.Schedule[0].Cron)
	assert.NotNil(t, pipeline.On.Dispatch)

	// Concurrency
	require.NotNil(t, pipeline.Concurrency)
	assert.True(t, pipeline.Concurrency.CancelInProgress)

	// Job
	job := pipeline.Jobs["integration"]
	require.NotNil(t, job)
	assert.Equal(t, 60, job.Timeout())
	assert.False(t, job.Strategy.FailFastEnabled())
	require.NotNil(t, job.Strategy.Matrix)
	assert.Equal(t, []string{"dep", "python"}, job.Strategy.Matrix.AxisOrder)
	assert.Len(t, job.Steps, 2)
}

func TestParseScalarTriggerForms(t *testing.T) {
	p := NewYAMLParser()

	single := `
name: scalar
on: push
jobs:
  a:
    steps:
      - run: "true"
`
	pipeline, err := p.Parse([]byte(single))
	require.NoError(t, err)
	assert.NotNil(t, pipeline.On.Push)
	assert.Nil(t, pipeline.On.PullRequest)

	list := `
name: list
on: [push, pull_request]
jobs:
  a:
    steps:
      - run: "true"
`
	pipeline, err = p.Parse([]byte(list))
	require.NoError(t, err)
	assert.NotNil(t, pipeline.On.Push)
	assert.NotNil(t, pipeline.On.PullRequest)
}

func TestParseScalarConcurrency(t *testing.T) {
	src := `
name: scalar-group
on: push
concurrency: deploy-lock
jobs:
  a:
    steps:
      - run: "true"
`
	pipeline, err := NewYAMLParser().Parse([]byte(src))
	require.NoError(t, err)
	require.NotNil(t, pipeline.Concurrency)
	assert.Equal(t, "deploy-lock", pipeline.Concurrency.Group)
	assert.False(t, pipeline.Concurrency.CancelInProgress)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	src := `
name: bad
on: push
jobz:
  a:
    steps:
      - run: "true"
`
	_, err := NewYAMLParser().Parse([]byte(src))
	require.Error(t, err)

	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{
			"missing name",
			"on: push\njobs:\n  a:\n    steps:\n      - run: x\n",
			"name",
		},
		{
			"missing triggers",
			"name: t\njobs:\n  a:\n    steps:\n      - run: x\n",
			"on",
		},
		{
			"no jobs",
			"name: t\non: push\njobs: {}\n",
			"jobs",
		},
		{
			"no steps",
			"name: t\non: push\njobs:\n  a:\n    steps: []\n",
			"jobs.a.steps",
		},
		{
			"step without command",
			"name: t\non: push\njobs:\n  a:\n    steps:\n      - name: empty\n",
			"jobs.a.steps[0]",
		},
		{
			"step with run and script",
			"name: t\non: push\njobs:\n  a:\n    steps:\n      - run: x\n        script: y\n",
			"jobs.a.steps[0]",
		},
		{
			"bad cron",
			"name: t\non:\n  schedule:\n    - cron: \"not a cron\"\njobs:\n  a:\n    steps:\n      - run: x\n",
			"on.schedule[0].cron",
		},
		{
			"empty matrix axis",
			"name: t\non: push\njobs:\n  a:\n    strategy:\n      matrix:\n        os: []\n    steps:\n      - run: x\n",
			"jobs.a.strategy.matrix.os",
		},
		{
			"duplicate step id",
			"name: t\non: push\njobs:\n  a:\n    steps:\n      - id: s\n        run: x\n      - id: s\n        run: y\n",
			"jobs.a.steps[1].id",
		},
		{
			"unsupported step shell",
			"name: t\non: push\njobs:\n  a:\n    steps:\n      - run: x\n        shell: powershel\n",
			"jobs.a.steps[0].shell",
		},
		{
			"unsupported default shell",
			"name: t\non: push\ndefaults:\n  shell: csh\njobs:\n  a:\n    steps:\n      - run: x\n",
			"defaults.shell",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewYAMLParser().Parse([]byte(tt.src))
			require.Error(t, err)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestKnownShellsAccepted(t *testing.T) {
	for _, shell := range []string{"sh", "bash", "zsh", "pwsh", "/bin/bash"} {
		src := "name: t\non: push\ndefaults:\n  shell: " + shell +
			"\njobs:\n  a:\n    steps:\n      - run: x\n        shell: " + shell + "\n"
		_, err := NewYAMLParser().Parse([]byte(src))
		assert.NoError(t, err, shell)
	}
}

func TestStepLabel(t *testing.T) {
	named := types.Step{Name: "install", Run: "pip install -e ."}
	assert.Equal(t, "install", named.Label())

	withID := types.Step{ID: "tests", Run: "pytest"}
	assert.Equal(t, "tests", withID.Label())

	bare := types.Step{Run: "echo hello\necho world"}
	assert.Equal(t, "echo hello", bare.Label())
}
