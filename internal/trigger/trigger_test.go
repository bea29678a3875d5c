package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ciq/pipeline-engine/pkg/types"
)

func pushPipeline(t *types.PushTrigger) *types.Pipeline {
	return &types.Pipeline{Name: "p", On: types.Triggers{Push: t}}
}

func prPipeline(t *types.PullRequest) *types.Pipeline {
	return &types.Pipeline{Name: "p", On: types.Triggers{PullRequest: t}}
}

func TestMatchPushBranchFilter(t *testing.T) {
	m := NewMatcher()
	pipeline := pushPipeline(&types.PushTrigger{Branches: []string{"main"}})

	onMain := &types.Event{Kind: types.EventPush, Ref: "refs/heads/main"}
	assert.True(t, m.Match(pipeline, onMain).Fire)

	onFeature := &types.Event{Kind: types.EventPush, Ref: "refs/heads/feature/x"}
	assert.False(t, m.Match(pipeline, onFeature).Fire)
}

func TestMatchPushBranchGlobs(t *testing.T) {
	m := NewMatcher()
	pipeline := pushPipeline(&types.PushTrigger{Branches: []string{"release/*"}})

	assert.True(t, m.Match(pipeline, &types.Event{Kind: types.EventPush, Ref: "refs/heads/release/1.2"}).Fire)
	assert.False(t, m.Match(pipeline, &types.Event{Kind: types.EventPush, Ref: "refs/heads/main"}).Fire)
}

func TestMatchPushNoTriggerDeclared(t *testing.T) {
	m := NewMatcher()
	pipeline := prPipeline(&types.PullRequest{})

	decision := m.Match(pipeline, &types.Event{Kind: types.EventPush, Ref: "refs/heads/main"})
	assert.False(t, decision.Fire)
}

func TestReadmeOnlyPullRequestDoesNotFire(t *testing.T) {
	m := NewMatcher()
	pipeline := prPipeline(&types.PullRequest{
		PathsIgnore: []string{"README.md", "docs/**"},
	})

	readmeOnly := &types.Event{
		Kind:         types.EventPullRequest,
		Ref:          "refs/heads/main",
		ChangedPaths: []string{"README.md"},
	}
	decision := m.Match(pipeline, readmeOnly)
	assert.False(t, decision.Fire)
	assert.Equal(t, "all changed paths matched paths_ignore", decision.Reason)

	docsOnly := &types.Event{
		Kind:         types.EventPullRequest,
		Ref:          "refs/heads/main",
		ChangedPaths: []string{"docs/guide.md", "README.md"},
	}
	assert.False(t, m.Match(pipeline, docsOnly).Fire)

	withCode := &types.Event{
		Kind:         types.EventPullRequest,
		Ref:          "refs/heads/main",
		ChangedPaths: []string{"README.md", "src/app.py"},
	}
	assert.True(t, m.Match(pipeline, withCode).Fire)
}

func TestMatchPathsAllowList(t *testing.T) {
	m := NewMatcher()
	pipeline := pushPipeline(&types.PushTrigger{Paths: []string{"src/**"}})

	inSrc := &types.Event{
		Kind:         types.EventPush,
		Ref:          "refs/heads/main",
		ChangedPaths: []string{"src/pkg/file.go"},
	}
	assert.True(t, m.Match(pipeline, inSrc).Fire)

	outside := &types.Event{
		Kind:         types.EventPush,
		Ref:          "refs/heads/main",
		ChangedPaths: []string{"scripts/build.sh"},
	}
	assert.False(t, m.Match(pipeline, outside).Fire)
}

func TestMatchEmptyChangeSetFires(t *testing.T) {
	m := NewMatcher()
	pipeline := pushPipeline(&types.PushTrigger{PathsIgnore: []string{"**"}})

	// Unknown change set cannot be filtered on.
	event := &types.Event{Kind: types.EventPush, Ref: "refs/heads/main"}
	assert.True(t, m.Match(pipeline, event).Fire)
}

func TestMatchPullRequestTypes(t *testing.T) {
	m := NewMatcher()
	pipeline := prPipeline(&types.PullRequest{Types: []string{"opened", "synchronize"}})

	opened := &types.Event{Kind: types.EventPullRequest, Ref: "refs/heads/main", Action: "opened"}
	assert.True(t, m.Match(pipeline, opened).Fire)

	closed := &types.Event{Kind: types.EventPullRequest, Ref: "refs/heads/main", Action: "closed"}
	assert.False(t, m.Match(pipeline, closed).Fire)
}

func TestMatchScheduleAndDispatch(t *testing.T) {
	m := NewMatcher()

	scheduled := &types.Pipeline{
		Name: "p",
		On:   types.Triggers{Schedule: []types.Schedule{{Cron: "30 5 * * *"}}},
	}
	assert.True(t, m.Match(scheduled, &types.Event{Kind: types.EventSchedule}).Fire)
	assert.False(t, m.Match(scheduled, &types.Event{Kind: types.EventDispatch}).Fire)

	dispatchable := &types.Pipeline{
		Name: "p",
		On:   types.Triggers{Dispatch: &types.DispatchTrigger{}},
	}
	assert.True(t, m.Match(dispatchable, &types.Event{Kind: types.EventDispatch}).Fire)
}

func TestNextFireDailyCron(t *testing.T) {
	m := NewMatcher()
	schedules := []types.Schedule{{Cron: "30 5 * * *"}}

	after := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	next, err := m.NextFire(schedules, after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 25, 5, 30, 0, 0, time.UTC), next)

	// Past today's fire time, the next fire is tomorrow 05:30.
	afterFire := time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)
	next, err = m.NextFire(schedules, afterFire)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 26, 5, 30, 0, 0, time.UTC), next)
}

func TestNextFirePicksEarliestSchedule(t *testing.T) {
	m := NewMatcher()
	schedules := []types.Schedule{
		{Cron: "0 12 * * *"},
		{Cron: "30 5 * * *"},
	}

	after := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	next, err := m.NextFire(schedules, after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 25, 5, 30, 0, 0, time.UTC), next)
}

func TestResolveInputs(t *testing.T) {
	trigger := &types.DispatchTrigger{
		Inputs: map[string]types.DispatchInput{
			"target": {Required: true},
			"level":  {Default: "info"},
		},
	}

	resolved, err := ResolveInputs(trigger, map[string]string{"target": "staging"})
	require.NoError(t, err)
	assert.Equal(t, "staging", resolved["target"])
	assert.Equal(t, "info", resolved["level"])

	_, err = ResolveInputs(trigger, nil)
	require.Error(t, err)

	_, err = ResolveInputs(trigger, map[string]string{"target": "x", "bogus": "y"})
	require.Error(t, err)
}

func TestGlobMatch(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"main", "main", true},
		{"main", "maintenance", false},
		{"release/*", "release/1.0", true},
		{"release/*", "release/1.0/hotfix", false},
		{"release/**", "release/1.0/hotfix", true},
		{"**", "anything/at/all", true},
		{"docs/**", "docs/api/index.md", true},
		{"docs/**", "src/docs.go", false},
		{"*.md", "README.md", true},
		{"*.md", "notes/README.md", false},
		{"**/*.md", "notes/README.md", true},
		{"v?", "v1", true},
		{"v?", "v12", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, globMatch(tt.pattern, tt.name), "%s vs %s", tt.pattern, tt.name)
	}
}
