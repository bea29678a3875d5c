package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolate(t *testing.T) {
	ctx := testContext()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no expression", "plain string", "plain string"},
		{"single span", "branch=${{ event.branch }}", "branch=main"},
		{"multiple spans", "${{ matrix.dep }}-${{ matrix.python }}", "pinned-3.11"},
		{"surrounded", "a ${{ env.CI }} b", "a true b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Interpolate(tt.in, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInterpolateUnterminated(t *testing.T) {
	_, err := Interpolate("oops ${{ event.branch", testContext())
	require.Error(t, err)

	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestEvaluateCondition(t *testing.T) {
	ctx := testContext()

	// Wrapper form and bare form are equivalent.
	got, err := EvaluateCondition("${{ event.branch == 'main' }}", ctx)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = EvaluateCondition("event.branch == 'main'", ctx)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluateConditionDefaultsToSuccess(t *testing.T) {
	ctx := testContext()

	got, err := EvaluateCondition("", ctx)
	require.NoError(t, err)
	assert.True(t, got)

	ctx.Failed = true
	got, err = EvaluateCondition("", ctx)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = EvaluateCondition("always()", ctx)
	require.NoError(t, err)
	assert.True(t, got)
}
