package detector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"achievements/internal/achievement"
)

type failingComparer struct{}

func (failingComparer) Compare(string, string) (int, error) {
	return 0, errors.New("compare unavailable")
}

func (failingComparer) IsPrerelease(string) (bool, error) {
	return false, errors.New("prerelease unavailable")
}

func ids(envs []achievement.Envelope) []string {
	out := make([]string, 0, len(envs))
	for _, env := range envs {
		out = append(out, env.Achievement[achievement.FieldID].(string))
	}
	return out
}

func TestEvaluateThresholds(t *testing.T) {
	d := New(nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		facts Facts
		want  []string
	}{
		{name: "nothing crossed", facts: Facts{}, want: []string{}},
		{name: "collector below threshold", facts: Facts{CustomIntegrationCount: 49}, want: []string{}},
		{name: "collector at threshold", facts: Facts{CustomIntegrationCount: 50}, want: []string{CollectorID}},
		{name: "out of date at threshold", facts: Facts{PendingUpdateCount: 10}, want: []string{}},
		{name: "out of date above threshold", facts: Facts{PendingUpdateCount: 11}, want: []string{OutOfDateID}},
		{
			name:  "both",
			facts: Facts{CustomIntegrationCount: 80, PendingUpdateCount: 40},
			want:  []string{CollectorID, OutOfDateID},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs, err := d.Evaluate(ctx, tt.facts, "", "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(envs))
		})
	}
}

func TestEvaluateCandidateShape(t *testing.T) {
	envs, err := New(nil).Evaluate(context.Background(), Facts{CustomIntegrationCount: 62, PendingUpdateCount: 3}, "", "")
	require.NoError(t, err)
	require.Len(t, envs, 1)

	env := envs[0]
	assert.Equal(t, achievement.SchemaMajor, env.MajorVersion)
	assert.Equal(t, achievement.SchemaMinor, env.MinorVersion)
	assert.Equal(t, achievement.Candidate{
		"title":       "Collector",
		"description": "You have installed 62 custom integration.",
		"source":      "achievements-core",
		"id":          CollectorID,
	}, env.Achievement)
	assert.NoError(t, env.Achievement.Validate())
}

func TestEvaluateDangerousLiving(t *testing.T) {
	d := New(SemverComparer{})
	ctx := context.Background()

	tests := []struct {
		name     string
		previous string
		current  string
		fires    bool
	}{
		{name: "first run", previous: "", current: "2024.2.0b1", fires: false},
		{name: "beta to newer beta", previous: "2024.2.0b1", current: "2024.2.0b2", fires: true},
		{name: "beta to same beta", previous: "2024.2.0b2", current: "2024.2.0b2", fires: false},
		{name: "beta downgrade", previous: "2024.2.0b3", current: "2024.2.0b2", fires: false},
		{name: "stable to beta", previous: "2024.1.5", current: "2024.2.0b1", fires: false},
		{name: "beta to stable", previous: "2024.2.0b4", current: "2024.2.0", fires: false},
		{name: "semver prereleases", previous: "1.2.0-beta.1", current: "1.3.0-beta.1", fires: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs, err := d.Evaluate(ctx, Facts{}, tt.previous, tt.current)
			require.NoError(t, err)
			if tt.fires {
				assert.Equal(t, []string{DangerousLivingID}, ids(envs))
				assert.Equal(t, "Dangerous living", envs[0].Achievement["title"])
			} else {
				assert.Empty(t, envs)
			}
		})
	}
}

func TestEvaluateSkipsFailingRule(t *testing.T) {
	d := New(failingComparer{})
	envs, err := d.Evaluate(context.Background(), Facts{CustomIntegrationCount: 50}, "1.0.0b1", "1.0.0b2")
	require.NoError(t, err)
	assert.Equal(t, []string{CollectorID}, ids(envs))
}

func TestEvaluateRejectsInvalidFacts(t *testing.T) {
	d := New(nil)
	_, err := d.Evaluate(context.Background(), Facts{CustomIntegrationCount: -1}, "", "")
	assert.ErrorIs(t, err, ErrInvalidFacts)
	_, err = d.Evaluate(context.Background(), Facts{PendingUpdateCount: -3}, "", "")
	assert.ErrorIs(t, err, ErrInvalidFacts)
}

func TestSemverComparer(t *testing.T) {
	c := SemverComparer{}

	cmp, err := c.Compare("2024.1.0b3", "2024.1.0b10")
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	cmp, err = c.Compare("2024.1.0", "2024.1.0rc1")
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)

	pre, err := c.IsPrerelease("2024.1.0dev20240101")
	require.NoError(t, err)
	assert.True(t, pre)

	pre, err = c.IsPrerelease("2024.1.0")
	require.NoError(t, err)
	assert.False(t, pre)

	_, err = c.Compare("not-a-version", "1.0.0")
	assert.Error(t, err)
}

func TestEvaluateVersionsSkipsFactRules(t *testing.T) {
	d := New(nil)
	envs := d.EvaluateVersions(context.Background(), "2024.1.0b1", "2024.1.0b2")
	require.Len(t, envs, 1)
	assert.Equal(t, DangerousLivingID, envs[0].Achievement[achievement.FieldID])

	assert.Empty(t, d.EvaluateVersions(context.Background(), "", "2024.1.0b2"))
}
