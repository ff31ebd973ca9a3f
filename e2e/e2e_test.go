//go:build e2e

package e2e

import (
	"context"
	"testing"

	"github.com/cucumber/godog"
)

// TestFeatures runs the feature files against a running server. Start it
// with ACHIEVEMENTS_DETECTOR_INTERVAL=1s so detector scenarios finish in time.
func TestFeatures(t *testing.T) {
	tc := NewTestContext()
	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
				tc.Reset()
				return ctx, nil
			})
			RegisterSteps(ctx, tc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
