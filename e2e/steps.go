package e2e

import (
	"github.com/cucumber/godog"

	"achievements/e2e/steps/achievements"
	"achievements/e2e/steps/common"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (health, generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register ingress and projection steps
	achievements.RegisterSteps(ctx, tc)
}
