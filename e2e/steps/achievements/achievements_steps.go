package achievements

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"
)

const (
	schemaMajor = 0
	schemaMinor = 1

	pollInterval = 200 * time.Millisecond
	pollTimeout  = 10 * time.Second
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string) error
	POST(path string, body any) error
	PUT(path string, body any) error
	GetLastStatusCode() int
	GetLastResponseBody() []byte
}

// RegisterSteps registers ingress, facts and projection steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &achievementSteps{tc: tc}

	ctx.Step(`^I publish achievement "([^"]*)" from "([^"]*)" titled "([^"]*)"$`, steps.publish)
	ctx.Step(`^I publish a candidate from "([^"]*)" without a description$`, steps.publishWithoutDescription)
	ctx.Step(`^I publish an envelope with schema major version (\d+)$`, steps.publishWithMajor)
	ctx.Step(`^I report (\d+) custom integrations and (\d+) pending updates$`, steps.reportFacts)
	ctx.Step(`^the achievement "([^"]*)" should eventually be granted$`, steps.eventuallyGranted)
}

type achievementSteps struct {
	tc TestContext
}

func envelope(major int, candidate map[string]any) map[string]any {
	return map[string]any{
		"major_version": major,
		"minor_version": schemaMinor,
		"achievement":   candidate,
	}
}

func (s *achievementSteps) publish(_ context.Context, id, source, title string) error {
	return s.tc.POST("/events", envelope(schemaMajor, map[string]any{
		"title":       title,
		"description": "Granted from a feature scenario.",
		"source":      source,
		"id":          id,
	}))
}

func (s *achievementSteps) publishWithoutDescription(_ context.Context, source string) error {
	return s.tc.POST("/events", envelope(schemaMajor, map[string]any{
		"title":  "Incomplete",
		"source": source,
		"id":     fmt.Sprintf("incomplete-%d", time.Now().UnixNano()),
	}))
}

func (s *achievementSteps) publishWithMajor(_ context.Context, major int) error {
	return s.tc.POST("/events", envelope(major, map[string]any{
		"title":       "Future",
		"description": "From a newer producer.",
		"source":      "e2e",
		"id":          "future",
	}))
}

func (s *achievementSteps) reportFacts(_ context.Context, integrations, updates int) error {
	if err := s.tc.PUT("/facts", map[string]int{
		"custom_integration_count": integrations,
		"pending_update_count":     updates,
	}); err != nil {
		return err
	}
	if code := s.tc.GetLastStatusCode(); code != 204 {
		return fmt.Errorf("facts rejected with %d: %s", code, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *achievementSteps) eventuallyGranted(_ context.Context, key string) error {
	deadline := time.Now().Add(pollTimeout)
	for {
		if err := s.tc.GET("/achievements/" + key); err != nil {
			return err
		}
		if s.tc.GetLastStatusCode() == 200 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("achievement %s not granted after %s (last status %d)", key, pollTimeout, s.tc.GetLastStatusCode())
		}
		time.Sleep(pollInterval)
	}
}
