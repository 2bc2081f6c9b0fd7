package e2e

import (
	"github.com/cucumber/godog"

	"marginalia/e2e/steps/annotation"
	"marginalia/e2e/steps/common"
	"marginalia/e2e/steps/document"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (background, generic assertions)
	common.RegisterSteps(ctx, tc)

	// Register document registration steps
	document.RegisterSteps(ctx, tc)

	// Register annotation lifecycle steps
	annotation.RegisterSteps(ctx, tc)
}
