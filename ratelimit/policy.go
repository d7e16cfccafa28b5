package ratelimit

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Engine is the OPA traffic admission policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.traffic.status"),
		rego.Module("traffic.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate classifies the given utilization ratios.
// Input keys: rpm_ratio, tpm_ratio, rpd_ratio.
// Returns: "GREEN", "YELLOW" or "RED".
func (e *Engine) Evaluate(ctx context.Context, input interface{}) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy defines a default, so this should not happen.
		return "GREEN", nil
	}

	val := results[0].Expressions[0].Value
	if s, ok := val.(string); ok {
		return s, nil
	}

	return "", fmt.Errorf("unexpected policy result type %T", val)
}

// DefaultPolicy is the traffic admission policy. RED when any quota
// dimension is exhausted, YELLOW from 80% utilization, GREEN otherwise.
const DefaultPolicy = `
package traffic

default status = "GREEN"

max_ratio = max([input.rpm_ratio, input.tpm_ratio, input.rpd_ratio])

status = "RED" {
	max_ratio >= 1.0
}

status = "YELLOW" {
	max_ratio >= 0.8
	max_ratio < 1.0
}
`
