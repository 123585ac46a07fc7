// Package policy decides whether a request may reach a given surface of
// the gateway, based on what auth material it carries.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

// Decisions returned by the engine.
const (
	DecisionAllow         = "allow"
	DecisionLoginRequired = "login_required"
)

// Input describes one request for evaluation.
type Input struct {
	// Surface is the route class: "chat", "account" or "public".
	Surface string `json:"surface"`
	// HasToken reports whether a bearer token is present (not whether it
	// is valid; validation is the backend's job).
	HasToken bool `json:"has_token"`
	// HasParticipant reports whether a participant code is set.
	HasParticipant bool `json:"has_participant"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates an engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.pv_access.decision"),
		rego.Module("pv_access.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate returns the decision for one request.
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy defines a default, so this means a broken policy.
		return DecisionAllow, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return DecisionAllow, nil
}

// DefaultPolicy mirrors what the browser clients enforced by convention:
// participant-code flows may chat without a token, account-scoped surfaces
// (archive, forum, friends, profile, upload) need a bearer token.
const DefaultPolicy = `
package pv_access

default decision := "allow"

decision := "login_required" if {
	input.surface == "account"
	not input.has_token
}

decision := "login_required" if {
	input.surface == "chat"
	not input.has_token
	not input.has_participant
}
`
