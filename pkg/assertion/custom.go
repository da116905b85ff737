package assertion

import (
	"context"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/scenario"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/types"
)

// customEvaluator covers the generic kind: `expect` is a CEL predicate over
// the JSON document polled from the `url` parameter, bound as `state`.
//
//	expect: 'state.orders.size() > 0 && state.status == "settled"'
type customEvaluator struct {
	fetcher  *httpFetcher
	interval time.Duration
}

func (e *customEvaluator) Evaluate(ctx context.Context, as scenario.Assertion) types.AssertionResult {
	logEvaluation("custom", as)
	target, ok := stringParam(as.Parameters, "url")
	if !ok {
		return invalidResult("custom", "parameter 'url' is required")
	}
	if as.Expect == "" {
		return invalidResult("custom", "expect must hold a CEL expression")
	}

	env, err := cel.NewEnv(cel.Variable("state", cel.DynType))
	if err != nil {
		return invalidResult("custom", "could not build CEL environment: "+err.Error())
	}
	ast, issues := env.Compile(as.Expect)
	if issues != nil && issues.Err() != nil {
		return invalidResult("custom", "bad CEL expression: "+issues.Err().Error())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return invalidResult("custom", "could not plan CEL expression: "+err.Error())
	}

	return pollUntil(ctx, "custom", e.interval, func(ctx context.Context) (bool, map[string]interface{}, error) {
		var state interface{}
		if err := e.fetcher.getJSON(ctx, target, &state); err != nil {
			return false, nil, err
		}
		out, _, err := prg.Eval(map[string]interface{}{"state": state})
		if err != nil {
			return false, map[string]interface{}{"url": target}, err
		}
		passed, _ := out.Value().(bool)
		evidence := map[string]interface{}{
			"url":        target,
			"expression": as.Expect,
			"state":      state,
		}
		return passed, evidence, nil
	})
}
