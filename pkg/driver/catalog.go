package driver

import (
	"fmt"

	"github.com/trading-ecosystem/chaos-coordinator/pkg/cerrors"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/scenario"
)

// paramRule declares one parameter a chaos kind accepts
type paramRule struct {
	name     string
	kind     scenario.Kind
	required bool
}

// kindSpec is the schema of one chaos kind on one service
type kindSpec struct {
	params []paramRule
}

// serviceCatalogs enumerate the chaos kinds each target service understands.
// Every service additionally accepts `noop`, used by smoke scenarios.
var serviceCatalogs = map[string]map[string]kindSpec{
	"exchange": {
		"halt_trading":      {params: []paramRule{{"symbol", scenario.KindString, true}}},
		"resume_trading":    {params: []paramRule{{"symbol", scenario.KindString, true}}},
		"latency_injection": {params: []paramRule{{"latency_ms", scenario.KindInt, true}, {"jitter_ms", scenario.KindInt, false}}},
		"order_rejection":   {params: []paramRule{{"rate", scenario.KindFloat, true}}},
	},
	"custodian": {
		"settlement_delay":     {params: []paramRule{{"delay_ms", scenario.KindInt, true}}},
		"balance_freeze":       {params: []paramRule{{"account", scenario.KindString, true}}},
		"reconciliation_pause": {},
	},
	"market-data": {
		"price_feed_stall": {params: []paramRule{{"symbol", scenario.KindString, true}}},
		"price_spike":      {params: []paramRule{{"symbol", scenario.KindString, true}, {"percent", scenario.KindFloat, true}}},
		"feed_disconnect":  {params: []paramRule{{"venue", scenario.KindString, true}}},
	},
	"trading": {
		"strategy_pause": {params: []paramRule{{"strategy_id", scenario.KindString, true}}},
		"order_flood":    {params: []paramRule{{"rate", scenario.KindFloat, true}, {"duration_ms", scenario.KindInt, false}}},
	},
	"risk": {
		"limit_override":    {params: []paramRule{{"limit_type", scenario.KindString, true}, {"value", scenario.KindFloat, true}}},
		"alert_suppression": {params: []paramRule{{"alert_type", scenario.KindString, true}}},
	},
	"audit": {
		"ingest_lag":  {params: []paramRule{{"lag_ms", scenario.KindInt, true}}},
		"drop_events": {params: []paramRule{{"rate", scenario.KindFloat, true}}},
	},
}

// KnownService reports whether a chaos catalog exists for the service
func KnownService(service string) bool {
	_, ok := serviceCatalogs[service]
	return ok
}

// validateAgainstCatalog is the pure parameter check behind Driver.Validate
func validateAgainstCatalog(service string, action scenario.Action) error {
	if action.Kind == "noop" {
		return nil
	}
	catalog, ok := serviceCatalogs[service]
	if !ok {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidParameter, Target: service, Reason: fmt.Sprintf("unknown service '%s'", service)}
	}
	spec, ok := catalog[action.Kind]
	if !ok {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidParameter, Target: service, Reason: fmt.Sprintf("service '%s' does not support chaos kind '%s'", service, action.Kind)}
	}
	for _, rule := range spec.params {
		value, present := action.Parameters[rule.name]
		if !present {
			if rule.required {
				return cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidParameter, Target: service, Reason: fmt.Sprintf("chaos kind '%s' requires parameter '%s'", action.Kind, rule.name)}
			}
			continue
		}
		if !kindCompatible(rule.kind, value) {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidParameter, Target: service, Reason: fmt.Sprintf("parameter '%s' of chaos kind '%s' must be a %s, got %s", rule.name, action.Kind, rule.kind, value.Kind())}
		}
	}
	return nil
}

func kindCompatible(want scenario.Kind, value scenario.Value) bool {
	if value.Kind() == want {
		return true
	}
	// ints widen into float parameters
	if want == scenario.KindFloat && value.Kind() == scenario.KindInt {
		return true
	}
	return false
}
