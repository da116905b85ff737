package assertion

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/trading-ecosystem/chaos-coordinator/pkg/scenario"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/types"
)

// healthEvaluator watches a service health surface. In recovery mode the
// service must be seen away from the expected status before reaching it,
// otherwise a service that never degraded would satisfy a recovery check.
type healthEvaluator struct {
	fetcher         *httpFetcher
	kind            string
	interval        time.Duration
	requireRecovery bool
}

func (e *healthEvaluator) Evaluate(ctx context.Context, as scenario.Assertion) types.AssertionResult {
	logEvaluation(e.kind, as)
	service, ok := stringParam(as.Parameters, "service")
	if !ok {
		return invalidResult(e.kind, "parameter 'service' is required")
	}
	base, err := e.fetcher.endpoint(service)
	if err != nil {
		return invalidResult(e.kind, err.Error())
	}
	expect := as.Expect
	if expect == "" {
		expect = "healthy"
	}

	sawDegraded := false
	return pollUntil(ctx, e.kind, e.interval, func(ctx context.Context) (bool, map[string]interface{}, error) {
		var payload struct {
			Status  string                 `json:"status"`
			Service string                 `json:"service"`
			Details map[string]interface{} `json:"details"`
		}
		if err := e.fetcher.getJSON(ctx, base+"/health", &payload); err != nil {
			if e.requireRecovery {
				// an unreachable service counts as degraded for the transition
				sawDegraded = true
			}
			return false, nil, err
		}
		evidence := map[string]interface{}{
			"service":     service,
			"status":      payload.Status,
			"observed_at": time.Now().Format(time.RFC3339),
		}
		if payload.Status != expect {
			sawDegraded = true
			return false, evidence, nil
		}
		if e.requireRecovery && !sawDegraded {
			return false, evidence, nil
		}
		return true, evidence, nil
	})
}

// riskAlertEvaluator matches alerts on the risk service. When several alerts
// satisfy the condition in one poll the earliest by creation time is the
// evidence.
type riskAlertEvaluator struct {
	fetcher    *httpFetcher
	kind       string
	interval   time.Duration
	resolution bool
}

func (e *riskAlertEvaluator) Evaluate(ctx context.Context, as scenario.Assertion) types.AssertionResult {
	logEvaluation(e.kind, as)
	alertType, ok := stringParam(as.Parameters, "alert_type")
	if !ok {
		return invalidResult(e.kind, "parameter 'alert_type' is required")
	}
	base, err := e.fetcher.endpoint("risk")
	if err != nil {
		return invalidResult(e.kind, err.Error())
	}
	wantStatus := "active"
	if e.resolution {
		wantStatus = "resolved"
	}

	return pollUntil(ctx, e.kind, e.interval, func(ctx context.Context) (bool, map[string]interface{}, error) {
		var payload struct {
			Alerts []map[string]interface{} `json:"alerts"`
		}
		if err := e.fetcher.getJSON(ctx, base+"/api/v1/alerts", &payload); err != nil {
			return false, nil, err
		}
		matched := earliestAlert(payload.Alerts, alertType, wantStatus)
		if matched == nil {
			return false, map[string]interface{}{"alert_type": alertType, "alerts_seen": len(payload.Alerts)}, nil
		}
		return true, map[string]interface{}{"alert": matched}, nil
	})
}

func earliestAlert(alerts []map[string]interface{}, alertType, status string) map[string]interface{} {
	var matched map[string]interface{}
	var matchedAt time.Time
	for _, alert := range alerts {
		if field(alert, "alert_type") != alertType || field(alert, "status") != status {
			continue
		}
		createdAt, err := time.Parse(time.RFC3339, field(alert, "created_at"))
		if err != nil {
			createdAt = time.Time{}
		}
		if matched == nil || createdAt.Before(matchedAt) {
			matched = alert
			matchedAt = createdAt
		}
	}
	return matched
}

func field(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// tradingAdaptationEvaluator verifies that a trading strategy moved into the
// expected state (paused, adapted, ...)
type tradingAdaptationEvaluator struct {
	fetcher  *httpFetcher
	interval time.Duration
}

func (e *tradingAdaptationEvaluator) Evaluate(ctx context.Context, as scenario.Assertion) types.AssertionResult {
	logEvaluation("trading_adaptation", as)
	strategyID, ok := stringParam(as.Parameters, "strategy_id")
	if !ok {
		return invalidResult("trading_adaptation", "parameter 'strategy_id' is required")
	}
	base, err := e.fetcher.endpoint("trading")
	if err != nil {
		return invalidResult("trading_adaptation", err.Error())
	}

	return pollUntil(ctx, "trading_adaptation", e.interval, func(ctx context.Context) (bool, map[string]interface{}, error) {
		var payload map[string]interface{}
		if err := e.fetcher.getJSON(ctx, fmt.Sprintf("%s/api/v1/strategies/%s", base, url.PathEscape(strategyID)), &payload); err != nil {
			return false, nil, err
		}
		evidence := map[string]interface{}{"strategy": payload}
		return field(payload, "status") == as.Expect, evidence, nil
	})
}

// priceDivergenceEvaluator passes once the spread between venue prices for a
// symbol reaches the threshold percentage
type priceDivergenceEvaluator struct {
	fetcher  *httpFetcher
	interval time.Duration
}

func (e *priceDivergenceEvaluator) Evaluate(ctx context.Context, as scenario.Assertion) types.AssertionResult {
	logEvaluation("price_divergence", as)
	symbol, ok := stringParam(as.Parameters, "symbol")
	if !ok {
		return invalidResult("price_divergence", "parameter 'symbol' is required")
	}
	threshold, ok := as.Parameters["threshold_percent"].AsFloat()
	if !ok {
		return invalidResult("price_divergence", "parameter 'threshold_percent' is required")
	}
	base, err := e.fetcher.endpoint("market-data")
	if err != nil {
		return invalidResult("price_divergence", err.Error())
	}

	return pollUntil(ctx, "price_divergence", e.interval, func(ctx context.Context) (bool, map[string]interface{}, error) {
		var payload struct {
			Symbol string `json:"symbol"`
			Venues []struct {
				Venue string  `json:"venue"`
				Price float64 `json:"price"`
			} `json:"venues"`
		}
		if err := e.fetcher.getJSON(ctx, base+"/api/v1/prices?symbol="+url.QueryEscape(symbol), &payload); err != nil {
			return false, nil, err
		}
		if len(payload.Venues) < 2 {
			return false, map[string]interface{}{"symbol": symbol, "venues_seen": len(payload.Venues)}, nil
		}
		low, high := payload.Venues[0].Price, payload.Venues[0].Price
		for _, venue := range payload.Venues[1:] {
			if venue.Price < low {
				low = venue.Price
			}
			if venue.Price > high {
				high = venue.Price
			}
		}
		divergence := 0.0
		if low > 0 {
			divergence = (high - low) / low * 100
		}
		evidence := map[string]interface{}{
			"symbol":             symbol,
			"divergence_percent": divergence,
			"low":                low,
			"high":               high,
		}
		return divergence >= threshold, evidence, nil
	})
}

// performanceEvaluator passes once a service's p95 latency drops back under
// the threshold
type performanceEvaluator struct {
	fetcher  *httpFetcher
	interval time.Duration
}

func (e *performanceEvaluator) Evaluate(ctx context.Context, as scenario.Assertion) types.AssertionResult {
	logEvaluation("performance_recovery", as)
	service, ok := stringParam(as.Parameters, "service")
	if !ok {
		return invalidResult("performance_recovery", "parameter 'service' is required")
	}
	threshold, ok := as.Parameters["threshold_ms"].AsFloat()
	if !ok {
		return invalidResult("performance_recovery", "parameter 'threshold_ms' is required")
	}
	base, err := e.fetcher.endpoint(service)
	if err != nil {
		return invalidResult("performance_recovery", err.Error())
	}

	return pollUntil(ctx, "performance_recovery", e.interval, func(ctx context.Context) (bool, map[string]interface{}, error) {
		var payload struct {
			P95LatencyMs float64 `json:"p95_latency_ms"`
			P99LatencyMs float64 `json:"p99_latency_ms"`
		}
		if err := e.fetcher.getJSON(ctx, base+"/api/v1/performance", &payload); err != nil {
			return false, nil, err
		}
		evidence := map[string]interface{}{
			"service":        service,
			"p95_latency_ms": payload.P95LatencyMs,
			"threshold_ms":   threshold,
		}
		return payload.P95LatencyMs <= threshold, evidence, nil
	})
}

// auditCorrelationEvaluator verifies the audit trail captured events
// correlated to an injected action
type auditCorrelationEvaluator struct {
	fetcher  *httpFetcher
	interval time.Duration
}

func (e *auditCorrelationEvaluator) Evaluate(ctx context.Context, as scenario.Assertion) types.AssertionResult {
	logEvaluation("audit_correlation", as)
	correlationID, ok := stringParam(as.Parameters, "correlation_id")
	if !ok {
		return invalidResult("audit_correlation", "parameter 'correlation_id' is required")
	}
	minEvents := int64(1)
	if v, ok := as.Parameters["min_events"].AsInt(); ok {
		minEvents = v
	}
	base, err := e.fetcher.endpoint("audit")
	if err != nil {
		return invalidResult("audit_correlation", err.Error())
	}

	return pollUntil(ctx, "audit_correlation", e.interval, func(ctx context.Context) (bool, map[string]interface{}, error) {
		var payload struct {
			Events []map[string]interface{} `json:"events"`
		}
		if err := e.fetcher.getJSON(ctx, base+"/api/v1/events?correlation_id="+url.QueryEscape(correlationID), &payload); err != nil {
			return false, nil, err
		}
		evidence := map[string]interface{}{
			"correlation_id": correlationID,
			"events_seen":    len(payload.Events),
		}
		if int64(len(payload.Events)) < minEvents {
			return false, evidence, nil
		}
		evidence["events"] = payload.Events
		return true, evidence, nil
	})
}
