package assertion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trading-ecosystem/chaos-coordinator/pkg/scenario"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/types"
)

func testDetails(t *testing.T, serviceURLs map[string]string) types.CoordinatorDetails {
	t.Helper()
	services := map[string]types.ServiceEndpoint{}
	for name, url := range serviceURLs {
		services[name] = types.ServiceEndpoint{BaseURL: url}
	}
	return types.CoordinatorDetails{
		AssertionPollInterval: 20 * time.Millisecond,
		Services:              services,
	}
}

func evaluate(t *testing.T, details types.CoordinatorDetails, kind string, as scenario.Assertion, window time.Duration) types.AssertionResult {
	t.Helper()
	evaluator, err := NewRegistry(details).Get(kind)
	if err != nil {
		t.Fatalf("no evaluator for %s: %v", kind, err)
	}
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(window))
	defer cancel()
	return evaluator.Evaluate(ctx, as)
}

func TestSystemHealthPassesOnFirstPoll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "service": "exchange"})
	}))
	defer server.Close()

	details := testDetails(t, map[string]string{"exchange": server.URL})
	result := evaluate(t, details, "system_health", scenario.Assertion{
		Kind:       "system_health",
		Expect:     "healthy",
		Parameters: map[string]scenario.Value{"service": scenario.StringValue("exchange")},
	}, time.Second)

	if !result.Passed {
		t.Fatalf("expected pass, got %+v", result)
	}
	if result.Evidence["status"] != "healthy" {
		t.Errorf("evidence missing status: %+v", result.Evidence)
	}
	if result.Elapsed > 500*time.Millisecond {
		t.Errorf("first-poll pass took too long: %v", result.Elapsed)
	}
}

func TestSystemHealthTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "degraded"})
	}))
	defer server.Close()

	details := testDetails(t, map[string]string{"exchange": server.URL})
	window := 150 * time.Millisecond
	result := evaluate(t, details, "system_health", scenario.Assertion{
		Kind:       "system_health",
		Expect:     "healthy",
		Parameters: map[string]scenario.Value{"service": scenario.StringValue("exchange")},
	}, window)

	if result.Passed {
		t.Fatal("expected timeout failure")
	}
	if result.Message != "timeout" {
		t.Errorf("expected message 'timeout', got %q", result.Message)
	}
	if result.Elapsed < window {
		t.Errorf("elapsed %v shorter than the window %v", result.Elapsed, window)
	}
	if result.Evidence["status"] != "degraded" {
		t.Errorf("last observation should be kept as evidence: %+v", result.Evidence)
	}
}

func TestCanceledMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "degraded"})
	}))
	defer server.Close()

	details := testDetails(t, map[string]string{"exchange": server.URL})
	evaluator, _ := NewRegistry(details).Get("system_health")
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	result := evaluator.Evaluate(ctx, scenario.Assertion{
		Kind:       "system_health",
		Expect:     "healthy",
		Parameters: map[string]scenario.Value{"service": scenario.StringValue("exchange")},
	})
	if result.Passed || result.Message != "canceled" {
		t.Errorf("expected canceled result, got %+v", result)
	}
}

func TestZeroWindowGetsExactlyOnePoll(t *testing.T) {
	var polls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}))
	defer server.Close()

	details := testDetails(t, map[string]string{"exchange": server.URL})
	evaluator, _ := NewRegistry(details).Get("system_health")

	// the window already elapsed when the evaluator starts
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	result := evaluator.Evaluate(ctx, scenario.Assertion{
		Kind:       "system_health",
		Expect:     "healthy",
		Parameters: map[string]scenario.Value{"service": scenario.StringValue("exchange")},
	})

	if !result.Passed {
		t.Fatalf("condition held on the first poll, expected pass: %+v", result)
	}
	if polls.Load() != 1 {
		t.Errorf("expected exactly one poll, got %d", polls.Load())
	}
}

func TestRiskAlertPicksEarliestMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"alerts": []map[string]interface{}{
				{"id": "a-2", "alert_type": "trading_halted", "status": "active", "created_at": "2026-08-05T10:00:05Z"},
				{"id": "a-1", "alert_type": "trading_halted", "status": "active", "created_at": "2026-08-05T10:00:01Z"},
				{"id": "a-3", "alert_type": "price_gap", "status": "active", "created_at": "2026-08-05T09:59:59Z"},
			},
		})
	}))
	defer server.Close()

	details := testDetails(t, map[string]string{"risk": server.URL})
	result := evaluate(t, details, "risk_alert", scenario.Assertion{
		Kind:       "risk_alert",
		Expect:     "active",
		Parameters: map[string]scenario.Value{"alert_type": scenario.StringValue("trading_halted")},
	}, time.Second)

	if !result.Passed {
		t.Fatalf("expected pass, got %+v", result)
	}
	alert, ok := result.Evidence["alert"].(map[string]interface{})
	if !ok || alert["id"] != "a-1" {
		t.Errorf("expected earliest matching alert a-1 as evidence, got %+v", result.Evidence)
	}
}

func TestPriceDivergence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"symbol": r.URL.Query().Get("symbol"),
			"venues": []map[string]interface{}{
				{"venue": "alpha", "price": 100.0},
				{"venue": "beta", "price": 105.0},
			},
		})
	}))
	defer server.Close()

	details := testDetails(t, map[string]string{"market-data": server.URL})
	result := evaluate(t, details, "price_divergence", scenario.Assertion{
		Kind: "price_divergence",
		Parameters: map[string]scenario.Value{
			"symbol":            scenario.StringValue("BTC-USD"),
			"threshold_percent": scenario.FloatValue(4),
		},
	}, time.Second)

	if !result.Passed {
		t.Fatalf("5%% divergence should satisfy a 4%% threshold: %+v", result)
	}
	if div, ok := result.Evidence["divergence_percent"].(float64); !ok || div < 4.9 || div > 5.1 {
		t.Errorf("unexpected divergence evidence %+v", result.Evidence)
	}
}

func TestAuditCorrelation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("correlation_id") != "chaos-exchange-halt_trading-aaaa" {
			json.NewEncoder(w).Encode(map[string]interface{}{"events": []map[string]interface{}{}})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"events": []map[string]interface{}{{"event": "halt_received"}, {"event": "halt_applied"}},
		})
	}))
	defer server.Close()

	details := testDetails(t, map[string]string{"audit": server.URL})
	result := evaluate(t, details, "audit_correlation", scenario.Assertion{
		Kind: "audit_correlation",
		Parameters: map[string]scenario.Value{
			"correlation_id": scenario.StringValue("chaos-exchange-halt_trading-aaaa"),
			"min_events":     scenario.IntValue(2),
		},
	}, time.Second)

	if !result.Passed {
		t.Fatalf("expected pass, got %+v", result)
	}
}

func TestCustomCELExpression(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "settled",
			"orders": []string{"o-1", "o-2"},
		})
	}))
	defer server.Close()

	details := testDetails(t, nil)
	result := evaluate(t, details, "custom", scenario.Assertion{
		Kind:       "custom",
		Expect:     `state.status == "settled" && state.orders.size() == 2`,
		Parameters: map[string]scenario.Value{"url": scenario.StringValue(server.URL + "/api/v1/settlement")},
	}, time.Second)
	if !result.Passed {
		t.Fatalf("expected CEL predicate to pass: %+v", result)
	}
}

func TestCustomRejectsBadExpression(t *testing.T) {
	details := testDetails(t, nil)
	result := evaluate(t, details, "custom", scenario.Assertion{
		Kind:       "custom",
		Expect:     `state.status ==`,
		Parameters: map[string]scenario.Value{"url": scenario.StringValue("http://localhost:0")},
	}, time.Second)
	if result.Passed || !strings.Contains(result.Message, "CEL") {
		t.Errorf("expected CEL compile failure, got %+v", result)
	}
}

func TestMissingParameterShortCircuits(t *testing.T) {
	details := testDetails(t, nil)
	result := evaluate(t, details, "system_health", scenario.Assertion{Kind: "system_health"}, time.Second)
	if result.Passed || !strings.Contains(result.Message, "service") {
		t.Errorf("expected parameter error, got %+v", result)
	}
}

func TestSystemRecoveryNeedsTransition(t *testing.T) {
	var healthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := "degraded"
		if healthy.Load() {
			status = "healthy"
		}
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}))
	defer server.Close()

	go func() {
		time.Sleep(60 * time.Millisecond)
		healthy.Store(true)
	}()

	details := testDetails(t, map[string]string{"trading": server.URL})
	result := evaluate(t, details, "system_recovery", scenario.Assertion{
		Kind:       "system_recovery",
		Expect:     "healthy",
		Parameters: map[string]scenario.Value{"service": scenario.StringValue("trading")},
	}, time.Second)

	if !result.Passed {
		t.Fatalf("expected recovery observed, got %+v", result)
	}
	if result.Elapsed < 50*time.Millisecond {
		t.Errorf("recovery cannot pass before the degraded observation, elapsed %v", result.Elapsed)
	}
}
